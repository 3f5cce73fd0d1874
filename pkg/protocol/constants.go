// ABOUTME: Protocol constants shared by server and client
// ABOUTME: Channel numbers, limits, packet tags and their names
package protocol

import "fmt"

const (
	// MaxClients is the number of peer slots a server hosts
	MaxClients = 64

	// AudioChannels is the number of mixer voices on the client.
	// The lower half takes explicit Play, the upper half is the PlayAny pool.
	AudioChannels = 32

	// TextFlag marks a sprite record as text on the wire
	TextFlag uint32 = 0x80000000

	// ProtocolVersion is exchanged in the handshake
	ProtocolVersion uint16 = 1

	// Magic opens every handshake frame ("ANMY")
	Magic uint32 = 0x414E4D59
)

// Channel identifies a logical stream on a connection
type Channel uint8

const (
	ChannelInput Channel = iota
	ChannelCommand
	ChannelSprite
	ChannelContent
	ChannelAudio

	// ChannelCount is the number of channels a connection carries
	ChannelCount
)

// Reliable reports whether packets on the channel are delivered in order
// and without loss. Only sprite frames may be dropped or superseded.
func (c Channel) Reliable() bool {
	return c != ChannelSprite
}

func (c Channel) String() string {
	switch c {
	case ChannelInput:
		return "input"
	case ChannelCommand:
		return "command"
	case ChannelSprite:
		return "sprite"
	case ChannelContent:
		return "content"
	case ChannelAudio:
		return "audio"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

// ContentType is the asset class carried by a content packet
type ContentType uint8

const (
	ContentImage ContentType = iota
	ContentFont
	ContentSound

	// ContentTypeCount is the number of asset classes
	ContentTypeCount
)

func (t ContentType) String() string {
	switch t {
	case ContentImage:
		return "image"
	case ContentFont:
		return "font"
	case ContentSound:
		return "sound"
	default:
		return fmt.Sprintf("content(%d)", uint8(t))
	}
}

// Command is a UI command tag
type Command uint8

const (
	CommandStartTextInput Command = iota
	CommandStopTextInput
)

func (c Command) String() string {
	switch c {
	case CommandStartTextInput:
		return "start_text_input"
	case CommandStopTextInput:
		return "stop_text_input"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}

// AudioKind selects what an audio command does
type AudioKind uint8

const (
	AudioPlay AudioKind = iota
	AudioPlayAny
	AudioStop
	AudioStopAll
)

func (k AudioKind) String() string {
	switch k {
	case AudioPlay:
		return "play"
	case AudioPlayAny:
		return "play_any"
	case AudioStop:
		return "stop"
	case AudioStopAll:
		return "stop_all"
	default:
		return fmt.Sprintf("audio(%d)", uint8(k))
	}
}

// PointerType is the phase of a pointer event
type PointerType uint8

const (
	PointerUp PointerType = iota
	PointerDown
	PointerMotion
	// PointerWheel carries scroll deltas in X and Y
	PointerWheel
)

func (p PointerType) String() string {
	switch p {
	case PointerUp:
		return "up"
	case PointerDown:
		return "down"
	case PointerMotion:
		return "motion"
	case PointerWheel:
		return "wheel"
	default:
		return fmt.Sprintf("pointer(%d)", uint8(p))
	}
}
