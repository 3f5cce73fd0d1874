// ABOUTME: Connection handshake and channel framing
// ABOUTME: Hello/Welcome frames and the one-byte channel prefix on every message
package protocol

import (
	"errors"
	"fmt"
)

// ErrBadHandshake is returned for a hello or welcome that does not parse
var ErrBadHandshake = errors.New("protocol: bad handshake")

const flagTouch = 1 << 0

// Hello is the first frame a client sends
type Hello struct {
	Version uint16
	Touch   bool
}

// Welcome is the server's answer to a Hello
type Welcome struct {
	Version uint16
	Slot    uint16
}

// EncodeHello builds a hello frame
func EncodeHello(h Hello) []byte {
	w := NewWriter(7)
	w.U32(Magic)
	w.U16(h.Version)
	var flags uint8
	if h.Touch {
		flags |= flagTouch
	}
	w.U8(flags)
	return w.Data()
}

// DecodeHello parses a hello frame and checks magic and version
func DecodeHello(data []byte) (Hello, error) {
	r := NewReader(data)
	magic := r.U32()
	h := Hello{Version: r.U16()}
	flags := r.U8()
	if err := r.Finish(); err != nil {
		return Hello{}, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	if magic != Magic {
		return Hello{}, fmt.Errorf("%w: magic %#x", ErrBadHandshake, magic)
	}
	if h.Version != ProtocolVersion {
		return Hello{}, fmt.Errorf("%w: version %d, want %d", ErrBadHandshake, h.Version, ProtocolVersion)
	}
	h.Touch = flags&flagTouch != 0
	return h, nil
}

// EncodeWelcome builds a welcome frame
func EncodeWelcome(wl Welcome) []byte {
	w := NewWriter(8)
	w.U32(Magic)
	w.U16(wl.Version)
	w.U16(wl.Slot)
	return w.Data()
}

// DecodeWelcome parses a welcome frame
func DecodeWelcome(data []byte) (Welcome, error) {
	r := NewReader(data)
	magic := r.U32()
	wl := Welcome{Version: r.U16(), Slot: r.U16()}
	if err := r.Finish(); err != nil {
		return Welcome{}, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	if magic != Magic {
		return Welcome{}, fmt.Errorf("%w: magic %#x", ErrBadHandshake, magic)
	}
	if wl.Slot >= MaxClients {
		return Welcome{}, fmt.Errorf("%w: slot %d", ErrBadHandshake, wl.Slot)
	}
	return wl, nil
}

// Frame prefixes a packet with its channel number
func Frame(ch Channel, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = uint8(ch)
	copy(out[1:], payload)
	return out
}

// SplitFrame separates the channel number from the packet. The payload
// aliases data.
func SplitFrame(data []byte) (Channel, []byte, error) {
	if len(data) == 0 {
		return 0, nil, ErrTruncated
	}
	ch := Channel(data[0])
	if ch >= ChannelCount {
		return 0, nil, fmt.Errorf("frame: channel %d: %w", ch, ErrInvalidValue)
	}
	return ch, data[1:], nil
}
