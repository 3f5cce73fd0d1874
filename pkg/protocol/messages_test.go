// ABOUTME: Tests for Anomaly packet encoding and decoding
// ABOUTME: Covers byte layouts, round trips and truncated input
package protocol

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpriteRoundTripPreservesOrderAndFloatBits(t *testing.T) {
	items := []DrawItem{
		Image{AssetID: 7, X: 1.5, Y: -2.25, Scale: 1},
		Text{FontID: 3, X: 0.1, Y: float32(math.Inf(1)), Scale: 2, R: 255, G: 10, B: 0, Text: "héllo"},
		Image{AssetID: 1, X: float32(math.SmallestNonzeroFloat32), Y: -0, Scale: 0.5},
	}

	got, err := DecodeSprites(EncodeSprites(items))
	require.NoError(t, err)
	require.Len(t, got, len(items))

	for i := range items {
		switch want := items[i].(type) {
		case Image:
			img, ok := got[i].(Image)
			require.True(t, ok, "item %d should be an image", i)
			assert.Equal(t, want.AssetID, img.AssetID)
			assert.Equal(t, math.Float32bits(want.X), math.Float32bits(img.X))
			assert.Equal(t, math.Float32bits(want.Y), math.Float32bits(img.Y))
			assert.Equal(t, math.Float32bits(want.Scale), math.Float32bits(img.Scale))
		case Text:
			txt, ok := got[i].(Text)
			require.True(t, ok, "item %d should be text", i)
			assert.Equal(t, want, txt)
		}
	}
}

func TestSpriteLayout(t *testing.T) {
	data := EncodeSprites([]DrawItem{
		Text{FontID: 2, X: 1, Y: 2, Scale: 3, R: 4, G: 5, B: 6, Text: "ab"},
	})

	want := []byte{
		0, 0, 0, 1, // count
		0x80, 0, 0, 2, // id with text flag
		0x3f, 0x80, 0, 0, // 1.0
		0x40, 0, 0, 0, // 2.0
		0x40, 0x40, 0, 0, // 3.0
		4, 5, 6,
		0, 0, 0, 2, 'a', 'b',
	}
	assert.Equal(t, want, data)
}

func TestEmptySpriteFrame(t *testing.T) {
	data := EncodeSprites(nil)
	assert.Equal(t, []byte{0, 0, 0, 0}, data)

	items, err := DecodeSprites(data)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTruncatedPacketsNeverPanic(t *testing.T) {
	packets := map[string][]byte{
		"sprite": EncodeSprites([]DrawItem{
			Image{AssetID: 1, X: 1, Y: 1, Scale: 1},
			Text{FontID: 1, Text: "hello"},
		}),
		"command": EncodeCommands([]Command{CommandStartTextInput, CommandStopTextInput}),
		"audio":   EncodeAudio([]AudioCommand{{SoundID: 1, Channel: 2, Volume: 3, Kind: AudioPlay}}),
		"content": EncodeContent(Content{Type: ContentSound, ID: 9, Data: []byte("riff")}),
		"input": EncodeInput(Input{
			Keys:        []KeyEvent{{Key: 1073741886, Down: true}},
			Composition: "ka",
			Pointers:    []PointerEvent{{X: 1, Y: 2, Button: 1, Type: PointerDown}},
		}),
	}

	decoders := map[string]func([]byte) error{
		"sprite":  func(b []byte) error { _, err := DecodeSprites(b); return err },
		"command": func(b []byte) error { _, err := DecodeCommands(b); return err },
		"audio":   func(b []byte) error { _, err := DecodeAudio(b); return err },
		"content": func(b []byte) error { _, err := DecodeContent(b); return err },
		"input":   func(b []byte) error { _, err := DecodeInput(b); return err },
	}

	for name, full := range packets {
		decode := decoders[name]
		t.Run(name, func(t *testing.T) {
			require.NoError(t, decode(full))
			for n := 0; n < len(full); n++ {
				err := decode(full[:n])
				assert.ErrorIs(t, err, ErrTruncated, "prefix of %d bytes", n)
			}
		})
	}
}

func TestHugeCountIsRejected(t *testing.T) {
	_, err := DecodeSprites([]byte{0xff, 0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = DecodeContent([]byte{0, 0, 0, 0, 1, 0xff, 0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestTrailingBytesAreRejected(t *testing.T) {
	data := append(EncodeCommands([]Command{CommandStartTextInput}), 0)
	_, err := DecodeCommands(data)
	assert.ErrorIs(t, err, ErrTrailingData)
}

func TestCommandAndAudioPackets(t *testing.T) {
	cmds := []Command{CommandStartTextInput, CommandStopTextInput, CommandStartTextInput}
	gotCmds, err := DecodeCommands(EncodeCommands(cmds))
	require.NoError(t, err)
	assert.Equal(t, cmds, gotCmds)

	audio := []AudioCommand{
		{SoundID: 4, Channel: 5, Volume: 128, Kind: AudioPlay},
		{SoundID: 4, Volume: 64, Kind: AudioPlayAny},
		{Channel: 5, Kind: AudioStop},
		{Kind: AudioStopAll},
	}
	data := EncodeAudio(audio)
	assert.Len(t, data, 4+len(audio)*8)

	gotAudio, err := DecodeAudio(data)
	require.NoError(t, err)
	assert.Equal(t, audio, gotAudio)
}

func TestUnknownEnumValues(t *testing.T) {
	_, err := DecodeCommands([]byte{0, 0, 0, 1, 9})
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = DecodeAudio([]byte{0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 10, 7})
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = DecodeContent([]byte{3, 0, 0, 0, 1, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestContentPacketLayout(t *testing.T) {
	data := EncodeContent(Content{Type: ContentFont, ID: 0x01020304, Data: []byte{0xaa, 0xbb}})
	assert.Equal(t, []byte{1, 1, 2, 3, 4, 0, 0, 0, 2, 0xaa, 0xbb}, data)

	c, err := DecodeContent(data)
	require.NoError(t, err)
	assert.Equal(t, ContentFont, c.Type)
	assert.Equal(t, uint32(0x01020304), c.ID)
	assert.Equal(t, []byte{0xaa, 0xbb}, c.Data)
}

func TestInputRoundTrip(t *testing.T) {
	in := Input{
		Keys: []KeyEvent{
			{Key: 97, Down: true},
			{Key: 97, Down: false},
			{Key: -1, Down: true},
		},
		Composition: "にほん",
		Pointers: []PointerEvent{
			{X: 10, Y: 20, Button: 1, Type: PointerDown},
			{X: 11, Y: 21, Button: 1, Type: PointerMotion},
			{X: 0, Y: -1, Type: PointerWheel},
		},
	}

	got, err := DecodeInput(EncodeInput(in))
	require.NoError(t, err)
	assert.Equal(t, in, got)
	assert.False(t, got.Empty())
}

func TestEmptyInput(t *testing.T) {
	data := EncodeInput(Input{})
	assert.Equal(t, make([]byte, 12), data)

	got, err := DecodeInput(data)
	require.NoError(t, err)
	assert.True(t, got.Empty())
	assert.Equal(t, "", got.Composition)
}

func TestHandshake(t *testing.T) {
	hello, err := DecodeHello(EncodeHello(Hello{Version: ProtocolVersion, Touch: true}))
	require.NoError(t, err)
	assert.True(t, hello.Touch)

	_, err = DecodeHello(EncodeHello(Hello{Version: ProtocolVersion + 1}))
	assert.ErrorIs(t, err, ErrBadHandshake)

	_, err = DecodeHello([]byte("GET / HTTP/1.1"))
	assert.ErrorIs(t, err, ErrBadHandshake)

	welcome, err := DecodeWelcome(EncodeWelcome(Welcome{Version: ProtocolVersion, Slot: 63}))
	require.NoError(t, err)
	assert.Equal(t, uint16(63), welcome.Slot)

	_, err = DecodeWelcome(EncodeWelcome(Welcome{Version: ProtocolVersion, Slot: MaxClients}))
	assert.True(t, errors.Is(err, ErrBadHandshake))
}

func TestFrames(t *testing.T) {
	framed := Frame(ChannelAudio, []byte{1, 2})
	assert.Equal(t, []byte{4, 1, 2}, framed)

	ch, payload, err := SplitFrame(framed)
	require.NoError(t, err)
	assert.Equal(t, ChannelAudio, ch)
	assert.Equal(t, []byte{1, 2}, payload)

	_, _, err = SplitFrame(nil)
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = SplitFrame([]byte{5})
	assert.ErrorIs(t, err, ErrInvalidValue)

	assert.True(t, ChannelContent.Reliable())
	assert.False(t, ChannelSprite.Reliable())
	assert.Equal(t, "sprite", ChannelSprite.String())
}
