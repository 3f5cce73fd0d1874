// ABOUTME: Encoders and decoders for every Anomaly packet
// ABOUTME: Sprite, command, audio, content and input packets
package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidValue is returned when a field holds a value outside its enum
var ErrInvalidValue = errors.New("protocol: invalid value")

const (
	spriteRecordSize  = 16 // id + x + y + scale
	audioRecordSize   = 8  // id + channel + volume + kind
	keyRecordSize     = 5  // key + down
	pointerRecordSize = 10 // x + y + button + type
	contentHeaderSize = 9  // type + id + length
)

// EncodeSprites builds a sprite frame. An empty slice encodes a frame with
// count 0, which clears whatever the client drew last.
func EncodeSprites(items []DrawItem) []byte {
	size := 4
	for _, item := range items {
		size += spriteRecordSize
		if t, ok := item.(Text); ok {
			size += 3 + 4 + len(t.Text)
		}
	}

	w := NewWriter(size)
	w.U32(uint32(len(items)))
	for _, item := range items {
		switch v := item.(type) {
		case Image:
			w.U32(v.AssetID &^ TextFlag)
			w.F32(v.X)
			w.F32(v.Y)
			w.F32(v.Scale)
		case Text:
			w.U32(v.FontID | TextFlag)
			w.F32(v.X)
			w.F32(v.Y)
			w.F32(v.Scale)
			w.U8(v.R)
			w.U8(v.G)
			w.U8(v.B)
			w.Str(v.Text)
		}
	}
	return w.Data()
}

// DecodeSprites parses a sprite frame
func DecodeSprites(data []byte) ([]DrawItem, error) {
	r := NewReader(data)
	count := r.Count(spriteRecordSize)
	items := make([]DrawItem, 0, count)
	for i := 0; i < count && r.Err() == nil; i++ {
		id := r.U32()
		x, y, scale := r.F32(), r.F32(), r.F32()
		if id&TextFlag == 0 {
			items = append(items, Image{AssetID: id, X: x, Y: y, Scale: scale})
			continue
		}
		t := Text{FontID: id &^ TextFlag, X: x, Y: y, Scale: scale}
		t.R, t.G, t.B = r.U8(), r.U8(), r.U8()
		t.Text = r.Str()
		items = append(items, t)
	}
	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("sprite packet: %w", err)
	}
	return items, nil
}

// EncodeCommands builds a UI command packet
func EncodeCommands(cmds []Command) []byte {
	w := NewWriter(4 + len(cmds))
	w.U32(uint32(len(cmds)))
	for _, c := range cmds {
		w.U8(uint8(c))
	}
	return w.Data()
}

// DecodeCommands parses a UI command packet
func DecodeCommands(data []byte) ([]Command, error) {
	r := NewReader(data)
	count := r.Count(1)
	cmds := make([]Command, 0, count)
	for i := 0; i < count && r.Err() == nil; i++ {
		c := Command(r.U8())
		if c > CommandStopTextInput {
			return nil, fmt.Errorf("command packet: tag %d: %w", c, ErrInvalidValue)
		}
		cmds = append(cmds, c)
	}
	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("command packet: %w", err)
	}
	return cmds, nil
}

// EncodeAudio builds an audio command packet
func EncodeAudio(cmds []AudioCommand) []byte {
	w := NewWriter(4 + len(cmds)*audioRecordSize)
	w.U32(uint32(len(cmds)))
	for _, c := range cmds {
		w.U32(c.SoundID)
		w.U16(c.Channel)
		w.U8(c.Volume)
		w.U8(uint8(c.Kind))
	}
	return w.Data()
}

// DecodeAudio parses an audio command packet
func DecodeAudio(data []byte) ([]AudioCommand, error) {
	r := NewReader(data)
	count := r.Count(audioRecordSize)
	cmds := make([]AudioCommand, 0, count)
	for i := 0; i < count && r.Err() == nil; i++ {
		c := AudioCommand{
			SoundID: r.U32(),
			Channel: r.U16(),
			Volume:  r.U8(),
			Kind:    AudioKind(r.U8()),
		}
		if r.Err() == nil && c.Kind > AudioStopAll {
			return nil, fmt.Errorf("audio packet: kind %d: %w", c.Kind, ErrInvalidValue)
		}
		cmds = append(cmds, c)
	}
	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("audio packet: %w", err)
	}
	return cmds, nil
}

// EncodeContent builds a content packet for one asset
func EncodeContent(c Content) []byte {
	w := NewWriter(contentHeaderSize + len(c.Data))
	w.U8(uint8(c.Type))
	w.U32(c.ID)
	w.Bytes(c.Data)
	return w.Data()
}

// DecodeContent parses a content packet. Data aliases the input buffer.
func DecodeContent(data []byte) (Content, error) {
	r := NewReader(data)
	c := Content{
		Type: ContentType(r.U8()),
		ID:   r.U32(),
	}
	c.Data = r.Bytes()
	if err := r.Finish(); err != nil {
		return Content{}, fmt.Errorf("content packet: %w", err)
	}
	if c.Type >= ContentTypeCount {
		return Content{}, fmt.Errorf("content packet: type %d: %w", c.Type, ErrInvalidValue)
	}
	return c, nil
}

// EncodeInput builds a client input packet
func EncodeInput(in Input) []byte {
	size := 4 + len(in.Keys)*keyRecordSize + 4 + len(in.Composition) + 4 + len(in.Pointers)*pointerRecordSize
	w := NewWriter(size)

	w.U32(uint32(len(in.Keys)))
	for _, k := range in.Keys {
		w.I32(k.Key)
		if k.Down {
			w.U8(1)
		} else {
			w.U8(0)
		}
	}

	w.Str(in.Composition)

	w.U32(uint32(len(in.Pointers)))
	for _, p := range in.Pointers {
		w.F32(p.X)
		w.F32(p.Y)
		w.U8(p.Button)
		w.U8(uint8(p.Type))
	}
	return w.Data()
}

// DecodeInput parses a client input packet
func DecodeInput(data []byte) (Input, error) {
	r := NewReader(data)
	var in Input

	keys := r.Count(keyRecordSize)
	if keys > 0 {
		in.Keys = make([]KeyEvent, 0, keys)
	}
	for i := 0; i < keys && r.Err() == nil; i++ {
		in.Keys = append(in.Keys, KeyEvent{Key: r.I32(), Down: r.U8() != 0})
	}

	in.Composition = r.Str()

	pointers := r.Count(pointerRecordSize)
	if pointers > 0 {
		in.Pointers = make([]PointerEvent, 0, pointers)
	}
	for i := 0; i < pointers && r.Err() == nil; i++ {
		p := PointerEvent{X: r.F32(), Y: r.F32(), Button: r.U8(), Type: PointerType(r.U8())}
		if r.Err() == nil && p.Type > PointerWheel {
			return Input{}, fmt.Errorf("input packet: pointer type %d: %w", p.Type, ErrInvalidValue)
		}
		in.Pointers = append(in.Pointers, p)
	}

	if err := r.Finish(); err != nil {
		return Input{}, fmt.Errorf("input packet: %w", err)
	}
	return in, nil
}
