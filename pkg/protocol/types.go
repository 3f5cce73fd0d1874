// ABOUTME: In-memory forms of everything that crosses the wire
// ABOUTME: Draw items, audio commands, input events and content packets
package protocol

// DrawItem is one entry of a sprite frame: either an Image or a Text.
// The text flag exists only in the encoded form.
type DrawItem interface {
	drawItem()
}

// Image draws the image asset with the given id
type Image struct {
	AssetID uint32
	X       float32
	Y       float32
	Scale   float32
}

// Text draws a UTF-8 string using the font asset with the given id
type Text struct {
	FontID uint32
	X      float32
	Y      float32
	Scale  float32
	R      uint8
	G      uint8
	B      uint8
	Text   string
}

func (Image) drawItem() {}
func (Text) drawItem()  {}

// AudioCommand is a single mixer instruction for one client
type AudioCommand struct {
	SoundID uint32
	Channel uint16
	Volume  uint8
	Kind    AudioKind
}

// KeyEvent is a key transition using SDL keycodes
type KeyEvent struct {
	Key  int32
	Down bool
}

// PointerEvent is a mouse or touch event. Button holds the mouse button
// (1 Left .. 5 Extra 2) for pointer peers and the finger index for touch peers.
type PointerEvent struct {
	X      float32
	Y      float32
	Button uint8
	Type   PointerType
}

// Input is everything a client reports in one input packet.
// Composition is the full current IME composition, not a diff.
type Input struct {
	Keys        []KeyEvent
	Composition string
	Pointers    []PointerEvent
}

// Empty reports whether the packet carries no events
func (in Input) Empty() bool {
	return len(in.Keys) == 0 && len(in.Pointers) == 0
}

// Content is one asset pushed to a client
type Content struct {
	Type ContentType
	ID   uint32
	Data []byte
}
