// ABOUTME: Contract between the server tick and game logic
// ABOUTME: Callbacks receive server events, API lets game logic act on peers
package script

import (
	"time"

	"github.com/anomaly-engine/anomaly/pkg/protocol"
)

// Callbacks is implemented by game logic. Every method is called on the
// server's tick goroutine.
type Callbacks interface {
	OnTick(dt time.Duration)
	OnPeerJoined(peer int, hasTouch bool)
	OnPeerLeft(peer int)
	OnKeyEvent(peer int, key int32, down bool)
	OnPointerEvent(peer int, x, y float32, button uint8, typ protocol.PointerType)
	OnReloadRequested()
}

// Nop implements every hook as a no-op. Embed it to implement only the
// hooks you need.
type Nop struct{}

func (Nop) OnTick(time.Duration)        {}
func (Nop) OnPeerJoined(int, bool)      {}
func (Nop) OnPeerLeft(int)              {}
func (Nop) OnKeyEvent(int, int32, bool) {}
func (Nop) OnReloadRequested()          {}

func (Nop) OnPointerEvent(int, float32, float32, uint8, protocol.PointerType) {}

// API is what game logic may do to the server. Failures are session errors
// with code 1 (peer offline), 2 (asset not loaded) or 3 (invalid argument).
type API interface {
	StartTextInput(peer int) error
	StopTextInput(peer int) error
	Composition(peer int) (string, error)

	// SpriteWidth returns the pixel width of an image, 0 if it is not loaded
	SpriteWidth(path string) int

	DrawSprite(peer int, image string, x, y, scale float32) error
	DrawText(peer int, font string, x, y, scale float32, r, g, b uint8, text string) error

	Kick(peer int) error

	// Play starts a sound on an explicit channel of the lower half
	Play(peer int, sound string, volume, channel int) error
	// PlayAny starts a sound on any free channel of the upper half
	PlayAny(peer int, sound string, volume int) error
	Stop(peer int, channel int) error
	StopAll(peer int) error

	// Reload asks for a script and content reload after the current callback
	Reload()
}
