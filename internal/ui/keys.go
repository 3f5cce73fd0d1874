// ABOUTME: Translation of terminal key and mouse messages into wire input events
// ABOUTME: Keys become SDL keycodes; mouse positions become view coordinates
package ui

import (
	"unicode"

	"github.com/anomaly-engine/anomaly/internal/script"
	"github.com/anomaly-engine/anomaly/pkg/protocol"
	tea "github.com/charmbracelet/bubbletea"
)

var specialKeys = map[tea.KeyType]int32{
	tea.KeySpace:     script.KeySpace,
	tea.KeyEnter:     script.KeyReturn,
	tea.KeyEsc:       script.KeyEscape,
	tea.KeyBackspace: script.KeyBackspace,
	tea.KeyTab:       script.KeyTab,
	tea.KeyUp:        script.KeyUp,
	tea.KeyDown:      script.KeyDown,
	tea.KeyLeft:      script.KeyLeft,
	tea.KeyRight:     script.KeyRight,
	tea.KeyF1:        script.KeyF1,
	tea.KeyF2:        script.KeyF1 + 1,
	tea.KeyF3:        script.KeyF1 + 2,
	tea.KeyF4:        script.KeyF1 + 3,
	tea.KeyF5:        script.KeyF1 + 4,
	tea.KeyF6:        script.KeyF1 + 5,
	tea.KeyF7:        script.KeyF1 + 6,
	tea.KeyF8:        script.KeyF1 + 7,
	tea.KeyF9:        script.KeyF1 + 8,
	tea.KeyF10:       script.KeyF1 + 9,
	tea.KeyF11:       script.KeyF1 + 10,
	tea.KeyF12:       script.KeyF12,
}

// keyCodes returns the SDL keycodes a key message stands for. SDL reports
// letters by their lower-case character whatever the shift state.
func keyCodes(msg tea.KeyMsg) []int32 {
	if msg.Type == tea.KeyRunes {
		codes := make([]int32, 0, len(msg.Runes))
		for _, r := range msg.Runes {
			if r > unicode.MaxASCII || !unicode.IsPrint(r) {
				continue
			}
			codes = append(codes, int32(unicode.ToLower(r)))
		}
		return codes
	}
	if code, ok := specialKeys[msg.Type]; ok {
		return []int32{code}
	}
	return nil
}

// viewport is the part of the terminal that shows the frame
type viewport struct {
	top  int
	cols int
	rows int
}

// aspect is width over height of the viewport; cells are twice as tall as wide
func (v viewport) aspect() float32 {
	if v.rows == 0 {
		return 1
	}
	return float32(v.cols) / float32(2*v.rows)
}

// toView maps a cell to view coordinates: y in -1..1 upwards, x scaled by
// the aspect ratio
func (v viewport) toView(col, row int) (float32, float32) {
	fx := (float32(col) + 0.5) / float32(v.cols)
	fy := (float32(row) + 0.5) / float32(v.rows)
	return (fx*2 - 1) * v.aspect(), -fy*2 + 1
}

// toCell is the inverse of toView, unclamped
func (v viewport) toCell(x, y float32) (int, int) {
	fx := (x/v.aspect() + 1) / 2
	fy := (1 - y) / 2
	return int(fx * float32(v.cols)), int(fy * float32(v.rows))
}

var mouseButtons = map[tea.MouseButton]uint8{
	tea.MouseButtonLeft:     1,
	tea.MouseButtonMiddle:   2,
	tea.MouseButtonRight:    3,
	tea.MouseButtonBackward: 4,
	tea.MouseButtonForward:  5,
}

// pointerEvent converts a mouse message inside the viewport
func (v viewport) pointerEvent(msg tea.MouseMsg) (protocol.PointerEvent, bool) {
	row := msg.Y - v.top
	if v.cols <= 0 || v.rows <= 0 || msg.X < 0 || msg.X >= v.cols || row < 0 || row >= v.rows {
		return protocol.PointerEvent{}, false
	}
	x, y := v.toView(msg.X, row)

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		return protocol.PointerEvent{Y: 1, Type: protocol.PointerWheel}, true
	case tea.MouseButtonWheelDown:
		return protocol.PointerEvent{Y: -1, Type: protocol.PointerWheel}, true
	case tea.MouseButtonWheelLeft:
		return protocol.PointerEvent{X: -1, Type: protocol.PointerWheel}, true
	case tea.MouseButtonWheelRight:
		return protocol.PointerEvent{X: 1, Type: protocol.PointerWheel}, true
	}

	ev := protocol.PointerEvent{X: x, Y: y, Button: mouseButtons[msg.Button]}
	switch msg.Action {
	case tea.MouseActionPress:
		ev.Type = protocol.PointerDown
	case tea.MouseActionRelease:
		ev.Type = protocol.PointerUp
	default:
		ev.Type = protocol.PointerMotion
	}
	return ev, true
}
