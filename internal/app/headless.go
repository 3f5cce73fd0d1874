// ABOUTME: Frontend that renders nothing and reports no input
// ABOUTME: Used when the terminal UI is disabled; frames are only logged
package app

import (
	"sync"

	"github.com/anomaly-engine/anomaly/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// Headless is a Frontend for running without a display
type Headless struct {
	mu        sync.Mutex
	images    int
	fonts     int
	lastFrame int
	textInput bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewHeadless creates a headless frontend
func NewHeadless() *Headless {
	return &Headless{done: make(chan struct{})}
}

func (h *Headless) LoadImage(id uint32, data []byte) error {
	h.mu.Lock()
	h.images++
	h.mu.Unlock()
	return nil
}

func (h *Headless) LoadFont(id uint32, data []byte) error {
	h.mu.Lock()
	h.fonts++
	h.mu.Unlock()
	return nil
}

func (h *Headless) Present(items []protocol.DrawItem) {
	h.mu.Lock()
	changed := len(items) != h.lastFrame
	h.lastFrame = len(items)
	h.mu.Unlock()

	if changed {
		log.Debug().Int("items", len(items)).Msg("frame")
	}
}

func (h *Headless) SetTextInput(active bool) {
	h.mu.Lock()
	h.textInput = active
	h.mu.Unlock()
}

func (h *Headless) Input() protocol.Input {
	return protocol.Input{}
}

func (h *Headless) Done() <-chan struct{} {
	return h.done
}

// Close ends the session as if the user quit
func (h *Headless) Close() {
	h.doneOnce.Do(func() { close(h.done) })
}
