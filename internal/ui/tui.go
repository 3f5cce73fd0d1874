// ABOUTME: Terminal frontend for the Anomaly client
// ABOUTME: Receives frames and assets from the client goroutine and gathers input for it
package ui

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/anomaly-engine/anomaly/pkg/protocol"
	tea "github.com/charmbracelet/bubbletea"
)

type imageSize struct {
	width  int
	height int
}

// Terminal draws frames as text and reports keyboard and mouse input.
// Load, Present and Input are called from the client goroutine; the
// bubbletea model reads and writes the same state under mu.
type Terminal struct {
	mu          sync.Mutex
	images      map[uint32]imageSize
	fonts       map[uint32]int
	frame       []protocol.DrawItem
	frames      uint64
	keys        []protocol.KeyEvent
	pointers    []protocol.PointerEvent
	composition string
	textInput   bool

	volume   int
	onVolume func(int)

	program  *tea.Program
	pending  []StatusMsg
	done     chan struct{}
	doneOnce sync.Once
}

// NewTerminal creates a terminal frontend. onVolume, if set, is called
// when the user changes the volume.
func NewTerminal(volume int, onVolume func(int)) *Terminal {
	return &Terminal{
		images:   make(map[uint32]imageSize),
		fonts:    make(map[uint32]int),
		volume:   volume,
		onVolume: onVolume,
		done:     make(chan struct{}),
	}
}

// LoadImage records the image dimensions; pixels are not kept
func (t *Terminal) LoadImage(id uint32, data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("image %d: %w", id, err)
	}
	t.mu.Lock()
	t.images[id] = imageSize{width: cfg.Width, height: cfg.Height}
	t.mu.Unlock()
	return nil
}

// LoadFont registers the font id. Text is drawn in the terminal's own font.
func (t *Terminal) LoadFont(id uint32, data []byte) error {
	t.mu.Lock()
	t.fonts[id] = len(data)
	t.mu.Unlock()
	return nil
}

func (t *Terminal) Present(items []protocol.DrawItem) {
	frame := make([]protocol.DrawItem, len(items))
	copy(frame, items)

	t.mu.Lock()
	t.frame = frame
	t.frames++
	t.mu.Unlock()
}

// SetTextInput toggles text entry. Starting it clears the composition.
func (t *Terminal) SetTextInput(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if active && !t.textInput {
		t.composition = ""
	}
	t.textInput = active
}

func (t *Terminal) Input() protocol.Input {
	t.mu.Lock()
	defer t.mu.Unlock()

	in := protocol.Input{
		Keys:        t.keys,
		Composition: t.composition,
		Pointers:    t.pointers,
	}
	t.keys = nil
	t.pointers = nil
	return in
}

func (t *Terminal) Done() <-chan struct{} {
	return t.done
}

// Run shows the terminal UI until the user quits or Quit is called
func (t *Terminal) Run() error {
	p := tea.NewProgram(NewModel(t), tea.WithAltScreen(), tea.WithMouseAllMotion())

	t.mu.Lock()
	select {
	case <-t.done:
		t.mu.Unlock()
		return nil
	default:
	}
	t.program = p
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	go func() {
		for _, msg := range pending {
			p.Send(msg)
		}
	}()

	_, err := p.Run()
	t.close()
	return err
}

// Quit stops the UI
func (t *Terminal) Quit() {
	t.mu.Lock()
	p := t.program
	t.close()
	t.mu.Unlock()

	if p != nil {
		p.Quit()
	}
}

// SetStatus updates the status line. It never blocks; updates sent before
// Run are delivered once the UI starts.
func (t *Terminal) SetStatus(msg StatusMsg) {
	t.mu.Lock()
	p := t.program
	if p == nil {
		t.pending = append(t.pending, msg)
	}
	t.mu.Unlock()

	if p != nil {
		go p.Send(msg)
	}
}

func (t *Terminal) close() {
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *Terminal) pushKeys(codes ...int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, code := range codes {
		t.keys = append(t.keys,
			protocol.KeyEvent{Key: code, Down: true},
			protocol.KeyEvent{Key: code, Down: false})
	}
}

func (t *Terminal) pushPointer(ev protocol.PointerEvent) {
	t.mu.Lock()
	t.pointers = append(t.pointers, ev)
	t.mu.Unlock()
}

// editComposition applies typed text or a backspace while text input is
// active and reports whether it did
func (t *Terminal) editComposition(text string, backspace bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.textInput {
		return false
	}
	if backspace {
		runes := []rune(t.composition)
		if len(runes) > 0 {
			t.composition = string(runes[:len(runes)-1])
		}
		return true
	}
	t.composition += text
	return true
}

func (t *Terminal) changeVolume(delta int) int {
	t.mu.Lock()
	t.volume += delta
	if t.volume < 0 {
		t.volume = 0
	}
	if t.volume > 100 {
		t.volume = 100
	}
	v := t.volume
	cb := t.onVolume
	t.mu.Unlock()

	if cb != nil {
		cb(v)
	}
	return v
}

// snapshot is what the view needs from the shared state
type snapshot struct {
	frame       []protocol.DrawItem
	frames      uint64
	images      map[uint32]imageSize
	fonts       map[uint32]struct{}
	textInput   bool
	composition string
	volume      int
}

func (t *Terminal) snapshot() snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	images := make(map[uint32]imageSize, len(t.images))
	for id, size := range t.images {
		images[id] = size
	}
	fonts := make(map[uint32]struct{}, len(t.fonts))
	for id := range t.fonts {
		fonts[id] = struct{}{}
	}
	return snapshot{
		frame:       t.frame,
		frames:      t.frames,
		images:      images,
		fonts:       fonts,
		textInput:   t.textInput,
		composition: t.composition,
		volume:      t.volume,
	}
}
