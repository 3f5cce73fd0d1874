// ABOUTME: Bubbletea model for the client terminal frontend
// ABOUTME: Renders the latest frame as a character grid and forwards input to the Terminal
package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anomaly-engine/anomaly/pkg/protocol"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	headerHeight = 3
	footerHeight = 2

	redrawInterval = 33 * time.Millisecond
	volumeStep     = 5
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	imageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5A5A5A"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

type tickMsg time.Time

// StatusMsg updates the status line
type StatusMsg struct {
	Connected  *bool
	ServerName string
	Slot       int
	Dropped    uint64
}

// Model represents the TUI state
type Model struct {
	term *Terminal

	// Connection
	connected  bool
	serverName string
	slot       int
	dropped    uint64

	// latest copy of the shared frontend state
	snap snapshot

	showDebug bool

	// Dimensions
	width  int
	height int
}

// NewModel creates a model drawing the given terminal's state
func NewModel(term *Terminal) Model {
	return Model{
		term: term,
		snap: term.snapshot(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(redrawInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the redraw timer
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		if ev, ok := m.viewport().pointerEvent(msg); ok {
			m.term.pushPointer(ev)
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case tickMsg:
		m.snap = m.term.snapshot()
		return m, tick()
	}

	return m, nil
}

// handleKey handles client shortcuts and forwards everything else
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "pgup":
		m.snap.volume = m.term.changeVolume(volumeStep)
		return m, nil
	case "pgdown":
		m.snap.volume = m.term.changeVolume(-volumeStep)
		return m, nil
	case "ctrl+d":
		m.showDebug = !m.showDebug
		return m, nil
	}

	switch msg.Type {
	case tea.KeyRunes:
		m.term.editComposition(string(msg.Runes), false)
	case tea.KeySpace:
		m.term.editComposition(" ", false)
	case tea.KeyBackspace:
		m.term.editComposition("", true)
	}
	m.term.pushKeys(keyCodes(msg)...)
	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
		m.slot = msg.Slot
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.Dropped != 0 {
		m.dropped = msg.Dropped
	}
}

func (m Model) viewport() viewport {
	rows := m.height - headerHeight - footerHeight
	if rows < 0 {
		rows = 0
	}
	return viewport{top: headerHeight, cols: m.width, rows: rows}
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(renderFrame(m.snap, m.viewport()))
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	conn := "Disconnected"
	if m.connected {
		conn = fmt.Sprintf("Connected to %s (slot %d)", m.serverName, m.slot)
	}

	input := ""
	if m.snap.textInput {
		input = "> " + m.snap.composition + "_"
	}

	return titleStyle.Render("Anomaly") + "  " + statusStyle.Render(conn) + "\n" +
		statusStyle.Render(fmt.Sprintf("Volume: [%s] %d%%", renderBar(m.snap.volume, 100, 10), m.snap.volume)) + "\n" +
		truncate(input, m.width) + "\n"
}

func (m Model) renderFooter() string {
	debug := ""
	if m.showDebug {
		debug = fmt.Sprintf("frames %d  items %d  images %d  fonts %d  dropped %d",
			m.snap.frames, len(m.snap.frame), len(m.snap.images), len(m.snap.fonts), m.dropped)
	}
	return truncate(debug, m.width) + "\n" +
		helpStyle.Render("PgUp/PgDn:Volume  Ctrl+D:Debug  Ctrl+C:Quit")
}

type cell struct {
	r     rune
	style *lipgloss.Style
}

// renderFrame draws the frame into a rows x cols grid. Images are centred
// placeholders sized like the sprite; text starts at its position. Later
// items overwrite earlier ones, and assets that are not loaded are skipped.
func renderFrame(snap snapshot, v viewport) string {
	if v.rows <= 0 || v.cols <= 0 {
		return ""
	}

	grid := make([][]cell, v.rows)
	for i := range grid {
		grid[i] = make([]cell, v.cols)
		for j := range grid[i] {
			grid[i][j].r = ' '
		}
	}
	put := func(col, row int, r rune, style *lipgloss.Style) {
		if row >= 0 && row < v.rows && col >= 0 && col < v.cols {
			grid[row][col] = cell{r: r, style: style}
		}
	}

	for _, item := range snap.frame {
		switch it := item.(type) {
		case protocol.Image:
			size, ok := snap.images[it.AssetID]
			if !ok || size.height == 0 {
				continue
			}
			texAspect := float64(size.width) / float64(size.height)
			h := max(1, int(math.Round(float64(it.Scale)/2*float64(v.rows))))
			w := max(1, int(math.Round(float64(it.Scale)*texAspect/(2*float64(v.aspect()))*float64(v.cols))))

			cx, cy := v.toCell(it.X, it.Y)
			left, top := cx-w/2, cy-h/2
			for row := top; row < top+h; row++ {
				for col := left; col < left+w; col++ {
					put(col, row, '▒', &imageStyle)
				}
			}
			for i, r := range fmt.Sprintf("#%d", it.AssetID) {
				if i < w {
					put(left+i, top, r, &imageStyle)
				}
			}

		case protocol.Text:
			if _, ok := snap.fonts[it.FontID]; !ok {
				continue
			}
			style := lipgloss.NewStyle().Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", it.R, it.G, it.B)))
			col, row := v.toCell(it.X, it.Y)
			for _, r := range it.Text {
				put(col, row, r, &style)
				col++
			}
		}
	}

	var b strings.Builder
	for _, line := range grid {
		var run strings.Builder
		var style *lipgloss.Style
		flush := func() {
			if run.Len() == 0 {
				return
			}
			if style != nil {
				b.WriteString(style.Render(run.String()))
			} else {
				b.WriteString(run.String())
			}
			run.Reset()
		}
		for _, c := range line {
			if c.style != style {
				flush()
				style = c.style
			}
			run.WriteRune(c.r)
		}
		flush()
		b.WriteByte('\n')
	}
	return b.String()
}

// Utility functions
func renderBar(value, total, width int) string {
	filled := min(width, max(0, (value*width)/total))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	if length <= 3 {
		return string(runes[:length])
	}
	return string(runes[:length-3]) + "..."
}
