// ABOUTME: Server TUI for displaying connected peers and content stats
// ABOUTME: Real-time server status display using bubbletea
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ServerTUI manages the server TUI
type ServerTUI struct {
	mu      sync.Mutex
	program *tea.Program
	stopped bool

	status   ServerStatus
	quitChan chan struct{} // Signal to stop the server
}

// ServerStatus holds server state for TUI
type ServerStatus struct {
	Name     string
	Port     int
	Uptime   time.Duration
	TickRate float64
	Peers    []PeerInfo
	Images   int
	Fonts    int
	Sounds   int
}

// PeerInfo holds peer information for display
type PeerInfo struct {
	Slot      int
	Session   string
	Touch     bool
	TextInput bool
}

// tuiModel is the bubbletea model for server TUI
type tuiModel struct {
	status    ServerStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{} // Channel to signal server stop
}

type tickMsg time.Time
type statusMsg ServerStatus

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			// Signal the server to stop
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}

	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	peerHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))
)

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Anomaly Server"))
	b.WriteString("\n\n")

	field := func(name, value string) {
		b.WriteString(headerStyle.Render(name + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	field("Server", m.status.Name)
	field("Port", fmt.Sprintf("%d", m.status.Port))
	field("Uptime", time.Since(m.startTime).Round(time.Second).String())
	field("Tick rate", fmt.Sprintf("%.1f/s", m.status.TickRate))
	field("Content", fmt.Sprintf("%d images, %d fonts, %d sounds", m.status.Images, m.status.Fonts, m.status.Sounds))
	b.WriteString("\n")

	b.WriteString(peerHeaderStyle.Render(fmt.Sprintf("Connected Peers (%d)", len(m.status.Peers))))
	b.WriteString("\n\n")

	if len(m.status.Peers) == 0 {
		b.WriteString(valueStyle.Render("  No peers connected"))
		b.WriteString("\n")
	} else {
		for _, p := range m.status.Peers {
			input := "pointer"
			if p.Touch {
				input = "touch"
			}
			if p.TextInput {
				input += ", typing"
			}
			b.WriteString(fmt.Sprintf("  • slot %d", p.Slot))
			b.WriteString(valueStyle.Render(fmt.Sprintf(" (%s, %s)", shortSession(p.Session), input)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// NewServerTUI creates a new server TUI
func NewServerTUI(serverName string, port int) *ServerTUI {
	return &ServerTUI{
		status: ServerStatus{
			Name: serverName,
			Port: port,
		},
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until it quits or Stop is called
func (t *ServerTUI) Start() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	m := tuiModel{
		status:    t.status,
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}
	t.program = tea.NewProgram(m, tea.WithAltScreen())
	program := t.program
	t.mu.Unlock()

	_, err := program.Run()
	return err
}

// Update sends a status update to the TUI. It never blocks the caller.
func (t *ServerTUI) Update(status ServerStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	if t.program == nil || t.stopped {
		return
	}
	program := t.program
	go program.Send(statusMsg(status))
}

// Stop stops the TUI
func (t *ServerTUI) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.program != nil {
		t.program.Quit()
	}
}

// QuitChan returns the channel that signals when user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
