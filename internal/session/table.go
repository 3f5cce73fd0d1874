// ABOUTME: Per-peer session state indexed by transport slot
// ABOUTME: Queues draws, UI commands and audio commands between flushes
package session

import (
	"github.com/anomaly-engine/anomaly/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// Peer is the server-side state of one slot. Slots are reused: Connect
// resets everything, Disconnect clears the queues.
type Peer struct {
	Connected bool
	HasTouch  bool
	SessionID string

	Draws    []protocol.DrawItem
	Commands []protocol.Command
	Audio    []protocol.AudioCommand

	Composition string
	TextInput   bool

	// reloadHeld tracks the reload key so only its down edge counts
	reloadHeld bool
	// spriteDirty is set after a non-empty sprite frame so the next tick
	// sends one empty frame to clear the client
	spriteDirty bool
}

// Batch is one peer's drained queues
type Batch struct {
	Draws    []protocol.DrawItem
	Commands []protocol.Command
	Audio    []protocol.AudioCommand

	// SendSprites is true when a sprite frame must go out, even an empty one
	SendSprites bool
}

// Table is an arena of peers indexed by slot. It is owned by the tick
// goroutine and is not safe for concurrent use.
type Table struct {
	peers [protocol.MaxClients]Peer
}

// NewTable creates a table with every slot offline
func NewTable() *Table {
	return &Table{}
}

func (t *Table) peer(id int) *Peer {
	if id < 0 || id >= len(t.peers) {
		return nil
	}
	return &t.peers[id]
}

func (t *Table) online(id int) (*Peer, error) {
	p := t.peer(id)
	if p == nil || !p.Connected {
		return nil, NotOnline(id)
	}
	return p, nil
}

// Connect marks a slot connected, discarding anything left from a previous occupant
func (t *Table) Connect(id int, hasTouch bool, sessionID string) error {
	p := t.peer(id)
	if p == nil {
		return NotOnline(id)
	}
	*p = Peer{
		Connected: true,
		HasTouch:  hasTouch,
		SessionID: sessionID,
	}
	log.Info().Int("peer", id).Str("session", sessionID).Bool("touch", hasTouch).Msg("peer connected")
	return nil
}

// Disconnect marks a slot offline and discards its queues. It reports
// whether the slot was connected.
func (t *Table) Disconnect(id int) bool {
	p := t.peer(id)
	if p == nil || !p.Connected {
		return false
	}
	log.Info().Int("peer", id).Str("session", p.SessionID).Msg("peer disconnected")
	*p = Peer{}
	return true
}

// Online reports whether a slot is connected
func (t *Table) Online(id int) bool {
	p := t.peer(id)
	return p != nil && p.Connected
}

// Get returns a copy of a slot's state
func (t *Table) Get(id int) (Peer, bool) {
	p := t.peer(id)
	if p == nil {
		return Peer{}, false
	}
	return *p, p.Connected
}

// Connected returns the connected slots in ascending order
func (t *Table) Connected() []int {
	var ids []int
	for i := range t.peers {
		if t.peers[i].Connected {
			ids = append(ids, i)
		}
	}
	return ids
}

// Count returns the number of connected peers
func (t *Table) Count() int {
	n := 0
	for i := range t.peers {
		if t.peers[i].Connected {
			n++
		}
	}
	return n
}

// EnqueueDraw appends a draw item to a peer's next sprite frame
func (t *Table) EnqueueDraw(id int, item protocol.DrawItem) error {
	p, err := t.online(id)
	if err != nil {
		return err
	}
	p.Draws = append(p.Draws, item)
	return nil
}

// EnqueueCommand appends a UI command and tracks the text input state it implies
func (t *Table) EnqueueCommand(id int, cmd protocol.Command) error {
	p, err := t.online(id)
	if err != nil {
		return err
	}
	p.Commands = append(p.Commands, cmd)
	switch cmd {
	case protocol.CommandStartTextInput:
		p.TextInput = true
	case protocol.CommandStopTextInput:
		p.TextInput = false
	}
	return nil
}

// EnqueueAudio appends an audio command
func (t *Table) EnqueueAudio(id int, cmd protocol.AudioCommand) error {
	p, err := t.online(id)
	if err != nil {
		return err
	}
	p.Audio = append(p.Audio, cmd)
	return nil
}

// SetComposition replaces a peer's text composition
func (t *Table) SetComposition(id int, text string) error {
	p, err := t.online(id)
	if err != nil {
		return err
	}
	p.Composition = text
	return nil
}

// Composition returns a peer's current text composition
func (t *Table) Composition(id int) (string, error) {
	p, err := t.online(id)
	if err != nil {
		return "", err
	}
	return p.Composition, nil
}

// ReloadKey records the state of the reload key and reports whether this
// event is a down edge
func (t *Table) ReloadKey(id int, down bool) bool {
	p, err := t.online(id)
	if err != nil {
		return false
	}
	edge := down && !p.reloadHeld
	p.reloadHeld = down
	return edge
}

// Drain empties a peer's queues and returns what was in them. Sprite frames
// go out whenever draws are queued, and once more with no items after a
// non-empty frame so the client clears what it shows. ok is false for an
// offline slot.
func (t *Table) Drain(id int) (b Batch, ok bool) {
	p := t.peer(id)
	if p == nil || !p.Connected {
		return Batch{}, false
	}

	b = Batch{
		Draws:    p.Draws,
		Commands: p.Commands,
		Audio:    p.Audio,
	}
	b.SendSprites = len(p.Draws) > 0 || p.spriteDirty
	p.spriteDirty = len(p.Draws) > 0

	p.Draws = nil
	p.Commands = nil
	p.Audio = nil
	return b, true
}
