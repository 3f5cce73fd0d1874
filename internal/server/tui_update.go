// ABOUTME: TUI update helpers for server
// ABOUTME: Builds a status snapshot from the tick goroutine's state
package server

import (
	"time"

	"github.com/anomaly-engine/anomaly/pkg/protocol"
)

// Status returns the current server state. Call it on the tick goroutine.
func (s *Server) Status() ServerStatus {
	uptime := time.Since(s.startTime)

	peers := make([]PeerInfo, 0, s.sessions.Count())
	for _, id := range s.sessions.Connected() {
		p, _ := s.sessions.Get(id)
		peers = append(peers, PeerInfo{
			Slot:      id,
			Session:   p.SessionID,
			Touch:     p.HasTouch,
			TextInput: p.TextInput,
		})
	}

	var rate float64
	if secs := uptime.Seconds(); secs > 0 {
		rate = float64(s.ticks) / secs
	}

	return ServerStatus{
		Name:     s.config.Name,
		Port:     s.config.Port,
		Uptime:   uptime,
		TickRate: rate,
		Peers:    peers,
		Images:   s.store.Count(protocol.ContentImage),
		Fonts:    s.store.Count(protocol.ContentFont),
		Sounds:   s.store.Count(protocol.ContentSound),
	}
}

// updateTUI sends current server state to TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Update(s.Status())
}
