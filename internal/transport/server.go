// ABOUTME: WebSocket host giving every client a stable slot and a channel-multiplexed stream
// ABOUTME: Produces connect/disconnect/receive events for the tick loop to poll
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anomaly-engine/anomaly/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Path is the HTTP path the host serves
	Path = "/anomaly"

	// MaxMessageSize bounds a single client message
	MaxMessageSize = 1 << 20
)

var (
	// ErrNotConnected is returned when sending to a free slot
	ErrNotConnected = errors.New("transport: peer not connected")

	// ErrQueueFull is returned when a peer's per-tick reliable traffic
	// overflows SendBuffer. The peer is disconnected.
	ErrQueueFull = errors.New("transport: send queue full")

	// ErrClosed is returned after the host is closed
	ErrClosed = errors.New("transport: host closed")
)

// EventType says what happened to a peer
type EventType uint8

const (
	EventConnect EventType = iota
	EventDisconnect
	EventTimeout
	EventReceive
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventTimeout:
		return "timeout"
	case EventReceive:
		return "receive"
	default:
		return fmt.Sprintf("event(%d)", uint8(t))
	}
}

// Event is one transport occurrence. Touch and Session are set on
// connect; Channel and Data on receive.
type Event struct {
	Type    EventType
	Peer    int
	Session string
	Touch   bool
	Channel protocol.Channel
	Data    []byte
}

// Config tunes the host
type Config struct {
	MaxPeers    int
	EventBuffer int

	// SendBuffer caps the command and audio frames waiting for one peer.
	// Content frames are not counted and are never refused.
	SendBuffer       int
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the standard host settings
func DefaultConfig() Config {
	return Config{
		MaxPeers:         protocol.MaxClients,
		EventBuffer:      1024,
		SendBuffer:       256,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 5 * time.Second,
	}
}

// Host accepts WebSocket clients on Path and multiplexes channels over them.
// Poll, Send, Broadcast and Disconnect are safe for concurrent use.
type Host struct {
	config   Config
	upgrader websocket.Upgrader
	events   chan Event

	mu     sync.Mutex
	peers  []*peerConn
	closed bool
	done   chan struct{}
}

type peerConn struct {
	slot    int
	session string
	ws      *websocket.Conn
	config  *Config

	reliable *outbox
	sprite   chan []byte

	done      chan struct{}
	closeOnce sync.Once
	kicked    atomic.Bool
}

// NewHost creates a host. Zero config fields take their defaults.
func NewHost(config Config) *Host {
	def := DefaultConfig()
	if config.MaxPeers <= 0 || config.MaxPeers > protocol.MaxClients {
		config.MaxPeers = def.MaxPeers
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = def.EventBuffer
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = def.SendBuffer
	}
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = def.HandshakeTimeout
	}

	return &Host{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Non-browser clients send no Origin; browsers on the LAN are accepted too
				if origin := r.Header.Get("Origin"); origin != "" {
					log.Debug().Str("origin", origin).Msg("accepting websocket origin")
				}
				return true
			},
		},
		events: make(chan Event, config.EventBuffer),
		peers:  make([]*peerConn, config.MaxPeers),
		done:   make(chan struct{}),
	}
}

// Poll returns the next pending event without blocking
func (h *Host) Poll() (Event, bool) {
	select {
	case ev := <-h.events:
		return ev, true
	default:
		return Event{}, false
	}
}

// Events exposes the event queue for callers that want to block
func (h *Host) Events() <-chan Event {
	return h.events
}

// Connected returns the number of occupied slots
func (h *Host) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, p := range h.peers {
		if p != nil {
			n++
		}
	}
	return n
}

func (h *Host) get(slot int) *peerConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	if slot < 0 || slot >= len(h.peers) {
		return nil
	}
	return h.peers[slot]
}

// Send queues one packet for a peer. Reliable channels are written in order;
// the sprite channel keeps only the newest unsent frame.
func (h *Host) Send(slot int, ch protocol.Channel, payload []byte) error {
	p := h.get(slot)
	if p == nil {
		return ErrNotConnected
	}
	return p.send(ch, protocol.Frame(ch, payload))
}

// Broadcast queues one packet for every connected peer
func (h *Host) Broadcast(ch protocol.Channel, payload []byte) {
	frame := protocol.Frame(ch, payload)

	h.mu.Lock()
	peers := make([]*peerConn, 0, len(h.peers))
	for _, p := range h.peers {
		if p != nil {
			peers = append(peers, p)
		}
	}
	h.mu.Unlock()

	for _, p := range peers {
		if err := p.send(ch, frame); err != nil {
			log.Warn().Err(err).Int("peer", p.slot).Str("channel", ch.String()).Msg("broadcast dropped")
		}
	}
}

// Disconnect closes a peer's connection. A disconnect event follows once
// its reader has stopped.
func (h *Host) Disconnect(slot int) error {
	p := h.get(slot)
	if p == nil {
		return ErrNotConnected
	}
	select {
	case <-p.done:
		return ErrNotConnected
	default:
	}
	p.kicked.Store(true)
	p.close(websocket.CloseNormalClosure, "kicked")
	return nil
}

// Close disconnects every peer and refuses new connections
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.done)
	peers := append([]*peerConn(nil), h.peers...)
	h.mu.Unlock()

	for _, p := range peers {
		if p != nil {
			p.close(websocket.CloseGoingAway, "server shutting down")
		}
	}
}

func (h *Host) emit(ev Event) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

func (h *Host) acquire(session string, ws *websocket.Conn) (*peerConn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	for slot, existing := range h.peers {
		if existing != nil {
			continue
		}
		p := &peerConn{
			slot:     slot,
			session:  session,
			ws:       ws,
			config:   &h.config,
			reliable: newOutbox(h.config.SendBuffer),
			sprite:   make(chan []byte, 1),
			done:     make(chan struct{}),
		}
		h.peers[slot] = p
		return p, nil
	}
	return nil, errors.New("server full")
}

func (h *Host) release(p *peerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.peers[p.slot] == p {
		h.peers[p.slot] = nil
	}
}

// ServeHTTP upgrades the request and runs the connection until it ends
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()
	ws.SetReadLimit(MaxMessageSize)

	hello, err := h.handshake(ws)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake rejected")
		reject(ws, err.Error())
		return
	}

	session := uuid.New().String()
	p, err := h.acquire(session, ws)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("connection refused")
		reject(ws, err.Error())
		return
	}

	ws.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	welcome := protocol.EncodeWelcome(protocol.Welcome{Version: protocol.ProtocolVersion, Slot: uint16(p.slot)})
	if err := ws.WriteMessage(websocket.BinaryMessage, welcome); err != nil {
		log.Warn().Err(err).Int("peer", p.slot).Msg("failed to send welcome")
		h.release(p)
		return
	}

	log.Info().
		Int("peer", p.slot).
		Str("session", session).
		Str("remote", r.RemoteAddr).
		Bool("touch", hello.Touch).
		Msg("client connected")

	h.emit(Event{Type: EventConnect, Peer: p.slot, Session: session, Touch: hello.Touch})

	go p.writer()
	reason := p.reader(h)

	p.close(websocket.CloseNormalClosure, "")
	h.emit(Event{Type: reason, Peer: p.slot, Session: session})
	h.release(p)

	log.Info().Int("peer", p.slot).Str("session", session).Str("reason", reason.String()).Msg("client disconnected")
}

func (h *Host) handshake(ws *websocket.Conn) (protocol.Hello, error) {
	ws.SetReadDeadline(time.Now().Add(h.config.HandshakeTimeout))
	msgType, data, err := ws.ReadMessage()
	if err != nil {
		return protocol.Hello{}, fmt.Errorf("read hello: %w", err)
	}
	if msgType != websocket.BinaryMessage {
		return protocol.Hello{}, fmt.Errorf("%w: expected binary hello", protocol.ErrBadHandshake)
	}
	return protocol.DecodeHello(data)
}

func reject(ws *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// reader forwards frames until the connection fails and reports why it ended
func (p *peerConn) reader(h *Host) EventType {
	timeout := p.config.ReadTimeout
	p.ws.SetReadDeadline(time.Now().Add(timeout))
	p.ws.SetPongHandler(func(string) error {
		return p.ws.SetReadDeadline(time.Now().Add(timeout))
	})

	for {
		msgType, data, err := p.ws.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() && !p.kicked.Load() {
				return EventTimeout
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !p.kicked.Load() {
				log.Debug().Err(err).Int("peer", p.slot).Msg("websocket read error")
			}
			return EventDisconnect
		}
		p.ws.SetReadDeadline(time.Now().Add(timeout))

		if msgType != websocket.BinaryMessage {
			continue
		}
		ch, payload, err := protocol.SplitFrame(data)
		if err != nil {
			log.Warn().Err(err).Int("peer", p.slot).Msg("dropping malformed frame")
			continue
		}
		if ch != protocol.ChannelInput {
			log.Warn().Int("peer", p.slot).Str("channel", ch.String()).Msg("dropping frame on server-only channel")
			continue
		}
		h.emit(Event{Type: EventReceive, Peer: p.slot, Session: p.session, Channel: ch, Data: payload})
	}
}

func (p *peerConn) send(ch protocol.Channel, frame []byte) error {
	select {
	case <-p.done:
		return ErrNotConnected
	default:
	}

	if !ch.Reliable() {
		sendLatest(p.sprite, frame)
		return nil
	}

	// content is bounded by the asset set, so only per-tick traffic can overflow
	if p.reliable.push(frame, ch != protocol.ChannelContent) {
		return nil
	}
	log.Warn().Int("peer", p.slot).Str("channel", ch.String()).Msg("send queue full, disconnecting")
	p.close(websocket.CloseTryAgainLater, "send queue full")
	return ErrQueueFull
}

// sendLatest replaces an unsent frame with a newer one
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

// writer owns all writes to the connection
func (p *peerConn) writer() {
	ticker := time.NewTicker(p.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return

		case <-p.reliable.ready:
			if !p.flush() {
				return
			}

		case frame := <-p.sprite:
			// reliable data queued before this frame goes out first
			if !p.flush() {
				return
			}
			if !p.write(frame) {
				return
			}

		case <-ticker.C:
			if err := p.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(p.config.WriteTimeout)); err != nil {
				p.close(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

// flush writes every waiting reliable frame in order
func (p *peerConn) flush() bool {
	for _, frame := range p.reliable.take() {
		if !p.write(frame) {
			return false
		}
	}
	return true
}

func (p *peerConn) write(frame []byte) bool {
	p.ws.SetWriteDeadline(time.Now().Add(p.config.WriteTimeout))
	if err := p.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		log.Debug().Err(err).Int("peer", p.slot).Msg("websocket write failed")
		p.close(websocket.CloseAbnormalClosure, "")
		return false
	}
	return true
}

// close stops the writer and unblocks the reader
func (p *peerConn) close(code int, reason string) {
	p.closeOnce.Do(func() {
		close(p.done)
		if code != websocket.CloseAbnormalClosure {
			msg := websocket.FormatCloseMessage(code, reason)
			_ = p.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		// closing the socket makes the reader's ReadMessage return
		_ = p.ws.UnderlyingConn().Close()
	})
}
