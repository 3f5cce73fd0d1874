// ABOUTME: Anomaly server: fixed-tick loop over the session table and the transport
// ABOUTME: Dispatches peer events to game logic and flushes each peer's queued packets
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/anomaly-engine/anomaly/internal/content"
	"github.com/anomaly-engine/anomaly/internal/discovery"
	"github.com/anomaly-engine/anomaly/internal/script"
	"github.com/anomaly-engine/anomaly/internal/session"
	"github.com/anomaly-engine/anomaly/internal/transport"
	"github.com/anomaly-engine/anomaly/pkg/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// MinimumFrameTime is the shortest interval between two ticks
	MinimumFrameTime = 30 * time.Millisecond

	// spinThreshold is how close to the deadline the loop stops sleeping
	// and spins instead
	spinThreshold = 2 * time.Millisecond

	statusInterval = time.Second

	// updateBuffer is how many staged content updates may wait for the tick
	updateBuffer = 8
)

// Config holds server configuration
type Config struct {
	Port int
	Name string

	// FrameTime is the tick interval; values below MinimumFrameTime are raised to it
	FrameTime time.Duration

	// ReloadKey is the keycode whose down edge reloads scripts and content
	ReloadKey int32

	// Reloader tunes content rescans
	Reloader content.ReloaderConfig

	EnableMDNS bool
	UseTUI     bool
}

// DefaultConfig returns the standard server settings
func DefaultConfig() Config {
	return Config{
		Port:       7777,
		Name:       "anomaly-server",
		FrameTime:  MinimumFrameTime,
		ReloadKey:  script.KeyF5,
		Reloader:   content.DefaultReloaderConfig(),
		EnableMDNS: true,
	}
}

// Transport is what the tick needs from the network layer. *transport.Host
// implements it.
type Transport interface {
	Poll() (transport.Event, bool)
	Send(peer int, ch protocol.Channel, payload []byte) error
	Broadcast(ch protocol.Channel, payload []byte)
	Disconnect(peer int) error
}

// Option configures a Server
type Option func(*Server)

// WithTransport replaces the WebSocket host
func WithTransport(t Transport) Option {
	return func(s *Server) {
		s.transport = t
	}
}

// WithCallbacks sets the game logic at construction time
func WithCallbacks(cb script.Callbacks) Option {
	return func(s *Server) {
		s.callbacks = cb
	}
}

// Server owns the session table and runs the tick. Everything except
// Start/Serve, Shutdown and the content publisher runs on the tick goroutine.
type Server struct {
	config   Config
	serverID string

	transport Transport
	store     *content.Store
	reloader  *content.Reloader
	sessions  *session.Table
	callbacks script.Callbacks

	// set by Reload, serviced at the next tick before OnTick
	reloadPending bool

	// staged content updates, committed and broadcast by the tick
	updates chan *content.Update

	// kicked slots still owe game logic an OnPeerLeft when the transport
	// reports the disconnect
	kicked [protocol.MaxClients]bool

	ticks      uint64
	lastStatus time.Time

	tui         *ServerTUI
	mdnsManager *discovery.Manager
	startTime   time.Time
	stop        chan struct{}
	stopOnce    sync.Once
}

// New creates a server over a content store. Game logic is attached with
// WithCallbacks or SetCallbacks; until then every hook is a no-op.
func New(config Config, store *content.Store, opts ...Option) *Server {
	if config.FrameTime < MinimumFrameTime {
		config.FrameTime = MinimumFrameTime
	}
	if config.ReloadKey == 0 {
		config.ReloadKey = script.KeyF5
	}

	s := &Server{
		config:    config,
		serverID:  uuid.New().String(),
		store:     store,
		sessions:  session.NewTable(),
		callbacks: script.Nop{},
		updates:   make(chan *content.Update, updateBuffer),
		startTime: time.Now(),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transport == nil {
		s.transport = transport.NewHost(transport.DefaultConfig())
	}
	s.reloader = content.NewReloader(store, config.Reloader, s.publishContent)
	return s
}

// SetCallbacks attaches game logic. It must not be called while the tick runs.
func (s *Server) SetCallbacks(cb script.Callbacks) {
	if cb == nil {
		cb = script.Nop{}
	}
	s.callbacks = cb
}

// Sessions exposes the session table. It belongs to the tick goroutine.
func (s *Server) Sessions() *session.Table {
	return s.sessions
}

// ID returns the server instance id
func (s *Server) ID() string {
	return s.serverID
}

// publishContent runs on the reloader goroutine and hands the update to
// the tick
func (s *Server) publishContent(ctx context.Context, u *content.Update) {
	select {
	case s.updates <- u:
	case <-ctx.Done():
	}
}

// applyContent commits staged updates and broadcasts their assets. Both
// happen on the tick, so game logic can only resolve an asset whose content
// packet is already queued ahead of anything that refers to it.
func (s *Server) applyContent() {
	for {
		select {
		case u := <-s.updates:
			u.Commit()
			for _, a := range u.Assets {
				log.Info().Str("class", a.Class.String()).Str("path", a.Path).Uint32("id", a.ID).Msg("broadcasting content")
				s.transport.Broadcast(protocol.ChannelContent, protocol.EncodeContent(a.Packet()))
			}
		default:
			return
		}
	}
}

// Step runs one tick: apply staged content, drain transport events, service
// a pending reload, run game logic and flush every connected peer.
func (s *Server) Step(dt time.Duration) {
	s.applyContent()
	s.pollEvents()

	if s.reloadPending {
		s.reloadPending = false
		s.reload()
	}

	s.callbacks.OnTick(dt)
	s.flush()
	s.ticks++
}

func (s *Server) pollEvents() {
	for {
		ev, ok := s.transport.Poll()
		if !ok {
			return
		}
		s.handleEvent(ev)
	}
}

func (s *Server) handleEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventConnect:
		if err := s.sessions.Connect(ev.Peer, ev.Touch, ev.Session); err != nil {
			log.Warn().Err(err).Int("peer", ev.Peer).Msg("connect for invalid slot")
			return
		}
		s.kicked[ev.Peer] = false
		s.sendSnapshot(ev.Peer)
		s.callbacks.OnPeerJoined(ev.Peer, ev.Touch)
		s.updateTUI()

	case transport.EventDisconnect, transport.EventTimeout:
		if ev.Type == transport.EventTimeout {
			log.Info().Int("peer", ev.Peer).Msg("peer timed out")
		}
		wasOnline := s.sessions.Disconnect(ev.Peer)
		if wasOnline || s.wasKicked(ev.Peer) {
			s.callbacks.OnPeerLeft(ev.Peer)
		}
		if ev.Peer >= 0 && ev.Peer < len(s.kicked) {
			s.kicked[ev.Peer] = false
		}
		s.updateTUI()

	case transport.EventReceive:
		if !s.sessions.Online(ev.Peer) {
			return
		}
		if ev.Channel != protocol.ChannelInput {
			log.Warn().Int("peer", ev.Peer).Str("channel", ev.Channel.String()).Msg("dropping packet on server channel")
			return
		}
		in, err := protocol.DecodeInput(ev.Data)
		if err != nil {
			log.Warn().Err(err).Int("peer", ev.Peer).Msg("dropping malformed input")
			return
		}
		s.handleInput(ev.Peer, in)
	}
}

func (s *Server) wasKicked(peer int) bool {
	return peer >= 0 && peer < len(s.kicked) && s.kicked[peer]
}

// handleInput forwards one input packet. Game logic may kick the peer from
// any hook, so the remaining events are dropped once it goes offline.
func (s *Server) handleInput(peer int, in protocol.Input) {
	if err := s.sessions.SetComposition(peer, in.Composition); err != nil {
		return
	}

	for _, k := range in.Keys {
		s.callbacks.OnKeyEvent(peer, k.Key, k.Down)
		if !s.sessions.Online(peer) {
			return
		}
		if k.Key == s.config.ReloadKey && s.sessions.ReloadKey(peer, k.Down) {
			log.Info().Int("peer", peer).Msg("reload key pressed")
			s.reload()
		}
	}

	for _, p := range in.Pointers {
		s.callbacks.OnPointerEvent(peer, p.X, p.Y, p.Button, p.Type)
		if !s.sessions.Online(peer) {
			return
		}
	}
}

func (s *Server) reload() {
	s.callbacks.OnReloadRequested()
	s.reloader.Trigger()
}

// sendSnapshot replays every loaded asset to one peer. It is queued before
// any sprite frame for that peer.
func (s *Server) sendSnapshot(peer int) {
	assets := s.store.SnapshotAll()
	for _, a := range assets {
		if err := s.transport.Send(peer, protocol.ChannelContent, protocol.EncodeContent(a.Packet())); err != nil {
			log.Warn().Err(err).Int("peer", peer).Msg("content snapshot interrupted")
			return
		}
	}
	log.Debug().Int("peer", peer).Int("assets", len(assets)).Msg("content snapshot queued")
}

func (s *Server) flush() {
	for _, peer := range s.sessions.Connected() {
		b, ok := s.sessions.Drain(peer)
		if !ok {
			continue
		}
		if b.SendSprites {
			s.send(peer, protocol.ChannelSprite, protocol.EncodeSprites(b.Draws))
		}
		if len(b.Commands) > 0 {
			s.send(peer, protocol.ChannelCommand, protocol.EncodeCommands(b.Commands))
		}
		if len(b.Audio) > 0 {
			s.send(peer, protocol.ChannelAudio, protocol.EncodeAudio(b.Audio))
		}
	}
}

func (s *Server) send(peer int, ch protocol.Channel, payload []byte) {
	if err := s.transport.Send(peer, ch, payload); err != nil {
		// the transport reports the disconnect as an event
		log.Debug().Err(err).Int("peer", peer).Str("channel", ch.String()).Msg("send failed")
	}
}

// Run ticks until ctx is cancelled. Ticks never come faster than the frame
// time; the remainder is slept off coarsely and then spun.
func (s *Server) Run(ctx context.Context) error {
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		now := time.Now()
		s.Step(now.Sub(last))
		last = now

		if now.Sub(s.lastStatus) >= statusInterval {
			s.lastStatus = now
			s.updateTUI()
		}

		if !waitUntil(ctx, last.Add(s.config.FrameTime)) {
			return nil
		}
	}
}

func waitUntil(ctx context.Context, deadline time.Time) bool {
	if d := time.Until(deadline) - spinThreshold; d > 0 {
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
	for time.Now().Before(deadline) {
		runtime.Gosched()
	}
	return ctx.Err() == nil
}

// Start listens on the configured port and serves until ctx is cancelled,
// Shutdown is called or the TUI quits
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.config.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP listener, the tick, the content reloader and the
// optional mDNS advertisement and TUI on ln
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	handler, ok := s.transport.(http.Handler)
	if !ok {
		ln.Close()
		return errors.New("server: transport cannot serve HTTP")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info().Str("name", s.config.Name).Str("id", s.serverID).Str("addr", ln.Addr().String()).Msg("server starting")

	// the first scan runs before any peer can connect, so snapshots are complete
	loaded := s.store.Scan()
	log.Info().Int("assets", len(loaded)).Msg("content loaded")

	if s.config.UseTUI {
		s.tui = NewServerTUI(s.config.Name, s.config.Port)
	}
	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        transport.Path,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			log.Warn().Err(err).Msg("failed to start mDNS advertisement")
		}
	}

	mux := http.NewServeMux()
	mux.Handle(transport.Path, handler)
	httpServer := &http.Server{Handler: mux}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var tuiQuit <-chan struct{}
		if s.tui != nil {
			tuiQuit = s.tui.QuitChan()
		}

		select {
		case <-ctx.Done():
		case <-s.stop:
			log.Info().Msg("server shutting down")
		case <-tuiQuit:
			log.Info().Msg("TUI quit requested, shutting down")
		}
		cancel()

		if s.tui != nil {
			s.tui.Stop()
		}
		if s.mdnsManager != nil {
			s.mdnsManager.Stop()
		}
		if closer, ok := s.transport.(interface{ Close() }); ok {
			closer.Close()
		}

		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown error")
		}
		return nil
	})

	g.Go(func() error { return s.Run(ctx) })
	g.Go(func() error { return s.reloader.Run(ctx) })

	if s.tui != nil {
		g.Go(func() error {
			if err := s.tui.Start(); err != nil {
				log.Error().Err(err).Msg("TUI failed")
			}
			return nil
		})
	}

	err := g.Wait()
	log.Info().Msg("server stopped")
	return err
}

// Shutdown asks a running Serve to stop
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}
