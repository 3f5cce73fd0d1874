// ABOUTME: Anomaly client application orchestration
// ABOUTME: Connects to a server, feeds content to the frontend and mixer, and sends batched input
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/anomaly-engine/anomaly/internal/discovery"
	"github.com/anomaly-engine/anomaly/internal/mixer"
	"github.com/anomaly-engine/anomaly/internal/transport"
	"github.com/anomaly-engine/anomaly/pkg/audio/output"
	"github.com/anomaly-engine/anomaly/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// ErrServerClosed is returned by Run when the server ends the connection
var ErrServerClosed = errors.New("server closed the connection")

// Frontend is the display and input device. Load and Present calls come
// from the client goroutine; Input is polled once per frame.
type Frontend interface {
	LoadImage(id uint32, data []byte) error
	LoadFont(id uint32, data []byte) error

	// Present shows a complete frame, replacing the previous one
	Present(items []protocol.DrawItem)

	SetTextInput(active bool)

	// Input returns the events gathered since the last call and the full
	// current composition
	Input() protocol.Input

	// Done is closed when the user quits
	Done() <-chan struct{}
}

// Config holds client configuration
type Config struct {
	// ServerAddr is host:port or a ws:// URL; empty browses with mDNS
	ServerAddr string
	Touch      bool

	// FrameInterval paces input polling
	FrameInterval time.Duration

	Dial             transport.DialConfig
	DiscoveryTimeout time.Duration

	// OnStateChange is called when the connection state changes
	OnStateChange func(State)
}

// State describes the connection for status displays
type State struct {
	Connected bool
	Server    string
	Slot      int
}

// Stats counts what the client has received
type Stats struct {
	Frames   uint64
	Content  uint64
	Commands uint64
	Audio    uint64
	Dropped  uint64
}

// Client is one connection to an Anomaly server
type Client struct {
	config   Config
	frontend Frontend
	mixer    *mixer.Mixer
	output   output.Output

	lastComposition string

	frames   atomic.Uint64
	content  atomic.Uint64
	commands atomic.Uint64
	audio    atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a client. out may be nil to run without sound.
func New(config Config, frontend Frontend, out output.Output) *Client {
	if config.FrameInterval <= 0 {
		config.FrameInterval = 16 * time.Millisecond
	}
	if config.DiscoveryTimeout <= 0 {
		config.DiscoveryTimeout = 10 * time.Second
	}
	return &Client{
		config:   config,
		frontend: frontend,
		mixer:    mixer.New(),
		output:   out,
	}
}

// Mixer exposes the client's mixer
func (c *Client) Mixer() *mixer.Mixer {
	return c.mixer
}

// Stats returns a snapshot of the receive counters
func (c *Client) Stats() Stats {
	return Stats{
		Frames:   c.frames.Load(),
		Content:  c.content.Load(),
		Commands: c.commands.Load(),
		Audio:    c.audio.Load(),
		Dropped:  c.dropped.Load(),
	}
}

func (c *Client) notify(s State) {
	if c.config.OnStateChange != nil {
		c.config.OnStateChange(s)
	}
}

// resolve finds the server address, browsing with mDNS when none is configured
func (c *Client) resolve(ctx context.Context) (string, error) {
	if c.config.ServerAddr != "" {
		return c.config.ServerAddr, nil
	}

	log.Info().Msg("starting server discovery")
	disc := discovery.NewManager(discovery.Config{})
	defer disc.Stop()

	ctx, cancel := context.WithTimeout(ctx, c.config.DiscoveryTimeout)
	defer cancel()

	server, err := disc.First(ctx)
	if err != nil {
		return "", err
	}
	log.Info().Str("name", server.Name).Str("addr", server.Addr()).Msg("discovered server")
	return "ws://" + server.Addr() + server.Path, nil
}

// Run connects and services the connection until ctx is cancelled, the
// frontend quits or the server goes away
func (c *Client) Run(ctx context.Context) error {
	addr, err := c.resolve(ctx)
	if err != nil {
		return err
	}

	conn, err := transport.Dial(ctx, addr, protocol.Hello{Touch: c.config.Touch}, c.config.Dial)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Close()

	if c.output != nil {
		if err := c.output.Open(mixer.SampleRate, mixer.Channels, c.mixer); err != nil {
			log.Error().Err(err).Msg("audio output unavailable, continuing without sound")
		} else {
			defer c.output.Close()
		}
	}

	c.notify(State{Connected: true, Server: addr, Slot: conn.Slot()})
	defer c.notify(State{Server: addr})

	return c.loop(ctx, conn)
}

// link is the part of transport.Client the loop uses
type link interface {
	Events() <-chan transport.Event
	Send(ch protocol.Channel, payload []byte) error
}

func (c *Client) loop(ctx context.Context, conn link) error {
	ticker := time.NewTicker(c.config.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-c.frontend.Done():
			log.Info().Msg("frontend closed")
			return nil

		case ev := <-conn.Events():
			if ev.Type == transport.EventDisconnect {
				if ctx.Err() != nil {
					return nil
				}
				return ErrServerClosed
			}
			if err := c.handlePacket(ev.Channel, ev.Data); err != nil {
				c.dropped.Add(1)
				log.Warn().Err(err).Str("channel", ev.Channel.String()).Msg("dropping packet")
			}

		case <-ticker.C:
			if err := c.sendInput(conn); err != nil {
				log.Warn().Err(err).Msg("input not sent")
			}
		}
	}
}

// handlePacket applies one server packet. A malformed packet is rejected
// whole.
func (c *Client) handlePacket(ch protocol.Channel, data []byte) error {
	switch ch {
	case protocol.ChannelContent:
		content, err := protocol.DecodeContent(data)
		if err != nil {
			return err
		}
		c.content.Add(1)
		return c.loadContent(content)

	case protocol.ChannelSprite:
		items, err := protocol.DecodeSprites(data)
		if err != nil {
			return err
		}
		c.frames.Add(1)
		c.frontend.Present(items)

	case protocol.ChannelCommand:
		cmds, err := protocol.DecodeCommands(data)
		if err != nil {
			return err
		}
		for _, cmd := range cmds {
			c.commands.Add(1)
			switch cmd {
			case protocol.CommandStartTextInput:
				c.frontend.SetTextInput(true)
			case protocol.CommandStopTextInput:
				c.frontend.SetTextInput(false)
			default:
				log.Debug().Str("command", cmd.String()).Msg("unknown command")
			}
		}

	case protocol.ChannelAudio:
		cmds, err := protocol.DecodeAudio(data)
		if err != nil {
			return err
		}
		for _, cmd := range cmds {
			c.audio.Add(1)
			c.mixer.Issue(cmd)
		}

	default:
		return fmt.Errorf("unexpected channel %s", ch)
	}
	return nil
}

func (c *Client) loadContent(content protocol.Content) error {
	log.Debug().Str("class", content.Type.String()).Uint32("id", content.ID).Int("bytes", len(content.Data)).Msg("content received")

	switch content.Type {
	case protocol.ContentImage:
		return c.frontend.LoadImage(content.ID, content.Data)
	case protocol.ContentFont:
		return c.frontend.LoadFont(content.ID, content.Data)
	case protocol.ContentSound:
		return c.mixer.LoadSound(content.ID, content.Data)
	default:
		return fmt.Errorf("unknown content type %s", content.Type)
	}
}

// sendInput sends one input packet if there are events or the composition changed
func (c *Client) sendInput(conn link) error {
	in := c.frontend.Input()
	if in.Empty() && in.Composition == c.lastComposition {
		return nil
	}
	c.lastComposition = in.Composition
	return conn.Send(protocol.ChannelInput, protocol.EncodeInput(in))
}
