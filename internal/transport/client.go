// ABOUTME: WebSocket client side of the channel-multiplexed transport
// ABOUTME: Dials with exponential backoff, performs the handshake and queues frames both ways
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/anomaly-engine/anomaly/pkg/protocol"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// DialConfig tunes Dial
type DialConfig struct {
	// Retries is how many times a failed dial is retried
	Retries uint64

	// InitialInterval and MaxInterval bound the exponential backoff
	InitialInterval time.Duration
	MaxInterval     time.Duration

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	EventBuffer      int
	SendBuffer       int
}

// DefaultDialConfig returns the standard client settings
func DefaultDialConfig() DialConfig {
	return DialConfig{
		Retries:          5,
		InitialInterval:  500 * time.Millisecond,
		MaxInterval:      5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     10 * time.Second,
		EventBuffer:      1024,
		SendBuffer:       256,
	}
}

// Client is a connection to a Host
type Client struct {
	ws     *websocket.Conn
	slot   int
	config DialConfig

	events chan Event
	out    chan []byte

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newRetryBackoff(ctx context.Context, config DialConfig) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.InitialInterval
	b.MaxInterval = config.MaxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, config.Retries), ctx)
}

// Dial connects to addr ("host:port" or a ws:// URL) and performs the
// handshake, retrying transient failures. A rejected handshake is not retried.
func Dial(ctx context.Context, addr string, hello protocol.Hello, config DialConfig) (*Client, error) {
	def := DefaultDialConfig()
	if config.InitialInterval <= 0 {
		config.InitialInterval = def.InitialInterval
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = def.MaxInterval
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = def.HandshakeTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = def.EventBuffer
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = def.SendBuffer
	}
	if hello.Version == 0 {
		hello.Version = protocol.ProtocolVersion
	}

	target, err := endpoint(addr)
	if err != nil {
		return nil, err
	}

	var c *Client
	attempt := 0
	op := func() error {
		attempt++
		log.Info().Str("url", target).Int("attempt", attempt).Msg("connecting")

		dialer := websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout}
		ws, _, err := dialer.DialContext(ctx, target, nil)
		if err != nil {
			return fmt.Errorf("dial %s: %w", target, err)
		}

		slot, err := handshake(ws, hello, config)
		if err != nil {
			ws.Close()
			return backoff.Permanent(err)
		}

		c = &Client{
			ws:     ws,
			slot:   slot,
			config: config,
			events: make(chan Event, config.EventBuffer),
			out:    make(chan []byte, config.SendBuffer),
			done:   make(chan struct{}),
		}
		return nil
	}

	if err := backoff.Retry(op, newRetryBackoff(ctx, config)); err != nil {
		return nil, err
	}

	log.Info().Str("url", target).Int("slot", c.slot).Msg("connected")

	c.wg.Add(2)
	go c.reader()
	go c.writer()
	return c, nil
}

func endpoint(addr string) (string, error) {
	if addr == "" {
		return "", errors.New("transport: empty server address")
	}
	if u, err := url.Parse(addr); err == nil && (u.Scheme == "ws" || u.Scheme == "wss") {
		if u.Path == "" {
			u.Path = Path
		}
		return u.String(), nil
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: Path}
	return u.String(), nil
}

func handshake(ws *websocket.Conn, hello protocol.Hello, config DialConfig) (int, error) {
	ws.SetWriteDeadline(time.Now().Add(config.WriteTimeout))
	if err := ws.WriteMessage(websocket.BinaryMessage, protocol.EncodeHello(hello)); err != nil {
		return 0, fmt.Errorf("send hello: %w", err)
	}

	ws.SetReadDeadline(time.Now().Add(config.HandshakeTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return 0, fmt.Errorf("%w: server refused: %s", protocol.ErrBadHandshake, ce.Text)
		}
		return 0, fmt.Errorf("read welcome: %w", err)
	}
	ws.SetReadDeadline(time.Time{})

	welcome, err := protocol.DecodeWelcome(data)
	if err != nil {
		return 0, err
	}
	return int(welcome.Slot), nil
}

// Slot returns the peer index the server assigned
func (c *Client) Slot() int {
	return c.slot
}

// Poll returns the next received event without blocking. A Disconnect
// event is the last one delivered.
func (c *Client) Poll() (Event, bool) {
	select {
	case ev := <-c.events:
		return ev, true
	default:
		return Event{}, false
	}
}

// Events exposes the event queue for callers that want to block
func (c *Client) Events() <-chan Event {
	return c.events
}

// Send queues a packet for the server
func (c *Client) Send(ch protocol.Channel, payload []byte) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	select {
	case c.out <- protocol.Frame(ch, payload):
		return nil
	default:
		return ErrQueueFull
	}
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close ends the connection and waits for its goroutines
func (c *Client) Close() error {
	c.shutdown(true)
	c.wg.Wait()
	return nil
}

func (c *Client) shutdown(graceful bool) {
	c.closeOnce.Do(func() {
		close(c.done)
		if graceful {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		_ = c.ws.Close()
	})
}

func (c *Client) reader() {
	defer c.wg.Done()

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("connection lost")
			}
			c.shutdown(false)
			// the disconnect event must not be lost even when the queue is full
			pushLatest(c.events, Event{Type: EventDisconnect, Peer: c.slot})
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		ch, payload, err := protocol.SplitFrame(data)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}

		select {
		case c.events <- Event{Type: EventReceive, Peer: c.slot, Channel: ch, Data: payload}:
		case <-c.done:
		}
	}
}

func (c *Client) writer() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				log.Warn().Err(err).Msg("write failed")
				c.shutdown(false)
				return
			}
		}
	}
}

func pushLatest(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}
