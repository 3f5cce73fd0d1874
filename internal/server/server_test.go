// ABOUTME: Tests for the server tick and the game logic API
// ABOUTME: A fake transport records packets; a real host covers the served path
package server

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/anomaly-engine/anomaly/internal/content"
	"github.com/anomaly-engine/anomaly/internal/script"
	"github.com/anomaly-engine/anomaly/internal/session"
	"github.com/anomaly-engine/anomaly/internal/transport"
	"github.com/anomaly-engine/anomaly/pkg/audio"
	"github.com/anomaly-engine/anomaly/pkg/audio/encode"
	"github.com/anomaly-engine/anomaly/pkg/protocol"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type packet struct {
	peer    int
	channel protocol.Channel
	data    []byte
}

type fakeTransport struct {
	mu           sync.Mutex
	events       []transport.Event
	sent         []packet
	broadcasts   []packet
	disconnected []int
}

func (f *fakeTransport) push(evs ...transport.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evs...)
}

func (f *fakeTransport) Poll() (transport.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return transport.Event{}, false
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, true
}

func (f *fakeTransport) Send(peer int, ch protocol.Channel, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, packet{peer: peer, channel: ch, data: payload})
	return nil
}

func (f *fakeTransport) Broadcast(ch protocol.Channel, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, packet{peer: -1, channel: ch, data: payload})
}

func (f *fakeTransport) Disconnect(peer int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, peer)
	return nil
}

// take returns and clears the packets sent so far
func (f *fakeTransport) take() []packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

func channels(packets []packet) []protocol.Channel {
	out := make([]protocol.Channel, len(packets))
	for i, p := range packets {
		out[i] = p.channel
	}
	return out
}

// recorder logs every hook call and runs an optional per-tick function
type recorder struct {
	calls  []string
	onTick func()
	onKey  func(peer int, key int32, down bool)
}

func (r *recorder) OnTick(time.Duration) {
	r.calls = append(r.calls, "tick")
	if r.onTick != nil {
		r.onTick()
	}
}

func (r *recorder) OnPeerJoined(peer int, touch bool) {
	r.calls = append(r.calls, fmt.Sprintf("join %d %v", peer, touch))
}

func (r *recorder) OnPeerLeft(peer int) {
	r.calls = append(r.calls, fmt.Sprintf("left %d", peer))
}

func (r *recorder) OnKeyEvent(peer int, key int32, down bool) {
	r.calls = append(r.calls, fmt.Sprintf("key %d %d %v", peer, key, down))
	if r.onKey != nil {
		r.onKey(peer, key, down)
	}
}

func (r *recorder) OnPointerEvent(peer int, x, y float32, button uint8, typ protocol.PointerType) {
	r.calls = append(r.calls, fmt.Sprintf("pointer %d %g %g %d %s", peer, x, y, button, typ))
}

func (r *recorder) OnReloadRequested() {
	r.calls = append(r.calls, "reload")
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

var testRoots = content.Roots{
	Images: "/content/images",
	Fonts:  "/content/fonts",
	Sounds: "/content/sounds",
}

func testStore(t *testing.T) *content.Store {
	t.Helper()
	fs := afero.NewMemMapFs()

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 24, 8))))
	require.NoError(t, afero.WriteFile(fs, "/content/images/hero.png", img.Bytes(), 0644))

	font := append([]byte{0, 1, 0, 0}, make([]byte, 12)...)
	require.NoError(t, afero.WriteFile(fs, "/content/fonts/mono.ttf", font, 0644))

	wav, err := encode.WAV(audio.Buffer{
		Samples: []int32{0, 0, 0, 0},
		Format:  audio.Format{SampleRate: 44100, Channels: 2},
	}, 16)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/content/sounds/beep.wav", wav, 0644))

	store := content.New(fs, testRoots)
	require.Len(t, store.Scan(), 3)
	return store
}

func newTestServer(t *testing.T) (*Server, *fakeTransport, *recorder) {
	t.Helper()
	ft := &fakeTransport{}
	rec := &recorder{}
	srv := New(Config{Name: "test"}, testStore(t), WithTransport(ft), WithCallbacks(rec))
	return srv, ft, rec
}

func connect(srv *Server, ft *fakeTransport, peer int, touch bool) {
	ft.push(transport.Event{Type: transport.EventConnect, Peer: peer, Touch: touch, Session: fmt.Sprintf("session-%d", peer)})
	srv.Step(MinimumFrameTime)
}

func input(peer int, in protocol.Input) transport.Event {
	return transport.Event{Type: transport.EventReceive, Peer: peer, Channel: protocol.ChannelInput, Data: protocol.EncodeInput(in)}
}

func TestJoinSendsSnapshotBeforeSprites(t *testing.T) {
	srv, ft, rec := newTestServer(t)
	rec.onTick = func() {
		for _, peer := range srv.Sessions().Connected() {
			require.NoError(t, srv.DrawSprite(peer, "hero.png", 1, 2, 1))
		}
	}

	connect(srv, ft, 0, true)

	sent := ft.take()
	assert.Equal(t, []protocol.Channel{
		protocol.ChannelContent,
		protocol.ChannelContent,
		protocol.ChannelContent,
		protocol.ChannelSprite,
	}, channels(sent))

	first, err := protocol.DecodeContent(sent[0].data)
	require.NoError(t, err)
	assert.Equal(t, protocol.ContentImage, first.Type)
	assert.Equal(t, uint32(1), first.ID)

	items, err := protocol.DecodeSprites(sent[3].data)
	require.NoError(t, err)
	assert.Equal(t, []protocol.DrawItem{protocol.Image{AssetID: 1, X: 1, Y: 2, Scale: 1}}, items)

	assert.Equal(t, []string{"join 0 true", "tick"}, rec.calls)
}

func TestReloadKeyDownEdgeTriggersOnce(t *testing.T) {
	srv, ft, rec := newTestServer(t)
	connect(srv, ft, 0, false)

	ft.push(input(0, protocol.Input{Keys: []protocol.KeyEvent{
		{Key: script.KeyF5, Down: true},
		{Key: script.KeyF5, Down: true},
	}}))
	srv.Step(MinimumFrameTime)
	assert.Equal(t, 1, rec.count("reload"))

	ft.push(input(0, protocol.Input{Keys: []protocol.KeyEvent{{Key: script.KeyF5, Down: false}}}))
	srv.Step(MinimumFrameTime)
	assert.Equal(t, 1, rec.count("reload"), "key up does not reload")

	ft.push(input(0, protocol.Input{Keys: []protocol.KeyEvent{{Key: script.KeyF5, Down: true}}}))
	srv.Step(MinimumFrameTime)
	assert.Equal(t, 2, rec.count("reload"))

	assert.Equal(t, 4, rec.count(fmt.Sprintf("key 0 %d true", script.KeyF5))+rec.count(fmt.Sprintf("key 0 %d false", script.KeyF5)),
		"the reload key is still forwarded")
}

func TestCustomReloadKey(t *testing.T) {
	ft := &fakeTransport{}
	rec := &recorder{}
	srv := New(Config{ReloadKey: script.KeyF12}, testStore(t), WithTransport(ft), WithCallbacks(rec))
	connect(srv, ft, 0, false)

	ft.push(input(0, protocol.Input{Keys: []protocol.KeyEvent{{Key: script.KeyF5, Down: true}}}))
	srv.Step(MinimumFrameTime)
	assert.Zero(t, rec.count("reload"))

	ft.push(input(0, protocol.Input{Keys: []protocol.KeyEvent{{Key: script.KeyF12, Down: true}}}))
	srv.Step(MinimumFrameTime)
	assert.Equal(t, 1, rec.count("reload"))
}

func TestEmptySpriteFrameAfterDraws(t *testing.T) {
	srv, ft, rec := newTestServer(t)
	connect(srv, ft, 0, false)
	ft.take()

	draw := true
	rec.onTick = func() {
		if draw {
			require.NoError(t, srv.DrawText(0, "mono.ttf", 3, 4, 2, 255, 0, 0, "A"))
		}
	}

	srv.Step(MinimumFrameTime)
	sent := ft.take()
	require.Len(t, sent, 1)
	items, err := protocol.DecodeSprites(sent[0].data)
	require.NoError(t, err)
	assert.Equal(t, []protocol.DrawItem{protocol.Text{FontID: 1, X: 3, Y: 4, Scale: 2, R: 255, Text: "A"}}, items)

	draw = false
	srv.Step(MinimumFrameTime)
	sent = ft.take()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.ChannelSprite, sent[0].channel)
	items, err = protocol.DecodeSprites(sent[0].data)
	require.NoError(t, err)
	assert.Empty(t, items)

	srv.Step(MinimumFrameTime)
	assert.Empty(t, ft.take(), "idle peers get no packets")
}

func TestCommandsAndAudioAreFlushedPerTick(t *testing.T) {
	srv, ft, rec := newTestServer(t)
	connect(srv, ft, 2, false)
	ft.take()

	rec.onTick = func() {
		require.NoError(t, srv.StartTextInput(2))
		require.NoError(t, srv.Play(2, "beep.wav", 100, 3))
		require.NoError(t, srv.PlayAny(2, "beep.wav", 128))
		require.NoError(t, srv.Stop(2, 31))
		require.NoError(t, srv.StopAll(2))
	}
	srv.Step(MinimumFrameTime)

	sent := ft.take()
	require.Equal(t, []protocol.Channel{protocol.ChannelCommand, protocol.ChannelAudio}, channels(sent))

	cmds, err := protocol.DecodeCommands(sent[0].data)
	require.NoError(t, err)
	assert.Equal(t, []protocol.Command{protocol.CommandStartTextInput}, cmds)

	audioCmds, err := protocol.DecodeAudio(sent[1].data)
	require.NoError(t, err)
	assert.Equal(t, []protocol.AudioCommand{
		{SoundID: 1, Channel: 3, Volume: 100, Kind: protocol.AudioPlay},
		{SoundID: 1, Volume: 128, Kind: protocol.AudioPlayAny},
		{Channel: 31, Kind: protocol.AudioStop},
		{Kind: protocol.AudioStopAll},
	}, audioCmds)
}

func TestAPIErrorCodes(t *testing.T) {
	srv, ft, _ := newTestServer(t)
	connect(srv, ft, 0, false)

	tests := []struct {
		name string
		call func() error
		code session.Code
	}{
		{"offline draw", func() error { return srv.DrawSprite(5, "hero.png", 0, 0, 1) }, session.CodeNotOnline},
		{"out of range peer", func() error { return srv.StartTextInput(99) }, session.CodeNotOnline},
		{"offline composition", func() error { _, err := srv.Composition(3); return err }, session.CodeNotOnline},
		{"unknown image", func() error { return srv.DrawSprite(0, "nope.png", 0, 0, 1) }, session.CodeNotLoaded},
		{"unknown font", func() error { return srv.DrawText(0, "nope.ttf", 0, 0, 1, 0, 0, 0, "x") }, session.CodeNotLoaded},
		{"unknown sound", func() error { return srv.PlayAny(0, "nope.wav", 10) }, session.CodeNotLoaded},
		{"volume too loud", func() error { return srv.Play(0, "beep.wav", 129, 0) }, session.CodeInvalidArgument},
		{"negative volume", func() error { return srv.PlayAny(0, "beep.wav", -1) }, session.CodeInvalidArgument},
		{"play on pooled channel", func() error { return srv.Play(0, "beep.wav", 10, 16) }, session.CodeInvalidArgument},
		{"stop past last channel", func() error { return srv.Stop(0, 32) }, session.CodeInvalidArgument},
		{"kick offline", func() error { return srv.Kick(7) }, session.CodeNotOnline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, tt.code, session.CodeOf(err))
		})
	}

	batch, ok := srv.Sessions().Drain(0)
	require.True(t, ok)
	assert.Empty(t, batch.Draws)
	assert.Empty(t, batch.Audio)
}

func TestAssetPathsAreNormalized(t *testing.T) {
	srv, ft, _ := newTestServer(t)
	connect(srv, ft, 0, false)

	assert.NoError(t, srv.DrawSprite(0, "./hero.png", 0, 0, 1))
	assert.NoError(t, srv.DrawSprite(0, `\hero.png`, 0, 0, 1))
	assert.Equal(t, 24, srv.SpriteWidth("hero.png"))
	assert.Zero(t, srv.SpriteWidth("nope.png"))
}

func TestKickDefersPeerLeftToTransport(t *testing.T) {
	srv, ft, rec := newTestServer(t)
	connect(srv, ft, 1, false)

	require.NoError(t, srv.Kick(1))
	assert.Equal(t, []int{1}, ft.disconnected)
	assert.False(t, srv.Sessions().Online(1))
	assert.Zero(t, rec.count("left 1"))
	assert.Equal(t, session.CodeNotOnline, session.CodeOf(srv.StartTextInput(1)))

	ft.push(transport.Event{Type: transport.EventDisconnect, Peer: 1})
	srv.Step(MinimumFrameTime)
	assert.Equal(t, 1, rec.count("left 1"))

	// a second disconnect for the same slot is not reported again
	ft.push(transport.Event{Type: transport.EventDisconnect, Peer: 1})
	srv.Step(MinimumFrameTime)
	assert.Equal(t, 1, rec.count("left 1"))
}

func TestKickDuringInputDropsRemainingEvents(t *testing.T) {
	srv, ft, rec := newTestServer(t)
	connect(srv, ft, 0, false)
	rec.onKey = func(peer int, key int32, down bool) {
		require.NoError(t, srv.Kick(peer))
	}

	ft.push(input(0, protocol.Input{
		Keys:     []protocol.KeyEvent{{Key: 97, Down: true}, {Key: 98, Down: true}},
		Pointers: []protocol.PointerEvent{{X: 1, Y: 1, Button: 1, Type: protocol.PointerDown}},
	}))
	srv.Step(MinimumFrameTime)

	assert.Equal(t, 1, rec.count("key 0 97 true"))
	assert.Zero(t, rec.count("key 0 98 true"))
	for _, c := range rec.calls {
		assert.NotContains(t, c, "pointer")
	}
}

func TestInputIsForwardedInOrder(t *testing.T) {
	srv, ft, rec := newTestServer(t)
	connect(srv, ft, 0, false)
	rec.calls = nil

	ft.push(input(0, protocol.Input{
		Keys:        []protocol.KeyEvent{{Key: 97, Down: true}, {Key: 97, Down: false}},
		Composition: "ni",
		Pointers: []protocol.PointerEvent{
			{X: 10, Y: 20, Button: 1, Type: protocol.PointerDown},
			{X: 11, Y: 21, Type: protocol.PointerMotion},
		},
	}))
	srv.Step(MinimumFrameTime)

	assert.Equal(t, []string{
		"key 0 97 true",
		"key 0 97 false",
		"pointer 0 10 20 1 down",
		"pointer 0 11 21 0 motion",
		"tick",
	}, rec.calls)

	text, err := srv.Composition(0)
	require.NoError(t, err)
	assert.Equal(t, "ni", text)
}

func TestMalformedAndMisroutedInputIsDropped(t *testing.T) {
	srv, ft, rec := newTestServer(t)
	connect(srv, ft, 0, false)
	rec.calls = nil

	ft.push(
		transport.Event{Type: transport.EventReceive, Peer: 0, Channel: protocol.ChannelInput, Data: []byte{0, 0}},
		transport.Event{Type: transport.EventReceive, Peer: 0, Channel: protocol.ChannelSprite, Data: protocol.EncodeSprites(nil)},
		input(4, protocol.Input{Keys: []protocol.KeyEvent{{Key: 97, Down: true}}}),
	)
	srv.Step(MinimumFrameTime)

	assert.Equal(t, []string{"tick"}, rec.calls)
}

func TestTimeoutLeavesPeer(t *testing.T) {
	srv, ft, rec := newTestServer(t)
	connect(srv, ft, 3, false)

	ft.push(transport.Event{Type: transport.EventTimeout, Peer: 3})
	srv.Step(MinimumFrameTime)

	assert.Equal(t, 1, rec.count("left 3"))
	assert.False(t, srv.Sessions().Online(3))

	ft.push(transport.Event{Type: transport.EventDisconnect, Peer: 9})
	srv.Step(MinimumFrameTime)
	assert.Zero(t, rec.count("left 9"), "unknown peers are not reported")
}

func TestScriptReloadRunsBeforeNextTick(t *testing.T) {
	srv, ft, rec := newTestServer(t)
	connect(srv, ft, 0, false)

	reloaded := false
	rec.onTick = func() {
		if !reloaded {
			reloaded = true
			srv.Reload()
		}
	}
	srv.Step(MinimumFrameTime)
	assert.Zero(t, rec.count("reload"))

	rec.calls = nil
	srv.Step(MinimumFrameTime)
	assert.Equal(t, []string{"reload", "tick"}, rec.calls)
}

func TestStagedContentIsCommittedByTheTick(t *testing.T) {
	fs := afero.NewMemMapFs()
	font := append([]byte{0, 1, 0, 0}, make([]byte, 12)...)
	require.NoError(t, afero.WriteFile(fs, "/content/fonts/a.ttf", font, 0644))
	store := content.New(fs, testRoots)
	require.Len(t, store.Scan(), 1)

	ft := &fakeTransport{}
	rec := &recorder{}
	srv := New(Config{}, store, WithTransport(ft), WithCallbacks(rec))
	connect(srv, ft, 0, false)
	ft.take()

	require.NoError(t, afero.WriteFile(fs, "/content/fonts/b.ttf", font, 0644))
	srv.publishContent(context.Background(), store.Stage())

	assert.Equal(t, session.CodeNotLoaded, session.CodeOf(srv.DrawText(0, "b.ttf", 0, 0, 1, 0, 0, 0, "x")),
		"a staged font cannot be drawn before its content is broadcast")
	assert.Empty(t, ft.broadcasts)

	var drawErr error
	rec.onTick = func() {
		drawErr = srv.DrawText(0, "b.ttf", 0, 0, 1, 0, 0, 0, "x")
	}
	srv.Step(MinimumFrameTime)
	require.NoError(t, drawErr)

	require.Len(t, ft.broadcasts, 1)
	c, err := protocol.DecodeContent(ft.broadcasts[0].data)
	require.NoError(t, err)
	assert.Equal(t, protocol.ContentFont, c.Type)
	assert.Equal(t, uint32(2), c.ID)
}

func TestStatus(t *testing.T) {
	srv, ft, _ := newTestServer(t)
	connect(srv, ft, 0, true)
	connect(srv, ft, 2, false)

	status := srv.Status()
	assert.Equal(t, "test", status.Name)
	require.Len(t, status.Peers, 2)
	assert.Equal(t, PeerInfo{Slot: 0, Session: "session-0", Touch: true}, status.Peers[0])
	assert.Equal(t, 2, status.Peers[1].Slot)
	assert.Equal(t, 1, status.Images)
	assert.Equal(t, 1, status.Fonts)
	assert.Equal(t, 1, status.Sounds)
}

func TestRunHonoursFrameTime(t *testing.T) {
	ft := &fakeTransport{}
	ticks := make(chan time.Duration, 100)
	cb := &tickCounter{ticks: ticks}
	srv := New(Config{FrameTime: 40 * time.Millisecond}, testStore(t), WithTransport(ft), WithCallbacks(cb))

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	require.NoError(t, srv.Run(ctx))

	close(ticks)
	n := 0
	for dt := range ticks {
		if n > 0 {
			assert.GreaterOrEqual(t, dt, 40*time.Millisecond)
		}
		n++
	}
	assert.LessOrEqual(t, n, 7)
	assert.GreaterOrEqual(t, n, 2)
}

func TestFrameTimeIsClamped(t *testing.T) {
	srv := New(Config{FrameTime: time.Millisecond}, testStore(t), WithTransport(&fakeTransport{}))
	assert.Equal(t, MinimumFrameTime, srv.config.FrameTime)
	assert.Equal(t, script.KeyF5, srv.config.ReloadKey)
}

type tickCounter struct {
	script.Nop
	ticks chan time.Duration
}

func (c *tickCounter) OnTick(dt time.Duration) {
	c.ticks <- dt
}

// drawer draws on every connected peer each tick from the server goroutine
type drawer struct {
	script.Nop
	srv *Server
}

func (d *drawer) OnTick(time.Duration) {
	for _, peer := range d.srv.Sessions().Connected() {
		_ = d.srv.DrawSprite(peer, "hero.png", 5, 6, 1)
	}
}

func TestServeDeliversSnapshotThenSprites(t *testing.T) {
	config := DefaultConfig()
	config.EnableMDNS = false
	config.Reloader = content.ReloaderConfig{}

	srv := New(config, testStore(t))
	srv.SetCallbacks(&drawer{srv: srv})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	client, err := transport.Dial(dialCtx, ln.Addr().String(), protocol.Hello{}, transport.DialConfig{Retries: 3, InitialInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	defer client.Close()

	var got []protocol.Channel
	timeout := time.After(5 * time.Second)
	for len(got) < 4 {
		select {
		case ev := <-client.Events():
			require.Equal(t, transport.EventReceive, ev.Type)
			got = append(got, ev.Channel)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []protocol.Channel{
		protocol.ChannelContent,
		protocol.ChannelContent,
		protocol.ChannelContent,
		protocol.ChannelSprite,
	}, got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestShutdownStopsServe(t *testing.T) {
	config := DefaultConfig()
	config.EnableMDNS = false
	config.Reloader = content.ReloaderConfig{}
	srv := New(config, testStore(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), ln) }()

	srv.Shutdown()
	srv.Shutdown()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeNeedsHTTPTransport(t *testing.T) {
	srv := New(DefaultConfig(), testStore(t), WithTransport(&fakeTransport{}))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Error(t, srv.Serve(context.Background(), ln))
}

func TestServeDeliversContentLargerThanSendBuffer(t *testing.T) {
	const initial, added = 600, 300
	require.Greater(t, initial, transport.DefaultConfig().SendBuffer)
	require.Greater(t, added, transport.DefaultConfig().SendBuffer)

	fs := afero.NewMemMapFs()
	writeImages := func(from, n int) {
		for i := from; i < from+n; i++ {
			require.NoError(t, afero.WriteFile(fs, fmt.Sprintf("/content/images/%04d.png", i), make([]byte, 4096), 0644))
		}
	}
	writeImages(0, initial)
	store := content.New(fs, testRoots, content.WithValidator(func(protocol.ContentType, []byte) (content.Meta, error) {
		return content.Meta{}, nil
	}))

	config := DefaultConfig()
	config.EnableMDNS = false
	config.Reloader = content.ReloaderConfig{}
	srv := New(config, store)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	client, err := transport.Dial(dialCtx, ln.Addr().String(), protocol.Hello{}, transport.DialConfig{Retries: 3, InitialInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	defer client.Close()

	receive := func(n int, firstID uint32) {
		timeout := time.After(10 * time.Second)
		for i := 0; i < n; i++ {
			select {
			case ev := <-client.Events():
				require.Equal(t, transport.EventReceive, ev.Type, "disconnected after %d of %d content packets", i, n)
				require.Equal(t, protocol.ChannelContent, ev.Channel)
				c, err := protocol.DecodeContent(ev.Data)
				require.NoError(t, err)
				require.Equal(t, firstID+uint32(i), c.ID)
			case <-timeout:
				t.Fatalf("timed out after %d of %d content packets", i, n)
			}
		}
	}

	receive(initial, 1)

	writeImages(initial, added)
	srv.reloader.Trigger()
	receive(added, initial+1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
