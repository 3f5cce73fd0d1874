// ABOUTME: Tests for the content store and reloader
// ABOUTME: Uses an in-memory filesystem to drive scans and id assignment
package content

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/anomaly-engine/anomaly/pkg/audio"
	"github.com/anomaly-engine/anomaly/pkg/audio/encode"
	"github.com/anomaly-engine/anomaly/pkg/protocol"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRoots = Roots{
	Images: "/content/images",
	Fonts:  "/content/fonts",
	Sounds: "/content/sounds",
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func wavOf(t *testing.T) []byte {
	t.Helper()
	data, err := encode.WAV(audio.Buffer{
		Samples: []int32{0, 0, 0, 0},
		Format:  audio.Format{SampleRate: 44100, Channels: 2},
	}, 16)
	require.NoError(t, err)
	return data
}

func fontOf() []byte {
	return append([]byte("OTTO"), make([]byte, 12)...)
}

// write stores a file and pins its mtime so tests do not depend on clock resolution
func write(t *testing.T, fs afero.Fs, name string, data []byte, mtime time.Time) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, name, data, 0644))
	require.NoError(t, fs.Chtimes(name, mtime, mtime))
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestScanAssignsIDsPerClass(t *testing.T) {
	fs := afero.NewMemMapFs()
	write(t, fs, "/content/images/a.png", pngOf(t, 4, 2), epoch)
	write(t, fs, "/content/images/sub/b.png", pngOf(t, 8, 8), epoch)
	write(t, fs, "/content/fonts/f.otf", fontOf(), epoch)
	write(t, fs, "/content/sounds/s.wav", wavOf(t), epoch)

	s := New(fs, testRoots)
	changed := s.Scan()
	require.Len(t, changed, 4)

	assert.Equal(t, uint32(1), s.Resolve(protocol.ContentImage, "a.png"))
	assert.Equal(t, uint32(2), s.Resolve(protocol.ContentImage, "sub/b.png"))
	assert.Equal(t, uint32(1), s.Resolve(protocol.ContentFont, "f.otf"))
	assert.Equal(t, uint32(1), s.Resolve(protocol.ContentSound, "s.wav"))

	assert.Equal(t, 4, s.ImageWidth("a.png"))
	assert.Equal(t, 8, s.ImageWidth("sub/b.png"))
	assert.Equal(t, 0, s.ImageWidth("missing.png"))
	assert.Equal(t, 2, s.Count(protocol.ContentImage))
}

func TestScanReportsOnlyChanges(t *testing.T) {
	fs := afero.NewMemMapFs()
	write(t, fs, "/content/images/a.png", pngOf(t, 4, 2), epoch)
	s := New(fs, testRoots)
	require.Len(t, s.Scan(), 1)

	assert.Empty(t, s.Scan(), "unchanged files are not reported")

	updated := pngOf(t, 16, 2)
	write(t, fs, "/content/images/a.png", updated, epoch.Add(time.Second))
	write(t, fs, "/content/images/c.png", pngOf(t, 1, 1), epoch)

	changed := s.Scan()
	require.Len(t, changed, 2)
	assert.Equal(t, "a.png", changed[0].Path)
	assert.Equal(t, uint32(1), changed[0].ID, "a changed file keeps its id")
	assert.Equal(t, updated, changed[0].Data)
	assert.Equal(t, "c.png", changed[1].Path)
	assert.Equal(t, uint32(2), changed[1].ID)
	assert.Equal(t, 16, s.ImageWidth("a.png"))
}

func TestInvalidFileKeepsPreviousVersion(t *testing.T) {
	fs := afero.NewMemMapFs()
	good := pngOf(t, 4, 4)
	write(t, fs, "/content/images/a.png", good, epoch)
	s := New(fs, testRoots)
	s.Scan()

	write(t, fs, "/content/images/a.png", []byte("not an image"), epoch.Add(time.Second))
	assert.Empty(t, s.Scan())

	a, ok := s.Lookup(protocol.ContentImage, "a.png")
	require.True(t, ok)
	assert.Equal(t, good, a.Data)

	// fixed again later
	write(t, fs, "/content/images/a.png", pngOf(t, 2, 2), epoch.Add(2*time.Second))
	changed := s.Scan()
	require.Len(t, changed, 1)
	assert.Equal(t, uint32(1), changed[0].ID)
}

func TestInvalidNewFileIsNotLoaded(t *testing.T) {
	fs := afero.NewMemMapFs()
	write(t, fs, "/content/fonts/bad.ttf", []byte("nope"), epoch)
	write(t, fs, "/content/sounds/bad.wav", []byte("RIFF....WAVEjunk"), epoch)
	write(t, fs, "/content/fonts/good.ttf", fontOf(), epoch)

	s := New(fs, testRoots)
	changed := s.Scan()
	require.Len(t, changed, 1)
	assert.Equal(t, "good.ttf", changed[0].Path)
	assert.Equal(t, uint32(1), changed[0].ID, "rejected files do not consume ids")
	assert.Equal(t, uint32(0), s.Resolve(protocol.ContentFont, "bad.ttf"))
}

func TestMissingRootsAreEmpty(t *testing.T) {
	s := New(afero.NewMemMapFs(), testRoots)
	assert.Empty(t, s.Scan())
	assert.Empty(t, s.SnapshotAll())
}

func TestDeletedFilesStayLoaded(t *testing.T) {
	fs := afero.NewMemMapFs()
	write(t, fs, "/content/images/a.png", pngOf(t, 1, 1), epoch)
	s := New(fs, testRoots)
	s.Scan()

	require.NoError(t, fs.Remove("/content/images/a.png"))
	assert.Empty(t, s.Scan())
	assert.Equal(t, uint32(1), s.Resolve(protocol.ContentImage, "a.png"))
}

func TestResolveNormalizesPaths(t *testing.T) {
	fs := afero.NewMemMapFs()
	write(t, fs, "/content/images/ui/button.png", pngOf(t, 1, 1), epoch)
	s := New(fs, testRoots)
	s.Scan()

	for _, p := range []string{"ui/button.png", "./ui/button.png", "ui//button.png", `ui\button.png`, "/ui/button.png"} {
		assert.Equal(t, uint32(1), s.Resolve(protocol.ContentImage, p), p)
	}
	assert.Equal(t, uint32(0), s.Resolve(protocol.ContentFont, "ui/button.png"))
	assert.Equal(t, uint32(0), s.Resolve(protocol.ContentTypeCount, "ui/button.png"))
}

func TestSnapshotAllOrdersByClassThenID(t *testing.T) {
	fs := afero.NewMemMapFs()
	write(t, fs, "/content/sounds/s.wav", wavOf(t), epoch)
	write(t, fs, "/content/images/b.png", pngOf(t, 1, 1), epoch)
	write(t, fs, "/content/images/a.png", pngOf(t, 1, 1), epoch)
	write(t, fs, "/content/fonts/f.ttf", fontOf(), epoch)
	s := New(fs, testRoots)
	s.Scan()

	all := s.SnapshotAll()
	require.Len(t, all, 4)
	assert.Equal(t, protocol.ContentImage, all[0].Class)
	assert.Equal(t, uint32(1), all[0].ID)
	assert.Equal(t, uint32(2), all[1].ID)
	assert.Equal(t, protocol.ContentFont, all[2].Class)
	assert.Equal(t, protocol.ContentSound, all[3].Class)

	pkt := all[3].Packet()
	assert.Equal(t, protocol.ContentSound, pkt.Type)
	assert.Equal(t, all[3].Data, pkt.Data)
}

func TestValidate(t *testing.T) {
	meta, err := Validate(protocol.ContentImage, pngOf(t, 7, 3))
	require.NoError(t, err)
	assert.Equal(t, 7, meta.Width)

	_, err = Validate(protocol.ContentImage, nil)
	assert.ErrorIs(t, err, ErrInvalidContent)

	_, err = Validate(protocol.ContentFont, []byte{0, 1, 0, 0, 9})
	assert.NoError(t, err)
	_, err = Validate(protocol.ContentFont, []byte("wOF2xxxx"))
	assert.NoError(t, err)
	_, err = Validate(protocol.ContentFont, []byte("abc"))
	assert.ErrorIs(t, err, ErrInvalidContent)

	_, err = Validate(protocol.ContentSound, wavOf(t))
	assert.NoError(t, err)
	_, err = Validate(protocol.ContentSound, []byte("hello world"))
	assert.ErrorIs(t, err, ErrInvalidContent)

	_, err = Validate(protocol.ContentTypeCount, []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidContent)
}

func TestConcurrentScanAndResolve(t *testing.T) {
	fs := afero.NewMemMapFs()
	write(t, fs, "/content/fonts/f.ttf", fontOf(), epoch)
	s := New(fs, testRoots, WithValidator(func(protocol.ContentType, []byte) (Meta, error) {
		return Meta{}, nil
	}))
	s.Scan()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			write(t, fs, "/content/fonts/f.ttf", fontOf(), epoch.Add(time.Duration(i+1)*time.Second))
			s.Scan()
		}
	}()
	for i := 0; i < 2000; i++ {
		assert.Equal(t, uint32(1), s.Resolve(protocol.ContentFont, "f.ttf"))
	}
	wg.Wait()
}

func TestReloaderTriggerPublishesChanges(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, testRoots)
	s.Scan()

	published := make(chan []Asset, 4)
	r := NewReloader(s, ReloaderConfig{}, func(_ context.Context, u *Update) {
		u.Commit()
		published <- u.Assets
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	write(t, fs, "/content/fonts/new.ttf", fontOf(), epoch)
	r.Trigger()

	select {
	case assets := <-published:
		require.Len(t, assets, 1)
		assert.Equal(t, "new.ttf", assets[0].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("reloader did not publish")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reloader did not stop")
	}
}

func TestReloaderPolls(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, testRoots)

	published := make(chan []Asset, 4)
	r := NewReloader(s, ReloaderConfig{Poll: 10 * time.Millisecond}, func(_ context.Context, u *Update) {
		u.Commit()
		published <- u.Assets
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	write(t, fs, "/content/images/p.png", pngOf(t, 3, 3), epoch)

	select {
	case assets := <-published:
		require.Len(t, assets, 1)
		assert.Equal(t, 3, assets[0].Width)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not pick up the new file")
	}
}

func TestTriggerNeverBlocks(t *testing.T) {
	r := NewReloader(New(afero.NewMemMapFs(), testRoots), ReloaderConfig{}, nil)
	for i := 0; i < 10; i++ {
		r.Trigger()
	}
}

func TestStagedUpdateIsInvisibleUntilCommit(t *testing.T) {
	fs := afero.NewMemMapFs()
	write(t, fs, "/content/fonts/a.ttf", fontOf(), epoch)
	s := New(fs, testRoots)
	require.Len(t, s.Scan(), 1)

	write(t, fs, "/content/fonts/b.ttf", fontOf(), epoch)
	first := s.Stage()
	require.Len(t, first.Assets, 1)
	assert.Equal(t, uint32(2), first.Assets[0].ID)
	assert.Zero(t, s.Resolve(protocol.ContentFont, "b.ttf"), "staged assets cannot be resolved yet")
	assert.Len(t, s.SnapshotAll(), 1)

	// a second scan builds on the staged one, so ids are not handed out twice
	write(t, fs, "/content/fonts/c.ttf", fontOf(), epoch)
	second := s.Stage()
	require.Len(t, second.Assets, 1)
	assert.Equal(t, uint32(3), second.Assets[0].ID)

	first.Commit()
	assert.Equal(t, uint32(2), s.Resolve(protocol.ContentFont, "b.ttf"))
	assert.Zero(t, s.Resolve(protocol.ContentFont, "c.ttf"))

	second.Commit()
	first.Commit()
	assert.Equal(t, uint32(3), s.Resolve(protocol.ContentFont, "c.ttf"), "an older commit does not roll back")
	assert.Equal(t, 3, s.Count(protocol.ContentFont))

	assert.Empty(t, s.Stage().Assets)
}
