// ABOUTME: Oto-based audio output implementation
// ABOUTME: Plays PCM pulled from a reader with master volume using oto library
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog/log"
)

// Oto output implementation using oto library. oto allows a single context
// per process, so an Oto is opened once and closed once.
type Oto struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	sampleRate int
	channels   int
	volume     int
	bufferTime time.Duration
}

// NewOto creates a new Oto output. bufferTime bounds the latency between
// the mixer and the speaker; zero keeps oto's default.
func NewOto(bufferTime time.Duration) *Oto {
	return &Oto{
		volume:     100,
		bufferTime: bufferTime,
	}
}

// Open initializes the output device
func (o *Oto) Open(sampleRate, channels int, src io.Reader) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx != nil {
		return fmt.Errorf("oto output already open at %dHz %dch", o.sampleRate, o.channels)
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   o.bufferTime,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	o.otoCtx = ctx
	o.sampleRate = sampleRate
	o.channels = channels

	o.player = o.otoCtx.NewPlayer(src)
	o.player.SetVolume(float64(o.volume) / 100.0)
	o.player.Play()

	log.Info().
		Int("sample_rate", sampleRate).
		Int("channels", channels).
		Msg("audio output initialized")

	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.volume = clampVolume(volume)
	if o.player != nil {
		o.player.SetVolume(float64(o.volume) / 100.0)
	}
	log.Debug().Int("volume", o.volume).Msg("volume set")
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var err error
	if o.player != nil {
		err = o.player.Close()
		o.player = nil
	}
	if o.otoCtx != nil {
		if serr := o.otoCtx.Suspend(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}
