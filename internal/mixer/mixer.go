// ABOUTME: Real-time software mixer for server-driven sound playback
// ABOUTME: Fixed voice array fed by audio commands and pulled by the output device
package mixer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/anomaly-engine/anomaly/pkg/audio"
	"github.com/anomaly-engine/anomaly/pkg/audio/decode"
	"github.com/anomaly-engine/anomaly/pkg/audio/resample"
	"github.com/anomaly-engine/anomaly/pkg/protocol"
	"github.com/rs/zerolog/log"
)

const (
	// SampleRate is the mixer's output rate
	SampleRate = 44100

	// Channels is the mixer's output channel count
	Channels = 2

	// Voices is the number of mixer voices
	Voices = protocol.AudioChannels

	// ExplicitVoices is the size of the lower half reserved for Play
	ExplicitVoices = Voices / 2

	// MaxVolume is full scale for a voice
	MaxVolume = 128
)

// ErrInvalidSoundID is returned when loading a sound under id 0
var ErrInvalidSoundID = errors.New("mixer: sound id 0 is reserved")

// Sound is decoded, immutable interleaved stereo PCM at SampleRate
type Sound struct {
	samples []int16
}

// Len returns the number of interleaved samples
func (s *Sound) Len() int {
	return len(s.samples)
}

type voice struct {
	soundID uint32 // 0 = idle
	index   int
	volume  int32
}

// Voice is a snapshot of one mixer voice
type Voice struct {
	SoundID uint32
	Index   int
	Volume  uint8
}

// Active reports whether the voice is playing
func (v Voice) Active() bool {
	return v.SoundID != 0
}

// Mixer owns the voice array and the decoded sounds. A single mutex guards
// both; it is never held across decoding, I/O or the per-sample mixing loop.
type Mixer struct {
	mu     sync.Mutex
	voices [Voices]voice
	sounds map[uint32]*Sound

	// scratch buffers used only by the output goroutine
	acc  []int32
	pcm  []int16
	segs [Voices]segment
}

// New creates a silent mixer with no sounds
func New() *Mixer {
	return &Mixer{
		sounds: make(map[uint32]*Sound),
	}
}

// LoadSound decodes an encoded sound file and installs it under id,
// replacing any previous version. Voices already playing the id continue
// from their current index into the new samples.
func (m *Mixer) LoadSound(id uint32, data []byte) error {
	if id == 0 {
		return ErrInvalidSoundID
	}

	buf, err := decode.Decode(data)
	if err != nil {
		return fmt.Errorf("sound %d: %w", id, err)
	}
	buf = audio.ToStereo(buf)
	buf = resample.Convert(buf, SampleRate)
	sound := &Sound{samples: audio.ToInt16(buf)}

	m.mu.Lock()
	m.sounds[id] = sound
	m.mu.Unlock()

	log.Debug().
		Uint32("id", id).
		Int("samples", sound.Len()).
		Msg("sound loaded")
	return nil
}

// HasSound reports whether a sound is installed under id
func (m *Mixer) HasSound(id uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sounds[id]
	return ok
}

// Issue applies one audio command. Requests that cannot be honoured are
// dropped: unknown sounds, explicit channels outside the lower half, and
// PlayAny when every upper voice is busy.
func (m *Mixer) Issue(cmd protocol.AudioCommand) {
	m.mu.Lock()
	defer m.mu.Unlock()

	volume := int32(cmd.Volume)
	if volume > MaxVolume {
		volume = MaxVolume
	}

	switch cmd.Kind {
	case protocol.AudioPlay:
		if _, ok := m.sounds[cmd.SoundID]; !ok || cmd.Channel >= ExplicitVoices {
			log.Debug().Uint32("id", cmd.SoundID).Uint16("channel", cmd.Channel).Msg("play dropped")
			return
		}
		m.voices[cmd.Channel] = voice{soundID: cmd.SoundID, volume: volume}

	case protocol.AudioPlayAny:
		if _, ok := m.sounds[cmd.SoundID]; !ok {
			log.Debug().Uint32("id", cmd.SoundID).Msg("play_any dropped: unknown sound")
			return
		}
		for i := ExplicitVoices; i < Voices; i++ {
			if m.voices[i].soundID == 0 {
				m.voices[i] = voice{soundID: cmd.SoundID, volume: volume}
				return
			}
		}
		log.Debug().Uint32("id", cmd.SoundID).Msg("play_any dropped: no idle voice")

	case protocol.AudioStop:
		if int(cmd.Channel) < Voices {
			m.voices[cmd.Channel] = voice{}
		}

	case protocol.AudioStopAll:
		m.voices = [Voices]voice{}
	}
}

// StopAll silences every voice
func (m *Mixer) StopAll() {
	m.Issue(protocol.AudioCommand{Kind: protocol.AudioStopAll})
}

// segment is the part of a sound one voice contributes to a buffer
type segment struct {
	src    []int16
	volume int32
}

// Mix fills out with interleaved stereo samples. Every active voice adds
// sample*volume/128 into a 32-bit accumulator which is then clamped to
// int16. A voice goes idle as soon as its index reaches the sound's length.
// Only whole frames are mixed; a trailing half frame is left silent.
func (m *Mixer) Mix(out []int16) {
	if cap(m.acc) < len(out) {
		m.acc = make([]int32, len(out))
	}
	acc := m.acc[:len(out)]
	for i := range acc {
		acc[i] = 0
	}

	m.mu.Lock()
	segs := m.advance(len(out) - len(out)%Channels)
	m.mu.Unlock()

	// sounds are immutable, so the claimed samples are read outside the lock
	for _, seg := range segs {
		for i, s := range seg.src {
			acc[i] += int32(s) * seg.volume / MaxVolume
		}
	}

	for i, a := range acc {
		out[i] = audio.ClampInt16(a)
	}
}

// advance claims the next n samples of every active voice and retires the
// voices it exhausts. Callers hold mu.
func (m *Mixer) advance(n int) []segment {
	segs := m.segs[:0]
	for c := range m.voices {
		v := &m.voices[c]
		if v.soundID == 0 {
			continue
		}
		sound := m.sounds[v.soundID]
		if sound == nil || v.index >= len(sound.samples) {
			*v = voice{}
			continue
		}

		k := min(len(sound.samples)-v.index, n)
		segs = append(segs, segment{src: sound.samples[v.index : v.index+k], volume: v.volume})
		v.index += k

		if v.index >= len(sound.samples) {
			*v = voice{}
		}
	}
	return segs
}

// Read implements io.Reader for the output device: it mixes whole stereo
// frames of signed 16-bit little-endian PCM and never returns a partial one.
func (m *Mixer) Read(p []byte) (int, error) {
	n := len(p) / 2
	n -= n % Channels
	if cap(m.pcm) < n {
		m.pcm = make([]int16, n)
	}
	pcm := m.pcm[:n]
	m.Mix(pcm)

	for i, s := range pcm {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(s))
	}
	return n * 2, nil
}

// Voice returns a snapshot of one voice
func (m *Mixer) Voice(channel int) Voice {
	m.mu.Lock()
	defer m.mu.Unlock()

	if channel < 0 || channel >= Voices {
		return Voice{}
	}
	v := m.voices[channel]
	return Voice{SoundID: v.soundID, Index: v.index, Volume: uint8(v.volume)}
}

// ActiveVoices counts the voices currently playing
func (m *Mixer) ActiveVoices() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := 0
	for _, v := range m.voices {
		if v.soundID != 0 {
			active++
		}
	}
	return active
}
