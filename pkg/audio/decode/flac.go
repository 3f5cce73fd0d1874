// ABOUTME: FLAC audio decoder
// ABOUTME: Decodes whole FLAC files to int32 samples using mewkiz/flac
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/anomaly-engine/anomaly/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLACDecoder decodes FLAC audio
type FLACDecoder struct{}

// Decode reads every frame and interleaves the subframes
func (FLACDecoder) Decode(data []byte) (audio.Buffer, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("failed to open flac stream: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	channels := int(info.NChannels)
	bps := int(info.BitsPerSample)
	if channels < 1 || bps < 4 || bps > 32 {
		return audio.Buffer{}, fmt.Errorf("unsupported flac stream %dch %dbit", channels, bps)
	}

	// NSamples comes from the header and may be zero or wrong
	capacity := int(info.NSamples) * channels
	if capacity < 0 || capacity > len(data)*8 {
		capacity = 0
	}
	samples := make([]int32, 0, capacity)
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return audio.Buffer{}, fmt.Errorf("flac frame: %w", err)
		}
		if len(frame.Subframes) != channels {
			return audio.Buffer{}, fmt.Errorf("flac frame has %d subframes, want %d", len(frame.Subframes), channels)
		}
		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, to24Bit(frame.Subframes[ch].Samples[i], bps))
			}
		}
	}

	if len(samples) == 0 {
		return audio.Buffer{}, errors.New("flac stream has no audio frames")
	}

	return audio.Buffer{
		Samples: samples,
		Format: audio.Format{
			SampleRate: int(info.SampleRate),
			Channels:   channels,
			BitDepth:   bps,
		},
	}, nil
}

// to24Bit left-justifies a sample of the given depth into the 24-bit range
func to24Bit(sample int32, bps int) int32 {
	if bps < 24 {
		return sample << (24 - bps)
	}
	return sample >> (bps - 24)
}
