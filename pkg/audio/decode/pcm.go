// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 8, 16 and 24-bit little-endian PCM to int32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/anomaly-engine/anomaly/pkg/audio"
)

// PCMDecoder converts raw little-endian PCM bytes
type PCMDecoder struct {
	bitDepth int
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (*PCMDecoder, error) {
	switch format.BitDepth {
	case 8, 16, 24:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24)", format.BitDepth)
	}

	return &PCMDecoder{
		bitDepth: format.BitDepth,
	}, nil
}

// Samples converts PCM bytes to int32 samples. A trailing partial sample is ignored.
func (d *PCMDecoder) Samples(data []byte) []int32 {
	switch d.bitDepth {
	case 24:
		numSamples := len(data) / 3
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			b := [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
			samples[i] = audio.SampleFrom24Bit(b)
		}
		return samples
	case 8:
		samples := make([]int32, len(data))
		for i, b := range data {
			samples[i] = audio.SampleFromUint8(b)
		}
		return samples
	default:
		numSamples := len(data) / 2
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			sample16 := int16(binary.LittleEndian.Uint16(data[i*2:]))
			samples[i] = audio.SampleFromInt16(sample16)
		}
		return samples
	}
}
