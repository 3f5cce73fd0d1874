// ABOUTME: Audio type definitions
// ABOUTME: Defines audio formats, decoded buffers and sample conversions
package audio

import "math"

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes a PCM stream
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Buffer represents decoded PCM audio
type Buffer struct {
	Samples []int32 // interleaved, left-justified in the 24-bit range
	Format  Format
}

// Frames returns the number of sample frames in the buffer
func (b Buffer) Frames() int {
	if b.Format.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Format.Channels
}

// ToStereo returns the buffer with exactly two channels. Mono is duplicated
// into both sides; extra channels beyond the first two are dropped.
func ToStereo(b Buffer) Buffer {
	switch b.Format.Channels {
	case 2:
		return b
	case 1:
		out := make([]int32, len(b.Samples)*2)
		for i, s := range b.Samples {
			out[i*2] = s
			out[i*2+1] = s
		}
		b.Samples = out
	default:
		frames := b.Frames()
		out := make([]int32, frames*2)
		for f := 0; f < frames; f++ {
			out[f*2] = b.Samples[f*b.Format.Channels]
			out[f*2+1] = b.Samples[f*b.Format.Channels+1]
		}
		b.Samples = out
	}
	b.Format.Channels = 2
	return b
}

// ToInt16 converts the buffer's samples to 16-bit
func ToInt16(b Buffer) []int16 {
	out := make([]int16, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = SampleToInt16(s)
	}
	return out
}

// ClampInt16 saturates a mixing accumulator to the int16 range
func ClampInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// SampleFromUint8 converts unsigned 8-bit PCM to int32 in the 24-bit range
func SampleFromUint8(sample uint8) int32 {
	return (int32(sample) - 128) << 16
}
