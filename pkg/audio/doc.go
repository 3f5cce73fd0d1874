// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Buffer types and sample conversion functions
// Package audio provides the PCM types shared by the decoders, the
// resampler and the client mixer.
//
// Decoded samples are int32 values left-justified in the 24-bit range so
// 8, 16 and 24-bit sources mix in a single representation. The mixer
// stores 16-bit stereo and converts with ToInt16.
//
// Example:
//
//	buf, err := decode.Decode(data)
//	buf = audio.ToStereo(buf)
//	pcm := audio.ToInt16(buf)
package audio
