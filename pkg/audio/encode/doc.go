// ABOUTME: Audio encoder package for writing PCM and WAV
// ABOUTME: Provides the PCM encoder, a WAV writer and a tone generator
// Package encode writes int32 samples back out as PCM bytes or WAV files.
//
// Example:
//
//	tone := encode.Tone(440, 200*time.Millisecond, 44100, 0.5)
//	data, err := encode.WAV(tone, 16)
package encode
