// ABOUTME: Audio decoder package for whole sound files
// ABOUTME: Provides Decoder interface and WAV, FLAC and MP3 implementations
// Package decode turns encoded sound files into PCM buffers.
//
// Supports: WAV (8, 16 and 24-bit integer PCM), FLAC, MP3
//
// All decoders output int32 samples in the 24-bit range.
//
// Example:
//
//	buf, err := decode.Decode(fileBytes)
package decode
