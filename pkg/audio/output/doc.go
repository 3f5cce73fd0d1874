// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides Output interface with oto and silent implementations
// Package output provides pull-based audio playback.
//
// The device goroutine reads PCM from the reader handed to Open, so the
// reader's Read is the real-time callback.
//
// Example:
//
//	out := output.NewOto(50 * time.Millisecond)
//	err := out.Open(44100, 2, mixer)
package output
