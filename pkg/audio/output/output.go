// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for pull-based playback backends
package output

import "io"

// Output represents an audio output device that pulls interleaved signed
// 16-bit little-endian PCM from a reader on its own goroutine.
type Output interface {
	// Open initializes the device and starts pulling from src
	Open(sampleRate, channels int, src io.Reader) error

	// SetVolume sets the master volume (0-100)
	SetVolume(volume int)

	// Close stops playback and releases output resources
	Close() error
}

func clampVolume(volume int) int {
	if volume < 0 {
		return 0
	}
	if volume > 100 {
		return 100
	}
	return volume
}
