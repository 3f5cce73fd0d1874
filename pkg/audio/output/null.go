// ABOUTME: Silent output that still pulls samples in real time
// ABOUTME: Used for headless clients and tests where no device exists
package output

import (
	"io"
	"sync"
	"time"
)

const nullPeriod = 10 * time.Millisecond

// Null reads from its source at the device rate and discards the data
type Null struct {
	mu     sync.Mutex
	volume int
	stop   chan struct{}
	done   chan struct{}
}

// NewNull creates a silent output
func NewNull() *Null {
	return &Null{volume: 100}
}

// Open starts the pull goroutine
func (n *Null) Open(sampleRate, channels int, src io.Reader) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stop != nil {
		return nil
	}
	n.stop = make(chan struct{})
	n.done = make(chan struct{})

	bytesPerPeriod := int(nullPeriod.Seconds()*float64(sampleRate)) * channels * 2
	go n.run(src, make([]byte, bytesPerPeriod), n.stop, n.done)
	return nil
}

func (n *Null) run(src io.Reader, buf []byte, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(nullPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := io.ReadFull(src, buf); err != nil {
				return
			}
		}
	}
}

// SetVolume records the volume; there is nothing to attenuate
func (n *Null) SetVolume(volume int) {
	n.mu.Lock()
	n.volume = clampVolume(volume)
	n.mu.Unlock()
}

// Close stops the pull goroutine
func (n *Null) Close() error {
	n.mu.Lock()
	stop, done := n.stop, n.done
	n.stop, n.done = nil, nil
	n.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}
