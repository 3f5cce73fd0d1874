// ABOUTME: Ordered per-peer queue for reliable frames
// ABOUTME: Content frames are always accepted; per-tick frames are capped
package transport

import "sync"

// outbox keeps every reliable frame of a peer in send order. Only frames
// pushed as bounded count against the limit, so a content snapshot of any
// size can be queued while a peer that stops reading per-tick traffic is
// still caught.
type outbox struct {
	mu      sync.Mutex
	frames  [][]byte
	bounded int
	limit   int

	ready chan struct{}
}

func newOutbox(limit int) *outbox {
	return &outbox{
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// push appends a frame. A bounded frame is refused while limit bounded
// frames are already waiting.
func (o *outbox) push(frame []byte, bounded bool) bool {
	o.mu.Lock()
	if bounded {
		if o.bounded >= o.limit {
			o.mu.Unlock()
			return false
		}
		o.bounded++
	}
	o.frames = append(o.frames, frame)
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns every waiting frame
func (o *outbox) take() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	frames := o.frames
	o.frames = nil
	o.bounded = 0
	return frames
}

// size returns the number of waiting frames
func (o *outbox) size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}
