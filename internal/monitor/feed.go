package monitor

import (
	"sync"
	"sync/atomic"

	"github.com/fyrsmithlabs/conductor/internal/state"
)

// DefaultFeedBuffer is the channel size used when NewFeed gets zero.
const DefaultFeedBuffer = 256

// Feed carries store events from the orchestrator goroutine to a consumer on
// another goroutine. Publish never blocks; events that do not fit are
// dropped and counted.
type Feed struct {
	ch      chan state.Event
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewFeed returns a feed with the given buffer.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = DefaultFeedBuffer
	}
	return &Feed{ch: make(chan state.Event, buffer)}
}

// Publish is a state.Handler. Pass it to Store.SubscribeAll.
func (f *Feed) Publish(e state.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- e:
	default:
		f.dropped.Add(1)
	}
}

// Events returns the receive side. It is closed by Close.
func (f *Feed) Events() <-chan state.Event {
	return f.ch
}

// Dropped returns how many events did not fit in the buffer.
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}

// Close stops the feed. Safe to call more than once.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}
