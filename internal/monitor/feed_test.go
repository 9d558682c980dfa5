package monitor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/conductor/internal/state"
)

func TestFeed_DropsWhenFull(t *testing.T) {
	feed := NewFeed(2)
	for i := 0; i < 5; i++ {
		feed.Publish(event(state.EventMemoryAdded, "coder", state.MemoryPayload{}))
	}
	assert.Len(t, feed.Events(), 2)
	assert.EqualValues(t, 3, feed.Dropped())
}

func TestFeed_CloseIsIdempotent(t *testing.T) {
	feed := NewFeed(0)
	assert.Equal(t, DefaultFeedBuffer, cap(feed.Events()))

	feed.Close()
	feed.Close()
	feed.Publish(event(state.EventMemoryAdded, "coder", state.MemoryPayload{}))

	_, ok := <-feed.Events()
	assert.False(t, ok)
	assert.Zero(t, feed.Dropped())
}

func TestFeed_PublishRacesClose(t *testing.T) {
	feed := NewFeed(8)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				feed.Publish(event(state.EventMemoryAdded, "coder", state.MemoryPayload{}))
			}
		}()
	}
	feed.Close()
	wg.Wait()

	n := 0
	for range feed.Events() {
		n++
	}
	assert.LessOrEqual(t, n, 8)
}
