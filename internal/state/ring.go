package state

import "encoding/json"

// Ring is a bounded FIFO buffer. Once full, each Push evicts the oldest item.
// A limit of zero or less makes the buffer unbounded.
type Ring[T any] struct {
	buf   []T
	head  int // index of the oldest item once the buffer has wrapped
	limit int
}

// NewRing returns an empty ring holding at most limit items.
func NewRing[T any](limit int) *Ring[T] {
	return &Ring[T]{limit: limit}
}

// Push appends v, evicting the oldest item when the ring is full.
func (r *Ring[T]) Push(v T) {
	if r.limit <= 0 || len(r.buf) < r.limit {
		r.buf = append(r.buf, v)
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % r.limit
}

// Len returns the number of retained items.
func (r *Ring[T]) Len() int {
	return len(r.buf)
}

// Limit returns the capacity, zero meaning unbounded.
func (r *Ring[T]) Limit() int {
	return r.limit
}

// Items returns a copy of the retained items, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.head:]...)
	out = append(out, r.buf[:r.head]...)
	return out
}

// Last returns up to n of the most recent items, oldest first.
func (r *Ring[T]) Last(n int) []T {
	items := r.Items()
	if n >= 0 && len(items) > n {
		items = items[len(items)-n:]
	}
	return items
}

// SetLimit changes the capacity, keeping the most recent items.
func (r *Ring[T]) SetLimit(limit int) {
	items := r.Items()
	r.buf = nil
	r.head = 0
	r.limit = limit
	for _, it := range items {
		r.Push(it)
	}
}

// Clear drops every item and keeps the limit.
func (r *Ring[T]) Clear() {
	r.buf = nil
	r.head = 0
}

// MarshalJSON encodes the ring as a JSON array, oldest first.
func (r Ring[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Items())
}

// UnmarshalJSON replaces the contents with a decoded array. The current limit
// is kept, so a ring with limit zero accepts every item.
func (r *Ring[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	r.Clear()
	for _, it := range items {
		r.Push(it)
	}
	return nil
}
