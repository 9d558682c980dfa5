package state

import (
	"context"
	"slices"

	"github.com/fyrsmithlabs/conductor/internal/logging"
	"go.uber.org/zap"
)

// maxDispatchDepth bounds handler-triggered re-emission.
const maxDispatchDepth = 16

type subscription struct {
	id uint64
	fn Handler
}

// bus delivers events synchronously, kind subscribers first and wildcard
// subscribers second, each in registration order. Handlers may mutate the
// store; nested events are delivered depth-first before the outer dispatch
// continues.
type bus struct {
	byKind  map[EventKind][]subscription
	any     []subscription
	nextID  uint64
	depth   int
	dropped int
	logger  *logging.Logger
}

func newBus(logger *logging.Logger) *bus {
	return &bus{
		byKind: make(map[EventKind][]subscription),
		logger: logger,
	}
}

func (b *bus) subscribe(kind EventKind, fn Handler) func() {
	b.nextID++
	id := b.nextID
	b.byKind[kind] = append(b.byKind[kind], subscription{id: id, fn: fn})
	return func() {
		b.byKind[kind] = slices.DeleteFunc(b.byKind[kind], func(s subscription) bool { return s.id == id })
	}
}

func (b *bus) subscribeAll(fn Handler) func() {
	b.nextID++
	id := b.nextID
	b.any = append(b.any, subscription{id: id, fn: fn})
	return func() {
		b.any = slices.DeleteFunc(b.any, func(s subscription) bool { return s.id == id })
	}
}

func (b *bus) dispatch(e Event) {
	if b.depth >= maxDispatchDepth {
		b.dropped++
		b.logger.Error(context.Background(), "event dropped: dispatch depth exceeded",
			zap.String("event.kind", string(e.Kind)),
			zap.String("event.source", e.Source),
			zap.Int("depth", b.depth),
		)
		return
	}
	b.depth++
	defer func() { b.depth-- }()

	// Copies keep delivery stable when a handler subscribes or unsubscribes.
	for _, s := range slices.Clone(b.byKind[e.Kind]) {
		s.fn(e)
	}
	for _, s := range slices.Clone(b.any) {
		s.fn(e)
	}
}
