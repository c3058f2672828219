package mailbox

import (
	"context"
	"log/slog"

	"github.com/KyleBrandon/planty/internal/event"
)

const DefaultCapacity = 4

// Mailbox is a bounded FIFO of events with many producers and a single consumer.
// Push blocks while the mailbox is full; nothing is ever dropped or coalesced.
type Mailbox struct {
	ch chan event.Event
}

// New creates a mailbox holding up to capacity pending events.
func New(capacity int) *Mailbox {
	if capacity <= 0 {
		slog.Warn("invalid mailbox capacity, using default", "capacity", capacity, "default", DefaultCapacity)
		capacity = DefaultCapacity
	}

	return &Mailbox{
		ch: make(chan event.Event, capacity),
	}
}

// Push enqueues ev, waiting for room if the mailbox is full.
func (m *Mailbox) Push(ctx context.Context, ev event.Event) error {
	select {
	case m.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop dequeues the oldest event, waiting if the mailbox is empty.
func (m *Mailbox) Pop(ctx context.Context) (event.Event, error) {
	select {
	case ev := <-m.ch:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len is the number of events waiting to be processed.
func (m *Mailbox) Len() int { return len(m.ch) }

// Cap is the capacity of the mailbox.
func (m *Mailbox) Cap() int { return cap(m.ch) }
