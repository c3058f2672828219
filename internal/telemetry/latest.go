package telemetry

import (
	"sync"
)

// Latest is a single-slot cell that always holds the most recently published value.
// Readers never see a backlog: an unread value is overwritten by the next Publish.
type Latest[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
	subs  map[*Subscription[T]]struct{}
}

func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{
		subs: make(map[*Subscription[T]]struct{}),
	}
}

// Publish stores v and hands it to every subscriber, replacing anything they have not read.
func (l *Latest[T]) Publish(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.value = v
	l.set = true

	for sub := range l.subs {
		sub.offer(v)
	}
}

// Load returns the current value and whether anything has been published yet.
func (l *Latest[T]) Load() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.value, l.set
}

// Subscribe returns a subscription primed with the current value, if any.
func (l *Latest[T]) Subscribe() *Subscription[T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	sub := &Subscription[T]{
		ch:     make(chan T, 1),
		parent: l,
	}
	if l.set {
		sub.offer(l.value)
	}
	l.subs[sub] = struct{}{}

	return sub
}

func (l *Latest[T]) unsubscribe(sub *Subscription[T]) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.subs, sub)
}

// Subscription receives the newest value published to a Latest cell.
type Subscription[T any] struct {
	ch     chan T
	parent *Latest[T]
}

// C delivers at most one pending value: the newest one.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

func (s *Subscription[T]) Unsubscribe() {
	s.parent.unsubscribe(s)
}

// offer is called with the parent lock held, so it is the only writer of ch.
func (s *Subscription[T]) offer(v T) {
	select {
	case <-s.ch:
	default:
	}

	s.ch <- v
}
