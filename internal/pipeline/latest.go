package pipeline

import "sync"

// Latest is a single-slot mailbox. Put overwrites any value not yet taken, so
// a slow reader always sees the freshest value and never a backlog.
type Latest[T any] struct {
	mu      sync.Mutex
	val     T
	has     bool
	dropped uint64
	ready   chan struct{}
}

// NewLatest returns an empty mailbox.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{ready: make(chan struct{}, 1)}
}

// Put stores v, replacing any untaken value.
func (l *Latest[T]) Put(v T) {
	l.mu.Lock()
	if l.has {
		l.dropped++
	}
	l.val, l.has = v, true
	l.mu.Unlock()

	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// Take returns the stored value and empties the slot.
func (l *Latest[T]) Take() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	if !l.has {
		return zero, false
	}
	v := l.val
	l.val, l.has = zero, false
	return v, true
}

// Ready is signalled after a Put. A signal may be stale; Take reports
// whether a value is actually present.
func (l *Latest[T]) Ready() <-chan struct{} { return l.ready }

// Dropped returns how many values were overwritten before being taken.
func (l *Latest[T]) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
