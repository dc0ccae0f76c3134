package push

import "sync"

// latch holds a value that is set at most once. The first resolve wins and
// later calls are no-ops, so several producers can race to settle it.
type latch[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
}

func newLatch[T any]() *latch[T] {
	return &latch[T]{done: make(chan struct{})}
}

// resolve stores v and releases waiters. It reports whether this call won.
func (l *latch[T]) resolve(v T) bool {
	won := false
	l.once.Do(func() {
		l.value = v
		close(l.done)
		won = true
	})
	return won
}

// Done is closed once the latch is resolved.
func (l *latch[T]) Done() <-chan struct{} {
	return l.done
}

// Value returns the resolved value. Only valid after Done is closed.
func (l *latch[T]) Value() T {
	<-l.done
	return l.value
}
