package pipeline

import (
	"context"
	"sync"
)

// dropQueue is a bounded FIFO that evicts its oldest item instead of
// blocking the producer. It supports one consumer.
type dropQueue[T any] struct {
	mu        sync.Mutex
	buf       []T
	head      int
	size      int
	closed    bool
	highWater int
	notify    chan struct{}
}

func newDropQueue[T any](capacity int) *dropQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &dropQueue[T]{
		buf:    make([]T, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Push appends v. When the queue is full the oldest item is evicted and
// returned with evicted=true. Pushing to a closed queue is ignored and
// reported with accepted=false.
func (q *dropQueue[T]) Push(v T) (old T, evicted bool, accepted bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return old, false, false
	}
	if q.size == len(q.buf) {
		old = q.buf[q.head]
		var zero T
		q.buf[q.head] = zero
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		evicted = true
	}
	q.buf[(q.head+q.size)%len(q.buf)] = v
	q.size++
	if q.size > q.highWater {
		q.highWater = q.size
	}
	q.mu.Unlock()

	q.signal()
	return old, evicted, true
}

// Pop blocks until an item is available, the queue is closed and empty, or
// ctx is done. A done ctx wins over queued items.
func (q *dropQueue[T]) Pop(ctx context.Context) (T, bool) {
	var zero T
	for {
		if ctx.Err() != nil {
			return zero, false
		}
		q.mu.Lock()
		if q.size > 0 {
			v := q.take()
			q.mu.Unlock()
			return v, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return zero, false
		}
		select {
		case <-ctx.Done():
			return zero, false
		case <-q.notify:
		}
	}
}

// Close stops accepting items. Queued items remain poppable.
func (q *dropQueue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Drain closes the queue and discards what is left, returning the count.
func (q *dropQueue[T]) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	n := q.size
	for q.size > 0 {
		q.take()
	}
	return n
}

func (q *dropQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *dropQueue[T]) Cap() int { return len(q.buf) }

// HighWater returns the largest length the queue has held.
func (q *dropQueue[T]) HighWater() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.highWater
}

// take removes the head item; q.mu must be held.
func (q *dropQueue[T]) take() T {
	v := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return v
}

func (q *dropQueue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
