// Package queue provides the bounded ring queue used to hand ticks from the
// feed read loop to its consumers. Producers never block: when the queue is
// full the oldest entry is discarded, so a slow consumer costs dropped ticks
// rather than stalled ingestion.
package queue

import "sync"

// Ring is a fixed-capacity FIFO with drop-oldest overflow.
type Ring[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	pushed  int64
	popped  int64
	dropped int64
}

// Stats reports queue counters.
type Stats struct {
	Pushed  int64
	Popped  int64
	Dropped int64
	Depth   int
}

// NewRing creates a ring with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Push adds an item without blocking. If the ring is full the oldest item
// is discarded to make room. Returns false if the ring is closed.
func (r *Ring[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	if r.count == r.capacity {
		// Overwrite the oldest entry
		r.head = (r.head + 1) % r.capacity
		r.count--
		r.dropped++
	}

	r.buf[r.tail] = item
	r.tail = (r.tail + 1) % r.capacity
	r.count++
	r.pushed++

	r.cond.Signal()
	return true
}

// Pop removes and returns the oldest item, blocking until one is available
// or the ring is closed. Returns the zero value and false once closed and
// drained.
func (r *Ring[T]) Pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.count == 0 && !r.closed {
		r.cond.Wait()
	}

	if r.count == 0 {
		var zero T
		return zero, false
	}

	item := r.buf[r.head]
	var zero T
	r.buf[r.head] = zero // release reference for GC
	r.head = (r.head + 1) % r.capacity
	r.count--
	r.popped++

	return item, true
}

// Close marks the ring closed and wakes all blocked consumers. Items already
// queued remain poppable. Safe to call more than once.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Stats returns current counters.
func (r *Ring[T]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Pushed:  r.pushed,
		Popped:  r.popped,
		Dropped: r.dropped,
		Depth:   r.count,
	}
}
