// Package queue provides the fixed-capacity FIFO used to hand data between
// network goroutines and the single consumer tick.
package queue

import "sync"

// Ring is a mutex-guarded circular buffer. Every operation is non-blocking:
// enqueue on a full ring and dequeue on an empty ring fail immediately.
type Ring[T any] struct {
	mu    sync.Mutex
	buf   []T
	head  int
	tail  int
	count int
}

// New creates a ring holding at most capacity items. A capacity below one is
// raised to one.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// TryEnqueue appends item and reports whether there was room. A full ring is
// left unchanged.
func (r *Ring[T]) TryEnqueue(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == len(r.buf) {
		return false
	}
	r.buf[r.tail] = item
	r.tail = (r.tail + 1) % len(r.buf)
	r.count++
	return true
}

// TryDequeue removes and returns the oldest item.
func (r *Ring[T]) TryDequeue() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.count == 0 {
		return zero, false
	}
	item := r.buf[r.head]
	r.buf[r.head] = zero // release references held by the slot
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return item, true
}

// Len returns the number of queued items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Clear drops every queued item.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.buf)
	r.head, r.tail, r.count = 0, 0, 0
}
