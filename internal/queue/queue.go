// Package queue provides the hand-off between the price feed and its single consumer.
package queue

import "sync"

const minCapacity = 16

// Queue is an unbounded, thread-safe FIFO. Push never blocks; the buffer
// doubles when full. Drain is meant to be called by a single consumer.
type Queue[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   int // read position
	count  int
	closed bool

	// Stats
	totalPushed  int64
	totalDrained int64
	resizeCount  int
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Count        int
	Capacity     int
	TotalPushed  int64
	TotalDrained int64
	ResizeCount  int
}

// New creates a queue with the given initial capacity.
func New[T any](initialCapacity int) *Queue[T] {
	if initialCapacity < minCapacity {
		initialCapacity = minCapacity
	}
	return &Queue[T]{buf: make([]T, initialCapacity)}
}

// Push appends item. It returns false once the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.count == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.count)%len(q.buf)] = item
	q.count++
	q.totalPushed++
	return true
}

// Drain removes and returns every queued item in push order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}
	out := make([]T, q.count)
	var zero T
	for i := 0; i < q.count; i++ {
		idx := (q.head + i) % len(q.buf)
		out[i] = q.buf[idx]
		q.buf[idx] = zero // Clear reference for GC
	}
	q.totalDrained += int64(q.count)
	q.head = 0
	q.count = 0
	return out
}

// Close stops accepting new items and discards whatever is still queued.
func (q *Queue[T]) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	dropped := q.count
	var zero T
	for i := range q.buf {
		q.buf[i] = zero
	}
	q.head = 0
	q.count = 0
	return dropped
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Count:        q.count,
		Capacity:     len(q.buf),
		TotalPushed:  q.totalPushed,
		TotalDrained: q.totalDrained,
		ResizeCount:  q.resizeCount,
	}
}

// grow doubles the buffer, unwrapping the ring. Must be called with mu held.
func (q *Queue[T]) grow() {
	next := make([]T, len(q.buf)*2)
	for i := 0; i < q.count; i++ {
		next[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = next
	q.head = 0
	q.resizeCount++
}
