// Package mpsc provides an unbounded many-producer single-consumer queue.
package mpsc

import "sync"

// Queue collects items pushed from any goroutine and hands them to one
// consumer in batches.
//
// Push never blocks on the consumer and Drain never waits for producers:
// a consumer that drains an empty queue gets nil back immediately.
//
// The zero value is ready to use.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	spare  []T // recycled backing array from the previous Drain
	closed bool
}

// Push appends v. It reports false, dropping v, once the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	return true
}

// Drain removes and returns every queued item in push order. The returned
// slice is owned by the caller until the next call to Drain.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	clear(q.spare)
	q.items, q.spare = q.spare[:0], out
	return out
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close discards queued items and rejects later pushes.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items, q.spare = nil, nil
}

// Closed reports whether Close was called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
