// Package fifo provides an unbounded, mutex-guarded first-in first-out queue.
package fifo

import "sync"

// Queue is safe for concurrent use. The zero value is an empty queue.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
}

// Push appends v to the tail of the queue.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

// Pop removes and returns the oldest element.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	q.compact()
	return v, true
}

// Remove deletes the first element for which match returns true.
func (q *Queue[T]) Remove(match func(T) bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := q.head; i < len(q.items); i++ {
		if match(q.items[i]) {
			copy(q.items[i:], q.items[i+1:])
			var zero T
			q.items[len(q.items)-1] = zero
			q.items = q.items[:len(q.items)-1]
			q.compact()
			return true
		}
	}
	return false
}

// Drain empties the queue and returns its elements in order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, len(q.items)-q.head)
	copy(out, q.items[q.head:])
	q.items = nil
	q.head = 0
	return out
}

// Len reports the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// compact reclaims the consumed prefix once it dominates the backing array.
// Must be called with q.mu held.
func (q *Queue[T]) compact() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head > 32 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
}
