package notify

import "sync"

// RingBuffer keeps the most recent items up to a fixed capacity. Once it
// is full each Write evicts the oldest item.
type RingBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int // index of the oldest item
	n     int
}

// NewRingBuffer creates a ring buffer holding at most capacity items.
// Capacities below one are raised to one.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	return &RingBuffer[T]{items: make([]T, max(capacity, 1))}
}

// Write appends v.
func (rb *RingBuffer[T]) Write(v T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.items)
	if rb.n < size {
		rb.items[(rb.head+rb.n)%size] = v
		rb.n++
		return
	}
	rb.items[rb.head] = v
	rb.head = (rb.head + 1) % size
}

// Len is the number of buffered items.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.n
}

// ReadAll returns the buffered items oldest first.
func (rb *RingBuffer[T]) ReadAll() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]T, rb.n)
	for i := range out {
		out[i] = rb.items[(rb.head+i)%len(rb.items)]
	}
	return out
}
