package queue

import "sync"

// Buffer is a generic thread-safe staging area for batched writers.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewBuffer creates a new empty buffer.
func NewBuffer[T any]() *Buffer[T] {
	return &Buffer[T]{
		items: make([]T, 0),
	}
}

// Push appends items to the buffer.
func (b *Buffer[T]) Push(items ...T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, items...)
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Empty returns true if the buffer has no items.
func (b *Buffer[T]) Empty() bool {
	return b.Len() == 0
}

// GetAndEmpty returns all items and clears the buffer.
func (b *Buffer[T]) GetAndEmpty() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := b.items
	b.items = make([]T, 0, cap(b.items))
	return result
}
