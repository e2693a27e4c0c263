package queue

import "iter"

const (
	minCapacity = 16
	// compactAfter is the number of consumed slots after which a push
	// reallocates instead of growing a mostly dead backing array.
	compactAfter = 1024
)

// Queue is a persistent FIFO. Push and PopN return a new Queue and leave the
// receiver untouched, so every older value remains a valid snapshot.
//
// Values share one backing array. Only the newest version (the one whose
// length matches the shared tip) may append in place; any other version
// copies its live items before pushing. The zero value is an empty queue.
type Queue[T any] struct {
	items []T
	head  int
	tip   *int
}

// Len returns the number of items in the queue.
func (q Queue[T]) Len() int {
	return len(q.items) - q.head
}

// Empty returns true if the queue has no items.
func (q Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Push returns a queue with items appended at the back.
func (q Queue[T]) Push(items ...T) Queue[T] {
	if len(items) == 0 {
		return q
	}
	if !q.owned() || (q.head >= compactAfter && q.head*2 >= len(q.items)) {
		q = q.detach(len(items))
	}
	q.items = append(q.items, items...)
	*q.tip = len(q.items)
	return q
}

// Peek returns the first item without removing it.
func (q Queue[T]) Peek() (T, bool) {
	if q.Empty() {
		var zero T
		return zero, false
	}
	return q.items[q.head], true
}

// PopN removes up to n items from the front. The returned slice is a copy.
func (q Queue[T]) PopN(n int) ([]T, Queue[T]) {
	n = min(max(n, 0), q.Len())
	if n == 0 {
		return nil, q
	}
	out := make([]T, n)
	copy(out, q.items[q.head:q.head+n])
	q.head += n
	return out, q
}

// All iterates the items front to back.
func (q Queue[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, item := range q.items[q.head:] {
			if !yield(item) {
				return
			}
		}
	}
}

// Slice returns a copy of the items front to back.
func (q Queue[T]) Slice() []T {
	out := make([]T, q.Len())
	copy(out, q.items[q.head:])
	return out
}

func (q Queue[T]) owned() bool {
	return q.tip != nil && *q.tip == len(q.items)
}

func (q Queue[T]) detach(extra int) Queue[T] {
	live := q.items[q.head:]
	buf := make([]T, len(live), max(2*(len(live)+extra), minCapacity))
	copy(buf, live)
	tip := len(buf)
	return Queue[T]{items: buf, tip: &tip}
}
