package ecs

// Queue is a FIFO of pending messages. Producers push from event handlers; the
// frame loop drains once per tick so handlers never run inside frame work.
type Queue[T any] struct {
	items []T
}

// Push adds an item.
func (q *Queue[T]) Push(item T) {
	if q == nil {
		return
	}
	q.items = append(q.items, item)
}

// Drain returns all queued items and clears the queue.
func (q *Queue[T]) Drain() []T {
	if q == nil || len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len reports how many items are waiting.
func (q *Queue[T]) Len() int {
	if q == nil {
		return 0
	}
	return len(q.items)
}

// Clear drops every queued item.
func (q *Queue[T]) Clear() {
	if q == nil {
		return
	}
	q.items = nil
}
