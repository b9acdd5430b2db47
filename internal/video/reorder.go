package video

// reorderBuffer releases items in index order regardless of arrival order.
type reorderBuffer[T any] struct {
	next    int
	pending map[int]T
}

func newReorderBuffer[T any]() *reorderBuffer[T] {
	return &reorderBuffer[T]{pending: make(map[int]T)}
}

// push stores item at index and returns every item that is now in sequence.
func (b *reorderBuffer[T]) push(index int, item T) []T {
	b.pending[index] = item

	var ready []T
	for {
		next, ok := b.pending[b.next]
		if !ok {
			return ready
		}
		delete(b.pending, b.next)
		ready = append(ready, next)
		b.next++
	}
}

// drain returns everything still held, in no particular order.
func (b *reorderBuffer[T]) drain() []T {
	items := make([]T, 0, len(b.pending))
	for index, item := range b.pending {
		items = append(items, item)
		delete(b.pending, index)
	}
	return items
}

func (b *reorderBuffer[T]) pendingCount() int {
	return len(b.pending)
}
