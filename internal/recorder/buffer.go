package recorder

// EventBuffer is an append-only sequence owned by the recorder until it is
// handed to the finalizer.
type EventBuffer[T any] struct {
	items []T
}

// Append adds items in arrival order.
func (b *EventBuffer[T]) Append(items ...T) {
	b.items = append(b.items, items...)
}

// Len returns the number of buffered items.
func (b *EventBuffer[T]) Len() int {
	return len(b.items)
}

// Take transfers ownership of the buffered items and leaves b empty.
func (b *EventBuffer[T]) Take() []T {
	items := b.items
	b.items = nil
	return items
}
