package ring

// Buffer is a fixed-capacity circular buffer.
//
// The capacity is set at construction and never grows. When the buffer is
// full, Push overwrites the oldest entry. There is no loss signaling beyond
// the overwrite; consumers that need every sample must drain faster than the
// producer fills.
//
// Buffer is not safe for concurrent use. In this engine it is only touched
// from the single tick-handling context.
type Buffer[T any] struct {
	items []T
	head  int // index of the oldest entry
	count int
}

// New returns a buffer holding at most capacity entries.
// A capacity <= 0 yields a buffer that silently discards everything.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, overwriting the oldest entry when full.
func (b *Buffer[T]) Push(v T) {
	if len(b.items) == 0 {
		return
	}
	if b.count < len(b.items) {
		b.items[(b.head+b.count)%len(b.items)] = v
		b.count++
		return
	}
	b.items[b.head] = v
	b.head = (b.head + 1) % len(b.items)
}

// Len reports the number of entries currently held.
func (b *Buffer[T]) Len() int { return b.count }

// Cap reports the fixed capacity.
func (b *Buffer[T]) Cap() int { return len(b.items) }

// Snapshot returns the entries oldest-first in a fresh slice.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Reset discards all entries but keeps the allocation.
func (b *Buffer[T]) Reset() {
	b.head = 0
	b.count = 0
}
