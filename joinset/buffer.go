package joinset

// Buffer is a growable scratch array with doubling growth and visible
// over-allocation. Callers doing bulk indexed copies rely on Reserve
// leaving Cap() at least the requested size; the buffer never shrinks on
// its own. A Buffer is not safe for concurrent mutation, and Values
// becomes stale after any mutating call.
type Buffer[T any] struct {
	data []T
	n    int
}

// NewBuffer allocates a buffer with the given initial capacity.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// Len returns the number of appended elements.
func (b *Buffer[T]) Len() int { return b.n }

// Cap returns the allocated capacity.
func (b *Buffer[T]) Cap() int { return len(b.data) }

// Reserve grows the backing array by doubling until it holds at least
// min elements. Existing contents are preserved.
func (b *Buffer[T]) Reserve(min int) {
	if min <= len(b.data) {
		return
	}
	capacity := len(b.data)
	if capacity == 0 {
		capacity = min
	}
	for capacity < min {
		capacity *= 2
	}
	grown := make([]T, capacity)
	copy(grown, b.data)
	b.data = grown
}

// Append adds one element, growing if needed. O(1) amortized.
func (b *Buffer[T]) Append(v T) {
	b.Reserve(b.n + 1)
	b.data[b.n] = v
	b.n++
}

// SetLen declares n elements in use; the capacity must already cover n.
// Used together with Reserve for bulk indexed writes through Values.
func (b *Buffer[T]) SetLen(n int) {
	if n > len(b.data) {
		panic("joinset: Buffer.SetLen beyond capacity")
	}
	b.n = n
}

// Values returns the in-use prefix of the backing array. The slice is
// invalidated by the next mutating call.
func (b *Buffer[T]) Values() []T { return b.data[:b.n] }

// Reset empties the buffer without releasing its allocation.
func (b *Buffer[T]) Reset() { b.n = 0 }
