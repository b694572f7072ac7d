package rollback

// Window is a fixed-size ring addressed by absolute tick.
// It holds the contiguous ticks [Start, End).
type Window[T any] struct {
	first int64 // lowest tick held
	start int   // index of first in data
	count int
	data  []T
}

// NewWindow creates an empty window of n slots whose first push is tick first.
func NewWindow[T any](n int, first int64) *Window[T] {
	if n < 1 {
		n = 1
	}
	return &Window[T]{
		first: first,
		data:  make([]T, n),
	}
}

// Start returns the lowest tick held.
func (w *Window[T]) Start() int64 {
	return w.first
}

// End returns one past the highest tick held.
func (w *Window[T]) End() int64 {
	return w.first + int64(w.count)
}

// Len returns how many ticks are held.
func (w *Window[T]) Len() int {
	return w.count
}

// Cap returns the window size.
func (w *Window[T]) Cap() int {
	return len(w.data)
}

// Contains reports whether tick is held.
func (w *Window[T]) Contains(tick int64) bool {
	return tick >= w.first && tick < w.End()
}

func (w *Window[T]) posToIndex(tick int64) int {
	return (w.start + int(tick-w.first)) % len(w.data)
}

// Get returns the value stored for tick.
func (w *Window[T]) Get(tick int64) (T, bool) {
	if !w.Contains(tick) {
		var zero T
		return zero, false
	}
	return w.data[w.posToIndex(tick)], true
}

// Set replaces the value of a held tick. It returns false if tick is not held.
func (w *Window[T]) Set(tick int64, v T) bool {
	if !w.Contains(tick) {
		return false
	}
	w.data[w.posToIndex(tick)] = v
	return true
}

// Push appends v as tick End(). When the window is full the oldest tick is
// dropped first.
func (w *Window[T]) Push(v T) {
	if w.count == len(w.data) {
		w.Advance()
	}
	w.data[w.posToIndex(w.first+int64(w.count))] = v
	w.count++
}

// Advance drops the oldest tick.
func (w *Window[T]) Advance() {
	if w.count == 0 {
		w.first++
		return
	}
	var zero T
	w.data[w.start] = zero
	w.start = (w.start + 1) % len(w.data)
	w.first++
	w.count--
}

// Reset empties the window and sets the next push to tick first.
func (w *Window[T]) Reset(first int64) {
	clear(w.data)
	w.first = first
	w.start = 0
	w.count = 0
}
