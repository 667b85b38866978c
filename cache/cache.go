package cache

// Ring is a fixed-capacity FIFO. Pushing onto a full ring evicts the oldest
// element. Ring is not safe for concurrent use; owners guard it with their
// own lock.
type Ring[T any] struct {
	buf  []T
	head int // index of the oldest element
	size int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

func (r *Ring[T]) Len() int { return r.size }

func (r *Ring[T]) Cap() int { return len(r.buf) }

// Push appends v. When the ring was full the evicted oldest element is
// returned with ok=true.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.size == len(r.buf) {
		evicted = r.buf[r.head]
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		return evicted, true
	}
	r.buf[(r.head+r.size)%len(r.buf)] = v
	r.size++
	return evicted, false
}

// PopFront removes and returns the oldest element.
func (r *Ring[T]) PopFront() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return v, true
}

// Items returns a copy of the contents, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

// Drain returns the contents oldest first and empties the ring.
func (r *Ring[T]) Drain() []T {
	out := r.Items()
	r.Clear()
	return out
}

func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.size = 0
}

// Update applies fn to the first element matching pred, in place.
// It reports whether an element matched.
func (r *Ring[T]) Update(pred func(T) bool, fn func(*T)) bool {
	for i := 0; i < r.size; i++ {
		idx := (r.head + i) % len(r.buf)
		if pred(r.buf[idx]) {
			fn(&r.buf[idx])
			return true
		}
	}
	return false
}

// Find returns the first element matching pred.
func (r *Ring[T]) Find(pred func(T) bool) (T, bool) {
	for i := 0; i < r.size; i++ {
		v := r.buf[(r.head+i)%len(r.buf)]
		if pred(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// RemoveFunc drops every element matching pred, keeping order, and returns
// how many were removed.
func (r *Ring[T]) RemoveFunc(pred func(T) bool) int {
	kept := make([]T, 0, r.size)
	removed := 0
	for _, v := range r.Items() {
		if pred(v) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	if removed == 0 {
		return 0
	}
	r.Clear()
	for _, v := range kept {
		r.Push(v)
	}
	return removed
}
