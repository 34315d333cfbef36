// Package telemetry provides the bounded buffers and prometheus metrics
// that back the rollout audit trail.
package telemetry

import "encoding/json"

// Ring is a fixed-capacity circular buffer. Once full, each push evicts
// the oldest entry; the backing array never grows. It serializes as a
// plain JSON array in chronological order.
type Ring[T any] struct {
	capacity int
	buf      []T
	start    int
	size     int
}

// NewRing creates a ring holding at most capacity entries.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{capacity: capacity}
}

// Push appends an entry, evicting the oldest when full.
func (r *Ring[T]) Push(v T) {
	if r.buf == nil {
		r.buf = make([]T, r.capacity)
	}
	if r.size < r.capacity {
		r.buf[(r.start+r.size)%r.capacity] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % r.capacity
}

// Len returns the number of buffered entries.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the ring's capacity.
func (r *Ring[T]) Cap() int { return r.capacity }

// Items returns the buffered entries oldest-first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%r.capacity]
	}
	return out
}

// Last returns the newest entry, if any.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.buf[(r.start+r.size-1)%r.capacity], true
}

// SetCapacity resizes the ring, keeping the newest n entries. Records
// loaded from storage call this to re-impose their configured bounds.
func (r *Ring[T]) SetCapacity(n int) {
	if n < 1 {
		n = 1
	}
	items := r.Items()
	if len(items) > n {
		items = items[len(items)-n:]
	}
	r.capacity = n
	r.buf = make([]T, n)
	r.start = 0
	r.size = copy(r.buf, items)
}

// MarshalJSON encodes the entries oldest-first.
func (r *Ring[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Items())
}

// UnmarshalJSON decodes a JSON array into the ring. A zero-value ring
// adopts the array length as its capacity; the owner re-imposes the real
// bound via SetCapacity afterwards.
func (r *Ring[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if r.capacity < 1 {
		r.capacity = len(items)
		if r.capacity < 1 {
			r.capacity = 1
		}
	}
	r.buf = make([]T, r.capacity)
	r.start = 0
	r.size = 0
	for _, it := range items {
		r.Push(it)
	}
	return nil
}
