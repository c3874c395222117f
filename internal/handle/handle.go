// Package handle provides generational handles and the arena tables that
// hand them out. A handle stays valid until its slot is freed; afterwards the
// slot's generation moves on and the old handle resolves to nothing.
package handle

import "fmt"

// Handle identifies an entry in a Table
type Handle struct {
	Index      uint32 `json:"index"`
	Generation uint32 `json:"generation"`
}

// Nil is the not-found sentinel. Live handles always carry a generation >= 1.
var Nil Handle

// IsNil reports whether h is the not-found sentinel
func (h Handle) IsNil() bool {
	return h.Generation == 0
}

func (h Handle) String() string {
	if h.IsNil() {
		return "handle(nil)"
	}
	return fmt.Sprintf("handle(%d@%d)", h.Index, h.Generation)
}

type slot[T any] struct {
	value      T
	generation uint32
	used       bool
}

// Table is an arena of values addressed by generational handles.
// Table is not safe for concurrent use; owners guard it with their own lock.
type Table[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

// NewTable creates an empty table
func NewTable[T any]() *Table[T] {
	return &Table[T]{}
}

// Insert stores v and returns its handle
func (t *Table[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot[T]{})
	}

	s := &t.slots[idx]
	s.generation++
	if s.generation == 0 {
		// wrapped; generation 0 is reserved for Nil
		s.generation = 1
	}
	s.value = v
	s.used = true
	t.live++

	return Handle{Index: idx, Generation: s.generation}
}

// Get resolves h. Stale and nil handles report false.
func (t *Table[T]) Get(h Handle) (T, bool) {
	var zero T
	if !t.valid(h) {
		return zero, false
	}
	return t.slots[h.Index].value, true
}

// Set replaces the value behind a live handle
func (t *Table[T]) Set(h Handle, v T) bool {
	if !t.valid(h) {
		return false
	}
	t.slots[h.Index].value = v
	return true
}

// Remove frees the slot behind h and returns the value it held
func (t *Table[T]) Remove(h Handle) (T, bool) {
	var zero T
	if !t.valid(h) {
		return zero, false
	}

	s := &t.slots[h.Index]
	v := s.value
	s.value = zero
	s.used = false
	t.free = append(t.free, h.Index)
	t.live--

	return v, true
}

// Contains reports whether h is live
func (t *Table[T]) Contains(h Handle) bool {
	return t.valid(h)
}

// Len returns the number of live entries
func (t *Table[T]) Len() int {
	return t.live
}

// Each calls fn for every live entry in slot order until fn returns false
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	for i := range t.slots {
		s := &t.slots[i]
		if !s.used {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: s.generation}, s.value) {
			return
		}
	}
}

func (t *Table[T]) valid(h Handle) bool {
	if h.IsNil() || int(h.Index) >= len(t.slots) {
		return false
	}
	s := &t.slots[h.Index]
	return s.used && s.generation == h.Generation
}
