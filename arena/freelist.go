package arena

import (
	"fmt"
	"iter"
)

type freeSlot[T any] struct {
	value    T
	occupied bool
}

// FreeList recycles slots without generation checks. Every handle carries
// generation 0 and a removed index is handed out again by the very next
// Insert (LIFO). An old handle to a reused index resolves to the new value:
// callers must not keep a handle past its Remove.
//
// A value's index equals its storage position for its whole lifetime, which
// keeps index-to-resource mappings coherent under iteration.
//
// The zero value is ready to use.
type FreeList[T any] struct {
	slots []freeSlot[T]
	free  []uint32
	live  int
}

var _ Container[int] = (*FreeList[int])(nil)

// NewFreeList returns a free list with room for capacity values.
func NewFreeList[T any](capacity int) *FreeList[T] {
	return &FreeList[T]{slots: make([]freeSlot[T], 0, max(capacity, 0))}
}

// Insert stores v at the most recently freed index, or appends.
func (f *FreeList[T]) Insert(v T) Handle[T] {
	var idx uint32
	if n := len(f.free); n > 0 {
		idx = f.free[n-1]
		f.free = f.free[:n-1]
		f.slots[idx] = freeSlot[T]{value: v, occupied: true}
	} else {
		idx = uint32(len(f.slots))
		f.slots = append(f.slots, freeSlot[T]{value: v, occupied: true})
	}
	f.live++
	return Handle[T]{index: idx}
}

// Remove vacates h's slot and returns its value.
func (f *FreeList[T]) Remove(h Handle[T]) (T, error) {
	sl, err := f.locate("remove", h)
	if err != nil {
		var zero T
		return zero, err
	}
	v := sl.value
	*sl = freeSlot[T]{}
	f.free = append(f.free, h.index)
	f.live--
	return v, nil
}

// Get returns a copy of the value at h's index.
func (f *FreeList[T]) Get(h Handle[T]) (T, error) {
	sl, err := f.locate("get", h)
	if err != nil {
		var zero T
		return zero, err
	}
	return sl.value, nil
}

// Update runs fn with a pointer to the value at h's index.
func (f *FreeList[T]) Update(h Handle[T], fn func(v *T)) error {
	sl, err := f.locate("update", h)
	if err != nil {
		return err
	}
	fn(&sl.value)
	return nil
}

// Contains reports whether h's index is occupied.
func (f *FreeList[T]) Contains(h Handle[T]) bool {
	_, err := f.locate("contains", h)
	return err == nil
}

// Len returns the number of occupied slots.
func (f *FreeList[T]) Len() int { return f.live }

// Cap returns the number of slots ever allocated.
func (f *FreeList[T]) Cap() int { return len(f.slots) }

// All yields occupied slots in index order.
func (f *FreeList[T]) All() iter.Seq2[Handle[T], T] {
	return func(yield func(Handle[T], T) bool) {
		for i := range f.slots {
			if !f.slots[i].occupied {
				continue
			}
			if !yield(Handle[T]{index: uint32(i)}, f.slots[i].value) {
				return
			}
		}
	}
}

// Retain removes every value rejected by keep.
func (f *FreeList[T]) Retain(keep func(h Handle[T], v T) bool) int {
	removed := 0
	for i := range f.slots {
		if !f.slots[i].occupied {
			continue
		}
		h := Handle[T]{index: uint32(i)}
		if keep(h, f.slots[i].value) {
			continue
		}
		if _, err := f.Remove(h); err != nil {
			panic(fmt.Sprintf("arena: retain lost slot %d: %v", i, err))
		}
		removed++
	}
	return removed
}

// locate ignores the handle generation.
func (f *FreeList[T]) locate(op string, h Handle[T]) (*freeSlot[T], error) {
	if int(h.index) >= len(f.slots) {
		return nil, handleErr(op, h, ErrOutOfRange)
	}
	sl := &f.slots[h.index]
	if !sl.occupied {
		return nil, handleErr(op, h, ErrStaleHandle)
	}
	return sl, nil
}
