package arena

import (
	"fmt"
	"iter"
	"slices"
)

// Sorted is a dense arena whose packed rows are kept ordered by cmp.
// Insert and Remove shift rows instead of swapping, so both are O(n);
// lookups by handle stay O(1). Equal values keep their insertion order.
//
// Use it for small, read-mostly sets that are iterated in order every frame
// (sort keys, draw lists).
type Sorted[T any] struct {
	cmp     func(a, b T) int
	rows    []row[T]
	slots   []indirection
	free    []uint32
	retired int
}

var _ Container[int] = (*Sorted[int])(nil)

// NewSorted returns an empty sorted arena ordered by cmp.
func NewSorted[T any](cmp func(a, b T) int) *Sorted[T] {
	if cmp == nil {
		panic("arena: NewSorted requires a comparison function")
	}
	return &Sorted[T]{cmp: cmp}
}

// Insert places v after every row that compares less than or equal to it.
func (s *Sorted[T]) Insert(v T) Handle[T] {
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = uint32(len(s.slots))
		s.slots = append(s.slots, indirection{})
	}
	s.place(idx, v)
	return Handle[T]{index: idx, generation: s.slots[idx].generation}
}

// place inserts a row owned by idx at its ordered position and repoints the
// rows after it.
func (s *Sorted[T]) place(idx uint32, v T) {
	pos := s.upperBound(v)
	s.rows = slices.Insert(s.rows, pos, row[T]{value: v, slot: idx})
	s.reindex(pos)
}

func (s *Sorted[T]) upperBound(v T) int {
	lo, hi := 0, len(s.rows)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if s.cmp(s.rows[mid].value, v) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (s *Sorted[T]) reindex(from int) {
	for i := from; i < len(s.rows); i++ {
		s.slots[s.rows[i].slot].dataIndex = uint32(i)
	}
}

// unplace removes the row at pos and repoints the rows after it.
func (s *Sorted[T]) unplace(pos uint32) T {
	v := s.rows[pos].value
	s.rows = slices.Delete(s.rows, int(pos), int(pos)+1)
	s.reindex(int(pos))
	return v
}

// Remove deletes h's value, preserving the order of the remaining rows.
func (s *Sorted[T]) Remove(h Handle[T]) (T, error) {
	pos, err := s.locate("remove", h)
	if err != nil {
		var zero T
		return zero, err
	}
	v := s.unplace(pos)
	sl := &s.slots[h.index]
	sl.dataIndex = vacant
	if sl.generation == maxGeneration {
		s.retired++
	} else {
		sl.generation++
		s.free = append(s.free, h.index)
	}
	return v, nil
}

// Get returns a copy of the value referenced by h.
func (s *Sorted[T]) Get(h Handle[T]) (T, error) {
	pos, err := s.locate("get", h)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.rows[pos].value, nil
}

// Update runs fn on a copy of the value and moves the row if its sort
// position changed. The handle stays valid.
func (s *Sorted[T]) Update(h Handle[T], fn func(v *T)) error {
	pos, err := s.locate("update", h)
	if err != nil {
		return err
	}
	v := s.rows[pos].value
	fn(&v)
	s.unplace(pos)
	s.place(h.index, v)
	return nil
}

// Contains reports whether h refers to a live value.
func (s *Sorted[T]) Contains(h Handle[T]) bool {
	_, err := s.locate("contains", h)
	return err == nil
}

// Len returns the number of live values.
func (s *Sorted[T]) Len() int { return len(s.rows) }

// All yields live values in ascending order.
func (s *Sorted[T]) All() iter.Seq2[Handle[T], T] {
	return func(yield func(Handle[T], T) bool) {
		for i := range s.rows {
			r := &s.rows[i]
			if !yield(Handle[T]{index: r.slot, generation: s.slots[r.slot].generation}, r.value) {
				return
			}
		}
	}
}

// Retain removes every value rejected by keep, preserving order.
func (s *Sorted[T]) Retain(keep func(h Handle[T], v T) bool) int {
	kept := s.rows[:0]
	removed := 0
	for _, r := range s.rows {
		sl := &s.slots[r.slot]
		if keep(Handle[T]{index: r.slot, generation: sl.generation}, r.value) {
			kept = append(kept, r)
			continue
		}
		sl.dataIndex = vacant
		if sl.generation == maxGeneration {
			s.retired++
		} else {
			sl.generation++
			s.free = append(s.free, r.slot)
		}
		removed++
	}
	clear(s.rows[len(kept):])
	s.rows = kept
	s.reindex(0)
	return removed
}

func (s *Sorted[T]) locate(op string, h Handle[T]) (uint32, error) {
	if int(h.index) >= len(s.slots) {
		return 0, handleErr(op, h, ErrOutOfRange)
	}
	sl := s.slots[h.index]
	if sl.generation != h.generation || sl.dataIndex == vacant {
		return 0, handleErr(op, h, ErrStaleHandle)
	}
	if int(sl.dataIndex) >= len(s.rows) || s.rows[sl.dataIndex].slot != h.index {
		panic(fmt.Sprintf("arena: sorted indirection %d lost its row", h.index))
	}
	return sl.dataIndex, nil
}
