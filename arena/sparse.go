package arena

import (
	"fmt"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

const (
	pageBits = 8
	pageSize = 1 << pageBits
	pageMask = pageSize - 1
)

type sparseSlot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// Sparse is a slot map that leaves holes on removal. A value never moves once
// inserted, so pointers returned by Ptr stay valid until that value's own
// removal. Storage is allocated in fixed-size pages; growth appends pages and
// never copies existing slots.
//
// Holes are tracked in a roaring bitmap and Insert fills the lowest hole
// first, which keeps live data packed towards the front.
//
// The zero value is ready to use.
type Sparse[T any] struct {
	pages   []*[pageSize]sparseSlot[T]
	issued  uint32
	live    int
	holes   *roaring.Bitmap
	retired int
}

var _ Container[int] = (*Sparse[int])(nil)

// NewSparse returns a sparse arena with pages preallocated for capacity slots.
func NewSparse[T any](capacity int) *Sparse[T] {
	s := &Sparse[T]{holes: roaring.New()}
	for range (capacity + pageMask) / pageSize {
		s.pages = append(s.pages, new([pageSize]sparseSlot[T]))
	}
	return s
}

func (s *Sparse[T]) slot(idx uint32) *sparseSlot[T] {
	return &s.pages[idx>>pageBits][idx&pageMask]
}

func (s *Sparse[T]) bitmap() *roaring.Bitmap {
	if s.holes == nil {
		s.holes = roaring.New()
	}
	return s.holes
}

// Insert stores v in the lowest free hole, or in a fresh slot when there is
// none.
func (s *Sparse[T]) Insert(v T) Handle[T] {
	var idx uint32
	if holes := s.bitmap(); !holes.IsEmpty() {
		idx = holes.Minimum()
		holes.Remove(idx)
	} else {
		idx = s.issued
		if int(idx>>pageBits) == len(s.pages) {
			s.pages = append(s.pages, new([pageSize]sparseSlot[T]))
		}
		s.issued++
	}
	sl := s.slot(idx)
	sl.value = v
	sl.occupied = true
	s.live++
	return Handle[T]{index: idx, generation: sl.generation}
}

// Remove empties the slot in place and bumps its generation. No other value
// is moved.
func (s *Sparse[T]) Remove(h Handle[T]) (T, error) {
	sl, err := s.locate("remove", h)
	if err != nil {
		var zero T
		return zero, err
	}
	v := sl.value
	var zero T
	sl.value = zero
	sl.occupied = false
	s.live--

	if sl.generation == maxGeneration {
		s.retired++
	} else {
		sl.generation++
		s.bitmap().Add(h.index)
	}
	return v, nil
}

// Get returns a copy of the value referenced by h.
func (s *Sparse[T]) Get(h Handle[T]) (T, error) {
	sl, err := s.locate("get", h)
	if err != nil {
		var zero T
		return zero, err
	}
	return sl.value, nil
}

// Ptr returns the address of the stored value. The address is stable across
// unrelated inserts and removals and becomes invalid when h is removed.
func (s *Sparse[T]) Ptr(h Handle[T]) (*T, error) {
	sl, err := s.locate("ptr", h)
	if err != nil {
		return nil, err
	}
	return &sl.value, nil
}

// Update runs fn with a pointer to the stored value.
func (s *Sparse[T]) Update(h Handle[T], fn func(v *T)) error {
	sl, err := s.locate("update", h)
	if err != nil {
		return err
	}
	fn(&sl.value)
	return nil
}

// Contains reports whether h refers to a live value.
func (s *Sparse[T]) Contains(h Handle[T]) bool {
	_, err := s.locate("contains", h)
	return err == nil
}

// Len returns the number of live values.
func (s *Sparse[T]) Len() int { return s.live }

// Cap returns the number of slots ever issued, holes included.
func (s *Sparse[T]) Cap() int { return int(s.issued) }

// Holes returns the number of reusable empty slots.
func (s *Sparse[T]) Holes() int {
	if s.holes == nil {
		return 0
	}
	return int(s.holes.GetCardinality())
}

// All yields live values in slot order.
func (s *Sparse[T]) All() iter.Seq2[Handle[T], T] {
	return func(yield func(Handle[T], T) bool) {
		for idx := uint32(0); idx < s.issued; idx++ {
			sl := s.slot(idx)
			if !sl.occupied {
				continue
			}
			if !yield(Handle[T]{index: idx, generation: sl.generation}, sl.value) {
				return
			}
		}
	}
}

// Retain removes every value rejected by keep.
func (s *Sparse[T]) Retain(keep func(h Handle[T], v T) bool) int {
	removed := 0
	for idx := uint32(0); idx < s.issued; idx++ {
		sl := s.slot(idx)
		if !sl.occupied {
			continue
		}
		h := Handle[T]{index: idx, generation: sl.generation}
		if keep(h, sl.value) {
			continue
		}
		if _, err := s.Remove(h); err != nil {
			panic(fmt.Sprintf("arena: retain lost slot %d: %v", idx, err))
		}
		removed++
	}
	return removed
}

func (s *Sparse[T]) locate(op string, h Handle[T]) (*sparseSlot[T], error) {
	if h.index >= s.issued {
		return nil, handleErr(op, h, ErrOutOfRange)
	}
	sl := s.slot(h.index)
	if !sl.occupied || sl.generation != h.generation {
		return nil, handleErr(op, h, ErrStaleHandle)
	}
	return sl, nil
}
