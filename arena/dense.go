package arena

import (
	"fmt"
	"iter"

	"github.com/IvanBrykalov/arenacache/internal/util"
)

// vacant marks an indirection entry that currently owns no row.
const vacant = ^uint32(0)

// indirection is the per-slot entry handles resolve through.
// It persists across removals; only dataIndex and generation change.
type indirection struct {
	dataIndex  uint32
	generation uint32
}

// row is a packed value plus the index of the indirection entry that owns it,
// so the owner can be fixed up when the row is relocated.
type row[T any] struct {
	value T
	slot  uint32
}

// Dense is a swap-remove slot map. Values live in one contiguous slice and
// handles resolve through an indirection table, so Insert, Remove and Get are
// all O(1) and iteration walks packed memory.
//
// Removing a value moves the last row into the vacated position. Iteration
// order is therefore the packed-row order, which equals insertion order only
// until the first removal.
//
// The zero value is ready to use.
type Dense[T any] struct {
	rows    []row[T]
	slots   []indirection
	free    []uint32 // LIFO stack of reusable indirection slots
	retired int      // slots whose generation space is exhausted
}

var _ Container[int] = (*Dense[int])(nil)

// NewDense returns a dense arena with room for capacity values before the
// first reallocation. Capacity is rounded up to a power of two.
func NewDense[T any](capacity int) *Dense[T] {
	d := &Dense[T]{}
	if capacity > 0 {
		n := int(util.NextPow2(uint64(capacity)))
		d.rows = make([]row[T], 0, n)
		d.slots = make([]indirection, 0, n)
	}
	return d
}

// Insert appends v and returns its handle. A free indirection slot is reused
// when available; otherwise a new one is issued.
func (d *Dense[T]) Insert(v T) Handle[T] {
	var idx uint32
	if n := len(d.free); n > 0 {
		idx = d.free[n-1]
		d.free = d.free[:n-1]
	} else {
		idx = uint32(len(d.slots))
		d.slots = append(d.slots, indirection{})
	}
	s := &d.slots[idx]
	s.dataIndex = uint32(len(d.rows))
	d.rows = append(d.rows, row[T]{value: v, slot: idx})
	return Handle[T]{index: idx, generation: s.generation}
}

// Remove deletes the value referenced by h and returns it.
// The last row is swapped into the vacated position, and the generation of
// h's slot is bumped so every outstanding copy of h becomes stale.
func (d *Dense[T]) Remove(h Handle[T]) (T, error) {
	di, err := d.locate("remove", h)
	if err != nil {
		var zero T
		return zero, err
	}
	v := d.rows[di].value

	last := uint32(len(d.rows) - 1)
	if di != last {
		d.rows[di] = d.rows[last]
		d.slots[d.rows[di].slot].dataIndex = di
	}
	var zero row[T]
	d.rows[last] = zero // drop references held by the popped row
	d.rows = d.rows[:last]

	d.release(h.index)
	return v, nil
}

// Get returns a copy of the value referenced by h.
func (d *Dense[T]) Get(h Handle[T]) (T, error) {
	di, err := d.locate("get", h)
	if err != nil {
		var zero T
		return zero, err
	}
	return d.rows[di].value, nil
}

// Update runs fn with a pointer to the stored value.
// The pointer is invalidated by the next Insert or Remove.
func (d *Dense[T]) Update(h Handle[T], fn func(v *T)) error {
	di, err := d.locate("update", h)
	if err != nil {
		return err
	}
	fn(&d.rows[di].value)
	return nil
}

// Contains reports whether h refers to a live value.
func (d *Dense[T]) Contains(h Handle[T]) bool {
	_, err := d.locate("contains", h)
	return err == nil
}

// Position returns the packed-row position currently holding h's value.
// Positions change whenever another value is swap-removed into place.
func (d *Dense[T]) Position(h Handle[T]) (int, error) {
	di, err := d.locate("position", h)
	return int(di), err
}

// Len returns the number of live values.
func (d *Dense[T]) Len() int { return len(d.rows) }

// Cap returns the number of indirection slots ever issued.
func (d *Dense[T]) Cap() int { return len(d.slots) }

// All yields live values in packed-row order (not insertion order).
// The sequence is lazy and can be ranged over repeatedly.
func (d *Dense[T]) All() iter.Seq2[Handle[T], T] {
	return func(yield func(Handle[T], T) bool) {
		for i := range d.rows {
			r := &d.rows[i]
			h := Handle[T]{index: r.slot, generation: d.slots[r.slot].generation}
			if !yield(h, r.value) {
				return
			}
		}
	}
}

// Values yields live values in packed-row order.
func (d *Dense[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := range d.rows {
			if !yield(d.rows[i].value) {
				return
			}
		}
	}
}

// Retain removes every value rejected by keep.
func (d *Dense[T]) Retain(keep func(h Handle[T], v T) bool) int {
	removed := 0
	// Walk backwards so the row swapped into position i was already visited.
	for i := len(d.rows) - 1; i >= 0; i-- {
		r := d.rows[i]
		h := Handle[T]{index: r.slot, generation: d.slots[r.slot].generation}
		if keep(h, r.value) {
			continue
		}
		if _, err := d.Remove(h); err != nil {
			panic(fmt.Sprintf("arena: retain lost row %d: %v", i, err))
		}
		removed++
	}
	return removed
}

// Clear removes every value and invalidates all outstanding handles.
func (d *Dense[T]) Clear() {
	for len(d.rows) > 0 {
		r := d.rows[len(d.rows)-1]
		d.rows = d.rows[:len(d.rows)-1]
		d.release(r.slot)
	}
	clear(d.rows[:cap(d.rows)])
}

// locate validates h and returns the packed-row position of its value.
func (d *Dense[T]) locate(op string, h Handle[T]) (uint32, error) {
	if int(h.index) >= len(d.slots) {
		return 0, handleErr(op, h, ErrOutOfRange)
	}
	s := d.slots[h.index]
	if s.generation != h.generation || s.dataIndex == vacant {
		return 0, handleErr(op, h, ErrStaleHandle)
	}
	if int(s.dataIndex) >= len(d.rows) || d.rows[s.dataIndex].slot != h.index {
		panic(fmt.Sprintf("arena: dense indirection %d points at row %d owned by %d",
			h.index, s.dataIndex, d.ownerOf(s.dataIndex)))
	}
	return s.dataIndex, nil
}

func (d *Dense[T]) ownerOf(di uint32) int64 {
	if int(di) >= len(d.rows) {
		return -1
	}
	return int64(d.rows[di].slot)
}

// release invalidates slot idx and makes it reusable unless its generation
// space is exhausted.
func (d *Dense[T]) release(idx uint32) {
	s := &d.slots[idx]
	s.dataIndex = vacant
	if s.generation == maxGeneration {
		d.retired++
		return
	}
	s.generation++
	d.free = append(d.free, idx)
}
