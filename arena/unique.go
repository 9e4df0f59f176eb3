package arena

import (
	"fmt"
	"iter"
)

// Unique wraps a generation-checked container and keeps a value→handle index
// so that no two live handles refer to equal values.
//
// The index and the inner container are kept bijective: every mutating
// method either updates both or neither.
type Unique[T comparable] struct {
	inner Container[T]
	index map[T]Handle[T]
}

// NewUnique returns a Unique over inner. A nil inner defaults to a Dense
// arena. inner must be empty and must not be mutated except through the
// returned Unique.
func NewUnique[T comparable](inner Container[T]) *Unique[T] {
	if inner == nil {
		inner = &Dense[T]{}
	}
	if inner.Len() != 0 {
		panic("arena: NewUnique requires an empty container")
	}
	return &Unique[T]{inner: inner, index: make(map[T]Handle[T])}
}

// Insert stores v unless an equal value is already present. On a duplicate
// nothing is stored and Insert returns the existing handle together with
// ErrDuplicateValue, so callers that only need set semantics can ignore the
// error.
func (u *Unique[T]) Insert(v T) (Handle[T], error) {
	if h, ok := u.index[v]; ok {
		return h, fmt.Errorf("insert %s: %w", h, ErrDuplicateValue)
	}
	h := u.inner.Insert(v)
	u.index[v] = h
	return h, nil
}

// InsertOrGet returns the handle of v, inserting it first when absent.
// inserted reports whether a new entry was created.
func (u *Unique[T]) InsertOrGet(v T) (h Handle[T], inserted bool) {
	if h, ok := u.index[v]; ok {
		return h, false
	}
	h = u.inner.Insert(v)
	u.index[v] = h
	return h, true
}

// ContainsValue reports whether an equal value is stored.
func (u *Unique[T]) ContainsValue(v T) bool {
	_, ok := u.index[v]
	return ok
}

// HandleOf returns the handle of the stored value equal to v.
func (u *Unique[T]) HandleOf(v T) (Handle[T], bool) {
	h, ok := u.index[v]
	return h, ok
}

// Remove deletes h from both the container and the index.
func (u *Unique[T]) Remove(h Handle[T]) (T, error) {
	// Validate before touching either structure.
	v, err := u.inner.Get(h)
	if err != nil {
		var zero T
		return zero, err
	}
	if _, err := u.inner.Remove(h); err != nil {
		panic(fmt.Sprintf("arena: unique remove of validated handle %s failed: %v", h, err))
	}
	delete(u.index, v)
	return v, nil
}

// RemoveValue deletes the stored value equal to v, if any.
func (u *Unique[T]) RemoveValue(v T) bool {
	h, ok := u.index[v]
	if !ok {
		return false
	}
	_, err := u.Remove(h)
	return err == nil
}

// Replace swaps the value stored at h for v. It fails with ErrDuplicateValue
// when v is already stored under a different handle.
func (u *Unique[T]) Replace(h Handle[T], v T) error {
	old, err := u.inner.Get(h)
	if err != nil {
		return err
	}
	if old == v {
		return nil
	}
	if other, ok := u.index[v]; ok {
		return fmt.Errorf("replace %s: value held by %s: %w", h, other, ErrDuplicateValue)
	}
	if err := u.inner.Update(h, func(p *T) { *p = v }); err != nil {
		return err
	}
	delete(u.index, old)
	u.index[v] = h
	return nil
}

// Get returns the value referenced by h.
func (u *Unique[T]) Get(h Handle[T]) (T, error) { return u.inner.Get(h) }

// Contains reports whether h refers to a live value.
func (u *Unique[T]) Contains(h Handle[T]) bool { return u.inner.Contains(h) }

// Len returns the number of stored values.
func (u *Unique[T]) Len() int { return u.inner.Len() }

// All yields stored values in the inner container's order.
func (u *Unique[T]) All() iter.Seq2[Handle[T], T] { return u.inner.All() }

// Retain removes every value rejected by keep from both structures.
func (u *Unique[T]) Retain(keep func(h Handle[T], v T) bool) int {
	return u.inner.Retain(func(h Handle[T], v T) bool {
		if keep(h, v) {
			return true
		}
		delete(u.index, v)
		return false
	})
}
