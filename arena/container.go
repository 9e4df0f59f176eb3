package arena

import "iter"

// Container is the contract shared by every arena in this package.
// Implementations are not safe for concurrent use; wrap them with Locked
// (or an external lock) when they are shared between goroutines.
type Container[T any] interface {
	// Insert stores v and returns a handle to it. It never fails.
	Insert(v T) Handle[T]

	// Remove deletes the value referenced by h and returns it.
	Remove(h Handle[T]) (T, error)

	// Get returns a copy of the value referenced by h.
	Get(h Handle[T]) (T, error)

	// Update runs fn with a pointer to the stored value. The pointer must
	// not be retained after fn returns.
	Update(h Handle[T], fn func(v *T)) error

	// Contains reports whether h refers to a live value.
	Contains(h Handle[T]) bool

	// Len returns the number of live values.
	Len() int

	// All yields every live value with its handle. The iteration order is
	// implementation defined; the arena must not be mutated while iterating.
	All() iter.Seq2[Handle[T], T]

	// Retain removes every value for which keep returns false and returns
	// the number of removed values.
	Retain(keep func(h Handle[T], v T) bool) int
}

// With runs fn against the value referenced by h and returns its result.
// It is the read-only counterpart of Container.Update.
func With[T, R any](c Container[T], h Handle[T], fn func(v *T) R) (R, error) {
	var out R
	err := c.Update(h, func(v *T) { out = fn(v) })
	return out, err
}

// Values adapts All to a sequence of values only.
func Values[T any](c Container[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, v := range c.All() {
			if !yield(v) {
				return
			}
		}
	}
}

// Collect returns all live handles of c in iteration order.
func Collect[T any](c Container[T]) []Handle[T] {
	out := make([]Handle[T], 0, c.Len())
	for h := range c.All() {
		out = append(out, h)
	}
	return out
}

// maxGeneration marks a slot that can no longer be reused without
// repeating a generation; such slots are retired instead of recycled.
const maxGeneration = ^uint32(0)
