package arena

import (
	"iter"
	"sync"
)

// Locked guards a Container with a read-write mutex so it can be shared
// between goroutines.
//
// If a callback passed to Update (or Retain) panics, the container may be
// left half-mutated. Locked then becomes poisoned: the panic propagates to
// the caller, and every later operation fails with ErrPoisonedLock until
// ClearPoison is called.
type Locked[T any] struct {
	mu       sync.RWMutex
	inner    Container[T]
	poisoned bool
}

// NewLocked wraps inner. inner must not be used directly afterwards.
func NewLocked[T any](inner Container[T]) *Locked[T] {
	return &Locked[T]{inner: inner}
}

// Insert stores v. It returns ErrPoisonedLock on a poisoned container.
func (l *Locked[T]) Insert(v T) (Handle[T], error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.poisoned {
		return Handle[T]{}, ErrPoisonedLock
	}
	return l.inner.Insert(v), nil
}

// Remove deletes h and returns its value.
func (l *Locked[T]) Remove(h Handle[T]) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.poisoned {
		var zero T
		return zero, ErrPoisonedLock
	}
	return l.inner.Remove(h)
}

// Get returns a copy of the value referenced by h.
func (l *Locked[T]) Get(h Handle[T]) (T, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.poisoned {
		var zero T
		return zero, ErrPoisonedLock
	}
	return l.inner.Get(h)
}

// Update runs fn under the write lock.
func (l *Locked[T]) Update(h Handle[T], fn func(v *T)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.poisoned {
		return ErrPoisonedLock
	}
	defer l.poisonOnPanic()
	return l.inner.Update(h, fn)
}

// View runs fn on a copy of the value under the read lock.
func (l *Locked[T]) View(h Handle[T], fn func(v T)) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.poisoned {
		return ErrPoisonedLock
	}
	v, err := l.inner.Get(h)
	if err != nil {
		return err
	}
	fn(v)
	return nil
}

// Contains reports whether h refers to a live value. A poisoned container
// contains nothing.
func (l *Locked[T]) Contains(h Handle[T]) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.poisoned && l.inner.Contains(h)
}

// Len returns the number of live values.
func (l *Locked[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.Len()
}

// Cap returns the inner container's slot count, or Len if it does not
// report one.
func (l *Locked[T]) Cap() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if c, ok := l.inner.(interface{ Cap() int }); ok {
		return c.Cap()
	}
	return l.inner.Len()
}

// Snapshot copies every live entry under the read lock.
func (l *Locked[T]) Snapshot() ([]Handle[T], []T, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.poisoned {
		return nil, nil, ErrPoisonedLock
	}
	hs := make([]Handle[T], 0, l.inner.Len())
	vs := make([]T, 0, l.inner.Len())
	for h, v := range l.inner.All() {
		hs = append(hs, h)
		vs = append(vs, v)
	}
	return hs, vs, nil
}

// All yields a snapshot of the live entries; the lock is not held while the
// caller's loop body runs. A poisoned container yields nothing.
func (l *Locked[T]) All() iter.Seq2[Handle[T], T] {
	return func(yield func(Handle[T], T) bool) {
		hs, vs, err := l.Snapshot()
		if err != nil {
			return
		}
		for i := range hs {
			if !yield(hs[i], vs[i]) {
				return
			}
		}
	}
}

// Retain removes every value rejected by keep under the write lock.
func (l *Locked[T]) Retain(keep func(h Handle[T], v T) bool) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.poisoned {
		return 0, ErrPoisonedLock
	}
	defer l.poisonOnPanic()
	return l.inner.Retain(keep), nil
}

// Poisoned reports whether a mutation panicked.
func (l *Locked[T]) Poisoned() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.poisoned
}

// ClearPoison marks the container usable again. The caller asserts the
// inner container is consistent.
func (l *Locked[T]) ClearPoison() {
	l.mu.Lock()
	l.poisoned = false
	l.mu.Unlock()
}

// poisonOnPanic must be deferred while the write lock is held.
func (l *Locked[T]) poisonOnPanic() {
	if r := recover(); r != nil {
		l.poisoned = true
		panic(r)
	}
}
