// Package refcount provides explicit shared ownership: Strong handles keep a
// value alive, Weak handles observe it without doing so.
//
// Counts are atomic and handles may be cloned and released from any
// goroutine. When the last Strong handle is released, the optional onZero
// hook runs exactly once with the value, on the releasing goroutine.
//
// Every Strong must be released exactly once. A Strong that becomes
// unreachable without Release is released by a runtime cleanup, but that
// happens at an unspecified time after a garbage collection.
package refcount

import (
	"runtime"
	"sync/atomic"
)

type box[T any] struct {
	strong atomic.Int64
	value  T
	onZero func(T)
}

// release drops one strong reference and runs the zero hook on the last one.
func (b *box[T]) release() {
	switch n := b.strong.Add(-1); {
	case n > 0:
		return
	case n < 0:
		panic("refcount: released more times than acquired")
	}
	v := b.value
	var zero T
	b.value = zero
	if b.onZero != nil {
		b.onZero(v)
	}
}

// Strong is an owning handle. It must be used by pointer.
type Strong[T any] struct {
	b        *box[T]
	released atomic.Bool
	cleanup  runtime.Cleanup
}

// New returns the first Strong handle to v. onZero may be nil; it must not
// retain a reference to the returned handle.
func New[T any](v T, onZero func(T)) *Strong[T] {
	b := &box[T]{value: v, onZero: onZero}
	b.strong.Store(1)
	return attach(b)
}

func attach[T any](b *box[T]) *Strong[T] {
	s := &Strong[T]{b: b}
	s.cleanup = runtime.AddCleanup(s, (*box[T]).release, b)
	return s
}

// Clone returns a new Strong handle to the same value.
// It panics if s was already released.
func (s *Strong[T]) Clone() *Strong[T] {
	if s.released.Load() {
		panic("refcount: clone of released handle")
	}
	s.b.strong.Add(1)
	return attach(s.b)
}

// Release drops this handle's reference. Calling Release again on the same
// handle is a no-op.
func (s *Strong[T]) Release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	s.cleanup.Stop()
	s.b.release()
}

// Released reports whether Release was called on this handle.
func (s *Strong[T]) Released() bool { return s.released.Load() }

// Value returns the shared value. It panics if s was already released.
func (s *Strong[T]) Value() T {
	if s.released.Load() {
		panic("refcount: value of released handle")
	}
	return s.b.value
}

// Downgrade returns a Weak handle to the same value.
func (s *Strong[T]) Downgrade() Weak[T] { return Weak[T]{b: s.b} }

// Count returns the current number of live Strong handles.
func (s *Strong[T]) Count() int64 { return s.b.strong.Load() }

// Weak is a non-owning handle. The zero value never upgrades.
type Weak[T any] struct {
	b *box[T]
}

// Upgrade returns a new Strong handle if the value is still alive.
// Once the strong count has reached zero, Upgrade always fails.
func (w Weak[T]) Upgrade() (*Strong[T], bool) {
	if w.b == nil {
		return nil, false
	}
	for {
		n := w.b.strong.Load()
		if n == 0 {
			return nil, false
		}
		if w.b.strong.CompareAndSwap(n, n+1) {
			return attach(w.b), true
		}
	}
}

// Alive reports whether any Strong handle currently exists. The answer may be
// stale by the time the caller acts on it; use Upgrade to act.
func (w Weak[T]) Alive() bool { return w.b != nil && w.b.strong.Load() > 0 }

// Count returns the current number of live Strong handles.
func (w Weak[T]) Count() int64 {
	if w.b == nil {
		return 0
	}
	return w.b.strong.Load()
}

// Same reports whether two weak handles observe the same allocation.
func (w Weak[T]) Same(other Weak[T]) bool { return w.b == other.b }
