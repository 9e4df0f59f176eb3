// Package deferred delays destruction of values by a number of ticks.
//
// A Deletion owns every value it stores and hands callers only weak
// references. Each entry carries a countdown; Tick decrements all of them
// and destroys entries that reach zero. Touching an entry with Update resets
// its countdown. This is the usual way to keep GPU resources alive for the
// frames still in flight after their last use.
package deferred

import (
	"fmt"

	"github.com/IvanBrykalov/arenacache/arena"
	"github.com/IvanBrykalov/arenacache/refcount"
)

// Entry is the per-value record stored in the backing container.
type Entry[T any] struct {
	strong    *refcount.Strong[T]
	ttl       uint32
	remaining uint32
}

// Handle identifies an entry of a Deletion.
type Handle[T any] = arena.Handle[*Entry[T]]

// Options configure a Deletion. The zero value is valid.
type Options[T any] struct {
	// Store backs the entries. Defaults to an arena.Sparse so entries never
	// move. It must be empty.
	Store arena.Container[*Entry[T]]

	// OnExpire, if set, is called after Tick destroys an entry. The value
	// has already been released by the wrapper.
	OnExpire func(h Handle[T], v T)
}

// Deletion is a TTL wrapper around an arena. It is not safe for concurrent
// use; the weak references it hands out are.
type Deletion[T any] struct {
	store    arena.Container[*Entry[T]]
	onExpire func(Handle[T], T)
}

// New returns an empty Deletion.
func New[T any](opts Options[T]) *Deletion[T] {
	store := opts.Store
	if store == nil {
		store = arena.NewSparse[*Entry[T]](0)
	}
	return &Deletion[T]{store: store, onExpire: opts.OnExpire}
}

// Insert takes ownership of v with a countdown of ttl ticks.
func (d *Deletion[T]) Insert(v T, ttl uint32) (refcount.Weak[T], Handle[T]) {
	return d.InsertAt(v, ttl, ttl)
}

// InsertAt is Insert with an explicit initial countdown. A countdown of 0
// expires on the next Tick.
func (d *Deletion[T]) InsertAt(v T, ttl, remaining uint32) (refcount.Weak[T], Handle[T]) {
	s := refcount.New(v, nil)
	h := d.store.Insert(&Entry[T]{strong: s, ttl: ttl, remaining: remaining})
	return s.Downgrade(), h
}

type expiredEntry[T any] struct {
	h Handle[T]
	e *Entry[T]
}

// Tick advances every countdown by one and destroys the entries that reach
// zero. It returns the number of destroyed entries.
func (d *Deletion[T]) Tick() int {
	var expired []expiredEntry[T]
	d.store.Retain(func(h Handle[T], e *Entry[T]) bool {
		if e.remaining > 1 {
			e.remaining--
			return true
		}
		expired = append(expired, expiredEntry[T]{h: h, e: e})
		return false
	})

	for _, x := range expired {
		v := x.e.strong.Value()
		x.e.strong.Release()
		if d.onExpire != nil {
			d.onExpire(x.h, v)
		}
	}
	return len(expired)
}

// Update resets h's countdown to its ttl.
func (d *Deletion[T]) Update(h Handle[T]) error {
	return d.store.Update(h, func(e **Entry[T]) { (*e).remaining = (*e).ttl })
}

// UpdateTo sets h's countdown to remaining.
func (d *Deletion[T]) UpdateTo(h Handle[T], remaining uint32) error {
	return d.store.Update(h, func(e **Entry[T]) { (*e).remaining = remaining })
}

// Remaining returns h's current countdown.
func (d *Deletion[T]) Remaining(h Handle[T]) (uint32, error) {
	e, err := d.store.Get(h)
	if err != nil {
		return 0, err
	}
	return e.remaining, nil
}

// Get returns a temporary Strong handle to h's value and resets its
// countdown. The caller must Release it promptly; it is not meant to be
// retained across ticks.
func (d *Deletion[T]) Get(h Handle[T]) (*refcount.Strong[T], error) {
	e, err := d.store.Get(h)
	if err != nil {
		return nil, err
	}
	e.remaining = e.ttl
	return e.strong.Clone(), nil
}

// Remove destroys h's entry immediately and returns its value.
func (d *Deletion[T]) Remove(h Handle[T]) (T, error) {
	e, err := d.store.Remove(h)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("deferred: %w", err)
	}
	v := e.strong.Value()
	e.strong.Release()
	return v, nil
}

// Contains reports whether h's entry is still alive.
func (d *Deletion[T]) Contains(h Handle[T]) bool { return d.store.Contains(h) }

// Len returns the number of live entries.
func (d *Deletion[T]) Len() int { return d.store.Len() }

// Clear destroys every entry without invoking OnExpire.
func (d *Deletion[T]) Clear() {
	d.store.Retain(func(_ Handle[T], e *Entry[T]) bool {
		e.strong.Release()
		return false
	})
}
