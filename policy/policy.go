// Package policy defines the contract between an eviction-managed store and
// the strategy that decides which of its entries to reclaim.
//
// A store keeps a mapping from Key to an erased value. It reports every
// admission, access and explicit removal to its Policy and periodically
// calls Evict from a single maintenance context. Evict removes entries
// through the Storage view it is given; the store never removes entries on
// its own behalf.
package policy

import (
	"fmt"
	"reflect"
)

// Key identifies a cached resource: a 64-bit identity, the generation of the
// handle it was derived from, and the runtime type of the stored value.
// Keys are comparable and independent of arena handles.
type Key struct {
	UID        uint64
	Generation uint32
	Type       reflect.Type
}

// KeyOf returns the key for a value of type T with the given identity.
func KeyOf[T any](uid uint64) Key {
	return Key{UID: uid, Type: reflect.TypeFor[T]()}
}

// WithGeneration returns a copy of k at generation g.
func (k Key) WithGeneration(g uint32) Key {
	k.Generation = g
	return k
}

func (k Key) String() string {
	name := "<nil>"
	if k.Type != nil {
		name = k.Type.String()
	}
	return fmt.Sprintf("%s#%x@%d", name, k.UID, k.Generation)
}

// Reason explains why an entry was reclaimed.
type Reason uint8

const (
	// ReasonCapacity: evicted to bring the store back under capacity.
	ReasonCapacity Reason = iota
	// ReasonReleased: the last strong reference to the entry was released.
	ReasonReleased
	// ReasonExpired: the entry's lifetime ran out and it was released.
	ReasonExpired
	// ReasonRemoved: removed explicitly by the caller (never passed by
	// policies; used by stores when reporting explicit removals).
	ReasonRemoved
)

func (r Reason) String() string {
	switch r {
	case ReasonCapacity:
		return "capacity"
	case ReasonReleased:
		return "released"
	case ReasonExpired:
		return "expired"
	case ReasonRemoved:
		return "removed"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// Storage is the view of the store handed to Policy.Evict.
type Storage interface {
	// Len returns the number of resident entries.
	Len() int
	// Contains reports whether k is resident.
	Contains(k Key) bool
	// Remove reclaims k and reports whether it was resident.
	Remove(k Key, why Reason) bool
}

// Policy is an eviction strategy. H is the handle type returned to callers
// on admission: the bare Key for bookkeeping-only policies, or a reference
// counted wrapper when reclamation is driven by releases.
//
// Methods are never called concurrently; the store serializes them.
// Handles returned by OnInsert and Acquire may be released from any
// goroutine.
type Policy[H any] interface {
	// OnInsert is called once when k is admitted.
	OnInsert(k Key) H
	// OnAccess is called on every logical access to a resident key.
	OnAccess(k Key)
	// OnRemove is called when k is removed explicitly, outside Evict.
	OnRemove(k Key)
	// Acquire returns a fresh handle for a resident key, if the policy can
	// still hand one out.
	Acquire(k Key) (H, bool)
	// Evict reclaims entries through s and returns how many were removed.
	Evict(s Storage) int
}
