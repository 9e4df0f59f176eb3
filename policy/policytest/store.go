// Package policytest provides a map-backed policy.Storage for testing
// eviction strategies.
package policytest

import (
	"slices"

	"github.com/IvanBrykalov/arenacache/policy"
)

// Removal records one Storage.Remove call that found its key.
type Removal struct {
	Key    policy.Key
	Reason policy.Reason
}

// Store is a set of resident keys that records every successful removal.
type Store struct {
	keys     map[policy.Key]struct{}
	Removals []Removal
}

var _ policy.Storage = (*Store)(nil)

// NewStore returns a store holding keys.
func NewStore(keys ...policy.Key) *Store {
	s := &Store{keys: make(map[policy.Key]struct{}, len(keys))}
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add makes k resident.
func (s *Store) Add(k policy.Key) { s.keys[k] = struct{}{} }

func (s *Store) Len() int { return len(s.keys) }

func (s *Store) Contains(k policy.Key) bool {
	_, ok := s.keys[k]
	return ok
}

func (s *Store) Remove(k policy.Key, why policy.Reason) bool {
	if _, ok := s.keys[k]; !ok {
		return false
	}
	delete(s.keys, k)
	s.Removals = append(s.Removals, Removal{Key: k, Reason: why})
	return true
}

// Removed returns the removed keys in removal order.
func (s *Store) Removed() []policy.Key {
	out := make([]policy.Key, 0, len(s.Removals))
	for _, r := range s.Removals {
		out = append(out, r.Key)
	}
	return out
}

// Reset forgets recorded removals.
func (s *Store) Reset() { s.Removals = slices.Delete(s.Removals, 0, len(s.Removals)) }

// Keys returns n distinct keys of type T with UIDs 1..n.
func Keys[T any](n int) []policy.Key {
	out := make([]policy.Key, n)
	for i := range out {
		out[i] = policy.KeyOf[T](uint64(i + 1))
	}
	return out
}
