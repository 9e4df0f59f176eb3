package cache

import (
	"sync"

	"github.com/IvanBrykalov/arenacache/internal/util"
	"github.com/IvanBrykalov/arenacache/policy"
)

// shard is an independent partition of the cache with its own lock, map,
// and policy instance.
type shard[H any] struct {
	// ---- guarded by mu ----
	mu  sync.Mutex
	m   map[policy.Key]any
	pol policy.Policy[H]

	opt *Options

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

func newShard[H any](pol policy.Policy[H], opt *Options) *shard[H] {
	return &shard[H]{
		m:   make(map[policy.Key]any),
		pol: pol,
		opt: opt,
	}
}

// insert admits k→v and returns the policy handle. Returns false if the key
// is already resident.
func (s *shard[H]) insert(k policy.Key, v any) (H, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.m[k]; exists {
		var zero H
		return zero, false
	}
	s.m[k] = v
	return s.pol.OnInsert(k), true
}

// get returns the value and reports the access to the policy.
func (s *shard[H]) get(k policy.Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.m[k]
	if !ok {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		return nil, false
	}
	s.pol.OnAccess(k)
	s.hits.Add(1)
	s.opt.Metrics.Hit()
	return v, true
}

// acquire reports an access and asks the policy for a fresh handle.
func (s *shard[H]) acquire(k policy.Key) (any, H, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.m[k]
	if !ok {
		var zero H
		return nil, zero, false
	}
	s.pol.OnAccess(k)
	h, ok := s.pol.Acquire(k)
	return v, h, ok
}

func (s *shard[H]) contains(k policy.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[k]
	return ok
}

// remove deletes an entry by key and returns its value.
func (s *shard[H]) remove(k policy.Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.m[k]
	if !ok {
		return nil, false
	}
	delete(s.m, k)
	s.pol.OnRemove(k)
	return v, true
}

// replace admits k→v for a loader. A resident entry that still hands out
// handles wins and is returned instead; one that does not is evicted as
// released before v takes its place.
func (s *shard[H]) replace(k policy.Key, v any) (any, H) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.m[k]; ok {
		s.pol.OnAccess(k)
		if h, ok := s.pol.Acquire(k); ok {
			return old, h
		}
		s.pol.OnRemove(k)
		shardStorage[H]{s}.Remove(k, policy.ReasonReleased)
	}
	s.m[k] = v
	return v, s.pol.OnInsert(k)
}

// flush runs one policy eviction pass over this shard.
func (s *shard[H]) flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pol.Evict(shardStorage[H]{s})
}

func (s *shard[H]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *shard[H]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.pol.(interface{ Close() }); ok {
		c.Close()
	}
}

// -------------------- policy storage (mu held) --------------------

// shardStorage is the policy.Storage view handed to Evict.
type shardStorage[H any] struct{ s *shard[H] }

func (v shardStorage[H]) Len() int { return len(v.s.m) }

func (v shardStorage[H]) Contains(k policy.Key) bool {
	_, ok := v.s.m[k]
	return ok
}

// Remove evicts k, updates metrics/counters, and calls OnEvict.
func (v shardStorage[H]) Remove(k policy.Key, reason policy.Reason) bool {
	s := v.s
	val, ok := s.m[k]
	if !ok {
		return false
	}
	delete(s.m, k)
	s.evicts.Add(1)
	s.opt.Metrics.Evict(reason)
	if cb := s.opt.OnEvict; cb != nil {
		cb(k, val, reason)
	}
	return true
}
