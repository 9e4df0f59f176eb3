// Package hybrid combines a per-key lifetime with reference counting.
//
// Every admitted key starts Fresh: the policy holds its own Strong handle
// and counts down a lifetime, refreshed on access. Each Evict pass ticks all
// countdowns once. A key whose countdown runs out becomes Expired: the
// policy drops its own handle and keeps only a weak reference. An access
// while any caller still holds a handle recovers it to Fresh. Once the last
// handle is released, the key is reclaimed on the next Evict.
//
//	Fresh --countdown hits zero--> Expired --last release--> Reclaimed
//	  ^                               |
//	  +-----------access--------------+
//
// Keys that callers keep referencing are never evicted; keys nobody
// references stay resident for one lifetime after their last access.
package hybrid

import (
	"github.com/IvanBrykalov/arenacache/policy"
	"github.com/IvanBrykalov/arenacache/policy/refdrop"
	"github.com/IvanBrykalov/arenacache/refcount"
)

// Handle is what callers hold to keep an entry resident.
type Handle = refdrop.Handle

// State is the lifecycle state of a key.
type State uint8

const (
	// Untracked keys were never admitted or have been reclaimed.
	Untracked State = iota
	// Fresh keys are counting down and pinned by the policy.
	Fresh
	// Expired keys are held only by callers and recoverable on access.
	Expired
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Expired:
		return "expired"
	default:
		return "untracked"
	}
}

type pinned struct {
	pin       *refcount.Strong[policy.Key]
	remaining uint32
}

// Policy is the hybrid TTL and reference-count eviction policy.
type Policy struct {
	drops    *refdrop.Policy
	lifetime uint32
	fresh    map[policy.Key]*pinned
	expired  map[policy.Key]refcount.Weak[policy.Key]
}

var _ policy.Policy[Handle] = (*Policy)(nil)

// New returns a policy keeping unreferenced keys for lifetime Evict passes
// after their last access. A lifetime of 0 is treated as 1.
func New(lifetime uint32) *Policy {
	return &Policy{
		drops:    refdrop.New(),
		lifetime: max(lifetime, 1),
		fresh:    make(map[policy.Key]*pinned),
		expired:  make(map[policy.Key]refcount.Weak[policy.Key]),
	}
}

// OnInsert admits k as Fresh and returns the caller's handle.
func (p *Policy) OnInsert(k policy.Key) Handle {
	p.forget(k)
	h := p.drops.OnInsert(k)
	p.fresh[k] = &pinned{pin: h.Clone(), remaining: p.lifetime}
	return h
}

// OnAccess refreshes a Fresh key, or recovers an Expired key that is still
// referenced.
func (p *Policy) OnAccess(k policy.Key) {
	if f, ok := p.fresh[k]; ok {
		f.remaining = p.lifetime
		return
	}
	w, ok := p.expired[k]
	if !ok {
		return
	}
	pin, ok := w.Upgrade()
	if !ok {
		// Released; the queued drop notification reclaims it.
		return
	}
	delete(p.expired, k)
	p.fresh[k] = &pinned{pin: pin, remaining: p.lifetime}
}

// OnRemove forgets k and drops the policy's own handle.
func (p *Policy) OnRemove(k policy.Key) { p.forget(k) }

func (p *Policy) forget(k policy.Key) {
	// Untrack first so releasing the pin cannot trigger a reclaim.
	p.drops.OnRemove(k)
	if f, ok := p.fresh[k]; ok {
		delete(p.fresh, k)
		f.pin.Release()
	}
	delete(p.expired, k)
}

// Acquire returns a new handle while any handle, including the policy's own
// pin, is alive.
func (p *Policy) Acquire(k policy.Key) (Handle, bool) { return p.drops.Acquire(k) }

// State returns k's lifecycle state.
func (p *Policy) State(k policy.Key) State {
	if _, ok := p.fresh[k]; ok {
		return Fresh
	}
	if _, ok := p.expired[k]; ok {
		return Expired
	}
	return Untracked
}

// Evict ticks every Fresh countdown, expires the keys reaching zero and then
// reclaims every key whose last handle was released.
func (p *Policy) Evict(s policy.Storage) int {
	for k, f := range p.fresh {
		if f.remaining > 1 {
			f.remaining--
			continue
		}
		delete(p.fresh, k)
		p.expired[k] = f.pin.Downgrade()
		// May queue the drop notification drained below.
		f.pin.Release()
	}
	return p.drops.Evict(reclaimer{s: s, p: p})
}

// Close stops reclamation; later Evict passes still age keys but remove
// nothing.
func (p *Policy) Close() { p.drops.Close() }

// reclaimer forwards removals to the store, reporting keys that expired
// before their last release as ReasonExpired.
type reclaimer struct {
	s policy.Storage
	p *Policy
}

func (r reclaimer) Len() int                   { return r.s.Len() }
func (r reclaimer) Contains(k policy.Key) bool { return r.s.Contains(k) }

func (r reclaimer) Remove(k policy.Key, why policy.Reason) bool {
	if _, ok := r.p.expired[k]; ok {
		why = policy.ReasonExpired
		delete(r.p.expired, k)
	}
	delete(r.p.fresh, k)
	return r.s.Remove(k, why)
}
