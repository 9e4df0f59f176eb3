// Package refdrop implements reclamation driven by reference counting.
//
// OnInsert hands out a Strong handle wrapping the key. Whenever the last
// Strong handle is released, from any goroutine, a drop notification is
// queued. Evict drains the queue without blocking and removes exactly the
// notified keys.
package refdrop

import (
	"github.com/IvanBrykalov/arenacache/internal/mpsc"
	"github.com/IvanBrykalov/arenacache/policy"
	"github.com/IvanBrykalov/arenacache/refcount"
)

// Handle is what callers hold to keep an entry resident.
type Handle = *refcount.Strong[policy.Key]

// drop is queued when the last Strong handle of an admission is released.
// id ties the notification to one admission so a notification for an old
// admission cannot remove a re-inserted key.
type drop struct {
	key policy.Key
	id  uint64
}

type tracked struct {
	id   uint64
	weak refcount.Weak[policy.Key]
}

// Policy is the reference-count-triggered eviction policy.
type Policy struct {
	drops *mpsc.Queue[drop]
	live  map[policy.Key]tracked
	next  uint64
}

var _ policy.Policy[Handle] = (*Policy)(nil)

// New returns an empty policy.
func New() *Policy {
	return &Policy{
		drops: &mpsc.Queue[drop]{},
		live:  make(map[policy.Key]tracked),
	}
}

// OnInsert returns the first Strong handle for k. The entry stays resident
// until every handle derived from it is released and Evict runs.
func (p *Policy) OnInsert(k policy.Key) Handle {
	p.next++
	id := p.next
	q := p.drops
	s := refcount.New(k, func(k policy.Key) { q.Push(drop{key: k, id: id}) })
	p.live[k] = tracked{id: id, weak: s.Downgrade()}
	return s
}

// OnAccess is a no-op: recency does not matter to this policy.
func (p *Policy) OnAccess(policy.Key) {}

// OnRemove forgets k. Pending and future drop notifications for it are
// ignored.
func (p *Policy) OnRemove(k policy.Key) { delete(p.live, k) }

// Acquire returns a new Strong handle while any other is still held.
// It fails once the last handle has been released, even before Evict runs.
func (p *Policy) Acquire(k policy.Key) (Handle, bool) {
	t, ok := p.live[k]
	if !ok {
		return nil, false
	}
	return t.weak.Upgrade()
}

// Evict drains every queued drop notification and removes the matching
// keys with ReasonReleased. After Close it evicts nothing.
func (p *Policy) Evict(s policy.Storage) int {
	n := 0
	for _, d := range p.drops.Drain() {
		t, ok := p.live[d.key]
		if !ok || t.id != d.id {
			continue
		}
		delete(p.live, d.key)
		if s.Remove(d.key, policy.ReasonReleased) {
			n++
		}
	}
	return n
}

// Pending returns the number of undelivered drop notifications.
func (p *Policy) Pending() int { return p.drops.Len() }

// Tracked reports whether k has a live admission.
func (p *Policy) Tracked(k policy.Key) bool {
	_, ok := p.live[k]
	return ok
}

// Close stops accepting drop notifications. Later releases are discarded
// and Evict degrades to removing nothing.
func (p *Policy) Close() { p.drops.Close() }
