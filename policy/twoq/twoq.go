// Package twoq implements the scan-resistant 2Q eviction policy.
package twoq

import (
	"container/list"

	"github.com/IvanBrykalov/arenacache/policy"
)

// TwoQ implements the 2Q eviction policy over keys.
//
// Resident queues:
//   - A1in (younger queue): FIFO of first-time keys
//   - Am   (mature queue):  LRU of keys accessed again after admission
//
// Ghost A1out: keys only, tracks keys recently evicted from A1in to give
// them a second chance (bypass A1in on re-admission).
//
// A burst of one-shot keys only ever cycles through A1in, so it cannot
// flush the working set held in Am.
type TwoQ struct {
	capacity int
	capIn    int // A1in target size
	capGhost int // A1out capacity

	// A1in: newest at Front() -> oldest at Back()
	in    *list.List
	inIdx map[policy.Key]*list.Element
	// Am: MRU at Front() -> LRU at Back()
	am    *list.List
	amIdx map[policy.Key]*list.Element
	// A1out (ghosts): MRU at Front() -> LRU at Back()
	ghost    *list.List
	ghostIdx map[policy.Key]*list.Element
}

var _ policy.Policy[policy.Key] = (*TwoQ)(nil)

// New constructs a 2Q policy keeping at most capacity entries resident.
// Common choices: capIn ≈ 25% of capacity; capGhost ≈ 50–100% of capacity.
// Values below 1 select those defaults.
func New(capacity, capIn, capGhost int) *TwoQ {
	if capacity < 1 {
		capacity = 1
	}
	if capIn < 1 {
		capIn = max(1, capacity/4)
	}
	if capGhost < 1 {
		capGhost = max(1, capacity/2)
	}
	return &TwoQ{
		capacity: capacity,
		capIn:    capIn,
		capGhost: capGhost,
		in:       list.New(),
		inIdx:    make(map[policy.Key]*list.Element),
		am:       list.New(),
		amIdx:    make(map[policy.Key]*list.Element),
		ghost:    list.New(),
		ghostIdx: make(map[policy.Key]*list.Element),
	}
}

// OnInsert admission rules:
//   - A key remembered in A1out bypasses A1in and goes straight to Am.
//   - Otherwise the key enters A1in.
func (q *TwoQ) OnInsert(k policy.Key) policy.Key {
	if q.tracked(k) {
		q.OnAccess(k)
		return k
	}
	if ge, ok := q.ghostIdx[k]; ok {
		q.ghost.Remove(ge)
		delete(q.ghostIdx, k)
		q.amIdx[k] = q.am.PushFront(k)
		return k
	}
	q.inIdx[k] = q.in.PushFront(k)
	return k
}

// OnAccess promotes an A1in key to Am, or moves an Am key to MRU.
func (q *TwoQ) OnAccess(k policy.Key) {
	if el, ok := q.inIdx[k]; ok {
		q.in.Remove(el)
		delete(q.inIdx, k)
		q.amIdx[k] = q.am.PushFront(k)
		return
	}
	if el, ok := q.amIdx[k]; ok {
		q.am.MoveToFront(el)
	}
}

// OnRemove forgets the key without remembering it as a ghost: an explicit
// removal says nothing about reuse.
func (q *TwoQ) OnRemove(k policy.Key) {
	if el, ok := q.inIdx[k]; ok {
		q.in.Remove(el)
		delete(q.inIdx, k)
	}
	if el, ok := q.amIdx[k]; ok {
		q.am.Remove(el)
		delete(q.amIdx, k)
	}
}

// Acquire returns the key while it is resident in either queue.
func (q *TwoQ) Acquire(k policy.Key) (policy.Key, bool) { return k, q.tracked(k) }

// Evict removes keys while the store is over capacity. A1in is drained
// first while it exceeds its target size (its victims become ghosts);
// otherwise the LRU of Am goes.
func (q *TwoQ) Evict(s policy.Storage) int {
	n := 0
	for s.Len() > q.capacity {
		k, ok := q.victim()
		if !ok {
			break
		}
		if s.Remove(k, policy.ReasonCapacity) {
			n++
		}
	}
	return n
}

func (q *TwoQ) victim() (policy.Key, bool) {
	if q.in.Len() > 0 && (q.in.Len() > q.capIn || q.am.Len() == 0) {
		el := q.in.Back()
		k := el.Value.(policy.Key)
		q.in.Remove(el)
		delete(q.inIdx, k)
		q.remember(k)
		return k, true
	}
	if el := q.am.Back(); el != nil {
		k := el.Value.(policy.Key)
		q.am.Remove(el)
		delete(q.amIdx, k)
		return k, true
	}
	return policy.Key{}, false
}

// remember inserts k as the MRU ghost, enforcing capGhost.
func (q *TwoQ) remember(k policy.Key) {
	if old := q.ghostIdx[k]; old != nil {
		q.ghost.Remove(old)
	}
	q.ghostIdx[k] = q.ghost.PushFront(k)
	for q.ghost.Len() > q.capGhost {
		tail := q.ghost.Back()
		delete(q.ghostIdx, tail.Value.(policy.Key))
		q.ghost.Remove(tail)
	}
}

func (q *TwoQ) tracked(k policy.Key) bool {
	if _, ok := q.inIdx[k]; ok {
		return true
	}
	_, ok := q.amIdx[k]
	return ok
}
