// Package lru implements the LRU eviction policy.
package lru

import (
	"container/list"

	"github.com/IvanBrykalov/arenacache/policy"
)

// LRU is a classic "move-to-front" Least-Recently-Used policy with a fixed
// capacity. Each key appears in the recency list at most once, so repeated
// access does not grow policy state.
type LRU struct {
	capacity int
	order    *list.List // MRU at Front(), LRU at Back(); element.Value is policy.Key
	index    map[policy.Key]*list.Element
}

var _ policy.Policy[policy.Key] = (*LRU)(nil)

// New returns an LRU policy that keeps at most capacity entries resident.
// Capacity below 1 is treated as 1.
func New(capacity int) *LRU {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[policy.Key]*list.Element),
	}
}

// OnInsert places the key at MRU.
func (p *LRU) OnInsert(k policy.Key) policy.Key {
	p.touch(k)
	return k
}

// OnAccess promotes a tracked key to MRU. Untracked keys are ignored.
func (p *LRU) OnAccess(k policy.Key) {
	if el, ok := p.index[k]; ok {
		p.order.MoveToFront(el)
	}
}

// OnRemove forgets the key.
func (p *LRU) OnRemove(k policy.Key) {
	if el, ok := p.index[k]; ok {
		p.order.Remove(el)
		delete(p.index, k)
	}
}

// Acquire returns the key while it is tracked.
func (p *LRU) Acquire(k policy.Key) (policy.Key, bool) {
	_, ok := p.index[k]
	return k, ok
}

// Evict drops least-recently-used keys while the store is over capacity.
func (p *LRU) Evict(s policy.Storage) int {
	n := 0
	for s.Len() > p.capacity {
		el := p.order.Back()
		if el == nil {
			break
		}
		k := el.Value.(policy.Key)
		p.order.Remove(el)
		delete(p.index, k)
		if s.Remove(k, policy.ReasonCapacity) {
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (p *LRU) Len() int { return p.order.Len() }

func (p *LRU) touch(k policy.Key) {
	if el, ok := p.index[k]; ok {
		p.order.MoveToFront(el)
		return
	}
	p.index[k] = p.order.PushFront(k)
}
