// Package noevict implements a policy that never reclaims anything.
// It is the baseline for tests and for stores whose lifetime is managed
// entirely by explicit removal.
package noevict

import "github.com/IvanBrykalov/arenacache/policy"

// Policy hands the key back as the handle and never evicts.
type Policy struct{}

var _ policy.Policy[policy.Key] = Policy{}

// New returns the no-eviction policy.
func New() Policy { return Policy{} }

func (Policy) OnInsert(k policy.Key) policy.Key        { return k }
func (Policy) OnAccess(policy.Key)                     {}
func (Policy) OnRemove(policy.Key)                     {}
func (Policy) Acquire(k policy.Key) (policy.Key, bool) { return k, true }
func (Policy) Evict(policy.Storage) int                { return 0 }
