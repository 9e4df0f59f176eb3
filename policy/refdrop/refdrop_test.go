package refdrop

import (
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/arenacache/policy"
	"github.com/IvanBrykalov/arenacache/policy/policytest"
)

// Releasing the only handle removes exactly that key on the next Evict.
func TestRefDrop_ReleaseEvictsExactlyThatKey(t *testing.T) {
	t.Parallel()

	k := policytest.Keys[string](3)
	s := policytest.NewStore(k...)
	p := New()
	hs := make([]Handle, len(k))
	for i, key := range k {
		hs[i] = p.OnInsert(key)
	}

	if n := p.Evict(s); n != 0 {
		t.Fatalf("nothing released yet, Evict = %d", n)
	}

	hs[1].Release()
	if p.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", p.Pending())
	}
	if n := p.Evict(s); n != 1 {
		t.Fatalf("Evict = %d, want 1", n)
	}
	if s.Contains(k[1]) || !s.Contains(k[0]) || !s.Contains(k[2]) {
		t.Fatalf("wrong keys removed: %v", s.Removed())
	}
	if r := s.Removals[0].Reason; r != policy.ReasonReleased {
		t.Fatalf("reason = %v", r)
	}
}

// Clones keep the entry alive until the last one is released.
func TestRefDrop_LastReleaseOnly(t *testing.T) {
	t.Parallel()

	k := policytest.Keys[int](1)[0]
	s := policytest.NewStore(k)
	p := New()
	h := p.OnInsert(k)

	extra, ok := p.Acquire(k)
	if !ok {
		t.Fatalf("Acquire of live key failed")
	}
	h.Release()
	if p.Evict(s) != 0 || !s.Contains(k) {
		t.Fatalf("entry evicted while a handle is held")
	}
	extra.Release()
	if p.Evict(s) != 1 {
		t.Fatalf("entry not evicted after last release")
	}
	if _, ok := p.Acquire(k); ok {
		t.Fatalf("Acquire after reclaim must fail")
	}
}

// A drop for an earlier admission does not remove a re-inserted key.
func TestRefDrop_StaleNotificationIgnored(t *testing.T) {
	t.Parallel()

	k := policytest.Keys[int](1)[0]
	s := policytest.NewStore(k)
	p := New()

	old := p.OnInsert(k)
	p.OnRemove(k)
	fresh := p.OnInsert(k)
	old.Release()

	if n := p.Evict(s); n != 0 || !s.Contains(k) {
		t.Fatalf("stale drop removed re-inserted key")
	}
	fresh.Release()
	if n := p.Evict(s); n != 1 {
		t.Fatalf("Evict = %d, want 1", n)
	}
}

// Releases from many goroutines are all delivered to one Evict.
func TestRefDrop_ConcurrentReleases(t *testing.T) {
	t.Parallel()

	keys := policytest.Keys[int](64)
	s := policytest.NewStore(keys...)
	p := New()
	hs := make([]Handle, len(keys))
	for i, k := range keys {
		hs[i] = p.OnInsert(k)
	}

	var g errgroup.Group
	for _, h := range hs {
		g.Go(func() error { h.Release(); return nil })
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if n := p.Evict(s); n != len(keys) || s.Len() != 0 {
		t.Fatalf("Evict = %d, store len %d", n, s.Len())
	}
}

// After Close, releases are discarded and Evict removes nothing.
func TestRefDrop_ClosedDegradesToNoEviction(t *testing.T) {
	t.Parallel()

	k := policytest.Keys[int](1)[0]
	s := policytest.NewStore(k)
	p := New()
	h := p.OnInsert(k)
	p.Close()
	h.Release()

	if n := p.Evict(s); n != 0 {
		t.Fatalf("closed policy evicted %d", n)
	}
	if !p.Tracked(k) {
		t.Fatalf("key must still be tracked")
	}
}
