package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/arenacache/policy"
	"github.com/IvanBrykalov/arenacache/policy/hybrid"
	"github.com/IvanBrykalov/arenacache/policy/lru"
	"github.com/IvanBrykalov/arenacache/policy/noevict"
	"github.com/IvanBrykalov/arenacache/policy/refdrop"
)

type texture struct {
	name string
	w, h int
}

type sampler struct{ filter string }

func newLRU(capacity int, opt Options) *Cache[policy.Key] {
	return New(func() policy.Policy[policy.Key] { return lru.New(capacity) }, opt)
}

func newRefDrop(opt Options) *Cache[refdrop.Handle] {
	return New(func() policy.Policy[refdrop.Handle] { return refdrop.New() }, opt)
}

type countingMetrics struct {
	mu     sync.Mutex
	hits   int
	misses int
	size   int
	evicts map[policy.Reason]int
}

func (m *countingMetrics) Hit()  { m.mu.Lock(); m.hits++; m.mu.Unlock() }
func (m *countingMetrics) Miss() { m.mu.Lock(); m.misses++; m.mu.Unlock() }
func (m *countingMetrics) Evict(r policy.Reason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evicts == nil {
		m.evicts = map[policy.Reason]int{}
	}
	m.evicts[r]++
}
func (m *countingMetrics) Size(n int) { m.mu.Lock(); m.size = n; m.mu.Unlock() }

// Basic Insert/Get/Remove semantics.
// Insert rejects resident keys; Remove deletes.
func TestCache_BasicInsertGetRemove(t *testing.T) {
	t.Parallel()

	c := New(func() policy.Policy[policy.Key] { return noevict.New() }, Options{})
	t.Cleanup(func() { _ = c.Close() })

	k := policy.KeyOf[*texture](1)
	if _, err := c.Insert(k, &texture{name: "albedo"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := c.Insert(k, &texture{name: "other"}); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate Insert err = %v, want ErrExists", err)
	}

	v, ok := c.Get(k)
	if !ok || v.(*texture).name != "albedo" {
		t.Fatalf("Get = %v, %v", v, ok)
	}
	removed, ok := c.Remove(k)
	if !ok || removed.(*texture).name != "albedo" {
		t.Fatalf("Remove = %v, %v; want the albedo texture", removed, ok)
	}
	if _, ok := c.Get(k); ok {
		t.Fatal("k must be absent after Remove")
	}
	if _, ok := c.Remove(k); ok {
		t.Fatal("second Remove must be false")
	}
}

// Lookup downcasts safely.
func TestCache_LookupTypeChecks(t *testing.T) {
	t.Parallel()

	c := newLRU(8, Options{})
	k := policy.KeyOf[*texture](7)
	_, _ = c.Insert(k, &texture{name: "n"})

	tex, err := Lookup[*texture](c, k)
	if err != nil || tex.name != "n" {
		t.Fatalf("Lookup = %v, %v", tex, err)
	}
	if _, err := Lookup[*sampler](c, k); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("wrong-type Lookup err = %v", err)
	}
	if _, err := Lookup[*texture](c, policy.KeyOf[*texture](8)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing Lookup err = %v", err)
	}
}

// Bind derives the key from the value, so equal values collide and values
// of different types do not.
func TestCache_Bind(t *testing.T) {
	t.Parallel()

	c := newLRU(8, Options{})
	k1, _, err := Bind(c, "shader.vert")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if _, _, err := Bind(c, "shader.vert"); !errors.Is(err, ErrExists) {
		t.Fatalf("rebinding an equal value err = %v", err)
	}
	k2, _, err := Bind(c, []byte("shader.vert"))
	if err != nil || k1 == k2 {
		t.Fatalf("different types must yield different keys: %v %v %v", k1, k2, err)
	}
	if got, _ := Lookup[string](c, k1); got != "shader.vert" {
		t.Fatalf("Lookup bound = %q", got)
	}
}

// Comparable structs bind through the maphash fallback; values without a
// stable hash are rejected instead of panicking.
func TestCache_BindStruct(t *testing.T) {
	t.Parallel()

	c := newLRU(8, Options{})
	k, _, err := Bind(c, texture{name: "a", w: 1, h: 1})
	if err != nil {
		t.Fatalf("Bind struct: %v", err)
	}
	if _, _, err := Bind(c, texture{name: "a", w: 1, h: 1}); !errors.Is(err, ErrExists) {
		t.Fatalf("rebinding an equal struct err = %v", err)
	}
	if got, err := Lookup[texture](c, k); err != nil || got.name != "a" {
		t.Fatalf("Lookup = %+v, %v", got, err)
	}

	type layout struct{ attrs []string }
	if _, _, err := Bind(c, layout{attrs: []string{"pos"}}); !errors.Is(err, ErrUnhashable) {
		t.Fatalf("non-comparable Bind err = %v, want ErrUnhashable", err)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

// Deterministic LRU eviction on Flush: accessing "a" promotes it, so "b"
// goes. Nothing is evicted before Flush.
func TestCache_FlushEvictsLRU(t *testing.T) {
	t.Parallel()

	var evicted []policy.Key
	m := &countingMetrics{}
	c := newLRU(2, Options{
		Metrics: m,
		OnEvict: func(k policy.Key, _ any, r policy.Reason) {
			if r != policy.ReasonCapacity {
				t.Errorf("reason = %v", r)
			}
			evicted = append(evicted, k)
		},
	})

	a, b, d := policy.KeyOf[int](1), policy.KeyOf[int](2), policy.KeyOf[int](3)
	_, _ = c.Insert(a, 1)
	_, _ = c.Insert(b, 2)
	c.Get(a)
	_, _ = c.Insert(d, 3)
	if c.Len() != 3 {
		t.Fatalf("entries must stay resident until Flush, len=%d", c.Len())
	}

	if n := c.Flush(); n != 1 {
		t.Fatalf("Flush = %d, want 1", n)
	}
	if len(evicted) != 1 || evicted[0] != b {
		t.Fatalf("evicted %v, want [%v]", evicted, b)
	}
	if m.evicts[policy.ReasonCapacity] != 1 || m.size != 2 {
		t.Fatalf("metrics evicts=%v size=%d", m.evicts, m.size)
	}
	st := c.Stats()
	if st.Hits != 1 || st.Evictions != 1 || st.Entries != 2 {
		t.Fatalf("stats = %+v", st)
	}
}

// Releasing the only handle reclaims exactly that key on the next Flush.
func TestCache_RefDropReclaimsReleased(t *testing.T) {
	t.Parallel()

	c := newRefDrop(Options{})
	k1, k2 := policy.KeyOf[*texture](1), policy.KeyOf[*texture](2)
	h1, err := c.Insert(k1, &texture{})
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := c.Insert(k2, &texture{})
	t.Cleanup(h2.Release)

	go h1.Release()
	deadline := time.Now().Add(2 * time.Second)
	for c.Contains(k1) && time.Now().Before(deadline) {
		c.Flush()
		time.Sleep(time.Millisecond)
	}
	if c.Contains(k1) || !c.Contains(k2) {
		t.Fatalf("k1 resident=%v k2 resident=%v", c.Contains(k1), c.Contains(k2))
	}
	if _, ok := c.Acquire(k1); ok {
		t.Fatal("Acquire of reclaimed key must fail")
	}
	h, ok := c.Acquire(k2)
	if !ok {
		t.Fatal("Acquire of held key must succeed")
	}
	h.Release()
}

// Hybrid entries outlive their last release by the policy lifetime.
func TestCache_HybridLifetime(t *testing.T) {
	t.Parallel()

	var reasons []policy.Reason
	c := New(func() policy.Policy[hybrid.Handle] { return hybrid.New(3) }, Options{
		OnEvict: func(_ policy.Key, _ any, r policy.Reason) { reasons = append(reasons, r) },
	})
	k := policy.KeyOf[string](1)
	h, _ := c.Insert(k, "mesh")
	h.Release()

	for i := range 2 {
		if c.Flush() != 0 {
			t.Fatalf("evicted early on pass %d", i)
		}
	}
	if c.Flush() != 1 {
		t.Fatal("not evicted after lifetime")
	}
	if len(reasons) != 1 || reasons[0] != policy.ReasonExpired {
		t.Fatalf("reasons = %v", reasons)
	}
}

// Concurrent GetOrLoad calls for one key run the loader once and each get
// a usable handle.
func TestCache_GetOrLoadCoalesces(t *testing.T) {
	t.Parallel()

	c := newRefDrop(Options{})
	var calls atomic.Int32
	load := func(context.Context, policy.Key) (any, error) {
		calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		return &texture{name: "loaded"}, nil
	}
	k := policy.KeyOf[*texture](99)

	const callers = 32
	handles := make([]refdrop.Handle, callers)
	var g errgroup.Group
	for i := range callers {
		g.Go(func() error {
			v, h, err := c.GetOrLoad(context.Background(), k, load)
			if err != nil {
				return err
			}
			if v.(*texture).name != "loaded" {
				return errors.New("wrong value")
			}
			handles[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Fatalf("loader ran %d times, want 1", calls.Load())
	}

	// Every caller owns one reference; the entry survives until all release.
	for _, h := range handles[1:] {
		h.Release()
	}
	c.Flush()
	if !c.Contains(k) {
		t.Fatal("entry reclaimed while a handle is held")
	}
	handles[0].Release()
	c.Flush()
	if c.Contains(k) {
		t.Fatal("entry must be reclaimed after the last release")
	}
}

// An entry whose last handle is gone but which Flush has not reclaimed yet
// is evicted as released when GetOrLoad replaces it.
func TestCache_GetOrLoadEvictsReleased(t *testing.T) {
	t.Parallel()

	type eviction struct {
		v      any
		reason policy.Reason
	}
	var evicted []eviction
	m := &countingMetrics{}
	c := newRefDrop(Options{
		Metrics: m,
		OnEvict: func(_ policy.Key, v any, r policy.Reason) { evicted = append(evicted, eviction{v, r}) },
	})
	k := policy.KeyOf[string](5)
	h, err := c.Insert(k, "old-texture")
	if err != nil {
		t.Fatal(err)
	}
	h.Release()

	v, nh, err := c.GetOrLoad(context.Background(), k, func(context.Context, policy.Key) (any, error) {
		return "new-texture", nil
	})
	if err != nil || v != "new-texture" {
		t.Fatalf("GetOrLoad = %v, %v", v, err)
	}
	if len(evicted) != 1 || evicted[0] != (eviction{"old-texture", policy.ReasonReleased}) {
		t.Fatalf("evicted = %v", evicted)
	}
	if st := c.Stats(); st.Evictions != 1 || st.Entries != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if m.evicts[policy.ReasonReleased] != 1 {
		t.Fatalf("metrics evicts = %v", m.evicts)
	}

	// The old admission's drop notification must not touch the new value.
	if n := c.Flush(); n != 0 {
		t.Fatalf("Flush evicted %d, want 0", n)
	}
	if got, _ := Lookup[string](c, k); got != "new-texture" {
		t.Fatalf("resident = %q", got)
	}
	nh.Release()
	if n := c.Flush(); n != 1 || len(evicted) != 2 || evicted[1].v != "new-texture" {
		t.Fatalf("Flush = %d, evicted = %v", n, evicted)
	}
}

// singleUse admits one handle per entry; Acquire always fails, as it does
// for a refdrop entry whose holders have all released.
type singleUse struct{}

func (singleUse) OnInsert(k policy.Key) policy.Key      { return k }
func (singleUse) OnAccess(policy.Key)                   {}
func (singleUse) OnRemove(policy.Key)                   {}
func (singleUse) Acquire(policy.Key) (policy.Key, bool) { return policy.Key{}, false }
func (singleUse) Evict(policy.Storage) int              { return 0 }

// A caller joining a load whose entry cannot hand out another handle
// reloads instead of failing.
func TestCache_GetOrLoadSharedReloads(t *testing.T) {
	t.Parallel()

	c := New(func() policy.Policy[policy.Key] { return singleUse{} }, Options{})
	var calls atomic.Int32
	load := func(context.Context, policy.Key) (any, error) {
		calls.Add(1)
		time.Sleep(2 * time.Millisecond)
		return "loaded", nil
	}
	k := policy.KeyOf[string](3)

	var g errgroup.Group
	for range 16 {
		g.Go(func() error {
			v, h, err := c.GetOrLoad(context.Background(), k, load)
			if err != nil {
				return err
			}
			if v != "loaded" || h != k {
				return errors.New("wrong value or handle")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if st := c.Stats(); st.Entries != 1 || st.Evictions != uint64(calls.Load()-1) {
		t.Fatalf("stats = %+v after %d loads", st, calls.Load())
	}
}

// GetOrLoad without any loader fails with ErrNoLoader; loader errors pass
// through and nothing is inserted.
func TestCache_GetOrLoadErrors(t *testing.T) {
	t.Parallel()

	c := newLRU(4, Options{})
	k := policy.KeyOf[int](1)
	if _, _, err := c.GetOrLoad(context.Background(), k, nil); !errors.Is(err, ErrNoLoader) {
		t.Fatalf("err = %v, want ErrNoLoader", err)
	}

	boom := errors.New("boom")
	c2 := newLRU(4, Options{Loader: func(context.Context, policy.Key) (any, error) { return nil, boom }})
	if _, _, err := c2.GetOrLoad(context.Background(), k, nil); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if c2.Len() != 0 {
		t.Fatal("failed load must not insert")
	}
}

// Run flushes periodically and stops with the context.
func TestCache_Run(t *testing.T) {
	t.Parallel()

	c := newRefDrop(Options{})
	k := policy.KeyOf[int](1)
	h, _ := c.Insert(k, 1)
	h.Release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for c.Contains(k) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
	if c.Contains(k) {
		t.Fatal("Run did not reclaim the released key")
	}
	if err := c.Run(ctx, 0); err == nil {
		t.Fatal("non-positive interval must fail")
	}
}

// After Close, mutations are rejected and eviction stops.
func TestCache_Close(t *testing.T) {
	t.Parallel()

	c := newRefDrop(Options{})
	k := policy.KeyOf[int](1)
	h, _ := c.Insert(k, 1)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	_ = c.Close()
	h.Release()

	if _, err := c.Insert(policy.KeyOf[int](2), 2); !errors.Is(err, ErrClosed) {
		t.Fatalf("Insert after Close err = %v", err)
	}
	if c.Flush() != 0 {
		t.Fatal("Flush after Close must evict nothing")
	}
	if _, ok := c.Get(k); ok {
		t.Fatal("Get after Close must miss")
	}
}

// Multiple shards spread keys but keep per-key semantics.
func TestCache_Sharded(t *testing.T) {
	t.Parallel()

	c := newLRU(1000, Options{Shards: 4})
	if len(c.shards) != 4 {
		t.Fatalf("shards = %d", len(c.shards))
	}
	for i := range 256 {
		if _, err := c.Insert(policy.KeyOf[int](uint64(i)), i); err != nil {
			t.Fatal(err)
		}
	}
	if c.Len() != 256 {
		t.Fatalf("Len = %d", c.Len())
	}
	used := 0
	for _, s := range c.shards {
		if s.len() > 0 {
			used++
		}
	}
	if used < 2 {
		t.Fatalf("keys landed in %d shard(s)", used)
	}
	for i := range 256 {
		v, err := Lookup[int](c, policy.KeyOf[int](uint64(i)))
		if err != nil || v != i {
			t.Fatalf("Lookup %d = %d, %v", i, v, err)
		}
	}
}
