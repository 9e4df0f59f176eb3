package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/arenacache/internal/singleflight"
	"github.com/IvanBrykalov/arenacache/internal/util"
	"github.com/IvanBrykalov/arenacache/policy"
)

// Cache maps policy keys to type-erased values and delegates reclamation to
// a pluggable eviction policy. H is the handle type the policy returns on
// admission.
//
// All methods are safe for concurrent use by multiple goroutines. Entries
// are only ever reclaimed by Flush (or Run), never as a side effect of
// Insert or Get.
type Cache[H any] struct {
	shards []*shard[H]
	closed atomic.Bool

	opt Options
	log *slog.Logger

	// singleflight group for coalescing concurrent loads in GetOrLoad.
	sf singleflight.Group[policy.Key, loaded[H]]
}

type loaded[H any] struct {
	v any
	h H
}

// New constructs a cache. newPolicy is called once per shard.
// Defaults:
//   - nil Metrics -> NoopMetrics
//   - nil Logger  -> discard
//   - Shards == 0 -> 1
func New[H any](newPolicy func() policy.Policy[H], opt Options) *Cache[H] {
	if newPolicy == nil {
		panic("cache: New requires a policy constructor")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}

	c := &Cache[H]{opt: opt}
	c.log = opt.Logger.With("component", "cache")
	c.shards = make([]*shard[H], util.ShardCount(opt.Shards))
	for i := range c.shards {
		c.shards[i] = newShard(newPolicy(), &c.opt)
	}
	return c
}

// Insert admits k→v and returns the policy handle for it.
// It fails with ErrExists if k is already resident.
func (c *Cache[H]) Insert(k policy.Key, v any) (H, error) {
	var zero H
	if c.closed.Load() {
		return zero, ErrClosed
	}
	h, ok := c.shardFor(k).insert(k, v)
	if !ok {
		c.log.Debug("duplicate insert", "key", k)
		return zero, fmt.Errorf("insert %s: %w", k, ErrExists)
	}
	return h, nil
}

// Bind admits v under a key derived from its hash and type.
// Values outside the types util.Fnv64a lists must be comparable or
// implement util.Hasher; anything else fails with ErrUnhashable.
func Bind[T any, H any](c *Cache[H], v T) (policy.Key, H, error) {
	uid, ok := util.Hash(v)
	if !ok {
		var zero H
		return policy.Key{}, zero, fmt.Errorf("bind %T: %w", v, ErrUnhashable)
	}
	k := policy.KeyOf[T](uid)
	h, err := c.Insert(k, v)
	return k, h, err
}

// Get returns the value for k and reports the access to the policy.
func (c *Cache[H]) Get(k policy.Key) (any, bool) {
	if c.closed.Load() {
		return nil, false
	}
	return c.shardFor(k).get(k)
}

// Lookup returns the value for k as a T.
func Lookup[T any, H any](c *Cache[H], k policy.Key) (T, error) {
	var zero T
	v, ok := c.Get(k)
	if !ok {
		return zero, fmt.Errorf("lookup %s: %w", k, ErrNotFound)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("lookup %s: holds %T: %w", k, v, ErrTypeMismatch)
	}
	return t, nil
}

// Acquire returns a new policy handle for a resident key. It fails when the
// key is absent or the policy will no longer hand one out (for example,
// every reference was released and the entry awaits reclamation).
func (c *Cache[H]) Acquire(k policy.Key) (H, bool) {
	if c.closed.Load() {
		var zero H
		return zero, false
	}
	_, h, ok := c.shardFor(k).acquire(k)
	return h, ok
}

// Contains reports whether k is resident, without counting an access.
func (c *Cache[H]) Contains(k policy.Key) bool { return c.shardFor(k).contains(k) }

// Remove deletes k if present and returns its value so the caller can
// destroy it. Explicit removal is not an eviction: OnEvict is not called.
func (c *Cache[H]) Remove(k policy.Key) (any, bool) {
	if c.closed.Load() {
		return nil, false
	}
	return c.shardFor(k).remove(k)
}

// Len returns the total number of resident entries across all shards.
func (c *Cache[H]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.len()
	}
	return total
}

// Stats returns the counters accumulated since New.
func (c *Cache[H]) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Evictions += s.evicts.Load()
		st.Entries += s.len()
	}
	return st
}

// Flush runs one eviction pass on every shard and returns the number of
// reclaimed entries.
func (c *Cache[H]) Flush() int {
	if c.closed.Load() {
		return 0
	}
	n := 0
	for _, s := range c.shards {
		n += s.flush()
	}
	resident := c.Len()
	c.opt.Metrics.Size(resident)
	if n > 0 {
		c.log.Debug("flush", "evicted", n, "resident", resident)
	}
	return n
}

// Run calls Flush every interval until ctx is done or the cache is closed.
// It returns ctx.Err() or ErrClosed.
func (c *Cache[H]) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("cache: run interval must be positive, got %v", interval)
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if c.closed.Load() {
				return ErrClosed
			}
			c.Flush()
		}
	}
}

// GetOrLoad returns the value for k together with a handle, loading and
// inserting it on miss. Concurrent loads for the same key are coalesced
// (singleflight); every caller receives its own handle. A resident entry
// the policy no longer hands out handles for is evicted with
// ReasonReleased and replaced by the loaded value.
// load may be nil to use Options.Loader.
func (c *Cache[H]) GetOrLoad(ctx context.Context, k policy.Key, load Loader) (any, H, error) {
	var zero H
	if c.closed.Load() {
		return nil, zero, ErrClosed
	}
	if load == nil {
		load = c.opt.Loader
	}
	s := c.shardFor(k)

	for {
		// fast path
		if v, h, ok := s.acquire(k); ok {
			return v, h, nil
		}
		if load == nil {
			return nil, zero, ErrNoLoader
		}

		res, shared, err := c.sf.Do(ctx, k, func() (loaded[H], error) {
			// double-check after flight join
			if v, h, ok := s.acquire(k); ok {
				return loaded[H]{v: v, h: h}, nil
			}
			v, err := load(ctx, k)
			if err != nil {
				return loaded[H]{}, err
			}
			if c.closed.Load() {
				return loaded[H]{}, ErrClosed
			}
			v, h := s.replace(k, v)
			return loaded[H]{v: v, h: h}, nil
		})
		if err != nil {
			return nil, zero, err
		}
		if !shared {
			return res.v, res.h, nil
		}
		// The leader's handle belongs to the leader. If every handle is gone
		// by now, the entry awaits reclamation and the next round reloads.
		if v, h, ok := s.acquire(k); ok {
			return v, h, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, zero, err
		}
		c.log.Debug("get or load: shared entry released, reloading", "key", k)
	}
}

// Close marks the cache as closed and closes every policy that supports it.
// Future operations are ignored or fail with ErrClosed.
func (c *Cache[H]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, s := range c.shards {
		s.close()
	}
	c.log.Debug("closed", "resident", c.Len())
	return nil
}

// shardFor picks a shard by hashing the key identity.
func (c *Cache[H]) shardFor(k policy.Key) *shard[H] {
	h := util.Combine(util.Fnv64a(k.UID), uint64(k.Generation))
	return c.shards[util.ShardIndex(h, len(c.shards))]
}
