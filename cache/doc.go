// Package cache provides an eviction-managed store of type-erased values
// keyed by policy.Key, with pluggable reclamation policies, optional
// singleflight loading, and lightweight metrics hooks.
//
// Design
//
//   - Storage: each shard keeps a map[policy.Key]any and its own policy
//     instance, guarded by one mutex. With the default single shard, the
//     policy sees every key; more shards reduce contention and split
//     capacity-based policies per shard.
//
//   - Policies: a Policy[H] decides what to reclaim and what handle type H
//     callers receive on admission: the bare key for lru, twoq and noevict,
//     or a reference-counted handle for refdrop and hybrid.
//
//   - Reclamation happens only in Flush (or the Run loop), from a single
//     maintenance context. Releasing a refdrop/hybrid handle from any
//     goroutine just queues a notification for the next Flush.
//
//   - GetOrLoad: coalesces concurrent loads for the same key using
//     singleflight. Every caller receives its own handle.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     By default NoopMetrics is used; plug metrics/prom to export them.
//
//   - Callbacks: Options.OnEvict(k, v, reason) is called for every
//     reclaimed entry (reason is one of the policy.Reason values).
//
// Basic usage
//
//	c := cache.New(func() policy.Policy[policy.Key] { return lru.New(1024) }, cache.Options{})
//	k := policy.KeyOf[*Texture](id)
//	_, _ = c.Insert(k, tex)
//	t, err := cache.Lookup[*Texture](c, k)
//	c.Flush() // evicts least-recently-used entries over capacity
//
// Reference-counted reclamation
//
//	c := cache.New(func() policy.Policy[refdrop.Handle] { return refdrop.New() }, cache.Options{})
//	h, _ := c.Insert(k, buf)
//	// ... pass h around, Clone it, Release it from any goroutine ...
//	h.Release()
//	c.Flush() // k is reclaimed once its last handle was released
//
// Maintenance loop
//
//	go func() { _ = c.Run(ctx, 16*time.Millisecond) }()
package cache
