package cache

import (
	"context"
	"log/slog"

	"github.com/IvanBrykalov/arenacache/policy"
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason policy.Reason)
	Size(entries int)
}

// Loader produces the value for a missing key. Used by GetOrLoad.
type Loader func(ctx context.Context, k policy.Key) (any, error)

// Options configures the cache behavior. Zero values are safe;
// defaults are applied in New():
//   - Shards == 0 => 1 (one policy instance sees every key)
//   - nil Metrics => NoopMetrics
//   - nil Logger  => discard
type Options struct {
	// Shards defines the number of partitions, each with its own lock and
	// policy instance. Positive values are rounded up to a power of two;
	// negative values pick ≈ 2*GOMAXPROCS. Capacity-based policies then
	// apply their capacity per shard.
	Shards int

	// Loader is the default for GetOrLoad calls that pass no load function.
	Loader Loader

	// OnEvict is called for every entry a policy reclaims, under the shard
	// lock; keep callbacks lightweight and do not call back into the cache.
	// Explicit Remove does not trigger it.
	OnEvict func(k policy.Key, v any, reason policy.Reason)

	Metrics Metrics
	Logger  *slog.Logger
}
