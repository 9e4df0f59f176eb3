package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/arenacache/arena"
	"github.com/IvanBrykalov/arenacache/cache"
	"github.com/IvanBrykalov/arenacache/deferred"
	"github.com/IvanBrykalov/arenacache/internal/config"
	pmet "github.com/IvanBrykalov/arenacache/metrics/prom"
	"github.com/IvanBrykalov/arenacache/policy"
	"github.com/IvanBrykalov/arenacache/policy/hybrid"
	"github.com/IvanBrykalov/arenacache/policy/lru"
	"github.com/IvanBrykalov/arenacache/policy/noevict"
	"github.com/IvanBrykalov/arenacache/policy/refdrop"
	"github.com/IvanBrykalov/arenacache/policy/twoq"
)

// resource stands in for a GPU object: small, copied by value.
type resource struct {
	id    uint64
	bytes uint32
}

type bench struct {
	w        config.Workload
	seed     uint64
	log      *slog.Logger
	reg      prometheus.Registerer
	progress bool
}

func (b *bench) run(ctx context.Context) (*report, error) {
	rep := &report{Workload: b.w, Seed: b.seed}

	churn, err := b.churn()
	if err != nil {
		return nil, err
	}
	rep.Arena = churn

	rep.Deferred = b.frames()

	cs, err := b.cachePhase(ctx)
	if err != nil {
		return nil, err
	}
	rep.Cache = cs
	return rep, nil
}

func (b *bench) newArena() arena.Container[resource] {
	switch b.w.Arena {
	case "sparse":
		return arena.NewSparse[resource](0)
	case "freelist":
		return arena.NewFreeList[resource](0)
	case "sorted":
		return arena.NewSorted(func(x, y resource) int { return cmp.Compare(x.id, y.id) })
	default:
		return arena.NewDense[resource](0)
	}
}

func (b *bench) newBar(n int, what string) *progressbar.ProgressBar {
	if !b.progress {
		return progressbar.DefaultSilent(int64(n), what)
	}
	return progressbar.Default(int64(n), what)
}

// churn inserts and removes resources at random through one arena, keeping
// roughly Keys values live.
func (b *bench) churn() (arenaStats, error) {
	a := b.newArena()
	pmet.RegisterArena(b.reg, "arenacache", b.w.Arena, occupancy{a})
	r := rand.New(rand.NewPCG(b.seed, 1))
	live := make([]arena.Handle[resource], 0, b.w.Keys)

	ops := b.w.Ops * b.w.Workers
	bar := b.newBar(ops, "arena "+b.w.Arena)
	defer func() { _ = bar.Close() }()

	start := time.Now()
	var st arenaStats
	for i := range ops {
		if len(live) < b.w.Keys && (len(live) == 0 || r.IntN(2) == 0) {
			live = append(live, a.Insert(resource{id: r.Uint64(), bytes: uint32(i)}))
			st.Inserts++
		} else {
			j := r.IntN(len(live))
			if _, err := a.Remove(live[j]); err != nil {
				return st, fmt.Errorf("churn: %w", err)
			}
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
			st.Removes++
		}
		if i%1024 == 0 {
			_ = bar.Set(i)
		}
	}
	_ = bar.Finish()

	var sum uint64
	for _, v := range a.All() {
		sum += uint64(v.bytes)
	}
	st.Elapsed = time.Since(start)
	st.Live = a.Len()
	if c, ok := a.(interface{ Cap() int }); ok {
		st.Slots = c.Cap()
	}
	b.log.Debug("arena churn done", "arena", b.w.Arena, "live", st.Live, "checksum", sum)
	return st, nil
}

// occupancy adapts a Container for the arena gauges; sorted arenas have no
// separate slot count.
type occupancy struct{ arena.Container[resource] }

func (o occupancy) Cap() int {
	if c, ok := o.Container.(interface{ Cap() int }); ok {
		return c.Cap()
	}
	return o.Len()
}

// frames simulates per-frame destruction: each frame retires a batch of
// resources with a three-frame delay.
func (b *bench) frames() deferredStats {
	var st deferredStats
	d := deferred.New(deferred.Options[resource]{
		OnExpire: func(deferred.Handle[resource], resource) { st.Expired++ },
	})
	frames := max(b.w.Ops/64, 1)
	for f := range frames {
		for i := range 64 {
			d.Insert(resource{id: uint64(f*64 + i)}, 3)
		}
		d.Tick()
		st.PeakLive = max(st.PeakLive, d.Len())
	}
	for d.Len() > 0 {
		d.Tick()
	}
	st.Frames = frames
	return st
}

func (b *bench) cachePhase(ctx context.Context) (cacheStats, error) {
	m := pmet.New(b.reg, "arenacache", "cache", prometheus.Labels{"policy": b.w.Policy})
	opt := cache.Options{Shards: b.w.Shards, Metrics: m, Logger: b.log}

	switch b.w.Policy {
	case "noevict":
		return runCache(ctx, b, cache.New(func() policy.Policy[policy.Key] { return noevict.New() }, opt), nil)
	case "twoq":
		return runCache(ctx, b, cache.New(func() policy.Policy[policy.Key] { return twoq.New(b.w.Capacity, 0, 0) }, opt), nil)
	case "refdrop":
		return runCache(ctx, b, cache.New(func() policy.Policy[refdrop.Handle] { return refdrop.New() }, opt), func(h refdrop.Handle) { h.Release() })
	case "hybrid":
		return runCache(ctx, b, cache.New(func() policy.Policy[hybrid.Handle] { return hybrid.New(b.w.Lifetime) }, opt), func(h hybrid.Handle) { h.Release() })
	default:
		return runCache(ctx, b, cache.New(func() policy.Policy[policy.Key] { return lru.New(b.w.Capacity) }, opt), nil)
	}
}

// runCache drives workers against c while a maintenance loop flushes it.
// release, if set, drops each handle a worker obtained.
func runCache[H any](ctx context.Context, b *bench, c *cache.Cache[H], release func(H)) (cacheStats, error) {
	defer func() { _ = c.Close() }()

	load := func(_ context.Context, k policy.Key) (any, error) {
		return resource{id: k.UID, bytes: 256}, nil
	}

	var reads, writes, loadErrs atomic.Int64
	bar := b.newBar(b.w.Ops*b.w.Workers, "cache "+b.w.Policy)
	defer func() { _ = bar.Close() }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	maint := make(chan error, 1)
	go func() { maint <- c.Run(runCtx, b.w.Flush.Duration()) }()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for id := range b.w.Workers {
		g.Go(func() error {
			r := rand.New(rand.NewPCG(b.seed, uint64(id)+2))
			for i := range b.w.Ops {
				if i%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
					_ = bar.Add(256)
				}
				k := policy.KeyOf[resource](r.Uint64N(uint64(b.w.Keys)))
				if r.IntN(100) < b.w.ReadPct {
					reads.Add(1)
					_, _ = cache.Lookup[resource](c, k)
					continue
				}
				writes.Add(1)
				_, h, err := c.GetOrLoad(gctx, k, load)
				if err != nil {
					loadErrs.Add(1)
					continue
				}
				if release != nil {
					release(h)
				}
			}
			return nil
		})
	}
	err := g.Wait()
	elapsed := time.Since(start)
	_ = bar.Finish()
	cancel()
	<-maint
	if err != nil {
		return cacheStats{}, err
	}

	c.Flush()
	st := c.Stats()
	b.log.Info("cache phase done",
		"policy", b.w.Policy, "elapsed", elapsed, "resident", st.Entries, "evictions", st.Evictions)
	return cacheStats{
		Elapsed:   elapsed,
		Reads:     reads.Load(),
		Writes:    writes.Load(),
		LoadErrs:  loadErrs.Load(),
		Hits:      st.Hits,
		Misses:    st.Misses,
		Evictions: st.Evictions,
		Resident:  st.Entries,
	}, nil
}
