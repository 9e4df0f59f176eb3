package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/natefinch/atomic"

	"github.com/IvanBrykalov/arenacache/internal/config"
)

type arenaStats struct {
	Elapsed time.Duration `json:"elapsed_ns"`
	Inserts int           `json:"inserts"`
	Removes int           `json:"removes"`
	Live    int           `json:"live"`
	Slots   int           `json:"slots"`
}

type deferredStats struct {
	Frames   int `json:"frames"`
	Expired  int `json:"expired"`
	PeakLive int `json:"peak_live"`
}

type cacheStats struct {
	Elapsed   time.Duration `json:"elapsed_ns"`
	Reads     int64         `json:"reads"`
	Writes    int64         `json:"writes"`
	LoadErrs  int64         `json:"load_errors"`
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Evictions uint64        `json:"evictions"`
	Resident  int           `json:"resident"`
}

type report struct {
	Workload config.Workload `json:"workload"`
	Seed     uint64          `json:"seed"`
	Arena    arenaStats      `json:"arena"`
	Deferred deferredStats   `json:"deferred"`
	Cache    cacheStats      `json:"cache"`
}

func (r *report) print(w io.Writer) {
	a, c := r.Arena, r.Cache
	fmt.Fprintf(w, "arena=%s ops=%d (%.0f ops/s) live=%d slots=%d\n",
		r.Workload.Arena, a.Inserts+a.Removes, perSecond(a.Inserts+a.Removes, a.Elapsed), a.Live, a.Slots)
	fmt.Fprintf(w, "deferred frames=%d expired=%d peak=%d\n",
		r.Deferred.Frames, r.Deferred.Expired, r.Deferred.PeakLive)

	hitRate := 0.0
	if n := c.Hits + c.Misses; n > 0 {
		hitRate = float64(c.Hits) / float64(n) * 100
	}
	fmt.Fprintf(w, "policy=%s workers=%d ops=%d (%.0f ops/s) reads=%d writes=%d\n",
		r.Workload.Policy, r.Workload.Workers, c.Reads+c.Writes,
		perSecond(int(c.Reads+c.Writes), c.Elapsed), c.Reads, c.Writes)
	fmt.Fprintf(w, "hits=%d misses=%d hit-rate=%.2f%% evictions=%d resident=%d\n",
		c.Hits, c.Misses, hitRate, c.Evictions, c.Resident)
}

// write stores the report as indented JSON, replacing path atomically.
func (r *report) write(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func perSecond(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
