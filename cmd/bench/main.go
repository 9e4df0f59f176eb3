// Command bench runs a synthetic workload against the arenas and the cache
// and optionally exposes Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/IvanBrykalov/arenacache/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "bench:", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	configPath string
	out        string
	progress   bool
	httpAddr   string
	logLevel   string
	seed       uint64
}

func run(args []string) error {
	w := config.Default()
	var cli cliOptions

	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	fs.StringVar(&cli.configPath, "config", "", "workload file (.yaml, .yml, .json, .jsonc)")
	fs.StringVar(&w.Arena, "arena", w.Arena, "arena kind: dense | sparse | freelist | sorted")
	fs.IntVar(&w.Ops, "ops", w.Ops, "operations per worker")
	fs.IntVar(&w.Workers, "workers", w.Workers, "concurrent cache workers")
	fs.StringVar(&w.Policy, "policy", w.Policy, "eviction policy: noevict | lru | twoq | refdrop | hybrid")
	fs.IntVar(&w.Capacity, "capacity", w.Capacity, "capacity for lru and twoq")
	fs.Uint32Var(&w.Lifetime, "lifetime", w.Lifetime, "hybrid lifetime in flushes")
	fs.IntVar(&w.Shards, "shards", w.Shards, "cache shards (0 = 1, <0 = auto)")
	fs.IntVar(&w.Keys, "keys", w.Keys, "keyspace size")
	fs.IntVar(&w.ReadPct, "reads", w.ReadPct, "read percentage [0..100]")
	flush := fs.Duration("flush", w.Flush.Duration(), "maintenance flush interval")
	fs.StringVarP(&cli.out, "out", "o", "", "write a JSON report to this file")
	fs.BoolVar(&cli.progress, "progress", false, "show a progress bar")
	fs.StringVar(&cli.httpAddr, "http", "", "serve Prometheus metrics at addr (e.g. :8080)")
	fs.StringVar(&cli.logLevel, "log-level", "info", "log level: debug | info | warn | error")
	fs.Uint64Var(&cli.seed, "seed", uint64(time.Now().UnixNano()), "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	w.Flush = config.Duration(*flush)

	// Flags given explicitly win over the file.
	if cli.configPath != "" {
		loaded, err := config.Load(cli.configPath)
		if err != nil {
			return err
		}
		fs.Visit(func(f *flag.Flag) { overlay(&loaded, w, f.Name) })
		w = loaded
	}
	if err := w.Validate(); err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cli.logLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	reg := prometheus.NewRegistry()
	if cli.httpAddr != "" {
		srv := &http.Server{
			Addr:              cli.httpAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("serving metrics", "addr", cli.httpAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "err", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	b := &bench{w: w, seed: cli.seed, log: log, reg: reg, progress: cli.progress}
	rep, err := b.run(ctx)
	if err != nil {
		return err
	}
	rep.print(os.Stdout)
	if cli.out != "" {
		if err := rep.write(cli.out); err != nil {
			return err
		}
		log.Info("report written", "path", cli.out)
	}
	return nil
}

// overlay copies the field behind flag name from src into dst.
func overlay(dst *config.Workload, src config.Workload, name string) {
	switch name {
	case "arena":
		dst.Arena = src.Arena
	case "ops":
		dst.Ops = src.Ops
	case "workers":
		dst.Workers = src.Workers
	case "policy":
		dst.Policy = src.Policy
	case "capacity":
		dst.Capacity = src.Capacity
	case "lifetime":
		dst.Lifetime = src.Lifetime
	case "shards":
		dst.Shards = src.Shards
	case "keys":
		dst.Keys = src.Keys
	case "reads":
		dst.ReadPct = src.ReadPct
	case "flush":
		dst.Flush = src.Flush
	}
}
