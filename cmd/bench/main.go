// Command bench runs a synthetic scoped workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/stablelru/cache"
	pmet "github.com/IvanBrykalov/stablelru/metrics/prom"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "bench:", err)
		os.Exit(2)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(cfg, log); err != nil {
		log.Error("bench failed", slog.Any("error", err))
		os.Exit(1)
	}
}

type counters struct {
	reads, writes, hits, misses, replaced, bytes, total atomic.Uint64
}

func run(cfg config, log *slog.Logger) error {
	// ---- pprof server (on DefaultServeMux) ----
	if cfg.PprofAddr != "" {
		go func() {
			log.Info("pprof: serving", slog.String("addr", cfg.PprofAddr))
			log.Warn("pprof: stopped", slog.Any("error", http.ListenAndServe(cfg.PprofAddr, nil)))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "stablelru", "bench", nil)
	if cfg.MetricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("metrics: serving", slog.String("addr", cfg.MetricsAddr))
			log.Warn("metrics: stopped", slog.Any("error", http.ListenAndServe(cfg.MetricsAddr, nil)))
		}()
	}

	// ---- Build cache ----
	c, err := cache.NewGuarded(cache.Options[string, string]{
		Capacity: cfg.Capacity,
		Metrics:  metrics,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	// ---- Preload to get a realistic hit-rate ----
	for i := 0; i < cfg.Preload; i++ {
		k := "k:" + strconv.Itoa(i)
		c.Put(k, "v"+strconv.Itoa(i))
	}
	log.Info("preloaded", slog.Int("entries", c.Len()), slog.Int("cap", c.Cap()))

	// ---- Load generation ----
	var n counters
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		id := w
		g.Go(func() error { return worker(ctx, c, cfg, id, &n) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	// ---- Report ----
	ops := n.total.Load()
	reads := n.reads.Load()
	hitRate := 0.0
	if reads > 0 {
		hitRate = float64(n.hits.Load()) / float64(reads) * 100
	}

	fmt.Printf("cap=%d workers=%d batch=%d keys=%d dur=%v seed=%d\n",
		cfg.Capacity, cfg.Workers, cfg.Batch, cfg.Keys, elapsed, cfg.Seed)
	fmt.Printf("scopes=%d (%.0f scopes/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), reads, n.writes.Load())
	fmt.Printf("hits=%d misses=%d hit-rate=%.2f%% replaced=%d bytes-read=%d len=%d\n",
		n.hits.Load(), n.misses.Load(), hitRate, n.replaced.Load(), n.bytes.Load(), c.Len())
	return nil
}

// worker runs scopes until ctx is done. A read scope borrows cfg.Batch
// values at once and only releases them after all were read; a write
// scope puts one entry.
func worker(ctx context.Context, c *cache.Guarded[string, string], cfg config, id int, n *counters) error {
	// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
	r := rand.New(rand.NewSource(cfg.Seed + int64(id)*9973))
	zipf := rand.NewZipf(r, cfg.ZipfS, cfg.ZipfV, uint64(cfg.Keys-1))
	key := func() string { return "k:" + strconv.FormatUint(zipf.Uint64(), 10) }

	refs := make([]*cache.Ref[string], 0, cfg.Batch)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n.total.Add(1)
		if int(r.Int31n(100)) < cfg.ReadPct {
			err := c.Do(func(h *cache.Handle[string, string], p *cache.Perm) error {
				refs = refs[:0]
				for i := 0; i < cfg.Batch; i++ {
					n.reads.Add(1)
					if ref, ok := h.Get(key(), p); ok {
						n.hits.Add(1)
						refs = append(refs, ref)
					} else {
						n.misses.Add(1)
					}
				}
				for _, ref := range refs {
					n.bytes.Add(uint64(len(ref.Value())))
				}
				p.ReleaseAll()
				return nil
			})
			if err != nil {
				return err
			}
			continue
		}

		n.writes.Add(1)
		k, v := key(), "v"+strconv.Itoa(r.Int())
		// Put hands back the displaced value: the key's old one or the evicted entry's.
		if _, replaced := c.Put(k, v); replaced {
			n.replaced.Add(1)
		}
	}
}
