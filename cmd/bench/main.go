// Command bench runs a synthetic pin/unpin workload against a cache pool and
// exposes optional pprof/Prometheus endpoints.
//
// Defaults for the byte budget are read from the environment (and a .env
// file, if present) via CACHE_POOL_TOTAL_BYTES_LIMIT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/cachepool/cache"
	"github.com/jmgilman/go/errors"
	pmet "github.com/IvanBrykalov/cachepool/metrics/prom"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// tee forwards pool signals to several Metrics.
type tee []cache.Metrics

func (t tee) Hit() {
	for _, m := range t {
		m.Hit()
	}
}

func (t tee) Miss() {
	for _, m := range t {
		m.Miss()
	}
}

func (t tee) Evict() {
	for _, m := range t {
		m.Evict()
	}
}

// validateWorkload rejects flag values the key generator cannot work with.
func validateWorkload(keys, caches, maxSize int, zipfS, zipfV float64) error {
	switch {
	case keys <= 0:
		return errors.WithContext(errors.New(errors.CodeInvalidInput, "bench: -keys must be positive"), "keys", keys)
	case caches <= 0:
		return errors.WithContext(errors.New(errors.CodeInvalidInput, "bench: -caches must be positive"), "caches", caches)
	case maxSize <= 0:
		return errors.WithContext(errors.New(errors.CodeInvalidInput, "bench: -max_size must be positive"), "max_size", maxSize)
	case zipfS <= 1 || zipfV < 1:
		return errors.WithContextMap(errors.New(errors.CodeInvalidInput, "bench: zipf needs s > 1 and v >= 1"),
			map[string]interface{}{"zipf_s": zipfS, "zipf_v": zipfV})
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("bench failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()
	envLimits, err := cache.LoadLimits()
	if err != nil {
		return err
	}

	// ---- Flags ----
	var (
		limit  = flag.Int64("limit", envLimits.TotalBytesLimit, "pool byte budget (0 = destroy on unpin)")
		caches = flag.Int("caches", 4, "number of caches in the pool")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		writePct = flag.Int("writes", 10, "percentage of pins that resize the entry [0..100]")
		weakPct  = flag.Int("weak", 5, "percentage of pins that take a weak handle [0..100]")
		maxSize  = flag.Int("max_size", 4096, "max entry size in bytes")

		keys  = flag.Int("keys", 100_000, "keyspace size per cache")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr; empty = disabled")
		verbose     = flag.Bool("v", false, "debug logging (eviction sweeps, teardown)")
	)
	flag.Parse()
	if err := validateWorkload(*keys, *caches, *maxSize, *zipfS, *zipfV); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	cache.SetLogger(logger.With("component", "cachepool"))

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			logger.Info("pprof: serving", "addr", *pprofAddr)
			logger.Error("pprof server stopped", "error", http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Build pool ----
	counters := &cache.Counters{}
	var metrics cache.Metrics = counters
	if *metricsAddr != "" {
		metrics = tee{counters, pmet.New(nil, "cachepool", "bench", nil)}
	}
	pool := cache.NewPool(cache.PoolOptions{
		Limits:  cache.Limits{TotalBytesLimit: *limit},
		Metrics: metrics,
	})
	defer pool.ReleaseStrong()

	if *metricsAddr != "" {
		pmet.RegisterPool(nil, "cachepool", "bench", pool, nil)
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info("metrics: serving", "addr", *metricsAddr)
			logger.Error("metrics server stopped", "error", http.ListenAndServe(*metricsAddr, nil))
		}()
	}

	initial := int64(*maxSize / 4)
	cs := make([]*cache.Cache[int64], *caches)
	for i := range cs {
		c, err := cache.GetCache(pool, "bench-"+strconv.Itoa(i), func() (*cache.Cache[int64], error) {
			return cache.New(cache.Options[int64]{
				Init: func(_ string, v *int64) { *v = initial },
				Size: func(key string, v *int64) int64 { return int64(len(key)) + *v },
			}), nil
		})
		if err != nil {
			return err
		}
		defer c.Release()
		cs[i] = c
	}

	// ---- Snapshot flags for goroutines ----
	writePctVal := *writePct
	weakPctVal := *weakPct
	maxSizeVal := *maxSize
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var total, resized, weak atomic.Uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := range workersN {
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(w)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			for gctx.Err() == nil {
				total.Add(1)
				c := cs[localR.Intn(len(cs))]
				e := c.GetEntry("k:" + strconv.FormatUint(localZipf.Uint64(), 10))

				if int(localR.Int31n(100)) < writePctVal {
					resized.Add(1)
					e.Lock()
					e.Value = int64(1 + localR.Intn(maxSizeVal))
					e.MarkSizeChanged()
					e.Unlock()
				}
				if int(localR.Int31n(100)) < weakPctVal {
					weak.Add(1)
					wh := e.Weak()
					e.Release()
					wh.Release()
					continue
				}
				e.Release()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	// ---- Report ----
	ops := total.Load()
	snap := counters.Snapshot()
	st := pool.Stats()
	hitRate := 0.0
	if lookups := snap.Hits + snap.Misses; lookups > 0 {
		hitRate = float64(snap.Hits) / float64(lookups) * 100
	}
	resident := 0
	for _, c := range cs {
		resident += c.Len()
	}

	fmt.Printf("limit=%d caches=%d workers=%d keys=%d dur=%v seed=%d\n",
		st.TotalBytesLimit, len(cs), workersN, *keys, elapsed, seedBase)
	fmt.Printf("pins=%d (%.0f pins/s)  resized=%d  weak=%d\n",
		ops, float64(ops)/elapsed.Seconds(), resized.Load(), weak.Load())
	fmt.Printf("hits=%d  misses=%d  evicts=%d  hit-rate=%.2f%%\n", snap.Hits, snap.Misses, snap.Evicts, hitRate)
	fmt.Printf("resident=%d  total_bytes=%d\n", resident, st.TotalBytes)
	return nil
}
