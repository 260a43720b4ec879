// Command bench runs a synthetic single-flight workload against the cache
// and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/golemcloud/golem-sub026/cache"
	pmet "github.com/golemcloud/golem-sub026/metrics/prom"
)

func main() {
	// ---- Flags ----
	var (
		capacity   = flag.Int("cap", 100_000, "cache capacity (entries, 0 = unbounded)")
		evictBatch = flag.Int("evict_batch", 1_000, "entries evicted per inline LRU pass")
		shards     = flag.Int("shards", 0, "number of shards (0=auto)")
		ttl        = flag.Duration("ttl", 0, "background OlderThan TTL (0 = disabled)")
		sweep      = flag.Duration("sweep", time.Second, "background sweep period")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		loadTime = flag.Duration("load_time", 0, "simulated load latency per computed key")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 0, "preload entries (0 = cap/2)")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "golem", "cache", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build cache ----
	opt := cache.Options{
		Capacity: *capacity,
		Shards:   *shards,
		Metrics:  metrics,
		Name:     "bench",
	}
	if *capacity > 0 {
		opt.FullCacheEviction = cache.FullCacheLeastRecentlyUsed(*evictBatch)
	}
	if *ttl > 0 {
		opt.BackgroundEviction = cache.BackgroundOlderThan(*ttl, *sweep)
	}
	c := cache.NewSimple[string, string](opt)
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	loadLatency := *loadTime
	load := func(k string) func(context.Context) (string, error) {
		return func(context.Context) (string, error) {
			if loadLatency > 0 {
				time.Sleep(loadLatency)
			}
			return "v:" + k, nil
		}
	}

	// ---- Preload half capacity to get a realistic hit-rate ----
	pl := *preload
	if pl == 0 {
		pl = *capacity / 2
	}
	for i := 0; i < pl; i++ {
		k := "k:" + strconv.Itoa(i)
		_, _ = c.GetOrInsert(ctx, k, load(k))
	}

	// ---- Snapshot flags for goroutines ----
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var total uint64
	runCtx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			for {
				select {
				case <-runCtx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				k := "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
				if _, err := c.GetOrInsert(ctx, k, load(k)); err != nil {
					log.Fatalf("GetOrInsert: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	st := c.Stats()

	hitRate := 0.0
	if st.Hits+st.Misses > 0 {
		hitRate = float64(st.Hits) / float64(st.Hits+st.Misses) * 100
	}

	fmt.Printf("cap=%d shards=%d workers=%d keys=%d dur=%v seed=%d\n",
		*capacity, *shards, workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)\n", ops, float64(ops)/elapsed.Seconds())
	fmt.Printf("hits=%d  misses=%d  evictions=%d  hit-rate=%.2f%%\n",
		st.Hits, st.Misses, st.Evictions, hitRate)
	fmt.Printf("Len()=%d\n", c.Len())
}
