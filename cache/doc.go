// Package cache provides a generic, sharded in-memory cache with
// single-flight request coalescing, placeholder values for in-flight
// computations, capacity-triggered and periodic background eviction,
// lifecycle-scoped weak removal hooks, and lightweight metrics hooks.
//
// # Design
//
//   - Single flight: the first request for an absent key draws a ticket
//     from a process-wide counter and installs a pending entry carrying
//     that ticket. Whoever finds their own ticket in the entry owns the
//     computation; everyone else waits on the entry's done channel and
//     shares the published result. No lock is held across the (typically
//     I/O-bound) computation.
//
//   - Pending values: GetOrInsertPending exposes a caller-built
//     placeholder (e.g. a handle to a directory still being populated)
//     the moment a key transitions from absent to pending, and finalizes
//     the real value in a detached goroutine.
//
//   - Storage: the key space is split into shards, each a mutex-guarded
//     map. Lock scope is a few map operations; different keys on the same
//     shard only contend for those, never for each other's computations.
//
//   - Eviction: two independent policies. FullCacheEvictionMode runs
//     inline when a successful insert overflows Capacity;
//     BackgroundEvictionMode runs on a detached periodic sweeper. LRU
//     passes snapshot cached entries' idle times and keep the most
//     recently used; OlderThan drops entries idle for at least a TTL.
//     Entries with a computation in flight are never evicted, and failed
//     computations are never cached.
//
//   - Lifecycle: the handle is a cheap shared reference. WeakRemover
//     hands out removal closures that hold only a weak reference, and the
//     background sweeper does the same, so dropping every handle lets the
//     GC reclaim the cache and the sweeper exit on its own.
//
//   - Metrics: Options.Metrics receives capacity/size/hit/miss/eviction
//     signals labeled with the instance name. NoopMetrics is the default;
//     adapters for Prometheus and OpenTelemetry live under metrics/.
//
// # Basic usage
//
//	c := cache.NewSimple[string, string](cache.Options{
//	    Capacity:          10_000,
//	    FullCacheEviction: cache.FullCacheLeastRecentlyUsed(1),
//	    Name:              "component",
//	})
//	defer func() { _ = c.Close() }()
//
//	v, err := c.GetOrInsert(ctx, "k", func(ctx context.Context) (string, error) {
//	    return fetchFromUpstream(ctx, "k") // runs at most once per key
//	})
//
// # Pending values
//
//	c := cache.New[string, *Placeholder, *Artifact](cache.Options{Name: "artifacts"})
//	out, _ := c.GetOrInsertPending(ctx, "a",
//	    func() *Placeholder { return newPlaceholder() },
//	    func(ctx context.Context, p *Placeholder) (*Artifact, error) {
//	        return build(ctx, p)
//	    })
//	if pv, ok := out.Pending(); ok {
//	    _ = pv // computation still running; placeholder available now
//	}
//
// # Background eviction
//
//	c := cache.NewSimple[string, []byte](cache.Options{
//	    BackgroundEviction: cache.BackgroundOlderThan(5*time.Minute, time.Minute),
//	    Name:               "worker-dirs",
//	})
//
// All methods are safe for concurrent use. Reads and writes are O(1)
// expected; LRU eviction is O(n log n) in the number of cached entries
// and runs off the per-key hot path.
package cache
