package cache

import (
	"context"
	"weak"

	"github.com/golemcloud/golem-sub026/internal/util"
)

// ErrClosed is returned by GetOrInsert and GetOrInsertPending after Close.
var ErrClosed = errorsNew("cache: closed")

// lightweight local errors.New to avoid importing std 'errors' everywhere
func errorsNew(s string) error { return &strErr{s} }

type strErr struct{ s string }

func (e *strErr) Error() string { return e.s }

// Cache is a generic key→value cache that runs at most one computation per
// key at a time, fanning the result out to every concurrent requester.
// While a computation runs, a caller-supplied placeholder of type PV is
// visible through GetOrInsertPending. Capacity overflow and a periodic
// background sweep evict cached values; in-flight computations are never
// evicted.
//
// The handle is a cheap shared reference: copy it freely, every copy
// operates on the same underlying state. All methods are safe for
// concurrent use by multiple goroutines.
type Cache[K comparable, PV, V any] struct {
	state *cacheState[K, PV, V]
}

// New constructs a cache with the provided Options and reports its initial
// capacity and zero size to the configured Metrics. If a background
// eviction mode is set, the periodic sweeper is started immediately.
func New[K comparable, PV, V any](opt Options) *Cache[K, PV, V] {
	if opt.Capacity < 0 {
		panic("cache: Capacity must be >= 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	// number of shards -> power of two
	sh := opt.Shards
	if sh <= 0 {
		sh = util.ReasonableShardCount()
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}

	s := &cacheState[K, PV, V]{
		shards: make([]*shard[K, PV, V], sh),
		hash:   util.Fnv64a[K],
		opt:    opt,
	}
	for i := range s.shards {
		s.shards[i] = &shard[K, PV, V]{m: make(map[K]item[PV, V])}
	}

	opt.Metrics.CacheCapacity(opt.Name, opt.Capacity)
	opt.Metrics.CacheSize(opt.Name, 0)

	if opt.BackgroundEviction.enabled() {
		s.stop = make(chan struct{})
		go runSweeper(weak.Make(s), opt.BackgroundEviction.period, s.stop)
	}
	return &Cache[K, PV, V]{state: s}
}

// GetOrInsert returns the cached value for key, or computes it with at
// most one compute call running per key at any time.
//
// The first request for an absent key becomes the owner: makePending
// produces the placeholder stored for the duration of the computation, and
// compute runs with it. Concurrent requests for the same key neither call
// makePending nor compute; they wait for the owner's outcome and receive
// the same value or error. A failed computation is never cached: the entry
// is dropped and the next request starts a fresh attempt.
//
// ctx cancellation unblocks only the calling waiter; the owner's compute
// keeps running for everyone else.
func (c *Cache[K, PV, V]) GetOrInsert(ctx context.Context, key K, makePending func() PV, compute func(context.Context, PV) (V, error)) (V, error) {
	s := c.state
	if s.closed.Load() {
		var zero V
		return zero, ErrClosed
	}

	ownID := s.nextID.Add(1)
	it := s.acquire(key, ownID, makePending)

	if e := it.cached; e != nil {
		s.recordHit()
		e.touch(s.now())
		return e.val, nil
	}

	p := it.pending
	if p.id != ownID {
		// Lost the ownership race; share the owner's outcome.
		s.recordHit()
		return p.wait(ctx)
	}

	s.recordMiss()
	v, err := compute(ctx, p.pendingValue)
	evict := s.finish(key, ownID, v, err)
	p.publish(v, err)
	if evict {
		s.runFullEviction()
	}
	return v, err
}

// GetOrInsertPending behaves like GetOrInsert but never blocks on the
// computation. The owner detaches compute into a background goroutine and
// immediately gets back its placeholder; requests that lose the race get
// the placeholder of the in-flight attempt; requests that find a cached
// entry get the final value. The eventual outcome is observable through
// Get once the detached computation completes.
func (c *Cache[K, PV, V]) GetOrInsertPending(ctx context.Context, key K, makePending func() PV, compute func(context.Context, PV) (V, error)) (PendingOrFinal[PV, V], error) {
	s := c.state
	if s.closed.Load() {
		return PendingOrFinal[PV, V]{}, ErrClosed
	}

	ownID := s.nextID.Add(1)
	it := s.acquire(key, ownID, makePending)

	if e := it.cached; e != nil {
		s.recordHit()
		e.touch(s.now())
		return finalOutcome[PV, V](e.val), nil
	}

	p := it.pending
	if p.id != ownID {
		s.recordHit()
		return pendingOutcome[PV, V](p.pendingValue), nil
	}

	s.recordMiss()
	// The detached attempt must outlive the caller's request scope.
	bg := context.WithoutCancel(ctx)
	go func() {
		v, err := compute(bg, p.pendingValue)
		evict := s.finish(key, ownID, v, err)
		p.publish(v, err)
		if evict {
			s.runFullEviction()
		}
	}()
	return pendingOutcome[PV, V](p.pendingValue), nil
}

// finish applies the computation outcome for the attempt owned by ownID
// and reports whether the insert overflowed the capacity, so the caller
// can run inline eviction after all per-key bookkeeping is released.
func (s *cacheState[K, PV, V]) finish(key K, ownID uint64, v V, err error) (evict bool) {
	if err != nil {
		// Failures are never cached; the next caller retries from scratch.
		s.clearPending(key, ownID)
		return false
	}
	if s.storeCached(key, v) {
		return false
	}
	size := s.size.Add(1)
	s.opt.Metrics.CacheSize(s.opt.Name, int(size))
	return s.opt.Capacity > 0 && size > int64(s.opt.Capacity) && s.opt.FullCacheEviction.enabled()
}

// TryGet is a non-blocking peek: it returns the value only if the key is
// fully cached, never waiting on an in-flight computation. A hit refreshes
// the entry's recency.
func (c *Cache[K, PV, V]) TryGet(key K) (V, bool) {
	s := c.state
	if s.closed.Load() {
		var zero V
		return zero, false
	}
	it, ok := s.lookup(key)
	if !ok || it.cached == nil {
		var zero V
		return zero, false
	}
	s.recordHit()
	it.cached.touch(s.now())
	return it.cached.val, true
}

// Get returns the cached value for key. If a computation is in flight it
// waits for the outcome; a failed computation or a cancelled ctx reads as
// a miss. Absent keys are not errors.
func (c *Cache[K, PV, V]) Get(ctx context.Context, key K) (V, bool) {
	s := c.state
	if s.closed.Load() {
		var zero V
		return zero, false
	}
	it, ok := s.lookup(key)
	if !ok {
		var zero V
		return zero, false
	}
	if e := it.cached; e != nil {
		s.recordHit()
		e.touch(s.now())
		return e.val, true
	}
	v, err := it.pending.wait(ctx)
	if err != nil {
		var zero V
		return zero, false
	}
	return v, true
}

// Iter returns a snapshot of all currently cached pairs. Entries with an
// in-flight computation are skipped. The snapshot is not transactional
// with concurrent writers.
func (c *Cache[K, PV, V]) Iter() []Pair[K, V] {
	return c.state.iterCached()
}

// Contains reports whether key has an entry, cached or still computing.
func (c *Cache[K, PV, V]) Contains(key K) bool {
	if c.state.closed.Load() {
		return false
	}
	return c.state.contains(key)
}

// Remove unconditionally deletes the entry for key, if present.
// Calling it again for the same key is a no-op.
func (c *Cache[K, PV, V]) Remove(key K) bool {
	return c.state.remove(key)
}

// WeakRemover returns a closure that removes key from the cache when
// invoked. If every handle to the cache has been dropped by then, the
// closure is a no-op. The closure holds only a weak reference, so an
// external resource (say, a temp-directory guard whose removal invalidates
// the entry) can trigger cleanup from its own teardown without keeping the
// cache alive or forming a reference cycle.
func (c *Cache[K, PV, V]) WeakRemover(key K) func() {
	w := weak.Make(c.state)
	return func() {
		if s := w.Value(); s != nil {
			s.remove(key)
		}
	}
}

// Len returns the exact number of cached entries at the moment of the
// call. In-flight computations are not counted.
func (c *Cache[K, PV, V]) Len() int {
	return c.state.lenCached()
}

// Stats is a point-in-time snapshot of the instance's hot counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions uint64
}

// Stats returns the current hit/miss/eviction counters.
func (c *Cache[K, PV, V]) Stats() Stats {
	s := c.state
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evicts.Load(),
	}
}

// Close stops the background sweeper (if any) and marks the cache closed:
// reads behave as misses and inserts return ErrClosed. In-flight
// computations still publish to their waiters. Close is idempotent.
func (c *Cache[K, PV, V]) Close() error {
	s := c.state
	s.closed.Store(true)
	if s.stop != nil {
		s.stopOnce.Do(func() { close(s.stop) })
	}
	return nil
}
