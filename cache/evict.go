package cache

import (
	"sort"
	"time"
	"weak"
)

// lruSample is one cached entry's key and idle time, snapshotted for the
// LRU pass. Keys must be cheap to copy; they are duplicated here.
type lruSample[K comparable] struct {
	key     K
	elapsed time.Duration
}

// runFullEviction applies the capacity-triggered mode. Callers invoke it
// only after all per-key bookkeeping for the triggering write is released.
func (s *cacheState[K, PV, V]) runFullEviction() {
	if s.opt.FullCacheEviction.enabled() {
		s.evictLeastRecentlyUsed(s.opt.FullCacheEviction.count, EvictFull)
	}
}

// sweep applies the background mode once.
func (s *cacheState[K, PV, V]) sweep() {
	switch m := s.opt.BackgroundEviction; m.kind {
	case backgroundLRU:
		s.evictLeastRecentlyUsed(m.count, EvictBackground)
	case backgroundOlderThan:
		s.evictOlderThan(m.ttl, EvictBackground)
	}
}

// evictLeastRecentlyUsed removes the n cached entries that have been idle
// the longest. Pending entries are always retained regardless of count.
// Ties fall to snapshot iteration order.
func (s *cacheState[K, PV, V]) evictLeastRecentlyUsed(n int, reason EvictReason) {
	if n <= 0 {
		return
	}
	now := s.now()
	var samples []lruSample[K]
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, it := range sh.m {
			if it.cached != nil {
				samples = append(samples, lruSample[K]{key: k, elapsed: it.cached.elapsed(now)})
			}
		}
		sh.mu.Unlock()
	}
	if len(samples) == 0 {
		return
	}

	// Most recently used first; everything past the keep prefix goes.
	sort.Slice(samples, func(i, j int) bool { return samples[i].elapsed < samples[j].elapsed })
	keepCount := len(samples) - n
	if keepCount < 0 {
		keepCount = 0
	}
	keep := make(map[K]struct{}, keepCount)
	for _, smp := range samples[:keepCount] {
		keep[smp.key] = struct{}{}
	}

	s.retainCached(func(k K, _ *cachedEntry[V]) bool {
		_, ok := keep[k]
		return ok
	}, reason)
}

// evictOlderThan removes every cached entry that has not been accessed for
// at least ttl. Pending entries are always retained.
func (s *cacheState[K, PV, V]) evictOlderThan(ttl time.Duration, reason EvictReason) {
	now := s.now()
	s.retainCached(func(_ K, e *cachedEntry[V]) bool {
		return e.elapsed(now) < ttl
	}, reason)
}

// retainCached drops cached entries rejected by keep, then resynchronizes
// and reports the size counter. One eviction event is reported per entry.
func (s *cacheState[K, PV, V]) retainCached(keep func(K, *cachedEntry[V]) bool, reason EvictReason) {
	evicted := 0
	remaining := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, it := range sh.m {
			if it.cached == nil {
				continue
			}
			if keep(k, it.cached) {
				remaining++
				continue
			}
			delete(sh.m, k)
			evicted++
		}
		sh.mu.Unlock()
	}
	if evicted == 0 {
		return
	}

	s.evicts.Add(uint64(evicted))
	for i := 0; i < evicted; i++ {
		s.opt.Metrics.CacheEviction(s.opt.Name, reason)
	}
	// The counter is a heuristic: concurrent writers may land between the
	// shard passes above, so store the observed count rather than adjusting.
	s.size.Store(int64(remaining))
	s.opt.Metrics.CacheSize(s.opt.Name, remaining)
}

// runSweeper periodically applies the background eviction mode. It holds
// only a weak reference to the engine state: once every handle is gone the
// GC may collect the cache, and the sweeper exits on its next tick. An
// abandoned cache therefore neither pins its memory nor leaks this
// goroutine. Close stops it promptly via the stop channel.
func runSweeper[K comparable, PV, V any](w weak.Pointer[cacheState[K, PV, V]], period time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s := w.Value()
			if s == nil || s.closed.Load() {
				return
			}
			s.sweep()
		}
	}
}
