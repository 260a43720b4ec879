package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/golemcloud/golem-sub026/internal/util"
)

// shard is one partition of the key space with its own lock and map.
// The lock is only ever held for a handful of map operations; computations
// and channel waits always happen outside it, so a slow load for one key
// never serializes unrelated traffic on the same shard.
type shard[K comparable, PV, V any] struct {
	mu sync.Mutex
	m  map[K]item[PV, V]
}

// cacheState is the engine state shared by every handle of one cache
// instance. Handles, weak removers and the background sweeper all funnel
// into it.
type cacheState[K comparable, PV, V any] struct {
	shards []*shard[K, PV, V]
	hash   func(K) uint64
	opt    Options

	closed   atomic.Bool
	stop     chan struct{} // nil when no background sweeper was started
	stopOnce sync.Once

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	nextID util.PaddedAtomicUint64 // ticket source; decides ownership races
	size   util.PaddedAtomicInt64  // approximate number of cached entries
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

func (s *cacheState[K, PV, V]) now() int64 {
	if s.opt.Clock != nil {
		return s.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

func (s *cacheState[K, PV, V]) shardFor(k K) *shard[K, PV, V] {
	return s.shards[util.ShardIndex(s.hash(k), len(s.shards))]
}

// acquire returns the item stored for key, inserting a fresh pending item
// owned by ownID when the key is absent. The request that performed the
// insertion recognizes itself afterwards by comparing the stored ticket
// with its own. makePending runs under the shard lock and must be cheap.
func (s *cacheState[K, PV, V]) acquire(key K, ownID uint64, makePending func() PV) item[PV, V] {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if it, ok := sh.m[key]; ok {
		return it
	}
	it := item[PV, V]{pending: &pendingItem[PV, V]{
		id:           ownID,
		pendingValue: makePending(),
		done:         make(chan struct{}),
	}}
	sh.m[key] = it
	return it
}

func (s *cacheState[K, PV, V]) lookup(key K) (item[PV, V], bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	it, ok := sh.m[key]
	sh.mu.Unlock()
	return it, ok
}

// storeCached upserts the computed value for key and reports whether it
// replaced an already cached entry (the size counter must not grow then).
func (s *cacheState[K, PV, V]) storeCached(key K, v V) (replaced bool) {
	e := newCachedEntry(v, s.now())
	sh := s.shardFor(key)
	sh.mu.Lock()
	prev, ok := sh.m[key]
	sh.m[key] = item[PV, V]{cached: e}
	sh.mu.Unlock()
	return ok && prev.cached != nil
}

// clearPending deletes the entry only while it still holds the failed
// attempt owned by ownID. Remove may already have made way for a newer
// attempt; that one must not be clobbered.
func (s *cacheState[K, PV, V]) clearPending(key K, ownID uint64) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	if it, ok := sh.m[key]; ok && it.pending != nil && it.pending.id == ownID {
		delete(sh.m, key)
	}
	sh.mu.Unlock()
}

// remove unconditionally deletes the entry for key, pending or cached.
// Reports whether it existed; size bookkeeping changes only for cached
// entries. Safe to call repeatedly.
func (s *cacheState[K, PV, V]) remove(key K) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	it, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
	}
	sh.mu.Unlock()

	if ok && it.cached != nil {
		size := s.size.Add(-1)
		s.opt.Metrics.CacheSize(s.opt.Name, int(size))
	}
	return ok
}

func (s *cacheState[K, PV, V]) contains(key K) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	_, ok := sh.m[key]
	sh.mu.Unlock()
	return ok
}

// iterCached snapshots all currently cached pairs. Pending entries are
// skipped. The snapshot is not transactional with concurrent writers.
func (s *cacheState[K, PV, V]) iterCached() []Pair[K, V] {
	var out []Pair[K, V]
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, it := range sh.m {
			if it.cached != nil {
				out = append(out, Pair[K, V]{Key: k, Value: it.cached.val})
			}
		}
		sh.mu.Unlock()
	}
	return out
}

// lenCached counts currently cached entries. Unlike the size counter this
// walks the shards and is exact at the moment of the walk.
func (s *cacheState[K, PV, V]) lenCached() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, it := range sh.m {
			if it.cached != nil {
				total++
			}
		}
		sh.mu.Unlock()
	}
	return total
}

func (s *cacheState[K, PV, V]) recordHit() {
	s.hits.Add(1)
	s.opt.Metrics.CacheHit(s.opt.Name)
}

func (s *cacheState[K, PV, V]) recordMiss() {
	s.misses.Add(1)
	s.opt.Metrics.CacheMiss(s.opt.Name)
}
