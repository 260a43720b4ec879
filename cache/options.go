package cache

import (
	"fmt"
	"time"
)

// FullCacheEvictionMode decides what happens inline when an insert overflows
// a full cache. The zero value disables inline eviction.
type FullCacheEvictionMode struct {
	count int
}

// NoFullCacheEviction disables capacity-triggered eviction. Combined with
// Capacity > 0 the live count simply grows past the limit; use this only
// when a background mode keeps the cache trimmed.
func NoFullCacheEviction() FullCacheEvictionMode { return FullCacheEvictionMode{} }

// FullCacheLeastRecentlyUsed evicts the count least-recently-used cached
// entries whenever an insert overflows the configured capacity.
// count must be >= 1.
func FullCacheLeastRecentlyUsed(count int) FullCacheEvictionMode {
	if count < 1 {
		panic(fmt.Sprintf("cache: FullCacheLeastRecentlyUsed count must be >= 1, got %d", count))
	}
	return FullCacheEvictionMode{count: count}
}

func (m FullCacheEvictionMode) enabled() bool { return m.count > 0 }

type backgroundKind uint8

const (
	backgroundNone backgroundKind = iota
	backgroundLRU
	backgroundOlderThan
)

// BackgroundEvictionMode configures the periodic sweep performed by a
// detached goroutine for the lifetime of the cache. The zero value disables
// the sweeper entirely (no goroutine is started).
type BackgroundEvictionMode struct {
	kind   backgroundKind
	count  int
	ttl    time.Duration
	period time.Duration
}

// NoBackgroundEviction disables the periodic sweeper.
func NoBackgroundEviction() BackgroundEvictionMode { return BackgroundEvictionMode{} }

// BackgroundLeastRecentlyUsed evicts the count least-recently-used cached
// entries on every sweep. count must be >= 1 and period > 0.
func BackgroundLeastRecentlyUsed(count int, period time.Duration) BackgroundEvictionMode {
	if count < 1 {
		panic(fmt.Sprintf("cache: BackgroundLeastRecentlyUsed count must be >= 1, got %d", count))
	}
	if period <= 0 {
		panic("cache: BackgroundLeastRecentlyUsed period must be > 0")
	}
	return BackgroundEvictionMode{kind: backgroundLRU, count: count, period: period}
}

// BackgroundOlderThan evicts, on every sweep, every cached entry that has
// not been accessed for at least ttl. period must be > 0.
func BackgroundOlderThan(ttl, period time.Duration) BackgroundEvictionMode {
	if period <= 0 {
		panic("cache: BackgroundOlderThan period must be > 0")
	}
	return BackgroundEvictionMode{kind: backgroundOlderThan, ttl: ttl, period: period}
}

func (m BackgroundEvictionMode) enabled() bool { return m.kind != backgroundNone }

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures a cache instance. Zero values are safe;
// sane defaults are applied in New():
//   - Capacity 0  -> unbounded
//   - nil Metrics -> NoopMetrics
//   - Shards <= 0 -> auto, rounded up to the next power of two
type Options struct {
	// Capacity is the cached-entry count limit. When a successful insert
	// overflows it, the FullCacheEviction mode runs inline. Zero means
	// unbounded. Pending computations never count toward capacity.
	Capacity int

	// FullCacheEviction is evaluated synchronously after an insert
	// overflows Capacity. Default: disabled.
	FullCacheEviction FullCacheEvictionMode

	// BackgroundEviction is evaluated by a detached periodic goroutine.
	// Default: disabled (no goroutine is started).
	BackgroundEviction BackgroundEvictionMode

	// Name labels every Metrics call made by this instance.
	Name string

	// Metrics receives capacity/size/hit/miss/eviction signals.
	// Nil => NoopMetrics.
	Metrics Metrics

	// Shards defines the number of map shards. If <= 0, an automatic value
	// is chosen (≈ 2*GOMAXPROCS) and rounded to the next power of two.
	Shards int

	// Clock allows overriding the time source (tests). Nil => time.Now().
	Clock Clock
}
