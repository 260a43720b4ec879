package cache

// EvictReason tells a Metrics implementation which engine removed an entry.
type EvictReason int

const (
	// EvictFull marks entries removed by capacity-triggered eviction,
	// inline on a write path.
	EvictFull EvictReason = iota
	// EvictBackground marks entries removed by the periodic background sweep.
	EvictBackground
)

// String returns the stable label value attached to eviction metrics.
func (r EvictReason) String() string {
	if r == EvictBackground {
		return "background"
	}
	return "full"
}

// Metrics exposes cache-level observability hooks. Every call carries the
// instance name passed in Options, so one adapter can serve many caches.
// Calls are fire-and-forget and must never block the caller.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	// CacheCapacity is reported once at construction.
	CacheCapacity(name string, capacity int)
	// CacheSize is reported after every write, removal, or eviction pass.
	CacheSize(name string, size int)
	// CacheHit is reported when a read finds a cached value or joins an
	// in-flight computation instead of starting its own.
	CacheHit(name string)
	// CacheMiss is reported when a request becomes the owner of a new
	// computation.
	CacheMiss(name string)
	// CacheEviction is reported once per evicted entry.
	CacheEviction(name string, reason EvictReason)
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and intended as the default when
// no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) CacheCapacity(string, int)         {}
func (NoopMetrics) CacheSize(string, int)             {}
func (NoopMetrics) CacheHit(string)                   {}
func (NoopMetrics) CacheMiss(string)                  {}
func (NoopMetrics) CacheEviction(string, EvictReason) {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
