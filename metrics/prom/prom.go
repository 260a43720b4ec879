// Package prom exports cache metrics through Prometheus.
package prom

import (
	"github.com/golemcloud/golem-sub026/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges
// partitioned by the cache instance name, so a single Adapter serves any
// number of caches. Safe for concurrent use; all Prometheus metric types
// are goroutine-safe.
type Adapter struct {
	capacity *prometheus.GaugeVec
	size     *prometheus.GaugeVec
	hits     *prometheus.CounterVec
	misses   *prometheus.CounterVec
	evicts   *prometheus.CounterVec
}

// New constructs a Prometheus metrics adapter.
//   - reg:         registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:     Prometheus namespace and subsystem
//   - constLabels: static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		capacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "capacity_entries",
			Help:        "Configured cache capacity (0 = unbounded)",
			ConstLabels: constLabels,
		}, []string{"cache"}),
		size: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident cached entries",
			ConstLabels: constLabels,
		}, []string{"cache"}),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}, []string{"cache"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}, []string{"cache"}),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "evictions_total",
			Help:        "Cache evictions by trigger",
			ConstLabels: constLabels,
		}, []string{"cache", "reason"}),
	}
	reg.MustRegister(a.capacity, a.size, a.hits, a.misses, a.evicts)
	return a
}

// CacheCapacity sets the capacity gauge for the named cache.
func (a *Adapter) CacheCapacity(name string, capacity int) {
	a.capacity.WithLabelValues(name).Set(float64(capacity))
}

// CacheSize sets the resident-entries gauge for the named cache.
func (a *Adapter) CacheSize(name string, size int) {
	a.size.WithLabelValues(name).Set(float64(size))
}

// CacheHit increments the hit counter for the named cache.
func (a *Adapter) CacheHit(name string) { a.hits.WithLabelValues(name).Inc() }

// CacheMiss increments the miss counter for the named cache.
func (a *Adapter) CacheMiss(name string) { a.misses.WithLabelValues(name).Inc() }

// CacheEviction increments the eviction counter with a reason label.
func (a *Adapter) CacheEviction(name string, reason cache.EvictReason) {
	a.evicts.WithLabelValues(name, reason.String()).Inc()
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
