// Package otelmetric exports cache metrics through OpenTelemetry.
package otelmetric

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/golemcloud/golem-sub026/cache"
)

const scopeName = "github.com/golemcloud/golem-sub026/metrics/otelmetric"

// Adapter implements cache.Metrics on top of an OpenTelemetry meter.
// Every instrument carries a "cache" attribute with the instance name.
type Adapter struct {
	capacity metric.Int64Gauge
	size     metric.Int64Gauge
	hits     metric.Int64Counter
	misses   metric.Int64Counter
	evicts   metric.Int64Counter
}

// New builds the instrument set on meter. A nil meter falls back to the
// globally registered meter provider.
func New(meter metric.Meter) (*Adapter, error) {
	if meter == nil {
		meter = otel.Meter(scopeName)
	}

	capacity, err := meter.Int64Gauge(
		"cache/capacity_entries",
		metric.WithDescription("Configured cache capacity (0 = unbounded)"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache capacity metric: %w", err)
	}

	size, err := meter.Int64Gauge(
		"cache/size_entries",
		metric.WithDescription("Number of resident cached entries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache size metric: %w", err)
	}

	hits, err := meter.Int64Counter(
		"cache/hits_total",
		metric.WithDescription("Cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hit metric: %w", err)
	}

	misses, err := meter.Int64Counter(
		"cache/misses_total",
		metric.WithDescription("Cache misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache miss metric: %w", err)
	}

	evicts, err := meter.Int64Counter(
		"cache/evictions_total",
		metric.WithDescription("Cache evictions by trigger"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache eviction metric: %w", err)
	}

	return &Adapter{
		capacity: capacity,
		size:     size,
		hits:     hits,
		misses:   misses,
		evicts:   evicts,
	}, nil
}

// CacheCapacity records the configured capacity for the named cache.
func (a *Adapter) CacheCapacity(name string, capacity int) {
	a.capacity.Record(context.Background(), int64(capacity), byCache(name))
}

// CacheSize records the resident entry count for the named cache.
func (a *Adapter) CacheSize(name string, size int) {
	a.size.Record(context.Background(), int64(size), byCache(name))
}

// CacheHit counts a hit for the named cache.
func (a *Adapter) CacheHit(name string) {
	a.hits.Add(context.Background(), 1, byCache(name))
}

// CacheMiss counts a miss for the named cache.
func (a *Adapter) CacheMiss(name string) {
	a.misses.Add(context.Background(), 1, byCache(name))
}

// CacheEviction counts one evicted entry for the named cache.
func (a *Adapter) CacheEviction(name string, reason cache.EvictReason) {
	a.evicts.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("cache", name),
		attribute.String("reason", reason.String()),
	))
}

func byCache(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("cache", name))
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
