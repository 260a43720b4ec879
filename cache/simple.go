package cache

import "context"

// SimpleCache fixes the placeholder type PV to struct{} for the common
// case where callers only care about the final value. It is a thin wrapper
// over the general engine; every other method is promoted unchanged.
type SimpleCache[K comparable, V any] struct {
	*Cache[K, struct{}, V]
}

// NewSimple constructs a SimpleCache with the provided Options.
func NewSimple[K comparable, V any](opt Options) SimpleCache[K, V] {
	return SimpleCache[K, V]{Cache: New[K, struct{}, V](opt)}
}

// GetOrInsert returns the cached value for key, computing it with at most
// one compute call in flight per key. See Cache.GetOrInsert.
func (c SimpleCache[K, V]) GetOrInsert(ctx context.Context, key K, compute func(context.Context) (V, error)) (V, error) {
	return c.Cache.GetOrInsert(ctx, key,
		func() struct{} { return struct{}{} },
		func(ctx context.Context, _ struct{}) (V, error) { return compute(ctx) },
	)
}
