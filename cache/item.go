package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// pendingItem is the in-flight half of the per-key state. Exactly one
// request, the one whose ticket equals id, owns it and runs the
// computation; everyone else waits on done.
//
// Concurrency notes:
//   - val/err are written once by the owner and published by close(done);
//     the write happens-before any read that observed the closed channel.
//   - A closed channel stays observable forever, so a waiter that arrives
//     after the owner finished still reads the final result instead of
//     hanging on a missed broadcast.
type pendingItem[PV, V any] struct {
	id           uint64
	pendingValue PV

	done chan struct{} // closed when val/err are published
	val  V
	err  error
}

// publish stores the computation outcome and wakes every waiter.
// Must be called exactly once per ownership cycle.
func (p *pendingItem[PV, V]) publish(v V, err error) {
	p.val, p.err = v, err
	close(p.done)
}

// wait blocks until the owner publishes, or ctx is cancelled.
// Cancellation unblocks only this waiter; the owner keeps computing.
func (p *pendingItem[PV, V]) wait(ctx context.Context) (V, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// cachedEntry is the resolved half of the per-key state. val is immutable;
// last is refreshed atomically on every hit so readers never need the
// shard lock to record recency.
type cachedEntry[V any] struct {
	val  V
	last atomic.Int64 // UnixNano of the most recent access
}

func newCachedEntry[V any](v V, now int64) *cachedEntry[V] {
	e := &cachedEntry[V]{val: v}
	e.last.Store(now)
	return e
}

func (e *cachedEntry[V]) touch(now int64) { e.last.Store(now) }

// elapsed returns the time since the last access, clamped at zero.
func (e *cachedEntry[V]) elapsed(now int64) time.Duration {
	d := now - e.last.Load()
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// item is the tagged per-key state: exactly one of pending/cached is
// non-nil. It is stored by value in the shard map, so the snapshot a
// request obtains under the shard lock stays valid after unlock.
type item[PV, V any] struct {
	pending *pendingItem[PV, V]
	cached  *cachedEntry[V]
}

// PendingOrFinal is the outcome of GetOrInsertPending: either the
// placeholder value of a computation that is still running, or the final
// cached value.
type PendingOrFinal[PV, V any] struct {
	pv    PV
	v     V
	final bool
}

func pendingOutcome[PV, V any](pv PV) PendingOrFinal[PV, V] {
	return PendingOrFinal[PV, V]{pv: pv}
}

func finalOutcome[PV, V any](v V) PendingOrFinal[PV, V] {
	return PendingOrFinal[PV, V]{v: v, final: true}
}

// Pending returns the placeholder value, and whether the computation was
// still in flight when the call returned.
func (r PendingOrFinal[PV, V]) Pending() (PV, bool) { return r.pv, !r.final }

// Final returns the cached value, and whether it was already available.
func (r PendingOrFinal[PV, V]) Final() (V, bool) { return r.v, r.final }

// Pair is one cached key/value snapshot returned by Iter.
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}
