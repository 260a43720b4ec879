package cache

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t += int64(d) }

// Ten concurrent requests for the same key must run the computation
// exactly once and all observe its result.
func TestCache_SingleFlight(t *testing.T) {
	t.Parallel()

	c := NewSimple[string, int](Options{Name: "sf"})
	t.Cleanup(func() { _ = c.Close() })

	var calls int64
	compute := func(context.Context) (int, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(5 * time.Millisecond) // simulate I/O
		return 42, nil
	}

	const N = 10
	var g errgroup.Group
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < N; i++ {
		g.Go(func() error {
			v, err := c.GetOrInsert(ctx, "k1", compute)
			if err != nil {
				return err
			}
			if v != 42 {
				return fmt.Errorf("got %d, want 42", v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("compute must run exactly once, ran %d times", got)
	}
	if st := c.Stats(); st.Misses != 1 || st.Hits != N-1 {
		t.Fatalf("want 1 miss and %d hits, got %+v", N-1, st)
	}
}

// A failed computation must not be cached: the entry disappears and the
// next (sequential) request starts a fresh attempt.
func TestCache_FailureNotCached(t *testing.T) {
	t.Parallel()

	c := NewSimple[string, int](Options{Name: "fail"})
	t.Cleanup(func() { _ = c.Close() })

	boom := errors.New("boom")
	var calls int
	compute := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 7, nil
	}

	ctx := context.Background()
	if _, err := c.GetOrInsert(ctx, "k", compute); !errors.Is(err, boom) {
		t.Fatalf("first call: want boom, got %v", err)
	}
	if c.Contains("k") {
		t.Fatal("failed entry must be removed")
	}
	if v, err := c.GetOrInsert(ctx, "k", compute); err != nil || v != 7 {
		t.Fatalf("second call: want 7, got %d err=%v", v, err)
	}
	if calls != 2 {
		t.Fatalf("compute must run again after a failure, ran %d times", calls)
	}
}

// A computation failure is broadcast to every request that joined the
// in-flight attempt; the computation still runs only once.
func TestCache_FailureBroadcastToWaiters(t *testing.T) {
	t.Parallel()

	c := NewSimple[string, int](Options{Name: "failcast"})
	t.Cleanup(func() { _ = c.Close() })

	boom := errors.New("boom")
	release := make(chan struct{})
	var calls int64
	compute := func(context.Context) (int, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return 0, boom
	}

	ctx := context.Background()
	ownerErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrInsert(ctx, "k", compute)
		ownerErr <- err
	}()

	// Wait for the pending entry so every waiter below joins the same attempt.
	for !c.Contains("k") {
		time.Sleep(time.Millisecond)
	}

	const N = 5
	var joined int64
	var g errgroup.Group
	for i := 0; i < N; i++ {
		g.Go(func() error {
			atomic.AddInt64(&joined, 1)
			if _, err := c.GetOrInsert(ctx, "k", compute); !errors.Is(err, boom) {
				return fmt.Errorf("waiter: want boom, got %v", err)
			}
			return nil
		})
	}

	for atomic.LoadInt64(&joined) < N {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond) // let every waiter reach the in-flight entry
	close(release)

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if err := <-ownerErr; !errors.Is(err, boom) {
		t.Fatalf("owner: want boom, got %v", err)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("compute must run exactly once, ran %d times", got)
	}
}

// Deterministic capacity-triggered LRU eviction with a fake clock:
// overflowing a full cache evicts exactly the least recently used entry.
func TestCache_FullCacheEvictionLRU(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := NewSimple[string, int](Options{
		Capacity:          2,
		FullCacheEviction: FullCacheLeastRecentlyUsed(1),
		Name:              "lru",
		Clock:             clk,
	})
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	put := func(k string, v int) {
		t.Helper()
		if _, err := c.GetOrInsert(ctx, k, func(context.Context) (int, error) { return v, nil }); err != nil {
			t.Fatal(err)
		}
	}

	put("a", 1)
	clk.add(10 * time.Millisecond)
	put("b", 2)
	clk.add(10 * time.Millisecond)
	if _, ok := c.TryGet("a"); !ok { // a is now more recently used than b
		t.Fatal("expect hit for a")
	}
	clk.add(10 * time.Millisecond)
	put("c", 3) // overflow -> evict LRU (b)

	if got := c.Len(); got != 2 {
		t.Fatalf("want 2 cached entries, got %d", got)
	}
	if c.Contains("b") {
		t.Fatal("b must be evicted")
	}
	if !c.Contains("a") || !c.Contains("c") {
		t.Fatal("a and c must survive")
	}
	if st := c.Stats(); st.Evictions != 1 {
		t.Fatalf("want 1 eviction, got %d", st.Evictions)
	}
}

// The background sweeper drops entries idle longer than the TTL.
func TestCache_BackgroundOlderThan(t *testing.T) {
	t.Parallel()

	c := NewSimple[string, int](Options{
		BackgroundEviction: BackgroundOlderThan(50*time.Millisecond, 10*time.Millisecond),
		Name:               "ttl",
	})
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	if _, err := c.GetOrInsert(ctx, "x", func(context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Contains("x") {
		if time.Now().After(deadline) {
			t.Fatal("x must be evicted by the background sweep")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// The background LRU sweep trims the configured number of entries per pass.
func TestCache_BackgroundLRU(t *testing.T) {
	t.Parallel()

	c := NewSimple[int, int](Options{
		BackgroundEviction: BackgroundLeastRecentlyUsed(2, 10*time.Millisecond),
		Name:               "bg-lru",
	})
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := c.GetOrInsert(ctx, i, func(context.Context) (int, error) { return i, nil }); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper must eventually trim all entries, %d left", c.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// GetOrInsertPending returns the placeholder immediately; the final value
// becomes observable through Get once the detached computation completes.
func TestCache_PendingVisibility(t *testing.T) {
	t.Parallel()

	c := New[string, string, string](Options{Name: "pending"})
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	release := make(chan struct{})

	out, err := c.GetOrInsertPending(ctx, "k",
		func() string { return "placeholder" },
		func(context.Context, string) (string, error) {
			<-release
			return "final", nil
		})
	if err != nil {
		t.Fatal(err)
	}
	pv, pending := out.Pending()
	if !pending || pv != "placeholder" {
		t.Fatalf("want pending placeholder, got %+v", out)
	}

	// A racer must see the existing placeholder, not its own.
	out2, err := c.GetOrInsertPending(ctx, "k",
		func() string { return "other" },
		func(context.Context, string) (string, error) { return "", errors.New("must not run") })
	if err != nil {
		t.Fatal(err)
	}
	if pv2, pending2 := out2.Pending(); !pending2 || pv2 != "placeholder" {
		t.Fatalf("racer must observe the in-flight placeholder, got %+v", out2)
	}

	close(release)
	if v, ok := c.Get(ctx, "k"); !ok || v != "final" {
		t.Fatalf("want final value, got %q ok=%v", v, ok)
	}

	// A fresh read now resolves without pending.
	out3, err := c.GetOrInsertPending(ctx, "k",
		func() string { return "unused" },
		func(context.Context, string) (string, error) { return "", errors.New("must not run") })
	if err != nil {
		t.Fatal(err)
	}
	if v, final := out3.Final(); !final || v != "final" {
		t.Fatalf("want final outcome, got %+v", out3)
	}
}

// A waiter that checks in after the owner already published must still
// observe the result instead of hanging on a missed broadcast.
func TestCache_LateWaiterSeesPublishedResult(t *testing.T) {
	t.Parallel()

	p := &pendingItem[struct{}, int]{done: make(chan struct{})}
	p.publish(9, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if v, err := p.wait(ctx); err != nil || v != 9 {
		t.Fatalf("late wait: want 9, got %d err=%v", v, err)
	}
}

// TryGet never waits on an in-flight computation.
func TestCache_TryGetSkipsPending(t *testing.T) {
	t.Parallel()

	c := NewSimple[string, int](Options{Name: "tryget"})
	t.Cleanup(func() { _ = c.Close() })

	release := make(chan struct{})
	go func() {
		_, _ = c.GetOrInsert(context.Background(), "k", func(context.Context) (int, error) {
			<-release
			return 1, nil
		})
	}()
	for !c.Contains("k") {
		time.Sleep(time.Millisecond)
	}

	if _, ok := c.TryGet("k"); ok {
		t.Fatal("TryGet must not report an in-flight entry")
	}
	close(release)
}

// Iter snapshots cached pairs only; entries still computing are skipped.
func TestCache_IterSkipsPending(t *testing.T) {
	t.Parallel()

	c := NewSimple[string, int](Options{Name: "iter"})
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	if _, err := c.GetOrInsert(ctx, "done", func(context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	go func() {
		_, _ = c.GetOrInsert(ctx, "inflight", func(context.Context) (int, error) {
			<-release
			return 2, nil
		})
	}()
	for !c.Contains("inflight") {
		time.Sleep(time.Millisecond)
	}

	pairs := c.Iter()
	if len(pairs) != 1 || pairs[0].Key != "done" || pairs[0].Value != 1 {
		t.Fatalf("want only the cached pair, got %v", pairs)
	}
	close(release)
}

// Remove is idempotent and unconditional.
func TestCache_RemoveIdempotent(t *testing.T) {
	t.Parallel()

	c := NewSimple[string, int](Options{Name: "remove"})
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	if _, err := c.GetOrInsert(ctx, "k", func(context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatal(err)
	}

	if !c.Remove("k") {
		t.Fatal("first Remove must report the entry existed")
	}
	if c.Remove("k") {
		t.Fatal("second Remove must be a no-op")
	}
	if c.Contains("k") {
		t.Fatal("k must be absent after Remove")
	}
}

// A weak remover deletes the entry while the cache is alive.
func TestCache_WeakRemoverLiveCache(t *testing.T) {
	t.Parallel()

	c := NewSimple[string, int](Options{Name: "weak-live"})
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	if _, err := c.GetOrInsert(ctx, "y", func(context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatal(err)
	}

	remove := c.WeakRemover("y")
	remove()
	if c.Contains("y") {
		t.Fatal("y must be removed")
	}
	remove() // second invocation is a harmless no-op
}

// A weak remover must not keep the cache alive: once every handle is
// dropped and the state is collected, invoking it is a no-op.
func TestCache_WeakRemoverAfterRelease(t *testing.T) {
	c := NewSimple[string, int](Options{Name: "weak-gone"})
	if _, err := c.GetOrInsert(context.Background(), "y", func(context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatal(err)
	}
	remove := c.WeakRemover("y")

	c = SimpleCache[string, int]{} // drop the only strong handle
	for i := 0; i < 4; i++ {
		runtime.GC()
	}

	remove() // must not panic regardless of whether the state was collected
}

// After Close, inserts fail fast and reads behave as misses.
func TestCache_Closed(t *testing.T) {
	t.Parallel()

	c := NewSimple[string, int](Options{Name: "closed"})
	ctx := context.Background()
	if _, err := c.GetOrInsert(ctx, "k", func(context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatal(err)
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil { // idempotent
		t.Fatal(err)
	}

	if _, err := c.GetOrInsert(ctx, "k2", func(context.Context) (int, error) { return 2, nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
	if _, ok := c.TryGet("k"); ok {
		t.Fatal("reads on a closed cache behave as misses")
	}
	if c.Contains("k") {
		t.Fatal("Contains on a closed cache is false")
	}
}

// Absent keys are not errors on any read path.
func TestCache_MissingKey(t *testing.T) {
	t.Parallel()

	c := NewSimple[string, int](Options{Name: "missing"})
	t.Cleanup(func() { _ = c.Close() })

	if _, ok := c.TryGet("nope"); ok {
		t.Fatal("TryGet on a missing key must miss")
	}
	if _, ok := c.Get(context.Background(), "nope"); ok {
		t.Fatal("Get on a missing key must miss")
	}
	if c.Contains("nope") {
		t.Fatal("Contains on a missing key must be false")
	}
}

// recordingMetrics captures every collaborator call for assertions.
type recordingMetrics struct {
	capacity  atomic.Int64
	size      atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

func (m *recordingMetrics) CacheCapacity(_ string, c int)     { m.capacity.Store(int64(c)) }
func (m *recordingMetrics) CacheSize(_ string, s int)         { m.size.Store(int64(s)) }
func (m *recordingMetrics) CacheHit(string)                   { m.hits.Add(1) }
func (m *recordingMetrics) CacheMiss(string)                  { m.misses.Add(1) }
func (m *recordingMetrics) CacheEviction(string, EvictReason) { m.evictions.Add(1) }

var _ Metrics = (*recordingMetrics)(nil)

// The metrics collaborator is fired at construction and on every
// hit/miss/size transition.
func TestCache_MetricsReporting(t *testing.T) {
	t.Parallel()

	m := &recordingMetrics{}
	c := NewSimple[string, int](Options{Capacity: 8, Metrics: m, Name: "metrics"})
	t.Cleanup(func() { _ = c.Close() })

	if m.capacity.Load() != 8 || m.size.Load() != 0 {
		t.Fatalf("construction must report capacity and zero size, got cap=%d size=%d",
			m.capacity.Load(), m.size.Load())
	}

	ctx := context.Background()
	if _, err := c.GetOrInsert(ctx, "k", func(context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetOrInsert(ctx, "k", func(context.Context) (int, error) { return 0, errors.New("must not run") }); err != nil {
		t.Fatal(err)
	}

	if m.misses.Load() != 1 || m.hits.Load() != 1 {
		t.Fatalf("want 1 miss and 1 hit, got misses=%d hits=%d", m.misses.Load(), m.hits.Load())
	}
	if m.size.Load() != 1 {
		t.Fatalf("want reported size 1, got %d", m.size.Load())
	}

	c.Remove("k")
	if m.size.Load() != 0 {
		t.Fatalf("Remove must report the shrunken size, got %d", m.size.Load())
	}
}
