package multipool

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// hookCounters tallies lifecycle hook invocations so scenario tests can
// assert exact onCreate/onBorrow/onRelease/onRemoval counts.
type hookCounters struct {
	creates, borrows, releases, removals int64
}

func (c *hookCounters) lifecycle() Lifecycle[string, string] {
	return Lifecycle[string, string]{
		OnCreate:  func(string, string) { atomic.AddInt64(&c.creates, 1) },
		OnBorrow:  func(string, string) { atomic.AddInt64(&c.borrows, 1) },
		OnRelease: func(string, string) { atomic.AddInt64(&c.releases, 1) },
		OnRemoval: func(string, string) { atomic.AddInt64(&c.removals, 1) },
	}
}

func newCountingPool(t *testing.T, counters *hookCounters, opts ...Option[string, string]) *Pool[string, string] {
	t.Helper()
	loader := func(_ context.Context, category string) (string, error) { return category, nil }
	allOpts := append([]Option[string, string]{WithLifecycle[string, string](counters.lifecycle())}, opts...)
	p, err := New[string, string](loader, allOpts...)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

// Scenario 1: Reuse.
func TestScenarioReuse(t *testing.T) {
	counters := &hookCounters{}
	p := newCountingPool(t, counters)
	ctx := context.Background()

	h1, err := p.Borrow(ctx, "K1")
	require.NoError(t, err)
	v1, _ := h1.Get()
	require.NoError(t, h1.Release())

	h2, err := p.Borrow(ctx, "K1")
	require.NoError(t, err)
	v2, _ := h2.Get()
	require.NoError(t, h2.Release())

	assert.Equal(t, v1, v2, "both borrows must return the same resource identity")
	assert.EqualValues(t, 1, atomic.LoadInt64(&counters.creates))
	assert.EqualValues(t, 2, atomic.LoadInt64(&counters.borrows))
	assert.EqualValues(t, 2, atomic.LoadInt64(&counters.releases))
	assert.EqualValues(t, 0, atomic.LoadInt64(&counters.removals))
}

// Scenario 2: Immediate eviction (maximumSize=0).
func TestScenarioImmediateEviction(t *testing.T) {
	counters := &hookCounters{}
	p := newCountingPool(t, counters, WithMaximumSize[string, string](0))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		h, err := p.Borrow(ctx, "K1")
		require.NoError(t, err)
		require.NoError(t, h.Release())
	}

	assert.EqualValues(t, 2, atomic.LoadInt64(&counters.removals))
	assert.Equal(t, 0, p.Size())
}

// Scenario 3: Evict while in-flight.
func TestScenarioEvictWhileInFlight(t *testing.T) {
	counters := &hookCounters{}
	p := newCountingPool(t, counters)
	ctx := context.Background()

	h, err := p.Borrow(ctx, "K1")
	require.NoError(t, err)

	p.InvalidateAll()
	assert.Equal(t, 0, p.Size())
	assert.EqualValues(t, 0, atomic.LoadInt64(&counters.releases))
	assert.EqualValues(t, 0, atomic.LoadInt64(&counters.removals))

	require.NoError(t, h.Release())
	assert.EqualValues(t, 1, atomic.LoadInt64(&counters.releases))
	assert.EqualValues(t, 1, atomic.LoadInt64(&counters.removals))
}

// Scenario 4: Weighted cap.
func TestScenarioWeightedCap(t *testing.T) {
	counters := &hookCounters{}
	weigher := func(string, string) uint32 { return 5 }
	p := newCountingPool(t, counters, WithMaximumWeight[string, string](10, weigher))
	ctx := context.Background()

	const n = 100
	handles := make([]*Handle[string, string], n)
	for i := 0; i < n; i++ {
		h, err := p.Borrow(ctx, "K1")
		require.NoError(t, err)
		handles[i] = h
	}
	for _, h := range handles {
		require.NoError(t, h.Release())
	}

	assert.Equal(t, 2, p.Size())
	assert.EqualValues(t, 98, atomic.LoadInt64(&counters.removals))
}

// Scenario 5: TTL expiry, driven by an injected ticker instead of a real
// sleep.
func TestScenarioTTLExpiry(t *testing.T) {
	counters := &hookCounters{}
	clock := &fakeClock{}
	p := newCountingPool(t, counters,
		WithExpireAfterAccess[string, string](time.Minute),
		WithTicker[string, string](clock.now),
	)
	ctx := context.Background()

	const n = 100
	for i := 0; i < n; i++ {
		category := strconv.Itoa(i)
		h, err := p.Borrow(ctx, category)
		require.NoError(t, err)
		require.NoError(t, h.Release())
	}
	require.Equal(t, n, p.Size())

	clock.advance(10 * time.Minute)
	p.CleanUp()

	assert.Equal(t, 0, p.Size())
	assert.EqualValues(t, n, atomic.LoadInt64(&counters.removals))
}

// Scenario 6: Handoff beats delay.
func TestScenarioHandoffBeatsDelay(t *testing.T) {
	counters := &hookCounters{}
	p := newCountingPool(t, counters)
	ctx := context.Background()

	h, err := p.Borrow(ctx, "K1")
	require.NoError(t, err)
	require.NoError(t, h.ReleaseAfter(time.Minute))

	start := time.Now()
	waiter, err := p.Borrow(ctx, "K1")
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "a waiting borrow must complete in O(handoff latency), not O(delay)")
	v, _ := waiter.Get()
	assert.Equal(t, "K1", v)
	require.NoError(t, waiter.Release())
}

// Scenario 7: Concurrent storm.
func TestScenarioConcurrentStorm(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("time.Sleep"),
	)

	counters := &hookCounters{}
	p := newCountingPool(t, counters, WithMaximumSize[string, string](8))
	ctx := context.Background()

	const goroutines = 16
	const iterations = 200
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			category := strconv.Itoa(g % 4)
			for i := 0; i < iterations; i++ {
				h, err := p.Borrow(ctx, category)
				if err != nil {
					continue
				}
				runtime.Gosched()
				_ = h.Release()
			}
		}(g)
	}
	wg.Wait()
	p.Close()

	assert.Equal(t, atomic.LoadInt64(&counters.borrows), atomic.LoadInt64(&counters.releases))
	assert.LessOrEqual(t, p.Size(), 8)
}
