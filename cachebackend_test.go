package multipool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is an injectable time.Duration-driven nanosecond clock, the
// mechanism deterministic TTL tests drive instead of sleeping in real time.
type fakeClock struct{ nanos int64 }

func (c *fakeClock) now() int64    { return c.nanos }
func (c *fakeClock) advance(d time.Duration) { c.nanos += d.Nanoseconds() }

func TestResourceCachePutGet(t *testing.T) {
	clock := &fakeClock{}
	c := newResourceCache[string, string](buildConfig[string, string]{ticker: clock.now})

	k := newResourceKey("K1", statusIdle)
	evicted := c.put("K1", k, "resource-1")
	assert.Empty(t, evicted)

	got, ok := c.get(k)
	require.True(t, ok)
	assert.Equal(t, "resource-1", got)
	assert.Equal(t, 1, c.size())
}

func TestResourceCacheMaximumSizeEviction(t *testing.T) {
	clock := &fakeClock{}
	c := newResourceCache[string, string](buildConfig[string, string]{
		ticker:         clock.now,
		maximumSize:    2,
		maximumSizeSet: true,
	})

	k1 := newResourceKey("K1", statusIdle)
	k2 := newResourceKey("K1", statusIdle)
	k3 := newResourceKey("K1", statusIdle)
	assert.Empty(t, c.put("K1", k1, "r1"))
	assert.Empty(t, c.put("K1", k2, "r2"))

	evicted := c.put("K1", k3, "r3")
	require.Len(t, evicted, 1)
	assert.Same(t, k1, evicted[0].key, "the least recently used entry is evicted first")
	assert.Equal(t, 2, c.size())
}

func TestResourceCacheMaximumWeightEviction(t *testing.T) {
	clock := &fakeClock{}
	weigher := func(string, string) uint32 { return 5 }
	c := newResourceCache[string, string](buildConfig[string, string]{
		ticker:           clock.now,
		maximumWeight:    10,
		maximumWeightSet: true,
		weigher:          weigher,
	})

	for i := 0; i < 3; i++ {
		k := newResourceKey("K1", statusIdle)
		c.put("K1", k, "r")
	}
	// weight 5 per entry, cap 10 => at most 2 entries survive regardless of
	// how many were inserted.
	assert.Equal(t, 2, c.size())
}

func TestResourceCacheGetTouchesLRUOrder(t *testing.T) {
	clock := &fakeClock{}
	c := newResourceCache[string, string](buildConfig[string, string]{
		ticker:         clock.now,
		maximumSize:    2,
		maximumSizeSet: true,
	})
	k1 := newResourceKey("K1", statusIdle)
	k2 := newResourceKey("K1", statusIdle)
	c.put("K1", k1, "r1")
	c.put("K1", k2, "r2")

	_, ok := c.get(k1) // touch k1 so it is no longer the LRU candidate
	require.True(t, ok)

	k3 := newResourceKey("K1", statusIdle)
	evicted := c.put("K1", k3, "r3")
	require.Len(t, evicted, 1)
	assert.Same(t, k2, evicted[0].key, "k2 is now the least recently used, not k1")
}

func TestResourceCacheExpireAfterAccessSweep(t *testing.T) {
	clock := &fakeClock{}
	c := newResourceCache[string, string](buildConfig[string, string]{
		ticker:            clock.now,
		expireAfterAccess: time.Minute,
	})

	k := newResourceKey("K1", statusIdle)
	c.put("K1", k, "r1")

	clock.advance(10 * time.Minute)
	evicted := c.sweepExpired()
	require.Len(t, evicted, 1)
	assert.Same(t, k, evicted[0].key)
	assert.Equal(t, 0, c.size())
}

func TestResourceCacheSweepExpiredLeavesFreshEntries(t *testing.T) {
	clock := &fakeClock{}
	c := newResourceCache[string, string](buildConfig[string, string]{
		ticker:            clock.now,
		expireAfterAccess: time.Minute,
	})
	c.put("K1", newResourceKey("K1", statusIdle), "r1")
	clock.advance(30 * time.Second)

	evicted := c.sweepExpired()
	assert.Empty(t, evicted)
	assert.Equal(t, 1, c.size())
}

func TestResourceCacheInvalidate(t *testing.T) {
	clock := &fakeClock{}
	c := newResourceCache[string, string](buildConfig[string, string]{ticker: clock.now})
	k := newResourceKey("K1", statusIdle)
	c.put("K1", k, "r1")

	entry, ok := c.invalidate(k)
	require.True(t, ok)
	assert.Equal(t, "r1", entry.resource)
	assert.Equal(t, 0, c.size())

	_, ok = c.invalidate(k)
	assert.False(t, ok, "invalidating an already-absent key is a no-op")
}

func TestResourceCacheInvalidateAll(t *testing.T) {
	clock := &fakeClock{}
	c := newResourceCache[string, string](buildConfig[string, string]{ticker: clock.now})
	c.put("K1", newResourceKey("K1", statusIdle), "r1")
	c.put("K2", newResourceKey("K2", statusIdle), "r2")

	evicted := c.invalidateAll()
	assert.Len(t, evicted, 2)
	assert.Equal(t, 0, c.size())
}

func TestResourceCacheZeroWeigherTreatedAsOne(t *testing.T) {
	clock := &fakeClock{}
	c := newResourceCache[string, string](buildConfig[string, string]{
		ticker:           clock.now,
		maximumWeight:    2,
		maximumWeightSet: true,
		weigher:          func(string, string) uint32 { return 0 },
	})
	k1 := newResourceKey("K1", statusIdle)
	k2 := newResourceKey("K1", statusIdle)
	k3 := newResourceKey("K1", statusIdle)
	c.put("K1", k1, "r1")
	c.put("K1", k2, "r2")
	evicted := c.put("K1", k3, "r3")
	require.Len(t, evicted, 1, "a zero weight must still count as 1 toward the bound")
}
