package multipool

import (
	"container/list"
	"sync"
	"time"
)

// removalCause labels why the cache dropped an entry. removeElementLocked
// ignores it, and the removal listener receives a fixed cause per call path
// (causeSize from put and InvalidateAll via processEvicted,
// causeExpiredAccess from CleanUp and the janitor), which it also ignores.
type removalCause int

const (
	causeExplicit removalCause = iota
	causeSize
	causeExpiredAccess
	causeExpiredWrite
)

// resourceCache is the weighted/expiring cache mapping resourceKey -> R,
// the kind of role Caffeine or Guava's evicting cache plays in other
// ecosystems. dgraph-io/ristretto was evaluated and rejected for this
// role: its TTL sweep and eviction pipeline run on its own internal
// buckets/ticker and are processed asynchronously off a channel, which
// cannot support an injectable time source or a cleanUp() that
// synchronously drains pending eviction work for deterministic tests. So
// resourceCache is a from-scratch cache: a map+container/list LRU
// pairing, with independent
// expireAfterAccess/expireAfterWrite durations, a pluggable weigher
// instead of a bare entry count, and an injectable ticker.
type resourceCache[K comparable, R any] struct {
	mu    sync.Mutex
	items map[*resourceKey[K]]*list.Element // element.Value is *cacheEntry[K,R]
	order list.List                         // front = most recently used

	maxEntries        int
	maxEntriesEnabled bool
	maxWeight         uint64
	maxWeightEnabled  bool
	curWeight         uint64
	weigher           Weigher[K, R]

	expireAfterAccess time.Duration
	expireAfterWrite  time.Duration
	now               func() int64 // nanoseconds, overridable for tests

	onRemove func(category K, key *resourceKey[K], resource R, cause removalCause)

	janitorInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

type cacheEntry[K comparable, R any] struct {
	key          *resourceKey[K]
	resource     R
	weight       uint32
	createdNanos int64
	accessNanos  int64
}

func newResourceCache[K comparable, R any](cfg buildConfig[K, R]) *resourceCache[K, R] {
	weigher := cfg.weigher
	if weigher == nil {
		weigher = func(K, R) uint32 { return 1 }
	}
	now := cfg.ticker
	if now == nil {
		now = func() int64 { return time.Now().UnixNano() }
	}
	c := &resourceCache[K, R]{
		items:             make(map[*resourceKey[K]]*list.Element),
		maxEntries:        cfg.maximumSize,
		maxEntriesEnabled: cfg.maximumSizeSet,
		maxWeight:         cfg.maximumWeight,
		maxWeightEnabled:  cfg.maximumWeightSet,
		weigher:           weigher,
		expireAfterAccess: cfg.expireAfterAccess,
		expireAfterWrite:  cfg.expireAfterWrite,
		now:               now,
		janitorInterval:   cfg.janitorInterval,
		stopCh:            make(chan struct{}),
	}
	c.order.Init()
	if c.janitorInterval > 0 {
		go c.runJanitor()
	}
	return c
}

// put inserts a newly created (key, resource) pair and returns any entries
// evicted to make room for it (size/weight bound). Eviction is processed
// by the caller (pool.onCacheRemoval), not here: the cache only decides
// *what* to evict, never what that means for ResourceKey.status.
func (c *resourceCache[K, R]) put(category K, key *resourceKey[K], resource R) []*cacheEntry[K, R] {
	c.mu.Lock()
	w := c.weigher(category, resource)
	if w == 0 {
		w = 1 // a zero weigher result is treated as 1 to preserve the weight bound.
	}
	entry := &cacheEntry[K, R]{
		key:          key,
		resource:     resource,
		weight:       w,
		createdNanos: c.now(),
	}
	entry.accessNanos = entry.createdNanos
	elem := c.order.PushFront(entry)
	c.items[key] = elem
	c.curWeight += uint64(w)

	var evicted []*cacheEntry[K, R]
	for c.overCapacityLocked() {
		back := c.order.Back()
		if back == nil {
			break
		}
		// back may be elem itself (e.g. maximumSize == 0): the entry we
		// just inserted is evicted immediately, same as anything else.
		evicted = append(evicted, c.removeElementLocked(back, causeSize))
	}
	c.mu.Unlock()
	return evicted
}

func (c *resourceCache[K, R]) overCapacityLocked() bool {
	if c.maxWeightEnabled {
		return c.curWeight > c.maxWeight
	}
	if c.maxEntriesEnabled {
		return len(c.items) > c.maxEntries
	}
	return false
}

// get returns the resource for key if still cached and not expired,
// touching its access time and LRU position. A miss here is either a true
// absence or a lazily-discovered expiry, surfaced the same way (no
// distinction needed: both mean "borrow must treat this key as gone").
func (c *resourceCache[K, R]) get(key *resourceKey[K]) (R, bool) {
	var zero R
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return zero, false
	}
	entry := elem.Value.(*cacheEntry[K, R])
	if c.expiredLocked(entry) {
		c.removeElementLocked(elem, causeExpiredAccess)
		c.mu.Unlock()
		return zero, false
	}
	entry.accessNanos = c.now()
	c.order.MoveToFront(elem)
	c.mu.Unlock()
	return entry.resource, true
}

func (c *resourceCache[K, R]) expiredLocked(e *cacheEntry[K, R]) bool {
	now := c.now()
	if c.expireAfterWrite > 0 && now-e.createdNanos > c.expireAfterWrite.Nanoseconds() {
		return true
	}
	if c.expireAfterAccess > 0 && now-e.accessNanos > c.expireAfterAccess.Nanoseconds() {
		return true
	}
	return false
}

// removeElementLocked unlinks an element from both the map and the LRU
// list and returns its entry for the caller to hand to the pool's removal
// listener. Caller must hold c.mu.
func (c *resourceCache[K, R]) removeElementLocked(elem *list.Element, _ removalCause) *cacheEntry[K, R] {
	entry := elem.Value.(*cacheEntry[K, R])
	c.order.Remove(elem)
	delete(c.items, entry.key)
	c.curWeight -= uint64(entry.weight)
	return entry
}

// invalidate explicitly removes one key, returning its entry if present.
func (c *resourceCache[K, R]) invalidate(key *resourceKey[K]) (*cacheEntry[K, R], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	return c.removeElementLocked(elem, causeExplicit), true
}

// invalidateAll removes every entry and returns their entries.
func (c *resourceCache[K, R]) invalidateAll() []*cacheEntry[K, R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*cacheEntry[K, R], 0, len(c.items))
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		out = append(out, c.removeElementLocked(elem, causeExplicit))
		elem = next
	}
	return out
}

func (c *resourceCache[K, R]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// sweepExpired synchronously scans for and removes TTL-expired entries.
// With an injected ticker, advancing a fake clock and calling CleanUp
// (which calls this) reproduces a long wait deterministically, without a
// real sleep.
func (c *resourceCache[K, R]) sweepExpired() []*cacheEntry[K, R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*cacheEntry[K, R]
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		entry := elem.Value.(*cacheEntry[K, R])
		if c.expiredLocked(entry) {
			cause := causeExpiredAccess
			if c.expireAfterWrite > 0 {
				now := c.now()
				if now-entry.createdNanos > c.expireAfterWrite.Nanoseconds() {
					cause = causeExpiredWrite
				}
			}
			out = append(out, c.removeElementLocked(elem, cause))
		}
		elem = prev
	}
	return out
}

func (c *resourceCache[K, R]) runJanitor() {
	ticker := time.NewTicker(c.janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if evicted := c.sweepExpired(); c.onRemove != nil {
				for _, e := range evicted {
					c.onRemove(e.key.category, e.key, e.resource, causeExpiredAccess)
				}
			}
		case <-c.stopCh:
			return
		}
	}
}

func (c *resourceCache[K, R]) stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
