package multipool

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Pool is a multiway resource pool keyed by category K, pooling resources
// of type R. Use New to construct one.
type Pool[K comparable, R any] struct {
	cache  *resourceCache[K, R]
	queues *transferQueues[K, R]
	loader Loader[K, R]

	hooks     Lifecycle[K, R]
	errorSink ErrorSink
	logger    *zap.Logger
	metrics   *poolMetrics

	handoffMu sync.Mutex
	handoffs  map[K]*handoffSlot[K, R]

	closeOnce sync.Once
}

func newPool[K comparable, R any](loader Loader[K, R], cfg buildConfig[K, R]) *Pool[K, R] {
	p := &Pool[K, R]{
		queues:    newTransferQueues[K, R](),
		loader:    loader,
		hooks:     cfg.lifecycle,
		errorSink: cfg.errorSink,
		logger:    cfg.logger,
		metrics:   newPoolMetrics(cfg.registerer, cfg.metricsName),
		handoffs:  make(map[K]*handoffSlot[K, R]),
	}
	p.cache = newResourceCache[K, R](cfg)
	p.cache.onRemove = p.onCacheRemoval
	return p
}

// Borrow returns a Handle over a resource for category, reusing an idle
// one if available and otherwise constructing a new one via the Loader.
// It never returns a nil Handle without an error.
func (p *Pool[K, R]) Borrow(ctx context.Context, category K) (*Handle[K, R], error) {
	label := categoryLabel(category)
	for {
		if entry, ok := p.takeHandoff(category); ok {
			p.queues.incRef(category)
			// The transferring release and this borrow complete atomically
			// together: the releaser's onRelease fires here rather than
			// after its delay, pairing with its own earlier onBorrow, and
			// this handle's onBorrow pairs with whatever release eventually
			// ends it.
			p.fireOnRelease(category, entry.resource)
			p.fireOnBorrow(category, entry.resource)
			p.metrics.releases.WithLabelValues(label).Inc()
			p.metrics.borrows.WithLabelValues(label).Inc()
			p.metrics.handoffs.WithLabelValues(label).Inc()
			return newHandle(p, category, entry.key, entry.resource), nil
		}

		bucket := p.queues.bucket(category)
		if consumed, handle := p.drainIdle(category, bucket); consumed {
			if handle != nil {
				return handle, nil
			}
			continue // every queued entry was stale; queue is now empty, fall through to create
		}

		newKey := newResourceKey(category, statusInFlight)
		resource, err := p.loader(ctx, category)
		if err != nil {
			return nil, newLoaderError(category, err)
		}
		evicted := p.cache.put(category, newKey, resource)
		p.processEvicted(evicted)
		p.fireOnCreate(category, resource)
		p.queues.incRef(category)
		p.fireOnBorrow(category, resource)
		p.metrics.creates.WithLabelValues(label).Inc()
		p.metrics.borrows.WithLabelValues(label).Inc()
		p.metrics.cached.Set(float64(p.cache.size()))
		return newHandle(p, category, newKey, resource), nil
	}
}

// drainIdle polls the category's transfer queue until it finds a key it
// can hand out or exhausts the queue. consumed reports whether the queue
// had anything to try at all (so Borrow knows whether to fall through to
// construction); handle is non-nil only when a usable entry was found.
func (p *Pool[K, R]) drainIdle(category K, bucket *categoryBucket[K, R]) (consumed bool, handle *Handle[K, R]) {
	label := categoryLabel(category)
	for {
		entry, ok := bucket.queue.poll()
		if !ok {
			return consumed, nil
		}
		consumed = true
		if !entry.key.cas(statusIdle, statusInFlight) {
			// Lost the race: the removal listener retired this key while it
			// sat in the queue. Discard and keep scanning.
			continue
		}
		if resource, found := p.cache.get(entry.key); found {
			p.queues.incRef(category)
			p.fireOnBorrow(category, resource)
			p.metrics.borrows.WithLabelValues(label).Inc()
			return consumed, newHandle(p, category, entry.key, resource)
		}
		// Evicted between poll and lookup; finish whatever transition the
		// listener didn't (see reclaimDiscardedKey) and try the next entry.
		p.reclaimDiscardedKey(category, entry.key, entry.resource)
	}
}

// reclaimDiscardedKey completes the terminal transition for a key that a
// borrower dequeued (winning IDLE->IN_FLIGHT) only to discover the cache
// had already dropped its entry: CAS IN_FLIGHT->DEAD, discard, continue.
// This generalizes that single CAS to also cover the key already having
// been raced to RETIRED by the removal listener before this call observes
// it; either way exactly one of this call and the listener wins the CAS to
// DEAD, so onRemoval fires exactly once even though no Handle was ever
// issued for this key on this pass.
func (p *Pool[K, R]) reclaimDiscardedKey(category K, key *resourceKey[K], resource R) {
	for {
		switch key.load() {
		case statusInFlight:
			if key.cas(statusInFlight, statusDead) {
				p.fireOnRemoval(category, resource)
				p.metrics.removals.WithLabelValues(categoryLabel(category)).Inc()
				return
			}
		case statusRetired:
			if key.cas(statusRetired, statusDead) {
				p.fireOnRemoval(category, resource)
				p.metrics.removals.WithLabelValues(categoryLabel(category)).Inc()
				return
			}
		case statusDead:
			return // the removal listener already finished this key.
		case statusIdle:
			logUnexpectedCAS(p.logger, "reclaimDiscardedKey", key, statusIdle, "IN_FLIGHT or RETIRED")
			return
		}
	}
}

// releaseKey performs the real IN_FLIGHT->IDLE or RETIRED->DEAD transition
// shared by Handle.Release and a handoff delay that expires unclaimed.
func (p *Pool[K, R]) releaseKey(category K, key *resourceKey[K], resource R) {
	label := categoryLabel(category)
	for {
		switch key.load() {
		case statusInFlight:
			if key.cas(statusInFlight, statusIdle) {
				p.queues.bucket(category).queue.push(key, resource)
				p.fireOnRelease(category, resource)
				p.metrics.releases.WithLabelValues(label).Inc()
				return
			}
			// Lost the race: the removal listener's CAS to RETIRED won
			// first. Loop and take the RETIRED branch next.
		case statusRetired:
			if key.cas(statusRetired, statusDead) {
				p.fireOnRelease(category, resource)
				p.fireOnRemoval(category, resource)
				p.metrics.releases.WithLabelValues(label).Inc()
				p.metrics.removals.WithLabelValues(label).Inc()
				return
			}
		case statusDead:
			return // already terminal; idempotent no-op.
		case statusIdle:
			logUnexpectedCAS(p.logger, "releaseKey", key, statusIdle, "IN_FLIGHT or RETIRED")
			return
		}
	}
}

// invalidateKey forces a borrowed resource to be removed immediately: an
// atomic IN_FLIGHT->DEAD transition, skipping the RETIRED stopover a
// normal post-eviction release goes through. The only time this falls back
// to a separate RETIRED->DEAD step is if a concurrent removal listener's
// own CAS to RETIRED wins the race first.
func (p *Pool[K, R]) invalidateKey(category K, key *resourceKey[K], resource R) {
	label := categoryLabel(category)
	p.cache.invalidate(key)
	for {
		switch key.load() {
		case statusInFlight:
			if key.cas(statusInFlight, statusDead) {
				p.fireOnRelease(category, resource)
				p.fireOnRemoval(category, resource)
				p.metrics.releases.WithLabelValues(label).Inc()
				p.metrics.removals.WithLabelValues(label).Inc()
				return
			}
			// Lost the race: a removal listener's CAS to RETIRED won
			// first. Loop and take the RETIRED branch next.
		case statusRetired:
			if key.cas(statusRetired, statusDead) {
				p.fireOnRelease(category, resource)
				p.fireOnRemoval(category, resource)
				p.metrics.releases.WithLabelValues(label).Inc()
				p.metrics.removals.WithLabelValues(label).Inc()
				return
			}
		case statusDead:
			return
		case statusIdle:
			logUnexpectedCAS(p.logger, "invalidateKey", key, statusIdle, "IN_FLIGHT or RETIRED")
			return
		}
	}
}

// onCacheRemoval is the cache's removal listener. The pool runs it
// synchronously on the entries the cache returns from size/weight eviction
// (put), InvalidateAll and the CleanUp TTL sweep, and the background
// janitor runs it on the entries its own sweep drops. It is not run for an
// entry dropped by get's lazy expiry check or by invalidateKey; those
// callers finish the key's transition themselves.
func (p *Pool[K, R]) onCacheRemoval(category K, key *resourceKey[K], resource R, _ removalCause) {
	for {
		switch key.load() {
		case statusIdle:
			if key.cas(statusIdle, statusRetired) {
				if key.cas(statusRetired, statusDead) {
					p.queues.bucket(category).queue.remove(key)
					p.fireOnRemoval(category, resource)
					p.metrics.removals.WithLabelValues(categoryLabel(category)).Inc()
				}
				return
			}
			// Lost the race: a borrower dequeued this key first. Loop and
			// take the IN_FLIGHT branch next.
		case statusInFlight:
			// Do not fire onRemoval yet: an outstanding Handle (or a
			// borrower mid-reclaim) owns the terminal transition.
			key.cas(statusInFlight, statusRetired)
			return
		case statusRetired, statusDead:
			return // already being handled, or already done.
		}
	}
}

func (p *Pool[K, R]) processEvicted(evicted []*cacheEntry[K, R]) {
	for _, e := range evicted {
		p.onCacheRemoval(e.key.category, e.key, e.resource, causeSize)
	}
	p.metrics.cached.Set(float64(p.cache.size()))
}

// Size reports the number of resources currently held in the cache.
func (p *Pool[K, R]) Size() int { return p.cache.size() }

// CleanUp synchronously drains pending eviction work: TTL sweeps and
// transfer-queue bucket GC. Required for deterministic tests that drive
// time through an injected ticker.
func (p *Pool[K, R]) CleanUp() {
	evicted := p.cache.sweepExpired()
	for _, e := range evicted {
		p.onCacheRemoval(e.key.category, e.key, e.resource, causeExpiredAccess)
	}
	p.metrics.cached.Set(float64(p.cache.size()))
	p.queues.sweep()
}

// InvalidateAll evicts every cached resource.
func (p *Pool[K, R]) InvalidateAll() {
	evicted := p.cache.invalidateAll()
	p.processEvicted(evicted)
}

// Close stops the background janitor (if any) and invalidates every cached
// resource. This is the shutdown path for the stop-channel-driven janitor
// goroutine an optional WithJanitorInterval starts.
func (p *Pool[K, R]) Close() {
	p.closeOnce.Do(func() {
		p.cache.stop()
		p.InvalidateAll()
	})
}

func (p *Pool[K, R]) fireOnCreate(category K, resource R) {
	if p.hooks.OnCreate == nil {
		return
	}
	defer p.recoverHook(category, "onCreate")
	p.hooks.OnCreate(category, resource)
}

func (p *Pool[K, R]) fireOnBorrow(category K, resource R) {
	if p.hooks.OnBorrow == nil {
		return
	}
	defer p.recoverHook(category, "onBorrow")
	p.hooks.OnBorrow(category, resource)
}

func (p *Pool[K, R]) fireOnRelease(category K, resource R) {
	if p.hooks.OnRelease == nil {
		return
	}
	defer p.recoverHook(category, "onRelease")
	p.hooks.OnRelease(category, resource)
}

func (p *Pool[K, R]) fireOnRemoval(category K, resource R) {
	if p.hooks.OnRemoval == nil {
		return
	}
	defer p.recoverHook(category, "onRemoval")
	p.hooks.OnRemoval(category, resource)
}

func (p *Pool[K, R]) recoverHook(category K, hook string) {
	if r := recover(); r != nil {
		logHookFailure(p.logger, p.errorSink, category, hook, r)
	}
}

// --- handoff ---

// handoffSlot is the single-slot per-category channel a deferred release
// publishes into, and a concurrent borrow checks before polling the
// transfer queue.
type handoffSlot[K comparable, R any] struct {
	mu    sync.Mutex
	entry *handoffEntry[K, R]
}

type handoffEntry[K comparable, R any] struct {
	key      *resourceKey[K]
	resource R
	claimed  int32 // atomic
}

func (p *Pool[K, R]) handoffSlotFor(category K) *handoffSlot[K, R] {
	p.handoffMu.Lock()
	defer p.handoffMu.Unlock()
	s, ok := p.handoffs[category]
	if !ok {
		s = &handoffSlot[K, R]{}
		p.handoffs[category] = s
	}
	return s
}

// publishHandoff makes (key, resource) available for direct transfer,
// superseding whatever was previously published for this category.
// Most-recent-wins: the superseded entry, if any, simply stops being
// "current" — when its own delay timer fires, it will find itself no
// longer installed and fall back to a normal release.
func (p *Pool[K, R]) publishHandoff(category K, key *resourceKey[K], resource R) *handoffEntry[K, R] {
	slot := p.handoffSlotFor(category)
	entry := &handoffEntry[K, R]{key: key, resource: resource}
	slot.mu.Lock()
	slot.entry = entry
	slot.mu.Unlock()
	return entry
}

// takeHandoff claims the currently published entry for category, if any.
func (p *Pool[K, R]) takeHandoff(category K) (handoffEntry[K, R], bool) {
	slot := p.handoffSlotFor(category)
	slot.mu.Lock()
	e := slot.entry
	if e == nil || !atomic.CompareAndSwapInt32(&e.claimed, 0, 1) {
		slot.mu.Unlock()
		return handoffEntry[K, R]{}, false
	}
	slot.entry = nil
	slot.mu.Unlock()
	return *e, true
}

// expireHandoff is called when a deferred release's delay elapses. If the
// entry is still the one currently published, it is withdrawn from the
// slot. Unless a borrower has already claimed it, the release then proceeds
// normally, whether or not a later release superseded it in the slot; a
// claimed entry is a no-op (the borrower that claimed it owns what happens
// next).
func (p *Pool[K, R]) expireHandoff(category K, entry *handoffEntry[K, R], resource R) {
	slot := p.handoffSlotFor(category)
	slot.mu.Lock()
	stillCurrent := slot.entry == entry
	if stillCurrent {
		slot.entry = nil
	}
	slot.mu.Unlock()
	if atomic.LoadInt32(&entry.claimed) != 0 {
		return // a borrower already took it; that borrow owns the handle now.
	}
	if !atomic.CompareAndSwapInt32(&entry.claimed, 0, 1) {
		return // claimed in the instant between the load above and now.
	}
	p.releaseKey(category, entry.key, resource)
}
