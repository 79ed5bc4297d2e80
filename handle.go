package multipool

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Handle is the per-borrow ownership token returned by Pool.Borrow. It is
// single-use: the first call to Release, ReleaseAfter or Invalidate
// consumes it, and every method after that returns ErrHandleConsumed.
// Handles are not safe for concurrent use against themselves —
// calling Get concurrently with Release on the same Handle is caller
// error — a Handle has exactly one owner at a time.
type Handle[K comparable, R any] struct {
	pool     *Pool[K, R]
	category K
	key      *resourceKey[K]
	resource R
	consumed int32 // atomic
}

func newHandle[K comparable, R any](pool *Pool[K, R], category K, key *resourceKey[K], resource R) *Handle[K, R] {
	h := &Handle[K, R]{pool: pool, category: category, key: key, resource: resource}
	// Orphan safety: a Handle the caller forgot to release still has its
	// resourceKey sitting IN_FLIGHT forever without this. The
	// finalizer is the reclamation path for when no scoped release ran;
	// Release/ReleaseAfter/Invalidate all clear it first, so a normal
	// caller never pays for it.
	runtime.SetFinalizer(h, func(h *Handle[K, R]) { h.Release() })
	return h
}

// Get returns the handle's resource, or ErrHandleConsumed if the handle
// has already been released or invalidated.
func (h *Handle[K, R]) Get() (R, error) {
	if atomic.LoadInt32(&h.consumed) != 0 {
		var zero R
		return zero, ErrHandleConsumed
	}
	return h.resource, nil
}

// Release returns the resource to the pool for reuse (IN_FLIGHT->IDLE), or
// completes a pending eviction (RETIRED->DEAD) if the resource was evicted
// while borrowed. Idempotent: a second call returns ErrHandleConsumed and
// never double-fires lifecycle hooks.
func (h *Handle[K, R]) Release() error {
	if !atomic.CompareAndSwapInt32(&h.consumed, 0, 1) {
		return ErrHandleConsumed
	}
	runtime.SetFinalizer(h, nil)
	h.pool.queues.decRef(h.category)
	h.pool.releaseKey(h.category, h.key, h.resource)
	return nil
}

// ReleaseAfter schedules Release's effects to run after delay, but the
// handle is consumed immediately: Get fails right away, not after delay.
// During the window the resource is published for direct transfer to a
// concurrent Borrow of the same category instead of sitting unreachable
// until the delay elapses.
func (h *Handle[K, R]) ReleaseAfter(delay time.Duration) error {
	if !atomic.CompareAndSwapInt32(&h.consumed, 0, 1) {
		return ErrHandleConsumed
	}
	runtime.SetFinalizer(h, nil)
	h.pool.queues.decRef(h.category)
	entry := h.pool.publishHandoff(h.category, h.key, h.resource)
	time.AfterFunc(delay, func() {
		h.pool.expireHandoff(h.category, entry, h.resource)
	})
	return nil
}

// Invalidate forces the resource to be discarded rather than reused.
// Idempotent like Release.
func (h *Handle[K, R]) Invalidate() error {
	if !atomic.CompareAndSwapInt32(&h.consumed, 0, 1) {
		return ErrHandleConsumed
	}
	runtime.SetFinalizer(h, nil)
	h.pool.queues.decRef(h.category)
	h.pool.invalidateKey(h.category, h.key, h.resource)
	return nil
}
