package multipool

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// idleEntry is what a transferQueue actually holds: an IDLE resourceKey
// together with the resource it fronts. Carrying the resource alongside
// the key (rather than re-deriving it from the cache on dequeue) means a
// borrower that wins the IDLE->IN_FLIGHT race always has the value it
// needs to fire onRemoval itself if the cache turns out to have evicted
// the entry out from under it — see reclaimDiscardedKey in pool.go.
type idleEntry[K comparable, R any] struct {
	key      *resourceKey[K]
	resource R
}

// transferQueue is the FIFO of IDLE resourceKeys awaiting reuse for one
// category. It pairs a doubly linked list with its own mutex, the same
// map+list.List pairing the cache's own LRU order uses, applied one layer
// down: one such pairing per category instead of one for the whole cache.
type transferQueue[K comparable, R any] struct {
	mu    sync.Mutex
	items list.List
}

func newTransferQueue[K comparable, R any]() *transferQueue[K, R] {
	q := &transferQueue[K, R]{}
	q.items.Init()
	return q
}

func (q *transferQueue[K, R]) push(k *resourceKey[K], resource R) {
	q.mu.Lock()
	q.items.PushBack(idleEntry[K, R]{key: k, resource: resource})
	q.mu.Unlock()
}

// poll dequeues the next entry, or reports false if the queue is empty. It
// does not filter RETIRED/DEAD keys itself — a key left in the queue after
// being retired is filtered out at dequeue instead — since only the caller
// knows what to do with a stale key.
func (q *transferQueue[K, R]) poll() (idleEntry[K, R], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.items.Front()
	if front == nil {
		return idleEntry[K, R]{}, false
	}
	q.items.Remove(front)
	return front.Value.(idleEntry[K, R]), true
}

// remove is the best-effort removal the cache removal listener performs
// when it retires a key that is still sitting IDLE in its transfer queue.
// Best-effort: if the key has already been dequeued by a borrower, this is
// a no-op, and the borrower's own dequeue-time status check will discover
// the retirement instead.
func (q *transferQueue[K, R]) remove(k *resourceKey[K]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for e := q.items.Front(); e != nil; e = e.Next() {
		if e.Value.(idleEntry[K, R]).key == k {
			q.items.Remove(e)
			return
		}
	}
}

func (q *transferQueue[K, R]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// categoryBucket bundles one category's transfer queue with a live-handle
// refcount, so maintenance can tell whether the bucket is safe to discard:
// only once it is both empty and no outstanding Handle references the
// category.
type categoryBucket[K comparable, R any] struct {
	queue *transferQueue[K, R]
	refs  int32 // atomic; live handles referencing this category right now
}

// transferQueues is the mapping from category key to its transfer queue.
// Buckets are created lazily on first use and may be discarded by sweep
// once empty and unreferenced; re-allocation on next use is cheap and
// expected.
type transferQueues[K comparable, R any] struct {
	mu      sync.Mutex
	buckets map[K]*categoryBucket[K, R]
}

func newTransferQueues[K comparable, R any]() *transferQueues[K, R] {
	return &transferQueues[K, R]{buckets: make(map[K]*categoryBucket[K, R])}
}

func (t *transferQueues[K, R]) bucket(category K) *categoryBucket[K, R] {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.buckets[category]
	if !ok {
		b = &categoryBucket[K, R]{queue: newTransferQueue[K, R]()}
		t.buckets[category] = b
	}
	return b
}

func (t *transferQueues[K, R]) incRef(category K) *categoryBucket[K, R] {
	b := t.bucket(category)
	atomic.AddInt32(&b.refs, 1)
	return b
}

func (t *transferQueues[K, R]) decRef(category K) {
	t.mu.Lock()
	b, ok := t.buckets[category]
	t.mu.Unlock()
	if ok {
		atomic.AddInt32(&b.refs, -1)
	}
}

// sweep discards buckets that are both empty and unreferenced. Called from
// the pool's maintenance pass (Pool.CleanUp), never from the hot
// borrow/release path; the background janitor does not call it.
func (t *transferQueues[K, R]) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for category, b := range t.buckets {
		if b.queue.len() == 0 && atomic.LoadInt32(&b.refs) == 0 {
			delete(t.buckets, category)
		}
	}
}

func (t *transferQueues[K, R]) liveBucketCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}
