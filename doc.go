// Package multipool implements a multiway resource pool: a keyed object
// pool that amortizes the cost of creating expensive per-category resources
// (database sessions, network connections, compiled templates, ...) by
// reusing idle instances across callers, while bounding total footprint
// with cache-style eviction (size, weight, time).
//
// Callers borrow a resource for a category key, use it exclusively, and
// release it; released resources become available to other borrowers of the
// same category. A single global cache holds every resource regardless of
// category, tagged by an internal resourceKey, so eviction policies (LRU,
// weight, TTL) apply uniformly across all categories rather than being
// configured per key.
//
// The hard part — and the part this package actually implements rather than
// stubbing — is the concurrent borrow/release state machine: the race
// between a borrower, a releaser, and the cache's own evictor over the same
// resourceKey, resolved with lock-free CAS transitions so that reference
// counts never corrupt and lifecycle hooks never double-fire.
package multipool
