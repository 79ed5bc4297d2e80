package multipool

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// status is the lifecycle state of a resourceKey, mutated only through
// atomic compare-and-swap. The four states form a small one-way machine
// with DEAD as the only terminal state; IDLE and IN_FLIGHT may bounce back
// and forth via borrow/release, but nothing ever leaves DEAD.
type status uint32

const (
	statusIdle status = iota
	statusInFlight
	statusRetired
	statusDead
)

func (s status) String() string {
	switch s {
	case statusIdle:
		return "IDLE"
	case statusInFlight:
		return "IN_FLIGHT"
	case statusRetired:
		return "RETIRED"
	case statusDead:
		return "DEAD"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// resourceKey uniquely tags one physical resource instance. Two keys with
// the same category are distinct: category is the user-facing identity,
// id is the instance identity. It is used both as the cache key and as the
// element stored in a category's transfer queue.
//
// The refcount/CAS split mirrors Caddy's UsagePool (a mutex-guarded map of
// values with an atomically-updated per-value field): the map-level lock
// guards structural changes (insert/remove), while the per-entry atomic
// field — here status instead of a bare refcount, since the pool needs
// four states rather than "referenced or not" — lets borrow, release and
// eviction race over one instance without taking that lock.
type resourceKey[K comparable] struct {
	category K
	id       uuid.UUID
	status   uint32 // atomic, see type status
}

func newResourceKey[K comparable](category K, initial status) *resourceKey[K] {
	return &resourceKey[K]{
		category: category,
		id:       uuid.New(),
		status:   uint32(initial),
	}
}

func (k *resourceKey[K]) load() status {
	return status(atomic.LoadUint32(&k.status))
}

func (k *resourceKey[K]) cas(from, to status) bool {
	return atomic.CompareAndSwapUint32(&k.status, uint32(from), uint32(to))
}
