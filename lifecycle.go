package multipool

import "context"

// Loader supplies a new resource for a category on a transfer-queue miss.
// It is called at most once per new resourceKey; failures propagate to the
// caller as a *LoaderError without mutating pool state.
type Loader[K comparable, R any] func(ctx context.Context, category K) (R, error)

// Weigher assigns a weight to a (category, resource) pair when
// maximumWeight is configured. It must return at least 1; the pool
// substitutes 1 for a returned 0 rather than let a resource escape the
// weight bound for free.
type Weigher[K comparable, R any] func(category K, resource R) uint32

// Lifecycle bundles the four user hooks fired around a resource's
// existence: onCreate precedes every onBorrow, every onBorrow pairs with
// exactly one onRelease, and onRemoval, if it fires, is last and fires
// exactly once. Any hook left nil is skipped. Hooks fire on whichever
// goroutine performs the transition and must be treated as concurrent with
// hooks for other keys, and even for the same key across time.
type Lifecycle[K comparable, R any] struct {
	OnCreate  func(category K, resource R)
	OnBorrow  func(category K, resource R)
	OnRelease func(category K, resource R)
	OnRemoval func(category K, resource R)
}

// ErrorSink receives errors and recovered panics from user lifecycle
// hooks: a hook failure is caught and reported here, but the transition it
// was attached to still completes. hook names the hook that failed
// ("onCreate", "onBorrow", "onRelease", "onRemoval").
type ErrorSink func(category any, hook string, err error)
