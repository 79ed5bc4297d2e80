package multipool

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures a Pool using the functional-options pattern, generalized
// to the pool's [K, R] type parameters so Option[K, R] composes with
// Pool[K, R].
type Option[K comparable, R any] func(*buildConfig[K, R])

type buildConfig[K comparable, R any] struct {
	maximumSize      int
	maximumSizeSet   bool
	maximumWeight    uint64
	maximumWeightSet bool
	weigher          Weigher[K, R]

	expireAfterAccess time.Duration
	expireAfterWrite  time.Duration
	ticker            func() int64
	janitorInterval   time.Duration

	lifecycle Lifecycle[K, R]
	errorSink ErrorSink
	logger    *zap.Logger

	registerer  prometheus.Registerer
	metricsName string
}

// WithMaximumSize bounds the cache by entry count, evicting the least
// recently used entry once the bound is exceeded. A cap of 0 is a valid,
// deliberate configuration — it makes every resource single-use, evicted
// the instant it is cached — and is tracked separately from "unset" so it
// is never silently ignored. Mutually exclusive with WithMaximumWeight.
func WithMaximumSize[K comparable, R any](n int) Option[K, R] {
	return func(c *buildConfig[K, R]) {
		c.maximumSize = n
		c.maximumSizeSet = true
	}
}

// WithMaximumWeight bounds the cache by summed weight instead of entry
// count. Mutually exclusive with WithMaximumSize.
func WithMaximumWeight[K comparable, R any](weight uint64, weigher Weigher[K, R]) Option[K, R] {
	return func(c *buildConfig[K, R]) {
		c.maximumWeight = weight
		c.maximumWeightSet = true
		c.weigher = weigher
	}
}

// WithExpireAfterAccess evicts IDLE resources unused for the given
// duration.
func WithExpireAfterAccess[K comparable, R any](d time.Duration) Option[K, R] {
	return func(c *buildConfig[K, R]) { c.expireAfterAccess = d }
}

// WithExpireAfterWrite evicts resources older than the given duration
// since creation, regardless of use.
func WithExpireAfterWrite[K comparable, R any](d time.Duration) Option[K, R] {
	return func(c *buildConfig[K, R]) { c.expireAfterWrite = d }
}

// WithTicker overrides the cache's time source. Tests inject a fake clock
// here and drive expiry deterministically with Pool.CleanUp instead of
// sleeping in real time.
func WithTicker[K comparable, R any](nowNanos func() int64) Option[K, R] {
	return func(c *buildConfig[K, R]) { c.ticker = nowNanos }
}

// WithJanitorInterval enables a background goroutine that periodically
// performs the active-expiration pass CleanUp also does on demand. Tests
// that need determinism should leave this unset and call CleanUp
// explicitly instead.
func WithJanitorInterval[K comparable, R any](d time.Duration) Option[K, R] {
	return func(c *buildConfig[K, R]) { c.janitorInterval = d }
}

// WithLifecycle installs the onCreate/onBorrow/onRelease/onRemoval hooks.
func WithLifecycle[K comparable, R any](l Lifecycle[K, R]) Option[K, R] {
	return func(c *buildConfig[K, R]) { c.lifecycle = l }
}

// WithErrorSink installs the callback notified of lifecycle-hook panics or
// errors.
func WithErrorSink[K comparable, R any](sink ErrorSink) Option[K, R] {
	return func(c *buildConfig[K, R]) { c.errorSink = sink }
}

// WithLogger installs a *zap.Logger for internal diagnostics. Defaults to
// zap.NewNop() so an unconfigured pool never writes anything.
func WithLogger[K comparable, R any](logger *zap.Logger) Option[K, R] {
	return func(c *buildConfig[K, R]) { c.logger = logger }
}

// WithMetrics registers the pool's Prometheus vectors under reg, namespaced
// by name. Leaving this unset keeps metrics allocated but never registered.
func WithMetrics[K comparable, R any](reg prometheus.Registerer, name string) Option[K, R] {
	return func(c *buildConfig[K, R]) {
		c.registerer = reg
		c.metricsName = name
	}
}

// New constructs a Pool. loader is required; every other option has a safe
// default. maximumSize and maximumWeight are mutually exclusive.
func New[K comparable, R any](loader Loader[K, R], opts ...Option[K, R]) (*Pool[K, R], error) {
	if loader == nil {
		return nil, errors.New("multipool: loader is required")
	}
	cfg := buildConfig[K, R]{metricsName: "pool"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maximumSizeSet && cfg.maximumWeightSet {
		return nil, errors.New("multipool: maximumSize and maximumWeight are mutually exclusive")
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	return newPool(loader, cfg), nil
}
