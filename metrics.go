package multipool

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// poolMetrics wires the pool's lifecycle transitions to Prometheus,
// following the direct-vector-metric style used by Voskan-arena-cache and
// Tutu-Engine-tutuengine (CounterVec/Gauge values, created per pool by
// newPoolMetrics and registered through a caller-supplied Registerer)
// rather than introducing a metrics façade of our own.
type poolMetrics struct {
	borrows  *prometheus.CounterVec
	releases *prometheus.CounterVec
	creates  *prometheus.CounterVec
	removals *prometheus.CounterVec
	handoffs *prometheus.CounterVec
	cached   prometheus.Gauge
}

// newPoolMetrics registers a fresh set of vectors under namespace
// "multipool" rooted at name, so multiple pools in one process don't
// collide. If reg is nil, metrics are created but never registered — calls
// remain cheap no-ops from the caller's point of view.
func newPoolMetrics(reg prometheus.Registerer, name string) *poolMetrics {
	labels := []string{"category"}
	m := &poolMetrics{
		borrows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multipool", Subsystem: name, Name: "borrows_total",
			Help: "Total resources borrowed.",
		}, labels),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multipool", Subsystem: name, Name: "releases_total",
			Help: "Total resources released.",
		}, labels),
		creates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multipool", Subsystem: name, Name: "creates_total",
			Help: "Total resources created by the loader.",
		}, labels),
		removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multipool", Subsystem: name, Name: "removals_total",
			Help: "Total resources permanently removed (evicted or invalidated).",
		}, labels),
		handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multipool", Subsystem: name, Name: "handoffs_total",
			Help: "Total direct releaser-to-borrower handoffs.",
		}, labels),
		cached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "multipool", Subsystem: name, Name: "cached_resources",
			Help: "Current number of resources held in the cache.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.borrows, m.releases, m.creates, m.removals, m.handoffs, m.cached)
	}
	return m
}

// categoryLabel renders a category key as a metric label value. Label
// cardinality is bounded only by the set of distinct categories a caller
// actually uses — callers with unbounded or high-cardinality category
// spaces (e.g. per-request IDs used as categories) should not rely on
// per-category labels and can disable metrics via a nil Registerer.
func categoryLabel(category any) string {
	if s, ok := category.(string); ok {
		return s
	}
	if s, ok := category.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", category)
}
