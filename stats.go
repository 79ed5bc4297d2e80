package multipool

// Stats is a point-in-time snapshot of a Pool's size and structure, built
// from one cache plus per-category transfer queues rather than a single
// flat cache's hit/miss/eviction counters. Counters that vary per request
// (borrows, releases, creates, removals, handoffs) are exposed continuously
// through the Prometheus vectors wired by WithMetrics instead of being
// duplicated here; Stats covers structural state a gauge snapshot can't:
// how many categories currently have a live transfer queue, and how many
// idle resources are sitting in each.
type Stats struct {
	CachedResources int
	LiveCategories  int
	IdleByCategory  map[string]int
}

// Stats returns a snapshot of the pool's current structure. Category keys
// in IdleByCategory are rendered with the same rule Prometheus labels use
// (categoryLabel), so the two surfaces stay comparable.
func (p *Pool[K, R]) Stats() Stats {
	p.queues.mu.Lock()
	idle := make(map[string]int, len(p.queues.buckets))
	for category, bucket := range p.queues.buckets {
		idle[categoryLabel(category)] = bucket.queue.len()
	}
	live := len(p.queues.buckets)
	p.queues.mu.Unlock()

	return Stats{
		CachedResources: p.cache.size(),
		LiveCategories:  live,
		IdleByCategory:  idle,
	}
}
