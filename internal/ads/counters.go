package ads

import "sync/atomic"

// Counters tracks facade activity for the debug snapshot.
type Counters struct {
	requestsTotal            atomic.Int64
	mutationsTotal           atomic.Int64
	upstreamRetriesTotal     atomic.Int64
	rateLimitHitsTotal       atomic.Int64
	cooldownActivationsTotal atomic.Int64
	staleServesTotal         atomic.Int64
	policyWarningsTotal      atomic.Int64
	policyRejectionsTotal    atomic.Int64
	isolationDenialsTotal    atomic.Int64
}

func NewCounters() *Counters { return &Counters{} }

// CountUpstreamRetry records one upstream retry attempt. Exposed so the
// graph client's retry hook can feed the snapshot.
func (c *Counters) CountUpstreamRetry() {
	c.upstreamRetriesTotal.Add(1)
}

// Snapshot returns the current counter values keyed by metric name.
func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"requests_total":             c.requestsTotal.Load(),
		"mutations_total":            c.mutationsTotal.Load(),
		"upstream_retries_total":     c.upstreamRetriesTotal.Load(),
		"rate_limit_hits_total":      c.rateLimitHitsTotal.Load(),
		"cooldown_activations_total": c.cooldownActivationsTotal.Load(),
		"stale_serves_total":         c.staleServesTotal.Load(),
		"policy_warnings_total":      c.policyWarningsTotal.Load(),
		"policy_rejections_total":    c.policyRejectionsTotal.Load(),
		"isolation_denials_total":    c.isolationDenialsTotal.Load(),
	}
}
