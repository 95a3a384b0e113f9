package model

import "time"

// FetchResult is one subscription retrieval outcome.
type FetchResult struct {
	URL     string
	Body    []byte
	Err     error
	Elapsed time.Duration
}

// SubscriptionStats is the per-subscription slice of a validation run.
type SubscriptionStats struct {
	Total        int     `json:"total"`
	Valid        int     `json:"valid"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// ValidationReport is the aggregate outcome of one validation run.
type ValidationReport struct {
	TotalNodes      int
	ValidNodes      int
	PerSubscription map[string]*SubscriptionStats
	Duration        time.Duration
}

// SuccessRate is valid/total, 0 for an empty run.
func (r *ValidationReport) SuccessRate() float64 {
	if r.TotalNodes == 0 {
		return 0
	}
	return float64(r.ValidNodes) / float64(r.TotalNodes)
}
