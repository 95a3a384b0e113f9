package model

import "time"

// Tier is the usage-frequency label derived from a subscription's score.
type Tier string

const (
	TierDaily     Tier = "daily"
	TierOften     Tier = "often"
	TierSometimes Tier = "sometimes"
	TierRarely    Tier = "rarely"
	TierSuspended Tier = "suspended"
)

// NewSubscriptionProtection is the number of runs a newly added subscription
// is selected unconditionally, regardless of its score.
const NewSubscriptionProtection = 3

// HistoryLimit caps the per-subscription run history.
const HistoryLimit = 20

// HistoryEntry records one run's outcome for a subscription.
type HistoryEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	TotalNodes   int       `json:"total_nodes"`
	ValidNodes   int       `json:"valid_nodes"`
	AvgLatencyMS float64   `json:"avg_latency_ms"`
	FetchOK      bool      `json:"fetch_ok"`
}

// SubscriptionState is the persistent per-subscription record. It is mutated
// only by the selector (counters) and the scorer (score, tier, history), at
// most once per run.
type SubscriptionState struct {
	URL          string         `json:"url"`
	Name         string         `json:"name"`
	CreatedAt    time.Time      `json:"created_at"`
	UseCount     int            `json:"use_count"`
	SuccessCount int            `json:"success_count"`
	History      []HistoryEntry `json:"history,omitempty"`

	Score int  `json:"score"`
	Tier  Tier `json:"tier"`

	// Protection is decremented on each run the subscription is selected,
	// floor 0. While positive the subscription is always selected.
	Protection int `json:"protection"`

	// LastSelectedWeek is the global week number (run_number / 7) of the most
	// recent selection, used for the rarely-tier cadence.
	LastSelectedWeek int `json:"last_selected_week"`
}

// LastRuns returns up to n most recent history entries, oldest first.
func (s *SubscriptionState) LastRuns(n int) []HistoryEntry {
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}
