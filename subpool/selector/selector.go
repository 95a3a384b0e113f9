// Package selector decides, per run, which subscriptions to fetch. The
// probabilistic tier draws come from a PRNG seeded by the wall-clock day, so
// re-running within one day is deterministic.
package selector

import (
	"math/rand"
	"time"

	"subpool/internal/shared/logger"
	"subpool/subpool/model"
)

type Selector struct {
	rng *rand.Rand
}

// New creates a selector with an explicit seed.
func New(seed int64) *Selector {
	return &Selector{rng: rand.New(rand.NewSource(seed))}
}

// NewForDay seeds from the given wall-clock day.
func NewForDay(t time.Time) *Selector {
	t = t.UTC()
	return New(int64(t.Year())*1000 + int64(t.YearDay()))
}

// Select returns the subscriptions to fetch this run, in input order. It
// mutates selected states in memory (protection counter, use count, last
// selected week); the mutations reach disk only with the end-of-run persist.
func (s *Selector) Select(subs []*model.SubscriptionState, runNumber int) []*model.SubscriptionState {
	l := logger.WithComponent("Selector")
	week := runNumber / 7

	var selected []*model.SubscriptionState
	for _, sub := range subs {
		if !s.shouldSelect(sub, week) {
			continue
		}
		if sub.Protection > 0 {
			sub.Protection--
		}
		sub.UseCount++
		sub.LastSelectedWeek = week
		selected = append(selected, sub)
	}

	l.Info().Int("selected", len(selected)).Int("total", len(subs)).Int("week", week).Msg("Subscriptions selected.")
	return selected
}

func (s *Selector) shouldSelect(sub *model.SubscriptionState, week int) bool {
	// A protected (newly added) subscription is always selected.
	if sub.Protection > 0 {
		return true
	}
	switch sub.Tier {
	case model.TierDaily:
		return true
	case model.TierOften:
		return s.rng.Float64() < 2.0/3.0
	case model.TierSometimes:
		return s.rng.Float64() < 1.0/3.0
	case model.TierRarely:
		return sub.LastSelectedWeek != week
	case model.TierSuspended:
		return false
	}
	return true
}
