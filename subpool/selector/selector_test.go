package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subpool/subpool/model"
)

func sub(url string, tier model.Tier, protection int) *model.SubscriptionState {
	return &model.SubscriptionState{URL: url, Name: url, Tier: tier, Protection: protection, LastSelectedWeek: -1}
}

func urls(subs []*model.SubscriptionState) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.URL
	}
	return out
}

func TestProtectedSubscriptionAlwaysSelected(t *testing.T) {
	s := sub("new", model.TierSuspended, model.NewSubscriptionProtection)

	// Three consecutive runs select it regardless of tier, then normal
	// tier logic applies.
	for run := 0; run < 3; run++ {
		selected := New(int64(run)).Select([]*model.SubscriptionState{s}, run)
		require.Len(t, selected, 1, "run %d", run)
	}
	assert.Zero(t, s.Protection)
	assert.Equal(t, 3, s.UseCount)

	selected := New(99).Select([]*model.SubscriptionState{s}, 3)
	assert.Empty(t, selected, "suspended tier after protection expires")
}

func TestDailyAlwaysAndSuspendedNever(t *testing.T) {
	daily := sub("daily", model.TierDaily, 0)
	suspended := sub("suspended", model.TierSuspended, 0)

	for seed := int64(0); seed < 20; seed++ {
		selected := New(seed).Select([]*model.SubscriptionState{daily, suspended}, int(seed))
		require.Equal(t, []string{"daily"}, urls(selected), "seed %d", seed)
	}
}

func TestSelectionDeterministicForSeed(t *testing.T) {
	build := func() []*model.SubscriptionState {
		return []*model.SubscriptionState{
			sub("a", model.TierOften, 0),
			sub("b", model.TierSometimes, 0),
			sub("c", model.TierOften, 0),
			sub("d", model.TierSometimes, 0),
		}
	}
	first := urls(New(42).Select(build(), 10))
	second := urls(New(42).Select(build(), 10))
	assert.Equal(t, first, second)
}

func TestSelectionPreservesInputOrder(t *testing.T) {
	subs := []*model.SubscriptionState{
		sub("a", model.TierDaily, 0),
		sub("b", model.TierDaily, 0),
		sub("c", model.TierDaily, 0),
	}
	assert.Equal(t, []string{"a", "b", "c"}, urls(New(1).Select(subs, 0)))
}

func TestRarelyWeeklyCadence(t *testing.T) {
	s := sub("rare", model.TierRarely, 0)

	// Week 1 (runs 7..13): selected once, then not again within the week.
	selected := New(1).Select([]*model.SubscriptionState{s}, 7)
	require.Len(t, selected, 1)
	assert.Equal(t, 1, s.LastSelectedWeek)

	selected = New(2).Select([]*model.SubscriptionState{s}, 8)
	assert.Empty(t, selected)

	// Next week it is due again.
	selected = New(3).Select([]*model.SubscriptionState{s}, 14)
	assert.Len(t, selected, 1)
}

func TestOftenProbabilityRoughlyTwoThirds(t *testing.T) {
	hits := 0
	const trials = 3000
	sel := New(7)
	for i := 0; i < trials; i++ {
		s := sub("o", model.TierOften, 0)
		if len(sel.Select([]*model.SubscriptionState{s}, 0)) == 1 {
			hits++
		}
	}
	ratio := float64(hits) / trials
	assert.InDelta(t, 2.0/3.0, ratio, 0.05)
}

func TestNewForDayIsStableWithinADay(t *testing.T) {
	day := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	later := day.Add(9 * time.Hour)

	build := func() []*model.SubscriptionState {
		out := make([]*model.SubscriptionState, 0, 10)
		for _, u := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
			out = append(out, sub(u, model.TierSometimes, 0))
		}
		return out
	}
	assert.Equal(t,
		urls(NewForDay(day).Select(build(), 3)),
		urls(NewForDay(later).Select(build(), 3)))
}
