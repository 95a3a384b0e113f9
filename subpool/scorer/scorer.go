// Package scorer computes subscription scores from run history. It is pure:
// input is the prior history plus this run's entry, output is a score and
// tier. The store is the only side-effecting boundary.
package scorer

import (
	"math"

	"subpool/subpool/model"
)

// Signal weights. They sum to 1; the score is the weighted sum times 100.
const (
	weightSuccessRate    = 0.40
	weightLatencyQuality = 0.30
	weightVolume         = 0.20
	weightStability      = 0.10
)

// targetValid is the valid-node count at which the volume signal saturates.
const targetValid = 20

// signalWindow is how many trailing runs feed the averaged signals.
const signalWindow = 5

type Scorer struct {
	maxLatencyMS float64
}

func New(maxLatencyMS int) *Scorer {
	if maxLatencyMS <= 0 {
		maxLatencyMS = 2000
	}
	return &Scorer{maxLatencyMS: float64(maxLatencyMS)}
}

// Score computes the current score in [0, 100] from a run history, newest
// entries last. An empty history scores 0.
func (sc *Scorer) Score(history []model.HistoryEntry) int {
	if len(history) == 0 {
		return 0
	}
	window := history
	if len(window) > signalWindow {
		window = window[len(window)-signalWindow:]
	}

	var successSum, qualitySum float64
	validCounts := make([]float64, 0, len(window))
	for _, h := range window {
		successSum += sc.successRate(h)
		qualitySum += sc.latencyQuality(h)
		validCounts = append(validCounts, float64(h.ValidNodes))
	}
	successRate := successSum / float64(len(window))
	latencyQuality := qualitySum / float64(len(window))

	last := window[len(window)-1]
	volume := math.Min(1, float64(last.ValidNodes)/targetValid)

	total := weightSuccessRate*successRate +
		weightLatencyQuality*latencyQuality +
		weightVolume*volume +
		weightStability*stability(validCounts)

	score := int(math.Round(total * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// successRate is valid/total for a run; a failed fetch contributes 0.
func (sc *Scorer) successRate(h model.HistoryEntry) float64 {
	if !h.FetchOK {
		return 0
	}
	total := h.TotalNodes
	if total < 1 {
		total = 1
	}
	return float64(h.ValidNodes) / float64(total)
}

// latencyQuality maps average latency onto [0, 1]. A failed fetch or a run
// with no valid nodes contributes 0: an empty latency average must not read
// as instantaneous.
func (sc *Scorer) latencyQuality(h model.HistoryEntry) float64 {
	if !h.FetchOK || h.ValidNodes == 0 {
		return 0
	}
	return math.Max(0, 1-h.AvgLatencyMS/sc.maxLatencyMS)
}

// stability is 1 - stddev/max(mean, 1) over the window's valid counts,
// clamped to [0, 1].
func stability(counts []float64) float64 {
	if len(counts) == 0 {
		return 0
	}
	var sum float64
	for _, c := range counts {
		sum += c
	}
	mean := sum / float64(len(counts))

	var variance float64
	for _, c := range counts {
		variance += (c - mean) * (c - mean)
	}
	stddev := math.Sqrt(variance / float64(len(counts)))

	s := 1 - stddev/math.Max(mean, 1)
	return math.Max(0, math.Min(1, s))
}

// TierOf assigns the usage-frequency tier for a score.
func TierOf(score int) model.Tier {
	switch {
	case score >= 90:
		return model.TierDaily
	case score >= 70:
		return model.TierOften
	case score >= 50:
		return model.TierSometimes
	case score >= 30:
		return model.TierRarely
	default:
		return model.TierSuspended
	}
}
