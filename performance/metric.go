package performance

import (
	"math"
	"slices"
	"time"
)

// Metric is one completed guarded operation. Immutable once recorded; its
// lifecycle ends when it is flushed to the sink and evicted from the buffer.
type Metric struct {
	// Operation is the logical operation name.
	Operation string
	// Variant identifies which backend implementation answered.
	Variant string
	// Duration is how long the operation took.
	Duration time.Duration
	// Success reports whether the operation completed without error.
	Success bool
	// Timestamp is when the operation completed.
	Timestamp time.Time
	// CorrelationID joins the metric with the logs of the same invocation.
	CorrelationID string
	// ErrorKind classifies the failure, when there was one.
	ErrorKind string
}

// Stats summarizes the metrics of one operation (optionally one variant)
// inside a time window.
type Stats struct {
	Count     int
	Successes int
	Failures  int
	Mean      time.Duration
	Min       time.Duration
	Max       time.Duration
	P50       time.Duration
	P95       time.Duration
	P99       time.Duration
	// ErrorRate is a percentage in [0, 100].
	ErrorRate float64
}

// Comparison is the outcome of comparing two backend variants of the same
// operation over a time window.
type Comparison struct {
	Operation string
	Baseline  string
	Candidate string

	BaselineStats  Stats
	CandidateStats Stats

	// SpeedImprovement is (baseline.Mean - candidate.Mean) / baseline.Mean * 100:
	// positive when the candidate is faster.
	SpeedImprovement float64
	// ErrorRateDelta is candidate.ErrorRate - baseline.ErrorRate in
	// percentage points: positive when the candidate fails more.
	ErrorRateDelta float64

	Recommendation string
}

// Recommendation values produced by CompareVariants.
const (
	// RecommendationInsufficientData means one side has fewer samples than
	// the configured minimum.
	RecommendationInsufficientData = "insufficient data"
	// RecommendationAdopt means the candidate is faster beyond the adoption
	// threshold without a worse error rate.
	RecommendationAdopt = "adopt"
	// RecommendationInvestigate means the candidate is slower beyond the
	// regression threshold or fails notably more often.
	RecommendationInvestigate = "investigate"
	// RecommendationNeutral means neither threshold was crossed.
	RecommendationNeutral = "neutral"
)

// Percentile returns the p-th percentile of durations using the nearest-rank
// method: sort ascending, index = ceil(p/100 * n) - 1, clamped to [0, n-1].
// An empty input yields 0.
//
// Nearest-rank is pinned deliberately: interpolating methods give different
// values for the same input, and downstream dashboards assume this one.
func Percentile(durations []time.Duration, p float64) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}

	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return sorted[idx]
}

// computeStats builds a Stats summary from a slice of metrics.
func computeStats(metrics []Metric) Stats {
	stats := Stats{Count: len(metrics)}
	if stats.Count == 0 {
		return stats
	}

	durations := make([]time.Duration, 0, len(metrics))

	var total time.Duration

	stats.Min = metrics[0].Duration
	stats.Max = metrics[0].Duration

	for _, m := range metrics {
		durations = append(durations, m.Duration)
		total += m.Duration

		if m.Duration < stats.Min {
			stats.Min = m.Duration
		}

		if m.Duration > stats.Max {
			stats.Max = m.Duration
		}

		if m.Success {
			stats.Successes++
		} else {
			stats.Failures++
		}
	}

	stats.Mean = total / time.Duration(stats.Count)
	stats.P50 = Percentile(durations, 50)
	stats.P95 = Percentile(durations, 95)
	stats.P99 = Percentile(durations, 99)
	stats.ErrorRate = float64(stats.Failures) / float64(stats.Count) * 100

	return stats
}
