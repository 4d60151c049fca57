package aggregate

import (
	"fmt"
	"math"
	"sort"

	"github.com/bdougie/vibe-check/pkg/recorder"
)

// Stats contains aggregated statistics for a group of run records.
// Durations are in seconds.
type Stats struct {
	Count                int     `json:"count"`
	Successes            int     `json:"successes"`
	SuccessRate          float64 `json:"success_rate"`
	MeanDuration         float64 `json:"mean_duration"`
	MedianDuration       float64 `json:"median_duration"`
	StdDevDuration       float64 `json:"stddev_duration"`
	MinDuration          float64 `json:"min_duration"`
	MaxDuration          float64 `json:"max_duration"`
	MeanPrompts          float64 `json:"mean_prompts"`
	MeanInterventions    float64 `json:"mean_interventions"`
	MaxInterventions     int     `json:"max_interventions"`
	ZeroInterventionRate float64 `json:"zero_intervention_rate"`
	MeanFilesModified    float64 `json:"mean_files_modified"`
	MeanLinesAdded       float64 `json:"mean_lines_added"`
	MeanLinesRemoved     float64 `json:"mean_lines_removed"`
	TotalLinesAdded      int     `json:"total_lines_added"`
	TotalLinesRemoved    int     `json:"total_lines_removed"`
}

// Metric selects the statistic used to rank groups.
type Metric string

const (
	// MetricMeanDuration ranks by mean completion time, fastest first.
	MetricMeanDuration Metric = "mean_duration"
	// MetricMedianDuration ranks by median completion time, fastest first.
	MetricMedianDuration Metric = "median_duration"
	// MetricSuccessRate ranks by success rate, highest first.
	MetricSuccessRate Metric = "success_rate"
	// MetricInterventions ranks by mean interventions, fewest first.
	MetricInterventions Metric = "interventions"
	// MetricPrompts ranks by mean prompts, fewest first.
	MetricPrompts Metric = "prompts"
)

// rankEpsilon bounds the float comparison when deciding ranking ties.
const rankEpsilon = 1e-9

// ParseMetric validates a metric name from user input.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricMeanDuration, MetricMedianDuration, MetricSuccessRate,
		MetricInterventions, MetricPrompts:
		return Metric(s), nil
	}

	return "", fmt.Errorf("unknown ranking metric %q", s)
}

func (g *aggregator) ComputeStats(records []*recorder.RunRecord) *Stats {
	stats := &Stats{}
	if len(records) == 0 {
		return stats
	}

	n := len(records)
	stats.Count = n

	durations := make([]float64, 0, n)

	var prompts, interventions, files, added, removed, zeroInterventions int

	for _, record := range records {
		durations = append(durations, record.CompletionTime)

		if record.Success {
			stats.Successes++
		}

		prompts += record.PromptsSent
		interventions += record.HumanInterventions

		if record.HumanInterventions == 0 {
			zeroInterventions++
		}

		if record.HumanInterventions > stats.MaxInterventions {
			stats.MaxInterventions = record.HumanInterventions
		}

		files += record.FilesModified
		added += record.LinesAdded
		removed += record.LinesRemoved
	}

	// Sort before accumulating so the result is independent of load order.
	sort.Float64s(durations)

	// Welford's online algorithm for a numerically stable variance.
	var mean, m2 float64

	for i, d := range durations {
		delta := d - mean
		mean += delta / float64(i+1)
		m2 += delta * (d - mean)
	}

	stats.SuccessRate = float64(stats.Successes) / float64(n)
	stats.MeanDuration = mean
	stats.MedianDuration = medianSorted(durations)
	stats.StdDevDuration = math.Sqrt(m2 / float64(n))
	stats.MinDuration = durations[0]
	stats.MaxDuration = durations[n-1]
	stats.MeanPrompts = float64(prompts) / float64(n)
	stats.MeanInterventions = float64(interventions) / float64(n)
	stats.ZeroInterventionRate = float64(zeroInterventions) / float64(n)
	stats.MeanFilesModified = float64(files) / float64(n)
	stats.MeanLinesAdded = float64(added) / float64(n)
	stats.MeanLinesRemoved = float64(removed) / float64(n)
	stats.TotalLinesAdded = added
	stats.TotalLinesRemoved = removed

	return stats
}

// medianSorted returns the median of an already sorted slice.
func medianSorted(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}

	if n%2 == 1 {
		return sorted[n/2]
	}

	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// metricValue returns the scalar used for ranking and whether larger values
// rank first.
func metricValue(stats *Stats, metric Metric) (float64, bool) {
	switch metric {
	case MetricMedianDuration:
		return stats.MedianDuration, false
	case MetricSuccessRate:
		return stats.SuccessRate, true
	case MetricInterventions:
		return stats.MeanInterventions, false
	case MetricPrompts:
		return stats.MeanPrompts, false
	default:
		return stats.MeanDuration, false
	}
}

func (g *aggregator) Rank(groups map[string]*Stats, metric Metric, tieBreak func(a, b string) bool) []string {
	keys := make([]string, 0, len(groups))

	for key, stats := range groups {
		if stats == nil {
			continue
		}

		keys = append(keys, key)
	}

	if tieBreak == nil {
		tieBreak = func(x, y string) bool { return x < y }
	}

	// Establish the tie order first, then stable-sort on the metric alone.
	// Near-equal values can chain (a ties b, b ties c, a beats c), so the
	// epsilon comparison is not a total order; starting from the tie order
	// and keeping ties in place makes the result a pure function of the
	// group contents, independent of map iteration order.
	sort.Slice(keys, func(i, j int) bool { return tieBreak(keys[i], keys[j]) })

	sort.SliceStable(keys, func(i, j int) bool {
		vi, descending := metricValue(groups[keys[i]], metric)
		vj, _ := metricValue(groups[keys[j]], metric)

		if math.Abs(vi-vj) <= rankEpsilon {
			return false
		}

		if descending {
			return vi > vj
		}

		return vi < vj
	})

	return keys
}
