// Package report renders a markdown analysis of benchmark results.
package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bdougie/vibe-check/pkg/aggregate"
	"github.com/bdougie/vibe-check/pkg/recorder"
)

// DefaultMaxChars caps report output so it stays pasteable into issue
// trackers and chat tools.
const DefaultMaxChars = 65000

// reserveChars is held back from the budget for the truncation marker and
// the fixed trailing sections.
const reserveChars = 600

// Generate renders a markdown report over the given run records. Group
// tables stop emitting rows once maxChars is reached; maxChars <= 0 means
// unlimited.
func Generate(log logrus.FieldLogger, records []*recorder.RunRecord, maxChars int) (string, error) {
	if len(records) == 0 {
		return "", errors.New("no run records to report on")
	}

	agg := aggregate.NewAggregator(log)
	overall := agg.ComputeStats(records)

	var sb strings.Builder

	sb.Grow(4096)

	writeTitle(&sb, len(records))
	writeOverview(&sb, overall)

	writeGroupSection(&sb, agg, "Results by Model", "Model",
		agg.GroupBy(records, aggregate.ByModel), maxChars)
	writeGroupSection(&sb, agg, "Results by Task", "Task",
		agg.GroupBy(records, aggregate.ByTask), maxChars)
	writeGroupSection(&sb, agg, "Results by Difficulty", "Difficulty",
		agg.GroupBy(records, aggregate.ByDifficulty), maxChars)

	writeInterventions(&sb, overall)
	writeCodeChanges(&sb, overall)

	return sb.String(), nil
}

func writeTitle(sb *strings.Builder, runs int) {
	fmt.Fprintf(sb, "# Benchmark Analysis (%d runs)\n\n", runs)
	fmt.Fprintf(sb, "Generated %s\n\n",
		time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
}

func writeOverview(sb *strings.Builder, stats *aggregate.Stats) {
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(sb, "| Total runs | %d |\n", stats.Count)
	fmt.Fprintf(sb, "| Successful | %d (%s) |\n",
		stats.Successes, formatPercent(stats.SuccessRate))
	fmt.Fprintf(sb, "| Mean duration | %s |\n", formatSeconds(stats.MeanDuration))
	fmt.Fprintf(sb, "| Median duration | %s |\n", formatSeconds(stats.MedianDuration))

	if stats.Count > 1 {
		fmt.Fprintf(sb, "| Duration spread | %s to %s (stddev %s) |\n",
			formatSeconds(stats.MinDuration),
			formatSeconds(stats.MaxDuration),
			formatSeconds(stats.StdDevDuration))
	}

	fmt.Fprintf(sb, "| Mean prompts per run | %.1f |\n", stats.MeanPrompts)

	sb.WriteByte('\n')
}

func writeGroupSection(
	sb *strings.Builder,
	agg aggregate.Aggregator,
	title, keyHeader string,
	groups map[string][]*recorder.RunRecord,
	maxChars int,
) {
	if len(groups) == 0 {
		return
	}

	fmt.Fprintf(sb, "## %s\n\n", title)
	fmt.Fprintf(sb, "| %s | Runs | Success | Mean Time | Median Time "+
		"| Prompts | Interventions |\n", keyHeader)
	sb.WriteString("|---|---|---|---|---|---|---|\n")

	// Sort keys for deterministic output.
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for i, key := range keys {
		stats := agg.ComputeStats(groups[key])

		row := fmt.Sprintf("| %s | %d | %s | %s | %s | %.1f | %.1f |\n",
			key,
			stats.Count,
			formatPercent(stats.SuccessRate),
			formatSeconds(stats.MeanDuration),
			formatSeconds(stats.MedianDuration),
			stats.MeanPrompts,
			stats.MeanInterventions,
		)

		if maxChars > 0 && sb.Len()+len(row)+reserveChars > maxChars {
			remaining := len(keys) - i
			fmt.Fprintf(sb,
				"\n*%d more row(s) not shown (output truncated at %d chars)*\n",
				remaining, maxChars)

			break
		}

		sb.WriteString(row)
	}

	sb.WriteByte('\n')
}

func writeInterventions(sb *strings.Builder, stats *aggregate.Stats) {
	sb.WriteString("## Interventions\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(sb, "| Mean per run | %.1f |\n", stats.MeanInterventions)
	fmt.Fprintf(sb, "| Max in one run | %d |\n", stats.MaxInterventions)
	fmt.Fprintf(sb, "| Runs without intervention | %s |\n",
		formatPercent(stats.ZeroInterventionRate))

	sb.WriteByte('\n')
}

func writeCodeChanges(sb *strings.Builder, stats *aggregate.Stats) {
	sb.WriteString("## Code Changes\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(sb, "| Mean files modified | %.1f |\n", stats.MeanFilesModified)
	fmt.Fprintf(sb, "| Mean lines added | %.1f |\n", stats.MeanLinesAdded)
	fmt.Fprintf(sb, "| Mean lines removed | %.1f |\n", stats.MeanLinesRemoved)
	fmt.Fprintf(sb, "| Total lines added | %d |\n", stats.TotalLinesAdded)
	fmt.Fprintf(sb, "| Total lines removed | %d |\n", stats.TotalLinesRemoved)

	sb.WriteByte('\n')
}

func formatPercent(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

// formatSeconds renders a duration given in seconds, e.g. "4m 32s".
func formatSeconds(secs float64) string {
	d := time.Duration(secs * float64(time.Second))
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}

	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	return fmt.Sprintf("%ds", seconds)
}
