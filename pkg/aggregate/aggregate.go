package aggregate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bdougie/vibe-check/pkg/recorder"
)

// KeyFunc derives a grouping key from a run record.
type KeyFunc func(*recorder.RunRecord) string

// Aggregator loads persisted run records and computes cross-run statistics.
// It is the only place statistics are computed; reports, batch summaries and
// the API all go through it.
type Aggregator interface {
	// LoadAll scans a results directory and parses every record file.
	// Malformed files are skipped with a warning. Record order is
	// unspecified.
	LoadAll(dir string) ([]*recorder.RunRecord, error)
	// GroupBy buckets records by the given key. Keys with no records are
	// absent from the result.
	GroupBy(records []*recorder.RunRecord, key KeyFunc) map[string][]*recorder.RunRecord
	// ComputeStats aggregates a group of records. An empty group yields a
	// zero-value Stats with Count 0.
	ComputeStats(records []*recorder.RunRecord) *Stats
	// Rank orders group keys by a metric. Values within rankEpsilon are
	// tied and fall back to tieBreak (lexicographic when nil).
	Rank(groups map[string]*Stats, metric Metric, tieBreak func(a, b string) bool) []string
	// BuildReport groups records by the named key ("model", "task" or
	// "difficulty") and computes per-group and overall statistics.
	BuildReport(records []*recorder.RunRecord, groupKey string) (*Report, error)
	// Export serializes a report in the given format.
	Export(report *Report, format Format, w io.Writer) error
}

type aggregator struct {
	log logrus.FieldLogger
}

var _ Aggregator = (*aggregator)(nil)

// NewAggregator creates an Aggregator.
func NewAggregator(log logrus.FieldLogger) Aggregator {
	return &aggregator{
		log: log.WithField("component", "aggregate"),
	}
}

func (g *aggregator) LoadAll(dir string) ([]*recorder.RunRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading results directory: %w", err)
	}

	records := make([]*recorder.RunRecord, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		// Batch summaries live alongside run records but are not records.
		if strings.HasPrefix(entry.Name(), "batch_summary_") {
			continue
		}

		record, err := LoadRecord(filepath.Join(dir, entry.Name()))
		if err != nil {
			g.log.WithError(err).WithField("file", entry.Name()).Warn("Skipping malformed result file")

			continue
		}

		records = append(records, record)
	}

	return records, nil
}

// LoadRecord parses a single run record file.
func LoadRecord(path string) (*recorder.RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result file: %w", err)
	}

	return ParseRecord(data)
}

// ParseRecord parses run record bytes.
func ParseRecord(data []byte) (*recorder.RunRecord, error) {
	var record recorder.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parsing result file: %w", err)
	}

	if record.Model == "" || record.Task == "" {
		return nil, fmt.Errorf("result file missing model or task")
	}

	return &record, nil
}

func (g *aggregator) GroupBy(records []*recorder.RunRecord, key KeyFunc) map[string][]*recorder.RunRecord {
	groups := make(map[string][]*recorder.RunRecord)

	for _, record := range records {
		k := key(record)
		groups[k] = append(groups[k], record)
	}

	return groups
}

// ByModel groups records by model name.
func ByModel(r *recorder.RunRecord) string { return r.Model }

// ByTask groups records by task name.
func ByTask(r *recorder.RunRecord) string { return r.Task }

// ByDifficulty groups records by the difficulty segment of the task name.
func ByDifficulty(r *recorder.RunRecord) string { return Difficulty(r.Task) }

// Difficulty extracts the difficulty tag from a task name. Task names start
// with their difficulty directory ("easy/fix-typo") or prefix
// ("medium_refactor"); anything else maps to "unknown".
func Difficulty(task string) string {
	head := task
	if idx := strings.IndexAny(task, "/_"); idx >= 0 {
		head = task[:idx]
	}

	switch strings.ToLower(head) {
	case "easy", "medium", "hard":
		return strings.ToLower(head)
	}

	return "unknown"
}

// KeyFor resolves a group key name to its KeyFunc.
func KeyFor(name string) (KeyFunc, error) {
	switch name {
	case "model":
		return ByModel, nil
	case "task":
		return ByTask, nil
	case "difficulty":
		return ByDifficulty, nil
	}

	return nil, fmt.Errorf("unknown group key %q", name)
}
