package aggregate

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/bdougie/vibe-check/pkg/recorder"
)

// Format selects the export serialization.
type Format string

const (
	// FormatJSON is the structured export: nested per-group statistics
	// plus the records they were computed from.
	FormatJSON Format = "json"
	// FormatCSV is the flat tabular export: one row per run record.
	FormatCSV Format = "csv"
)

// ParseFormat validates an export format name from user input.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatCSV:
		return Format(s), nil
	}

	return "", fmt.Errorf("unknown export format %q", s)
}

// GroupReport contains the statistics for one group and the records behind
// them.
type GroupReport struct {
	Stats   *Stats                `json:"stats"`
	Records []*recorder.RunRecord `json:"records"`
}

// Report is the structured aggregate output. It is recomputed from the
// record set on every invocation and only persisted as an export artifact.
type Report struct {
	Generated time.Time               `json:"generated"`
	GroupKey  string                  `json:"group_key"`
	Overall   *Stats                  `json:"overall"`
	Groups    map[string]*GroupReport `json:"groups"`
}

func (g *aggregator) BuildReport(records []*recorder.RunRecord, groupKey string) (*Report, error) {
	key, err := KeyFor(groupKey)
	if err != nil {
		return nil, err
	}

	groups := g.GroupBy(records, key)

	report := &Report{
		Generated: time.Now().UTC(),
		GroupKey:  groupKey,
		Overall:   g.ComputeStats(records),
		Groups:    make(map[string]*GroupReport, len(groups)),
	}

	for k, group := range groups {
		report.Groups[k] = &GroupReport{
			Stats:   g.ComputeStats(group),
			Records: group,
		}
	}

	return report, nil
}

func (g *aggregator) Export(report *Report, format Format, w io.Writer) error {
	switch format {
	case FormatJSON:
		return exportJSON(report, w)
	case FormatCSV:
		return exportCSV(report, w)
	}

	return fmt.Errorf("unknown export format %q", format)
}

func exportJSON(report *Report, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	data = append(data, '\n')

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	return nil
}

// csvColumns is the fixed header of the flat tabular export. Column order
// matches the col* indexes below.
var csvColumns = []string{
	"model",
	"task",
	"difficulty",
	"success",
	"completion_time",
	"prompts_sent",
	"chars_sent",
	"chars_received",
	"human_interventions",
	"files_modified",
	"lines_added",
	"lines_removed",
}

const (
	colModel = iota
	colTask
	colDifficulty
	colSuccess
	colCompletionTime
	colPromptsSent
	colCharsSent
	colCharsReceived
	colHumanInterventions
	colFilesModified
	colLinesAdded
	colLinesRemoved
)

func exportCSV(report *Report, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvColumns); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	// Iterate groups in sorted key order so the export is deterministic.
	keys := make([]string, 0, len(report.Groups))
	for key := range report.Groups {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		for _, record := range report.Groups[key].Records {
			row := []string{
				record.Model,
				record.Task,
				Difficulty(record.Task),
				strconv.FormatBool(record.Success),
				strconv.FormatFloat(record.CompletionTime, 'g', -1, 64),
				strconv.Itoa(record.PromptsSent),
				strconv.Itoa(record.CharsSent),
				strconv.Itoa(record.CharsReceived),
				strconv.Itoa(record.HumanInterventions),
				strconv.Itoa(record.FilesModified),
				strconv.Itoa(record.LinesAdded),
				strconv.Itoa(record.LinesRemoved),
			}

			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing csv row: %w", err)
			}
		}
	}

	cw.Flush()

	return cw.Error()
}

// LoadReport re-reads a structured export.
func LoadReport(r io.Reader) (*Report, error) {
	var report Report
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}

	return &report, nil
}

// LoadCSV re-reads a flat tabular export. Recomputing statistics from the
// returned records matches the original computation.
func LoadCSV(r io.Reader) ([]*recorder.RunRecord, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	if !slices.Equal(header, csvColumns) {
		return nil, fmt.Errorf("unexpected csv header: %v", header)
	}

	records := make([]*recorder.RunRecord, 0)

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("reading csv row: %w", err)
		}

		record, err := recordFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(records)+1, err)
		}

		records = append(records, record)
	}

	return records, nil
}

func recordFromRow(row []string) (*recorder.RunRecord, error) {
	record := &recorder.RunRecord{
		Model: row[colModel],
		Task:  row[colTask],
	}

	if record.Model == "" || record.Task == "" {
		return nil, fmt.Errorf("missing model or task")
	}

	success, err := strconv.ParseBool(row[colSuccess])
	if err != nil {
		return nil, fmt.Errorf("parsing success: %w", err)
	}

	record.Success = success

	completionTime, err := strconv.ParseFloat(row[colCompletionTime], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing completion_time: %w", err)
	}

	record.CompletionTime = completionTime

	counters := []*int{
		&record.PromptsSent,
		&record.CharsSent,
		&record.CharsReceived,
		&record.HumanInterventions,
		&record.FilesModified,
		&record.LinesAdded,
		&record.LinesRemoved,
	}

	for i, dst := range counters {
		v, err := strconv.Atoi(row[colPromptsSent+i])
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", csvColumns[colPromptsSent+i], err)
		}

		*dst = v
	}

	return record, nil
}
