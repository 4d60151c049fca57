package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bdougie/vibe-check/pkg/aggregate"
	"github.com/bdougie/vibe-check/pkg/fsutil"
	"github.com/bdougie/vibe-check/pkg/recorder"
	"github.com/bdougie/vibe-check/pkg/sysinfo"
	"github.com/bdougie/vibe-check/pkg/tasks"
)

// BatchRunOutcome is the outcome of one model and task pairing in a batch.
type BatchRunOutcome struct {
	Model              string  `json:"model"`
	Task               string  `json:"task"`
	Success            bool    `json:"success"`
	Abandoned          bool    `json:"abandoned,omitempty"`
	Error              string  `json:"error,omitempty"`
	CompletionTime     float64 `json:"completion_time"`
	PromptsSent        int     `json:"prompts_sent"`
	HumanInterventions int     `json:"human_interventions"`
	FilesModified      int     `json:"files_modified"`
	LinesAdded         int     `json:"lines_added"`
	LinesRemoved       int     `json:"lines_removed"`
}

// BatchRankings orders the models of a batch by the headline metrics, best
// first.
type BatchRankings struct {
	Fastest             []string `json:"fastest"`
	FewestInterventions []string `json:"fewest_interventions"`
	HighestSuccessRate  []string `json:"highest_success_rate"`
}

// BatchSummary is written next to the run records after a batch finishes.
type BatchSummary struct {
	Generated  time.Time                   `json:"generated"`
	TotalTime  float64                     `json:"total_time"`
	Models     []string                    `json:"models"`
	Tasks      []string                    `json:"tasks"`
	Succeeded  int                         `json:"succeeded"`
	Failed     int                         `json:"failed"`
	Abandoned  int                         `json:"abandoned,omitempty"`
	System     *sysinfo.Info               `json:"system"`
	Runs       []BatchRunOutcome           `json:"runs"`
	ModelStats map[string]*aggregate.Stats `json:"model_stats"`
	Rankings   BatchRankings               `json:"rankings"`
}

// RunBatch runs every model against every task sequentially. Runs are
// interactive, so there is no parallel mode. Individual run failures do
// not stop the batch; context cancellation stops it between runs, and the
// summary still covers the runs that finished.
func (r *runner) RunBatch(ctx context.Context, models []string, taskList []tasks.Task) (*BatchSummary, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("no models to run")
	}

	if len(taskList) == 0 {
		return nil, fmt.Errorf("no tasks to run")
	}

	for _, model := range models {
		if err := tasks.ValidateModelName(model); err != nil {
			return nil, err
		}
	}

	start := time.Now()

	// Captured up front so a cancelled batch still carries system info.
	system := sysinfo.Capture(ctx, r.log)

	taskNames := make([]string, 0, len(taskList))
	for _, task := range taskList {
		taskNames = append(taskNames, task.Name)
	}

	total := len(models) * len(taskList)

	r.log.WithFields(logrus.Fields{
		"models": len(models),
		"tasks":  len(taskList),
		"runs":   total,
	}).Info("Starting batch")

	outcomes := make([]BatchRunOutcome, 0, total)
	records := make([]*recorder.RunRecord, 0, total)
	interrupted := false

loop:
	for _, model := range models {
		for _, task := range taskList {
			if ctx.Err() != nil {
				interrupted = true

				break loop
			}

			fmt.Fprintf(r.out, "\n[%d/%d] %s on %s\n", len(outcomes)+1, total, model, task.Name)

			outcome, record := r.runBatchTask(ctx, model, task)
			outcomes = append(outcomes, outcome)

			if record != nil {
				records = append(records, record)
			}
		}
	}

	summary := r.buildBatchSummary(models, taskNames, outcomes, records, system, time.Since(start))

	path, err := r.writeBatchSummary(summary)
	if err != nil {
		return nil, err
	}

	r.printBatchSummary(summary, path)

	if interrupted {
		return summary, fmt.Errorf("batch interrupted: %w", ctx.Err())
	}

	return summary, nil
}

// runBatchTask runs one model and task pairing, absorbing run errors so
// the batch continues.
func (r *runner) runBatchTask(ctx context.Context, model string, task tasks.Task) (BatchRunOutcome, *recorder.RunRecord) {
	outcome := BatchRunOutcome{Model: model, Task: task.Name}

	record, err := r.Run(ctx, &RunRequest{
		Model:    model,
		Task:     task.Name,
		TaskPath: task.Path,
	})
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"model": model,
			"task":  task.Name,
		}).Error("Run failed")

		outcome.Error = err.Error()

		return outcome, nil
	}

	if record == nil {
		outcome.Abandoned = true

		return outcome, nil
	}

	outcome.Success = record.Success
	outcome.CompletionTime = record.CompletionTime
	outcome.PromptsSent = record.PromptsSent
	outcome.HumanInterventions = record.HumanInterventions
	outcome.FilesModified = record.FilesModified
	outcome.LinesAdded = record.LinesAdded
	outcome.LinesRemoved = record.LinesRemoved

	return outcome, record
}

func (r *runner) buildBatchSummary(
	models, taskNames []string,
	outcomes []BatchRunOutcome,
	records []*recorder.RunRecord,
	system *sysinfo.Info,
	elapsed time.Duration,
) *BatchSummary {
	summary := &BatchSummary{
		Generated:  time.Now(),
		TotalTime:  elapsed.Seconds(),
		Models:     models,
		Tasks:      taskNames,
		System:     system,
		Runs:       outcomes,
		ModelStats: make(map[string]*aggregate.Stats),
	}

	for _, outcome := range outcomes {
		switch {
		case outcome.Abandoned:
			summary.Abandoned++
		case outcome.Success:
			summary.Succeeded++
		default:
			summary.Failed++
		}
	}

	if len(records) == 0 {
		return summary
	}

	for model, group := range r.agg.GroupBy(records, aggregate.ByModel) {
		summary.ModelStats[model] = r.agg.ComputeStats(group)
	}

	summary.Rankings = BatchRankings{
		Fastest:             r.agg.Rank(summary.ModelStats, aggregate.MetricMeanDuration, nil),
		FewestInterventions: r.agg.Rank(summary.ModelStats, aggregate.MetricInterventions, nil),
		HighestSuccessRate:  r.agg.Rank(summary.ModelStats, aggregate.MetricSuccessRate, nil),
	}

	return summary
}

// writeBatchSummary persists the summary into the results directory. The
// batch_summary_ prefix keeps these files out of run record discovery.
func (r *runner) writeBatchSummary(summary *BatchSummary) (string, error) {
	if err := fsutil.MkdirAll(r.cfg.ResultsDir, 0755, r.cfg.Owner); err != nil {
		return "", fmt.Errorf("creating results directory: %w", err)
	}

	name := fmt.Sprintf("batch_summary_%s.json", summary.Generated.Format("20060102_150405"))
	path := filepath.Join(r.cfg.ResultsDir, name)

	if err := fsutil.WriteJSON(path, summary, r.cfg.Owner); err != nil {
		return "", fmt.Errorf("writing batch summary: %w", err)
	}

	r.log.WithField("path", path).Info("Batch summary written")

	return path, nil
}

func (r *runner) printBatchSummary(summary *BatchSummary, path string) {
	fmt.Fprintf(r.out, "\n%s\n", separator)
	fmt.Fprintf(r.out, "Batch complete: %d succeeded, %d failed", summary.Succeeded, summary.Failed)

	if summary.Abandoned > 0 {
		fmt.Fprintf(r.out, ", %d abandoned", summary.Abandoned)
	}

	fmt.Fprintf(r.out, "\nTotal time: %.1fs\n", summary.TotalTime)

	if len(summary.Rankings.Fastest) > 0 {
		fmt.Fprintln(r.out, "\nRankings:")
		fmt.Fprintf(r.out, "  Fastest (mean duration): %s\n", strings.Join(summary.Rankings.Fastest, ", "))
		fmt.Fprintf(r.out, "  Fewest interventions:    %s\n", strings.Join(summary.Rankings.FewestInterventions, ", "))
		fmt.Fprintf(r.out, "  Highest success rate:    %s\n", strings.Join(summary.Rankings.HighestSuccessRate, ", "))
	}

	fmt.Fprintf(r.out, "\nSummary written to: %s\n", path)
	fmt.Fprintf(r.out, "%s\n", separator)
}
