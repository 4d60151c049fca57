package indexstore

import (
	"time"

	"github.com/bdougie/vibe-check/pkg/aggregate"
	"github.com/bdougie/vibe-check/pkg/recorder"
)

// Run represents a single indexed benchmark run in the database.
type Run struct {
	ID            uint   `gorm:"primaryKey"`
	DiscoveryPath string `gorm:"not null;uniqueIndex:idx_runs_dp_run"`
	RunID         string `gorm:"not null;uniqueIndex:idx_runs_dp_run"`

	Model      string `gorm:"index"`
	Task       string `gorm:"index"`
	Difficulty string `gorm:"index"`
	Success    bool

	// Denormalized run metrics.
	CompletionTime     float64
	PromptsSent        int
	CharsSent          int
	CharsReceived      int
	HumanInterventions int
	FilesModified      int
	LinesAdded         int
	LinesRemoved       int

	// Repository baseline at run start. CompletedAt is derived from the
	// start time plus the run duration.
	Revision    string
	Dirty       bool
	StartedAt   float64
	CompletedAt float64

	IndexedAt time.Time
}

// FromRecord builds an index row from a parsed run record.
func FromRecord(discoveryPath, runID string, record *recorder.RunRecord) *Run {
	run := &Run{
		DiscoveryPath:      discoveryPath,
		RunID:              runID,
		Model:              record.Model,
		Task:               record.Task,
		Difficulty:         aggregate.Difficulty(record.Task),
		Success:            record.Success,
		CompletionTime:     record.CompletionTime,
		PromptsSent:        record.PromptsSent,
		CharsSent:          record.CharsSent,
		CharsReceived:      record.CharsReceived,
		HumanInterventions: record.HumanInterventions,
		FilesModified:      record.FilesModified,
		LinesAdded:         record.LinesAdded,
		LinesRemoved:       record.LinesRemoved,
		IndexedAt:          time.Now(),
	}

	if record.InitialRepoState != nil {
		run.Revision = record.InitialRepoState.Revision
		run.Dirty = record.InitialRepoState.Dirty
		run.StartedAt = record.InitialRepoState.CapturedAt

		if run.StartedAt > 0 {
			run.CompletedAt = run.StartedAt + record.CompletionTime
		}
	}

	return run
}

// Record rebuilds a run record from the indexed row. Session logs and
// per-file diffs are not indexed, so those fields are empty.
func (r *Run) Record() *recorder.RunRecord {
	record := &recorder.RunRecord{
		Model:              r.Model,
		Task:               r.Task,
		Success:            r.Success,
		PromptsSent:        r.PromptsSent,
		CharsSent:          r.CharsSent,
		CharsReceived:      r.CharsReceived,
		HumanInterventions: r.HumanInterventions,
		FilesModified:      r.FilesModified,
		LinesAdded:         r.LinesAdded,
		LinesRemoved:       r.LinesRemoved,
		CompletionTime:     r.CompletionTime,
	}

	if r.Revision != "" || r.StartedAt != 0 {
		record.InitialRepoState = &recorder.RepoState{
			Revision:   r.Revision,
			Dirty:      r.Dirty,
			CapturedAt: r.StartedAt,
		}
	}

	return record
}
