package recorder

import (
	"time"

	"github.com/bdougie/vibe-check/pkg/git"
)

// Event kinds appended to a run's session log.
const (
	EventRunStarted        = "run_started"
	EventInteraction       = "interaction"
	EventIntervention      = "intervention"
	EventRunCompleted      = "run_completed"
	EventDiffCaptureFailed = "diff_capture_failed"
)

// RepoState is the repository baseline captured when a run starts.
type RepoState struct {
	Revision   string  `json:"revision"`
	Dirty      bool    `json:"dirty"`
	CapturedAt float64 `json:"captured_at"`
}

// Event is a single entry in a run's session log. Timestamps are UNIX
// seconds and non-decreasing in append order.
type Event struct {
	Timestamp float64        `json:"timestamp"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// RunRecord is the persisted outcome of one benchmark run. It is written
// exactly once, at completion, and never modified afterwards. Code-change
// counters are derived from the per-file diff so that FilesModified always
// equals len(GitDiffDetails) and the line totals equal the per-file sums.
type RunRecord struct {
	Model              string           `json:"model"`
	Task               string           `json:"task"`
	Success            bool             `json:"success"`
	PromptsSent        int              `json:"prompts_sent"`
	CharsSent          int              `json:"chars_sent"`
	CharsReceived      int              `json:"chars_received"`
	HumanInterventions int              `json:"human_interventions"`
	FilesModified      int              `json:"files_modified"`
	LinesAdded         int              `json:"lines_added"`
	LinesRemoved       int              `json:"lines_removed"`
	CompletionTime     float64          `json:"completion_time"`
	InitialRepoState   *RepoState       `json:"initial_repo_state,omitempty"`
	GitDiffDetails     []git.FileChange `json:"git_diff_details"`
	SessionLog         []Event          `json:"session_log"`
}

// unixSeconds converts a time to float64 UNIX seconds, the timestamp
// representation used throughout the persisted record.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
