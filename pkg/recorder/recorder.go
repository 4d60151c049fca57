package recorder

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/bdougie/vibe-check/pkg/fsutil"
	"github.com/bdougie/vibe-check/pkg/git"
)

var (
	// ErrInvalidState indicates an operation was invoked out of lifecycle
	// order. Always a usage error, never retried.
	ErrInvalidState = errors.New("invalid run state")

	// ErrEnvironment indicates the working directory could not serve as a
	// benchmark environment when the run started.
	ErrEnvironment = errors.New("working directory is not usable for benchmarking")
)

type state int

const (
	stateNotStarted state = iota
	stateInProgress
	stateCompleted
)

func (s state) String() string {
	switch s {
	case stateNotStarted:
		return "not started"
	case stateInProgress:
		return "in progress"
	case stateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Recorder tracks the metrics of a single benchmark run from start to
// completion. A Recorder instance is single-writer: callers must serialize
// all calls on one instance. Run many Recorders concurrently instead, each
// against its own working directory.
type Recorder interface {
	// Start captures the repository baseline and opens the run.
	Start(ctx context.Context) (*RunRecord, error)
	// LogInteraction counts one prompt/response exchange, recording only
	// the text lengths.
	LogInteraction(promptText, responseText string) error
	// LogIntervention counts one human intervention of the given kind.
	LogIntervention(kind string) error
	// Complete finalizes the run: captures diff metrics, persists the
	// record, and returns it. A second call fails with ErrInvalidState.
	Complete(ctx context.Context, success bool) (*RunRecord, error)
	// ResultPath returns the persisted record path, or "" before Complete.
	ResultPath() string
}

// Options configures a run Recorder.
type Options struct {
	Model      string
	Task       string
	ResultsDir string
	Owner      *fsutil.OwnerConfig
}

// Compile-time interface check.
var _ Recorder = (*runRecorder)(nil)

type runRecorder struct {
	log  logrus.FieldLogger
	git  git.Client
	opts Options

	state      state
	startedAt  time.Time
	record     *RunRecord
	resultPath string

	clock func() time.Time
}

// NewRecorder creates a Recorder for one run of task against model.
func NewRecorder(log logrus.FieldLogger, gitClient git.Client, opts Options) Recorder {
	return &runRecorder{
		log: log.WithField("component", "recorder").
			WithField("model", opts.Model).
			WithField("task", opts.Task),
		git:  gitClient,
		opts: opts,
		record: &RunRecord{
			Model:          opts.Model,
			Task:           opts.Task,
			GitDiffDetails: []git.FileChange{},
			SessionLog:     []Event{},
		},
		clock: time.Now,
	}
}

func (r *runRecorder) Start(ctx context.Context) (*RunRecord, error) {
	if r.state != stateNotStarted {
		return nil, fmt.Errorf("%w: start called on a run that is %s",
			ErrInvalidState, r.state)
	}

	revision, err := r.git.CurrentRevision(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvironment, err)
	}

	dirty, err := r.git.IsDirty(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: checking work tree state: %w",
			ErrEnvironment, err)
	}

	now := r.clock()
	r.startedAt = now
	r.record.InitialRepoState = &RepoState{
		Revision:   revision,
		Dirty:      dirty,
		CapturedAt: unixSeconds(now),
	}

	r.appendEvent(EventRunStarted, map[string]any{
		"revision": revision,
		"dirty":    dirty,
	})

	r.state = stateInProgress

	r.log.WithFields(logrus.Fields{
		"revision": revision,
		"dirty":    dirty,
	}).Info("Run started")

	return r.snapshot(), nil
}

func (r *runRecorder) LogInteraction(promptText, responseText string) error {
	if err := r.requireInProgress("log an interaction"); err != nil {
		return err
	}

	promptChars := utf8.RuneCountInString(promptText)
	responseChars := utf8.RuneCountInString(responseText)

	r.record.PromptsSent++
	r.record.CharsSent += promptChars
	r.record.CharsReceived += responseChars

	r.appendEvent(EventInteraction, map[string]any{
		"prompt_chars":   promptChars,
		"response_chars": responseChars,
	})

	return nil
}

func (r *runRecorder) LogIntervention(kind string) error {
	if err := r.requireInProgress("log an intervention"); err != nil {
		return err
	}

	r.record.HumanInterventions++

	r.appendEvent(EventIntervention, map[string]any{"kind": kind})

	return nil
}

func (r *runRecorder) Complete(ctx context.Context, success bool) (*RunRecord, error) {
	if err := r.requireInProgress("complete the run"); err != nil {
		return nil, err
	}

	now := r.clock()

	duration := now.Sub(r.startedAt).Seconds()
	if duration < 0 {
		duration = 0
	}

	r.record.Success = success
	r.record.CompletionTime = duration

	r.captureDiff(ctx)

	r.appendEvent(EventRunCompleted, map[string]any{"success": success})

	// The record is immutable from here on, even if persisting fails.
	r.state = stateCompleted

	if err := r.persist(now); err != nil {
		return nil, fmt.Errorf("persisting run record: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"success":        success,
		"duration":       fmt.Sprintf("%.1fs", duration),
		"prompts":        r.record.PromptsSent,
		"interventions":  r.record.HumanInterventions,
		"files_modified": r.record.FilesModified,
		"path":           r.resultPath,
	}).Info("Run completed")

	return r.snapshot(), nil
}

func (r *runRecorder) ResultPath() string {
	return r.resultPath
}

func (r *runRecorder) requireInProgress(op string) error {
	switch r.state {
	case stateInProgress:
		return nil
	case stateNotStarted:
		return fmt.Errorf("%w: cannot %s before the run is started",
			ErrInvalidState, op)
	default:
		return fmt.Errorf("%w: cannot %s, the run is already completed",
			ErrInvalidState, op)
	}
}

// captureDiff runs the two-stage diff capture against the baseline
// revision. Counters are derived from the per-file stage so the summary
// invariants hold; the aggregate stage serves as a cheap availability probe
// and cross-check. Any failure zeroes the counters and records a
// diff_capture_failed event instead of failing the run.
func (r *runRecorder) captureDiff(ctx context.Context) {
	since := r.record.InitialRepoState.Revision

	summary, err := r.git.DiffSummary(ctx, since)
	if err != nil {
		r.diffCaptureFailed(err)

		return
	}

	perFile, err := r.git.DiffPerFile(ctx, since)
	if err != nil {
		r.diffCaptureFailed(err)

		return
	}

	var added, removed int
	for _, fc := range perFile {
		added += fc.LinesAdded
		removed += fc.LinesRemoved
	}

	r.record.GitDiffDetails = perFile
	r.record.FilesModified = len(perFile)
	r.record.LinesAdded = added
	r.record.LinesRemoved = removed

	if summary.FilesChanged != len(perFile) ||
		summary.LinesAdded != added || summary.LinesRemoved != removed {
		r.log.WithFields(logrus.Fields{
			"summary_files": summary.FilesChanged,
			"perfile_files": len(perFile),
		}).Debug("Diff summary disagrees with per-file totals, keeping per-file numbers")
	}
}

func (r *runRecorder) diffCaptureFailed(err error) {
	r.log.WithError(err).
		Warn("Diff capture failed, recording zero-valued code change metrics")

	r.record.FilesModified = 0
	r.record.LinesAdded = 0
	r.record.LinesRemoved = 0
	r.record.GitDiffDetails = []git.FileChange{}

	r.appendEvent(EventDiffCaptureFailed, map[string]any{
		"reason": err.Error(),
	})
}

func (r *runRecorder) appendEvent(kind string, data map[string]any) {
	r.record.SessionLog = append(r.record.SessionLog, Event{
		Timestamp: unixSeconds(r.clock()),
		Event:     kind,
		Data:      data,
	})
}

// persist writes the finalized record to the results directory. Filenames
// incorporate model, task, and a wall-clock timestamp; a run landing on an
// existing name gains a random suffix, so concurrent runs never need
// cross-process locks to avoid overwrites.
func (r *runRecorder) persist(now time.Time) error {
	if err := fsutil.MkdirAll(r.opts.ResultsDir, 0755, r.opts.Owner); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}

	name := resultFilename(r.record.Model, r.record.Task, now)

	path := filepath.Join(r.opts.ResultsDir, name)
	if _, err := os.Stat(path); err == nil {
		path = filepath.Join(r.opts.ResultsDir, withUniqueSuffix(name))
	}

	if err := fsutil.WriteJSON(path, r.record, r.opts.Owner); err != nil {
		return err
	}

	r.resultPath = path

	return nil
}

// snapshot returns a copy of the record so callers cannot mutate the
// recorder's internal state through the returned pointer.
func (r *runRecorder) snapshot() *RunRecord {
	rec := *r.record
	rec.GitDiffDetails = slices.Clone(r.record.GitDiffDetails)
	rec.SessionLog = slices.Clone(r.record.SessionLog)

	if r.record.InitialRepoState != nil {
		st := *r.record.InitialRepoState
		rec.InitialRepoState = &st
	}

	return &rec
}

func resultFilename(model, task string, ts time.Time) string {
	return fmt.Sprintf("%s_%s_%s.json",
		sanitizeComponent(model),
		sanitizeComponent(task),
		ts.Format("20060102_150405"))
}

// sanitizeComponent restricts a filename component to [A-Za-z0-9._-] so
// model tags like "codellama:7b" and task names like "easy/fix-typo"
// produce portable filenames.
func sanitizeComponent(s string) string {
	var b strings.Builder

	b.Grow(len(s))

	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z',
			c >= 'A' && c <= 'Z',
			c >= '0' && c <= '9',
			c == '.', c == '_', c == '-':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}

	if b.Len() == 0 {
		return "unknown"
	}

	return b.String()
}

func withUniqueSuffix(name string) string {
	base := strings.TrimSuffix(name, ".json")

	return fmt.Sprintf("%s_%s.json", base, shortID())
}

// shortID generates a short random hex identifier, falling back to a
// timestamp fragment if the random source is unavailable.
func shortID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%08d", time.Now().UnixNano()%100000000)
	}

	return hex.EncodeToString(b)
}
