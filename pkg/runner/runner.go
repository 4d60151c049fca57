// Package runner drives interactive benchmark runs and model batches.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bdougie/vibe-check/pkg/aggregate"
	"github.com/bdougie/vibe-check/pkg/fsutil"
	"github.com/bdougie/vibe-check/pkg/git"
	"github.com/bdougie/vibe-check/pkg/ollama"
	"github.com/bdougie/vibe-check/pkg/recorder"
	"github.com/bdougie/vibe-check/pkg/session"
	"github.com/bdougie/vibe-check/pkg/tasks"
)

const (
	separator     = "============================================================"
	thinSeparator = "------------------------------------------------------------"
)

// Runner orchestrates benchmark runs from preflight to persisted record.
type Runner interface {
	// Run executes a single interactive run and returns the persisted
	// record. An abandoned run returns (nil, nil).
	Run(ctx context.Context, req *RunRequest) (*recorder.RunRecord, error)

	// RunBatch runs every model against every task sequentially and
	// writes a batch summary next to the run records.
	RunBatch(ctx context.Context, models []string, taskList []tasks.Task) (*BatchSummary, error)
}

// RunRequest identifies one model and task pairing to run.
type RunRequest struct {
	Model    string
	Task     string
	TaskPath string
}

// Config for the runner.
type Config struct {
	// RepoDir is the repository benchmark tasks are solved in.
	RepoDir string

	// ResultsDir receives run records and batch summaries.
	ResultsDir string

	// SessionImportDir is scanned for editor session logs by the session
	// import command.
	SessionImportDir string

	// Owner is applied to files the runner creates.
	Owner *fsutil.OwnerConfig

	// Input and Output carry the interactive command loop. They default
	// to the process stdin and stdout.
	Input  io.Reader
	Output io.Writer
}

// NewRunner creates a new runner instance.
func NewRunner(log logrus.FieldLogger, cfg *Config, ollamaClient ollama.Client) Runner {
	in := cfg.Input
	if in == nil {
		in = os.Stdin
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	r := &runner{
		log:    log.WithField("component", "runner"),
		cfg:    cfg,
		ollama: ollamaClient,
		agg:    aggregate.NewAggregator(log),
		in:     newLineReader(in),
		out:    out,
	}

	r.newRecorder = func(model, task string) recorder.Recorder {
		return recorder.NewRecorder(log, git.NewClient(cfg.RepoDir), recorder.Options{
			Model:      model,
			Task:       task,
			ResultsDir: cfg.ResultsDir,
			Owner:      cfg.Owner,
		})
	}

	return r
}

type runner struct {
	log    logrus.FieldLogger
	cfg    *Config
	ollama ollama.Client
	agg    aggregate.Aggregator
	in     *lineReader
	out    io.Writer

	// newRecorder builds the recorder for one run. Tests substitute it to
	// run against a fake source-control client.
	newRecorder func(model, task string) recorder.Recorder
}

// Ensure interface compliance.
var _ Runner = (*runner)(nil)

// Run executes a single interactive run.
func (r *runner) Run(ctx context.Context, req *RunRequest) (*recorder.RunRecord, error) {
	if err := tasks.ValidateModelName(req.Model); err != nil {
		return nil, err
	}

	if req.Task == "" {
		return nil, fmt.Errorf("task name is empty")
	}

	taskContent, err := os.ReadFile(req.TaskPath)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}

	r.preflight(ctx, req.Model)

	rec := r.newRecorder(req.Model, req.Task)

	if _, err := rec.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	r.printRunHeader(req, string(taskContent))

	record, err := r.commandLoop(ctx, rec, req, string(taskContent))
	if err != nil {
		return nil, err
	}

	if record == nil {
		r.log.WithFields(logrus.Fields{
			"model": req.Model,
			"task":  req.Task,
		}).Info("Run abandoned, no record persisted")

		return nil, nil
	}

	r.printRunSummary(record, rec.ResultPath())

	return record, nil
}

// preflight checks the Ollama server and the requested model. Failures are
// warnings only; runs against models Ollama does not manage are still
// allowed.
func (r *runner) preflight(ctx context.Context, model string) {
	if r.ollama == nil {
		return
	}

	if err := r.ollama.Health(ctx); err != nil {
		r.log.WithError(err).Warn("Ollama is not reachable, skipping model check")

		return
	}

	name := strings.TrimPrefix(model, "ollama/")

	installed, err := r.ollama.HasModel(ctx, name)
	if err != nil {
		r.log.WithError(err).Warn("Failed to list installed models")

		return
	}

	if !installed {
		r.log.WithField("model", model).Warn("Model is not installed in Ollama")
	}
}

// commandLoop reads single-letter commands until the run is completed or
// abandoned. A closed input or a cancelled context completes the run as
// failed so interrupted runs still leave a record.
func (r *runner) commandLoop(
	ctx context.Context,
	rec recorder.Recorder,
	req *RunRequest,
	taskContent string,
) (*recorder.RunRecord, error) {
	for {
		fmt.Fprint(r.out, "> ")

		line, err := r.in.readLine(ctx)
		if err != nil {
			return r.forceComplete(rec, err)
		}

		cmd := strings.ToLower(line)

		switch cmd {
		case "":
			continue

		case "p":
			prompt, err := r.prompt(ctx, "Prompt sent: ")
			if err != nil {
				return r.forceComplete(rec, err)
			}

			response, err := r.prompt(ctx, "Response received: ")
			if err != nil {
				return r.forceComplete(rec, err)
			}

			if err := rec.LogInteraction(prompt, response); err != nil {
				return nil, fmt.Errorf("logging interaction: %w", err)
			}

			fmt.Fprintln(r.out, "Interaction logged.")

		case "i":
			kind, err := r.prompt(ctx, "Intervention kind [manual]: ")
			if err != nil {
				return r.forceComplete(rec, err)
			}

			if kind == "" {
				kind = "manual"
			}

			if err := rec.LogIntervention(kind); err != nil {
				return nil, fmt.Errorf("logging intervention: %w", err)
			}

			fmt.Fprintln(r.out, "Intervention logged.")

		case "s":
			if err := r.importSession(rec); err != nil {
				return nil, err
			}

		case "d":
			r.printTask(req, taskContent)

		case "c", "f":
			record, err := rec.Complete(ctx, cmd == "c")
			if err != nil {
				return nil, fmt.Errorf("completing run: %w", err)
			}

			return record, nil

		case "q":
			answer, err := r.prompt(ctx, "Abandon this run without saving? [y/N] ")
			if err != nil {
				return r.forceComplete(rec, err)
			}

			answer = strings.ToLower(answer)
			if answer == "y" || answer == "yes" {
				return nil, nil
			}

		case "h", "?":
			r.printCommands()

		default:
			fmt.Fprintf(r.out, "Unknown command %q, h lists commands.\n", line)
		}
	}
}

// forceComplete finalizes an interrupted run as failed on a fresh context,
// so a cancelled run still leaves a record.
func (r *runner) forceComplete(rec recorder.Recorder, cause error) (*recorder.RunRecord, error) {
	r.log.WithError(cause).Warn("Run interrupted, recording it as failed")

	record, err := rec.Complete(context.Background(), false)
	if err != nil {
		return nil, fmt.Errorf("completing interrupted run: %w", err)
	}

	return record, nil
}

// importSession replays the latest editor session log through the
// recorder. A missing or malformed session file is reported to the
// operator and skipped.
func (r *runner) importSession(rec recorder.Recorder) error {
	if r.cfg.SessionImportDir == "" {
		fmt.Fprintln(r.out, "No session import directory configured.")

		return nil
	}

	path, err := session.LatestSession(r.cfg.SessionImportDir)
	if err != nil {
		fmt.Fprintf(r.out, "Session import failed: %v\n", err)

		return nil
	}

	interactions, err := session.ParseFile(path)
	if err != nil {
		fmt.Fprintf(r.out, "Session import failed: %v\n", err)

		return nil
	}

	if err := session.Apply(rec, interactions); err != nil {
		return fmt.Errorf("applying session %s: %w", filepath.Base(path), err)
	}

	fmt.Fprintf(r.out, "Imported %d interactions from %s.\n", len(interactions), filepath.Base(path))

	return nil
}

// prompt prints a label and reads one line of input.
func (r *runner) prompt(ctx context.Context, label string) (string, error) {
	fmt.Fprint(r.out, label)

	return r.in.readLine(ctx)
}

func (r *runner) printRunHeader(req *RunRequest, taskContent string) {
	fmt.Fprintf(r.out, "\n%s\n", separator)
	fmt.Fprintf(r.out, "Benchmark run: %s on %s\n", req.Model, req.Task)
	fmt.Fprintf(r.out, "Task file: %s\n", req.TaskPath)
	fmt.Fprintf(r.out, "%s\n\n", separator)
	fmt.Fprintln(r.out, strings.TrimRight(taskContent, "\n"))
	fmt.Fprintln(r.out)
	r.printCommands()
}

func (r *runner) printCommands() {
	fmt.Fprintf(r.out, "%s\n", thinSeparator)
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  p  log a prompt/response exchange")
	fmt.Fprintln(r.out, "  i  log a human intervention")
	fmt.Fprintln(r.out, "  s  import interactions from the latest editor session")
	fmt.Fprintln(r.out, "  d  show the task description again")
	fmt.Fprintln(r.out, "  c  complete the run as a success")
	fmt.Fprintln(r.out, "  f  complete the run as a failure")
	fmt.Fprintln(r.out, "  q  abandon the run without saving")
	fmt.Fprintln(r.out, "  h  show this list")
	fmt.Fprintf(r.out, "%s\n", thinSeparator)
}

func (r *runner) printTask(req *RunRequest, taskContent string) {
	fmt.Fprintf(r.out, "\nTask %s (%s):\n\n", req.Task, req.TaskPath)
	fmt.Fprintln(r.out, strings.TrimRight(taskContent, "\n"))
	fmt.Fprintln(r.out)
}

func (r *runner) printRunSummary(record *recorder.RunRecord, resultPath string) {
	status := "failure"
	if record.Success {
		status = "success"
	}

	fmt.Fprintf(r.out, "\n%s\n", separator)
	fmt.Fprintf(r.out, "Run complete: %s\n", status)
	fmt.Fprintf(r.out, "  Duration:       %.1fs\n", record.CompletionTime)
	fmt.Fprintf(r.out, "  Prompts:        %d (%d chars sent, %d received)\n",
		record.PromptsSent, record.CharsSent, record.CharsReceived)
	fmt.Fprintf(r.out, "  Interventions:  %d\n", record.HumanInterventions)
	fmt.Fprintf(r.out, "  Code changes:   %d files, +%d/-%d lines\n",
		record.FilesModified, record.LinesAdded, record.LinesRemoved)
	fmt.Fprintf(r.out, "  Result file:    %s\n", resultPath)
	fmt.Fprintf(r.out, "%s\n", separator)
}

// maxLineBytes bounds a single line of pasted input.
const maxLineBytes = 1 << 20

// lineReader reads lines from an interactive input so that a read can be
// abandoned on context cancellation. Terminal reads cannot be interrupted,
// so lines are pumped through a channel by a goroutine that stays blocked
// in Scan until the next line arrives.
type lineReader struct {
	in    io.Reader
	once  sync.Once
	lines chan string
}

func newLineReader(in io.Reader) *lineReader {
	return &lineReader{
		in:    in,
		lines: make(chan string),
	}
}

// readLine returns the next input line with surrounding whitespace
// trimmed. It returns io.EOF when the input is exhausted.
func (l *lineReader) readLine(ctx context.Context) (string, error) {
	l.once.Do(func() {
		go l.pump()
	})

	select {
	case line, ok := <-l.lines:
		if !ok {
			return "", io.EOF
		}

		return strings.TrimSpace(line), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (l *lineReader) pump() {
	scanner := bufio.NewScanner(l.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		l.lines <- scanner.Text()
	}

	close(l.lines)
}
