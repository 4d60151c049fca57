package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/vibe-check/pkg/git"
	"github.com/bdougie/vibe-check/pkg/recorder"
	"github.com/bdougie/vibe-check/pkg/tasks"
)

type stubGit struct {
	revErr error
}

func (s *stubGit) CurrentRevision(context.Context) (string, error) {
	if s.revErr != nil {
		return "", s.revErr
	}

	return "abc1234", nil
}

func (s *stubGit) IsDirty(context.Context) (bool, error) { return false, nil }

func (s *stubGit) DiffSummary(context.Context, string) (*git.Summary, error) {
	return &git.Summary{FilesChanged: 1, LinesAdded: 5, LinesRemoved: 2}, nil
}

func (s *stubGit) DiffPerFile(context.Context, string) ([]git.FileChange, error) {
	return []git.FileChange{{Filename: "main.go", LinesAdded: 5, LinesRemoved: 2}}, nil
}

func newTestRunner(t *testing.T, input string) (*runner, *bytes.Buffer, string) {
	t.Helper()

	return newRunnerWithInput(t, strings.NewReader(input), &stubGit{})
}

func newRunnerWithInput(t *testing.T, input io.Reader, g git.Client) (*runner, *bytes.Buffer, string) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	resultsDir := t.TempDir()
	out := &bytes.Buffer{}

	r, ok := NewRunner(log, &Config{
		RepoDir:    t.TempDir(),
		ResultsDir: resultsDir,
		Input:      input,
		Output:     out,
	}, nil).(*runner)
	require.True(t, ok)

	r.newRecorder = func(model, task string) recorder.Recorder {
		return recorder.NewRecorder(log, g, recorder.Options{
			Model:      model,
			Task:       task,
			ResultsDir: resultsDir,
		})
	}

	return r, out, resultsDir
}

func writeTaskFile(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "fix-typo.md")
	content := "# Fix the typo\n\nCorrect the typo in main.go.\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestRunner_RunCompleted(t *testing.T) {
	r, out, resultsDir := newTestRunner(t, "p\nfix the typo\ndone, fixed\ni\n\nc\n")
	taskPath := writeTaskFile(t, t.TempDir())

	record, err := r.Run(context.Background(), &RunRequest{
		Model:    "llama3",
		Task:     "easy/fix-typo",
		TaskPath: taskPath,
	})
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.True(t, record.Success)
	assert.Equal(t, 1, record.PromptsSent)
	assert.Equal(t, 12, record.CharsSent)
	assert.Equal(t, 11, record.CharsReceived)
	assert.Equal(t, 1, record.HumanInterventions)
	assert.Equal(t, 1, record.FilesModified)
	assert.Equal(t, 5, record.LinesAdded)
	assert.Equal(t, 2, record.LinesRemoved)

	// A blank intervention kind falls back to "manual".
	require.Len(t, record.SessionLog, 4)
	assert.Equal(t, recorder.EventIntervention, record.SessionLog[2].Event)
	assert.Equal(t, "manual", record.SessionLog[2].Data["kind"])

	files, err := filepath.Glob(filepath.Join(resultsDir, "*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	assert.Contains(t, out.String(), "Benchmark run: llama3 on easy/fix-typo")
	assert.Contains(t, out.String(), "Fix the typo")
	assert.Contains(t, out.String(), "Run complete: success")
}

func TestRunner_RunFailed(t *testing.T) {
	r, out, _ := newTestRunner(t, "f\n")
	taskPath := writeTaskFile(t, t.TempDir())

	record, err := r.Run(context.Background(), &RunRequest{
		Model:    "llama3",
		Task:     "easy/fix-typo",
		TaskPath: taskPath,
	})
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.False(t, record.Success)
	assert.Contains(t, out.String(), "Run complete: failure")
}

func TestRunner_RunAbandoned(t *testing.T) {
	r, _, resultsDir := newTestRunner(t, "q\ny\n")
	taskPath := writeTaskFile(t, t.TempDir())

	record, err := r.Run(context.Background(), &RunRequest{
		Model:    "llama3",
		Task:     "easy/fix-typo",
		TaskPath: taskPath,
	})
	require.NoError(t, err)
	assert.Nil(t, record)

	files, err := filepath.Glob(filepath.Join(resultsDir, "*.json"))
	require.NoError(t, err)
	assert.Empty(t, files, "an abandoned run must not persist a record")
}

func TestRunner_RunAbandonDeclined(t *testing.T) {
	r, _, _ := newTestRunner(t, "q\nn\nc\n")
	taskPath := writeTaskFile(t, t.TempDir())

	record, err := r.Run(context.Background(), &RunRequest{
		Model:    "llama3",
		Task:     "easy/fix-typo",
		TaskPath: taskPath,
	})
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.True(t, record.Success)
}

func TestRunner_RunUnknownCommand(t *testing.T) {
	r, out, _ := newTestRunner(t, "x\nc\n")
	taskPath := writeTaskFile(t, t.TempDir())

	record, err := r.Run(context.Background(), &RunRequest{
		Model:    "llama3",
		Task:     "easy/fix-typo",
		TaskPath: taskPath,
	})
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Contains(t, out.String(), `Unknown command "x"`)
}

func TestRunner_RunInputClosed(t *testing.T) {
	// Input ending before a completion command still records the run, as
	// a failure.
	r, _, resultsDir := newTestRunner(t, "p\nhello\nworld\n")
	taskPath := writeTaskFile(t, t.TempDir())

	record, err := r.Run(context.Background(), &RunRequest{
		Model:    "llama3",
		Task:     "easy/fix-typo",
		TaskPath: taskPath,
	})
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.False(t, record.Success)
	assert.Equal(t, 1, record.PromptsSent)

	files, err := filepath.Glob(filepath.Join(resultsDir, "*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestRunner_RunContextCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	r, _, resultsDir := newRunnerWithInput(t, pr, &stubGit{})
	taskPath := writeTaskFile(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	record, err := r.Run(ctx, &RunRequest{
		Model:    "llama3",
		Task:     "easy/fix-typo",
		TaskPath: taskPath,
	})
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.False(t, record.Success)

	files, err := filepath.Glob(filepath.Join(resultsDir, "*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1, "a cancelled run must still persist its record")
}

func TestRunner_RunEnvironmentError(t *testing.T) {
	g := &stubGit{revErr: git.ErrNotRepository}
	r, _, resultsDir := newRunnerWithInput(t, strings.NewReader(""), g)
	taskPath := writeTaskFile(t, t.TempDir())

	_, err := r.Run(context.Background(), &RunRequest{
		Model:    "llama3",
		Task:     "easy/fix-typo",
		TaskPath: taskPath,
	})
	require.Error(t, err)

	assert.ErrorIs(t, err, recorder.ErrEnvironment)
	assert.ErrorIs(t, err, git.ErrNotRepository)

	files, err := filepath.Glob(filepath.Join(resultsDir, "*.json"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunner_RunRejectsInvalidModel(t *testing.T) {
	r, _, _ := newTestRunner(t, "")

	_, err := r.Run(context.Background(), &RunRequest{
		Model:    "bad model",
		Task:     "easy/fix-typo",
		TaskPath: "fix-typo.md",
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid model name")
}

func TestRunner_RunMissingTaskFile(t *testing.T) {
	r, _, _ := newTestRunner(t, "")

	_, err := r.Run(context.Background(), &RunRequest{
		Model:    "llama3",
		Task:     "easy/fix-typo",
		TaskPath: filepath.Join(t.TempDir(), "missing.md"),
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "reading task file")
}

func TestRunner_RunSessionImport(t *testing.T) {
	r, out, _ := newTestRunner(t, "s\nc\n")

	sessionsDir := t.TempDir()
	sessionJSON := `{"sessionId":"s1","history":[` +
		`{"message":{"role":"user","content":"fix it"}},` +
		`{"message":{"role":"assistant","content":"fixed"}}]}`
	require.NoError(t, os.WriteFile(filepath.Join(sessionsDir, "s1.json"), []byte(sessionJSON), 0o644))

	r.cfg.SessionImportDir = sessionsDir

	taskPath := writeTaskFile(t, t.TempDir())

	record, err := r.Run(context.Background(), &RunRequest{
		Model:    "llama3",
		Task:     "easy/fix-typo",
		TaskPath: taskPath,
	})
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, 1, record.PromptsSent)
	assert.Equal(t, 6, record.CharsSent)
	assert.Equal(t, 5, record.CharsReceived)
	assert.Contains(t, out.String(), "Imported 1 interactions from s1.json")
}

func TestRunner_RunSessionImportUnconfigured(t *testing.T) {
	r, out, _ := newTestRunner(t, "s\nc\n")
	taskPath := writeTaskFile(t, t.TempDir())

	record, err := r.Run(context.Background(), &RunRequest{
		Model:    "llama3",
		Task:     "easy/fix-typo",
		TaskPath: taskPath,
	})
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, 0, record.PromptsSent)
	assert.Contains(t, out.String(), "No session import directory configured")
}

func TestRunner_RunBatch(t *testing.T) {
	// alpha completes its run successfully, beta fails its run.
	r, _, resultsDir := newTestRunner(t, "c\nf\n")

	taskPath := writeTaskFile(t, t.TempDir())
	taskList := []tasks.Task{{
		Name:       "easy/fix-typo",
		Difficulty: "easy",
		Path:       taskPath,
	}}

	summary, err := r.RunBatch(context.Background(), []string{"alpha", "beta"}, taskList)
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Abandoned)
	assert.Equal(t, []string{"alpha", "beta"}, summary.Models)
	assert.Equal(t, []string{"easy/fix-typo"}, summary.Tasks)
	assert.NotNil(t, summary.System)

	require.Len(t, summary.Runs, 2)
	assert.Equal(t, "alpha", summary.Runs[0].Model)
	assert.True(t, summary.Runs[0].Success)
	assert.Equal(t, "beta", summary.Runs[1].Model)
	assert.False(t, summary.Runs[1].Success)

	require.Len(t, summary.ModelStats, 2)
	assert.Equal(t, 1, summary.ModelStats["alpha"].Count)
	assert.InDelta(t, 1.0, summary.ModelStats["alpha"].SuccessRate, 1e-9)
	assert.InDelta(t, 0.0, summary.ModelStats["beta"].SuccessRate, 1e-9)

	assert.Equal(t, []string{"alpha", "beta"}, summary.Rankings.HighestSuccessRate)
	assert.Equal(t, []string{"alpha", "beta"}, summary.Rankings.FewestInterventions)
	assert.Len(t, summary.Rankings.Fastest, 2)

	summaries, err := filepath.Glob(filepath.Join(resultsDir, "batch_summary_*.json"))
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	data, err := os.ReadFile(summaries[0])
	require.NoError(t, err)

	var loaded BatchSummary
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, 1, loaded.Succeeded)

	// Two run records plus the summary.
	all, err := filepath.Glob(filepath.Join(resultsDir, "*.json"))
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRunner_RunBatchContinuesPastFailures(t *testing.T) {
	// The first run errors out before the second starts: the task file of
	// the first task does not exist.
	r, _, _ := newTestRunner(t, "c\n")

	goodTask := writeTaskFile(t, t.TempDir())
	taskList := []tasks.Task{
		{Name: "easy/missing", Path: filepath.Join(t.TempDir(), "missing.md")},
		{Name: "easy/fix-typo", Path: goodTask},
	}

	summary, err := r.RunBatch(context.Background(), []string{"llama3"}, taskList)
	require.NoError(t, err)

	require.Len(t, summary.Runs, 2)
	assert.Contains(t, summary.Runs[0].Error, "reading task file")
	assert.False(t, summary.Runs[0].Success)
	assert.True(t, summary.Runs[1].Success)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
}

func TestRunner_RunBatchInterrupted(t *testing.T) {
	r, _, resultsDir := newTestRunner(t, "")
	taskPath := writeTaskFile(t, t.TempDir())
	taskList := []tasks.Task{{Name: "easy/fix-typo", Path: taskPath}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := r.RunBatch(ctx, []string{"llama3"}, taskList)
	require.Error(t, err)
	assert.ErrorContains(t, err, "batch interrupted")

	require.NotNil(t, summary)
	assert.Empty(t, summary.Runs)

	summaries, globErr := filepath.Glob(filepath.Join(resultsDir, "batch_summary_*.json"))
	require.NoError(t, globErr)
	require.Len(t, summaries, 1, "an interrupted batch still writes its summary")
}

func TestRunner_RunBatchValidation(t *testing.T) {
	r, _, _ := newTestRunner(t, "")
	ctx := context.Background()
	taskList := []tasks.Task{{Name: "easy/fix-typo", Path: "fix-typo.md"}}

	_, err := r.RunBatch(ctx, nil, taskList)
	assert.ErrorContains(t, err, "no models")

	_, err = r.RunBatch(ctx, []string{"llama3"}, nil)
	assert.ErrorContains(t, err, "no tasks")

	_, err = r.RunBatch(ctx, []string{"bad name"}, taskList)
	assert.ErrorContains(t, err, "invalid model name")
}

func TestLineReader_ReadLine(t *testing.T) {
	l := newLineReader(strings.NewReader("  a \nb\n"))
	ctx := context.Background()

	line, err := l.readLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", line)

	line, err = l.readLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", line)

	_, err = l.readLine(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineReader_ContextCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	l := newLineReader(pr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.readLine(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
