package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNotRepository indicates the configured directory is not inside a git
// work tree, or has no revision to use as a diff baseline.
var ErrNotRepository = errors.New("not a git repository")

// Summary holds the aggregate counters of a diff.
type Summary struct {
	FilesChanged int
	LinesAdded   int
	LinesRemoved int
}

// FileChange holds the per-file line deltas of a diff. Binary files carry
// zero for both line counters.
type FileChange struct {
	Filename     string `json:"filename"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
}

// Client is the source-control surface required to track a benchmark run.
// Implementations must be swappable so tests can substitute a fake.
type Client interface {
	// CurrentRevision resolves the revision the work tree is currently on.
	CurrentRevision(ctx context.Context) (string, error)
	// IsDirty reports whether the work tree has uncommitted changes.
	IsDirty(ctx context.Context) (bool, error)
	// DiffSummary returns aggregate change counters since the given revision.
	DiffSummary(ctx context.Context, sinceRevision string) (*Summary, error)
	// DiffPerFile returns per-file line deltas since the given revision.
	DiffPerFile(ctx context.Context, sinceRevision string) ([]FileChange, error)
}

// Compile-time interface check.
var _ Client = (*client)(nil)

type client struct {
	repoDir string
}

// NewClient creates a Client backed by the git CLI, operating on repoDir.
func NewClient(repoDir string) Client {
	return &client{repoDir: repoDir}
}

// run executes a git subcommand against the repository directory.
func (c *client) run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", c.repoDir}, args...)

	cmd := exec.CommandContext(ctx, "git", fullArgs...)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Exit code 128 covers both "not a git repository" and a
			// missing baseline revision (repository without commits).
			if exitErr.ExitCode() == 128 {
				return "", fmt.Errorf("%w: %s",
					ErrNotRepository, firstLine(exitErr.Stderr))
			}

			return "", fmt.Errorf("git %s: %s",
				args[0], firstLine(exitErr.Stderr))
		}

		return "", fmt.Errorf("running git %s: %w", args[0], err)
	}

	return string(output), nil
}

func (c *client) CurrentRevision(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

func (c *client) IsDirty(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}

	return strings.TrimSpace(out) != "", nil
}

func (c *client) DiffSummary(ctx context.Context, sinceRevision string) (*Summary, error) {
	out, err := c.run(ctx, "diff", "--stat", sinceRevision)
	if err != nil {
		return nil, err
	}

	return parseStatSummary(out), nil
}

func (c *client) DiffPerFile(ctx context.Context, sinceRevision string) ([]FileChange, error) {
	out, err := c.run(ctx, "diff", "--numstat", sinceRevision)
	if err != nil {
		return nil, err
	}

	return parseNumstat(out), nil
}

// parseStatSummary extracts the trailing summary line of `git diff --stat`
// output, e.g. " 3 files changed, 12 insertions(+), 5 deletions(-)".
// Clauses with a zero count are omitted by git; an empty diff has no
// summary line at all.
func parseStatSummary(out string) *Summary {
	summary := &Summary{}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) == 0 {
		return summary
	}

	last := strings.TrimSpace(lines[len(lines)-1])
	if !strings.Contains(last, "changed") {
		return summary
	}

	for _, part := range strings.Split(last, ",") {
		part = strings.TrimSpace(part)

		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}

		n, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}

		switch {
		case strings.Contains(part, "file"):
			summary.FilesChanged = n
		case strings.Contains(part, "insertion"):
			summary.LinesAdded = n
		case strings.Contains(part, "deletion"):
			summary.LinesRemoved = n
		}
	}

	return summary
}

// parseNumstat parses `git diff --numstat` output. Each line is
// "added<TAB>removed<TAB>path"; binary files report "-" in the numeric
// columns and contribute zero.
func parseNumstat(out string) []FileChange {
	changes := make([]FileChange, 0)

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}

		changes = append(changes, FileChange{
			Filename:     fields[2],
			LinesAdded:   parseNumstatCount(fields[0]),
			LinesRemoved: parseNumstatCount(fields[1]),
		})
	}

	return changes
}

func parseNumstatCount(s string) int {
	if s == "-" {
		return 0
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}

	return n
}

// firstLine returns the first non-empty line of command stderr for error
// messages.
func firstLine(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if s == "" {
		return "unknown git error"
	}

	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}

	return s
}
