package tasks

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// difficulties are scanned in this order so discovery output is stable.
var difficulties = []string{"easy", "medium", "hard"}

// Task is a single benchmark task definition.
type Task struct {
	// Name identifies the task as "<difficulty>/<file-stem>".
	Name       string
	Difficulty string
	Path       string
	// Title is the first markdown heading of the task file.
	Title string
}

// Discover lists the task definitions under tasksDir. Tasks are one
// markdown file each under easy/, medium/ and hard/; other directories are
// ignored and missing ones contribute no tasks.
func Discover(tasksDir string) ([]Task, error) {
	found := make([]Task, 0)

	for _, difficulty := range difficulties {
		dir := filepath.Join(tasksDir, difficulty)

		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, fmt.Errorf("reading task directory %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			stem := strings.TrimSuffix(entry.Name(), ".md")

			found = append(found, Task{
				Name:       difficulty + "/" + stem,
				Difficulty: difficulty,
				Path:       path,
				Title:      readTitle(path),
			})
		}
	}

	return found, nil
}

// readTitle returns the first "# " heading of a task file, or "" when the
// file has none or cannot be read.
func readTitle(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if after, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(after)
		}
	}

	return ""
}

// modelNameRe matches names like "llama2", "codellama:13b" and
// "ollama/llama2".
var modelNameRe = regexp.MustCompile(`^[A-Za-z0-9._:/-]+$`)

// maxModelNameLen bounds model names before they reach filenames and
// subprocess arguments.
const maxModelNameLen = 256

// ValidateModelName checks a model name before it is used in filenames and
// subprocess arguments.
func ValidateModelName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("model name is empty")
	}

	if len(name) > maxModelNameLen {
		return fmt.Errorf("model name is too long (max %d characters)", maxModelNameLen)
	}

	if !modelNameRe.MatchString(name) {
		return fmt.Errorf("invalid model name %q", name)
	}

	if strings.Contains(name, "..") {
		return fmt.Errorf("invalid model name %q", name)
	}

	return nil
}

// ResolveTaskPath maps a task name to its definition file. Names may omit
// the .md extension. Paths escaping the tasks directory are rejected.
func ResolveTaskPath(tasksDir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("task name is empty")
	}

	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || cleaned == ".." ||
		strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid task name %q", name)
	}

	path := filepath.Join(tasksDir, cleaned)
	if !strings.HasSuffix(path, ".md") {
		path += ".md"
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("task %q: %w", name, err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("task %q is a directory", name)
	}

	return path, nil
}
