package tasks

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTasksDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	files := map[string]string{
		"easy/fix-typo.md":   "# Fix the typo\n\nThere is a typo in main.go.\n",
		"easy/add-docs.md":   "\n\n# Add documentation\n",
		"medium/refactor.md": "# Refactor the parser\n",
		"hard/migrate.md":    "no heading here\n",
		"notes/scratch.md":   "# Not a task\n",
		"easy/README.txt":    "ignored\n",
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "easy", "drafts"), 0o755))

	return dir
}

func TestDiscover(t *testing.T) {
	dir := setupTasksDir(t)

	found, err := Discover(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(found))
	for _, task := range found {
		names = append(names, task.Name)
	}

	// Difficulty order first, filename order within a difficulty.
	assert.Equal(t, []string{
		"easy/add-docs",
		"easy/fix-typo",
		"medium/refactor",
		"hard/migrate",
	}, names)

	assert.Equal(t, "Fix the typo", found[1].Title)
	assert.Equal(t, "Add documentation", found[0].Title)
	assert.Empty(t, found[3].Title)
	assert.Equal(t, "medium", found[2].Difficulty)
	assert.Equal(t, filepath.Join(dir, "medium", "refactor.md"), found[2].Path)
}

func TestDiscover_MissingDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "easy"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "easy", "only.md"), []byte("# Only\n"), 0o644))

	found, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "easy/only", found[0].Name)
}

func TestDiscover_EmptyTree(t *testing.T) {
	found, err := Discover(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestValidateModelName(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		wantErr bool
	}{
		{"simple", "llama2", false},
		{"with tag", "codellama:13b", false},
		{"with namespace", "ollama/llama2", false},
		{"dots and dashes", "qwen2.5-coder", false},
		{"underscore", "my_model", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"spaces", "llama 2", true},
		{"shell metacharacters", "llama2;rm -rf /", true},
		{"traversal", "../etc/passwd", true},
		{"too long", strings.Repeat("a", 300), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateModelName(tt.model)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolveTaskPath(t *testing.T) {
	dir := setupTasksDir(t)

	t.Run("name without extension", func(t *testing.T) {
		path, err := ResolveTaskPath(dir, "easy/fix-typo")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "easy", "fix-typo.md"), path)
	})

	t.Run("name with extension", func(t *testing.T) {
		path, err := ResolveTaskPath(dir, "medium/refactor.md")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "medium", "refactor.md"), path)
	})

	t.Run("missing task", func(t *testing.T) {
		_, err := ResolveTaskPath(dir, "easy/unknown")
		assert.Error(t, err)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := ResolveTaskPath(dir, "")
		assert.Error(t, err)
	})

	t.Run("traversal rejected", func(t *testing.T) {
		_, err := ResolveTaskPath(dir, "../outside")
		assert.ErrorContains(t, err, "invalid task name")

		_, err = ResolveTaskPath(dir, "easy/../../outside")
		assert.ErrorContains(t, err, "invalid task name")
	})

	t.Run("absolute path rejected", func(t *testing.T) {
		_, err := ResolveTaskPath(dir, "/etc/passwd")
		assert.ErrorContains(t, err, "invalid task name")
	})

	t.Run("directory rejected", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "easy", "dir.md"), 0o755))

		_, err := ResolveTaskPath(dir, "easy/dir")
		assert.ErrorContains(t, err, "is a directory")
	})
}
