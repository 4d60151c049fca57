package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/vibe-check/pkg/api/storage"
)

func TestLocalReader_DiscoveryPaths(t *testing.T) {
	t.Parallel()

	reader := storage.NewLocalReader([]string{
		"results/charlie",
		"results/alpha",
		"results/bravo",
	})

	got := reader.DiscoveryPaths()

	assert.Equal(t, []string{
		"results/alpha",
		"results/bravo",
		"results/charlie",
	}, got)
}

func TestLocalReader_ListRunIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("returns result file names without extension", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		for _, name := range []string{
			"llama3_easy-fix-typo_20250301_100000.json",
			"codellama_hard-migrate_20250301_110000.json",
		} {
			require.NoError(t, os.WriteFile(
				filepath.Join(dir, name), []byte("{}"), 0o644,
			))
		}

		// Batch summaries, non-JSON files and directories are skipped.
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, "batch_summary_20250301_120000.json"),
			[]byte("{}"), 0o644,
		))
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644,
		))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "archive.json"), 0o755))

		reader := storage.NewLocalReader([]string{dir})

		ids, err := reader.ListRunIDs(ctx, dir)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{
			"llama3_easy-fix-typo_20250301_100000",
			"codellama_hard-migrate_20250301_110000",
		}, ids)
	})

	t.Run("missing directory returns nil", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "missing")

		reader := storage.NewLocalReader([]string{dir})

		ids, err := reader.ListRunIDs(ctx, dir)
		require.NoError(t, err)
		assert.Nil(t, ids)
	})
}

func TestLocalReader_GetRunFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("reads existing file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		content := []byte(`{"model":"llama3"}`)
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, "run1.json"), content, 0o644,
		))

		reader := storage.NewLocalReader([]string{dir})

		data, err := reader.GetRunFile(ctx, dir, "run1")
		require.NoError(t, err)
		assert.Equal(t, content, data)
	})

	t.Run("missing file returns nil nil", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()

		reader := storage.NewLocalReader([]string{dir})

		data, err := reader.GetRunFile(ctx, dir, "no-such-run")
		require.NoError(t, err)
		assert.Nil(t, data)
	})
}

func TestLocalReader_UnknownDiscoveryPath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	reader := storage.NewLocalReader([]string{dir})

	t.Run("ListRunIDs", func(t *testing.T) {
		t.Parallel()

		ids, err := reader.ListRunIDs(ctx, "unregistered")
		assert.Nil(t, ids)
		assert.ErrorContains(t, err, "unknown discovery path")
	})

	t.Run("GetRunFile", func(t *testing.T) {
		t.Parallel()

		data, err := reader.GetRunFile(ctx, "unregistered", "run1")
		assert.Nil(t, data)
		assert.ErrorContains(t, err, "unknown discovery path")
	})
}
