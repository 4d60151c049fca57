package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Compile-time interface check.
var _ Reader = (*localReader)(nil)

type localReader struct {
	// paths is the set of configured results directories.
	paths map[string]struct{}
}

// NewLocalReader creates a Reader backed by local results directories.
func NewLocalReader(discoveryPaths []string) Reader {
	paths := make(map[string]struct{}, len(discoveryPaths))
	for _, p := range discoveryPaths {
		paths[p] = struct{}{}
	}

	return &localReader{paths: paths}
}

// DiscoveryPaths returns the configured discovery paths sorted.
func (r *localReader) DiscoveryPaths() []string {
	keys := make([]string, 0, len(r.paths))
	for k := range r.paths {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// ListRunIDs returns the result file names under the discovery path,
// without the .json extension.
func (r *localReader) ListRunIDs(
	_ context.Context, discoveryPath string,
) ([]string, error) {
	if _, ok := r.paths[discoveryPath]; !ok {
		return nil, fmt.Errorf(
			"unknown discovery path: %q", discoveryPath,
		)
	}

	entries, err := os.ReadDir(discoveryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading results directory: %w", err)
	}

	ids := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}

		// Batch summaries live alongside run records but are not records.
		if strings.HasPrefix(e.Name(), "batch_summary_") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}

	return ids, nil
}

// GetRunFile reads {discoveryPath}/{runID}.json.
// Returns (nil, nil) when the file does not exist.
func (r *localReader) GetRunFile(
	_ context.Context, discoveryPath, runID string,
) ([]byte, error) {
	if _, ok := r.paths[discoveryPath]; !ok {
		return nil, fmt.Errorf(
			"unknown discovery path: %q", discoveryPath,
		)
	}

	p := filepath.Join(discoveryPath, runID+".json")

	data, err := os.ReadFile(p) //nolint:gosec // trusted paths from config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading file %s: %w", p, err)
	}

	return data, nil
}
