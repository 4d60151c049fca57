package storage

import "context"

// Reader provides read access to persisted run records. It is used by the
// indexer to discover and read result files without knowing the underlying
// layout.
type Reader interface {
	// ListRunIDs returns the run IDs (result file names without the .json
	// extension) under the given discovery path.
	ListRunIDs(ctx context.Context, discoveryPath string) ([]string, error)

	// GetRunFile reads a run's result file.
	// Returns (nil, nil) when the file does not exist.
	GetRunFile(ctx context.Context, discoveryPath, runID string) ([]byte, error)

	// DiscoveryPaths returns all configured discovery paths.
	DiscoveryPaths() []string
}
