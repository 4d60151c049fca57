package indexer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bdougie/vibe-check/pkg/aggregate"
	"github.com/bdougie/vibe-check/pkg/api/indexstore"
	"github.com/bdougie/vibe-check/pkg/api/storage"
)

// defaultConcurrency is the number of runs indexed in parallel when
// no explicit concurrency value is configured.
const defaultConcurrency = 4

// Indexer is a background service that periodically scans results
// directories and upserts run records into the index store.
type Indexer interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Indexer = (*indexer)(nil)

type indexer struct {
	log         logrus.FieldLogger
	store       indexstore.Store
	reader      storage.Reader
	interval    time.Duration
	concurrency int
	done        chan struct{}
	wg          sync.WaitGroup
	dbMu        sync.Mutex // serializes DB writes to avoid SQLite contention
}

// NewIndexer creates a new background indexer.
func NewIndexer(
	log logrus.FieldLogger,
	store indexstore.Store,
	reader storage.Reader,
	interval time.Duration,
	concurrency int,
) Indexer {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &indexer{
		log:         log.WithField("component", "indexer"),
		store:       store,
		reader:      reader,
		interval:    interval,
		concurrency: concurrency,
		done:        make(chan struct{}),
	}
}

// Start launches a background goroutine that runs an immediate indexing
// pass and then ticks at the configured interval. The first pass is
// asynchronous so the caller (the API server) is not blocked.
func (idx *indexer) Start(ctx context.Context) error {
	idx.log.WithFields(logrus.Fields{
		"interval":    idx.interval.String(),
		"concurrency": idx.concurrency,
	}).Info("Starting indexer")

	idx.wg.Add(1)

	go func() {
		defer idx.wg.Done()

		// Run one pass immediately.
		idx.runPass(ctx)

		ticker := time.NewTicker(idx.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				idx.runPass(ctx)
			case <-idx.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the indexer goroutine to stop and waits for it.
func (idx *indexer) Stop() error {
	close(idx.done)
	idx.wg.Wait()

	idx.log.Info("Indexer stopped")

	return nil
}

// runPass executes one full indexing pass across all discovery paths.
func (idx *indexer) runPass(ctx context.Context) {
	start := time.Now()
	paths := idx.reader.DiscoveryPaths()

	idx.log.WithField("discovery_paths", len(paths)).
		Info("Indexing pass started")

	for _, dp := range paths {
		select {
		case <-ctx.Done():
			return
		case <-idx.done:
			return
		default:
		}

		if err := idx.indexDiscoveryPath(ctx, dp); err != nil {
			idx.log.WithError(err).
				WithField("discovery_path", dp).
				Warn("Indexing pass failed for discovery path")
		}
	}

	idx.log.WithField("duration", time.Since(start).Round(time.Millisecond)).
		Info("Indexing pass completed")
}

// indexDiscoveryPath performs incremental indexing for a single discovery
// path. Run records are written once and never modified, so only IDs not
// yet in the index are processed; a record that fails to parse is retried
// on the next pass. New runs are indexed by a bounded worker pool.
func (idx *indexer) indexDiscoveryPath(
	ctx context.Context, dp string,
) error {
	// List all run IDs from storage.
	storageIDs, err := idx.reader.ListRunIDs(ctx, dp)
	if err != nil {
		return fmt.Errorf("listing storage run IDs: %w", err)
	}

	// List already-indexed run IDs.
	indexedIDs, err := idx.store.ListRunIDs(ctx, dp)
	if err != nil {
		return fmt.Errorf("listing indexed run IDs: %w", err)
	}

	indexedSet := make(map[string]struct{}, len(indexedIDs))
	for _, id := range indexedIDs {
		indexedSet[id] = struct{}{}
	}

	var newIDs []string

	for _, id := range storageIDs {
		if _, ok := indexedSet[id]; ok {
			continue
		}

		newIDs = append(newIDs, id)
	}

	dpLog := idx.log.WithField("discovery_path", dp)

	dpLog.WithFields(logrus.Fields{
		"storage_runs": len(storageIDs),
		"indexed_runs": len(indexedIDs),
		"new_runs":     len(newIDs),
	}).Info("Scanning discovery path")

	if len(newIDs) == 0 {
		return nil
	}

	// Process runs concurrently with bounded parallelism.
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)

	var indexed atomic.Int64

	for _, runID := range newIDs {
		g.Go(func() error {
			// Check for cancellation before starting work.
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case <-idx.done:
				return nil
			default:
			}

			if err := idx.indexRun(gCtx, dp, runID); err != nil {
				dpLog.WithError(err).
					WithField("run_id", runID).
					Warn("Failed to index run")

				return nil //nolint:nilerr // log and continue
			}

			dpLog.WithField("run_id", runID).Info("Indexed run")

			indexed.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("indexing runs: %w", err)
	}

	if count := indexed.Load(); count > 0 {
		dpLog.WithField("count", count).
			Info("Discovery path indexing complete")
	}

	return nil
}

// indexRun reads a run's result file, parses it, and upserts the index
// row into the store.
func (idx *indexer) indexRun(ctx context.Context, dp, runID string) error {
	data, err := idx.reader.GetRunFile(ctx, dp, runID)
	if err != nil {
		return fmt.Errorf("reading result file: %w", err)
	}

	if data == nil {
		return fmt.Errorf("result file not found")
	}

	record, err := aggregate.ParseRecord(data)
	if err != nil {
		return fmt.Errorf("parsing result file: %w", err)
	}

	run := indexstore.FromRecord(dp, runID, record)

	// Serialize DB writes to avoid SQLite BUSY errors under concurrency.
	idx.dbMu.Lock()
	defer idx.dbMu.Unlock()

	if err := idx.store.UpsertRun(ctx, run); err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	return nil
}
