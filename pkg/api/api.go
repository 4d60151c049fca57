package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bdougie/vibe-check/pkg/aggregate"
	"github.com/bdougie/vibe-check/pkg/api/indexer"
	"github.com/bdougie/vibe-check/pkg/api/indexstore"
	"github.com/bdougie/vibe-check/pkg/api/storage"
	"github.com/bdougie/vibe-check/pkg/config"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log         logrus.FieldLogger
	cfg         *config.Config
	agg         aggregate.Aggregator
	indexStore  indexstore.Store
	indexer     indexer.Indexer
	reader      storage.Reader
	fileServer  *localFileServer
	httpServer  *http.Server
	rateLimiter *rateLimiterMap
	wg          sync.WaitGroup
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
) Server {
	return &server{
		log: log.WithField("component", "api"),
		cfg: cfg,
		agg: aggregate.NewAggregator(log),
	}
}

// Start initializes the index store and starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	// Prepare the indexing service (store + reader) before building the
	// router so that the index endpoints are wired, but do NOT start the
	// background indexer yet: the HTTP server must be listening first.
	if s.cfg.API.Indexing.Enabled {
		if err := s.prepareIndexing(ctx); err != nil {
			return fmt.Errorf("preparing indexing: %w", err)
		}
	}

	s.fileServer = newLocalFileServer(s.log, s.cfg.DiscoveryPaths())

	// Build router and start HTTP server.
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.API.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.API.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.API.Server.Listen, err)
	}

	// Start HTTP server.
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.API.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	// Start the background indexer AFTER the API is listening so that
	// the server is reachable while the first (potentially slow) pass runs.
	if s.indexer != nil {
		if err := s.indexer.Start(ctx); err != nil {
			return fmt.Errorf("starting indexer: %w", err)
		}
	}

	return nil
}

// Stop gracefully shuts down the HTTP server and closes the index store.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.rateLimiter != nil {
		s.rateLimiter.stop()
	}

	if s.indexer != nil {
		if err := s.indexer.Stop(); err != nil {
			s.log.WithError(err).Warn("Indexer stop error")
		}
	}

	if s.indexStore != nil {
		if err := s.indexStore.Stop(); err != nil {
			s.log.WithError(err).Warn("Index store stop error")
		}
	}

	s.log.Info("API server stopped")

	return nil
}

// prepareIndexing creates the storage reader, index store, and indexer
// without starting the background goroutine. Call indexer.Start() separately
// after the HTTP server is listening.
func (s *server) prepareIndexing(ctx context.Context) error {
	s.reader = storage.NewLocalReader(s.cfg.DiscoveryPaths())

	// Create and start the index store (DB connection + migrations).
	s.indexStore = indexstore.NewStore(s.log, &s.cfg.API.Database)

	if err := s.indexStore.Start(ctx); err != nil {
		return fmt.Errorf("starting index store: %w", err)
	}

	// Create the indexer (not started yet).
	s.indexer = indexer.NewIndexer(
		s.log,
		s.indexStore,
		s.reader,
		s.cfg.API.Indexing.ScanInterval(),
		s.cfg.API.Indexing.Concurrency,
	)

	s.log.Info("Indexing service enabled")

	return nil
}
