package usecase

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zots0127/uploadstore/internal/domain/repository"
)

var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uploadstore_sweep_runs_total",
		Help: "Orphan sweep runs.",
	})
	sweepBlobsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uploadstore_sweep_blobs_deleted_total",
		Help: "Unreferenced blobs removed by the sweeper.",
	})
	sweepSpoolRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uploadstore_sweep_spool_removed_total",
		Help: "Stale ingest spool files removed by the sweeper.",
	})
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "uploadstore_sweep_duration_seconds",
		Help:    "Duration of one orphan sweep.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// SweepResult summarizes one sweep
type SweepResult struct {
	Scanned      int
	Deleted      int
	SpoolRemoved int
	Errors       int
	Duration     time.Duration
}

// SweepUseCase removes blobs that no record references. Blobs younger
// than the grace period are left alone because an ingest may still be
// about to commit them.
type SweepUseCase struct {
	catalog  repository.FileCatalog
	blobs    repository.BlobStore
	interval time.Duration
	grace    time.Duration
	spoolDir string
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SweepOption customizes a SweepUseCase
type SweepOption func(*SweepUseCase)

// WithSpoolDir makes each sweep also remove ingest spool files in dir
// older than the grace period, left behind by a crashed process
func WithSpoolDir(dir string) SweepOption {
	return func(s *SweepUseCase) { s.spoolDir = dir }
}

// NewSweepUseCase creates a new sweep use case
func NewSweepUseCase(catalog repository.FileCatalog, blobs repository.BlobStore, interval, grace time.Duration, logger *slog.Logger, opts ...SweepOption) *SweepUseCase {
	s := &SweepUseCase{
		catalog:  catalog,
		blobs:    blobs,
		interval: interval,
		grace:    grace,
		logger:   logger.With(slog.String("component", "sweeper")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs a sweep immediately and then every interval until Stop or
// until ctx is done
func (s *SweepUseCase) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(sweepCtx)

	s.logger.Info("Sweeper started",
		slog.String("interval", s.interval.String()),
		slog.String("grace", s.grace.String()),
	)
}

// Stop cancels the background loop and waits for it to exit
func (s *SweepUseCase) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Sweeper stopped")
}

func (s *SweepUseCase) run(ctx context.Context) {
	defer close(s.done)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep. Concurrent calls are serialized.
func (s *SweepUseCase) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}
	cutoff := s.now().Add(-s.grace)

	err := s.blobs.Walk(ctx, func(info repository.BlobInfo) error {
		result.Scanned++
		if info.Modified.After(cutoff) {
			return nil
		}

		referenced, err := s.catalog.HasStorageKey(ctx, info.Key)
		if err != nil {
			result.Errors++
			s.logger.Error("Failed to check blob reference",
				slog.String("key", info.Key),
				slog.String("error", err.Error()),
			)
			return nil
		}
		if referenced {
			return nil
		}

		if err := s.blobs.Delete(ctx, info.Key); err != nil {
			result.Errors++
			s.logger.Error("Failed to delete orphan blob",
				slog.String("key", info.Key),
				slog.String("error", err.Error()),
			)
			return nil
		}
		result.Deleted++
		s.logger.Debug("Orphan blob deleted", slog.String("key", info.Key))
		return nil
	})
	if err != nil && ctx.Err() == nil {
		result.Errors++
		s.logger.Error("Blob walk failed", slog.String("error", err.Error()))
	}

	if s.spoolDir != "" {
		s.removeStaleSpool(cutoff, result)
	}

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepBlobsDeletedTotal.Add(float64(result.Deleted))
	sweepSpoolRemovedTotal.Add(float64(result.SpoolRemoved))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Sweep finished",
		slog.Int("scanned", result.Scanned),
		slog.Int("deleted", result.Deleted),
		slog.Int("spool_removed", result.SpoolRemoved),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// removeStaleSpool deletes spool files last modified before cutoff. Live
// ingests keep writing to theirs, so only abandoned ones are that old.
func (s *SweepUseCase) removeStaleSpool(cutoff time.Time, result *SweepResult) {
	entries, err := os.ReadDir(s.spoolDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			result.Errors++
			s.logger.Error("Failed to read spool directory",
				slog.String("dir", s.spoolDir),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), spoolPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.spoolDir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result.Errors++
			s.logger.Error("Failed to remove stale spool file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.SpoolRemoved++
	}
}
