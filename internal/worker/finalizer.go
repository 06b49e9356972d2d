package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wordday/internal/config"
	"github.com/wordday/internal/domain"
	"github.com/wordday/internal/service"
)

// PartitionSource lists and reads live partitions for the warm pass.
type PartitionSource interface {
	UnfinalizedPartitions(ctx context.Context, before time.Time) ([]domain.PartitionRef, error)
	Partition(ctx context.Context, puzzleID string, date time.Time) ([]domain.LeaderboardEntry, error)
}

// Finalizer periodically freezes overdue partitions and keeps the live
// partition cache warm across restarts.
type Finalizer struct {
	leaderboard *service.LeaderboardService
	source      PartitionSource
	cache       service.PartitionCache
	config      *config.FinalizerConfig
	logger      *slog.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	mu          sync.Mutex
	running     bool
}

// NewFinalizer creates a new finalizer worker
func NewFinalizer(
	leaderboard *service.LeaderboardService,
	source PartitionSource,
	cache service.PartitionCache,
	cfg *config.FinalizerConfig,
	logger *slog.Logger,
) *Finalizer {
	return &Finalizer{
		leaderboard: leaderboard,
		source:      source,
		cache:       cache,
		config:      cfg,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the background finalization process
func (w *Finalizer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("finalizer started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background finalization process
func (w *Finalizer) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("finalizer stopped")
	return nil
}

// run is the main worker loop
func (w *Finalizer) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep finalizes every partition from days already over
func (w *Finalizer) sweep(ctx context.Context) {
	startTime := time.Now()

	outcome, err := w.leaderboard.AutoFinalize(ctx, domain.Day(time.Now()))
	if err != nil {
		w.logger.Error("finalize sweep failed", "error", err)
		return
	}

	if len(outcome.Finalized) > 0 || len(outcome.Failed) > 0 {
		w.logger.Info("finalize sweep completed",
			"duration", time.Since(startTime),
			"finalized", len(outcome.Finalized),
			"failed", len(outcome.Failed),
		)
	}
}

// WarmCache rebuilds the live partition cache from storage. Run at
// startup so a restarted node serves cached reads immediately; every
// partition not yet frozen is a live one.
func (w *Finalizer) WarmCache(ctx context.Context) error {
	if w.cache == nil {
		return nil
	}

	// Tomorrow as cutoff includes today's still-running partitions.
	refs, err := w.source.UnfinalizedPartitions(ctx, domain.Day(time.Now()).AddDate(0, 0, 1))
	if err != nil {
		return err
	}

	warmed := 0
	for _, ref := range refs {
		entries, err := w.source.Partition(ctx, ref.PuzzleID, ref.Date)
		if err != nil {
			w.logger.Error("reading partition for warm",
				"puzzle_id", ref.PuzzleID, "error", err)
			continue
		}
		if err := w.cache.WarmPartition(ctx, ref.PuzzleID, ref.Date, entries); err != nil {
			w.logger.Error("warming partition",
				"puzzle_id", ref.PuzzleID, "error", err)
			continue
		}
		warmed++
	}

	w.logger.Info("partition cache warmed", "partitions", warmed)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *Finalizer) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single finalize sweep (useful for manual triggers)
func (w *Finalizer) RunOnce(ctx context.Context) {
	w.sweep(ctx)
}
