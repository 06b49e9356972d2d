package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wordday/internal/domain"
)

// LeaderboardStore is the persistence surface the leaderboard service
// needs. Writes are transactional in the implementation; the service
// only sequences them.
type LeaderboardStore interface {
	UpsertBestEntryAndRerank(ctx context.Context, candidate domain.LeaderboardEntry) (*domain.LeaderboardEntry, []domain.LeaderboardEntry, bool, error)
	Partition(ctx context.Context, puzzleID string, date time.Time) ([]domain.LeaderboardEntry, error)
	EntryFor(ctx context.Context, puzzleID string, date time.Time, playerID string) (*domain.LeaderboardEntry, error)
	CreateSnapshot(ctx context.Context, snap domain.DailySnapshot) (*domain.DailySnapshot, bool, error)
	Snapshot(ctx context.Context, puzzleID string, date time.Time) (*domain.DailySnapshot, error)
	UnfinalizedPartitions(ctx context.Context, before time.Time) ([]domain.PartitionRef, error)
}

// PartitionCache is the fast-path cache for live partitions.
type PartitionCache interface {
	WarmPartition(ctx context.Context, puzzleID string, date time.Time, entries []domain.LeaderboardEntry) error
	TopN(ctx context.Context, puzzleID string, date time.Time, n int) ([]domain.LeaderboardEntry, error)
	PartitionSize(ctx context.Context, puzzleID string, date time.Time) (int64, error)
	DropPartition(ctx context.Context, puzzleID string, date time.Time) error
}

// Broadcaster pushes live partition changes to connected clients.
type Broadcaster interface {
	BroadcastRankUpdate(puzzleID string, date time.Time, entries []domain.LeaderboardEntry)
	BroadcastPlayerUpdate(entry domain.LeaderboardEntry)
	BroadcastFinalized(snap domain.DailySnapshot)
}

// StreakRecorder folds a freshly ranked result into the player's streak.
type StreakRecorder interface {
	OnRankedResult(ctx context.Context, playerID string, date time.Time, rank int) error
}

// LeaderboardService owns the per-(puzzle, date) partitions: result
// ingestion with dense reranking, reads, and finalization.
type LeaderboardService struct {
	store   LeaderboardStore
	cache   PartitionCache
	hub     Broadcaster
	streaks StreakRecorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewLeaderboardService creates a new leaderboard service. Cache, hub
// and streaks may be nil; the core write path works without them.
func NewLeaderboardService(store LeaderboardStore, cache PartitionCache, hub Broadcaster, streaks StreakRecorder, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{
		store:   store,
		cache:   cache,
		hub:     hub,
		streaks: streaks,
		logger:  logger,
		now:     time.Now,
	}
}

// Leaderboard is a partition read with the requesting player's own
// position, wherever it falls.
type Leaderboard struct {
	PuzzleID     string                    `json:"puzzle_id"`
	Date         time.Time                 `json:"date"`
	Finalized    bool                      `json:"finalized"`
	Entries      []domain.LeaderboardEntry `json:"entries"`
	TotalPlayers int                       `json:"total_players"`
	Own          *domain.LeaderboardEntry  `json:"own,omitempty"`
}

// FinalizeOutcome reports one partition's finalization.
type FinalizeOutcome struct {
	Snapshot *domain.DailySnapshot `json:"snapshot"`
	Created  bool                  `json:"created"`
}

// RecordResult records a winning result on its partition. Losses never
// touch the leaderboard. The write reranks the partition, updates the
// player's streak from the rank it landed at, refreshes the cache, and
// broadcasts the new order.
func (s *LeaderboardService) RecordResult(ctx context.Context, result domain.GameResult) (*domain.LeaderboardEntry, error) {
	if !result.IsWon {
		return nil, nil
	}
	if result.ElapsedSeconds < 0 || result.GuessesUsed < 1 || result.GuessesUsed > domain.MaxGuesses {
		return nil, domain.ErrInvalidRequest
	}

	own, partition, changed, err := s.store.UpsertBestEntryAndRerank(ctx, domain.LeaderboardEntry{
		PlayerID:       result.PlayerID,
		PuzzleID:       result.PuzzleID,
		Date:           domain.Day(result.Date),
		ElapsedSeconds: result.ElapsedSeconds,
		GuessesUsed:    result.GuessesUsed,
		AchievedAt:     s.now(),
	})
	if err != nil {
		return nil, err
	}

	// An unchanged partition means the player already holds an equal or
	// better entry for this day; the streak was signaled when that entry
	// landed.
	if changed && s.streaks != nil {
		if err := s.streaks.OnRankedResult(ctx, own.PlayerID, own.Date, own.Rank); err != nil {
			s.logger.Error("updating streak", "player_id", own.PlayerID, "error", err)
		}
	}

	if changed {
		if s.cache != nil {
			if err := s.cache.WarmPartition(ctx, result.PuzzleID, own.Date, partition); err != nil {
				s.logger.Error("refreshing partition cache", "puzzle_id", result.PuzzleID, "error", err)
			}
		}
		if s.hub != nil {
			s.hub.BroadcastRankUpdate(result.PuzzleID, own.Date, partition)
			s.hub.BroadcastPlayerUpdate(*own)
		}
	}

	return own, nil
}

// GetLeaderboard reads a partition. Finalized partitions come from the
// snapshot; live ones prefer the cache and fall back to storage. The
// requesting player's own entry is attached when present.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, puzzleID string, date time.Time, limit int, requestingPlayer string) (*Leaderboard, error) {
	day := domain.Day(date)

	snap, err := s.store.Snapshot(ctx, puzzleID, day)
	if err == nil {
		lb := &Leaderboard{
			PuzzleID:     puzzleID,
			Date:         day,
			Finalized:    true,
			Entries:      snap.Entries,
			TotalPlayers: snap.TotalPlayers,
		}
		if limit > 0 && limit < len(lb.Entries) {
			lb.Entries = lb.Entries[:limit]
		}
		s.attachOwn(lb, snap.Entries, requestingPlayer)
		return lb, nil
	}
	if !errors.Is(err, domain.ErrEntryNotFound) {
		return nil, err
	}

	// Anonymous limited reads of a live partition can be served from the
	// cache; anything needing a player's dense rank reads storage.
	if s.cache != nil && requestingPlayer == "" && limit > 0 {
		if lb, ok := s.cachedRead(ctx, puzzleID, day, limit); ok {
			return lb, nil
		}
	}

	entries, err := s.store.Partition(ctx, puzzleID, day)
	if err != nil {
		return nil, err
	}

	lb := &Leaderboard{
		PuzzleID:     puzzleID,
		Date:         day,
		Entries:      entries,
		TotalPlayers: len(entries),
	}
	if limit > 0 && limit < len(lb.Entries) {
		lb.Entries = lb.Entries[:limit]
	}
	s.attachOwn(lb, entries, requestingPlayer)
	return lb, nil
}

func (s *LeaderboardService) cachedRead(ctx context.Context, puzzleID string, day time.Time, limit int) (*Leaderboard, bool) {
	entries, err := s.cache.TopN(ctx, puzzleID, day, limit)
	if err != nil || len(entries) == 0 {
		return nil, false
	}
	size, err := s.cache.PartitionSize(ctx, puzzleID, day)
	if err != nil {
		return nil, false
	}
	return &Leaderboard{
		PuzzleID:     puzzleID,
		Date:         day,
		Entries:      entries,
		TotalPlayers: int(size),
	}, true
}

func (s *LeaderboardService) attachOwn(lb *Leaderboard, all []domain.LeaderboardEntry, playerID string) {
	if playerID == "" {
		return
	}
	for i := range all {
		if all[i].PlayerID == playerID {
			own := all[i]
			lb.Own = &own
			return
		}
	}
}

// PlayerEntry returns one player's entry in a partition.
func (s *LeaderboardService) PlayerEntry(ctx context.Context, puzzleID string, date time.Time, playerID string) (*domain.LeaderboardEntry, error) {
	return s.store.EntryFor(ctx, puzzleID, domain.Day(date), playerID)
}

// Finalize freezes one partition. Idempotent: finalizing twice returns
// the first snapshot unchanged. The live cache is dropped once frozen,
// and subscribers are told the board is final.
func (s *LeaderboardService) Finalize(ctx context.Context, puzzleID string, date time.Time) (*FinalizeOutcome, error) {
	day := domain.Day(date)

	entries, err := s.store.Partition(ctx, puzzleID, day)
	if err != nil {
		return nil, err
	}

	snap, created, err := s.store.CreateSnapshot(ctx, domain.NewSnapshot(puzzleID, day, entries, s.now()))
	if err != nil {
		return nil, err
	}

	if created {
		if s.cache != nil {
			if err := s.cache.DropPartition(ctx, puzzleID, day); err != nil {
				s.logger.Error("dropping partition cache", "puzzle_id", puzzleID, "error", err)
			}
		}
		if s.hub != nil {
			s.hub.BroadcastFinalized(*snap)
		}
		s.logger.Info("partition finalized",
			"puzzle_id", puzzleID, "date", day.Format("2006-01-02"),
			"total_players", snap.TotalPlayers)
	}

	return &FinalizeOutcome{Snapshot: snap, Created: created}, nil
}

// SweepOutcome reports one auto-finalize sweep.
type SweepOutcome struct {
	Finalized []domain.PartitionRef `json:"finalized"`
	Failed    []domain.PartitionRef `json:"failed,omitempty"`
}

// AutoFinalize freezes every partition dated strictly before the cutoff
// that still lacks a snapshot. One partition failing does not stop the
// sweep; failures are reported alongside the successes.
func (s *LeaderboardService) AutoFinalize(ctx context.Context, before time.Time) (*SweepOutcome, error) {
	refs, err := s.store.UnfinalizedPartitions(ctx, domain.Day(before))
	if err != nil {
		return nil, fmt.Errorf("listing unfinalized partitions: %w", err)
	}

	outcome := &SweepOutcome{}
	for _, ref := range refs {
		if _, err := s.Finalize(ctx, ref.PuzzleID, ref.Date); err != nil {
			s.logger.Error("auto-finalize failed",
				"puzzle_id", ref.PuzzleID, "date", ref.Date.Format("2006-01-02"), "error", err)
			outcome.Failed = append(outcome.Failed, ref)
			continue
		}
		outcome.Finalized = append(outcome.Finalized, ref)
	}
	return outcome, nil
}
