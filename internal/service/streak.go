package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wordday/internal/domain"
)

// StreakStore is the persistence surface the streak service needs.
type StreakStore interface {
	StreakFor(ctx context.Context, playerID string) (*domain.StreakState, error)
	SaveStreak(ctx context.Context, s domain.StreakState) error
	RankedResults(ctx context.Context, playerID string) ([]domain.RankedResult, error)
}

// StreakService tracks consecutive-day rank-1 finishes per player.
type StreakService struct {
	store  StreakStore
	logger *slog.Logger
	now    func() time.Time
}

// NewStreakService creates a new streak service
func NewStreakService(store StreakStore, logger *slog.Logger) *StreakService {
	return &StreakService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns a player's streak, zero-valued when they have no history.
func (s *StreakService) Get(ctx context.Context, playerID string) (*domain.StreakState, error) {
	state, err := s.store.StreakFor(ctx, playerID)
	if errors.Is(err, domain.ErrStreakNotFound) {
		return &domain.StreakState{PlayerID: playerID, UpdatedAt: s.now()}, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// OnRankedResult folds one freshly ranked daily result into the
// player's streak and persists the transition.
func (s *StreakService) OnRankedResult(ctx context.Context, playerID string, date time.Time, rank int) error {
	state, err := s.Get(ctx, playerID)
	if err != nil {
		return err
	}
	state.Apply(date, rank)
	state.UpdatedAt = s.now()
	return s.store.SaveStreak(ctx, *state)
}

// Recalculate replays a player's full ranked history and overwrites the
// stored streak with the result. The stored highest seeds the replay so
// it can only be confirmed or raised.
func (s *StreakService) Recalculate(ctx context.Context, playerID string) (*domain.StreakState, error) {
	prevHighest := 0
	if prev, err := s.store.StreakFor(ctx, playerID); err == nil {
		prevHighest = prev.Highest
	} else if !errors.Is(err, domain.ErrStreakNotFound) {
		return nil, err
	}

	results, err := s.store.RankedResults(ctx, playerID)
	if err != nil {
		return nil, err
	}

	state := domain.RecalculateStreak(playerID, results, prevHighest)
	state.UpdatedAt = s.now()
	if err := s.store.SaveStreak(ctx, state); err != nil {
		return nil, err
	}

	s.logger.Info("streak recalculated",
		"player_id", playerID, "current", state.Current, "highest", state.Highest)
	return &state, nil
}
