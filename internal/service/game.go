package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wordday/internal/domain"
)

// GameStore is the persistence surface the game service needs.
type GameStore interface {
	PuzzleByDate(ctx context.Context, date time.Time) (*domain.Puzzle, error)
	PuzzleByID(ctx context.Context, id string) (*domain.Puzzle, error)
	EnsurePlayer(ctx context.Context, playerID string) error
	AttemptByID(ctx context.Context, id string) (*domain.Attempt, error)
	AttemptFor(ctx context.Context, playerID, puzzleID string) (*domain.Attempt, error)
	CreateAttempt(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error)
	SaveAttempt(ctx context.Context, a *domain.Attempt, expectedGuesses int) error
	InsertScoreRecord(ctx context.Context, rec domain.ScoreRecord) error
	ScoreRecordFor(ctx context.Context, attemptID string) (*domain.ScoreRecord, error)
}

// ResultRecorder receives a finished winning attempt. The game service
// calls it synchronously so the guess response can carry the rank.
type ResultRecorder interface {
	RecordResult(ctx context.Context, result domain.GameResult) (*domain.LeaderboardEntry, error)
}

// GameService drives the daily attempt lifecycle: fetch-or-create,
// guess submission, scoring, and handoff to the leaderboard.
type GameService struct {
	store     GameStore
	recorder  ResultRecorder
	validator domain.PlayerIDValidator
	score     domain.ScoreParams
	logger    *slog.Logger
	now       func() time.Time
}

// NewGameService creates a new game service
func NewGameService(store GameStore, recorder ResultRecorder, validator domain.PlayerIDValidator, score domain.ScoreParams, logger *slog.Logger) *GameService {
	return &GameService{
		store:     store,
		recorder:  recorder,
		validator: validator,
		score:     score,
		logger:    logger,
		now:       time.Now,
	}
}

// AttemptView is the player-facing shape of an attempt: everything about
// their session, never the target word. Clues are the schedule prefix
// matching the guesses made so far.
type AttemptView struct {
	Attempt        domain.Attempt      `json:"attempt"`
	PuzzleDate     time.Time           `json:"puzzle_date"`
	Clues          []domain.Clue       `json:"clues"`
	GuessesLeft    int                 `json:"guesses_left"`
	ElapsedSeconds int                 `json:"elapsed_seconds"`
	Score          *domain.ScoreRecord `json:"score,omitempty"`
}

// GuessOutcome is the response to one submitted guess.
type GuessOutcome struct {
	Guess domain.Guess             `json:"guess"`
	View  AttemptView              `json:"view"`
	Entry *domain.LeaderboardEntry `json:"entry,omitempty"`
}

func (s *GameService) view(ctx context.Context, a *domain.Attempt, p *domain.Puzzle) AttemptView {
	v := AttemptView{
		Attempt:        *a,
		PuzzleDate:     p.Date,
		Clues:          p.RevealedClues(len(a.Guesses)),
		GuessesLeft:    domain.MaxGuesses - len(a.Guesses),
		ElapsedSeconds: a.ElapsedSeconds(s.now()),
	}
	if a.IsComplete {
		if rec, err := s.store.ScoreRecordFor(ctx, a.ID); err == nil {
			v.Score = rec
		}
	}
	return v
}

// StartAttempt returns the player's attempt for a calendar date's puzzle,
// creating it on first fetch. Fetching again returns the same attempt;
// the clock started on the first call keeps running.
func (s *GameService) StartAttempt(ctx context.Context, playerID string, date time.Time) (*AttemptView, error) {
	if err := s.validator.Validate(playerID); err != nil {
		return nil, err
	}

	puzzle, err := s.store.PuzzleByDate(ctx, date)
	if err != nil {
		return nil, err
	}

	if err := s.store.EnsurePlayer(ctx, playerID); err != nil {
		return nil, fmt.Errorf("ensuring player: %w", err)
	}

	attempt, err := s.store.AttemptFor(ctx, playerID, puzzle.ID)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		attempt, err = s.store.CreateAttempt(ctx, domain.NewAttempt(playerID, puzzle.ID, s.now()))
	}
	if err != nil {
		return nil, err
	}

	v := s.view(ctx, attempt, puzzle)
	return &v, nil
}

// Attempt returns the current view of an attempt the player owns.
func (s *GameService) Attempt(ctx context.Context, playerID, attemptID string) (*AttemptView, error) {
	if err := s.validator.Validate(playerID); err != nil {
		return nil, err
	}
	attempt, err := s.store.AttemptByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.PlayerID != playerID {
		return nil, domain.ErrNotAttemptOwner
	}
	puzzle, err := s.store.PuzzleByID(ctx, attempt.PuzzleID)
	if err != nil {
		return nil, err
	}
	v := s.view(ctx, attempt, puzzle)
	return &v, nil
}

// SubmitGuess processes one guess against the player's attempt. The save
// is guarded by the guess count read here, so two racing submissions on
// one attempt resolve to a single winner; the loser gets a conflict.
//
// A winning guess scores the attempt and records the result on the
// leaderboard in the same call, so the response carries the rank.
func (s *GameService) SubmitGuess(ctx context.Context, playerID, attemptID, rawGuess string) (*GuessOutcome, error) {
	if err := s.validator.Validate(playerID); err != nil {
		return nil, err
	}

	attempt, err := s.store.AttemptByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.PlayerID != playerID {
		return nil, domain.ErrNotAttemptOwner
	}

	puzzle, err := s.store.PuzzleByID(ctx, attempt.PuzzleID)
	if err != nil {
		return nil, err
	}

	expected := len(attempt.Guesses)
	now := s.now()
	guess, err := attempt.Submit(rawGuess, puzzle.Word, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.SaveAttempt(ctx, attempt, expected); err != nil {
		return nil, err
	}

	outcome := &GuessOutcome{Guess: guess}

	// Only wins carry a score record and a leaderboard entry; a lost
	// attempt stays terminal with nothing downstream.
	if attempt.IsComplete && attempt.IsWon {
		rec := domain.Score(s.score, len(attempt.Guesses), attempt.FuzzyMatches(), attempt.ElapsedSeconds(now), attempt.IsWon)
		rec.AttemptID = attempt.ID
		rec.CreatedAt = now
		if err := s.store.InsertScoreRecord(ctx, rec); err != nil {
			return nil, err
		}

		entry, err := s.recorder.RecordResult(ctx, domain.GameResult{
			PlayerID:       playerID,
			PuzzleID:       puzzle.ID,
			Date:           puzzle.Date,
			ElapsedSeconds: attempt.ElapsedSeconds(now),
			GuessesUsed:    len(attempt.Guesses),
			IsWon:          true,
		})
		switch {
		case errors.Is(err, domain.ErrPartitionFinalized):
			// Late win on an already-frozen day: the attempt and its
			// score stand, the board does not change.
			s.logger.Warn("win landed after finalization",
				"player_id", playerID, "puzzle_id", puzzle.ID)
		case err != nil:
			return nil, err
		default:
			outcome.Entry = entry
		}
	}

	outcome.View = s.view(ctx, attempt, puzzle)
	return outcome, nil
}
