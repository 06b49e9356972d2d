package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wordday/internal/domain"
)

var testDay = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func newGameFixture(t *testing.T) (*GameService, *memStore, *fakeRecorder) {
	t.Helper()
	store := newMemStore()
	store.addPuzzle(domain.Puzzle{
		ID:   "pz-1",
		Date: testDay,
		Word: "ephemeral",
		Clues: map[domain.ClueType]string{
			domain.ClueDefinition:  "lasting a very short time",
			domain.ClueEquivalents: "fleeting, transient",
			domain.ClueFirstLetter: "e",
			domain.ClueUsage:       "the ___ beauty of a sunset",
			domain.ClueLetterCount: "9",
			domain.ClueEtymology:   "from Greek ephemeros",
		},
	})
	recorder := &fakeRecorder{}
	svc := NewGameService(store, recorder, domain.PlayerIDValidator{Strict: true}, domain.DefaultScoreParams(), testLogger())
	svc.now = fixedClock(testDay.Add(10 * time.Hour))
	return svc, store, recorder
}

func TestStartAttemptIsIdempotent(t *testing.T) {
	svc, _, _ := newGameFixture(t)
	ctx := context.Background()

	first, err := svc.StartAttempt(ctx, "alice", testDay)
	if err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}
	if len(first.Clues) != 0 {
		t.Errorf("fresh attempt revealed %d clues, want 0", len(first.Clues))
	}
	if first.GuessesLeft != domain.MaxGuesses {
		t.Errorf("GuessesLeft = %d, want %d", first.GuessesLeft, domain.MaxGuesses)
	}

	second, err := svc.StartAttempt(ctx, "alice", testDay)
	if err != nil {
		t.Fatalf("StartAttempt() again error = %v", err)
	}
	if second.Attempt.ID != first.Attempt.ID {
		t.Errorf("second fetch created a new attempt: %s != %s", second.Attempt.ID, first.Attempt.ID)
	}
}

func TestStartAttemptValidation(t *testing.T) {
	svc, _, _ := newGameFixture(t)

	if _, err := svc.StartAttempt(context.Background(), "A!", testDay); !errors.Is(err, domain.ErrInvalidPlayerID) {
		t.Errorf("StartAttempt() error = %v, want ErrInvalidPlayerID", err)
	}
	if _, err := svc.StartAttempt(context.Background(), "alice", testDay.AddDate(0, 0, 5)); !errors.Is(err, domain.ErrPuzzleNotFound) {
		t.Errorf("StartAttempt() error = %v, want ErrPuzzleNotFound", err)
	}
}

func TestSubmitGuessRevealsClues(t *testing.T) {
	svc, _, recorder := newGameFixture(t)
	ctx := context.Background()

	view, err := svc.StartAttempt(ctx, "alice", testDay)
	if err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}

	out, err := svc.SubmitGuess(ctx, "alice", view.Attempt.ID, "evanescent")
	if err != nil {
		t.Fatalf("SubmitGuess() error = %v", err)
	}
	if out.Guess.IsCorrect {
		t.Error("wrong guess marked correct")
	}
	if len(out.View.Clues) != 1 || out.View.Clues[0].Type != domain.ClueDefinition {
		t.Errorf("after 1 guess clues = %v, want [definition]", out.View.Clues)
	}
	if len(recorder.results) != 0 {
		t.Error("wrong guess reached the leaderboard")
	}
}

func TestSubmitGuessWinScoresAndRanks(t *testing.T) {
	svc, store, recorder := newGameFixture(t)
	ctx := context.Background()

	view, err := svc.StartAttempt(ctx, "alice", testDay)
	if err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}

	start := testDay.Add(10 * time.Hour)
	svc.now = fixedClock(start.Add(45 * time.Second))

	out, err := svc.SubmitGuess(ctx, "alice", view.Attempt.ID, "  EPHEMERAL ")
	if err != nil {
		t.Fatalf("SubmitGuess() error = %v", err)
	}
	if !out.Guess.IsCorrect || !out.View.Attempt.IsWon {
		t.Fatal("correct guess did not win the attempt")
	}
	if out.Entry == nil || out.Entry.Rank != 1 {
		t.Fatalf("win outcome entry = %+v, want rank 1", out.Entry)
	}
	if len(recorder.results) != 1 {
		t.Fatalf("recorder received %d results, want 1", len(recorder.results))
	}
	got := recorder.results[0]
	if got.ElapsedSeconds != 45 || got.GuessesUsed != 1 || !got.IsWon {
		t.Errorf("recorded result = %+v, want 45s, 1 guess, won", got)
	}

	rec, err := store.ScoreRecordFor(ctx, view.Attempt.ID)
	if err != nil {
		t.Fatalf("ScoreRecordFor() error = %v", err)
	}
	// 1000 base, no guess penalty, -8 for four full 10s blocks.
	if rec.FinalScore != 992 {
		t.Errorf("FinalScore = %d, want 992", rec.FinalScore)
	}
}

func TestSubmitGuessLossRecordsNoScore(t *testing.T) {
	svc, store, recorder := newGameFixture(t)
	ctx := context.Background()

	view, err := svc.StartAttempt(ctx, "alice", testDay)
	if err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}

	for i := 0; i < domain.MaxGuesses; i++ {
		if _, err := svc.SubmitGuess(ctx, "alice", view.Attempt.ID, "wrong"); err != nil {
			t.Fatalf("guess %d error = %v", i+1, err)
		}
	}

	if _, err := store.ScoreRecordFor(ctx, view.Attempt.ID); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("lost attempt score error = %v, want ErrEntryNotFound", err)
	}
	if len(recorder.results) != 0 {
		t.Error("lost attempt reached the leaderboard")
	}

	if _, err := svc.SubmitGuess(ctx, "alice", view.Attempt.ID, "another"); !errors.Is(err, domain.ErrAttemptComplete) {
		t.Errorf("guess on terminal attempt error = %v, want ErrAttemptComplete", err)
	}
}

func TestSubmitGuessOwnership(t *testing.T) {
	svc, _, _ := newGameFixture(t)
	ctx := context.Background()

	view, err := svc.StartAttempt(ctx, "alice", testDay)
	if err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}

	if _, err := svc.SubmitGuess(ctx, "mallory", view.Attempt.ID, "ephemeral"); !errors.Is(err, domain.ErrNotAttemptOwner) {
		t.Errorf("SubmitGuess() error = %v, want ErrNotAttemptOwner", err)
	}
	if _, err := svc.Attempt(ctx, "mallory", view.Attempt.ID); !errors.Is(err, domain.ErrNotAttemptOwner) {
		t.Errorf("Attempt() error = %v, want ErrNotAttemptOwner", err)
	}
}

// racingStore injects a concurrent guess between the service's read of
// an attempt and its guarded save.
type racingStore struct {
	*memStore
	raceOnce bool
}

func (r *racingStore) AttemptByID(ctx context.Context, id string) (*domain.Attempt, error) {
	a, err := r.memStore.AttemptByID(ctx, id)
	if err == nil && r.raceOnce {
		r.raceOnce = false
		stored := r.memStore.attempts[id]
		stored.Guesses = append(stored.Guesses, domain.Guess{Word: "raced"})
	}
	return a, err
}

func TestSubmitGuessConcurrentConflict(t *testing.T) {
	base, store, recorder := newGameFixture(t)
	racing := &racingStore{memStore: store}
	svc := NewGameService(racing, recorder, domain.PlayerIDValidator{Strict: true}, domain.DefaultScoreParams(), testLogger())
	svc.now = base.now
	ctx := context.Background()

	view, err := svc.StartAttempt(ctx, "alice", testDay)
	if err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}

	racing.raceOnce = true
	if _, err := svc.SubmitGuess(ctx, "alice", view.Attempt.ID, "mine"); !errors.Is(err, domain.ErrAttemptConflict) {
		t.Errorf("SubmitGuess() error = %v, want ErrAttemptConflict", err)
	}
	if got := len(store.attempts[view.Attempt.ID].Guesses); got != 1 {
		t.Errorf("attempt has %d guesses after race, want only the winner's", got)
	}
}

func TestSubmitGuessAfterFinalization(t *testing.T) {
	svc, store, recorder := newGameFixture(t)
	recorder.err = domain.ErrPartitionFinalized
	ctx := context.Background()

	view, err := svc.StartAttempt(ctx, "alice", testDay)
	if err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}

	out, err := svc.SubmitGuess(ctx, "alice", view.Attempt.ID, "ephemeral")
	if err != nil {
		t.Fatalf("SubmitGuess() error = %v, want graceful degradation", err)
	}
	if out.Entry != nil {
		t.Error("late win still produced a leaderboard entry")
	}
	if _, err := store.ScoreRecordFor(ctx, view.Attempt.ID); err != nil {
		t.Errorf("late win score missing: %v", err)
	}
}
