package domain

import (
	"time"

	"github.com/google/uuid"
)

// Guess is one processed guess inside an attempt.
type Guess struct {
	Word      string    `json:"word"`
	IsCorrect bool      `json:"is_correct"`
	IsFuzzy   bool      `json:"is_fuzzy"`
	MadeAt    time.Time `json:"made_at"`
}

// Attempt is one player's session against one puzzle. It is created on
// first fetch of the puzzle and mutated by each guess until terminal.
type Attempt struct {
	ID          string     `json:"id"`
	PlayerID    string     `json:"player_id"`
	PuzzleID    string     `json:"puzzle_id"`
	Guesses     []Guess    `json:"guesses"`
	IsComplete  bool       `json:"is_complete"`
	IsWon       bool       `json:"is_won"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewAttempt starts a fresh attempt for a player on a puzzle.
func NewAttempt(playerID, puzzleID string, now time.Time) *Attempt {
	return &Attempt{
		ID:        uuid.New().String(),
		PlayerID:  playerID,
		PuzzleID:  puzzleID,
		StartedAt: now,
	}
}

// RevealedClueTypes is always the schedule prefix of length equal to the
// guesses made so far.
func (a *Attempt) RevealedClueTypes() []ClueType {
	return RevealedSchedule(len(a.Guesses))
}

// FuzzyMatches counts the near-miss guesses recorded on the attempt.
func (a *Attempt) FuzzyMatches() int {
	n := 0
	for _, g := range a.Guesses {
		if g.IsFuzzy {
			n++
		}
	}
	return n
}

// ElapsedSeconds is the play duration, using now for attempts still open.
func (a *Attempt) ElapsedSeconds(now time.Time) int {
	end := now
	if a.CompletedAt != nil {
		end = *a.CompletedAt
	}
	d := end.Sub(a.StartedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// Submit processes one raw guess against the target word. Both sides are
// normalized before comparison. It appends the guess, flips the attempt
// to terminal when the guess is correct or the sixth guess is spent, and
// stamps the completion time on that transition.
//
// Returns ErrInvalidGuess when the guess normalizes to nothing and
// ErrAttemptComplete when the attempt is already terminal; neither
// mutates the attempt.
func (a *Attempt) Submit(rawGuess, targetWord string, now time.Time) (Guess, error) {
	if a.IsComplete {
		return Guess{}, ErrAttemptComplete
	}
	guess := NormalizeComparison(rawGuess)
	if guess == "" {
		return Guess{}, ErrInvalidGuess
	}
	target := NormalizeComparison(targetWord)

	g := Guess{
		Word:      guess,
		IsCorrect: guess == target,
		IsFuzzy:   IsFuzzyMatch(guess, target),
		MadeAt:    now,
	}
	a.Guesses = append(a.Guesses, g)

	if g.IsCorrect || len(a.Guesses) >= MaxGuesses {
		a.IsComplete = true
		a.IsWon = g.IsCorrect
		t := now
		a.CompletedAt = &t
	}
	return g, nil
}

// FuzzyOverlap counts character positions where guess and target hold
// the same rune.
func FuzzyOverlap(guess, target string) int {
	g := []rune(guess)
	t := []rune(target)
	n := len(g)
	if len(t) < n {
		n = len(t)
	}
	overlap := 0
	for i := 0; i < n; i++ {
		if g[i] == t[i] {
			overlap++
		}
	}
	return overlap
}

// IsFuzzyMatch reports whether a wrong guess is close enough to reward:
// at least half of the target's positions hold the matching letter.
// Fuzzy matches raise the final score, they never lower it.
func IsFuzzyMatch(guess, target string) bool {
	if guess == target || target == "" {
		return false
	}
	return 2*FuzzyOverlap(guess, target) >= len([]rune(target))
}
