package domain

import "time"

// ClueType identifies one step of the fixed reveal schedule.
type ClueType string

const (
	ClueDefinition  ClueType = "definition"
	ClueEquivalents ClueType = "equivalents"
	ClueFirstLetter ClueType = "first_letter"
	ClueUsage       ClueType = "usage"
	ClueLetterCount ClueType = "letter_count"
	ClueEtymology   ClueType = "etymology"
)

// MaxGuesses is the number of guesses an attempt may consume; it equals
// the length of the clue schedule, one clue revealed per guess made.
const MaxGuesses = 6

// clueSchedule is the fixed order in which clues unlock.
var clueSchedule = [MaxGuesses]ClueType{
	ClueDefinition,
	ClueEquivalents,
	ClueFirstLetter,
	ClueUsage,
	ClueLetterCount,
	ClueEtymology,
}

// ClueSchedule returns the full reveal order.
func ClueSchedule() []ClueType {
	s := make([]ClueType, MaxGuesses)
	copy(s[:], clueSchedule[:])
	return s
}

// RevealedSchedule returns the schedule prefix unlocked after the given
// number of guesses.
func RevealedSchedule(guessesMade int) []ClueType {
	if guessesMade < 0 {
		guessesMade = 0
	}
	if guessesMade > MaxGuesses {
		guessesMade = MaxGuesses
	}
	return ClueSchedule()[:guessesMade]
}

// Puzzle is one day's word and its ordered clues. Puzzles are authored
// externally and immutable once published.
type Puzzle struct {
	ID       string              `json:"id"`
	Date     time.Time           `json:"date"`
	Word     string              `json:"-"`
	Clues    map[ClueType]string `json:"-"`
	ThemeTag string              `json:"theme_tag,omitempty"`
}

// RevealedClues returns the clue texts unlocked after the given number
// of guesses, in schedule order.
func (p *Puzzle) RevealedClues(guessesMade int) []Clue {
	types := RevealedSchedule(guessesMade)
	clues := make([]Clue, len(types))
	for i, t := range types {
		clues[i] = Clue{Type: t, Text: p.Clues[t]}
	}
	return clues
}

// Clue pairs a schedule step with its text.
type Clue struct {
	Type ClueType `json:"type"`
	Text string   `json:"text"`
}

// Day truncates a timestamp to its UTC calendar date. All puzzle "day"
// boundaries in the system are calendar dates, never wall-clock offsets.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two timestamps fall on the same UTC date.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}
