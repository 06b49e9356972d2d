package domain

import (
	"math"
	"sort"
	"time"
)

// ThemeWeekDays is the span of one theme: seven consecutive daily
// puzzles sharing a tag, Monday through Sunday.
const ThemeWeekDays = 7

// MatchMethod is the tier at which a theme guess was resolved.
type MatchMethod string

const (
	MatchExact    MatchMethod = "exact"
	MatchSynonym  MatchMethod = "synonym"
	MatchSemantic MatchMethod = "semantic"
	MatchError    MatchMethod = "error"
)

// Theme is one weekly theme: the shared tag and the Monday–Sunday
// window derived from the tagged puzzles' dates.
type Theme struct {
	Tag       string    `json:"tag"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// ThemeWindow derives the Monday–Sunday window from the dates of the
// puzzles carrying the tag: the earliest tagged date is snapped back to
// its Monday. Window boundaries come from puzzle dates, never from the
// wall clock alone.
func ThemeWindow(puzzleDates []time.Time) (start, end time.Time, ok bool) {
	if len(puzzleDates) == 0 {
		return time.Time{}, time.Time{}, false
	}
	min := Day(puzzleDates[0])
	for _, d := range puzzleDates[1:] {
		if day := Day(d); day.Before(min) {
			min = day
		}
	}
	// time.Weekday counts Sunday as 0; shift so Monday is the origin.
	offset := (int(min.Weekday()) + 6) % 7
	start = min.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, ThemeWeekDays-1), true
}

// ThemeDayOfWeek is the 1-indexed day (Monday=1) of a date relative to
// the theme's start.
func ThemeDayOfWeek(themeStart, date time.Time) int {
	days := int(Day(date).Sub(Day(themeStart)) / (24 * time.Hour))
	return days + 1
}

// ThemeAttempt is one weekly-theme guess, read-only once created.
type ThemeAttempt struct {
	ID          string      `json:"id"`
	PlayerID    string      `json:"player_id"`
	ThemeTag    string      `json:"theme_tag"`
	Guess       string      `json:"guess"`
	IsCorrect   bool        `json:"is_correct"`
	Similarity  float64     `json:"similarity"`
	Confidence  int         `json:"confidence"`
	Method      MatchMethod `json:"method"`
	AttemptDate time.Time   `json:"attempt_date"`
}

// Confidence converts a [0,1] similarity into a rounded percentage.
func Confidence(similarity float64) int {
	if similarity < 0 {
		return 0
	}
	if similarity > 1 {
		return 100
	}
	return int(math.Round(similarity * 100))
}

// FeedbackBand is the discrete message tier chosen by confidence.
type FeedbackBand struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

// feedbackBands is ordered highest floor first. The top three bands are
// the accepted tiers; the remaining four are warmth hints for rejected
// guesses.
var feedbackBands = []struct {
	floor int
	band  FeedbackBand
}{
	{90, FeedbackBand{Label: "90-100", Message: "Spot on — that's the theme."}},
	{80, FeedbackBand{Label: "80-89", Message: "You've clearly got it."}},
	{70, FeedbackBand{Label: "70-79", Message: "Close enough — we'll take it."}},
	{50, FeedbackBand{Label: "50-69", Message: "Warm. You're circling the right idea."}},
	{35, FeedbackBand{Label: "35-49", Message: "Lukewarm. There's a thread, but it's thin."}},
	{20, FeedbackBand{Label: "20-34", Message: "Cold. Try a different angle."}},
	{0, FeedbackBand{Label: "0-19", Message: "Ice cold. Nowhere near yet."}},
}

// FeedbackFor picks the feedback band for a confidence percentage.
func FeedbackFor(confidence int) FeedbackBand {
	for _, b := range feedbackBands {
		if confidence >= b.floor {
			return b.band
		}
	}
	return feedbackBands[len(feedbackBands)-1].band
}

// ThemeEvaluation is the full outcome of one theme guess.
type ThemeEvaluation struct {
	Attempt  ThemeAttempt `json:"attempt"`
	Feedback FeedbackBand `json:"feedback"`
}

// ThemeStanding is one player's row on the all-time theme leaderboard.
type ThemeStanding struct {
	PlayerID       string  `json:"player_id"`
	ThemesUnlocked int     `json:"themes_unlocked"`
	AvgUnlockDay   float64 `json:"avg_unlock_day"`
	SuccessRate    float64 `json:"success_rate"`
	TotalAttempts  int     `json:"total_attempts"`
}

// SortThemeStandings orders the all-time theme leaderboard: most themes
// unlocked first, then earliest average unlock day of week, then best
// success rate.
func SortThemeStandings(standings []ThemeStanding) {
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.ThemesUnlocked != b.ThemesUnlocked {
			return a.ThemesUnlocked > b.ThemesUnlocked
		}
		if a.AvgUnlockDay != b.AvgUnlockDay {
			return a.AvgUnlockDay < b.AvgUnlockDay
		}
		return a.SuccessRate > b.SuccessRate
	})
}
