package domain

import (
	"sort"
	"time"
)

// StreakState tracks a player's consecutive-day rank-1 finishes.
// Highest never decreases; only Current resets.
type StreakState struct {
	PlayerID    string     `json:"player_id"`
	Current     int        `json:"current_streak"`
	Highest     int        `json:"highest_streak"`
	LastWinDate *time.Time `json:"last_win_date,omitempty"`
	StartDate   *time.Time `json:"streak_start_date,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RankedResult is the (date, rank) pair a finished partition write
// produces for one player.
type RankedResult struct {
	Date time.Time `json:"date"`
	Rank int       `json:"rank"`
}

// Apply folds one ranked result into the streak. Rank 1 the day after
// the last win extends the streak; rank 1 after a gap (or with no
// history) starts a new one; a repeated rank-1 signal for the last
// counted day is a no-op, so redelivered results cannot reset a run.
// Any other rank zeroes the current streak and leaves the highest
// untouched.
func (s *StreakState) Apply(date time.Time, rank int) {
	day := Day(date)
	if rank != 1 {
		s.Current = 0
		s.StartDate = nil
		return
	}
	switch {
	case s.LastWinDate != nil && Day(*s.LastWinDate).Equal(day):
		// Already counted this day.
		return
	case s.LastWinDate != nil && Day(*s.LastWinDate).AddDate(0, 0, 1).Equal(day):
		s.Current++
	default:
		s.Current = 1
		start := day
		s.StartDate = &start
	}
	s.LastWinDate = &day
	if s.Current > s.Highest {
		s.Highest = s.Current
	}
}

// RecalculateStreak replays a player's full ranked history in ascending
// date order through the same transition rules. Highest is seeded from
// prevHighest so a replay can only confirm or raise it, never shrink it.
func RecalculateStreak(playerID string, results []RankedResult, prevHighest int) StreakState {
	sorted := make([]RankedResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	s := StreakState{PlayerID: playerID, Highest: prevHighest}
	for _, r := range sorted {
		s.Apply(r.Date, r.Rank)
	}
	return s
}
