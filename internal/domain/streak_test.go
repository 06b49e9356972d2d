package domain

import (
	"testing"
	"time"
)

func day(d int) time.Time {
	// March 2025: the 3rd is a Monday.
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestStreakApply(t *testing.T) {
	s := StreakState{PlayerID: "ada"}

	// Wins Mon, Tue, Wed.
	s.Apply(day(3), 1)
	s.Apply(day(4), 1)
	s.Apply(day(5), 1)
	if s.Current != 3 || s.Highest != 3 {
		t.Fatalf("after three consecutive wins: current=%d highest=%d, want 3/3", s.Current, s.Highest)
	}
	if s.StartDate == nil || !s.StartDate.Equal(day(3)) {
		t.Fatalf("streak start = %v, want %v", s.StartDate, day(3))
	}

	// Missed Thursday; win Friday resets to 1, highest stays.
	s.Apply(day(7), 1)
	if s.Current != 1 || s.Highest != 3 {
		t.Fatalf("after gap win: current=%d highest=%d, want 1/3", s.Current, s.Highest)
	}
	if s.StartDate == nil || !s.StartDate.Equal(day(7)) {
		t.Fatalf("new streak start = %v, want %v", s.StartDate, day(7))
	}

	// Loss zeroes current, highest untouched.
	s.Apply(day(8), 2)
	if s.Current != 0 || s.Highest != 3 {
		t.Fatalf("after loss: current=%d highest=%d, want 0/3", s.Current, s.Highest)
	}
}

func TestStreakApplySameDayRedelivery(t *testing.T) {
	s := StreakState{PlayerID: "ada"}
	s.Apply(day(3), 1)
	s.Apply(day(4), 1)
	s.Apply(day(5), 1)

	// A redelivered result for an already-counted day changes nothing.
	s.Apply(day(5), 1)
	if s.Current != 3 || s.Highest != 3 {
		t.Fatalf("after redelivery: current=%d highest=%d, want 3/3", s.Current, s.Highest)
	}
	if s.StartDate == nil || !s.StartDate.Equal(day(3)) {
		t.Fatalf("streak start = %v, want %v", s.StartDate, day(3))
	}
	if s.LastWinDate == nil || !s.LastWinDate.Equal(day(5)) {
		t.Fatalf("last win date = %v, want %v", s.LastWinDate, day(5))
	}

	// The day after still extends.
	s.Apply(day(6), 1)
	if s.Current != 4 {
		t.Fatalf("after next-day win: current=%d, want 4", s.Current)
	}
}

func TestStreakFirstEverWin(t *testing.T) {
	s := StreakState{PlayerID: "ada"}
	s.Apply(day(10), 1)
	if s.Current != 1 || s.Highest != 1 {
		t.Fatalf("first win: current=%d highest=%d, want 1/1", s.Current, s.Highest)
	}
	if s.LastWinDate == nil || !s.LastWinDate.Equal(day(10)) {
		t.Fatalf("last win date = %v, want %v", s.LastWinDate, day(10))
	}
}

func TestRecalculateStreak(t *testing.T) {
	// Deliberately out of order; replay must sort ascending by date.
	results := []RankedResult{
		{Date: day(5), Rank: 1},
		{Date: day(3), Rank: 1},
		{Date: day(4), Rank: 1},
		{Date: day(7), Rank: 1},
		{Date: day(8), Rank: 4},
		{Date: day(9), Rank: 1},
		{Date: day(10), Rank: 1},
	}

	s := RecalculateStreak("ada", results, 0)
	if s.Current != 2 {
		t.Errorf("current = %d, want 2 (wins on 9th and 10th)", s.Current)
	}
	if s.Highest != 3 {
		t.Errorf("highest = %d, want 3 (3rd-5th run)", s.Highest)
	}

	// Replay never shrinks a previously recorded highest.
	s = RecalculateStreak("ada", results, 8)
	if s.Highest != 8 {
		t.Errorf("seeded highest = %d, want 8", s.Highest)
	}
}

func TestRecalculateStreakDuplicateDates(t *testing.T) {
	results := []RankedResult{
		{Date: day(3), Rank: 1},
		{Date: day(4), Rank: 1},
		{Date: day(5), Rank: 1},
		{Date: day(5), Rank: 1},
	}

	s := RecalculateStreak("ada", results, 0)
	if s.Current != 3 || s.Highest != 3 {
		t.Errorf("current=%d highest=%d, want 3/3", s.Current, s.Highest)
	}
}
