package domain

import (
	"fmt"
	"sort"
	"time"
)

// TopTenSize is how many entries of a partition carry the top-ten flag.
const TopTenSize = 10

// LeaderboardEntry is a player's best recorded result for one
// (puzzle, date) partition. Rank is a dense 1-based position within the
// partition, recomputed on every write to it.
type LeaderboardEntry struct {
	PlayerID       string    `json:"player_id"`
	PuzzleID       string    `json:"puzzle_id"`
	Date           time.Time `json:"date"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	GuessesUsed    int       `json:"guesses_used"`
	Rank           int       `json:"rank"`
	TopTen         bool      `json:"top_ten"`
	AchievedAt     time.Time `json:"achieved_at"`
}

// GameResult is a completed winning attempt's contribution to the
// leaderboard, as submitted over HTTP or ingested from the result topic.
type GameResult struct {
	PlayerID       string    `json:"player_id"`
	PuzzleID       string    `json:"puzzle_id"`
	Date           time.Time `json:"date"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	GuessesUsed    int       `json:"guesses_used"`
	IsWon          bool      `json:"is_won"`
}

// Better reports whether a is strictly better than b. Ordering is
// ascending: elapsed time first, guesses used second. Equal on both
// means a is not strictly better; the earlier submission keeps its spot.
func Better(a, b LeaderboardEntry) bool {
	if a.ElapsedSeconds != b.ElapsedSeconds {
		return a.ElapsedSeconds < b.ElapsedSeconds
	}
	return a.GuessesUsed < b.GuessesUsed
}

// Rerank sorts a partition into leaderboard order and assigns dense
// 1-based ranks and top-ten flags in place. Ties on time and guesses
// keep the earliest submission first.
func Rerank(entries []LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ElapsedSeconds != b.ElapsedSeconds {
			return a.ElapsedSeconds < b.ElapsedSeconds
		}
		if a.GuessesUsed != b.GuessesUsed {
			return a.GuessesUsed < b.GuessesUsed
		}
		return a.AchievedAt.Before(b.AchievedAt)
	})
	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].TopTen = i < TopTenSize
	}
}

// DailySnapshot is the frozen copy of one partition, written exactly
// once by finalization.
type DailySnapshot struct {
	PuzzleID     string             `json:"puzzle_id"`
	Date         time.Time          `json:"date"`
	Entries      []LeaderboardEntry `json:"entries"`
	TotalPlayers int                `json:"total_players"`
	TopTenCount  int                `json:"top_ten_count"`
	CreatedAt    time.Time          `json:"created_at"`
}

// NewSnapshot freezes a partition's current entries.
func NewSnapshot(puzzleID string, date time.Time, entries []LeaderboardEntry, now time.Time) DailySnapshot {
	topTen := 0
	for _, e := range entries {
		if e.TopTen {
			topTen++
		}
	}
	return DailySnapshot{
		PuzzleID:     puzzleID,
		Date:         Day(date),
		Entries:      entries,
		TotalPlayers: len(entries),
		TopTenCount:  topTen,
		CreatedAt:    now,
	}
}

// PartitionRef identifies one (puzzle, date) partition.
type PartitionRef struct {
	PuzzleID string    `json:"puzzle_id"`
	Date     time.Time `json:"date"`
}

// PartitionKey is the canonical string identity of a (puzzle, date)
// partition, used for cache keys and websocket subscriptions.
func PartitionKey(puzzleID string, date time.Time) string {
	return fmt.Sprintf("%s:%s", puzzleID, Day(date).Format("2006-01-02"))
}
