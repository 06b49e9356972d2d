package domain

import "time"

// ScoreParams are the scoring coefficients. They are configuration, not
// constants: the production values have shifted over time, so deployments
// pin them in config and historical scores stay reproducible.
type ScoreParams struct {
	Base              int `yaml:"base"`
	GuessPenalty      int `yaml:"guess_penalty"`
	FuzzyBonus        int `yaml:"fuzzy_bonus"`
	TimePenaltyPer10s int `yaml:"time_penalty_per_10s"`
}

// DefaultScoreParams returns the canonical coefficients: 1000 baseline,
// -50 per guess after the first, +25 per fuzzy match, -2 per full 10s.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		Base:              1000,
		GuessPenalty:      50,
		FuzzyBonus:        25,
		TimePenaltyPer10s: 2,
	}
}

// ScoreRecord is the computed result of a completed, won attempt. It is
// written once and never mutated.
type ScoreRecord struct {
	AttemptID    string    `json:"attempt_id"`
	Base         int       `json:"base"`
	GuessPenalty int       `json:"guess_penalty"`
	FuzzyBonus   int       `json:"fuzzy_bonus"`
	TimePenalty  int       `json:"time_penalty"`
	FinalScore   int       `json:"final_score"`
	CreatedAt    time.Time `json:"created_at"`
}

// Score computes the final score for a completed attempt. Lost attempts
// always score 0. Won attempts start from the baseline, lose points per
// extra guess beyond the first, gain points per recognized fuzzy match,
// and lose a small amount per full 10 seconds of play. The result is
// clamped to a non-negative integer.
func Score(p ScoreParams, guessesUsed, fuzzyMatches, elapsedSeconds int, isWon bool) ScoreRecord {
	if !isWon {
		return ScoreRecord{}
	}
	rec := ScoreRecord{
		Base:         p.Base,
		GuessPenalty: p.GuessPenalty * maxInt(guessesUsed-1, 0),
		FuzzyBonus:   p.FuzzyBonus * maxInt(fuzzyMatches, 0),
		TimePenalty:  p.TimePenaltyPer10s * (maxInt(elapsedSeconds, 0) / 10),
	}
	rec.FinalScore = maxInt(rec.Base-rec.GuessPenalty+rec.FuzzyBonus-rec.TimePenalty, 0)
	return rec
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
