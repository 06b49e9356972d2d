package domain

import "testing"

func TestScore(t *testing.T) {
	p := DefaultScoreParams()

	tests := []struct {
		name        string
		guesses     int
		fuzzy       int
		elapsed     int
		won         bool
		wantFinal   int
		wantPenalty int
	}{
		{
			name:    "loss scores zero regardless of metrics",
			guesses: 3, fuzzy: 2, elapsed: 40, won: false,
			wantFinal: 0,
		},
		{
			name:    "first-guess win keeps the baseline",
			guesses: 1, fuzzy: 0, elapsed: 5, won: true,
			wantFinal: 1000,
		},
		{
			name:    "five extra guesses cost five penalties",
			guesses: 6, fuzzy: 0, elapsed: 9, won: true,
			wantFinal:   750,
			wantPenalty: 250,
		},
		{
			name:    "fuzzy matches reward rather than penalize",
			guesses: 3, fuzzy: 2, elapsed: 0, won: true,
			wantFinal: 1000 - 100 + 50,
		},
		{
			name:    "time penalty applies per full ten seconds",
			guesses: 1, fuzzy: 0, elapsed: 95, won: true,
			wantFinal: 1000 - 9*2,
		},
		{
			name:    "score clamps at zero",
			guesses: 6, fuzzy: 0, elapsed: 100000, won: true,
			wantFinal: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Score(p, tt.guesses, tt.fuzzy, tt.elapsed, tt.won)
			if rec.FinalScore != tt.wantFinal {
				t.Errorf("FinalScore = %d, want %d", rec.FinalScore, tt.wantFinal)
			}
			if rec.FinalScore < 0 {
				t.Errorf("score must never be negative, got %d", rec.FinalScore)
			}
			if tt.wantPenalty != 0 && rec.GuessPenalty != tt.wantPenalty {
				t.Errorf("GuessPenalty = %d, want %d", rec.GuessPenalty, tt.wantPenalty)
			}
		})
	}
}
