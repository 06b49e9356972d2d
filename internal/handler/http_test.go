package handler

import (
	"net/http/httptest"
	"testing"
)

func TestPageLimit(t *testing.T) {
	h := &Handler{defaultLimit: 100, maxLimit: 1000}

	tests := []struct {
		name string
		url  string
		want int
	}{
		{"absent defaults", "/api/v1/puzzles/pz-1/leaderboard", 100},
		{"explicit value", "/api/v1/puzzles/pz-1/leaderboard?limit=25", 25},
		{"zero defaults", "/api/v1/puzzles/pz-1/leaderboard?limit=0", 100},
		{"negative defaults", "/api/v1/puzzles/pz-1/leaderboard?limit=-5", 100},
		{"garbage defaults", "/api/v1/puzzles/pz-1/leaderboard?limit=abc", 100},
		{"capped at max", "/api/v1/puzzles/pz-1/leaderboard?limit=999999", 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			if got := h.pageLimit(r); got != tt.want {
				t.Errorf("pageLimit(%q) = %d, want %d", tt.url, got, tt.want)
			}
		})
	}
}
