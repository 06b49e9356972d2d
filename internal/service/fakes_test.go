package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/wordday/internal/domain"
)

// memStore is an in-memory implementation of every store interface the
// services consume, with the same conflict and idempotency semantics as
// the real repository.
type memStore struct {
	puzzles       map[string]*domain.Puzzle
	attempts      map[string]*domain.Attempt
	players       map[string]bool
	scores        map[string]domain.ScoreRecord
	entries       map[string]map[string]domain.LeaderboardEntry
	snapshots     map[string]*domain.DailySnapshot
	streaks       map[string]domain.StreakState
	themeAttempts []domain.ThemeAttempt
}

func newMemStore() *memStore {
	return &memStore{
		puzzles:   make(map[string]*domain.Puzzle),
		attempts:  make(map[string]*domain.Attempt),
		players:   make(map[string]bool),
		scores:    make(map[string]domain.ScoreRecord),
		entries:   make(map[string]map[string]domain.LeaderboardEntry),
		snapshots: make(map[string]*domain.DailySnapshot),
		streaks:   make(map[string]domain.StreakState),
	}
}

func (m *memStore) addPuzzle(p domain.Puzzle) {
	p.Date = domain.Day(p.Date)
	m.puzzles[p.ID] = &p
}

func (m *memStore) PuzzleByID(_ context.Context, id string) (*domain.Puzzle, error) {
	if p, ok := m.puzzles[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrPuzzleNotFound
}

func (m *memStore) PuzzleByDate(_ context.Context, date time.Time) (*domain.Puzzle, error) {
	day := domain.Day(date)
	for _, p := range m.puzzles {
		if p.Date.Equal(day) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPuzzleNotFound
}

func (m *memStore) EnsurePlayer(_ context.Context, playerID string) error {
	m.players[playerID] = true
	return nil
}

func (m *memStore) AttemptByID(_ context.Context, id string) (*domain.Attempt, error) {
	if a, ok := m.attempts[id]; ok {
		cp := *a
		cp.Guesses = append([]domain.Guess(nil), a.Guesses...)
		return &cp, nil
	}
	return nil, domain.ErrAttemptNotFound
}

func (m *memStore) AttemptFor(_ context.Context, playerID, puzzleID string) (*domain.Attempt, error) {
	for _, a := range m.attempts {
		if a.PlayerID == playerID && a.PuzzleID == puzzleID {
			cp := *a
			cp.Guesses = append([]domain.Guess(nil), a.Guesses...)
			return &cp, nil
		}
	}
	return nil, domain.ErrAttemptNotFound
}

func (m *memStore) CreateAttempt(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	if existing, err := m.AttemptFor(ctx, a.PlayerID, a.PuzzleID); err == nil {
		return existing, nil
	}
	cp := *a
	m.attempts[a.ID] = &cp
	return a, nil
}

func (m *memStore) SaveAttempt(_ context.Context, a *domain.Attempt, expectedGuesses int) error {
	stored, ok := m.attempts[a.ID]
	if !ok || stored.IsComplete || len(stored.Guesses) != expectedGuesses {
		return domain.ErrAttemptConflict
	}
	cp := *a
	cp.Guesses = append([]domain.Guess(nil), a.Guesses...)
	m.attempts[a.ID] = &cp
	return nil
}

func (m *memStore) InsertScoreRecord(_ context.Context, rec domain.ScoreRecord) error {
	if _, ok := m.scores[rec.AttemptID]; !ok {
		m.scores[rec.AttemptID] = rec
	}
	return nil
}

func (m *memStore) ScoreRecordFor(_ context.Context, attemptID string) (*domain.ScoreRecord, error) {
	if rec, ok := m.scores[attemptID]; ok {
		return &rec, nil
	}
	return nil, domain.ErrEntryNotFound
}

func (m *memStore) partition(puzzleID string, date time.Time) []domain.LeaderboardEntry {
	key := domain.PartitionKey(puzzleID, date)
	entries := make([]domain.LeaderboardEntry, 0, len(m.entries[key]))
	for _, e := range m.entries[key] {
		entries = append(entries, e)
	}
	domain.Rerank(entries)
	return entries
}

func (m *memStore) UpsertBestEntryAndRerank(_ context.Context, candidate domain.LeaderboardEntry) (*domain.LeaderboardEntry, []domain.LeaderboardEntry, bool, error) {
	candidate.Date = domain.Day(candidate.Date)
	key := domain.PartitionKey(candidate.PuzzleID, candidate.Date)
	if _, frozen := m.snapshots[key]; frozen {
		return nil, nil, false, domain.ErrPartitionFinalized
	}
	m.players[candidate.PlayerID] = true

	if m.entries[key] == nil {
		m.entries[key] = make(map[string]domain.LeaderboardEntry)
	}
	changed := false
	existing, ok := m.entries[key][candidate.PlayerID]
	if !ok || domain.Better(candidate, existing) {
		m.entries[key][candidate.PlayerID] = candidate
		changed = true
	}

	partition := m.partition(candidate.PuzzleID, candidate.Date)
	for _, e := range partition {
		m.entries[key][e.PlayerID] = e
	}

	var own *domain.LeaderboardEntry
	for i := range partition {
		if partition[i].PlayerID == candidate.PlayerID {
			own = &partition[i]
			break
		}
	}
	if own == nil {
		return nil, nil, false, domain.ErrEntryNotFound
	}
	return own, partition, changed, nil
}

func (m *memStore) Partition(_ context.Context, puzzleID string, date time.Time) ([]domain.LeaderboardEntry, error) {
	return m.partition(puzzleID, date), nil
}

func (m *memStore) EntryFor(_ context.Context, puzzleID string, date time.Time, playerID string) (*domain.LeaderboardEntry, error) {
	key := domain.PartitionKey(puzzleID, date)
	if e, ok := m.entries[key][playerID]; ok {
		return &e, nil
	}
	return nil, domain.ErrEntryNotFound
}

func (m *memStore) CreateSnapshot(_ context.Context, snap domain.DailySnapshot) (*domain.DailySnapshot, bool, error) {
	key := domain.PartitionKey(snap.PuzzleID, snap.Date)
	if existing, ok := m.snapshots[key]; ok {
		return existing, false, nil
	}
	cp := snap
	m.snapshots[key] = &cp
	return &cp, true, nil
}

func (m *memStore) Snapshot(_ context.Context, puzzleID string, date time.Time) (*domain.DailySnapshot, error) {
	if snap, ok := m.snapshots[domain.PartitionKey(puzzleID, date)]; ok {
		return snap, nil
	}
	return nil, domain.ErrEntryNotFound
}

func (m *memStore) UnfinalizedPartitions(_ context.Context, before time.Time) ([]domain.PartitionRef, error) {
	cutoff := domain.Day(before)
	seen := make(map[string]domain.PartitionRef)
	for key, entries := range m.entries {
		if len(entries) == 0 {
			continue
		}
		for _, e := range entries {
			if e.Date.Before(cutoff) {
				if _, frozen := m.snapshots[key]; !frozen {
					seen[key] = domain.PartitionRef{PuzzleID: e.PuzzleID, Date: e.Date}
				}
			}
			break
		}
	}
	refs := make([]domain.PartitionRef, 0, len(seen))
	for _, ref := range seen {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if !refs[i].Date.Equal(refs[j].Date) {
			return refs[i].Date.Before(refs[j].Date)
		}
		return refs[i].PuzzleID < refs[j].PuzzleID
	})
	return refs, nil
}

func (m *memStore) StreakFor(_ context.Context, playerID string) (*domain.StreakState, error) {
	if s, ok := m.streaks[playerID]; ok {
		return &s, nil
	}
	return nil, domain.ErrStreakNotFound
}

func (m *memStore) SaveStreak(_ context.Context, s domain.StreakState) error {
	if prev, ok := m.streaks[s.PlayerID]; ok && prev.Highest > s.Highest {
		s.Highest = prev.Highest
	}
	m.streaks[s.PlayerID] = s
	return nil
}

func (m *memStore) RankedResults(_ context.Context, playerID string) ([]domain.RankedResult, error) {
	var results []domain.RankedResult
	for _, entries := range m.entries {
		if e, ok := entries[playerID]; ok {
			results = append(results, domain.RankedResult{Date: e.Date, Rank: e.Rank})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Date.Before(results[j].Date) })
	return results, nil
}

func (m *memStore) ThemeTagForWeek(_ context.Context, weekStart, weekEnd time.Time) (string, error) {
	best := ""
	var bestDate time.Time
	for _, p := range m.puzzles {
		if p.ThemeTag == "" || p.Date.Before(domain.Day(weekStart)) || p.Date.After(domain.Day(weekEnd)) {
			continue
		}
		if best == "" || p.Date.Before(bestDate) {
			best = p.ThemeTag
			bestDate = p.Date
		}
	}
	if best == "" {
		return "", domain.ErrThemeNotFound
	}
	return best, nil
}

func (m *memStore) ThemePuzzleDates(_ context.Context, tag string) ([]time.Time, error) {
	var dates []time.Time
	for _, p := range m.puzzles {
		if p.ThemeTag == tag {
			dates = append(dates, p.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (m *memStore) ThemeStarts(_ context.Context) (map[string]time.Time, error) {
	starts := make(map[string]time.Time)
	for _, p := range m.puzzles {
		if p.ThemeTag == "" {
			continue
		}
		if cur, ok := starts[p.ThemeTag]; !ok || p.Date.Before(cur) {
			starts[p.ThemeTag] = p.Date
		}
	}
	return starts, nil
}

func (m *memStore) InsertThemeAttempt(_ context.Context, a domain.ThemeAttempt) error {
	m.themeAttempts = append(m.themeAttempts, a)
	return nil
}

func (m *memStore) ThemeAttemptsFor(_ context.Context, playerID, tag string) ([]domain.ThemeAttempt, error) {
	var out []domain.ThemeAttempt
	for _, a := range m.themeAttempts {
		if a.PlayerID == playerID && a.ThemeTag == tag {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) AllThemeAttempts(_ context.Context) ([]domain.ThemeAttempt, error) {
	return append([]domain.ThemeAttempt(nil), m.themeAttempts...), nil
}

// fakeRecorder captures results handed to the leaderboard.
type fakeRecorder struct {
	results []domain.GameResult
	entry   *domain.LeaderboardEntry
	err     error
}

func (f *fakeRecorder) RecordResult(_ context.Context, result domain.GameResult) (*domain.LeaderboardEntry, error) {
	f.results = append(f.results, result)
	if f.err != nil {
		return nil, f.err
	}
	if f.entry != nil {
		return f.entry, nil
	}
	return &domain.LeaderboardEntry{
		PlayerID: result.PlayerID,
		PuzzleID: result.PuzzleID,
		Date:     domain.Day(result.Date),
		Rank:     1,
	}, nil
}

// fakeScorer is a canned similarity provider.
type fakeScorer struct {
	scores map[string]float64
	err    error
	calls  int
}

func (f *fakeScorer) Score(_ context.Context, guess, _ string) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.scores[guess], nil
}

// fakeSimCache is an in-memory similarity score cache.
type fakeSimCache struct {
	scores map[string]float64
}

func newFakeSimCache() *fakeSimCache {
	return &fakeSimCache{scores: make(map[string]float64)}
}

func (f *fakeSimCache) SimilarityScore(_ context.Context, tag, guess string) (float64, bool, error) {
	score, ok := f.scores[tag+"|"+guess]
	return score, ok, nil
}

func (f *fakeSimCache) SetSimilarityScore(_ context.Context, tag, guess string, score float64) error {
	f.scores[tag+"|"+guess] = score
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
