package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wordday/internal/config"
	"github.com/wordday/internal/domain"
)

// synonymSimilarity is the score assigned to configured synonym hits;
// high enough to land in the accepted bands, distinguishable from exact.
const synonymSimilarity = 0.95

// ThemeStore is the persistence surface the theme service needs.
type ThemeStore interface {
	EnsurePlayer(ctx context.Context, playerID string) error
	ThemeTagForWeek(ctx context.Context, weekStart, weekEnd time.Time) (string, error)
	ThemePuzzleDates(ctx context.Context, tag string) ([]time.Time, error)
	ThemeStarts(ctx context.Context) (map[string]time.Time, error)
	InsertThemeAttempt(ctx context.Context, a domain.ThemeAttempt) error
	ThemeAttemptsFor(ctx context.Context, playerID, tag string) ([]domain.ThemeAttempt, error)
	AllThemeAttempts(ctx context.Context) ([]domain.ThemeAttempt, error)
}

// SimilarityScorer is the external semantic-similarity provider.
type SimilarityScorer interface {
	Score(ctx context.Context, guess, tag string) (float64, error)
}

// SimilarityCache caches provider scores per (tag, guess).
type SimilarityCache interface {
	SimilarityScore(ctx context.Context, tag, normalizedGuess string) (float64, bool, error)
	SetSimilarityScore(ctx context.Context, tag, normalizedGuess string, score float64) error
}

// ThemeService runs the weekly theme mini-game: one shared tag across a
// Monday–Sunday run of puzzles, guessed at any point during the week.
type ThemeService struct {
	store     ThemeStore
	scorer    SimilarityScorer
	cache     SimilarityCache
	validator domain.PlayerIDValidator
	threshold float64
	synonyms  map[string][]string
	logger    *slog.Logger
	now       func() time.Time
}

// NewThemeService creates a new theme service. Cache may be nil; the
// provider is then consulted on every semantic lookup.
func NewThemeService(store ThemeStore, scorer SimilarityScorer, cache SimilarityCache, validator domain.PlayerIDValidator, cfg config.ThemeConfig, logger *slog.Logger) *ThemeService {
	return &ThemeService{
		store:     store,
		scorer:    scorer,
		cache:     cache,
		validator: validator,
		threshold: cfg.AcceptThreshold,
		synonyms:  cfg.Synonyms,
		logger:    logger,
		now:       time.Now,
	}
}

// CurrentTheme returns the theme whose window contains the given moment.
// The window is derived from the tagged puzzles' dates, not from the
// wall clock: at identifies the week, the puzzles define its bounds.
func (s *ThemeService) CurrentTheme(ctx context.Context, at time.Time) (*domain.Theme, error) {
	day := domain.Day(at)
	offset := (int(day.Weekday()) + 6) % 7
	weekStart := day.AddDate(0, 0, -offset)
	weekEnd := weekStart.AddDate(0, 0, domain.ThemeWeekDays-1)

	tag, err := s.store.ThemeTagForWeek(ctx, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}
	return s.theme(ctx, tag)
}

func (s *ThemeService) theme(ctx context.Context, tag string) (*domain.Theme, error) {
	dates, err := s.store.ThemePuzzleDates(ctx, tag)
	if err != nil {
		return nil, err
	}
	start, end, ok := domain.ThemeWindow(dates)
	if !ok {
		return nil, domain.ErrThemeNotFound
	}
	return &domain.Theme{Tag: tag, StartDate: start, EndDate: end}, nil
}

// EvaluateGuess resolves one theme guess through the match tiers: exact
// normalized equality, configured synonyms, then the semantic provider
// (cache first). A provider outage degrades to a recorded error attempt
// instead of failing the request.
func (s *ThemeService) EvaluateGuess(ctx context.Context, playerID, tag, rawGuess string) (*domain.ThemeEvaluation, error) {
	if err := s.validator.Validate(playerID); err != nil {
		return nil, err
	}
	guess := domain.NormalizeComparison(rawGuess)
	if guess == "" {
		return nil, domain.ErrInvalidGuess
	}

	theme, err := s.theme(ctx, tag)
	if err != nil {
		return nil, err
	}

	if err := s.store.EnsurePlayer(ctx, playerID); err != nil {
		return nil, err
	}

	similarity, method := s.resolve(ctx, theme.Tag, guess)
	confidence := domain.Confidence(similarity)

	attempt := domain.ThemeAttempt{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		ThemeTag:    theme.Tag,
		Guess:       guess,
		IsCorrect:   method != domain.MatchError && similarity >= s.threshold,
		Similarity:  similarity,
		Confidence:  confidence,
		Method:      method,
		AttemptDate: domain.Day(s.now()),
	}
	if err := s.store.InsertThemeAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	return &domain.ThemeEvaluation{
		Attempt:  attempt,
		Feedback: domain.FeedbackFor(confidence),
	}, nil
}

func (s *ThemeService) resolve(ctx context.Context, tag, guess string) (float64, domain.MatchMethod) {
	normalTag := domain.NormalizeComparison(tag)
	if guess == normalTag {
		return 1.0, domain.MatchExact
	}

	for _, syn := range s.synonyms[tag] {
		if guess == domain.NormalizeComparison(syn) {
			return synonymSimilarity, domain.MatchSynonym
		}
	}

	if s.cache != nil {
		if score, ok, err := s.cache.SimilarityScore(ctx, tag, guess); err != nil {
			s.logger.Warn("similarity cache read failed", "tag", tag, "error", err)
		} else if ok {
			return score, domain.MatchSemantic
		}
	}

	score, err := s.scorer.Score(ctx, guess, tag)
	if err != nil {
		s.logger.Error("similarity provider failed", "tag", tag, "error", err)
		return 0, domain.MatchError
	}

	if s.cache != nil {
		if err := s.cache.SetSimilarityScore(ctx, tag, guess, score); err != nil {
			s.logger.Warn("similarity cache write failed", "tag", tag, "error", err)
		}
	}
	return score, domain.MatchSemantic
}

// ThemeStatus is one player's progress against one theme.
type ThemeStatus struct {
	Theme          domain.Theme          `json:"theme"`
	Unlocked       bool                  `json:"unlocked"`
	UnlockedDay    int                   `json:"unlocked_day,omitempty"`
	BestConfidence int                   `json:"best_confidence"`
	Attempts       []domain.ThemeAttempt `json:"attempts"`
}

// Status returns a player's attempts and unlock state for one theme.
func (s *ThemeService) Status(ctx context.Context, playerID, tag string) (*ThemeStatus, error) {
	if err := s.validator.Validate(playerID); err != nil {
		return nil, err
	}
	theme, err := s.theme(ctx, tag)
	if err != nil {
		return nil, err
	}
	attempts, err := s.store.ThemeAttemptsFor(ctx, playerID, theme.Tag)
	if err != nil {
		return nil, err
	}

	status := &ThemeStatus{Theme: *theme, Attempts: attempts}
	for _, a := range attempts {
		if a.Confidence > status.BestConfidence {
			status.BestConfidence = a.Confidence
		}
		if a.IsCorrect && !status.Unlocked {
			status.Unlocked = true
			status.UnlockedDay = domain.ThemeDayOfWeek(theme.StartDate, a.AttemptDate)
		}
	}
	return status, nil
}

// Leaderboard composes the all-time theme standings from every recorded
// guess: themes unlocked, how early in the week they fell, and accuracy.
func (s *ThemeService) Leaderboard(ctx context.Context) ([]domain.ThemeStanding, error) {
	attempts, err := s.store.AllThemeAttempts(ctx)
	if err != nil {
		return nil, err
	}
	starts, err := s.store.ThemeStarts(ctx)
	if err != nil {
		return nil, err
	}

	type playerAgg struct {
		unlockDays map[string]int
		correct    int
		total      int
	}
	agg := make(map[string]*playerAgg)

	for _, a := range attempts {
		p := agg[a.PlayerID]
		if p == nil {
			p = &playerAgg{unlockDays: make(map[string]int)}
			agg[a.PlayerID] = p
		}
		p.total++
		if !a.IsCorrect {
			continue
		}
		p.correct++

		start, ok := starts[a.ThemeTag]
		if !ok {
			continue
		}
		// Window start is the tagged run's Monday, same derivation the
		// status endpoint uses.
		windowStart, _, ok := domain.ThemeWindow([]time.Time{start})
		if !ok {
			continue
		}
		day := domain.ThemeDayOfWeek(windowStart, a.AttemptDate)
		if prev, seen := p.unlockDays[a.ThemeTag]; !seen || day < prev {
			p.unlockDays[a.ThemeTag] = day
		}
	}

	standings := make([]domain.ThemeStanding, 0, len(agg))
	for playerID, p := range agg {
		st := domain.ThemeStanding{
			PlayerID:       playerID,
			ThemesUnlocked: len(p.unlockDays),
			TotalAttempts:  p.total,
		}
		if p.total > 0 {
			st.SuccessRate = float64(p.correct) / float64(p.total)
		}
		if len(p.unlockDays) > 0 {
			sum := 0
			for _, d := range p.unlockDays {
				sum += d
			}
			st.AvgUnlockDay = float64(sum) / float64(len(p.unlockDays))
		}
		standings = append(standings, st)
	}

	domain.SortThemeStandings(standings)
	return standings, nil
}
