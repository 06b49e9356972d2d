package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wordday/internal/config"
	"github.com/wordday/internal/domain"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id VARCHAR(64) PRIMARY KEY,
			games_played INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS puzzles (
			id VARCHAR(64) PRIMARY KEY,
			puzzle_date DATE NOT NULL UNIQUE,
			word TEXT NOT NULL,
			clue_definition TEXT NOT NULL DEFAULT '',
			clue_equivalents TEXT NOT NULL DEFAULT '',
			clue_first_letter TEXT NOT NULL DEFAULT '',
			clue_usage TEXT NOT NULL DEFAULT '',
			clue_letter_count TEXT NOT NULL DEFAULT '',
			clue_etymology TEXT NOT NULL DEFAULT '',
			theme_tag VARCHAR(128) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id UUID PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL REFERENCES players(id),
			puzzle_id VARCHAR(64) NOT NULL REFERENCES puzzles(id),
			guesses JSONB NOT NULL DEFAULT '[]',
			is_complete BOOLEAN NOT NULL DEFAULT FALSE,
			is_won BOOLEAN NOT NULL DEFAULT FALSE,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			UNIQUE(player_id, puzzle_id)
		)`,
		`CREATE TABLE IF NOT EXISTS score_records (
			attempt_id UUID PRIMARY KEY REFERENCES attempts(id),
			base INT NOT NULL,
			guess_penalty INT NOT NULL,
			fuzzy_bonus INT NOT NULL,
			time_penalty INT NOT NULL,
			final_score INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard_entries (
			id BIGSERIAL PRIMARY KEY,
			puzzle_id VARCHAR(64) NOT NULL,
			puzzle_date DATE NOT NULL,
			player_id VARCHAR(64) NOT NULL REFERENCES players(id),
			elapsed_seconds INT NOT NULL,
			guesses_used INT NOT NULL,
			rank INT NOT NULL DEFAULT 0,
			top_ten BOOLEAN NOT NULL DEFAULT FALSE,
			achieved_at TIMESTAMPTZ NOT NULL,
			UNIQUE(puzzle_id, puzzle_date, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_snapshots (
			id BIGSERIAL PRIMARY KEY,
			puzzle_id VARCHAR(64) NOT NULL,
			puzzle_date DATE NOT NULL,
			entries JSONB NOT NULL,
			total_players INT NOT NULL,
			top_ten_count INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE(puzzle_id, puzzle_date)
		)`,
		`CREATE TABLE IF NOT EXISTS streaks (
			player_id VARCHAR(64) PRIMARY KEY REFERENCES players(id),
			current_streak INT NOT NULL DEFAULT 0,
			highest_streak INT NOT NULL DEFAULT 0,
			last_win_date DATE,
			streak_start_date DATE,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS theme_attempts (
			id UUID PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL REFERENCES players(id),
			theme_tag VARCHAR(128) NOT NULL,
			guess TEXT NOT NULL,
			is_correct BOOLEAN NOT NULL,
			similarity DOUBLE PRECISION NOT NULL,
			confidence INT NOT NULL,
			method VARCHAR(16) NOT NULL,
			attempt_date DATE NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_partition ON leaderboard_entries(puzzle_id, puzzle_date)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_player ON leaderboard_entries(player_id, puzzle_date)`,
		`CREATE INDEX IF NOT EXISTS idx_theme_attempts_player ON theme_attempts(player_id, theme_tag)`,
		`CREATE INDEX IF NOT EXISTS idx_puzzles_theme ON puzzles(theme_tag) WHERE theme_tag <> ''`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const puzzleColumns = `id, puzzle_date, word,
	clue_definition, clue_equivalents, clue_first_letter,
	clue_usage, clue_letter_count, clue_etymology, theme_tag`

func scanPuzzle(row pgx.Row) (*domain.Puzzle, error) {
	var p domain.Puzzle
	var def, equiv, first, usage, count, etym string
	err := row.Scan(&p.ID, &p.Date, &p.Word, &def, &equiv, &first, &usage, &count, &etym, &p.ThemeTag)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPuzzleNotFound
		}
		return nil, fmt.Errorf("scanning puzzle: %w", err)
	}
	p.Date = domain.Day(p.Date)
	p.Clues = map[domain.ClueType]string{
		domain.ClueDefinition:  def,
		domain.ClueEquivalents: equiv,
		domain.ClueFirstLetter: first,
		domain.ClueUsage:       usage,
		domain.ClueLetterCount: count,
		domain.ClueEtymology:   etym,
	}
	return &p, nil
}

// PuzzleByID retrieves a puzzle by its identifier
func (r *Repository) PuzzleByID(ctx context.Context, id string) (*domain.Puzzle, error) {
	query := `SELECT ` + puzzleColumns + ` FROM puzzles WHERE id = $1`
	return scanPuzzle(r.pool.QueryRow(ctx, query, id))
}

// PuzzleByDate retrieves the puzzle published for a calendar date
func (r *Repository) PuzzleByDate(ctx context.Context, date time.Time) (*domain.Puzzle, error) {
	query := `SELECT ` + puzzleColumns + ` FROM puzzles WHERE puzzle_date = $1`
	return scanPuzzle(r.pool.QueryRow(ctx, query, domain.Day(date)))
}

// ThemePuzzleDates returns the dates of all puzzles carrying a theme tag
func (r *Repository) ThemePuzzleDates(ctx context.Context, tag string) ([]time.Time, error) {
	query := `SELECT puzzle_date FROM puzzles WHERE theme_tag = $1 ORDER BY puzzle_date`
	rows, err := r.pool.Query(ctx, query, tag)
	if err != nil {
		return nil, fmt.Errorf("listing theme puzzle dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning puzzle date: %w", err)
		}
		dates = append(dates, domain.Day(d))
	}
	return dates, rows.Err()
}

// ThemeTagForWeek returns the theme tag active in the week containing date
func (r *Repository) ThemeTagForWeek(ctx context.Context, weekStart, weekEnd time.Time) (string, error) {
	query := `
		SELECT theme_tag FROM puzzles
		WHERE puzzle_date BETWEEN $1 AND $2 AND theme_tag <> ''
		ORDER BY puzzle_date
		LIMIT 1
	`
	var tag string
	err := r.pool.QueryRow(ctx, query, domain.Day(weekStart), domain.Day(weekEnd)).Scan(&tag)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrThemeNotFound
		}
		return "", fmt.Errorf("getting theme tag: %w", err)
	}
	return tag, nil
}

// ThemeStarts returns the earliest tagged puzzle date per theme
func (r *Repository) ThemeStarts(ctx context.Context) (map[string]time.Time, error) {
	query := `
		SELECT theme_tag, MIN(puzzle_date)
		FROM puzzles
		WHERE theme_tag <> ''
		GROUP BY theme_tag
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing theme starts: %w", err)
	}
	defer rows.Close()

	starts := make(map[string]time.Time)
	for rows.Next() {
		var tag string
		var d time.Time
		if err := rows.Scan(&tag, &d); err != nil {
			return nil, fmt.Errorf("scanning theme start: %w", err)
		}
		starts[tag] = domain.Day(d)
	}
	return starts, rows.Err()
}

// EnsurePlayer creates the player placeholder row when it is missing.
// Create-if-absent, never an error: leaderboard and theme rows reference it.
func (r *Repository) EnsurePlayer(ctx context.Context, playerID string) error {
	query := `INSERT INTO players (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, playerID); err != nil {
		return fmt.Errorf("ensuring player: %w", err)
	}
	return nil
}

const attemptColumns = `id, player_id, puzzle_id, guesses, is_complete, is_won, started_at, completed_at`

func scanAttempt(row pgx.Row) (*domain.Attempt, error) {
	var a domain.Attempt
	var guesses []byte
	err := row.Scan(&a.ID, &a.PlayerID, &a.PuzzleID, &guesses, &a.IsComplete, &a.IsWon, &a.StartedAt, &a.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("scanning attempt: %w", err)
	}
	if err := json.Unmarshal(guesses, &a.Guesses); err != nil {
		return nil, fmt.Errorf("decoding guesses: %w", err)
	}
	return &a, nil
}

// AttemptByID retrieves an attempt by its identifier
func (r *Repository) AttemptByID(ctx context.Context, id string) (*domain.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE id = $1`
	return scanAttempt(r.pool.QueryRow(ctx, query, id))
}

// AttemptFor retrieves a player's attempt against a puzzle
func (r *Repository) AttemptFor(ctx context.Context, playerID, puzzleID string) (*domain.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE player_id = $1 AND puzzle_id = $2`
	return scanAttempt(r.pool.QueryRow(ctx, query, playerID, puzzleID))
}

// CreateAttempt inserts a fresh attempt. The (player, puzzle) unique
// constraint makes concurrent first fetches converge on one row; on
// conflict the existing attempt is returned.
func (r *Repository) CreateAttempt(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	guesses, err := json.Marshal(a.Guesses)
	if err != nil {
		return nil, fmt.Errorf("encoding guesses: %w", err)
	}
	query := `
		INSERT INTO attempts (id, player_id, puzzle_id, guesses, is_complete, is_won, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (player_id, puzzle_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		a.ID, a.PlayerID, a.PuzzleID, guesses, a.IsComplete, a.IsWon, a.StartedAt, a.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("creating attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.AttemptFor(ctx, a.PlayerID, a.PuzzleID)
	}
	return a, nil
}

// SaveAttempt persists an attempt mutation. The update is guarded by the
// guess count the caller read, so two concurrent guesses on one attempt
// serialize at the storage boundary: the loser gets ErrAttemptConflict.
func (r *Repository) SaveAttempt(ctx context.Context, a *domain.Attempt, expectedGuesses int) error {
	guesses, err := json.Marshal(a.Guesses)
	if err != nil {
		return fmt.Errorf("encoding guesses: %w", err)
	}
	query := `
		UPDATE attempts
		SET guesses = $2, is_complete = $3, is_won = $4, completed_at = $5
		WHERE id = $1 AND NOT is_complete AND jsonb_array_length(guesses) = $6
	`
	tag, err := r.pool.Exec(ctx, query, a.ID, guesses, a.IsComplete, a.IsWon, a.CompletedAt, expectedGuesses)
	if err != nil {
		return fmt.Errorf("saving attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAttemptConflict
	}
	return nil
}

// InsertScoreRecord writes the immutable score of a won attempt
func (r *Repository) InsertScoreRecord(ctx context.Context, rec domain.ScoreRecord) error {
	query := `
		INSERT INTO score_records (attempt_id, base, guess_penalty, fuzzy_bonus, time_penalty, final_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (attempt_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		rec.AttemptID, rec.Base, rec.GuessPenalty, rec.FuzzyBonus, rec.TimePenalty, rec.FinalScore, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting score record: %w", err)
	}
	return nil
}

// ScoreRecordFor retrieves the score of a completed attempt
func (r *Repository) ScoreRecordFor(ctx context.Context, attemptID string) (*domain.ScoreRecord, error) {
	query := `
		SELECT attempt_id, base, guess_penalty, fuzzy_bonus, time_penalty, final_score, created_at
		FROM score_records WHERE attempt_id = $1
	`
	var rec domain.ScoreRecord
	err := r.pool.QueryRow(ctx, query, attemptID).Scan(
		&rec.AttemptID, &rec.Base, &rec.GuessPenalty, &rec.FuzzyBonus,
		&rec.TimePenalty, &rec.FinalScore, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, fmt.Errorf("getting score record: %w", err)
	}
	return &rec, nil
}
