package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wordday/internal/domain"
)

// serializationRetries bounds how often a rerank transaction is rerun
// after aborting on a concurrent writer.
const serializationRetries = 3

// isSerializationFailure reports whether err is a serializable-isolation
// abort (SQLSTATE 40001), the signal to rerun the whole transaction.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

// retrySerializable runs fn up to serializationRetries times, rerunning
// only on serialization failures. Any other error, or a cancelled
// context, returns immediately.
func retrySerializable(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < serializationRetries; attempt++ {
		if err = fn(); err == nil || !isSerializationFailure(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

const entryColumns = `player_id, puzzle_id, puzzle_date, elapsed_seconds, guesses_used, rank, top_ten, achieved_at`

func scanEntries(rows pgx.Rows) ([]domain.LeaderboardEntry, error) {
	defer rows.Close()
	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		err := rows.Scan(&e.PlayerID, &e.PuzzleID, &e.Date, &e.ElapsedSeconds,
			&e.GuessesUsed, &e.Rank, &e.TopTen, &e.AchievedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Date = domain.Day(e.Date)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertBestEntryAndRerank records a result inside one transaction:
// player placeholder, finalization check, conditional best-entry upsert,
// then a dense rerank of the whole partition. No database trigger is
// involved; the rerank is this statement sequence or nothing.
//
// Returns the submitting player's entry, the reranked partition, and
// whether the partition changed. A finalized partition rejects the write
// with ErrPartitionFinalized.
//
// The transaction runs serializable, so concurrent writers on one
// partition abort each other; the loser reruns the whole upsert-rerank
// sequence, bounded by serializationRetries.
func (r *Repository) UpsertBestEntryAndRerank(ctx context.Context, candidate domain.LeaderboardEntry) (*domain.LeaderboardEntry, []domain.LeaderboardEntry, bool, error) {
	var own *domain.LeaderboardEntry
	var partition []domain.LeaderboardEntry
	var changed bool
	err := retrySerializable(ctx, func() error {
		var err error
		own, partition, changed, err = r.upsertBestEntryAndRerank(ctx, candidate)
		return err
	})
	if err != nil {
		return nil, nil, false, err
	}
	return own, partition, changed, nil
}

func (r *Repository) upsertBestEntryAndRerank(ctx context.Context, candidate domain.LeaderboardEntry) (*domain.LeaderboardEntry, []domain.LeaderboardEntry, bool, error) {
	day := domain.Day(candidate.Date)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO players (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		candidate.PlayerID); err != nil {
		return nil, nil, false, fmt.Errorf("ensuring player: %w", err)
	}

	var finalized bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM daily_snapshots WHERE puzzle_id = $1 AND puzzle_date = $2)`,
		candidate.PuzzleID, day).Scan(&finalized)
	if err != nil {
		return nil, nil, false, fmt.Errorf("checking finalization: %w", err)
	}
	if finalized {
		return nil, nil, false, domain.ErrPartitionFinalized
	}

	// Replace only a strictly worse existing entry; ties keep the
	// earlier submission.
	tag, err := tx.Exec(ctx, `
		INSERT INTO leaderboard_entries (puzzle_id, puzzle_date, player_id, elapsed_seconds, guesses_used, achieved_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (puzzle_id, puzzle_date, player_id) DO UPDATE
		SET elapsed_seconds = EXCLUDED.elapsed_seconds,
			guesses_used = EXCLUDED.guesses_used,
			achieved_at = EXCLUDED.achieved_at
		WHERE (EXCLUDED.elapsed_seconds, EXCLUDED.guesses_used)
			< (leaderboard_entries.elapsed_seconds, leaderboard_entries.guesses_used)
	`, candidate.PuzzleID, day, candidate.PlayerID,
		candidate.ElapsedSeconds, candidate.GuessesUsed, candidate.AchievedAt)
	if err != nil {
		return nil, nil, false, fmt.Errorf("upserting entry: %w", err)
	}
	changed := tag.RowsAffected() > 0

	if changed {
		_, err = tx.Exec(ctx, `
			UPDATE leaderboard_entries le
			SET rank = ranked.rnk, top_ten = ranked.rnk <= $3
			FROM (
				SELECT id, ROW_NUMBER() OVER (ORDER BY elapsed_seconds, guesses_used, achieved_at) AS rnk
				FROM leaderboard_entries
				WHERE puzzle_id = $1 AND puzzle_date = $2
			) ranked
			WHERE le.id = ranked.id
		`, candidate.PuzzleID, day, domain.TopTenSize)
		if err != nil {
			return nil, nil, false, fmt.Errorf("reranking partition: %w", err)
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT `+entryColumns+`
		FROM leaderboard_entries
		WHERE puzzle_id = $1 AND puzzle_date = $2
		ORDER BY rank
	`, candidate.PuzzleID, day)
	if err != nil {
		return nil, nil, false, fmt.Errorf("reading partition: %w", err)
	}
	partition, err := scanEntries(rows)
	if err != nil {
		return nil, nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, false, fmt.Errorf("committing rerank: %w", err)
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

// Partition retrieves a (puzzle, date) partition in rank order
func (r *Repository) Partition(ctx context.Context, puzzleID string, date time.Time) ([]domain.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM leaderboard_entries
		WHERE puzzle_id = $1 AND puzzle_date = $2
		ORDER BY rank
	`, puzzleID, domain.Day(date))
	if err != nil {
		return nil, fmt.Errorf("reading partition: %w", err)
	}
	return scanEntries(rows)
}

// EntryFor retrieves one player's entry in a partition
func (r *Repository) EntryFor(ctx context.Context, puzzleID string, date time.Time, playerID string) (*domain.LeaderboardEntry, error) {
	var e domain.LeaderboardEntry
	err := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM leaderboard_entries
		WHERE puzzle_id = $1 AND puzzle_date = $2 AND player_id = $3
	`, puzzleID, domain.Day(date), playerID).Scan(
		&e.PlayerID, &e.PuzzleID, &e.Date, &e.ElapsedSeconds,
		&e.GuessesUsed, &e.Rank, &e.TopTen, &e.AchievedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, fmt.Errorf("getting entry: %w", err)
	}
	e.Date = domain.Day(e.Date)
	return &e, nil
}

// CreateSnapshot freezes a partition. Insert-if-absent: when a snapshot
// already exists it is returned unchanged and created is false, which
// makes finalization idempotent.
func (r *Repository) CreateSnapshot(ctx context.Context, snap domain.DailySnapshot) (*domain.DailySnapshot, bool, error) {
	entries, err := json.Marshal(snap.Entries)
	if err != nil {
		return nil, false, fmt.Errorf("encoding snapshot entries: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO daily_snapshots (puzzle_id, puzzle_date, entries, total_players, top_ten_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (puzzle_id, puzzle_date) DO NOTHING
	`, snap.PuzzleID, domain.Day(snap.Date), entries, snap.TotalPlayers, snap.TopTenCount, snap.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("creating snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := r.Snapshot(ctx, snap.PuzzleID, snap.Date)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return &snap, true, nil
}

// Snapshot retrieves the frozen copy of a finalized partition
func (r *Repository) Snapshot(ctx context.Context, puzzleID string, date time.Time) (*domain.DailySnapshot, error) {
	var snap domain.DailySnapshot
	var entries []byte
	err := r.pool.QueryRow(ctx, `
		SELECT puzzle_id, puzzle_date, entries, total_players, top_ten_count, created_at
		FROM daily_snapshots
		WHERE puzzle_id = $1 AND puzzle_date = $2
	`, puzzleID, domain.Day(date)).Scan(
		&snap.PuzzleID, &snap.Date, &entries, &snap.TotalPlayers, &snap.TopTenCount, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}
	if err := json.Unmarshal(entries, &snap.Entries); err != nil {
		return nil, fmt.Errorf("decoding snapshot entries: %w", err)
	}
	snap.Date = domain.Day(snap.Date)
	return &snap, nil
}

// UnfinalizedPartitions lists partitions dated strictly before the cutoff
// that have entries but no snapshot yet
func (r *Repository) UnfinalizedPartitions(ctx context.Context, before time.Time) ([]domain.PartitionRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT le.puzzle_id, le.puzzle_date
		FROM leaderboard_entries le
		WHERE le.puzzle_date < $1
		AND NOT EXISTS (
			SELECT 1 FROM daily_snapshots ds
			WHERE ds.puzzle_id = le.puzzle_id AND ds.puzzle_date = le.puzzle_date
		)
		ORDER BY le.puzzle_date, le.puzzle_id
	`, domain.Day(before))
	if err != nil {
		return nil, fmt.Errorf("listing unfinalized partitions: %w", err)
	}
	defer rows.Close()

	var refs []domain.PartitionRef
	for rows.Next() {
		var ref domain.PartitionRef
		if err := rows.Scan(&ref.PuzzleID, &ref.Date); err != nil {
			return nil, fmt.Errorf("scanning partition ref: %w", err)
		}
		ref.Date = domain.Day(ref.Date)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// StreakFor retrieves a player's streak state
func (r *Repository) StreakFor(ctx context.Context, playerID string) (*domain.StreakState, error) {
	var s domain.StreakState
	err := r.pool.QueryRow(ctx, `
		SELECT player_id, current_streak, highest_streak, last_win_date, streak_start_date, updated_at
		FROM streaks WHERE player_id = $1
	`, playerID).Scan(&s.PlayerID, &s.Current, &s.Highest, &s.LastWinDate, &s.StartDate, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStreakNotFound
		}
		return nil, fmt.Errorf("getting streak: %w", err)
	}
	return &s, nil
}

// SaveStreak upserts a player's streak state
func (r *Repository) SaveStreak(ctx context.Context, s domain.StreakState) error {
	query := `
		INSERT INTO streaks (player_id, current_streak, highest_streak, last_win_date, streak_start_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (player_id) DO UPDATE
		SET current_streak = $2,
			highest_streak = GREATEST(streaks.highest_streak, $3),
			last_win_date = $4,
			streak_start_date = $5,
			updated_at = $6
	`
	_, err := r.pool.Exec(ctx, query, s.PlayerID, s.Current, s.Highest, s.LastWinDate, s.StartDate, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving streak: %w", err)
	}
	return nil
}

// RankedResults lists a player's ranked results in ascending date order,
// for streak recalculation
func (r *Repository) RankedResults(ctx context.Context, playerID string) ([]domain.RankedResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT puzzle_date, rank
		FROM leaderboard_entries
		WHERE player_id = $1
		ORDER BY puzzle_date
	`, playerID)
	if err != nil {
		return nil, fmt.Errorf("listing ranked results: %w", err)
	}
	defer rows.Close()

	var results []domain.RankedResult
	for rows.Next() {
		var res domain.RankedResult
		if err := rows.Scan(&res.Date, &res.Rank); err != nil {
			return nil, fmt.Errorf("scanning ranked result: %w", err)
		}
		res.Date = domain.Day(res.Date)
		results = append(results, res)
	}
	return results, rows.Err()
}

// InsertThemeAttempt records one theme guess
func (r *Repository) InsertThemeAttempt(ctx context.Context, a domain.ThemeAttempt) error {
	query := `
		INSERT INTO theme_attempts (id, player_id, theme_tag, guess, is_correct, similarity, confidence, method, attempt_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		a.ID, a.PlayerID, a.ThemeTag, a.Guess, a.IsCorrect,
		a.Similarity, a.Confidence, string(a.Method), domain.Day(a.AttemptDate))
	if err != nil {
		return fmt.Errorf("inserting theme attempt: %w", err)
	}
	return nil
}

const themeAttemptColumns = `id, player_id, theme_tag, guess, is_correct, similarity, confidence, method, attempt_date`

func scanThemeAttempts(rows pgx.Rows) ([]domain.ThemeAttempt, error) {
	defer rows.Close()
	var attempts []domain.ThemeAttempt
	for rows.Next() {
		var a domain.ThemeAttempt
		var method string
		err := rows.Scan(&a.ID, &a.PlayerID, &a.ThemeTag, &a.Guess, &a.IsCorrect,
			&a.Similarity, &a.Confidence, &method, &a.AttemptDate)
		if err != nil {
			return nil, fmt.Errorf("scanning theme attempt: %w", err)
		}
		a.Method = domain.MatchMethod(method)
		a.AttemptDate = domain.Day(a.AttemptDate)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ThemeAttemptsFor lists one player's guesses against one theme
func (r *Repository) ThemeAttemptsFor(ctx context.Context, playerID, tag string) ([]domain.ThemeAttempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+themeAttemptColumns+`
		FROM theme_attempts
		WHERE player_id = $1 AND theme_tag = $2
		ORDER BY attempt_date, created_at
	`, playerID, tag)
	if err != nil {
		return nil, fmt.Errorf("listing theme attempts: %w", err)
	}
	return scanThemeAttempts(rows)
}

// AllThemeAttempts lists every theme guess, for the all-time standings
func (r *Repository) AllThemeAttempts(ctx context.Context) ([]domain.ThemeAttempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+themeAttemptColumns+`
		FROM theme_attempts
		ORDER BY player_id, theme_tag, attempt_date
	`)
	if err != nil {
		return nil, fmt.Errorf("listing all theme attempts: %w", err)
	}
	return scanThemeAttempts(rows)
}
