package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wordday/internal/config"
	"github.com/wordday/internal/domain"
)

// similarityTTL bounds how long a provider score is reused for the same
// normalized guess.
const similarityTTL = 24 * time.Hour

// Cache provides Redis-based fast-path reads: a sorted set per
// leaderboard partition and a result cache for similarity lookups.
// PostgreSQL stays the source of truth; dense ranks come from there.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCache creates a new Redis cache
func NewCache(cfg *config.RedisConfig, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// partitionKey returns the sorted-set key for one (puzzle, date) partition
func (c *Cache) partitionKey(puzzleID string, date time.Time) string {
	return fmt.Sprintf("partition:%s:live", domain.PartitionKey(puzzleID, date))
}

// similarityKey returns the cache key for one (theme, guess) score
func (c *Cache) similarityKey(tag, normalizedGuess string) string {
	return fmt.Sprintf("similarity:%s:%s", domain.NormalizeIdentity(tag), domain.NormalizeIdentity(normalizedGuess))
}

// compositeScore encodes the partition ordering into one ascending ZSET
// score: elapsed seconds dominate, guesses break ties. Guesses never
// exceed 6, so the *100 spread keeps the two keys from colliding.
func compositeScore(elapsedSeconds, guessesUsed int) float64 {
	return float64(elapsedSeconds*100 + guessesUsed)
}

func decodeComposite(score float64) (elapsedSeconds, guessesUsed int) {
	v := int(score)
	return v / 100, v % 100
}

// WarmPartition replaces a partition's sorted set from authoritative
// entries, using pipelining
func (c *Cache) WarmPartition(ctx context.Context, puzzleID string, date time.Time, entries []domain.LeaderboardEntry) error {
	key := c.partitionKey(puzzleID, date)
	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	for _, e := range entries {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  compositeScore(e.ElapsedSeconds, e.GuessesUsed),
			Member: e.PlayerID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warming partition: %w", err)
	}
	return nil
}

// TopN returns the best N cached results of a partition, ascending.
// Ranks here ignore same-score submission order; reads that need the
// exact dense rank go to PostgreSQL.
func (c *Cache) TopN(ctx context.Context, puzzleID string, date time.Time, n int) ([]domain.LeaderboardEntry, error) {
	key := c.partitionKey(puzzleID, date)
	results, err := c.client.ZRangeWithScores(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, len(results))
	for i, result := range results {
		elapsed, guesses := decodeComposite(result.Score)
		entries[i] = domain.LeaderboardEntry{
			Rank:           i + 1,
			PlayerID:       result.Member.(string),
			PuzzleID:       puzzleID,
			Date:           domain.Day(date),
			ElapsedSeconds: elapsed,
			GuessesUsed:    guesses,
			TopTen:         i < domain.TopTenSize,
		}
	}
	return entries, nil
}

// PartitionSize returns the number of cached results in a partition
func (c *Cache) PartitionSize(ctx context.Context, puzzleID string, date time.Time) (int64, error) {
	count, err := c.client.ZCard(ctx, c.partitionKey(puzzleID, date)).Result()
	if err != nil {
		return 0, fmt.Errorf("getting partition size: %w", err)
	}
	return count, nil
}

// DropPartition removes a partition's live cache, done after finalization
// freezes the authoritative copy
func (c *Cache) DropPartition(ctx context.Context, puzzleID string, date time.Time) error {
	if err := c.client.Del(ctx, c.partitionKey(puzzleID, date)).Err(); err != nil {
		return fmt.Errorf("dropping partition: %w", err)
	}
	return nil
}

// SimilarityScore returns a cached provider score for a theme guess
func (c *Cache) SimilarityScore(ctx context.Context, tag, normalizedGuess string) (float64, bool, error) {
	val, err := c.client.Get(ctx, c.similarityKey(tag, normalizedGuess)).Float64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("getting similarity score: %w", err)
	}
	return val, true, nil
}

// SetSimilarityScore caches a provider score for a theme guess
func (c *Cache) SetSimilarityScore(ctx context.Context, tag, normalizedGuess string, score float64) error {
	err := c.client.Set(ctx, c.similarityKey(tag, normalizedGuess), score, similarityTTL).Err()
	if err != nil {
		return fmt.Errorf("setting similarity score: %w", err)
	}
	return nil
}
