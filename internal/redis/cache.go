package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TrustCacheTTL bounds how stale a cached trust score can get if an
// invalidation is lost.
const TrustCacheTTL = 10 * time.Minute

const trustCachePrefix = "cache:trust:"

// CacheStore handles derived-value caching in Redis.
type CacheStore struct {
	client redis.Cmdable
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client redis.Cmdable) *CacheStore {
	return &CacheStore{client: client}
}

// GetTrustScores retrieves multiple trust scores using a pipeline.
// Returns a map of userID -> score, and a slice of IDs that missed the cache.
func (s *CacheStore) GetTrustScores(ctx context.Context, userIDs []string) (map[string]float64, []string, error) {
	result := make(map[string]float64, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(userIDs))
	for _, id := range userIDs {
		cmds[id] = pipe.Get(ctx, trustCachePrefix+id)
	}

	// Exec reports redis.Nil when some keys are missing; each command carries its own error.
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, userIDs, err
	}

	var missing []string
	for id, cmd := range cmds {
		raw, err := cmd.Result()
		if err != nil {
			missing = append(missing, id)
			continue
		}
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			missing = append(missing, id)
			continue
		}
		result[id] = score
	}

	return result, missing, nil
}

// SetTrustScore stores a user's trust score.
func (s *CacheStore) SetTrustScore(ctx context.Context, userID string, score float64) error {
	value := strconv.FormatFloat(score, 'f', 1, 64)
	return s.client.Set(ctx, trustCachePrefix+userID, value, TrustCacheTTL).Err()
}

// FillTrustScores stores scores for users that have no cached score yet,
// using SET NX in a pipeline. A score already cached is never overwritten.
func (s *CacheStore) FillTrustScores(ctx context.Context, scores map[string]float64) error {
	if len(scores) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for id, score := range scores {
		pipe.SetNX(ctx, trustCachePrefix+id, strconv.FormatFloat(score, 'f', 1, 64), TrustCacheTTL)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateTrustScore removes a user's trust score from cache.
func (s *CacheStore) InvalidateTrustScore(ctx context.Context, userID string) error {
	return s.client.Del(ctx, trustCachePrefix+userID).Err()
}
