package redis

import (
	"context"
	"time"

	"campusride/internal/lock"
)

// TrustCacheInterface defines the cache contract the trust aggregator relies on.
type TrustCacheInterface interface {
	GetTrustScores(ctx context.Context, userIDs []string) (map[string]float64, []string, error)
	SetTrustScore(ctx context.Context, userID string, score float64) error
	FillTrustScores(ctx context.Context, scores map[string]float64) error
	InvalidateTrustScore(ctx context.Context, userID string) error
}

// IdempotencyStoreInterface defines the response cache behind the
// Idempotency-Key header.
type IdempotencyStoreInterface interface {
	GetResponse(ctx context.Context, key string) ([]byte, bool, error)
	SetResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Ensure concrete types implement interfaces.
var (
	_ lock.Locker         = (*LockStore)(nil)
	_ TrustCacheInterface = (*CacheStore)(nil)

	_ IdempotencyStoreInterface = (*IdempotencyStore)(nil)
)
