package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "idempotency:"

// IdempotencyStore caches rendered responses of mutating requests.
type IdempotencyStore struct {
	client redis.Cmdable
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(client redis.Cmdable) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// GetResponse returns the cached response for key, or ok=false on a miss.
func (s *IdempotencyStore) GetResponse(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// SetResponse stores a response under key unless one is already stored.
func (s *IdempotencyStore) SetResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.client.SetNX(ctx, idempotencyPrefix+key, data, ttl).Err()
}
