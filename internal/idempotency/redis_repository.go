package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository implements Repository on Redis. Records are JSON strings under
// {prefix}:{key} and expire through the key TTL.
type RedisRepository struct {
	client *redis.Client
	prefix string
	expiry time.Duration
}

// NewRedisRepository creates a Redis-backed repository. A non-positive expiry uses
// DefaultExpiry.
func NewRedisRepository(client *redis.Client, prefix string, expiry time.Duration) *RedisRepository {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &RedisRepository{client: client, prefix: prefix, expiry: expiry}
}

func (r *RedisRepository) key(key string) string {
	return r.prefix + ":" + key
}

// Get implements Repository.
func (r *RedisRepository) Get(ctx context.Context, key string) (*Record, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	return &record, nil
}

// Store implements Repository using SET NX so concurrent first requests cannot both
// store a response.
func (r *RedisRepository) Store(ctx context.Context, record *Record) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	copied := *record
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	data, err := json.Marshal(copied)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(record.Key), data, r.expiry).Result()
	if err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}
