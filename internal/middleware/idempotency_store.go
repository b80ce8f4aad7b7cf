package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore shares idempotency state across replicas.
type RedisIdempotencyStore struct {
	client *redis.Client
}

// NewRedisIdempotencyStore wraps a Redis client.
func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key, marker string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, marker, ttl).Result()
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisIdempotencyStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// MemoryIdempotencyStore keeps idempotency state in process, for a single
// replica or development.
type MemoryIdempotencyStore struct {
	entries *cache.Cache
}

// NewMemoryIdempotencyStore creates an in-process store whose entries default
// to ttl.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{entries: cache.New(ttl, 2*ttl)}
}

func (s *MemoryIdempotencyStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.entries.Get(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (s *MemoryIdempotencyStore) Reserve(_ context.Context, key, marker string, ttl time.Duration) (bool, error) {
	// Add fails when the key is already present and unexpired.
	return s.entries.Add(key, marker, ttl) == nil, nil
}

func (s *MemoryIdempotencyStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.entries.Set(key, value, ttl)
	return nil
}

func (s *MemoryIdempotencyStore) Delete(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}
