package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix  = "idempotency:"
	idempotencyLockPrefix = "idempotency:lock:"
)

// RedisIdempotencyStore keeps idempotent responses in Redis and adds a
// processing lock so concurrent requests with one key run the handler once.
type RedisIdempotencyStore struct {
	client redis.UniversalClient
}

func NewRedisIdempotencyStore(client redis.UniversalClient) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

type redisIdempotencyEntry struct {
	RequestHash  string    `json:"request_hash"`
	StatusCode   int       `json:"status_code"`
	ResponseBody []byte    `json:"response_body"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func entryKey(key string, accountID int64) string {
	return fmt.Sprintf("%s%d:%s", idempotencyKeyPrefix, accountID, key)
}

func lockKey(key string, accountID int64) string {
	return fmt.Sprintf("%s%d:%s", idempotencyLockPrefix, accountID, key)
}

// Get returns nil, nil when no entry exists.
func (s *RedisIdempotencyStore) Get(ctx context.Context, key string, accountID int64) (*IdempotencyCacheEntry, error) {
	raw, err := s.client.Get(ctx, entryKey(key, accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	var stored redisIdempotencyEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("Get: decode: %w", err)
	}
	return &IdempotencyCacheEntry{
		Key:          key,
		AccountID:    accountID,
		RequestHash:  stored.RequestHash,
		StatusCode:   stored.StatusCode,
		ResponseBody: stored.ResponseBody,
		CreatedAt:    stored.CreatedAt,
		ExpiresAt:    stored.ExpiresAt,
	}, nil
}

// Set stores the entry until its ExpiresAt. An existing entry is kept.
func (s *RedisIdempotencyStore) Set(ctx context.Context, entry *IdempotencyCacheEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(redisIdempotencyEntry{
		RequestHash:  entry.RequestHash,
		StatusCode:   entry.StatusCode,
		ResponseBody: entry.ResponseBody,
		CreatedAt:    entry.CreatedAt,
		ExpiresAt:    entry.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("Set: encode: %w", err)
	}

	if err := s.client.SetNX(ctx, entryKey(entry.Key, entry.AccountID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("Set: %w", err)
	}
	return nil
}

// Acquire takes the processing lock for the pair. It returns false when
// another request already holds it. The lock expires after ttl so a crashed
// request cannot block the key forever.
func (s *RedisIdempotencyStore) Acquire(ctx context.Context, key string, accountID int64, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, lockKey(key, accountID), "processing", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("Acquire: %w", err)
	}
	return ok, nil
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string, accountID int64) error {
	if err := s.client.Del(ctx, lockKey(key, accountID)).Err(); err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}

func (s *RedisIdempotencyStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Ping: %w", err)
	}
	return nil
}
