// Package cache implements the application cache store over Redis.
//
// Every operation is total from the caller's perspective: store
// unavailability and decode failures are logged and converted into a
// miss/no-op/false result instead of propagating. The rate limiter's
// fail-open policy depends on this containment.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nimbus-labs/nimbus-bot/pkg/metrics"
	redisx "github.com/nimbus-labs/nimbus-bot/pkg/redis"
)

// Store is a key/value cache with per-key TTLs, atomic increments, and
// pattern-based invalidation. Values are stored as JSON.
type Store struct {
	client     *redisx.Client
	defaultTTL time.Duration
	log        *slog.Logger
}

// NewStore constructs a Store. ttl is used whenever a Set receives a
// non-positive TTL.
func NewStore(client *redisx.Client, defaultTTL time.Duration, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}

	return &Store{
		client:     client,
		defaultTTL: defaultTTL,
		log:        log,
	}
}

// Get decodes the value stored under key into dest. It returns false on a
// miss, a store error, or a decode failure; decode failures are treated as
// misses and logged.
func (s *Store) Get(ctx context.Context, key string, dest any) bool {
	data, err := s.client.Get(ctx, key)
	if err != nil {
		if err != goredis.Nil {
			s.log.Error("cache get failed", slog.String("key", key), slog.Any("error", err))
		}
		metrics.RecordCacheOperation("get", "miss")
		return false
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		s.log.Error("cache value decode failed", slog.String("key", key), slog.Any("error", err))
		metrics.RecordCacheOperation("get", "miss")
		return false
	}

	metrics.RecordCacheOperation("get", "hit")
	return true
}

// Set stores value under key with the given TTL, falling back to the default
// TTL when ttl is non-positive. False signals the value was not stored.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	payload, err := json.Marshal(value)
	if err != nil {
		s.log.Error("cache value encode failed", slog.String("key", key), slog.Any("error", err))
		metrics.RecordCacheOperation("set", "error")
		return false
	}

	if err := s.client.Set(ctx, key, payload, ttl); err != nil {
		s.log.Error("cache set failed", slog.String("key", key), slog.Any("error", err))
		metrics.RecordCacheOperation("set", "error")
		return false
	}

	metrics.RecordCacheOperation("set", "ok")
	return true
}

// Delete removes the given keys and returns how many were removed.
func (s *Store) Delete(ctx context.Context, keys ...string) int64 {
	removed, err := s.client.Delete(ctx, keys...)
	if err != nil {
		s.log.Error("cache delete failed", slog.Any("keys", keys), slog.Any("error", err))
		return 0
	}

	return removed
}

// Exists reports whether key is present. Store errors read as absent.
func (s *Store) Exists(ctx context.Context, key string) bool {
	present, err := s.client.Exists(ctx, key)
	if err != nil {
		s.log.Error("cache exists failed", slog.String("key", key), slog.Any("error", err))
		return false
	}

	return present
}

// Increment atomically adds amount to the numeric value at key, creating the
// key at amount when absent. The second return value is false when the store
// was unreachable and the new value is unknown.
func (s *Store) Increment(ctx context.Context, key string, amount int64) (int64, bool) {
	value, err := s.client.IncrBy(ctx, key, amount)
	if err != nil {
		s.log.Error("cache increment failed", slog.String("key", key), slog.Any("error", err))
		return 0, false
	}

	return value, true
}

// Expire sets the TTL of an existing key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	if err := s.client.Expire(ctx, key, ttl); err != nil {
		s.log.Error("cache expire failed", slog.String("key", key), slog.Any("error", err))
		return false
	}

	return true
}

// ClearPattern bulk-deletes all keys matching the glob pattern and returns
// the number removed. Keys are discovered with SCAN, never KEYS.
func (s *Store) ClearPattern(ctx context.Context, pattern string) int64 {
	keys, err := s.client.ScanKeys(ctx, pattern)
	if err != nil {
		s.log.Error("cache pattern scan failed", slog.String("pattern", pattern), slog.Any("error", err))
		return 0
	}

	if len(keys) == 0 {
		return 0
	}

	return s.Delete(ctx, keys...)
}

// GetOrSet returns the cached value for key, computing and storing it on a
// miss. Concurrent callers for the same absent key may both invoke compute;
// that race is accepted since compute is expected to be an idempotent,
// side-effect-free lookup.
func GetOrSet[T any](ctx context.Context, s *Store, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var cached T
	if s.Get(ctx, key, &cached) {
		return cached, nil
	}

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	s.Set(ctx, key, value, ttl)
	return value, nil
}
