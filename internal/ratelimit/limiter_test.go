package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/nimbus-labs/nimbus-bot/internal/cache"
	redisx "github.com/nimbus-labs/nimbus-bot/pkg/redis"
)

func setupTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	store := cache.NewStore(redisx.NewFromClient(client), time.Hour, testLogger())
	return NewLimiter(store, testLogger()), mr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLimiter_AllowsWithinLimit(t *testing.T) {
	limiter, _ := setupTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result := limiter.Allow(ctx, 42, 5, time.Minute)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestLimiter_RejectsOverLimit(t *testing.T) {
	limiter, _ := setupTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(ctx, 42, 3, time.Minute).Allowed)
	}

	result := limiter.Allow(ctx, 42, 3, time.Minute)
	assert.False(t, result.Allowed)
	assert.Zero(t, result.Remaining)
}

func TestLimiter_WindowResets(t *testing.T) {
	limiter, mr := setupTestLimiter(t)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, 42, 1, time.Minute).Allowed)
	assert.False(t, limiter.Allow(ctx, 42, 1, time.Minute).Allowed)

	mr.FastForward(time.Minute + time.Second)

	assert.True(t, limiter.Allow(ctx, 42, 1, time.Minute).Allowed)
}

func TestLimiter_IndependentUsers(t *testing.T) {
	limiter, _ := setupTestLimiter(t)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, 1, 1, time.Minute).Allowed)
	assert.False(t, limiter.Allow(ctx, 1, 1, time.Minute).Allowed)
	assert.True(t, limiter.Allow(ctx, 2, 1, time.Minute).Allowed)
}

func TestLimiter_FailsOpenWhenCacheUnreachable(t *testing.T) {
	limiter, mr := setupTestLimiter(t)

	mr.Close()

	result := limiter.Allow(context.Background(), 42, 1, time.Minute)
	assert.True(t, result.Allowed)
}
