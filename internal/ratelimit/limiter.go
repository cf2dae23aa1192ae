// Package ratelimit implements fixed-window per-user request limiting on top
// of the cache store.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/nimbus-labs/nimbus-bot/internal/cache"
)

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
}

// Limiter counts requests in non-overlapping windows of fixed length. The
// counter key is created on the first request of a window and expires with
// the window, so no cleanup pass is needed.
type Limiter struct {
	cache *cache.Store
	log   *slog.Logger
}

// NewLimiter creates a cache-backed fixed-window limiter.
func NewLimiter(store *cache.Store, log *slog.Logger) *Limiter {
	if log == nil {
		log = slog.Default()
	}

	return &Limiter{
		cache: store,
		log:   log,
	}
}

// Allow evaluates the limit for userID. When the cache is unreachable the
// limiter fails open: the request is allowed and the failure is logged,
// never propagated.
func (l *Limiter) Allow(ctx context.Context, userID int64, limit int, window time.Duration) Result {
	if limit <= 0 {
		return Result{Allowed: false, Remaining: 0}
	}

	key := cache.RateLimitKey(userID)

	count, ok := l.cache.Increment(ctx, key, 1)
	if !ok {
		l.log.Warn("rate limiter failing open: cache unreachable", slog.Int64("user_id", userID))
		return Result{Allowed: true, Remaining: limit}
	}

	if count == 1 {
		// Counter was just created; the window starts now.
		l.cache.Expire(ctx, key, window)
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(limit),
		Remaining: remaining,
	}
}
