package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nimbus-labs/nimbus-bot/internal/auth"
	"github.com/nimbus-labs/nimbus-bot/internal/domain"
	apperrors "github.com/nimbus-labs/nimbus-bot/internal/errors"
	"github.com/nimbus-labs/nimbus-bot/internal/ratelimit"
	"github.com/nimbus-labs/nimbus-bot/pkg/logger"
	"github.com/nimbus-labs/nimbus-bot/pkg/metrics"
)

// UserResolver provides the user lookup the first stage needs.
type UserResolver interface {
	Resolve(ctx context.Context, profile domain.Profile) (*domain.User, error)
	RecordMessage(ctx context.Context, userID int64) error
}

// Allower decides whether one more request fits the sender's window.
type Allower interface {
	Allow(ctx context.Context, userID int64, limit int, window time.Duration) ratelimit.Result
}

// EventTracker records one analytics entry per processed event.
type EventTracker interface {
	Track(ctx context.Context, userID int64, action domain.Action, details, chatType, messageType string, responseTimeMS *int64) error
}

// LimitProvider returns the current rate limit settings. Kept as a function
// so config reloads take effect without rebuilding the chain.
type LimitProvider func() (limit int, window time.Duration)

// ResolveUser loads or creates the sender and attaches it to the pipeline
// context together with a fresh correlation id. Content events bump the
// sender's message counter.
func ResolveUser(users UserResolver, log *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, pc *Context) error {
			ctx, correlationID := logger.WithCorrelationID(ctx)
			pc.CorrelationID = correlationID

			user, err := users.Resolve(ctx, pc.Event.Sender)
			if err != nil {
				return err
			}
			pc.User = user

			if pc.Event.HasContent() {
				if err := users.RecordMessage(ctx, user.ID); err != nil {
					log.Warn("message counter bump failed",
						slog.Int64("user_id", user.ID),
						slog.Any("error", err))
				}
			}
			return next(ctx, pc)
		}
	}
}

// RateLimit rejects events beyond the sender's fixed window allowance.
// Admins bypass the limiter entirely. The limiter itself fails open, so an
// unreachable cache never blocks traffic.
func RateLimit(limiter Allower, gate *auth.Gate, limits LimitProvider, log *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, pc *Context) error {
			if gate.IsAdmin(pc.User) {
				return next(ctx, pc)
			}

			limit, window := limits()
			result := limiter.Allow(ctx, pc.User.ID, limit, window)
			if !result.Allowed {
				metrics.RecordRateLimitRejection()
				log.Info("rate limit exceeded",
					slog.Int64("user_id", pc.User.ID),
					slog.Int("limit", limit))
				return apperrors.NewRateLimitError(int(window.Seconds()))
			}
			return next(ctx, pc)
		}
	}
}

// Authorize rejects privileged selectors from non-admin users.
func Authorize(gate *auth.Gate) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, pc *Context) error {
			if err := gate.Authorize(pc.User, pc.Event.Selector); err != nil {
				return err
			}
			return next(ctx, pc)
		}
	}
}

// Analytics times the handler and records one entry per event that maps to
// a known action. Handler failures are recorded under the error action and
// the error still propagates to the caller.
func Analytics(tracker EventTracker, log *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, pc *Context) error {
			start := time.Now()
			handlerErr := next(ctx, pc)
			elapsed := time.Since(start)

			action, known := actionFor(pc.Event)
			status := "ok"
			if handlerErr != nil {
				action, known = domain.ActionError, true
				status = "error"
			}
			if !known {
				return handlerErr
			}
			metrics.RecordEvent(string(action), status, elapsed)

			ms := elapsed.Milliseconds()
			if err := tracker.Track(ctx, pc.User.ID, action, pc.Event.Selector, pc.Event.ChatType, string(pc.Event.Kind), &ms); err != nil {
				log.Warn("analytics tracking failed",
					slog.Int64("user_id", pc.User.ID),
					slog.Any("error", err))
			}
			return handlerErr
		}
	}
}

// actionFor maps a selector onto the fixed action set. Selectors outside
// the set report false and produce no analytics entry: actions are storage
// keys and metric labels, so user input must never mint new ones.
func actionFor(event domain.Event) (domain.Action, bool) {
	switch event.Selector {
	case "/start":
		return domain.ActionStart, true
	case "/help":
		return domain.ActionHelp, true
	case "about_me":
		return domain.ActionAbout, true
	case "portfolio":
		return domain.ActionPortfolio, true
	case "quotes":
		return domain.ActionQuotes, true
	case "weather":
		return domain.ActionWeather, true
	case "news":
		return domain.ActionNews, true
	case "admin_panel":
		return domain.ActionAdminPanel, true
	case "settings":
		return domain.ActionSettings, true
	case "feedback":
		return domain.ActionFeedback, true
	case "":
		return domain.ActionMessage, true
	default:
		return "", false
	}
}
