// Package user provides business operations over user records.
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimbus-labs/nimbus-bot/internal/cache"
	"github.com/nimbus-labs/nimbus-bot/internal/domain"
	apperrors "github.com/nimbus-labs/nimbus-bot/internal/errors"
	"github.com/nimbus-labs/nimbus-bot/internal/repository"
)

const statsCacheTTL = 5 * time.Minute

// Service resolves inbound identities to durable user records and exposes
// administrative user operations.
type Service struct {
	repo  repository.UserRepository
	cache *cache.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewService constructs a new Service instance.
func NewService(repo repository.UserRepository, store *cache.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		repo:  repo,
		cache: store,
		log:   log,
		now:   time.Now,
	}
}

// Resolve upserts the durable record for the event's originating identity:
// created on first sight, profile fields refreshed and last interaction
// bumped on every event. Store failures propagate as persistence errors.
func (s *Service) Resolve(ctx context.Context, profile domain.Profile) (*domain.User, error) {
	user, err := s.repo.Upsert(ctx, profile, s.now().UTC())
	if err != nil {
		s.logError("resolve", profile.ID, err)
		return nil, apperrors.NewPersistenceError(fmt.Errorf("resolve user %d: %w", profile.ID, err))
	}

	return user, nil
}

// RecordMessage increments the message counter for content-bearing events.
func (s *Service) RecordMessage(ctx context.Context, userID int64) error {
	if err := s.repo.IncrementMessageCount(ctx, userID); err != nil {
		s.logError("record_message", userID, err)
		return err
	}

	return nil
}

// SetAdmin updates the admin flag for a user.
func (s *Service) SetAdmin(ctx context.Context, userID int64, isAdmin bool) error {
	if err := s.repo.SetAdmin(ctx, userID, isAdmin); err != nil {
		s.logError("set_admin", userID, err)
		return err
	}

	return nil
}

// SetStatus transitions the account status. Blocking or banning takes the
// place of deletion; the record itself is kept.
func (s *Service) SetStatus(ctx context.Context, userID int64, status domain.UserStatus) error {
	if err := s.repo.SetStatus(ctx, userID, status); err != nil {
		s.logError("set_status", userID, err)
		return err
	}

	s.log.Info("user status changed", slog.Int64("user_id", userID), slog.String("status", string(status)))
	return nil
}

// ActiveIDs returns the ids of all currently active users.
func (s *Service) ActiveIDs(ctx context.Context) ([]int64, error) {
	ids, err := s.repo.ListActiveIDs(ctx)
	if err != nil {
		s.logError("active_ids", 0, err)
		return nil, err
	}

	return ids, nil
}

// Admins returns all users with the admin flag set.
func (s *Service) Admins(ctx context.Context) ([]*domain.User, error) {
	return s.repo.ListAdmins(ctx)
}

// Stats returns aggregate user statistics, cached for a few minutes since
// the admin panel polls them.
func (s *Service) Stats(ctx context.Context) (*repository.UserStats, error) {
	return cache.GetOrSet(ctx, s.cache, cache.UserStatsKey, statsCacheTTL, func(ctx context.Context) (*repository.UserStats, error) {
		return s.repo.Stats(ctx, s.now().UTC())
	})
}

// CountActive reports the active-user count for the metrics collector.
func (s *Service) CountActive(ctx context.Context) (int, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return 0, err
	}

	return int(stats.Active), nil
}

// InvalidateCaches drops per-user cached data, used after administrative
// changes that make cached snapshots stale.
func (s *Service) InvalidateCaches(ctx context.Context) int64 {
	return s.cache.ClearPattern(ctx, cache.UserPattern)
}

func (s *Service) logError(operation string, userID int64, err error) {
	if s.log == nil || err == nil {
		return
	}

	s.log.Error("user service operation failed",
		slog.String("operation", operation),
		slog.Int64("user_id", userID),
		slog.Any("error", err),
	)
}
