// Package repository defines persistence contracts and their SQL
// implementations. All writes are atomic at the single-entity level;
// cross-entity consistency is not required by the core.
package repository

import (
	"context"
	"time"

	"github.com/nimbus-labs/nimbus-bot/internal/domain"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	// Upsert creates the user on first sight or refreshes profile fields and
	// bumps the last-interaction timestamp, in one atomic statement.
	Upsert(ctx context.Context, profile domain.Profile, now time.Time) (*domain.User, error)
	IncrementMessageCount(ctx context.Context, id int64) error
	SetAdmin(ctx context.Context, id int64, isAdmin bool) error
	SetStatus(ctx context.Context, id int64, status domain.UserStatus) error
	ListActiveIDs(ctx context.Context) ([]int64, error)
	ListAdmins(ctx context.Context) ([]*domain.User, error)
	Stats(ctx context.Context, now time.Time) (*UserStats, error)
}

// UserStats aggregates counts over the user table.
type UserStats struct {
	Total    int64 `json:"total_users"`
	Active   int64 `json:"active_users"`
	Premium  int64 `json:"premium_users"`
	NewToday int64 `json:"new_today"`
}

// AnalyticsFilter narrows analytics queries. Zero-valued fields are ignored.
type AnalyticsFilter struct {
	UserID    int64
	Action    domain.Action
	Since     time.Time
	OnlyTimed bool
	Limit     int
}

// AnalyticsRepository defines persistence operations for analytics entries.
type AnalyticsRepository interface {
	Create(ctx context.Context, entry *domain.AnalyticsEntry) error
	Query(ctx context.Context, filter AnalyticsFilter) ([]domain.AnalyticsEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationRepository defines persistence operations for notifications.
// The Mark* methods implement the monotonic status machine: each transitions
// from pending in a single conditional statement and reports false when the
// notification was not pending, so terminal states are never re-entered.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	FindByID(ctx context.Context, id int64) (*domain.Notification, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id int64, errorMessage string) (bool, error)
	MarkCancelled(ctx context.Context, id int64) (bool, error)
	UpdateMessage(ctx context.Context, id int64, message string) error
	// ListDue returns pending notifications with scheduledAt <= now, ordered
	// by descending priority then ascending creation time.
	ListDue(ctx context.Context, now time.Time) ([]*domain.Notification, error)
	ListForUser(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error)
	Stats(ctx context.Context, now time.Time) (*NotificationStats, error)
}

// NotificationStats aggregates counts over the notification table.
type NotificationStats struct {
	Total    int64            `json:"total_notifications"`
	ByStatus map[string]int64 `json:"by_status"`
	ByType   map[string]int64 `json:"by_type"`
	Last24h  int64            `json:"last_24h"`
}
