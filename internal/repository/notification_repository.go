package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimbus-labs/nimbus-bot/internal/domain"
)

type notificationRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewNotificationRepository creates a new SQL-backed notification repository.
func NewNotificationRepository(db *sql.DB, log *slog.Logger) NotificationRepository {
	return &notificationRepository{
		db:  db,
		log: log,
	}
}

const notificationColumns = `
	id, user_id, title, message, type, status, scheduled_at, sent_at,
	error_message, is_broadcast, priority, created_at, updated_at
`

// Create persists a new pending notification.
func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
		INSERT INTO notifications (user_id, title, message, type, status, scheduled_at, is_broadcast, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7, $8, $8)
		RETURNING id
	`

	var userID sql.NullInt64
	if n.UserID != nil {
		userID = sql.NullInt64{Int64: *n.UserID, Valid: true}
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		userID,
		n.Title,
		n.Message,
		string(n.Type),
		n.ScheduledAt,
		n.IsBroadcast,
		n.Priority,
		n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to create notification", slog.String("title", n.Title), slog.Any("error", err))
		}
		return fmt.Errorf("insert notification: %w", err)
	}

	n.Status = domain.NotificationPending
	return nil
}

// FindByID retrieves a notification by id.
func (r *notificationRepository) FindByID(ctx context.Context, id int64) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}

		return nil, fmt.Errorf("select notification: %w", err)
	}

	return n, nil
}

// MarkSent transitions pending -> sent. Returns false if the notification
// was not pending anymore.
func (r *notificationRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) (bool, error) {
	const query = `
		UPDATE notifications
		SET status = 'sent', sent_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`

	return r.transition(ctx, query, id, sentAt)
}

// MarkFailed transitions pending -> failed, recording the error detail.
func (r *notificationRepository) MarkFailed(ctx context.Context, id int64, errorMessage string) (bool, error) {
	const query = `
		UPDATE notifications
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`

	return r.transition(ctx, query, id, errorMessage)
}

// MarkCancelled transitions pending -> cancelled.
func (r *notificationRepository) MarkCancelled(ctx context.Context, id int64) (bool, error) {
	const query = `
		UPDATE notifications
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`

	return r.transition(ctx, query, id)
}

func (r *notificationRepository) transition(ctx context.Context, query string, id int64, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		if r.log != nil {
			r.log.Error("notification transition failed", slog.Int64("notification_id", id), slog.Any("error", err))
		}
		return false, fmt.Errorf("update notification status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("count updated notifications: %w", err)
	}

	return affected > 0, nil
}

// UpdateMessage rewrites the message body, used to annotate broadcast
// results for audit.
func (r *notificationRepository) UpdateMessage(ctx context.Context, id int64, message string) error {
	const query = `UPDATE notifications SET message = $2, updated_at = now() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, message); err != nil {
		return fmt.Errorf("update notification message: %w", err)
	}

	return nil
}

// ListDue returns pending notifications scheduled at or before now, highest
// priority first, oldest first within a priority.
func (r *notificationRepository) ListDue(ctx context.Context, now time.Time) ([]*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY priority DESC, created_at ASC
	`

	return r.list(ctx, query, now)
}

// ListForUser returns the newest notifications targeted at a user.
func (r *notificationRepository) ListForUser(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	return r.list(ctx, query, userID, limit)
}

func (r *notificationRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// Stats aggregates notification counts by status and type.
func (r *notificationRepository) Stats(ctx context.Context, now time.Time) (*NotificationStats, error) {
	stats := &NotificationStats{
		ByStatus: make(map[string]int64),
		ByType:   make(map[string]int64),
	}

	const query = `
		SELECT status, type, count(*), count(*) FILTER (WHERE created_at >= $1)
		FROM notifications
		GROUP BY status, type
	`

	rows, err := r.db.QueryContext(ctx, query, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("notification stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status, ntype  string
			count, last24h int64
		)
		if err := rows.Scan(&status, &ntype, &count, &last24h); err != nil {
			return nil, fmt.Errorf("scan notification stats: %w", err)
		}

		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByType[ntype] += count
		stats.Last24h += last24h
	}

	return stats, rows.Err()
}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var (
		n      domain.Notification
		userID sql.NullInt64
		sentAt sql.NullTime
		errMsg sql.NullString
	)

	if err := row.Scan(
		&n.ID,
		&userID,
		&n.Title,
		&n.Message,
		&n.Type,
		&n.Status,
		&n.ScheduledAt,
		&sentAt,
		&errMsg,
		&n.IsBroadcast,
		&n.Priority,
		&n.CreatedAt,
		&n.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if userID.Valid {
		id := userID.Int64
		n.UserID = &id
	}
	if sentAt.Valid {
		at := sentAt.Time
		n.SentAt = &at
	}
	if errMsg.Valid {
		n.ErrorMessage = errMsg.String
	}

	return &n, nil
}
