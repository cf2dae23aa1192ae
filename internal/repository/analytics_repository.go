package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nimbus-labs/nimbus-bot/internal/domain"
)

type analyticsRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewAnalyticsRepository creates a new SQL-backed analytics repository.
func NewAnalyticsRepository(db *sql.DB, log *slog.Logger) AnalyticsRepository {
	return &analyticsRepository{
		db:  db,
		log: log,
	}
}

// Create appends one immutable analytics entry.
func (r *analyticsRepository) Create(ctx context.Context, entry *domain.AnalyticsEntry) error {
	const query = `
		INSERT INTO analytics (user_id, action, details, chat_type, message_type, response_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var responseTime sql.NullInt64
	if entry.ResponseTimeMS != nil {
		responseTime = sql.NullInt64{Int64: *entry.ResponseTimeMS, Valid: true}
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		entry.UserID,
		string(entry.Action),
		entry.Details,
		entry.ChatType,
		entry.MessageType,
		responseTime,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to create analytics entry",
				slog.Int64("user_id", entry.UserID),
				slog.String("action", string(entry.Action)),
				slog.Any("error", err),
			)
		}
		return fmt.Errorf("insert analytics entry: %w", err)
	}

	return nil
}

// Query returns entries matching the filter, newest first when limited.
func (r *analyticsRepository) Query(ctx context.Context, filter AnalyticsFilter) ([]domain.AnalyticsEntry, error) {
	var (
		conditions []string
		args       []any
	)

	appendCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.UserID != 0 {
		appendCondition("user_id = $%d", filter.UserID)
	}
	if filter.Action != "" {
		appendCondition("action = $%d", string(filter.Action))
	}
	if !filter.Since.IsZero() {
		appendCondition("created_at >= $%d", filter.Since)
	}
	if filter.OnlyTimed {
		conditions = append(conditions, "response_time_ms IS NOT NULL")
	}

	query := `SELECT id, user_id, action, details, chat_type, message_type, response_time_ms, created_at FROM analytics`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query analytics: %w", err)
	}
	defer rows.Close()

	var entries []domain.AnalyticsEntry
	for rows.Next() {
		var (
			entry        domain.AnalyticsEntry
			responseTime sql.NullInt64
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Action,
			&entry.Details,
			&entry.ChatType,
			&entry.MessageType,
			&responseTime,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan analytics entry: %w", err)
		}

		if responseTime.Valid {
			value := responseTime.Int64
			entry.ResponseTimeMS = &value
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// DeleteOlderThan bulk-ages out entries created before the cutoff.
func (r *analyticsRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM analytics WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old analytics: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted analytics: %w", err)
	}

	return removed, nil
}
