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

type userRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewUserRepository creates a new SQL-backed user repository.
func NewUserRepository(db *sql.DB, log *slog.Logger) UserRepository {
	return &userRepository{
		db:  db,
		log: log,
	}
}

const userColumns = `
	id, username, first_name, last_name, language_code, status, is_admin,
	is_premium, first_interaction, last_interaction, total_messages,
	created_at, updated_at
`

// FindByID retrieves a user by their platform identifier.
func (r *userRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}

		r.logError("find user", id, err)
		return nil, fmt.Errorf("select user: %w", err)
	}

	return user, nil
}

// Upsert inserts the user on first sight; on conflict it refreshes the
// mirrored profile fields and bumps last_interaction. Single statement, so
// concurrent events for one user never produce duplicates.
func (r *userRepository) Upsert(ctx context.Context, profile domain.Profile, now time.Time) (*domain.User, error) {
	query := `
		INSERT INTO users (
			id, username, first_name, last_name, language_code, status,
			is_premium, first_interaction, last_interaction, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, 'active', $6, $7, $7, $7, $7)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			language_code = EXCLUDED.language_code,
			is_premium = EXCLUDED.is_premium,
			last_interaction = EXCLUDED.last_interaction,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns

	row := r.db.QueryRowContext(
		ctx,
		query,
		profile.ID,
		profile.Username,
		profile.FirstName,
		profile.LastName,
		profile.LanguageCode,
		profile.IsPremium,
		now,
	)

	user, err := scanUser(row)
	if err != nil {
		r.logError("upsert user", profile.ID, err)
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	return user, nil
}

// IncrementMessageCount bumps the message counter for content-bearing events.
func (r *userRepository) IncrementMessageCount(ctx context.Context, id int64) error {
	const query = `UPDATE users SET total_messages = total_messages + 1 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		r.logError("increment message count", id, err)
		return fmt.Errorf("increment message count: %w", err)
	}

	return nil
}

// SetAdmin updates the admin flag.
func (r *userRepository) SetAdmin(ctx context.Context, id int64, isAdmin bool) error {
	const query = `UPDATE users SET is_admin = $2, updated_at = now() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, isAdmin); err != nil {
		r.logError("set admin", id, err)
		return fmt.Errorf("set admin: %w", err)
	}

	return nil
}

// SetStatus transitions the account status; users are never hard-deleted.
func (r *userRepository) SetStatus(ctx context.Context, id int64, status domain.UserStatus) error {
	const query = `UPDATE users SET status = $2, updated_at = now() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, string(status)); err != nil {
		r.logError("set status", id, err)
		return fmt.Errorf("set status: %w", err)
	}

	return nil
}

// ListActiveIDs returns the ids of all users with active status.
func (r *userRepository) ListActiveIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT id FROM users WHERE status = 'active' ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan active user id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ListAdmins returns all users with the admin flag set.
func (r *userRepository) ListAdmins(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE is_admin ORDER BY first_name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// Stats aggregates user counts in a single query.
func (r *userRepository) Stats(ctx context.Context, now time.Time) (*UserStats, error) {
	const query = `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'active'),
			count(*) FILTER (WHERE is_premium),
			count(*) FILTER (WHERE created_at >= $1)
		FROM users
	`

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var stats UserStats
	err := r.db.QueryRowContext(ctx, query, startOfDay).Scan(
		&stats.Total,
		&stats.Active,
		&stats.Premium,
		&stats.NewToday,
	)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}

	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.LanguageCode,
		&user.Status,
		&user.IsAdmin,
		&user.IsPremium,
		&user.FirstInteraction,
		&user.LastInteraction,
		&user.TotalMessages,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *userRepository) logError(operation string, id int64, err error) {
	if r.log == nil {
		return
	}

	r.log.Error("user repository operation failed",
		slog.String("operation", operation),
		slog.Int64("user_id", id),
		slog.Any("error", err),
	)
}
