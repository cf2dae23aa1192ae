// Package notify creates, schedules and delivers notifications. Delivery
// status is monotonic: once a notification leaves pending it never changes
// again, which the repository enforces with conditional updates.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimbus-labs/nimbus-bot/internal/domain"
	apperrors "github.com/nimbus-labs/nimbus-bot/internal/errors"
	"github.com/nimbus-labs/nimbus-bot/internal/repository"
	"github.com/nimbus-labs/nimbus-bot/pkg/metrics"
)

// Outcome classifies one delivery attempt to one recipient.
type Outcome int

const (
	// OutcomeDelivered means the message reached the transport.
	OutcomeDelivered Outcome = iota
	// OutcomeRecipientUnreachable means the recipient blocked the bot, was
	// deactivated, or the chat no longer exists. Not worth retrying.
	OutcomeRecipientUnreachable
	// OutcomeBadRequest means the message itself was rejected by the
	// transport, for example malformed markup.
	OutcomeBadRequest
	// OutcomeTransient covers network and rate limit failures that a later
	// sweep may succeed on.
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRecipientUnreachable:
		return "recipient_unreachable"
	case OutcomeBadRequest:
		return "bad_request"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// MessageSender delivers one message to one recipient. Implementations
// classify their transport errors into an Outcome; err carries the detail
// and is nil exactly when the outcome is OutcomeDelivered.
type MessageSender interface {
	Send(ctx context.Context, recipientID int64, text string) (Outcome, error)
}

// RecipientSource lists the users eligible for broadcasts.
type RecipientSource interface {
	ActiveIDs(ctx context.Context) ([]int64, error)
}

// Priority conventions. Higher values are swept first.
const (
	PriorityAnnouncement = 2
	PriorityAdmin        = 3
	PriorityError        = 5
)

// CreateParams describes a notification to be created in pending state.
type CreateParams struct {
	// UserID is nil for broadcasts.
	UserID      *int64
	Title       string
	Message     string
	Type        domain.NotificationType
	ScheduledAt time.Time
	IsBroadcast bool
	Priority    int
}

// Dispatcher owns the notification lifecycle.
type Dispatcher struct {
	repo       repository.NotificationRepository
	recipients RecipientSource
	sender     MessageSender
	log        *slog.Logger

	now func() time.Time
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(repo repository.NotificationRepository, recipients RecipientSource, sender MessageSender, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		repo:       repo,
		recipients: recipients,
		sender:     sender,
		log:        log,
		now:        time.Now,
	}
}

// Create persists a new pending notification. A zero ScheduledAt means due
// immediately.
func (d *Dispatcher) Create(ctx context.Context, params CreateParams) (*domain.Notification, error) {
	now := d.now().UTC()
	scheduledAt := params.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}
	typ := params.Type
	if typ == "" {
		typ = domain.NotificationInfo
	}

	// The creation timestamp is stamped here rather than by the table
	// default: the sweep tie-breaks equal priorities on it and Stats
	// windows on it, so it must be set before the insert.
	n := &domain.Notification{
		UserID:      params.UserID,
		Title:       params.Title,
		Message:     params.Message,
		Type:        typ,
		Status:      domain.NotificationPending,
		ScheduledAt: scheduledAt,
		IsBroadcast: params.IsBroadcast,
		Priority:    params.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.repo.Create(ctx, n); err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}

	d.log.Info("notification created",
		slog.Int64("notification_id", n.ID),
		slog.String("type", string(n.Type)),
		slog.Bool("broadcast", n.IsBroadcast),
		slog.Int("priority", n.Priority))
	return n, nil
}

// NotifyAdmin schedules an immediate admin notification for one admin.
func (d *Dispatcher) NotifyAdmin(ctx context.Context, adminID int64, title, message string) (*domain.Notification, error) {
	return d.Create(ctx, CreateParams{
		UserID:   &adminID,
		Title:    title,
		Message:  message,
		Type:     domain.NotificationAdmin,
		Priority: PriorityAdmin,
	})
}

// NotifyError schedules a high priority error report for one admin.
func (d *Dispatcher) NotifyError(ctx context.Context, adminID int64, detail string) (*domain.Notification, error) {
	return d.Create(ctx, CreateParams{
		UserID:   &adminID,
		Title:    "Bot Error",
		Message:  detail,
		Type:     domain.NotificationError,
		Priority: PriorityError,
	})
}

// BroadcastAnnouncement schedules an immediate broadcast to all active users.
func (d *Dispatcher) BroadcastAnnouncement(ctx context.Context, title, message string) (*domain.Notification, error) {
	return d.Create(ctx, CreateParams{
		Title:       title,
		Message:     message,
		Type:        domain.NotificationInfo,
		IsBroadcast: true,
		Priority:    PriorityAnnouncement,
	})
}

// Send attempts delivery of one notification. Notifications that already
// reached a terminal status are left untouched. The bool reports whether
// the message was delivered; a delivery failure is recorded on the
// notification itself and yields false rather than an error. The returned
// error reflects infrastructure failures only.
func (d *Dispatcher) Send(ctx context.Context, id int64) (bool, error) {
	n, err := d.repo.FindByID(ctx, id)
	if err != nil {
		return false, apperrors.NewPersistenceError(err)
	}
	if n.Status.Terminal() {
		d.log.Debug("notification already settled",
			slog.Int64("notification_id", n.ID),
			slog.String("status", string(n.Status)))
		return false, nil
	}

	if n.IsBroadcast {
		return d.sendBroadcast(ctx, n)
	}
	return d.sendSingle(ctx, n)
}

func (d *Dispatcher) sendSingle(ctx context.Context, n *domain.Notification) (bool, error) {
	if n.UserID == nil {
		if _, err := d.repo.MarkFailed(ctx, n.ID, "no recipient"); err != nil {
			return false, apperrors.NewPersistenceError(err)
		}
		return false, nil
	}

	outcome, sendErr := d.sender.Send(ctx, *n.UserID, formatText(n))
	metrics.RecordNotification(outcome.String())

	if outcome == OutcomeDelivered {
		updated, err := d.repo.MarkSent(ctx, n.ID, d.now().UTC())
		if err != nil {
			return false, apperrors.NewPersistenceError(err)
		}
		if !updated {
			// Lost the race against a cancel. The conditional update
			// already kept the terminal status, nothing to undo.
			d.log.Warn("notification delivered after cancellation",
				slog.Int64("notification_id", n.ID))
		}
		return true, nil
	}

	d.log.Warn("notification delivery failed",
		slog.Int64("notification_id", n.ID),
		slog.Int64("user_id", *n.UserID),
		slog.String("outcome", outcome.String()),
		slog.Any("error", sendErr))

	reason := outcome.String()
	if sendErr != nil {
		reason = sendErr.Error()
	}
	if _, err := d.repo.MarkFailed(ctx, n.ID, reason); err != nil {
		return false, apperrors.NewPersistenceError(err)
	}
	return false, nil
}

// sendBroadcast fans one notification out to all active users. One failing
// recipient never aborts the loop; the broadcast counts as sent when at
// least one recipient got the message.
func (d *Dispatcher) sendBroadcast(ctx context.Context, n *domain.Notification) (bool, error) {
	ids, err := d.recipients.ActiveIDs(ctx)
	if err != nil {
		return false, apperrors.NewPersistenceError(err)
	}

	text := formatText(n)
	var sent, failed int
	for _, id := range ids {
		outcome, sendErr := d.sender.Send(ctx, id, text)
		metrics.RecordNotification(outcome.String())
		if outcome == OutcomeDelivered {
			sent++
			continue
		}
		failed++
		d.log.Debug("broadcast recipient failed",
			slog.Int64("notification_id", n.ID),
			slog.Int64("user_id", id),
			slog.String("outcome", outcome.String()),
			slog.Any("error", sendErr))
	}

	d.log.Info("broadcast finished",
		slog.Int64("notification_id", n.ID),
		slog.Int("sent", sent),
		slog.Int("failed", failed))

	if sent == 0 {
		msg := fmt.Sprintf("all %d recipients failed", len(ids))
		if _, err := d.repo.MarkFailed(ctx, n.ID, msg); err != nil {
			return false, apperrors.NewPersistenceError(err)
		}
		return false, nil
	}

	annotated := fmt.Sprintf("%s\n\n[Sent to %d users, %d failed]", n.Message, sent, failed)
	if err := d.repo.UpdateMessage(ctx, n.ID, annotated); err != nil {
		d.log.Error("failed to annotate broadcast", slog.Int64("notification_id", n.ID), slog.Any("error", err))
	}
	if _, err := d.repo.MarkSent(ctx, n.ID, d.now().UTC()); err != nil {
		return false, apperrors.NewPersistenceError(err)
	}
	return true, nil
}

// SendPendingDue delivers every pending notification whose schedule has
// arrived, highest priority first. One failing notification never blocks
// the rest. Returns the number of notifications successfully delivered,
// not the number attempted.
func (d *Dispatcher) SendPendingDue(ctx context.Context) (int, error) {
	due, err := d.repo.ListDue(ctx, d.now().UTC())
	if err != nil {
		return 0, apperrors.NewPersistenceError(err)
	}

	sent := 0
	for _, n := range due {
		delivered, err := d.Send(ctx, n.ID)
		if err != nil {
			d.log.Error("sweep item failed",
				slog.Int64("notification_id", n.ID),
				slog.Any("error", err))
			continue
		}
		if delivered {
			sent++
		}
	}

	if len(due) > 0 {
		d.log.Info("notification sweep finished",
			slog.Int("due", len(due)),
			slog.Int("sent", sent))
	}
	return sent, nil
}

// Cancel moves a pending notification to cancelled. Returns false when the
// notification had already settled.
func (d *Dispatcher) Cancel(ctx context.Context, id int64) (bool, error) {
	cancelled, err := d.repo.MarkCancelled(ctx, id)
	if err != nil {
		return false, apperrors.NewPersistenceError(err)
	}
	if cancelled {
		d.log.Info("notification cancelled", slog.Int64("notification_id", id))
	}
	return cancelled, nil
}

// ListForUser returns the most recent notifications targeted at one user.
func (d *Dispatcher) ListForUser(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error) {
	list, err := d.repo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	return list, nil
}

// Stats returns aggregate counts over the notification table.
func (d *Dispatcher) Stats(ctx context.Context) (*repository.NotificationStats, error) {
	stats, err := d.repo.Stats(ctx, d.now().UTC())
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	return stats, nil
}

func formatText(n *domain.Notification) string {
	if n.Title == "" {
		return n.Message
	}
	return fmt.Sprintf("<b>%s</b>\n\n%s", n.Title, n.Message)
}
