// Package handlers implements the task processors for the background worker.
package handlers

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// NotificationSweeper delivers every pending due notification.
type NotificationSweeper interface {
	SendPendingDue(ctx context.Context) (int, error)
}

// NotificationSweepHandler processes notification sweep tasks.
type NotificationSweepHandler struct {
	sweeper NotificationSweeper
	log     *slog.Logger
}

func NewNotificationSweepHandler(sweeper NotificationSweeper, log *slog.Logger) *NotificationSweepHandler {
	return &NotificationSweepHandler{sweeper: sweeper, log: log}
}

func (h *NotificationSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	sent, err := h.sweeper.SendPendingDue(ctx)
	if err != nil {
		if h.log != nil {
			h.log.ErrorContext(ctx, "notification sweep failed",
				slog.String("task_type", t.Type()),
				slog.Any("error", err))
		}
		return err
	}

	if h.log != nil && sent > 0 {
		h.log.InfoContext(ctx, "notification sweep done",
			slog.String("task_type", t.Type()),
			slog.Int("sent", sent))
	}
	return nil
}
