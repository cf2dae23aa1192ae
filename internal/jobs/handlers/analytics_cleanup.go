package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nimbus-labs/nimbus-bot/internal/jobs"
)

// AnalyticsCleaner removes analytics entries past their retention window.
type AnalyticsCleaner interface {
	CleanupOlderThan(ctx context.Context, days int) (int64, error)
}

// AnalyticsCleanupHandler processes analytics cleanup tasks.
type AnalyticsCleanupHandler struct {
	cleaner AnalyticsCleaner
	log     *slog.Logger
}

func NewAnalyticsCleanupHandler(cleaner AnalyticsCleaner, log *slog.Logger) *AnalyticsCleanupHandler {
	return &AnalyticsCleanupHandler{cleaner: cleaner, log: log}
}

func (h *AnalyticsCleanupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.AnalyticsCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		if h.log != nil {
			h.log.ErrorContext(ctx, "analytics cleanup: failed to decode payload",
				slog.String("task_type", t.Type()),
				slog.Any("error", err))
		}
		return err
	}

	removed, err := h.cleaner.CleanupOlderThan(ctx, payload.RetentionDays)
	if err != nil {
		if h.log != nil {
			h.log.ErrorContext(ctx, "analytics cleanup failed",
				slog.String("task_type", t.Type()),
				slog.Any("error", err))
		}
		return err
	}

	if h.log != nil {
		h.log.InfoContext(ctx, "analytics cleanup done",
			slog.String("task_type", t.Type()),
			slog.Int("retention_days", payload.RetentionDays),
			slog.Int64("removed", removed))
	}
	return nil
}
