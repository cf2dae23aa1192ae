package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeNotificationSweep = "notification:sweep"
	TaskTypeAnalyticsCleanup  = "analytics:cleanup"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// AnalyticsCleanupPayload carries the retention window for a cleanup run.
type AnalyticsCleanupPayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewNotificationSweepTask builds a task that delivers every due pending
// notification. Sweeps carry no payload; the worker reads the queue fresh.
func NewNotificationSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeNotificationSweep, nil, asynq.Queue(QueueCritical))
}

// NewAnalyticsCleanupTask builds a task that drops analytics entries older
// than the retention window.
func NewAnalyticsCleanupTask(retentionDays int) (*asynq.Task, error) {
	payload, err := json.Marshal(AnalyticsCleanupPayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeAnalyticsCleanup, payload, asynq.Queue(QueueLow)), nil
}
