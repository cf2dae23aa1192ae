package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	apperrors "github.com/nimbus-labs/nimbus-bot/internal/errors"
)

// Manager describes the minimal queue operations needed by the application.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	// EnqueueNotificationSweep queues an immediate sweep, deduplicated so a
	// burst of broadcasts produces one run.
	EnqueueNotificationSweep(ctx context.Context) error
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	client := asynq.NewClient(redisOpt)

	return &manager{
		client: client,
		log:    log,
	}
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return m.client.EnqueueContext(ctx, task, opts...)
}

func (m *manager) EnqueueNotificationSweep(ctx context.Context) error {
	_, err := m.Enqueue(ctx, NewNotificationSweepTask(), asynq.TaskID("notification:sweep:now"))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// A sweep is already queued; that run will pick the broadcast up.
		return nil
	}
	if err != nil {
		if m.log != nil {
			m.log.ErrorContext(ctx, "manager: sweep enqueue failed", slog.Any("error", err))
		}
		return apperrors.NewInfrastructureError("job queue", err)
	}
	return nil
}

func (m *manager) Close() error {
	return m.client.Close()
}
