package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nimbus-labs/nimbus-bot/pkg/config"
)

type Scheduler interface {
	RegisterTasks() error
	Run()
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	cfg            config.JobsConfig
	retentionDays  int
	log            *slog.Logger
}

// NewScheduler builds a Scheduler that registers the recurring jobs from
// configuration: the notification sweep and the analytics cleanup.
func NewScheduler(redisOpt asynq.RedisConnOpt, cfg config.JobsConfig, retentionDays int, log *slog.Logger) Scheduler {
	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, nil),
		cfg:            cfg,
		retentionDays:  retentionDays,
		log:            log,
	}
}

func (s *scheduler) RegisterTasks() error {
	if _, err := s.asynqScheduler.Register(s.cfg.NotificationSweep, NewNotificationSweepTask()); err != nil {
		return err
	}

	cleanup, err := NewAnalyticsCleanupTask(s.retentionDays)
	if err != nil {
		return err
	}
	if _, err := s.asynqScheduler.Register(s.cfg.AnalyticsCleanup, cleanup); err != nil {
		return err
	}

	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: registered recurring tasks",
			slog.String("sweep", s.cfg.NotificationSweep),
			slog.String("cleanup", s.cfg.AnalyticsCleanup))
	}

	return nil
}

func (s *scheduler) Run() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: starting")
	}

	go func() {
		if err := s.asynqScheduler.Run(); err != nil && s.log != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", "error", err)
		}
	}()
}

func (s *scheduler) Shutdown() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: shutting down")
	}

	s.asynqScheduler.Shutdown()
}
