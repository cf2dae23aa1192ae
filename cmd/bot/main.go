package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nimbus-labs/nimbus-bot/internal/analytics"
	"github.com/nimbus-labs/nimbus-bot/internal/auth"
	"github.com/nimbus-labs/nimbus-bot/internal/bot"
	"github.com/nimbus-labs/nimbus-bot/internal/cache"
	"github.com/nimbus-labs/nimbus-bot/internal/database"
	apperrors "github.com/nimbus-labs/nimbus-bot/internal/errors"
	"github.com/nimbus-labs/nimbus-bot/internal/health"
	"github.com/nimbus-labs/nimbus-bot/internal/jobs"
	jobhandlers "github.com/nimbus-labs/nimbus-bot/internal/jobs/handlers"
	"github.com/nimbus-labs/nimbus-bot/internal/notify"
	"github.com/nimbus-labs/nimbus-bot/internal/pipeline"
	"github.com/nimbus-labs/nimbus-bot/internal/ratelimit"
	"github.com/nimbus-labs/nimbus-bot/internal/repository"
	"github.com/nimbus-labs/nimbus-bot/internal/user"
	"github.com/nimbus-labs/nimbus-bot/pkg/config"
	"github.com/nimbus-labs/nimbus-bot/pkg/graceful"
	"github.com/nimbus-labs/nimbus-bot/pkg/logger"
	"github.com/nimbus-labs/nimbus-bot/pkg/metrics"
	redisx "github.com/nimbus-labs/nimbus-bot/pkg/redis"

	_ "github.com/lib/pq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			log.Error("sentry init failed", slog.Any("error", err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	log.Info("starting nimbus bot",
		slog.String("env", cfg.AppEnv),
		slog.String("mode", cfg.Bot.Mode),
		slog.String("ops_port", cfg.Server.Port))

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("close database", slog.Any("error", cerr))
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		log.Error("ping database", slog.Any("error", err))
		os.Exit(1)
	}

	if err := database.NewMigrator(db, log).ApplyDir(ctx, "migrations"); err != nil {
		log.Error("apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := redisx.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			log.Error("close redis", slog.Any("error", cerr))
		}
	}()

	store := cache.NewStore(redisClient, cfg.Cache.DefaultTTL, log)

	userRepo := repository.NewUserRepository(db, log)
	analyticsRepo := repository.NewAnalyticsRepository(db, log)
	notificationRepo := repository.NewNotificationRepository(db, log)

	users := user.NewService(userRepo, store, log)
	recorder := analytics.NewRecorder(analyticsRepo, userRepo, log)
	limiter := ratelimit.NewLimiter(store, log)
	gate := auth.NewGate(cfg.Bot.AdminIDs)
	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)

	tb, err := bot.NewTelebot(*cfg)
	if err != nil {
		log.Error("initialize telegram bot", slog.Any("error", err))
		os.Exit(1)
	}

	notifier := notify.NewDispatcher(notificationRepo, users, bot.NewSender(tb), log)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	manager := jobs.NewManager(redisOpt, log)
	defer func() {
		if cerr := manager.Close(); cerr != nil {
			log.Error("close jobs manager", slog.Any("error", cerr))
		}
	}()

	worker := jobs.NewWorker(redisOpt, cfg.Jobs.Queues, 0, log)
	worker.RegisterHandler(jobs.TaskTypeNotificationSweep, jobhandlers.NewNotificationSweepHandler(notifier, log))
	worker.RegisterHandler(jobs.TaskTypeAnalyticsCleanup, jobhandlers.NewAnalyticsCleanupHandler(recorder, log))
	go func() {
		if err := worker.Run(); err != nil {
			log.Error("jobs worker stopped", slog.Any("error", err))
		}
	}()

	scheduler := jobs.NewScheduler(redisOpt, cfg.Jobs, cfg.Analytics.RetentionDays, log)
	if err := scheduler.RegisterTasks(); err != nil {
		log.Error("register scheduled tasks", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Run()

	// Rate limit settings are hot-reloadable; the pipeline reads them through
	// this pointer on every event.
	var rateLimits atomic.Pointer[config.RateLimitConfig]
	rateLimits.Store(&cfg.RateLimit)
	config.Watch(v, cfg.AppEnv, log, func(updated *config.Config) {
		rateLimits.Store(&updated.RateLimit)
	})
	limits := pipeline.LimitProvider(func() (int, time.Duration) {
		rl := rateLimits.Load()
		return rl.Requests, rl.Window
	})

	handlers := bot.NewHandlers(users, recorder, notifier, store, manager, log)
	appBot := bot.New(tb, log, bot.Deps{
		Users:      users,
		Limiter:    limiter,
		Gate:       gate,
		Tracker:    recorder,
		Handlers:   handlers,
		ErrHandler: errHandler,
		Limits:     limits,
	})

	checker := health.NewChecker(log)
	checker.AddCheck("database", health.NewDBChecker(db))
	checker.AddCheck("redis", redisClient)
	checker.AddCheck("telegram", health.NewTelegramChecker(tb))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", checker.Handler())

	opsServer := graceful.NewServer(log, &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}, cfg.Server.ShutdownTimeout)
	go func() {
		if err := opsServer.ListenAndServe(ctx); err != nil {
			log.Error("ops server stopped", slog.Any("error", err))
		}
	}()

	go metrics.NewUserCollector(users).Run(ctx)

	go appBot.Start()

	<-ctx.Done()
	log.Info("shutting down")

	appBot.Stop()
	scheduler.Shutdown()
	worker.Shutdown()
}
