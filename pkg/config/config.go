package config

import (
	"fmt"
	"time"

	redisx "github.com/nimbus-labs/nimbus-bot/pkg/redis"
)

// Config holds runtime configuration for the Nimbus bot backend.
type Config struct {
	AppEnv string `mapstructure:"-"`

	Bot       BotConfig       `mapstructure:"bot" validate:"required"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Redis     redisx.Config   `mapstructure:"redis" validate:"required"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
}

// BotConfig configures the Telegram transport adapter.
type BotConfig struct {
	Token    string        `mapstructure:"token" validate:"required"`
	Mode     string        `mapstructure:"mode" validate:"oneof=polling webhook"`
	Timeout  time.Duration `mapstructure:"timeout"`
	AdminIDs []int64       `mapstructure:"admin_ids"`

	// Webhook settings apply only when Mode is "webhook". WebhookAddr must
	// not collide with Server.Port, which the ops server binds.
	WebhookURL  string `mapstructure:"webhook_url"`
	WebhookAddr string `mapstructure:"webhook_addr"`
}

// ServerConfig configures the ops HTTP server (metrics, health).
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     string `mapstructure:"port" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
	Name     string `mapstructure:"name" validate:"required"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns a PostgreSQL connection string based on config values.
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslMode,
	)
}

// CacheConfig configures the cache store defaults.
type CacheConfig struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// RateLimitConfig configures the fixed-window per-user limiter. These fields
// are dynamic: they may be changed at runtime through config hot reload.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests" validate:"min=1"`
	Window   time.Duration `mapstructure:"window" validate:"min=1s"`
}

// AnalyticsConfig configures analytics retention.
type AnalyticsConfig struct {
	RetentionDays int `mapstructure:"retention_days" validate:"min=1"`
}

// JobsConfig configures background job scheduling (cron expressions).
type JobsConfig struct {
	NotificationSweep string         `mapstructure:"notification_sweep"`
	AnalyticsCleanup  string         `mapstructure:"analytics_cleanup"`
	Queues            map[string]int `mapstructure:"queues"`
}

// LoggerConfig configures the root slog logger.
type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`

	// File enables rotated file output when set; empty means stdout only.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = "polling"
	}
	if cfg.Bot.Timeout == 0 {
		cfg.Bot.Timeout = 10 * time.Second
	}
	if cfg.Bot.WebhookAddr == "" {
		cfg.Bot.WebhookAddr = ":8443"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = time.Hour
	}
	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 20
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.Analytics.RetentionDays == 0 {
		cfg.Analytics.RetentionDays = 90
	}
	if cfg.Jobs.NotificationSweep == "" {
		cfg.Jobs.NotificationSweep = "* * * * *"
	}
	if cfg.Jobs.AnalyticsCleanup == "" {
		cfg.Jobs.AnalyticsCleanup = "0 3 * * *"
	}
	if len(cfg.Jobs.Queues) == 0 {
		cfg.Jobs.Queues = map[string]int{"critical": 6, "default": 3, "low": 1}
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "text"
	}
}
