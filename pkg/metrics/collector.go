package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_events_total",
			Help: "Total number of processed inbound events labeled by action and status",
		},
		[]string{"action", "status"},
	)
	eventDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_event_duration_seconds",
			Help:    "Duration of inbound event processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
	rateLimitRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Total number of events rejected by the per-user rate limiter",
		},
	)
	cacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total number of cache operations labeled by operation and result",
		},
		[]string{"operation", "result"},
	)
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notification delivery attempts labeled by outcome",
		},
		[]string{"outcome"},
	)
	activeUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_users",
			Help: "Current number of active users",
		},
	)
)

// RecordEvent increments event counters and records processing duration.
func RecordEvent(action, status string, duration time.Duration) {
	if action == "" {
		action = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	eventsTotal.WithLabelValues(action, status).Inc()
	eventDurationSeconds.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordRateLimitRejection counts a rejected event.
func RecordRateLimitRejection() {
	rateLimitRejectionsTotal.Inc()
}

// RecordCacheOperation counts a cache operation with its result
// (hit, miss, ok, error).
func RecordCacheOperation(operation, result string) {
	if operation == "" {
		operation = "unknown"
	}
	if result == "" {
		result = "unknown"
	}

	cacheOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordNotification counts a notification delivery attempt by outcome.
func RecordNotification(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}

	notificationsTotal.WithLabelValues(outcome).Inc()
}

// SetActiveUsers updates the gauge for current active users.
func SetActiveUsers(count int) {
	activeUsers.Set(float64(count))
}

// ActiveUserCounter supplies the number of currently active users.
type ActiveUserCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// UserCollector periodically gathers the active-user count and emits it as a gauge.
type UserCollector struct {
	counter  ActiveUserCounter
	interval time.Duration
}

// NewUserCollector builds a collector bound to the provided counter.
func NewUserCollector(counter ActiveUserCounter) *UserCollector {
	return &UserCollector{counter: counter, interval: time.Minute}
}

// Run polls the counter until ctx is cancelled.
func (c *UserCollector) Run(ctx context.Context) {
	if c == nil || c.counter == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if count, err := c.counter.CountActive(ctx); err == nil {
			SetActiveUsers(count)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}
