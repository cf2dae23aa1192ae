// Package analytics records behavioral facts and computes usage rollups.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/nimbus-labs/nimbus-bot/internal/domain"
	apperrors "github.com/nimbus-labs/nimbus-bot/internal/errors"
	"github.com/nimbus-labs/nimbus-bot/internal/repository"
)

// DailyStat is one day's aggregate in a rollup, keyed by calendar date (UTC).
type DailyStat struct {
	Date         string `json:"date"`
	TotalActions int64  `json:"total_actions"`
	UniqueUsers  int64  `json:"unique_users"`
}

// TopUser ranks a user by action count.
type TopUser struct {
	UserID      int64  `json:"user_id"`
	ActionCount int64  `json:"action_count"`
	Name        string `json:"name"`
}

// Engagement aggregates overall usage.
type Engagement struct {
	TotalActions          int64     `json:"total_actions"`
	UniqueUsers           int64     `json:"unique_users"`
	AverageActionsPerUser float64   `json:"average_actions_per_user"`
	MostActive            []TopUser `json:"most_active_users"`
	Last24h               int64     `json:"last_24h_activity"`
}

// FeatureUsage describes how one action tag was used within a window.
type FeatureUsage struct {
	Action            domain.Action `json:"feature"`
	UsageCount        int64         `json:"usage_count"`
	UniqueUsers       int64         `json:"unique_users"`
	AvgResponseTimeMS *float64      `json:"avg_response_time_ms"`
}

// Performance summarizes response times within a window. All metric fields
// are nil when no timed entries exist.
type Performance struct {
	AvgResponseTimeMS *float64 `json:"avg_response_time_ms"`
	P50ResponseTimeMS *float64 `json:"p50_response_time_ms"`
	P95ResponseTimeMS *float64 `json:"p95_response_time_ms"`
	P99ResponseTimeMS *float64 `json:"p99_response_time_ms"`
	TotalRequests     int      `json:"total_requests"`
}

const topUserLimit = 10

// Recorder persists analytics entries and computes rollups on demand.
type Recorder struct {
	entries repository.AnalyticsRepository
	users   repository.UserRepository
	log     *slog.Logger
	now     func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(entries repository.AnalyticsRepository, users repository.UserRepository, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}

	return &Recorder{
		entries: entries,
		users:   users,
		log:     log,
		now:     time.Now,
	}
}

// Track appends one analytics entry for a processed event.
func (r *Recorder) Track(ctx context.Context, userID int64, action domain.Action, details, chatType, messageType string, responseTimeMS *int64) error {
	entry := &domain.AnalyticsEntry{
		UserID:         userID,
		Action:         action,
		Details:        details,
		ChatType:       chatType,
		MessageType:    messageType,
		ResponseTimeMS: responseTimeMS,
		CreatedAt:      r.now().UTC(),
	}

	if err := r.entries.Create(ctx, entry); err != nil {
		return apperrors.NewPersistenceError(fmt.Errorf("track %s for user %d: %w", action, userID, err))
	}

	return nil
}

// DailyRollup groups entries from the trailing days by calendar date (UTC),
// returning per-day totals and distinct-user counts in chronological order.
func (r *Recorder) DailyRollup(ctx context.Context, days int) ([]DailyStat, error) {
	entries, err := r.entries.Query(ctx, repository.AnalyticsFilter{
		Since: r.now().UTC().AddDate(0, 0, -days),
	})
	if err != nil {
		return nil, err
	}

	type bucket struct {
		total int64
		users map[int64]struct{}
	}

	buckets := make(map[string]*bucket)
	for _, entry := range entries {
		date := entry.CreatedAt.UTC().Format("2006-01-02")
		b := buckets[date]
		if b == nil {
			b = &bucket{users: make(map[int64]struct{})}
			buckets[date] = b
		}
		b.total++
		b.users[entry.UserID] = struct{}{}
	}

	stats := make([]DailyStat, 0, len(buckets))
	for date, b := range buckets {
		stats = append(stats, DailyStat{
			Date:         date,
			TotalActions: b.total,
			UniqueUsers:  int64(len(b.users)),
		})
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Date < stats[j].Date })
	return stats, nil
}

// EngagementStats computes overall usage: totals, distinct users, average
// actions per user, the most active users, and activity within 24 hours.
func (r *Recorder) EngagementStats(ctx context.Context) (*Engagement, error) {
	entries, err := r.entries.Query(ctx, repository.AnalyticsFilter{})
	if err != nil {
		return nil, err
	}

	counts := make(map[int64]int64)
	cutoff24h := r.now().UTC().Add(-24 * time.Hour)

	stats := &Engagement{}
	for _, entry := range entries {
		stats.TotalActions++
		counts[entry.UserID]++
		if !entry.CreatedAt.Before(cutoff24h) {
			stats.Last24h++
		}
	}

	stats.UniqueUsers = int64(len(counts))
	if stats.UniqueUsers > 0 {
		stats.AverageActionsPerUser = float64(stats.TotalActions) / float64(stats.UniqueUsers)
	}

	stats.MostActive = r.topUsers(ctx, counts)
	return stats, nil
}

func (r *Recorder) topUsers(ctx context.Context, counts map[int64]int64) []TopUser {
	top := make([]TopUser, 0, len(counts))
	for userID, count := range counts {
		top = append(top, TopUser{UserID: userID, ActionCount: count})
	}

	sort.Slice(top, func(i, j int) bool {
		if top[i].ActionCount != top[j].ActionCount {
			return top[i].ActionCount > top[j].ActionCount
		}
		return top[i].UserID < top[j].UserID
	})

	if len(top) > topUserLimit {
		top = top[:topUserLimit]
	}

	for i := range top {
		top[i].Name = fmt.Sprintf("User_%d", top[i].UserID)
		if user, err := r.users.FindByID(ctx, top[i].UserID); err == nil {
			top[i].Name = user.FullName()
		}
	}

	return top
}

// PopularFeatures groups entries within the window by action tag, sorted by
// usage count descending.
func (r *Recorder) PopularFeatures(ctx context.Context, days int) ([]FeatureUsage, error) {
	entries, err := r.entries.Query(ctx, repository.AnalyticsFilter{
		Since: r.now().UTC().AddDate(0, 0, -days),
	})
	if err != nil {
		return nil, err
	}

	type bucket struct {
		usage      int64
		users      map[int64]struct{}
		timedSum   int64
		timedCount int64
	}

	buckets := make(map[domain.Action]*bucket)
	for _, entry := range entries {
		b := buckets[entry.Action]
		if b == nil {
			b = &bucket{users: make(map[int64]struct{})}
			buckets[entry.Action] = b
		}
		b.usage++
		b.users[entry.UserID] = struct{}{}
		if entry.ResponseTimeMS != nil {
			b.timedSum += *entry.ResponseTimeMS
			b.timedCount++
		}
	}

	features := make([]FeatureUsage, 0, len(buckets))
	for action, b := range buckets {
		usage := FeatureUsage{
			Action:      action,
			UsageCount:  b.usage,
			UniqueUsers: int64(len(b.users)),
		}
		if b.timedCount > 0 {
			avg := float64(b.timedSum) / float64(b.timedCount)
			usage.AvgResponseTimeMS = &avg
		}
		features = append(features, usage)
	}

	sort.Slice(features, func(i, j int) bool {
		if features[i].UsageCount != features[j].UsageCount {
			return features[i].UsageCount > features[j].UsageCount
		}
		return features[i].Action < features[j].Action
	})

	return features, nil
}

// PerformanceMetrics computes the mean response time and interpolated
// percentiles over all timed entries in the window.
func (r *Recorder) PerformanceMetrics(ctx context.Context, days int) (*Performance, error) {
	entries, err := r.entries.Query(ctx, repository.AnalyticsFilter{
		Since:     r.now().UTC().AddDate(0, 0, -days),
		OnlyTimed: true,
	})
	if err != nil {
		return nil, err
	}

	times := make([]float64, 0, len(entries))
	var sum float64
	for _, entry := range entries {
		if entry.ResponseTimeMS == nil {
			continue
		}
		value := float64(*entry.ResponseTimeMS)
		times = append(times, value)
		sum += value
	}

	perf := &Performance{TotalRequests: len(times)}
	if len(times) == 0 {
		return perf, nil
	}

	sort.Float64s(times)

	avg := sum / float64(len(times))
	perf.AvgResponseTimeMS = &avg
	perf.P50ResponseTimeMS = ptr(percentile(times, 50))
	perf.P95ResponseTimeMS = ptr(percentile(times, 95))
	perf.P99ResponseTimeMS = ptr(percentile(times, 99))

	return perf, nil
}

// UserJourney lists a user's most recent actions, newest first.
func (r *Recorder) UserJourney(ctx context.Context, userID int64, limit int) ([]domain.AnalyticsEntry, error) {
	return r.entries.Query(ctx, repository.AnalyticsFilter{UserID: userID, Limit: limit})
}

// ActionStats counts entries per action tag within the trailing days.
func (r *Recorder) ActionStats(ctx context.Context, days int) (map[domain.Action]int64, error) {
	entries, err := r.entries.Query(ctx, repository.AnalyticsFilter{
		Since: r.now().UTC().AddDate(0, 0, -days),
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.Action]int64)
	for _, entry := range entries {
		counts[entry.Action]++
	}

	return counts, nil
}

// CleanupOlderThan deletes entries older than the retention cutoff and
// returns the count removed.
func (r *Recorder) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := r.now().UTC().AddDate(0, 0, -days)

	removed, err := r.entries.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		r.log.Info("cleaned up old analytics entries", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	}

	return removed, nil
}

// percentile returns the p-th percentile of sorted using linear
// interpolation between closest ranks. sorted must be non-empty and ascending.
func percentile(sorted []float64, p float64) float64 {
	k := float64(len(sorted)-1) * p / 100
	f := int(math.Floor(k))
	if f >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}

	c := k - float64(f)
	return sorted[f] + c*(sorted[f+1]-sorted[f])
}

func ptr(v float64) *float64 {
	return &v
}
