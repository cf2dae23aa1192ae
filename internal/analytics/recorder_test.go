package analytics

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-labs/nimbus-bot/internal/domain"
	"github.com/nimbus-labs/nimbus-bot/internal/repository"
)

type fakeAnalyticsRepo struct {
	entries []domain.AnalyticsEntry
}

func (f *fakeAnalyticsRepo) Create(_ context.Context, entry *domain.AnalyticsEntry) error {
	entry.ID = int64(len(f.entries) + 1)
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAnalyticsRepo) Query(_ context.Context, filter repository.AnalyticsFilter) ([]domain.AnalyticsEntry, error) {
	var result []domain.AnalyticsEntry
	for _, entry := range f.entries {
		if filter.UserID != 0 && entry.UserID != filter.UserID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if !filter.Since.IsZero() && entry.CreatedAt.Before(filter.Since) {
			continue
		}
		if filter.OnlyTimed && entry.ResponseTimeMS == nil {
			continue
		}
		result = append(result, entry)
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (f *fakeAnalyticsRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []domain.AnalyticsEntry
	var removed int64
	for _, entry := range f.entries {
		if entry.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	f.entries = kept
	return removed, nil
}

type fakeUserRepo struct {
	users map[int64]*domain.User
}

func (f *fakeUserRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	if user, ok := f.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) Upsert(context.Context, domain.Profile, time.Time) (*domain.User, error) {
	return nil, nil
}
func (f *fakeUserRepo) IncrementMessageCount(context.Context, int64) error { return nil }

func (f *fakeUserRepo) SetAdmin(context.Context, int64, bool) error { return nil }

func (f *fakeUserRepo) SetStatus(context.Context, int64, domain.UserStatus) error { return nil }

func (f *fakeUserRepo) ListActiveIDs(context.Context) ([]int64, error) { return nil, nil }

func (f *fakeUserRepo) ListAdmins(context.Context) ([]*domain.User, error) { return nil, nil }
func (f *fakeUserRepo) Stats(context.Context, time.Time) (*repository.UserStats, error) {
	return &repository.UserStats{}, nil
}

func newTestRecorder(t *testing.T, at time.Time) (*Recorder, *fakeAnalyticsRepo) {
	t.Helper()

	entries := &fakeAnalyticsRepo{}
	users := &fakeUserRepo{users: map[int64]*domain.User{
		1: {ID: 1, FirstName: "Alice"},
		2: {ID: 2, FirstName: "Bob"},
	}}

	recorder := NewRecorder(entries, users, slog.New(slog.NewTextHandler(io.Discard, nil)))
	recorder.now = func() time.Time { return at }
	return recorder, entries
}

func msPtr(v int64) *int64 { return &v }

func TestRecorder_Track(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	recorder, entries := newTestRecorder(t, now)

	err := recorder.Track(context.Background(), 1, domain.ActionStart, "/start", "private", "text", msPtr(12))
	require.NoError(t, err)

	require.Len(t, entries.entries, 1)
	assert.Equal(t, domain.ActionStart, entries.entries[0].Action)
	assert.Equal(t, now, entries.entries[0].CreatedAt)
}

func TestRecorder_DailyRollup(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	recorder, entries := newTestRecorder(t, now)

	day1 := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	entries.entries = []domain.AnalyticsEntry{
		{UserID: 1, Action: domain.ActionStart, CreatedAt: day1},
		{UserID: 2, Action: domain.ActionHelp, CreatedAt: day1},
		{UserID: 1, Action: domain.ActionQuotes, CreatedAt: day1.Add(time.Hour)},
		{UserID: 1, Action: domain.ActionWeather, CreatedAt: day2},
	}

	stats, err := recorder.DailyRollup(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, DailyStat{Date: "2025-06-09", TotalActions: 3, UniqueUsers: 2}, stats[0])
	assert.Equal(t, DailyStat{Date: "2025-06-10", TotalActions: 1, UniqueUsers: 1}, stats[1])
}

func TestRecorder_EngagementStats(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	recorder, entries := newTestRecorder(t, now)

	entries.entries = []domain.AnalyticsEntry{
		{UserID: 1, Action: domain.ActionStart, CreatedAt: now.Add(-time.Hour)},
		{UserID: 1, Action: domain.ActionQuotes, CreatedAt: now.Add(-2 * time.Hour)},
		{UserID: 1, Action: domain.ActionNews, CreatedAt: now.Add(-48 * time.Hour)},
		{UserID: 2, Action: domain.ActionStart, CreatedAt: now.Add(-time.Hour)},
	}

	stats, err := recorder.EngagementStats(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 4, stats.TotalActions)
	assert.EqualValues(t, 2, stats.UniqueUsers)
	assert.InDelta(t, 2.0, stats.AverageActionsPerUser, 0.001)
	assert.EqualValues(t, 3, stats.Last24h)

	require.Len(t, stats.MostActive, 2)
	assert.Equal(t, "Alice", stats.MostActive[0].Name)
	assert.EqualValues(t, 3, stats.MostActive[0].ActionCount)
}

func TestRecorder_EngagementStatsEmpty(t *testing.T) {
	recorder, _ := newTestRecorder(t, time.Now().UTC())

	stats, err := recorder.EngagementStats(context.Background())
	require.NoError(t, err)

	assert.Zero(t, stats.TotalActions)
	assert.Zero(t, stats.AverageActionsPerUser)
	assert.Empty(t, stats.MostActive)
}

func TestRecorder_PopularFeatures(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	recorder, entries := newTestRecorder(t, now)

	entries.entries = []domain.AnalyticsEntry{
		{UserID: 1, Action: domain.ActionQuotes, CreatedAt: now.Add(-time.Hour), ResponseTimeMS: msPtr(100)},
		{UserID: 2, Action: domain.ActionQuotes, CreatedAt: now.Add(-time.Hour), ResponseTimeMS: msPtr(200)},
		{UserID: 1, Action: domain.ActionWeather, CreatedAt: now.Add(-time.Hour)},
	}

	features, err := recorder.PopularFeatures(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, features, 2)

	assert.Equal(t, domain.ActionQuotes, features[0].Action)
	assert.EqualValues(t, 2, features[0].UsageCount)
	assert.EqualValues(t, 2, features[0].UniqueUsers)
	require.NotNil(t, features[0].AvgResponseTimeMS)
	assert.InDelta(t, 150.0, *features[0].AvgResponseTimeMS, 0.001)

	assert.Equal(t, domain.ActionWeather, features[1].Action)
	assert.Nil(t, features[1].AvgResponseTimeMS)
}

func TestRecorder_PerformanceMetrics(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	recorder, entries := newTestRecorder(t, now)

	for i, ms := range []int64{10, 20, 30, 40, 50} {
		entries.entries = append(entries.entries, domain.AnalyticsEntry{
			UserID:         int64(i + 1),
			Action:         domain.ActionQuotes,
			CreatedAt:      now.Add(-time.Hour),
			ResponseTimeMS: msPtr(ms),
		})
	}

	perf, err := recorder.PerformanceMetrics(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 5, perf.TotalRequests)
	require.NotNil(t, perf.AvgResponseTimeMS)
	assert.InDelta(t, 30.0, *perf.AvgResponseTimeMS, 0.001)
	assert.InDelta(t, 30.0, *perf.P50ResponseTimeMS, 0.001)
	assert.InDelta(t, 48.0, *perf.P95ResponseTimeMS, 0.001)
	assert.InDelta(t, 49.6, *perf.P99ResponseTimeMS, 0.001)
}

func TestRecorder_PerformanceMetricsEmpty(t *testing.T) {
	recorder, _ := newTestRecorder(t, time.Now().UTC())

	perf, err := recorder.PerformanceMetrics(context.Background(), 7)
	require.NoError(t, err)

	assert.Zero(t, perf.TotalRequests)
	assert.Nil(t, perf.AvgResponseTimeMS)
	assert.Nil(t, perf.P50ResponseTimeMS)
	assert.Nil(t, perf.P95ResponseTimeMS)
	assert.Nil(t, perf.P99ResponseTimeMS)
}

func TestRecorder_CleanupOlderThan(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	recorder, entries := newTestRecorder(t, now)

	entries.entries = []domain.AnalyticsEntry{
		{UserID: 1, Action: domain.ActionStart, CreatedAt: now.AddDate(0, 0, -100)},
		{UserID: 1, Action: domain.ActionStart, CreatedAt: now.AddDate(0, 0, -1)},
	}

	removed, err := recorder.CleanupOlderThan(context.Background(), 90)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
	assert.Len(t, entries.entries, 1)
}
