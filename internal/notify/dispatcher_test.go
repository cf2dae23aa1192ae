package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-labs/nimbus-bot/internal/domain"
	"github.com/nimbus-labs/nimbus-bot/internal/repository"
)

type memNotificationRepo struct {
	byID   map[int64]*domain.Notification
	nextID int64
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{byID: map[int64]*domain.Notification{}, nextID: 1}
}

func (m *memNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	n.ID = m.nextID
	m.nextID++
	clone := *n
	m.byID[n.ID] = &clone
	return nil
}

func (m *memNotificationRepo) FindByID(_ context.Context, id int64) (*domain.Notification, error) {
	n, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("notification %d not found", id)
	}
	clone := *n
	return &clone, nil
}

func (m *memNotificationRepo) MarkSent(_ context.Context, id int64, sentAt time.Time) (bool, error) {
	n, ok := m.byID[id]
	if !ok || n.Status != domain.NotificationPending {
		return false, nil
	}
	n.Status = domain.NotificationSent
	n.SentAt = &sentAt
	return true, nil
}

func (m *memNotificationRepo) MarkFailed(_ context.Context, id int64, errorMessage string) (bool, error) {
	n, ok := m.byID[id]
	if !ok || n.Status != domain.NotificationPending {
		return false, nil
	}
	n.Status = domain.NotificationFailed
	n.ErrorMessage = errorMessage
	return true, nil
}

func (m *memNotificationRepo) MarkCancelled(_ context.Context, id int64) (bool, error) {
	n, ok := m.byID[id]
	if !ok || n.Status != domain.NotificationPending {
		return false, nil
	}
	n.Status = domain.NotificationCancelled
	return true, nil
}

func (m *memNotificationRepo) UpdateMessage(_ context.Context, id int64, message string) error {
	n, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("notification %d not found", id)
	}
	n.Message = message
	return nil
}

func (m *memNotificationRepo) ListDue(_ context.Context, now time.Time) ([]*domain.Notification, error) {
	var due []*domain.Notification
	for _, n := range m.byID {
		if n.Status == domain.NotificationPending && !n.ScheduledAt.After(now) {
			clone := *n
			due = append(due, &clone)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	return due, nil
}

func (m *memNotificationRepo) ListForUser(_ context.Context, userID int64, limit int) ([]*domain.Notification, error) {
	var list []*domain.Notification
	for _, n := range m.byID {
		if n.UserID != nil && *n.UserID == userID {
			clone := *n
			list = append(list, &clone)
		}
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *memNotificationRepo) Stats(context.Context, time.Time) (*repository.NotificationStats, error) {
	stats := &repository.NotificationStats{ByStatus: map[string]int64{}, ByType: map[string]int64{}}
	for _, n := range m.byID {
		stats.Total++
		stats.ByStatus[string(n.Status)]++
		stats.ByType[string(n.Type)]++
	}
	return stats, nil
}

type fakeSender struct {
	sent      []int64
	failWith  map[int64]Outcome
	failAll   Outcome
	failEvery bool
}

func (f *fakeSender) Send(_ context.Context, recipientID int64, _ string) (Outcome, error) {
	if f.failEvery {
		return f.failAll, errors.New("send failed")
	}
	if outcome, ok := f.failWith[recipientID]; ok {
		return outcome, errors.New("send failed")
	}
	f.sent = append(f.sent, recipientID)
	return OutcomeDelivered, nil
}

type staticRecipients struct{ ids []int64 }

func (s staticRecipients) ActiveIDs(context.Context) ([]int64, error) { return s.ids, nil }

func newTestDispatcher(t *testing.T, repo *memNotificationRepo, sender *fakeSender, recipients []int64) *Dispatcher {
	t.Helper()
	d := NewDispatcher(repo, staticRecipients{ids: recipients}, sender, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.now = func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) }
	return d
}

func TestDispatcher_SendSingleDelivered(t *testing.T) {
	repo := newMemNotificationRepo()
	sender := &fakeSender{}
	d := newTestDispatcher(t, repo, sender, nil)

	userID := int64(7)
	n, err := d.Create(context.Background(), CreateParams{UserID: &userID, Title: "Hi", Message: "there"})
	require.NoError(t, err)
	require.Equal(t, domain.NotificationPending, n.Status)

	delivered, err := d.Send(context.Background(), n.ID)
	require.NoError(t, err)
	assert.True(t, delivered)

	stored := repo.byID[n.ID]
	assert.Equal(t, domain.NotificationSent, stored.Status)
	require.NotNil(t, stored.SentAt)
	assert.Equal(t, []int64{7}, sender.sent)
}

func TestDispatcher_CreateStampsCreationTime(t *testing.T) {
	repo := newMemNotificationRepo()
	d := newTestDispatcher(t, repo, &fakeSender{}, nil)

	userID := int64(7)
	n, err := d.Create(context.Background(), CreateParams{UserID: &userID, Message: "hello"})
	require.NoError(t, err)

	want := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, want, n.CreatedAt)
	assert.Equal(t, want, n.UpdatedAt)
	assert.Equal(t, want, repo.byID[n.ID].CreatedAt)
}

func TestDispatcher_SendSingleUnreachableMarksFailed(t *testing.T) {
	repo := newMemNotificationRepo()
	sender := &fakeSender{failWith: map[int64]Outcome{7: OutcomeRecipientUnreachable}}
	d := newTestDispatcher(t, repo, sender, nil)

	userID := int64(7)
	n, err := d.Create(context.Background(), CreateParams{UserID: &userID, Message: "hello"})
	require.NoError(t, err)

	delivered, err := d.Send(context.Background(), n.ID)
	require.NoError(t, err)
	assert.False(t, delivered)

	stored := repo.byID[n.ID]
	assert.Equal(t, domain.NotificationFailed, stored.Status)
	assert.Equal(t, "send failed", stored.ErrorMessage)
}

func TestDispatcher_SendTerminalIsNoOp(t *testing.T) {
	repo := newMemNotificationRepo()
	sender := &fakeSender{}
	d := newTestDispatcher(t, repo, sender, nil)

	userID := int64(7)
	n, err := d.Create(context.Background(), CreateParams{UserID: &userID, Message: "hello"})
	require.NoError(t, err)

	cancelled, err := d.Cancel(context.Background(), n.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	delivered, err := d.Send(context.Background(), n.ID)
	require.NoError(t, err)
	assert.False(t, delivered)
	assert.Empty(t, sender.sent)
	assert.Equal(t, domain.NotificationCancelled, repo.byID[n.ID].Status)
}

func TestDispatcher_CancelTwice(t *testing.T) {
	repo := newMemNotificationRepo()
	d := newTestDispatcher(t, repo, &fakeSender{}, nil)

	userID := int64(7)
	n, err := d.Create(context.Background(), CreateParams{UserID: &userID, Message: "hello"})
	require.NoError(t, err)

	first, err := d.Cancel(context.Background(), n.ID)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := d.Cancel(context.Background(), n.ID)
	require.NoError(t, err)
	assert.False(t, second)
	assert.Equal(t, domain.NotificationCancelled, repo.byID[n.ID].Status)
}

func TestDispatcher_BroadcastOneRecipientFails(t *testing.T) {
	repo := newMemNotificationRepo()
	sender := &fakeSender{failWith: map[int64]Outcome{2: OutcomeRecipientUnreachable}}
	d := newTestDispatcher(t, repo, sender, []int64{1, 2, 3})

	n, err := d.BroadcastAnnouncement(context.Background(), "News", "big update")
	require.NoError(t, err)

	delivered, err := d.Send(context.Background(), n.ID)
	require.NoError(t, err)
	assert.True(t, delivered)

	stored := repo.byID[n.ID]
	assert.Equal(t, domain.NotificationSent, stored.Status)
	assert.Equal(t, []int64{1, 3}, sender.sent)
	assert.Contains(t, stored.Message, "[Sent to 2 users, 1 failed]")
}

func TestDispatcher_BroadcastAllRecipientsFail(t *testing.T) {
	repo := newMemNotificationRepo()
	sender := &fakeSender{failEvery: true, failAll: OutcomeTransient}
	d := newTestDispatcher(t, repo, sender, []int64{1, 2, 3})

	n, err := d.BroadcastAnnouncement(context.Background(), "News", "big update")
	require.NoError(t, err)

	delivered, err := d.Send(context.Background(), n.ID)
	require.NoError(t, err)
	assert.False(t, delivered)

	stored := repo.byID[n.ID]
	assert.Equal(t, domain.NotificationFailed, stored.Status)
	assert.Equal(t, "all 3 recipients failed", stored.ErrorMessage)
}

func TestDispatcher_SendPendingDueOrdering(t *testing.T) {
	repo := newMemNotificationRepo()
	sender := &fakeSender{}
	d := newTestDispatcher(t, repo, sender, nil)

	base := time.Date(2025, 6, 10, 11, 0, 0, 0, time.UTC)
	for i, p := range []int{1, 5, 3} {
		userID := int64(i + 1)
		n, err := d.Create(context.Background(), CreateParams{
			UserID:      &userID,
			Message:     "due",
			ScheduledAt: base,
			Priority:    p,
		})
		require.NoError(t, err)
		repo.byID[n.ID].CreatedAt = base.Add(time.Duration(i) * time.Second)
	}

	// Scheduled in the future, must not be swept.
	futureID := int64(9)
	_, err := d.Create(context.Background(), CreateParams{
		UserID:      &futureID,
		Message:     "later",
		ScheduledAt: time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	sent, err := d.SendPendingDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sent)

	// Priority 5 first, then 3, then 1.
	assert.Equal(t, []int64{2, 3, 1}, sender.sent)
}

func TestDispatcher_SendPendingDueCountsOnlyDelivered(t *testing.T) {
	repo := newMemNotificationRepo()
	sender := &fakeSender{failWith: map[int64]Outcome{2: OutcomeRecipientUnreachable}}
	d := newTestDispatcher(t, repo, sender, nil)

	var ids []int64
	for _, userID := range []int64{1, 2} {
		uid := userID
		n, err := d.Create(context.Background(), CreateParams{UserID: &uid, Message: "due"})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	sent, err := d.SendPendingDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	assert.Equal(t, domain.NotificationSent, repo.byID[ids[0]].Status)
	assert.Equal(t, domain.NotificationFailed, repo.byID[ids[1]].Status)
}

func TestDispatcher_SendPendingDueAllFailedReportsZero(t *testing.T) {
	repo := newMemNotificationRepo()
	sender := &fakeSender{failEvery: true, failAll: OutcomeRecipientUnreachable}
	d := newTestDispatcher(t, repo, sender, nil)

	userID := int64(7)
	n, err := d.Create(context.Background(), CreateParams{UserID: &userID, Message: "due"})
	require.NoError(t, err)

	sent, err := d.SendPendingDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Equal(t, domain.NotificationFailed, repo.byID[n.ID].Status)
}

func TestDispatcher_StatsAndListForUser(t *testing.T) {
	repo := newMemNotificationRepo()
	d := newTestDispatcher(t, repo, &fakeSender{}, nil)

	userID := int64(7)
	_, err := d.Create(context.Background(), CreateParams{UserID: &userID, Message: "a"})
	require.NoError(t, err)
	_, err = d.Create(context.Background(), CreateParams{UserID: &userID, Message: "b", Type: domain.NotificationAdmin})
	require.NoError(t, err)

	list, err := d.ListForUser(context.Background(), userID, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	stats, err := d.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 2, stats.ByStatus["pending"])
}
