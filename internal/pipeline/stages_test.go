package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-labs/nimbus-bot/internal/auth"
	"github.com/nimbus-labs/nimbus-bot/internal/domain"
	apperrors "github.com/nimbus-labs/nimbus-bot/internal/errors"
	"github.com/nimbus-labs/nimbus-bot/internal/ratelimit"
)

type fakeResolver struct {
	user     *domain.User
	err      error
	messages int
	resolved int
}

func (f *fakeResolver) Resolve(context.Context, domain.Profile) (*domain.User, error) {
	f.resolved++
	return f.user, f.err
}

func (f *fakeResolver) RecordMessage(context.Context, int64) error {
	f.messages++
	return nil
}

type fakeLimiter struct {
	allowed bool
	calls   int
}

func (f *fakeLimiter) Allow(context.Context, int64, int, time.Duration) ratelimit.Result {
	f.calls++
	return ratelimit.Result{Allowed: f.allowed}
}

type fakeTracker struct {
	entries []domain.AnalyticsEntry
}

func (f *fakeTracker) Track(_ context.Context, userID int64, action domain.Action, details, chatType, messageType string, responseTimeMS *int64) error {
	f.entries = append(f.entries, domain.AnalyticsEntry{
		UserID:         userID,
		Action:         action,
		Details:        details,
		ChatType:       chatType,
		MessageType:    messageType,
		ResponseTimeMS: responseTimeMS,
	})
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func contentEvent(selector string) domain.Event {
	return domain.Event{
		Kind:     domain.EventContent,
		Sender:   domain.Profile{ID: 1, FirstName: "Alice"},
		Selector: selector,
		ChatType: "private",
	}
}

func staticLimits(limit int, window time.Duration) LimitProvider {
	return func() (int, time.Duration) { return limit, window }
}

func TestChain_OrderAndShortCircuit(t *testing.T) {
	var order []string
	stage := func(name string, fail bool) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, pc *Context) error {
				order = append(order, name)
				if fail {
					return errors.New(name + " failed")
				}
				return next(ctx, pc)
			}
		}
	}
	handler := func(context.Context, *Context) error {
		order = append(order, "handler")
		return nil
	}

	chained := Chain(handler, stage("first", false), stage("second", true), stage("third", false))
	err := chained(context.Background(), NewContext(contentEvent("/start")))

	require.Error(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestResolveUser_AttachesUserAndCorrelationID(t *testing.T) {
	resolver := &fakeResolver{user: &domain.User{ID: 1}}
	handler := Chain(func(_ context.Context, pc *Context) error {
		assert.NotNil(t, pc.User)
		assert.NotEmpty(t, pc.CorrelationID)
		return nil
	}, ResolveUser(resolver, discardLogger()))

	err := handler(context.Background(), NewContext(contentEvent("/start")))
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.messages)
}

func TestResolveUser_FailureStopsChain(t *testing.T) {
	resolver := &fakeResolver{err: apperrors.NewPersistenceError(errors.New("db down"))}
	reached := false
	handler := Chain(func(context.Context, *Context) error {
		reached = true
		return nil
	}, ResolveUser(resolver, discardLogger()))

	err := handler(context.Background(), NewContext(contentEvent("/start")))
	require.Error(t, err)
	assert.False(t, reached)
}

func TestResolveUser_ActionEventSkipsMessageCounter(t *testing.T) {
	resolver := &fakeResolver{user: &domain.User{ID: 1}}
	handler := Chain(func(context.Context, *Context) error { return nil },
		ResolveUser(resolver, discardLogger()))

	event := domain.Event{Kind: domain.EventAction, Sender: domain.Profile{ID: 1}, Selector: "quotes"}
	require.NoError(t, handler(context.Background(), NewContext(event)))
	assert.Zero(t, resolver.messages)
}

func TestRateLimit_RejectsWithRateLimitError(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}
	gate := auth.NewGate(nil)
	reached := false
	handler := Chain(func(context.Context, *Context) error {
		reached = true
		return nil
	}, RateLimit(limiter, gate, staticLimits(10, time.Minute), discardLogger()))

	pc := NewContext(contentEvent("/start"))
	pc.User = &domain.User{ID: 1}

	err := handler(context.Background(), pc)
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimited(err))
	assert.False(t, reached)
}

func TestRateLimit_AdminBypassesLimiter(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}
	gate := auth.NewGate([]int64{42})
	handler := Chain(func(context.Context, *Context) error { return nil },
		RateLimit(limiter, gate, staticLimits(10, time.Minute), discardLogger()))

	pc := NewContext(contentEvent("/start"))
	pc.User = &domain.User{ID: 42}

	require.NoError(t, handler(context.Background(), pc))
	assert.Zero(t, limiter.calls)
}

func TestAuthorize_DeniesPrivilegedSelector(t *testing.T) {
	gate := auth.NewGate(nil)
	reached := false
	handler := Chain(func(context.Context, *Context) error {
		reached = true
		return nil
	}, Authorize(gate))

	pc := NewContext(contentEvent("/admin"))
	pc.User = &domain.User{ID: 1}

	err := handler(context.Background(), pc)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthorizationDenied(err))
	assert.False(t, reached)
}

func TestAnalytics_RecordsTimedEntry(t *testing.T) {
	tracker := &fakeTracker{}
	handler := Chain(func(context.Context, *Context) error { return nil },
		Analytics(tracker, discardLogger()))

	pc := NewContext(contentEvent("/start"))
	pc.User = &domain.User{ID: 1}

	require.NoError(t, handler(context.Background(), pc))
	require.Len(t, tracker.entries, 1)
	assert.Equal(t, domain.ActionStart, tracker.entries[0].Action)
	assert.NotNil(t, tracker.entries[0].ResponseTimeMS)
	assert.Equal(t, "private", tracker.entries[0].ChatType)
}

func TestAnalytics_HandlerFailureRecordsErrorAction(t *testing.T) {
	tracker := &fakeTracker{}
	handlerErr := errors.New("boom")
	handler := Chain(func(context.Context, *Context) error { return handlerErr },
		Analytics(tracker, discardLogger()))

	pc := NewContext(contentEvent("quotes"))
	pc.User = &domain.User{ID: 1}

	err := handler(context.Background(), pc)
	assert.ErrorIs(t, err, handlerErr)
	require.Len(t, tracker.entries, 1)
	assert.Equal(t, domain.ActionError, tracker.entries[0].Action)
}

func TestAnalytics_UnknownSelectorSkipsTracking(t *testing.T) {
	tracker := &fakeTracker{}
	handler := Chain(func(context.Context, *Context) error { return nil },
		Analytics(tracker, discardLogger()))

	pc := NewContext(contentEvent("/frobnicate"))
	pc.User = &domain.User{ID: 1}

	require.NoError(t, handler(context.Background(), pc))
	assert.Empty(t, tracker.entries)
}

func TestAnalytics_UnknownSelectorFailureStillRecordsError(t *testing.T) {
	tracker := &fakeTracker{}
	handler := Chain(func(context.Context, *Context) error { return errors.New("boom") },
		Analytics(tracker, discardLogger()))

	pc := NewContext(contentEvent("/frobnicate"))
	pc.User = &domain.User{ID: 1}

	require.Error(t, handler(context.Background(), pc))
	require.Len(t, tracker.entries, 1)
	assert.Equal(t, domain.ActionError, tracker.entries[0].Action)
}

func TestActionFor(t *testing.T) {
	tests := []struct {
		selector string
		want     domain.Action
		known    bool
	}{
		{"/start", domain.ActionStart, true},
		{"/help", domain.ActionHelp, true},
		{"about_me", domain.ActionAbout, true},
		{"admin_panel", domain.ActionAdminPanel, true},
		{"", domain.ActionMessage, true},
		{"/stats", "", false},
		{"/frobnicate", "", false},
	}
	for _, tt := range tests {
		action, known := actionFor(domain.Event{Selector: tt.selector})
		assert.Equal(t, tt.want, action, tt.selector)
		assert.Equal(t, tt.known, known, tt.selector)
	}
}
