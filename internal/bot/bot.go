// Package bot adapts Telegram updates to the event pipeline and back.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/nimbus-labs/nimbus-bot/internal/auth"
	apperrors "github.com/nimbus-labs/nimbus-bot/internal/errors"
	"github.com/nimbus-labs/nimbus-bot/internal/pipeline"
	"github.com/nimbus-labs/nimbus-bot/internal/ratelimit"
	"github.com/nimbus-labs/nimbus-bot/internal/user"
	"github.com/nimbus-labs/nimbus-bot/pkg/config"
)

// Bot wraps telebot.Bot with the event pipeline and terminal handlers.
type Bot struct {
	telebot    *telebot.Bot
	handlers   *Handlers
	chain      []pipeline.Middleware
	errHandler *apperrors.Handler
	log        *slog.Logger
}

// Deps collects everything the bot needs beyond configuration.
type Deps struct {
	Users      *user.Service
	Limiter    *ratelimit.Limiter
	Gate       *auth.Gate
	Tracker    pipeline.EventTracker
	Handlers   *Handlers
	ErrHandler *apperrors.Handler
	Limits     pipeline.LimitProvider
}

// NewTelebot builds the raw telebot instance configured according to the
// application settings. It is separate from New so the notification sender
// can be wired before the routes are registered.
func NewTelebot(cfg config.Config) (*telebot.Bot, error) {
	settings := telebot.Settings{
		Token: cfg.Bot.Token,
	}

	if cfg.Bot.Mode == "webhook" {
		// The webhook listens on its own address; Server.Port stays
		// reserved for metrics and health.
		settings.Poller = &telebot.Webhook{
			Listen:   cfg.Bot.WebhookAddr,
			Endpoint: &telebot.WebhookEndpoint{PublicURL: cfg.Bot.WebhookURL},
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Bot.Timeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}
	return tb, nil
}

// New wires the pipeline and registers the update routes.
func New(tb *telebot.Bot, log *slog.Logger, deps Deps) *Bot {
	b := &Bot{
		telebot:    tb,
		handlers:   deps.Handlers,
		errHandler: deps.ErrHandler,
		log:        log,
		chain: []pipeline.Middleware{
			pipeline.ResolveUser(deps.Users, log),
			pipeline.RateLimit(deps.Limiter, deps.Gate, deps.Limits, log),
			pipeline.Authorize(deps.Gate),
			pipeline.Analytics(deps.Tracker, log),
		},
	}

	tb.Handle(telebot.OnText, b.route)
	tb.Handle(telebot.OnCallback, b.route)

	return b
}

// route converts one update to an event, runs it through the pipeline and
// replies with the outcome.
func (b *Bot) route(c telebot.Context) error {
	event := eventFrom(c)
	pc := pipeline.NewContext(event)

	final := func(ctx context.Context, pc *pipeline.Context) error {
		return b.handlers.Dispatch(ctx, pc, c)
	}
	handler := pipeline.Chain(final, b.chain...)

	ctx := context.Background()
	if err := handler(ctx, pc); err != nil {
		userMessage, _ := b.errHandler.Handle(ctx, err)
		return c.Send(userMessage)
	}

	if c.Callback() != nil {
		return c.Respond(&telebot.CallbackResponse{})
	}
	return nil
}

// Start runs the telegram bot event loop.
func (b *Bot) Start() {
	if b.telebot != nil {
		b.telebot.Start()
	}
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}
	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}
