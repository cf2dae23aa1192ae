package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/nimbus-labs/nimbus-bot/internal/analytics"
	"github.com/nimbus-labs/nimbus-bot/internal/cache"
	"github.com/nimbus-labs/nimbus-bot/internal/notify"
	"github.com/nimbus-labs/nimbus-bot/internal/pipeline"
	"github.com/nimbus-labs/nimbus-bot/internal/user"
)

// SweepEnqueuer triggers an immediate notification sweep after a broadcast
// is created, instead of waiting for the next cron tick.
type SweepEnqueuer interface {
	EnqueueNotificationSweep(ctx context.Context) error
}

const contentCacheTTL = 30 * time.Minute

// Handlers holds the terminal handlers the pipeline dispatches into.
type Handlers struct {
	users    *user.Service
	recorder *analytics.Recorder
	notifier *notify.Dispatcher
	store    *cache.Store
	sweeps   SweepEnqueuer
	log      *slog.Logger
}

// NewHandlers builds the handler set.
func NewHandlers(users *user.Service, recorder *analytics.Recorder, notifier *notify.Dispatcher, store *cache.Store, sweeps SweepEnqueuer, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		users:    users,
		recorder: recorder,
		notifier: notifier,
		store:    store,
		sweeps:   sweeps,
		log:      log,
	}
}

// Dispatch routes a resolved event to its terminal handler. Authorization
// already happened upstream, so privileged handlers can assume an admin.
func (h *Handlers) Dispatch(ctx context.Context, pc *pipeline.Context, c telebot.Context) error {
	switch pc.Event.Selector {
	case "/start":
		return h.start(pc, c)
	case "/help":
		return h.help(c)
	case "/admin", "admin_panel":
		return h.adminPanel(ctx, c)
	case "/stats", "system_stats":
		return h.systemStats(ctx, c)
	case "/users", "user_stats":
		return h.userStats(ctx, c)
	case "/broadcast", "send_broadcast":
		return h.broadcast(ctx, pc, c)
	case "about_me":
		return h.cachedSection(ctx, c, "about_me", aboutText)
	case "portfolio":
		return h.cachedSection(ctx, c, "portfolio", portfolioText)
	case "quotes":
		return h.cachedSection(ctx, c, "quotes", quotesText)
	case "weather":
		return h.cachedSection(ctx, c, "weather", weatherText)
	case "news":
		return h.cachedSection(ctx, c, "news", newsText)
	case "settings":
		return h.settings(pc, c)
	case "feedback":
		return h.feedback(c)
	default:
		return h.fallback(c)
	}
}

func (h *Handlers) start(pc *pipeline.Context, c telebot.Context) error {
	name := "there"
	if pc.User != nil {
		name = pc.User.FullName()
	}
	text := fmt.Sprintf("Hello, %s! 👋\n\nI can show quotes, weather and news, and keep you posted with announcements. Send /help to see what I can do.", name)
	return c.Send(text, mainMenu())
}

func (h *Handlers) help(c telebot.Context) error {
	text := strings.Join([]string{
		"<b>Commands</b>",
		"/start – restart the conversation",
		"/help – this message",
		"",
		"Use the menu buttons for quotes, weather, news and more.",
	}, "\n")
	return c.Send(text, telebot.ModeHTML)
}

func (h *Handlers) settings(pc *pipeline.Context, c telebot.Context) error {
	lang := "en"
	if pc.User != nil && pc.User.LanguageCode != "" {
		lang = pc.User.LanguageCode
	}
	return c.Send(fmt.Sprintf("⚙️ <b>Settings</b>\n\nLanguage: %s\nNotifications: on", lang), telebot.ModeHTML)
}

func (h *Handlers) feedback(c telebot.Context) error {
	return c.Send("💬 Send your feedback as a plain message and we will read it. Thank you!")
}

func (h *Handlers) fallback(c telebot.Context) error {
	return c.Send("I did not catch that. Send /help to see what I can do.", mainMenu())
}

// cachedSection serves a content section through the cache so repeated menu
// taps do not recompute the text.
func (h *Handlers) cachedSection(ctx context.Context, c telebot.Context, section string, render func() string) error {
	text, err := cache.GetOrSet(ctx, h.store, cache.ContentKey(section), contentCacheTTL, func(context.Context) (string, error) {
		return render(), nil
	})
	if err != nil {
		return err
	}
	return c.Send(text, telebot.ModeHTML)
}

func (h *Handlers) adminPanel(ctx context.Context, c telebot.Context) error {
	stats, err := h.users.Stats(ctx)
	if err != nil {
		return err
	}
	text := fmt.Sprintf(
		"🛠 <b>Admin Panel</b>\n\nUsers: %d (%d active)\nPremium: %d\nNew today: %d\n\n/stats – system statistics\n/users – user statistics\n/broadcast <text> – announce to all active users",
		stats.Total, stats.Active, stats.Premium, stats.NewToday,
	)
	return c.Send(text, telebot.ModeHTML)
}

func (h *Handlers) userStats(ctx context.Context, c telebot.Context) error {
	stats, err := h.users.Stats(ctx)
	if err != nil {
		return err
	}
	engagement, err := h.recorder.EngagementStats(ctx)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👥 <b>User Statistics</b>\n\n")
	fmt.Fprintf(&b, "Total: %d\nActive: %d\nPremium: %d\nNew today: %d\n\n", stats.Total, stats.Active, stats.Premium, stats.NewToday)
	fmt.Fprintf(&b, "Actions recorded: %d\nActive in last 24h: %d\n", engagement.TotalActions, engagement.Last24h)
	if len(engagement.MostActive) > 0 {
		fmt.Fprintf(&b, "\n<b>Most active</b>\n")
		for i, top := range engagement.MostActive {
			fmt.Fprintf(&b, "%d. %s – %d actions\n", i+1, top.Name, top.ActionCount)
		}
	}
	return c.Send(b.String(), telebot.ModeHTML)
}

func (h *Handlers) systemStats(ctx context.Context, c telebot.Context) error {
	perf, err := h.recorder.PerformanceMetrics(ctx, 7)
	if err != nil {
		return err
	}
	notifStats, err := h.notifier.Stats(ctx)
	if err != nil {
		return err
	}
	cacheStats := h.store.Stats(ctx)

	var b strings.Builder
	fmt.Fprintf(&b, "📈 <b>System Statistics</b>\n\n")
	fmt.Fprintf(&b, "Requests (7d): %d\n", perf.TotalRequests)
	if perf.AvgResponseTimeMS != nil {
		fmt.Fprintf(&b, "Avg response: %.0f ms\n", *perf.AvgResponseTimeMS)
	}
	if perf.P95ResponseTimeMS != nil {
		fmt.Fprintf(&b, "p95 response: %.0f ms\n", *perf.P95ResponseTimeMS)
	}
	fmt.Fprintf(&b, "\nNotifications: %d total, %d in 24h\n", notifStats.Total, notifStats.Last24h)
	for status, count := range notifStats.ByStatus {
		fmt.Fprintf(&b, "  %s: %d\n", status, count)
	}
	fmt.Fprintf(&b, "\nCache: %d clients, %s memory, %d hits / %d misses\n",
		cacheStats.ConnectedClients, cacheStats.UsedMemoryHuman, cacheStats.KeyspaceHits, cacheStats.KeyspaceMisses)
	return c.Send(b.String(), telebot.ModeHTML)
}

// broadcast creates a broadcast announcement from the command payload and
// kicks off an immediate delivery sweep.
func (h *Handlers) broadcast(ctx context.Context, pc *pipeline.Context, c telebot.Context) error {
	payload := broadcastPayload(pc.Event.Text)
	if payload == "" {
		return c.Send("Usage: /broadcast <message>")
	}

	n, err := h.notifier.BroadcastAnnouncement(ctx, "Announcement", payload)
	if err != nil {
		return err
	}

	if h.sweeps != nil {
		if err := h.sweeps.EnqueueNotificationSweep(ctx); err != nil {
			h.log.Error("immediate sweep enqueue failed",
				slog.Int64("notification_id", n.ID),
				slog.Any("error", err))
		}
	}
	return c.Send(fmt.Sprintf("📣 Broadcast #%d queued for delivery.", n.ID))
}

func broadcastPayload(text string) string {
	text = strings.TrimSpace(text)
	_, rest, found := strings.Cut(text, " ")
	if !found {
		return ""
	}
	return strings.TrimSpace(rest)
}

func mainMenu() *telebot.ReplyMarkup {
	menu := &telebot.ReplyMarkup{}
	rows := []telebot.Row{
		menu.Row(
			menu.Data("📊 Quotes", "quotes"),
			menu.Data("🌤 Weather", "weather"),
		),
		menu.Row(
			menu.Data("📰 News", "news"),
			menu.Data("💼 Portfolio", "portfolio"),
		),
		menu.Row(
			menu.Data("👤 About", "about_me"),
			menu.Data("⚙️ Settings", "settings"),
		),
		menu.Row(
			menu.Data("💬 Feedback", "feedback"),
		),
	}
	menu.Inline(rows...)
	return menu
}

func aboutText() string {
	return "👤 <b>About</b>\n\nNimbus keeps an eye on markets, weather and headlines so you do not have to. All data is refreshed continuously during the day."
}

func portfolioText() string {
	return "💼 <b>Portfolio</b>\n\nPortfolio tracking is being rolled out gradually. You will get a notification when it reaches your account."
}

func quotesText() string {
	return "📊 <b>Quotes</b>\n\nBTC/USD – consolidating\nETH/USD – consolidating\nS&amp;P 500 – flat\n\nDetailed quotes arrive with the next data provider rollout."
}

func weatherText() string {
	return "🌤 <b>Weather</b>\n\nShare a location to get a local forecast. City search is on the way."
}

func newsText() string {
	return "📰 <b>News</b>\n\nTop headlines will appear here once the news feed is connected to your region."
}
