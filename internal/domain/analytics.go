package domain

import "time"

// Action identifies what a user did, used for analytics grouping.
type Action string

const (
	ActionStart      Action = "start"
	ActionHelp       Action = "help"
	ActionAbout      Action = "about"
	ActionPortfolio  Action = "portfolio"
	ActionQuotes     Action = "quotes"
	ActionWeather    Action = "weather"
	ActionNews       Action = "news"
	ActionAdminPanel Action = "admin_panel"
	ActionSettings   Action = "settings"
	ActionFeedback   Action = "feedback"
	ActionError      Action = "error"
	// ActionMessage tags content events with no recognized command.
	ActionMessage Action = "message"
)

// AnalyticsEntry is an immutable fact recorded once per processed event.
type AnalyticsEntry struct {
	ID             int64
	UserID         int64
	Action         Action
	Details        string
	ChatType       string
	MessageType    string
	ResponseTimeMS *int64
	CreatedAt      time.Time
}
