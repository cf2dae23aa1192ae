package bot

import (
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/nimbus-labs/nimbus-bot/internal/domain"
)

// eventFrom converts a telebot update into the transport-neutral event the
// pipeline works with. Callback data arrives with telebot's "\f" unique
// prefix and an optional "|" payload suffix; only the unique part becomes
// the selector.
func eventFrom(c telebot.Context) domain.Event {
	event := domain.Event{Sender: profileFrom(c.Sender())}

	if chat := c.Chat(); chat != nil {
		event.ChatType = string(chat.Type)
	}

	if callback := c.Callback(); callback != nil {
		event.Kind = domain.EventAction
		event.Selector = callbackSelector(callback.Data)
		return event
	}

	event.Kind = domain.EventContent
	event.Text = c.Text()
	event.Selector = commandSelector(c.Text())
	return event
}

func profileFrom(sender *telebot.User) domain.Profile {
	if sender == nil {
		return domain.Profile{}
	}
	return domain.Profile{
		ID:           sender.ID,
		Username:     sender.Username,
		FirstName:    sender.FirstName,
		LastName:     sender.LastName,
		LanguageCode: sender.LanguageCode,
		IsPremium:    sender.IsPremium,
	}
}

func callbackSelector(data string) string {
	data = strings.TrimPrefix(data, "\f")
	if i := strings.Index(data, "|"); i >= 0 {
		data = data[:i]
	}
	return strings.TrimSpace(data)
}

// commandSelector extracts the leading command token, or empty for plain
// text. "/start@nimbus_bot extra" yields "/start".
func commandSelector(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		text = text[:i]
	}
	if i := strings.Index(text, "@"); i >= 0 {
		text = text[:i]
	}
	return text
}
