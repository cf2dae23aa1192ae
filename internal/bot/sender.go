package bot

import (
	"context"
	"errors"

	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/nimbus-labs/nimbus-bot/internal/errors"
	"github.com/nimbus-labs/nimbus-bot/internal/notify"
)

// Sender delivers notification texts over the Telegram API and classifies
// transport failures for the dispatcher.
type Sender struct {
	tb *telebot.Bot
}

// NewSender wraps a telebot instance as a notification sender.
func NewSender(tb *telebot.Bot) *Sender {
	return &Sender{tb: tb}
}

// Send delivers one HTML-formatted message to one chat.
func (s *Sender) Send(_ context.Context, recipientID int64, text string) (notify.Outcome, error) {
	recipient := &telebot.User{ID: recipientID}
	_, err := s.tb.Send(recipient, text, telebot.ModeHTML)
	if err == nil {
		return notify.OutcomeDelivered, nil
	}
	return classify(err), apperrors.NewDeliveryError(err)
}

// classify maps Telegram API errors to delivery outcomes. Users who blocked
// the bot or deleted their account are permanently unreachable; other 4xx
// responses indicate a bad message; everything else may succeed later.
func classify(err error) notify.Outcome {
	switch {
	case errors.Is(err, telebot.ErrBlockedByUser),
		errors.Is(err, telebot.ErrUserIsDeactivated),
		errors.Is(err, telebot.ErrChatNotFound),
		errors.Is(err, telebot.ErrNotStartedByUser):
		return notify.OutcomeRecipientUnreachable
	}

	var flood telebot.FloodError
	if errors.As(err, &flood) {
		return notify.OutcomeTransient
	}

	var apiErr *telebot.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 403:
			return notify.OutcomeRecipientUnreachable
		case apiErr.Code == 429:
			return notify.OutcomeTransient
		case apiErr.Code >= 400 && apiErr.Code < 500:
			return notify.OutcomeBadRequest
		}
	}
	return notify.OutcomeTransient
}
