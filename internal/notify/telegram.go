// Package notify sends out-of-band alerts for kill-switch activations and
// alert-threshold breaches. Telegram is optional: with no bot token
// configured, Notifier is a no-op so the pipeline runs unattended.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

type Notifier interface {
	Notify(text string)
}

type noop struct{}

func (noop) Notify(string) {}

// NewNoop returns a Notifier that discards every message.
func NewNoop() Notifier { return noop{} }

type telegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram constructs a Telegram-backed Notifier, or a no-op Notifier
// when botToken is empty.
func NewTelegram(botToken string, chatID int64) (Notifier, error) {
	if botToken == "" {
		return noop{}, nil
	}

	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("telegram_notifier_initialized")

	return &telegramNotifier{api: api, chatID: chatID}, nil
}

func (n *telegramNotifier) Notify(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("telegram_send_failed")
	}
}
