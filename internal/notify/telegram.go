package notify

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"video-publisher/internal/logging"
)

// sender is the part of *tgbotapi.BotAPI used here.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts run reports and alerts into one chat.
type Telegram struct {
	tg     sender
	chatID int64
	log    *logging.Logger
}

func NewTelegram(token string, chatID int64, log *logging.Logger) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is empty")
	}
	if chatID == 0 {
		return nil, errors.New("NOTIFY_CHAT_ID is empty")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false
	log.Infof("notify: telegram bot @%s, chat %d", api.Self.UserName, chatID)
	return &Telegram{tg: api, chatID: chatID, log: log}, nil
}

func (t *Telegram) Notify(_ context.Context, r Report) error {
	return t.Send(Format(r))
}

func (t *Telegram) Send(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.tg.Send(msg); err != nil {
		t.log.Errorf("notify: telegram send failed: %v", err)
		return err
	}
	return nil
}
