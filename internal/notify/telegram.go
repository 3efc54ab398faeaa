package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends notifications to a fixed chat via a bot.
type Telegram struct {
	api    telegramAPI
	chatID int64
}

// NewTelegram creates a Telegram sender from a bot token and chat ID.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

// Send delivers the notification as a single message, the URL appended
// on its own line.
func (t *Telegram) Send(_ context.Context, title, message, url string) error {
	text := title
	if message != "" {
		text += "\n\n" + message
	}
	if url != "" {
		text += "\n\n" + url
	}

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
