package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/spot-confirmation/internal/model"
)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramDeliverer copies every notification to an operations chat.
// Comedians and promoters are not Telegram users, so the chat is the
// team's view of outgoing traffic.
type TelegramDeliverer struct {
	bot    messageSender
	chatID int64
	log    logrus.FieldLogger
}

// NewTelegramDeliverer connects to the bot API.  An empty token returns a
// deliverer that skips every message.
func NewTelegramDeliverer(token string, chatID int64, log logrus.FieldLogger) (*TelegramDeliverer, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if token == "" {
		log.Warn("telegram bot token is empty, ops chat delivery disabled")
		return &TelegramDeliverer{log: log}, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramDeliverer{bot: bot, chatID: chatID, log: log}, nil
}

// Send posts n to the chat.
func (t *TelegramDeliverer) Send(ctx context.Context, n model.Notification) error {
	if t.bot == nil || t.chatID == 0 {
		t.log.WithField("notification_id", n.ID).Debug("telegram delivery skipped (disabled)")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	text := fmt.Sprintf("*%s* → %s %s\n%s", n.Kind, n.Role, n.Recipient, Render(n))
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
