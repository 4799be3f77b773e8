package messaging

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// botAPI is the part of tgbotapi.BotAPI used here.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender delivers notifications as Telegram bot messages to one chat.
type TelegramSender struct {
	api    botAPI
	chatID int64
}

var _ Sender = (*TelegramSender)(nil)

// NewTelegramSender authorizes the bot token and returns a sender for chatID.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token must be provided")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id must be provided")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	slog.Info("NewTelegramSender: bot authorized", "account", api.Self.UserName)
	return &TelegramSender{api: api, chatID: chatID}, nil
}

func (s *TelegramSender) Send(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := html.EscapeString(body)
	if title != "" {
		text = "<b>" + html.EscapeString(title) + "</b>\n" + text
	}
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send to chat %d: %w", s.chatID, err)
	}
	slog.Debug("TelegramSender.Send: message sent", "chat_id", s.chatID)
	return nil
}
