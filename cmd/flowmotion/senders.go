package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowmotion/flowmotion/internal/messaging"
	"github.com/flowmotion/flowmotion/internal/whatsapp"
)

// SenderFlags select the notification channels.
type SenderFlags struct {
	Desktop bool `help:"Show desktop notifications via notify-send." default:"true" negatable:""`

	TwilioAccountSID string `name:"twilio-account-sid" help:"Twilio account SID." env:"TWILIO_ACCOUNT_SID" group:"Twilio"`
	TwilioAuthToken  string `name:"twilio-auth-token" help:"Twilio auth token." env:"TWILIO_AUTH_TOKEN" group:"Twilio"`
	TwilioFrom       string `name:"twilio-from" help:"Sending number." env:"TWILIO_FROM_NUMBER" group:"Twilio"`
	TwilioTo         string `name:"twilio-to" help:"Recipient number; enables the Twilio channel." env:"TWILIO_TO_NUMBER" group:"Twilio"`
	TwilioWhatsApp   bool   `name:"twilio-whatsapp" help:"Send through Twilio's WhatsApp channel instead of SMS." env:"TWILIO_WHATSAPP" group:"Twilio"`

	TelegramToken  string `name:"telegram-token" help:"Telegram bot token; enables the Telegram channel." env:"TELEGRAM_BOT_TOKEN" group:"Telegram"`
	TelegramChatID int64  `name:"telegram-chat-id" help:"Telegram chat to notify." env:"TELEGRAM_CHAT_ID" group:"Telegram"`

	WhatsAppTo          string `name:"whatsapp-to" help:"Recipient number; enables the linked-device WhatsApp channel." env:"WHATSAPP_TO" group:"WhatsApp"`
	WhatsAppDBDSN       string `name:"whatsapp-db-dsn" help:"Device store DSN (default <state-dir>/whatsmeow.db)." env:"WHATSAPP_DB_DSN" group:"WhatsApp"`
	WhatsAppQROutput    string `name:"whatsapp-qr-output" help:"Write the login QR code to this file." env:"WHATSAPP_QR_OUTPUT" group:"WhatsApp"`
	WhatsAppNumericCode bool   `name:"whatsapp-numeric-code" help:"Print the raw pairing code instead of a QR code." group:"WhatsApp"`
}

// build assembles the configured channels. The log channel is always present.
// The returned cleanup closes any long-lived connections.
func (f *SenderFlags) build(ctx context.Context, app *App) (*messaging.MultiSender, func(), error) {
	multi := messaging.NewMultiSender(messaging.NamedSender{Name: "log", Sender: messaging.LogSender{}})
	cleanup := func() {}

	if f.Desktop {
		desktop := messaging.NewDesktopSender()
		if desktop.Available() {
			multi.Add("desktop", desktop)
		} else {
			slog.Warn("SenderFlags.build: notify-send not found, desktop notifications disabled")
		}
	}

	if f.TwilioTo != "" {
		opts := []messaging.TwilioOption{
			messaging.WithTwilioAccountSID(f.TwilioAccountSID),
			messaging.WithTwilioAuthToken(f.TwilioAuthToken),
			messaging.WithTwilioFrom(f.TwilioFrom),
			messaging.WithTwilioTo(f.TwilioTo),
		}
		if f.TwilioWhatsApp {
			opts = append(opts, messaging.WithTwilioWhatsApp())
		}
		tw, err := messaging.NewTwilioSender(opts...)
		if err != nil {
			return nil, cleanup, fmt.Errorf("twilio: %w", err)
		}
		multi.Add("twilio", tw)
	}

	if f.TelegramToken != "" {
		tg, err := messaging.NewTelegramSender(f.TelegramToken, f.TelegramChatID)
		if err != nil {
			return nil, cleanup, fmt.Errorf("telegram: %w", err)
		}
		multi.Add("telegram", tg)
	}

	if f.WhatsAppTo != "" {
		opts := []whatsapp.Option{
			whatsapp.WithStateDir(app.stateDir()),
			whatsapp.WithLogLevel(app.LogLevel),
		}
		if f.WhatsAppDBDSN != "" {
			opts = append(opts, whatsapp.WithDBDSN(f.WhatsAppDBDSN))
		}
		if f.WhatsAppQROutput != "" {
			opts = append(opts, whatsapp.WithQRCodeOutput(f.WhatsAppQROutput))
		}
		if f.WhatsAppNumericCode {
			opts = append(opts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(ctx, opts...)
		if err != nil {
			return nil, cleanup, fmt.Errorf("whatsapp: %w", err)
		}
		wa, err := messaging.NewWhatsAppSender(client, f.WhatsAppTo)
		if err != nil {
			client.Close()
			return nil, cleanup, fmt.Errorf("whatsapp: %w", err)
		}
		multi.Add("whatsapp", wa)
		cleanup = client.Close
	}

	slog.Info("SenderFlags.build: notification channels ready", "channels", multi.Names())
	return multi, cleanup, nil
}
