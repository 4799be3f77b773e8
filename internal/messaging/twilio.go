package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the part of the Twilio REST API used here.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioOpts holds configuration for a TwilioSender.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
	WhatsApp   bool
}

// TwilioOption configures a TwilioSender.
type TwilioOption func(*TwilioOpts)

// WithTwilioAccountSID sets the Twilio account SID.
func WithTwilioAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithTwilioAuthToken sets the Twilio auth token.
func WithTwilioAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithTwilioFrom sets the sending number.
func WithTwilioFrom(from string) TwilioOption {
	return func(o *TwilioOpts) { o.From = from }
}

// WithTwilioTo sets the number notifications go to.
func WithTwilioTo(to string) TwilioOption {
	return func(o *TwilioOpts) { o.To = to }
}

// WithTwilioWhatsApp sends over Twilio's WhatsApp channel instead of SMS.
func WithTwilioWhatsApp() TwilioOption {
	return func(o *TwilioOpts) { o.WhatsApp = true }
}

// TwilioSender delivers notifications as SMS (or WhatsApp) messages via Twilio.
type TwilioSender struct {
	api  messageCreator
	from string
	to   string
}

var _ Sender = (*TwilioSender)(nil)

// NewTwilioSender creates a TwilioSender. Missing credentials fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER environment variables.
func NewTwilioSender(opts ...TwilioOption) (*TwilioSender, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("NewTwilioSender: config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"whatsapp", cfg.WhatsApp)

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("twilio from number must be provided")
	}
	to, err := CanonicalizePhone(cfg.To)
	if err != nil {
		return nil, fmt.Errorf("twilio recipient: %w", err)
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTwilioSender(client.Api, cfg.From, to, cfg.WhatsApp), nil
}

func newTwilioSender(api messageCreator, from, to string, whatsApp bool) *TwilioSender {
	to = "+" + to
	if whatsApp {
		to = "whatsapp:" + to
		if !strings.HasPrefix(from, "whatsapp:") {
			from = "whatsapp:" + from
		}
	}
	return &TwilioSender{api: api, from: from, to: to}
}

func (s *TwilioSender) Send(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(s.to)
	params.SetFrom(s.from)
	params.SetBody(ChatText(title, body))

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioSender.Send: CreateMessage failed", "to", s.to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", s.to, err)
	}
	if msg != nil && msg.Sid != nil {
		slog.Debug("TwilioSender.Send: message queued", "to", s.to, "sid", *msg.Sid)
	}
	return nil
}
