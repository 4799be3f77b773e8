package messaging

import (
	"context"
	"fmt"

	"github.com/flowmotion/flowmotion/internal/whatsapp"
)

// WhatsAppSender delivers notifications to one phone number through a linked WhatsApp device.
type WhatsAppSender struct {
	client whatsapp.MessageSender
	to     string
}

var _ Sender = (*WhatsAppSender)(nil)

// NewWhatsAppSender creates a WhatsAppSender for the given recipient number.
func NewWhatsAppSender(client whatsapp.MessageSender, to string) (*WhatsAppSender, error) {
	canonical, err := CanonicalizePhone(to)
	if err != nil {
		return nil, fmt.Errorf("whatsapp recipient: %w", err)
	}
	return &WhatsAppSender{client: client, to: canonical}, nil
}

func (s *WhatsAppSender) Send(ctx context.Context, title, body string) error {
	return s.client.SendMessage(ctx, s.to, ChatText(title, body))
}
