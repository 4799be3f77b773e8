// Package messaging delivers FlowMotion notifications over pluggable channels.
//
// Every channel implements Sender. Delivery is best-effort: callers log and drop errors.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
)

var (
	// ErrNoSenders is returned by a MultiSender with nothing configured.
	ErrNoSenders = errors.New("no notification senders configured")
	// ErrInvalidRecipient is returned when a recipient cannot be canonicalized.
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, title, body string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, title, body string) error

func (f SenderFunc) Send(ctx context.Context, title, body string) error {
	return f(ctx, title, body)
}

// NamedSender attaches a channel name used in logs and errors.
type NamedSender struct {
	Name   string
	Sender Sender
}

// MultiSender fans a notification out to several channels concurrently.
// It fails only if every channel fails.
type MultiSender struct {
	senders []NamedSender
}

var _ Sender = (*MultiSender)(nil)

// NewMultiSender creates a MultiSender.
func NewMultiSender(senders ...NamedSender) *MultiSender {
	return &MultiSender{senders: senders}
}

// Add registers another channel.
func (m *MultiSender) Add(name string, s Sender) {
	m.senders = append(m.senders, NamedSender{Name: name, Sender: s})
}

// Len returns the number of configured channels.
func (m *MultiSender) Len() int {
	return len(m.senders)
}

// Names lists the configured channels.
func (m *MultiSender) Names() []string {
	names := make([]string, 0, len(m.senders))
	for _, s := range m.senders {
		names = append(names, s.Name)
	}
	return names
}

func (m *MultiSender) Send(ctx context.Context, title, body string) error {
	if len(m.senders) == 0 {
		return ErrNoSenders
	}

	errs := make([]error, len(m.senders))
	var wg sync.WaitGroup
	for i, s := range m.senders {
		wg.Add(1)
		go func(i int, s NamedSender) {
			defer wg.Done()
			if err := s.Sender.Send(ctx, title, body); err != nil {
				slog.Warn("MultiSender.Send: channel failed", "channel", s.Name, "error", err)
				errs[i] = fmt.Errorf("%s: %w", s.Name, err)
			}
		}(i, s)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(m.senders) {
		return errors.Join(errs...)
	}
	return nil
}

// LogSender writes notifications to the structured log. Useful as a dry-run channel.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, title, body string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification", "title", title, "body", body)
	return nil
}

// ChatText joins a title and body for chat-style channels without separate title support.
func ChatText(title, body string) string {
	if title == "" {
		return body
	}
	return title + "\n" + body
}

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// CanonicalizePhone strips everything but digits and requires at least 6 of them.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("%w: recipient cannot be empty", ErrInvalidRecipient)
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("%w: no digits found in %q", ErrInvalidRecipient, recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("%w: %q is too short (minimum 6 digits required)", ErrInvalidRecipient, canonical)
	}
	if canonical != recipient {
		slog.Debug("CanonicalizePhone: canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
