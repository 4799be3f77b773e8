// Package whatsapp wraps the Whatsmeow client so FlowMotion can deliver reminders
// from a linked WhatsApp device.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowmotion/flowmotion/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

const (
	// DefaultDBFileName is the whatsmeow device database created in the state directory.
	DefaultDBFileName = "whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"
)

var (
	ErrNotConnected = errors.New("whatsapp client not connected")
	ErrEmptyTarget  = errors.New("recipient cannot be empty")
	ErrEmptyBody    = errors.New("message body cannot be empty")
)

// MessageSender sends a plain text message to a phone number.
type MessageSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow device store DSN
	StateDir    string // used for the default SQLite path when DBDSN is empty
	QRPath      string // path to write the login QR code
	NumericCode bool   // print the raw pairing code instead of a QR code
	LogLevel    string // whatsmeow log level
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithStateDir places the default device database in dir.
func WithStateDir(dir string) Option {
	return func(o *Opts) {
		o.StateDir = dir
	}
}

// WithQRCodeOutput writes the login QR code to path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode prints the login code as text instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// WithLogLevel sets the whatsmeow internal log level (DEBUG, INFO, WARN, ERROR).
func WithLogLevel(level string) Option {
	return func(o *Opts) {
		o.LogLevel = strings.ToUpper(level)
	}
}

// resolveDSN returns the driver and DSN for the device store.
func resolveDSN(cfg Opts) (driver, dsn string) {
	dsn = cfg.DBDSN
	if dsn == "" {
		dir := cfg.StateDir
		if dir == "" {
			dir = "."
		}
		dsn = "file:" + filepath.Join(dir, DefaultDBFileName) + "?_foreign_keys=on"
	}
	if store.DetectDSNType(dsn) == store.DSNTypePostgres {
		return "postgres", dsn
	}
	if !strings.Contains(dsn, "foreign_keys") {
		slog.Warn("WhatsApp SQLite DSN does not enable foreign keys; whatsmeow strongly recommends '?_foreign_keys=on'",
			"dsn_example", "file:"+dsn+"?_foreign_keys=on")
	}
	return "sqlite3", dsn
}

// Client wraps the Whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
}

var _ MessageSender = (*Client)(nil)

// NewClient opens the device store, logs in if no device is paired yet, and connects.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := Opts{LogLevel: "WARN"}
	for _, opt := range opts {
		opt(&cfg)
	}
	driver, dsn := resolveDSN(cfg)
	slog.Debug("whatsapp.NewClient: opening device store", "driver", driver, "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	container, err := sqlstore.New(ctx, driver, dsn, waLog.Stdout("Database", cfg.LogLevel, true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", cfg.LogLevel, true))
	if waClient.Store.ID == nil {
		if err := login(ctx, waClient, cfg); err != nil {
			return nil, err
		}
	} else if err := waClient.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
	}

	slog.Info("whatsapp.NewClient: connected")
	return &Client{waClient: waClient}, nil
}

func login(ctx context.Context, waClient *whatsmeow.Client, cfg Opts) error {
	slog.Info("whatsapp.login: no paired device, starting QR login")
	qrChan, err := waClient.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to open QR channel: %w", err)
	}
	if err := waClient.Connect(); err != nil {
		return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}

	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			return fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		writer = f
	}

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			if cfg.NumericCode {
				fmt.Fprintln(writer, evt.Code)
			} else {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
			}
		case "success":
			slog.Info("whatsapp.login: device paired")
		default:
			slog.Debug("whatsapp.login: login event", "event", evt.Event)
		}
	}
	return nil
}

// SendMessage sends a text message to the phone number to (digits only).
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil || c.waClient.Store == nil {
		return ErrNotConnected
	}
	if to == "" {
		return ErrEmptyTarget
	}
	if body == "" {
		return ErrEmptyBody
	}

	jid := types.NewJID(to, JIDSuffix)
	if _, err := c.waClient.SendMessage(ctx, jid, &waE2E.Message{Conversation: &body}); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("Client.SendMessage: sent", "to", to, "body_length", len(body))
	return nil
}

// Close disconnects from WhatsApp.
func (c *Client) Close() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}
