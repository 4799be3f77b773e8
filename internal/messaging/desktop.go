package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrNotifySendMissing is returned when the desktop notification utility is not installed.
var ErrNotifySendMissing = errors.New("notify-send not found in PATH")

const (
	notifySendBinary = "notify-send"
	desktopAppName   = "FlowMotion"
	desktopIconName  = "appointment-new"
	desktopUrgency   = "normal"
)

// Swapped in tests.
var (
	lookPathFunc = exec.LookPath
	runCmdFunc   = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).CombinedOutput()
	}
)

// DesktopSender shows a libnotify desktop notification through notify-send.
type DesktopSender struct {
	AppName string
	Icon    string
}

var _ Sender = DesktopSender{}

// NewDesktopSender creates a DesktopSender with FlowMotion's app name and icon.
func NewDesktopSender() DesktopSender {
	return DesktopSender{AppName: desktopAppName, Icon: desktopIconName}
}

// Available reports whether notify-send can be found.
func (s DesktopSender) Available() bool {
	_, err := lookPathFunc(notifySendBinary)
	return err == nil
}

func (s DesktopSender) args(title, body string) []string {
	app := s.AppName
	if app == "" {
		app = desktopAppName
	}
	icon := s.Icon
	if icon == "" {
		icon = desktopIconName
	}
	return []string{"-a", app, "-i", icon, "-u", desktopUrgency, title, body}
}

func (s DesktopSender) Send(ctx context.Context, title, body string) error {
	path, err := lookPathFunc(notifySendBinary)
	if err != nil {
		return ErrNotifySendMissing
	}
	out, err := runCmdFunc(ctx, path, s.args(title, body)...)
	if err != nil {
		return fmt.Errorf("notify-send failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	slog.Debug("DesktopSender.Send: notification shown", "title", title)
	return nil
}
