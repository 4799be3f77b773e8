package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "info", Format: FormatJSON, Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("Dispatcher.Dispatch: sent", "habit_id", "h1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("invalid JSON record: %v", err)
	}
	if rec["msg"] != "Dispatcher.Dispatch: sent" || rec["habit_id"] != "h1" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Options{Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("tick", "habits", 3)
	if !strings.Contains(buf.String(), "msg=tick") || !strings.Contains(buf.String(), "habits=3") {
		t.Errorf("unexpected text output %q", buf.String())
	}
}

func TestNewPretty(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Options{Level: "warn", Format: FormatPretty, Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("send failed", "channel", "telegram")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "send failed") || !strings.Contains(out, "telegram") {
		t.Errorf("unexpected pretty output %q", out)
	}
}

func TestNewWithFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "flowmotion.log")
	logger, closer, err := New(Options{Writer: &buf, File: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hello file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "hello file") || !strings.Contains(buf.String(), "hello file") {
		t.Errorf("record should reach both writer and file: file=%q writer=%q", data, buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, _, err := New(Options{Format: "xml"}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestSetupInstallsDefault(t *testing.T) {
	old := slog.Default()
	defer slog.SetDefault(old)

	var buf bytes.Buffer
	closer, err := Setup(Options{Writer: &buf})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer closer.Close()
	slog.Info("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Errorf("default logger not installed: %q", buf.String())
	}
}
