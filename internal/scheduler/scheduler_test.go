package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop(context.Background())
	// Should add a valid cron job without error
	if err := s.AddJob(EveryMinute, func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob(DailyMaintenance, func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", s.Len())
	}
}

func TestSchedulerRejectsInvalidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop(context.Background())
	if err := s.AddJob("every minute", func() {}); err == nil {
		t.Error("expected error for invalid expression")
	}
	// Seconds field is not accepted by the 5-field parser.
	if err := s.AddJob("0 * * * * *", func() {}); err == nil {
		t.Error("expected error for 6-field expression")
	}
}

func TestSchedulerAddContextJob(t *testing.T) {
	s := NewScheduler(WithLocation(time.UTC))
	defer s.Stop(context.Background())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.AddContextJob(ctx, EveryMinute, "tick", func(context.Context) {}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSchedulerStopHonorsContext(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Nothing is running, so Stop either finishes or reports the canceled context.
	if err := s.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCronLoggerWritesErrors(t *testing.T) {
	var buf bytes.Buffer
	l := cronLogger{l: slog.New(slog.NewTextHandler(&buf, nil))}
	l.Error(errors.New("boom"), "panic", "job", "tick")
	out := buf.String()
	if !strings.Contains(out, "cron: panic") || !strings.Contains(out, "boom") || !strings.Contains(out, "job=tick") {
		t.Errorf("unexpected log output %q", out)
	}
}
