package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/flowmotion/flowmotion/internal/habit"
	"github.com/flowmotion/flowmotion/internal/models"
	"github.com/flowmotion/flowmotion/internal/store"
)

// runCLI runs the command line against a fresh state directory with the pure Go SQLite driver.
func runCLI(t *testing.T, stateDir string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--state-dir", stateDir, "--db-driver", "sqlite", "--timezone", "UTC"}, args...)
	err := run(context.Background(), full, &stdout, &stderr)
	if err != nil {
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), err
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "DATABASE_URL", "FLOWMOTION_USER", "FLOWMOTION_TZ",
		"TWILIO_TO_NUMBER", "TELEGRAM_BOT_TOKEN", "WHATSAPP_TO", "FLOWMOTION_LOG_FILE"} {
		t.Setenv(k, "")
	}
}

func TestRunVersion(t *testing.T) {
	clearEnv(t)
	out, err := runCLI(t, t.TempDir(), "--version")
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("output %q does not contain %q", out, version)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	clearEnv(t)
	if _, err := runCLI(t, t.TempDir(), "no-such-command"); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}

func TestHabitLifecycle(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	out, err := runCLI(t, dir, "--json", "habit", "add", "Read", "--remind", "07:30", "--notes", "fiction")
	if err != nil {
		t.Fatalf("habit add: %v", err)
	}
	var created models.Habit
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode habit: %v\n%s", err, out)
	}
	if created.ID == "" || created.Name != "Read" || !created.ReminderEnabled {
		t.Fatalf("unexpected habit: %+v", created)
	}
	if created.Suggestion != nil {
		t.Errorf("no suggestion expected without an API key, got %+v", created.Suggestion)
	}

	out, err = runCLI(t, dir, "habit", "list")
	if err != nil {
		t.Fatalf("habit list: %v", err)
	}
	if !strings.Contains(out, "Read") || !strings.Contains(out, "07:30") {
		t.Errorf("list output missing habit:\n%s", out)
	}

	prefix := created.ID[:6]
	out, err = runCLI(t, dir, "respond", prefix, "--notes", "ch. 3")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !strings.Contains(out, `Habit "Read" completed!`) || !strings.Contains(out, "streak: 1 (best 1)") {
		t.Errorf("unexpected respond output:\n%s", out)
	}

	out, err = runCLI(t, dir, "--json", "habit", "show", created.ID)
	if err != nil {
		t.Fatalf("habit show: %v", err)
	}
	var detail habit.Detail
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Streak.Current != 1 || detail.Today == nil || !detail.Today.Completed || detail.CompletionRate != 100 {
		t.Errorf("unexpected detail: %+v", detail)
	}

	out, err = runCLI(t, dir, "--json", "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats habit.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalHabits != 1 || stats.CompletionRate != 100 || len(stats.Daily) != habit.StatsDays {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if out, err = runCLI(t, dir, "history", "--days", "3"); err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "✓") {
		t.Errorf("history should mark today's completion:\n%s", out)
	}

	if out, err = runCLI(t, dir, "next"); err != nil {
		t.Fatalf("next: %v", err)
	}
	if !strings.Contains(out, "Read") {
		t.Errorf("next should name the habit:\n%s", out)
	}

	if _, err = runCLI(t, dir, "habit", "pause", prefix); err != nil {
		t.Fatalf("habit pause: %v", err)
	}
	out, err = runCLI(t, dir, "habit", "list")
	if err != nil {
		t.Fatalf("habit list: %v", err)
	}
	if strings.Contains(out, "Read") {
		t.Errorf("paused habit listed without --all:\n%s", out)
	}
	out, err = runCLI(t, dir, "habit", "list", "--all")
	if err != nil {
		t.Fatalf("habit list --all: %v", err)
	}
	if !strings.Contains(out, "paused") {
		t.Errorf("expected paused habit with --all:\n%s", out)
	}
}

func TestHabitEditAndAck(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	out, err := runCLI(t, dir, "--json", "habit", "add", "Stretch", "--remind", "21:00")
	if err != nil {
		t.Fatalf("habit add: %v", err)
	}
	var h models.Habit
	if err := json.Unmarshal([]byte(out), &h); err != nil {
		t.Fatal(err)
	}

	out, err = runCLI(t, dir, "--json", "habit", "edit", h.ID, "--remind", "off", "--lead", "10")
	if err != nil {
		t.Fatalf("habit edit: %v", err)
	}
	var edited models.Habit
	if err := json.Unmarshal([]byte(out), &edited); err != nil {
		t.Fatal(err)
	}
	if edited.ReminderEnabled || edited.ReminderTime != nil || edited.LeadMinutes != 10 || edited.LagMinutes != models.DefaultLagMinutes {
		t.Errorf("unexpected edit result: %+v", edited)
	}

	out, err = runCLI(t, dir, "--json", "ack", h.ID)
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	var acked models.Habit
	if err := json.Unmarshal([]byte(out), &acked); err != nil {
		t.Fatal(err)
	}
	if acked.Acknowledged == nil {
		t.Error("expected acknowledged date to be set")
	}

	if _, err := runCLI(t, dir, "respond", "nope"); !errors.Is(err, models.ErrHabitNotFound) {
		t.Errorf("respond unknown habit: got %v, want ErrHabitNotFound", err)
	}
}

func TestMeasurableRespondRequiresValue(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	out, err := runCLI(t, dir, "--json", "habit", "add", "Run", "--unit", "km", "--target", "5")
	if err != nil {
		t.Fatalf("habit add: %v", err)
	}
	var h models.Habit
	if err := json.Unmarshal([]byte(out), &h); err != nil {
		t.Fatal(err)
	}
	if h.Kind != models.HabitKindMeasurable {
		t.Fatalf("kind = %q, want measurable", h.Kind)
	}

	if _, err := runCLI(t, dir, "respond", h.ID); !errors.Is(err, models.ErrMissingValue) {
		t.Errorf("respond without value: got %v, want ErrMissingValue", err)
	}
	out, err = runCLI(t, dir, "respond", h.ID, "--value", "6.5")
	if err != nil {
		t.Fatalf("respond with value: %v", err)
	}
	if !strings.Contains(out, "completed!") {
		t.Errorf("6.5 km should satisfy a 5 km target:\n%s", out)
	}
}

func TestServeOnce(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	if _, err := runCLI(t, dir, "habit", "add", "Water Plants", "--remind", "08:00"); err != nil {
		t.Fatalf("habit add: %v", err)
	}
	out, err := runCLI(t, dir, "serve", "--once", "--no-desktop")
	if err != nil {
		t.Fatalf("serve --once: %v", err)
	}
	if !strings.Contains(out, "checked 1 habits") {
		t.Errorf("unexpected serve output: %q", out)
	}
}

func TestTestNotification(t *testing.T) {
	clearEnv(t)
	out, err := runCLI(t, t.TempDir(), "test-notification", "--no-desktop", "Water Plants")
	if err != nil {
		t.Fatalf("test-notification: %v", err)
	}
	if !strings.Contains(out, "sent 3 notifications") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestSuggestFallback(t *testing.T) {
	clearEnv(t)
	out, err := runCLI(t, t.TempDir(), "--json", "suggest", "Prepare PPT", "quarterly review")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	var sg models.Suggestion
	if err := json.Unmarshal([]byte(out), &sg); err != nil {
		t.Fatal(err)
	}
	if sg.Category != "Presentation" || len(sg.Tools) != 3 {
		t.Errorf("unexpected suggestion: %+v", sg)
	}
}

func TestResolveHabit(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	svc := habit.NewService(st)
	app := &App{Globals: &Globals{User: "u1"}, ctx: ctx}

	for _, h := range []models.Habit{
		{ID: "abc123", UserID: "u1", Name: "A"},
		{ID: "abd456", UserID: "u1", Name: "B"},
		{ID: "abe789", UserID: "u2", Name: "C"},
	} {
		h.ApplyDefaults()
		if err := st.CreateHabit(ctx, h); err != nil {
			t.Fatal(err)
		}
	}

	if h, err := app.resolveHabit(svc, "abc"); err != nil || h.ID != "abc123" {
		t.Errorf("prefix abc: got %v, %v", h.ID, err)
	}
	if h, err := app.resolveHabit(svc, "abd456"); err != nil || h.Name != "B" {
		t.Errorf("full id: got %v, %v", h.ID, err)
	}
	if _, err := app.resolveHabit(svc, "ab"); err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("expected ambiguity error, got %v", err)
	}
	if _, err := app.resolveHabit(svc, "abe"); !errors.Is(err, models.ErrHabitNotFound) {
		t.Errorf("other user's habit should not resolve, got %v", err)
	}
}

func TestEditRequest(t *testing.T) {
	c := HabitEditCmd{Remind: "06:15", Reminders: "", Lead: -1, Lag: 0, Name: "Walk"}
	req, err := c.request()
	if err != nil {
		t.Fatal(err)
	}
	if req.ReminderTime == nil || req.ReminderTime.String() != "06:15" || req.ReminderEnabled == nil || !*req.ReminderEnabled {
		t.Errorf("reminder not set: %+v", req)
	}
	if req.LeadMinutes != nil {
		t.Error("lead should be unchanged")
	}
	if req.LagMinutes == nil || *req.LagMinutes != 0 {
		t.Error("lag should be set to 0")
	}
	if req.Name == nil || *req.Name != "Walk" || req.Color != nil {
		t.Errorf("unexpected fields: %+v", req)
	}

	c = HabitEditCmd{Reminders: "maybe", Lead: -1, Lag: -1}
	if _, err := c.request(); err == nil {
		t.Error("expected an error for --reminders maybe")
	}
	c = HabitEditCmd{Remind: "25:00", Lead: -1, Lag: -1}
	if _, err := c.request(); !errors.Is(err, models.ErrInvalidTimeOfDay) {
		t.Errorf("got %v, want ErrInvalidTimeOfDay", err)
	}
}

func TestDelayLabel(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "now"},
		{-5, "now"},
		{1, "1m"},
		{60_000, "1m"},
		{60_001, "2m"},
		{90 * 60_000, "1h30m"},
	}
	for _, tt := range tests {
		if got := delayLabel(tt.ms); got != tt.want {
			t.Errorf("delayLabel(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}
