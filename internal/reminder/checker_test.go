package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flowmotion/flowmotion/internal/models"
)

type fakeSource struct {
	mu          sync.Mutex
	habits      []models.Habit
	listErr     error
	completed   map[string]bool
	completedOn map[string]models.Date
	lookupErr   map[string]error
	lookupCalls int
	asked       []models.Date
}

func (f *fakeSource) ListReminderHabits(ctx context.Context) ([]models.Habit, error) {
	return f.habits, f.listErr
}

func (f *fakeSource) HasCompletedResponse(ctx context.Context, habitID string, date models.Date) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	f.asked = append(f.asked, date)
	if err := f.lookupErr[habitID]; err != nil {
		return false, err
	}
	if d, ok := f.completedOn[habitID]; ok {
		return d == date, nil
	}
	return f.completed[habitID], nil
}

type dispatchCall struct {
	habitID string
	window  Window
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	block time.Duration
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, h models.Habit, w Window, now time.Time) bool {
	if d.block > 0 {
		select {
		case <-time.After(d.block):
		case <-ctx.Done():
			return false
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{habitID: h.ID, window: w})
	return true
}

func reminderHabit(id string, hour, minute int) models.Habit {
	tod := models.TimeOfDay{Hour: hour, Minute: minute}
	return models.Habit{
		ID:              id,
		UserID:          "u1",
		Name:            id,
		Kind:            models.HabitKindYesNo,
		Status:          models.HabitStatusActive,
		ReminderEnabled: true,
		ReminderTime:    &tod,
		LeadMinutes:     5,
		LagMinutes:      5,
	}
}

func TestCheckerTickDispatchesMatchingWindows(t *testing.T) {
	src := &fakeSource{habits: []models.Habit{
		reminderHabit("water", 9, 0),
		reminderHabit("stretch", 9, 5),
		reminderHabit("read", 21, 0),
	}}
	disp := &recordingDispatcher{}
	c := NewChecker(src, disp)

	report := c.Tick(context.Background(), at(9, 0))
	if report.Habits != 3 || report.Sent != 2 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	got := map[string]Window{}
	for _, call := range disp.calls {
		got[call.habitID] = call.window
	}
	if got["water"] != WindowMain || got["stretch"] != WindowPre {
		t.Errorf("unexpected dispatches %+v", got)
	}
	if _, ok := got["read"]; ok {
		t.Error("habit outside any window must not be dispatched")
	}
	if src.lookupCalls != 0 {
		t.Errorf("completion lookup should only run for the post window, ran %d times", src.lookupCalls)
	}
}

func TestCheckerTickSkipsOverdueWhenCompleted(t *testing.T) {
	src := &fakeSource{
		habits:    []models.Habit{reminderHabit("water", 9, 0), reminderHabit("walk", 9, 0)},
		completed: map[string]bool{"water": true},
	}
	disp := &recordingDispatcher{}
	c := NewChecker(src, disp)

	report := c.Tick(context.Background(), at(9, 5))
	if report.Sent != 1 {
		t.Fatalf("expected one overdue notification, got %+v", report)
	}
	if disp.calls[0].habitID != "walk" || disp.calls[0].window != WindowPost {
		t.Errorf("unexpected dispatch %+v", disp.calls[0])
	}
}

func TestCheckerTickSkipsOverdueWhenAcknowledged(t *testing.T) {
	h := reminderHabit("water", 9, 0)
	today := models.DateOf(at(9, 5))
	h.Acknowledged = &today
	src := &fakeSource{habits: []models.Habit{h}}
	disp := &recordingDispatcher{}

	NewChecker(src, disp).Tick(context.Background(), at(9, 5))
	if len(disp.calls) != 0 {
		t.Errorf("acknowledged habit must not receive an overdue notification")
	}
	if src.lookupCalls != 0 {
		t.Errorf("acknowledged habit needs no completion lookup")
	}
}

func TestCheckerTickOverdueAfterMidnightUsesPreviousDay(t *testing.T) {
	day := models.Date{Year: 2025, Month: time.May, Day: 10}
	afterMidnight := time.Date(2025, time.May, 11, 0, 3, 0, 0, time.UTC)

	src := &fakeSource{
		habits:      []models.Habit{reminderHabit("late", 23, 58)},
		completedOn: map[string]models.Date{"late": day},
	}
	disp := &recordingDispatcher{}
	NewChecker(src, disp).Tick(context.Background(), afterMidnight)
	if len(disp.calls) != 0 {
		t.Errorf("completed on %s, no overdue expected at 00:03, got %+v", day, disp.calls)
	}
	if len(src.asked) != 1 || src.asked[0] != day {
		t.Errorf("completion should be checked for %s, asked %v", day, src.asked)
	}

	h := reminderHabit("late", 23, 58)
	h.Acknowledged = &day
	src = &fakeSource{habits: []models.Habit{h}}
	disp = &recordingDispatcher{}
	NewChecker(src, disp).Tick(context.Background(), afterMidnight)
	if len(disp.calls) != 0 {
		t.Errorf("acknowledged on %s, no overdue expected at 00:03, got %+v", day, disp.calls)
	}

	src = &fakeSource{
		habits:      []models.Habit{reminderHabit("late", 23, 58)},
		completedOn: map[string]models.Date{"late": day.AddDays(1)},
	}
	disp = &recordingDispatcher{}
	NewChecker(src, disp).Tick(context.Background(), afterMidnight)
	if len(disp.calls) != 1 || disp.calls[0].window != WindowPost {
		t.Errorf("a completion on the new day does not cover the previous occurrence, got %+v", disp.calls)
	}
}

func TestCheckerTickIsolatesLookupErrors(t *testing.T) {
	src := &fakeSource{
		habits:    []models.Habit{reminderHabit("broken", 9, 0), reminderHabit("fine", 9, 0)},
		lookupErr: map[string]error{"broken": errors.New("db gone")},
	}
	disp := &recordingDispatcher{}

	report := NewChecker(src, disp).Tick(context.Background(), at(9, 5))
	if report.Failed != 1 || report.Sent != 1 {
		t.Fatalf("expected one failure and one send, got %+v", report)
	}
	if disp.calls[0].habitID != "fine" {
		t.Errorf("expected the healthy habit to be dispatched, got %s", disp.calls[0].habitID)
	}
}

func TestCheckerTickListFailure(t *testing.T) {
	src := &fakeSource{listErr: errors.New("db gone")}
	disp := &recordingDispatcher{}
	report := NewChecker(src, disp).Tick(context.Background(), at(9, 0))
	if report != (TickReport{}) || len(disp.calls) != 0 {
		t.Errorf("list failure should end the tick quietly, got %+v", report)
	}
}

func TestCheckerTickBoundsSlowHabits(t *testing.T) {
	src := &fakeSource{habits: []models.Habit{reminderHabit("slow", 9, 0)}}
	disp := &recordingDispatcher{block: time.Second}
	c := NewChecker(src, disp, WithHabitTimeout(20*time.Millisecond))

	start := time.Now()
	report := c.Tick(context.Background(), at(9, 0))
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("tick should be bounded by the per-habit timeout, took %v", elapsed)
	}
	if report.Sent != 0 {
		t.Errorf("timed-out dispatch should not count as sent, got %+v", report)
	}
}

func TestCheckerRunOnceUsesClock(t *testing.T) {
	src := &fakeSource{habits: []models.Habit{reminderHabit("water", 9, 0)}}
	disp := &recordingDispatcher{}
	c := NewChecker(src, disp, WithClock(func() time.Time { return at(8, 55) }))

	c.RunOnce(context.Background())
	if len(disp.calls) != 1 || disp.calls[0].window != WindowPre {
		t.Errorf("expected a pre dispatch from the injected clock, got %+v", disp.calls)
	}
}
