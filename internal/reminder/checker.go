package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowmotion/flowmotion/internal/models"
)

// DefaultHabitTimeout bounds the work done for one habit within a tick. It is
// shorter than the one-minute tick interval so a tick always finishes before the next.
const DefaultHabitTimeout = 45 * time.Second

// HabitSource is the data access the checker needs.
type HabitSource interface {
	// ListReminderHabits returns active habits with reminders enabled and a reminder time set.
	ListReminderHabits(ctx context.Context) ([]models.Habit, error)
	// HasCompletedResponse reports whether a completed response exists for the habit on date.
	HasCompletedResponse(ctx context.Context, habitID string, date models.Date) (bool, error)
}

// Dispatcher delivers the notification for a habit's window. It reports whether
// a notification was actually sent and never returns errors to the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, habit models.Habit, w Window, now time.Time) bool
}

// TickReport summarizes one pass.
type TickReport struct {
	Habits int
	Sent   int
	Failed int
}

// Opts holds configuration for a Checker.
type Opts struct {
	HabitTimeout time.Duration
	Clock        func() time.Time
}

// Option configures a Checker.
type Option func(*Opts)

// WithHabitTimeout overrides DefaultHabitTimeout.
func WithHabitTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.HabitTimeout = d
	}
}

// WithClock sets the time source used by RunOnce.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = clock
	}
}

// Checker runs reminder passes over every habit with a reminder.
type Checker struct {
	source       HabitSource
	dispatcher   Dispatcher
	habitTimeout time.Duration
	clock        func() time.Time
}

// NewChecker creates a Checker.
func NewChecker(source HabitSource, dispatcher Dispatcher, opts ...Option) *Checker {
	cfg := Opts{HabitTimeout: DefaultHabitTimeout, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HabitTimeout <= 0 {
		cfg.HabitTimeout = DefaultHabitTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Checker{
		source:       source,
		dispatcher:   dispatcher,
		habitTimeout: cfg.HabitTimeout,
		clock:        cfg.Clock,
	}
}

// RunOnce performs a tick at the checker's current clock time.
func (c *Checker) RunOnce(ctx context.Context) TickReport {
	return c.Tick(ctx, c.clock())
}

// Tick performs one complete pass at now. Each habit is handled in its own
// goroutine under its own timeout, and Tick returns once all of them are done.
func (c *Checker) Tick(ctx context.Context, now time.Time) TickReport {
	habits, err := c.source.ListReminderHabits(ctx)
	if err != nil {
		slog.Error("Checker.Tick: failed to load reminder habits", "error", err)
		return TickReport{}
	}
	slog.Debug("Checker.Tick: evaluating habits", "count", len(habits), "now", now.Format(time.RFC3339))

	var (
		wg     sync.WaitGroup
		sent   atomic.Int64
		failed atomic.Int64
	)
	for _, h := range habits {
		wg.Add(1)
		go func(h models.Habit) {
			defer wg.Done()
			hctx, cancel := context.WithTimeout(ctx, c.habitTimeout)
			defer cancel()

			ok, err := c.checkHabit(hctx, h, now)
			if err != nil {
				failed.Add(1)
				slog.Error("Checker.Tick: habit check failed", "habit_id", h.ID, "error", err)
				return
			}
			if ok {
				sent.Add(1)
			}
		}(h)
	}
	wg.Wait()

	report := TickReport{Habits: len(habits), Sent: int(sent.Load()), Failed: int(failed.Load())}
	if report.Sent > 0 || report.Failed > 0 {
		slog.Info("Checker.Tick: pass complete", "habits", report.Habits, "sent", report.Sent, "failed", report.Failed)
	}
	return report
}

func (c *Checker) checkHabit(ctx context.Context, h models.Habit, now time.Time) (sent bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while checking habit: %v", r)
		}
	}()

	if h.ReminderTime == nil {
		return false, nil
	}
	in := Input{
		Reminder: *h.ReminderTime,
		Now:      now,
		Lead:     h.LeadMinutes,
		Lag:      h.LagMinutes,
	}

	// Only the post window depends on completion, so skip the lookup otherwise.
	if IsPost(in.Reminder, in.Lead, in.Lag, now) {
		occurrence := PostDate(in.Reminder, in.Lag, now)
		in.Acknowledged = h.AcknowledgedOn(occurrence)
		if !in.Acknowledged {
			completed, err := c.source.HasCompletedResponse(ctx, h.ID, occurrence)
			if err != nil {
				return false, fmt.Errorf("completion lookup failed: %w", err)
			}
			in.Completed = completed
		}
	}

	w := Evaluate(in)
	if w == WindowNone {
		return false, nil
	}
	slog.Debug("Checker.checkHabit: window matched", "habit_id", h.ID, "window", w.String())
	return c.dispatcher.Dispatch(ctx, h, w, now), nil
}
