package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/flowmotion/flowmotion/internal/lockfile"
	"github.com/flowmotion/flowmotion/internal/models"
	"github.com/flowmotion/flowmotion/internal/notify"
	"github.com/flowmotion/flowmotion/internal/reminder"
	"github.com/flowmotion/flowmotion/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd runs the per-minute reminder tick until the context is cancelled.
type ServeCmd struct {
	SenderFlags `embed:""`

	HabitTimeout          time.Duration `name:"habit-timeout" help:"Upper bound for one habit's check in a tick." default:"45s"`
	SendTimeout           time.Duration `name:"send-timeout" help:"Upper bound for one notification delivery." default:"5s"`
	GenerateTimeout       time.Duration `name:"generate-timeout" help:"Upper bound for generating a day's reminder texts." default:"10s"`
	NotificationRetention time.Duration `name:"notification-retention" help:"How long sent-notification records are kept." default:"168h"`
	Once                  bool          `help:"Run a single tick and exit."`
}

func (c *ServeCmd) Run(app *App) error {
	loc, err := app.location()
	if err != nil {
		return err
	}
	stateDir := app.stateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	lock, err := lockfile.AcquireLock(stateDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("ServeCmd.Run: failed to release lock", "error", err)
		}
	}()

	st, err := app.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	gen, err := app.generator()
	if err != nil {
		return err
	}
	if gen == nil {
		slog.Info("ServeCmd.Run: no OpenAI API key, using fallback reminder texts")
	}

	senders, closeSenders, err := c.SenderFlags.build(app.ctx, app)
	if err != nil {
		return err
	}
	defer closeSenders()

	clock := func() time.Time { return time.Now().In(loc) }
	cache := notify.NewCache(gen, notify.WithClock(clock), notify.WithGenerateTimeout(c.GenerateTimeout))
	disp := notify.NewDispatcher(cache, senders, notify.WithSentLog(st), notify.WithSendTimeout(c.SendTimeout))
	checker := reminder.NewChecker(st, disp, reminder.WithHabitTimeout(c.HabitTimeout), reminder.WithClock(clock))

	if c.Once {
		report := checker.RunOnce(app.ctx)
		return app.emit(report, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "checked %d habits, sent %d, failed %d\n", report.Habits, report.Sent, report.Failed)
			return err
		})
	}

	sched := scheduler.NewScheduler(scheduler.WithLocation(loc), scheduler.WithLogger(slog.Default()))
	if err := sched.AddContextJob(app.ctx, scheduler.EveryMinute, "reminder-tick", func(ctx context.Context) {
		checker.RunOnce(ctx)
	}); err != nil {
		return err
	}
	if err := sched.AddContextJob(app.ctx, scheduler.DailyMaintenance, "maintenance", func(ctx context.Context) {
		maintain(ctx, cache, st, clock(), c.NotificationRetention)
	}); err != nil {
		return err
	}

	slog.Info("ServeCmd.Run: reminder service started",
		"state_dir", stateDir, "location", loc.String(), "channels", senders.Names())
	checker.RunOnce(app.ctx)

	<-app.ctx.Done()
	slog.Info("ServeCmd.Run: shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		slog.Warn("ServeCmd.Run: scheduler did not stop cleanly", "error", err)
	}
	return nil
}

type notificationPruner interface {
	PruneNotifications(ctx context.Context, before time.Time) (int64, error)
}

// maintain drops stale message sets and old notification records.
func maintain(ctx context.Context, cache *notify.Cache, st notificationPruner, now time.Time, retention time.Duration) {
	purged := cache.Purge(models.DateOf(now))
	pruned, err := st.PruneNotifications(ctx, now.Add(-retention))
	if err != nil {
		slog.Error("maintain: failed to prune notification log", "error", err)
	}
	slog.Info("maintain: done", "messages_purged", purged, "notifications_pruned", pruned)
}

// TestNotificationCmd sends the pre, main and post notifications for a habit name.
type TestNotificationCmd struct {
	SenderFlags `embed:""`

	Name string `arg:"" help:"Habit name used for the message texts."`
}

func (c *TestNotificationCmd) Run(app *App) error {
	gen, err := app.generator()
	if err != nil {
		return err
	}
	senders, closeSenders, err := c.SenderFlags.build(app.ctx, app)
	if err != nil {
		return err
	}
	defer closeSenders()

	loc, err := app.location()
	if err != nil {
		return err
	}
	habit := models.Habit{ID: "test-notification", Name: c.Name}
	cache := notify.NewCache(gen, notify.WithClock(func() time.Time { return time.Now().In(loc) }))
	disp := notify.NewDispatcher(cache, senders)

	var sent []string
	for _, w := range []reminder.Window{reminder.WindowPre, reminder.WindowMain, reminder.WindowPost} {
		if err := disp.Deliver(app.ctx, habit, w); err != nil {
			return fmt.Errorf("%s notification: %w", w, err)
		}
		sent = append(sent, w.String())
	}
	return app.emit(map[string]any{"habit": c.Name, "sent": sent, "channels": senders.Names()}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "sent %d notifications for %q via %v\n", len(sent), c.Name, senders.Names())
		return err
	})
}
