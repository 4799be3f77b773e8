// Package scheduler runs FlowMotion's periodic jobs on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// EveryMinute drives the reminder tick.
	EveryMinute = "* * * * *"
	// DailyMaintenance runs shortly after local midnight.
	DailyMaintenance = "5 0 * * *"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// Opts configures a Scheduler.
type Opts struct {
	Location *time.Location
	Logger   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Opts)

// WithLocation sets the time zone cron expressions are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) {
		o.Location = loc
	}
}

// WithLogger sets the logger used for job panics and scheduling events.
func WithLogger(l *slog.Logger) Option {
	return func(o *Opts) {
		o.Logger = l
	}
}

// NewScheduler creates and starts a cron scheduler.
// Jobs recover from panics, and a job that is still running when its next
// activation comes around is skipped rather than run concurrently.
func NewScheduler(opts ...Option) *Scheduler {
	cfg := Opts{Location: time.Local, Logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cronLogger{l: cfg.Logger}
	// Use standard 5-field cron parser (min, hour, dom, month, dow)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(cfg.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	if _, err := s.cron.AddFunc(expr, task); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// AddContextJob schedules task with ctx; activations after ctx is done are no-ops.
func (s *Scheduler) AddContextJob(ctx context.Context, expr, name string, task func(context.Context)) error {
	return s.AddJob(expr, func() {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		task(ctx)
		slog.Debug("Scheduler: job finished", "job", name, "duration", time.Since(start))
	})
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish, or for ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
