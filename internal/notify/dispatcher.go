package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowmotion/flowmotion/internal/messaging"
	"github.com/flowmotion/flowmotion/internal/models"
	"github.com/flowmotion/flowmotion/internal/reminder"
)

// DefaultSendTimeout bounds a single delivery attempt.
const DefaultSendTimeout = 5 * time.Second

// Notification titles per window.
const (
	TitlePre  = "FlowMotion: Prep Time"
	TitleMain = "FlowMotion: Start Now"
	TitlePost = "FlowMotion: Don't Forget"
)

// minuteKeyLayout identifies a send occasion: habit date, hour and minute.
const minuteKeyLayout = "2006-01-02T15:04"

// MessageSource supplies today's message set for a habit. *Cache implements it.
type MessageSource interface {
	Messages(ctx context.Context, habit models.Habit) models.NotificationMessages
}

// SentLog persists send occasions so dedup survives a restart within the same minute.
type SentLog interface {
	// RecordNotification returns false if the (habitID, key) occasion was already recorded.
	RecordNotification(ctx context.Context, habitID, key string, sentAt time.Time) (bool, error)
}

// Title returns the notification title for a window.
func Title(w reminder.Window) string {
	switch w {
	case reminder.WindowPre:
		return TitlePre
	case reminder.WindowMain:
		return TitleMain
	case reminder.WindowPost:
		return TitlePost
	default:
		return ""
	}
}

// Body picks the message for a window out of a message set.
func Body(m models.NotificationMessages, w reminder.Window) string {
	switch w {
	case reminder.WindowPre:
		return m.PreReminder
	case reminder.WindowMain:
		return m.OnTime
	case reminder.WindowPost:
		return m.Overdue
	default:
		return ""
	}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSentLog enables persisted de-duplication.
func WithSentLog(log SentLog) DispatcherOption {
	return func(d *Dispatcher) {
		d.sentLog = log
	}
}

// WithSendTimeout overrides DefaultSendTimeout.
func WithSendTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.sendTimeout = t
		}
	}
}

// Dispatcher delivers at most one notification per habit per minute.
type Dispatcher struct {
	messages    MessageSource
	sender      messaging.Sender
	sentLog     SentLog
	sendTimeout time.Duration

	mu       sync.Mutex
	lastSent map[string]string
	locks    map[string]*sync.Mutex
}

var _ reminder.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
func NewDispatcher(messages MessageSource, sender messaging.Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		messages:    messages,
		sender:      sender,
		sendTimeout: DefaultSendTimeout,
		lastSent:    make(map[string]string),
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) habitLock(habitID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[habitID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[habitID] = l
	}
	return l
}

// LastSent returns the minute key of the last notification sent for a habit.
func (d *Dispatcher) LastSent(habitID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k, ok := d.lastSent[habitID]
	return k, ok
}

// Dispatch sends the notification for w unless one was already sent for this
// habit in now's minute. It reports whether delivery succeeded. Errors and
// panics are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, habit models.Habit, w reminder.Window, now time.Time) (sent bool) {
	if w == reminder.WindowNone {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatcher.Dispatch: recovered from panic", "habit_id", habit.ID, "window", w.String(), "panic", r)
			sent = false
		}
	}()

	l := d.habitLock(habit.ID)
	l.Lock()
	defer l.Unlock()

	key := now.Format(minuteKeyLayout)
	if last, ok := d.LastSent(habit.ID); ok && last == key {
		slog.Debug("Dispatcher.Dispatch: already sent this minute", "habit_id", habit.ID, "key", key)
		return false
	}

	if d.sentLog != nil {
		recorded, err := d.sentLog.RecordNotification(ctx, habit.ID, key, now)
		switch {
		case err != nil:
			slog.Warn("Dispatcher.Dispatch: failed to record notification, relying on memory", "habit_id", habit.ID, "error", err)
		case !recorded:
			slog.Debug("Dispatcher.Dispatch: notification already recorded", "habit_id", habit.ID, "key", key)
			d.markSent(habit.ID, key)
			return false
		}
	}

	// A failed send is not retried within the same minute.
	d.markSent(habit.ID, key)

	if err := d.Deliver(ctx, habit, w); err != nil {
		slog.Error("Dispatcher.Dispatch: delivery failed", "habit_id", habit.ID, "window", w.String(), "error", err)
		return false
	}
	slog.Info("Dispatcher.Dispatch: notification sent", "habit_id", habit.ID, "habit", habit.Name, "window", w.String())
	return true
}

// Deliver sends the notification for w without any de-duplication.
func (d *Dispatcher) Deliver(ctx context.Context, habit models.Habit, w reminder.Window) error {
	title := Title(w)
	if title == "" {
		return fmt.Errorf("no notification for window %s", w)
	}
	body := Body(d.messages.Messages(ctx, habit), w)

	sctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.sender.Send(sctx, title, body)
}

func (d *Dispatcher) markSent(habitID, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSent[habitID] = key
}
