// Package notify turns reminder windows into delivered notifications.
//
// Cache holds one set of AI-generated message text per habit per day, falling back
// to fixed text when generation fails. Dispatcher picks the message for a window,
// de-duplicates within a minute and hands the result to a messaging.Sender.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowmotion/flowmotion/internal/models"
)

// DefaultGenerateTimeout bounds a single generator call.
const DefaultGenerateTimeout = 10 * time.Second

// Generator produces the message set for a habit. It may return a partially filled set.
type Generator interface {
	GenerateNotificationMessages(ctx context.Context, habitName string) (models.NotificationMessages, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, habitName string) (models.NotificationMessages, error)

func (f GeneratorFunc) GenerateNotificationMessages(ctx context.Context, habitName string) (models.NotificationMessages, error) {
	return f(ctx, habitName)
}

// Clock returns the current time.
type Clock func() time.Time

// FallbackMessages returns the fixed message set used when generation is unavailable.
func FallbackMessages(habitName string) models.NotificationMessages {
	return models.NotificationMessages{
		PreReminder: fmt.Sprintf("Ready for %s? It starts in five minutes.", habitName),
		OnTime:      fmt.Sprintf("It is time for %s. Let us get started!", habitName),
		Overdue:     fmt.Sprintf("Your %s is waiting for you. You can still complete it!", habitName),
	}
}

// fillMissing replaces empty entries of m with their fallback text.
func fillMissing(m models.NotificationMessages, habitName string) models.NotificationMessages {
	fb := FallbackMessages(habitName)
	if m.PreReminder == "" {
		m.PreReminder = fb.PreReminder
	}
	if m.OnTime == "" {
		m.OnTime = fb.OnTime
	}
	if m.Overdue == "" {
		m.Overdue = fb.Overdue
	}
	return m
}

type cacheEntry struct {
	messages models.NotificationMessages
	date     models.Date
	name     string
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock sets the cache's time source.
func WithClock(clock Clock) CacheOption {
	return func(c *Cache) {
		c.clock = clock
	}
}

// WithGenerateTimeout overrides DefaultGenerateTimeout.
func WithGenerateTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Cache stores one message set per habit, valid for the day it was generated.
type Cache struct {
	gen     Generator
	clock   Clock
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	locks   map[string]*sync.Mutex
}

// NewCache creates a Cache. A nil generator means every habit gets the fallback text.
func NewCache(gen Generator, opts ...CacheOption) *Cache {
	c := &Cache{
		gen:     gen,
		clock:   time.Now,
		timeout: DefaultGenerateTimeout,
		entries: make(map[string]cacheEntry),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) habitLock(habitID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[habitID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[habitID] = l
	}
	return l
}

// lookup misses when the entry is from another day or the habit was renamed since.
func (c *Cache) lookup(habit models.Habit, today models.Date) (models.NotificationMessages, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[habit.ID]
	if !ok || e.date != today || e.name != habit.Name {
		return models.NotificationMessages{}, false
	}
	return e.messages, true
}

// Messages returns today's message set for the habit, generating it at most once per day.
// The result is always complete.
func (c *Cache) Messages(ctx context.Context, habit models.Habit) models.NotificationMessages {
	today := models.DateOf(c.clock())
	if m, ok := c.lookup(habit, today); ok {
		return m
	}

	l := c.habitLock(habit.ID)
	l.Lock()
	defer l.Unlock()

	// Another caller may have generated while we waited.
	if m, ok := c.lookup(habit, today); ok {
		return m
	}

	m := c.generate(ctx, habit)

	c.mu.Lock()
	c.entries[habit.ID] = cacheEntry{messages: m, date: today, name: habit.Name}
	c.mu.Unlock()
	return m
}

func (c *Cache) generate(ctx context.Context, habit models.Habit) models.NotificationMessages {
	if c.gen == nil {
		return FallbackMessages(habit.Name)
	}
	gctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	m, err := c.gen.GenerateNotificationMessages(gctx, habit.Name)
	if err != nil {
		slog.Warn("Cache.generate: generator failed, using fallback messages", "habit_id", habit.ID, "error", err)
		return FallbackMessages(habit.Name)
	}
	if !m.Complete() {
		slog.Debug("Cache.generate: partial result, filling gaps with fallback", "habit_id", habit.ID)
	}
	return fillMissing(m, habit.Name)
}

// Purge drops every entry not generated on today and returns how many were removed.
func (c *Cache) Purge(today models.Date) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if e.date != today {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of cached habits.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
