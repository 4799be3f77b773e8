package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowmotion/flowmotion/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type countingGenerator struct {
	calls atomic.Int32
	out   models.NotificationMessages
	err   error
	delay time.Duration
}

func (g *countingGenerator) GenerateNotificationMessages(ctx context.Context, name string) (models.NotificationMessages, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return models.NotificationMessages{}, ctx.Err()
		}
	}
	return g.out, g.err
}

func testHabit(id, name string) models.Habit {
	return models.Habit{ID: id, Name: name}
}

func TestCacheIdempotentWithinDay(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 4, 8, 55, 0, 0, time.UTC)}
	gen := &countingGenerator{out: models.NotificationMessages{PreReminder: "p", OnTime: "o", Overdue: "d"}}
	c := NewCache(gen, WithClock(clock.Now))

	first := c.Messages(context.Background(), testHabit("h1", "Yoga"))
	clock.Set(clock.Now().Add(10 * time.Minute))
	second := c.Messages(context.Background(), testHabit("h1", "Yoga"))

	if gen.calls.Load() != 1 {
		t.Errorf("expected one generator call, got %d", gen.calls.Load())
	}
	if first != second {
		t.Errorf("cached values differ: %+v vs %+v", first, second)
	}
}

func TestCacheRegeneratesOnNewDay(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 4, 23, 59, 0, 0, time.UTC)}
	gen := &countingGenerator{out: models.NotificationMessages{PreReminder: "p", OnTime: "o", Overdue: "d"}}
	c := NewCache(gen, WithClock(clock.Now))

	c.Messages(context.Background(), testHabit("h1", "Yoga"))
	clock.Set(clock.Now().Add(2 * time.Minute))
	c.Messages(context.Background(), testHabit("h1", "Yoga"))

	if gen.calls.Load() != 2 {
		t.Errorf("expected regeneration after midnight, got %d calls", gen.calls.Load())
	}
}

func TestCacheFallbackOnError(t *testing.T) {
	gen := &countingGenerator{err: errors.New("quota exceeded")}
	c := NewCache(gen)

	got := c.Messages(context.Background(), testHabit("h1", "Yoga"))
	want := FallbackMessages("Yoga")
	if got != want {
		t.Errorf("expected fallback %+v, got %+v", want, got)
	}
	if got.PreReminder != "Ready for Yoga? It starts in five minutes." ||
		got.OnTime != "It is time for Yoga. Let us get started!" ||
		got.Overdue != "Your Yoga is waiting for you. You can still complete it!" {
		t.Errorf("unexpected fallback text %+v", got)
	}
}

func TestCacheFillsPartialResult(t *testing.T) {
	gen := &countingGenerator{out: models.NotificationMessages{OnTime: "Go stretch!"}}
	c := NewCache(gen)

	got := c.Messages(context.Background(), testHabit("h1", "Yoga"))
	if got.OnTime != "Go stretch!" {
		t.Errorf("generated key should be kept, got %q", got.OnTime)
	}
	fb := FallbackMessages("Yoga")
	if got.PreReminder != fb.PreReminder || got.Overdue != fb.Overdue {
		t.Errorf("missing keys should use fallback, got %+v", got)
	}
	if !got.Complete() {
		t.Error("result must always be complete")
	}
}

func TestCacheNilGenerator(t *testing.T) {
	c := NewCache(nil)
	if got := c.Messages(context.Background(), testHabit("h1", "Read")); got != FallbackMessages("Read") {
		t.Errorf("expected fallback without generator, got %+v", got)
	}
}

func TestCacheGeneratorTimeout(t *testing.T) {
	gen := &countingGenerator{delay: time.Second, out: models.NotificationMessages{PreReminder: "late"}}
	c := NewCache(gen, WithGenerateTimeout(20*time.Millisecond))

	start := time.Now()
	got := c.Messages(context.Background(), testHabit("h1", "Yoga"))
	if time.Since(start) > 500*time.Millisecond {
		t.Error("generator call was not bounded")
	}
	if got != FallbackMessages("Yoga") {
		t.Errorf("expected fallback after timeout, got %+v", got)
	}
}

func TestCacheConcurrentCallersGenerateOnce(t *testing.T) {
	gen := &countingGenerator{delay: 20 * time.Millisecond, out: models.NotificationMessages{PreReminder: "p", OnTime: "o", Overdue: "d"}}
	c := NewCache(gen)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Messages(context.Background(), testHabit("h1", "Yoga"))
		}()
	}
	wg.Wait()
	if gen.calls.Load() != 1 {
		t.Errorf("expected a single generation for concurrent callers, got %d", gen.calls.Load())
	}
}

func TestCachePurge(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)}
	gen := &countingGenerator{out: models.NotificationMessages{PreReminder: "p", OnTime: "o", Overdue: "d"}}
	c := NewCache(gen, WithClock(clock.Now))

	c.Messages(context.Background(), testHabit("h1", "Yoga"))
	c.Messages(context.Background(), testHabit("h2", "Read"))
	if c.Len() != 2 {
		t.Fatalf("expected two entries, got %d", c.Len())
	}
	if n := c.Purge(models.DateOf(clock.Now())); n != 0 {
		t.Errorf("today's entries should survive, purged %d", n)
	}

	tomorrow := models.DateOf(clock.Now()).AddDays(1)
	if n := c.Purge(tomorrow); n != 2 {
		t.Errorf("expected two stale entries purged, got %d", n)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache after purge, got %d", c.Len())
	}
}

func TestCacheRegeneratesAfterRename(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)}
	gen := &countingGenerator{out: models.NotificationMessages{PreReminder: "p", OnTime: "o", Overdue: "d"}}
	c := NewCache(gen, WithClock(clock.Now))

	c.Messages(context.Background(), testHabit("h1", "Yoga"))
	c.Messages(context.Background(), testHabit("h1", "Yoga"))
	if gen.calls.Load() != 1 {
		t.Fatalf("expected one generation, got %d", gen.calls.Load())
	}
	c.Messages(context.Background(), testHabit("h1", "Morning Yoga"))
	if gen.calls.Load() != 2 {
		t.Errorf("renamed habit should regenerate, got %d calls", gen.calls.Load())
	}
	if c.Len() != 1 {
		t.Errorf("rename should replace the entry, got %d entries", c.Len())
	}
}
