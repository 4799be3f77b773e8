package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowmotion/flowmotion/internal/models"
)

type responseKey struct {
	habitID string
	date    models.Date
}

type notificationKey struct {
	habitID string
	key     string
}

// InMemoryStore is a Store kept in process memory. Used by tests and dry runs.
type InMemoryStore struct {
	mu            sync.RWMutex
	habits        map[string]models.Habit
	responses     map[responseKey]models.Response
	streaks       map[string]models.StreakData
	notifications map[notificationKey]time.Time
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		habits:        make(map[string]models.Habit),
		responses:     make(map[responseKey]models.Response),
		streaks:       make(map[string]models.StreakData),
		notifications: make(map[notificationKey]time.Time),
	}
}

func (s *InMemoryStore) CreateHabit(_ context.Context, h models.Habit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.habits[h.ID] = cloneHabit(h)
	return nil
}

func (s *InMemoryStore) UpdateHabit(_ context.Context, h models.Habit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.habits[h.ID]
	if !ok {
		return models.ErrHabitNotFound
	}
	h.CreatedAt = old.CreatedAt
	s.habits[h.ID] = cloneHabit(h)
	return nil
}

func (s *InMemoryStore) GetHabit(_ context.Context, id string) (models.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.habits[id]
	if !ok {
		return models.Habit{}, models.ErrHabitNotFound
	}
	return cloneHabit(h), nil
}

func (s *InMemoryStore) ListHabits(_ context.Context, userID string) ([]models.Habit, error) {
	return s.filterHabits(func(h models.Habit) bool { return h.UserID == userID }, func(a, b models.Habit) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}), nil
}

func (s *InMemoryStore) ListReminderHabits(_ context.Context) ([]models.Habit, error) {
	return s.filterHabits(func(h models.Habit) bool {
		return h.Status == models.HabitStatusActive && h.ReminderEnabled && h.ReminderTime != nil
	}, func(a, b models.Habit) bool {
		if a.ReminderTime.MinuteOfDay() != b.ReminderTime.MinuteOfDay() {
			return a.ReminderTime.MinuteOfDay() < b.ReminderTime.MinuteOfDay()
		}
		return a.ID < b.ID
	}), nil
}

func (s *InMemoryStore) filterHabits(keep func(models.Habit) bool, less func(a, b models.Habit) bool) []models.Habit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Habit
	for _, h := range s.habits {
		if keep(h) {
			out = append(out, cloneHabit(h))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (s *InMemoryStore) GetResponse(_ context.Context, habitID string, date models.Date) (*models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.responses[responseKey{habitID, date}]
	if !ok {
		return nil, nil
	}
	r = cloneResponse(r)
	return &r, nil
}

func (s *InMemoryStore) SaveResponse(_ context.Context, r models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := responseKey{r.HabitID, r.Date}
	if old, ok := s.responses[k]; ok {
		r.ID = old.ID
		r.CreatedAt = old.CreatedAt
	}
	s.responses[k] = cloneResponse(r)
	return nil
}

func (s *InMemoryStore) ListResponses(_ context.Context, habitID string, from, to models.Date) ([]models.Response, error) {
	return s.filterResponses(func(r models.Response) bool {
		return r.HabitID == habitID && !r.Date.Before(from) && !r.Date.After(to)
	}), nil
}

func (s *InMemoryStore) ListUserResponses(_ context.Context, userID string, from, to models.Date) ([]models.Response, error) {
	s.mu.RLock()
	owned := make(map[string]bool)
	for id, h := range s.habits {
		if h.UserID == userID {
			owned[id] = true
		}
	}
	s.mu.RUnlock()
	return s.filterResponses(func(r models.Response) bool {
		return owned[r.HabitID] && !r.Date.Before(from) && !r.Date.After(to)
	}), nil
}

func (s *InMemoryStore) filterResponses(keep func(models.Response) bool) []models.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Response
	for _, r := range s.responses {
		if keep(r) {
			out = append(out, cloneResponse(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].HabitID < out[j].HabitID
	})
	return out
}

func (s *InMemoryStore) HasCompletedResponse(_ context.Context, habitID string, date models.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.responses[responseKey{habitID, date}]
	return ok && r.Completed, nil
}

func (s *InMemoryStore) GetStreak(_ context.Context, habitID string) (*models.StreakData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sd, ok := s.streaks[habitID]
	if !ok {
		return nil, nil
	}
	if sd.LastCompleted != nil {
		d := *sd.LastCompleted
		sd.LastCompleted = &d
	}
	return &sd, nil
}

func (s *InMemoryStore) SaveStreak(_ context.Context, sd models.StreakData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sd.LastCompleted != nil {
		d := *sd.LastCompleted
		sd.LastCompleted = &d
	}
	s.streaks[sd.HabitID] = sd
	return nil
}

func (s *InMemoryStore) RecordNotification(_ context.Context, habitID, key string, sentAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := notificationKey{habitID, key}
	if _, exists := s.notifications[k]; exists {
		return false, nil
	}
	s.notifications[k] = sentAt
	return true, nil
}

func (s *InMemoryStore) PruneNotifications(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, at := range s.notifications {
		if at.Before(before) {
			delete(s.notifications, k)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

func cloneHabit(h models.Habit) models.Habit {
	if h.ReminderTime != nil {
		t := *h.ReminderTime
		h.ReminderTime = &t
	}
	if h.Acknowledged != nil {
		d := *h.Acknowledged
		h.Acknowledged = &d
	}
	if h.Measurable != nil {
		m := *h.Measurable
		h.Measurable = &m
	}
	if h.Suggestion != nil {
		sg := *h.Suggestion
		sg.Tools = append([]models.Tool(nil), sg.Tools...)
		h.Suggestion = &sg
	}
	return h
}

func cloneResponse(r models.Response) models.Response {
	if r.Value != nil {
		v := *r.Value
		r.Value = &v
	}
	return r
}
