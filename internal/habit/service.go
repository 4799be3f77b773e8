// Package habit implements habit management, responses, streaks and the read models
// built on top of them.
package habit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flowmotion/flowmotion/internal/models"
)

const (
	// DefaultHistoryDays is the window used by History when days <= 0.
	DefaultHistoryDays = 30
	// StatsDays is the number of days covered by Stats.
	StatsDays = 7
	// RecentResponses is the number of responses returned by Detail.
	RecentResponses = 30
	// DefaultSuggestTimeout bounds a single suggestion request.
	DefaultSuggestTimeout = 15 * time.Second

	// upcomingLookback is how far in the past a missed reminder is still reported by Upcoming.
	upcomingLookback = time.Hour
	// moodLookbackDays is how far back Next looks for the latest response.
	moodLookbackDays = 30

	// DefaultFeedback is shown before any response exists.
	DefaultFeedback = "Start your journey today! 😄"
)

var ErrInvalidStatus = errors.New("status must be active or paused")

// Store is the persistence the service needs. store.Store satisfies it.
type Store interface {
	CreateHabit(ctx context.Context, h models.Habit) error
	UpdateHabit(ctx context.Context, h models.Habit) error
	GetHabit(ctx context.Context, id string) (models.Habit, error)
	ListHabits(ctx context.Context, userID string) ([]models.Habit, error)
	GetResponse(ctx context.Context, habitID string, date models.Date) (*models.Response, error)
	SaveResponse(ctx context.Context, r models.Response) error
	ListResponses(ctx context.Context, habitID string, from, to models.Date) ([]models.Response, error)
	ListUserResponses(ctx context.Context, userID string, from, to models.Date) ([]models.Response, error)
	HasCompletedResponse(ctx context.Context, habitID string, date models.Date) (bool, error)
	GetStreak(ctx context.Context, habitID string) (*models.StreakData, error)
	SaveStreak(ctx context.Context, s models.StreakData) error
}

// Opts configures a Service.
type Opts struct {
	Clock          func() time.Time
	Location       *time.Location
	Suggester      Suggester
	SuggestTimeout time.Duration
}

// Option configures a Service.
type Option func(*Opts)

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = clock
	}
}

// WithLocation sets the zone used to decide what "today" is. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) {
		o.Location = loc
	}
}

// WithSuggester attaches suggestions to newly created habits.
func WithSuggester(s Suggester) Option {
	return func(o *Opts) {
		o.Suggester = s
	}
}

// WithSuggestTimeout bounds each suggestion request.
func WithSuggestTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.SuggestTimeout = d
	}
}

// Service implements habit operations on top of a Store.
type Service struct {
	store          Store
	clock          func() time.Time
	loc            *time.Location
	suggester      Suggester
	suggestTimeout time.Duration
}

// NewService creates a Service.
func NewService(st Store, opts ...Option) *Service {
	cfg := Opts{
		Clock:          time.Now,
		Location:       time.Local,
		SuggestTimeout: DefaultSuggestTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		store:          st,
		clock:          cfg.Clock,
		loc:            cfg.Location,
		suggester:      cfg.Suggester,
		suggestTimeout: cfg.SuggestTimeout,
	}
}

func (s *Service) now() time.Time {
	return s.clock().In(s.loc)
}

func (s *Service) today() models.Date {
	return models.DateOf(s.now())
}

// CreateRequest describes a new habit. Nil offsets take the defaults.
type CreateRequest struct {
	UserID          string
	Name            string
	Question        string
	Kind            models.HabitKind
	Frequency       models.Frequency
	ReminderEnabled bool
	ReminderTime    *models.TimeOfDay
	LeadMinutes     *int
	LagMinutes      *int
	Color           string
	Icon            string
	Notes           string
	Measurable      *models.MeasurableSpec
}

// Create validates and stores a new habit along with an empty streak.
func (s *Service) Create(ctx context.Context, req CreateRequest) (models.Habit, error) {
	now := s.now()
	h := models.Habit{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		Kind:            req.Kind,
		Name:            strings.TrimSpace(req.Name),
		Question:        req.Question,
		Frequency:       req.Frequency,
		ReminderEnabled: req.ReminderEnabled,
		ReminderTime:    req.ReminderTime,
		LeadMinutes:     intOr(req.LeadMinutes, models.DefaultLeadMinutes),
		LagMinutes:      intOr(req.LagMinutes, models.DefaultLagMinutes),
		Color:           req.Color,
		Icon:            req.Icon,
		Notes:           req.Notes,
		Measurable:      req.Measurable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if h.Measurable != nil && h.Kind == "" {
		h.Kind = models.HabitKindMeasurable
	}
	h.ApplyDefaults()
	if err := h.Validate(); err != nil {
		return models.Habit{}, err
	}

	if s.suggester != nil {
		sctx, cancel := context.WithTimeout(ctx, s.suggestTimeout)
		sg, err := s.suggester.SuggestHabit(sctx, h.Name, h.Notes)
		cancel()
		if err != nil {
			slog.Warn("Service.Create: suggestion failed, continuing without", "name", h.Name, "error", err)
		} else {
			h.Suggestion = &sg
		}
	}

	if err := s.store.CreateHabit(ctx, h); err != nil {
		return models.Habit{}, err
	}
	if err := s.store.SaveStreak(ctx, models.StreakData{HabitID: h.ID}); err != nil {
		return models.Habit{}, err
	}
	slog.Info("Service.Create: habit created", "habit_id", h.ID, "user_id", h.UserID, "name", h.Name)
	return h, nil
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// Suggest returns a suggestion from the configured Suggester, or the fallback when
// there is none or it fails.
func (s *Service) Suggest(ctx context.Context, name, description string) models.Suggestion {
	if s.suggester == nil {
		return FallbackSuggestion(name)
	}
	sctx, cancel := context.WithTimeout(ctx, s.suggestTimeout)
	defer cancel()
	sg, err := s.suggester.SuggestHabit(sctx, name, description)
	if err != nil {
		slog.Warn("Service.Suggest: using fallback", "name", name, "error", err)
		return FallbackSuggestion(name)
	}
	return sg
}

func (s *Service) Get(ctx context.Context, id string) (models.Habit, error) {
	return s.store.GetHabit(ctx, id)
}

func (s *Service) List(ctx context.Context, userID string) ([]models.Habit, error) {
	return s.store.ListHabits(ctx, userID)
}

// UpdateRequest holds the fields to change. Nil fields are left as they are.
type UpdateRequest struct {
	Name            *string
	Question        *string
	Frequency       *models.Frequency
	ReminderEnabled *bool
	ReminderTime    *models.TimeOfDay
	ClearReminder   bool
	LeadMinutes     *int
	LagMinutes      *int
	Color           *string
	Icon            *string
	Notes           *string
	Measurable      *models.MeasurableSpec
}

// Update applies req to the habit and stores it.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (models.Habit, error) {
	h, err := s.store.GetHabit(ctx, id)
	if err != nil {
		return models.Habit{}, err
	}
	if req.Name != nil {
		h.Name = strings.TrimSpace(*req.Name)
	}
	if req.Question != nil {
		h.Question = *req.Question
	}
	if req.Frequency != nil {
		h.Frequency = *req.Frequency
	}
	if req.ReminderEnabled != nil {
		h.ReminderEnabled = *req.ReminderEnabled
	}
	if req.ClearReminder {
		h.ReminderTime = nil
		h.ReminderEnabled = false
	} else if req.ReminderTime != nil {
		t := *req.ReminderTime
		h.ReminderTime = &t
	}
	if req.LeadMinutes != nil {
		h.LeadMinutes = *req.LeadMinutes
	}
	if req.LagMinutes != nil {
		h.LagMinutes = *req.LagMinutes
	}
	if req.Color != nil {
		h.Color = *req.Color
	}
	if req.Icon != nil {
		h.Icon = *req.Icon
	}
	if req.Notes != nil {
		h.Notes = *req.Notes
	}
	if req.Measurable != nil {
		m := *req.Measurable
		h.Measurable = &m
	}
	h.ApplyDefaults()
	if err := h.Validate(); err != nil {
		return models.Habit{}, err
	}
	h.UpdatedAt = s.now()
	if err := s.store.UpdateHabit(ctx, h); err != nil {
		return models.Habit{}, err
	}
	return h, nil
}

// SetStatus pauses or resumes a habit. Paused habits get no reminders.
func (s *Service) SetStatus(ctx context.Context, id string, status models.HabitStatus) (models.Habit, error) {
	if status != models.HabitStatusActive && status != models.HabitStatusPaused {
		return models.Habit{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	h, err := s.store.GetHabit(ctx, id)
	if err != nil {
		return models.Habit{}, err
	}
	if h.Status == status {
		return h, nil
	}
	h.Status = status
	h.UpdatedAt = s.now()
	if err := s.store.UpdateHabit(ctx, h); err != nil {
		return models.Habit{}, err
	}
	slog.Info("Service.SetStatus: habit status changed", "habit_id", id, "status", status)
	return h, nil
}

// RespondRequest is today's answer for a habit. Yes/no habits use Completed,
// measurable habits use Value.
type RespondRequest struct {
	Completed bool
	Value     *float64
	Notes     string
}

// RespondResult is the outcome of Respond.
type RespondResult struct {
	Response models.Response
	Streak   models.StreakData
	Feedback string
}

// Respond records today's response, replacing an earlier one from the same day,
// and updates the streak.
func (s *Service) Respond(ctx context.Context, habitID string, req RespondRequest) (RespondResult, error) {
	h, err := s.store.GetHabit(ctx, habitID)
	if err != nil {
		return RespondResult{}, err
	}
	now := s.now()
	today := models.DateOf(now)

	completed := req.Completed
	var value *float64
	if h.IsMeasurable() {
		if req.Value == nil {
			return RespondResult{}, models.ErrMissingValue
		}
		v := *req.Value
		value = &v
		completed = h.Measurable.Satisfied(v)
	}

	r, err := s.store.GetResponse(ctx, habitID, today)
	if err != nil {
		return RespondResult{}, err
	}
	if r == nil {
		r = &models.Response{ID: uuid.NewString(), HabitID: habitID, Date: today, CreatedAt: now}
	}
	r.Completed = completed
	r.Value = value
	r.Notes = req.Notes
	r.EmotionalState = emotionFor(completed)
	r.Feedback = FeedbackMessage(h.Name, completed)
	if err := s.store.SaveResponse(ctx, *r); err != nil {
		return RespondResult{}, err
	}

	prev, err := s.store.GetStreak(ctx, habitID)
	if err != nil {
		return RespondResult{}, err
	}
	if prev == nil {
		prev = &models.StreakData{HabitID: habitID}
	}
	streak := Streak(completed, today, *prev)
	if err := s.store.SaveStreak(ctx, streak); err != nil {
		return RespondResult{}, err
	}

	slog.Debug("Service.Respond: response recorded", "habit_id", habitID, "date", today.String(),
		"completed", completed, "current_streak", streak.Current)
	return RespondResult{Response: *r, Streak: streak, Feedback: r.Feedback}, nil
}

func emotionFor(completed bool) models.EmotionalState {
	if completed {
		return models.EmotionHappy
	}
	return models.EmotionNeutral
}

// FeedbackMessage returns the encouraging or neutral message for a response.
func FeedbackMessage(name string, completed bool) string {
	if completed {
		return fmt.Sprintf("Encouraging message 😄 - Habit %q completed!", name)
	}
	return fmt.Sprintf("Neutral reminder 😐 - Keep going with %q!", name)
}

// Acknowledge marks today's reminder as seen, which suppresses today's overdue notification.
func (s *Service) Acknowledge(ctx context.Context, habitID string) (models.Habit, error) {
	h, err := s.store.GetHabit(ctx, habitID)
	if err != nil {
		return models.Habit{}, err
	}
	today := s.today()
	if h.AcknowledgedOn(today) {
		return h, nil
	}
	h.Acknowledged = &today
	h.UpdatedAt = s.now()
	if err := s.store.UpdateHabit(ctx, h); err != nil {
		return models.Habit{}, err
	}
	slog.Info("Service.Acknowledge: reminder acknowledged", "habit_id", habitID, "date", today.String())
	return h, nil
}

// DayStat counts a user's responses on one date.
type DayStat struct {
	Date      models.Date `json:"date"`
	Completed int         `json:"completed"`
	Total     int         `json:"total"`
}

// Stats summarizes a user's last StatsDays days.
type Stats struct {
	TotalHabits    int       `json:"total_habits"`
	CompletionRate float64   `json:"completion_rate"`
	Daily          []DayStat `json:"daily_data"`
}

// Stats returns the active habit count, the completion rate over the last StatsDays
// days (today included) as a percentage with one decimal, and per-day counts.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	habits, err := s.store.ListHabits(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, h := range habits {
		if h.Status == models.HabitStatusActive {
			st.TotalHabits++
		}
	}

	today := s.today()
	from := today.AddDays(-(StatsDays - 1))
	responses, err := s.store.ListUserResponses(ctx, userID, from, today)
	if err != nil {
		return Stats{}, err
	}

	byDay := make(map[models.Date]*DayStat, StatsDays)
	for i := 0; i < StatsDays; i++ {
		d := from.AddDays(i)
		st.Daily = append(st.Daily, DayStat{Date: d})
	}
	for i := range st.Daily {
		byDay[st.Daily[i].Date] = &st.Daily[i]
	}

	var completed int
	for _, r := range responses {
		ds, ok := byDay[r.Date]
		if !ok {
			continue
		}
		ds.Total++
		if r.Completed {
			ds.Completed++
			completed++
		}
	}
	st.CompletionRate = percent(completed, len(responses))
	return st, nil
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

// HabitHistory is one habit's responses keyed by date.
type HabitHistory struct {
	Habit     models.Habit                    `json:"habit"`
	Responses map[models.Date]models.Response `json:"responses"`
}

// History is a grid of dates by habits.
type History struct {
	Dates  []models.Date  `json:"dates"`
	Habits []HabitHistory `json:"habits"`
}

// History returns every habit of the user with its responses over the last days days
// (today included). days <= 0 means DefaultHistoryDays.
func (s *Service) History(ctx context.Context, userID string, days int) (History, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	habits, err := s.store.ListHabits(ctx, userID)
	if err != nil {
		return History{}, err
	}
	today := s.today()
	from := today.AddDays(-(days - 1))
	responses, err := s.store.ListUserResponses(ctx, userID, from, today)
	if err != nil {
		return History{}, err
	}

	hist := History{Dates: make([]models.Date, 0, days), Habits: make([]HabitHistory, 0, len(habits))}
	for i := 0; i < days; i++ {
		hist.Dates = append(hist.Dates, from.AddDays(i))
	}
	index := make(map[string]int, len(habits))
	for i, h := range habits {
		index[h.ID] = i
		hist.Habits = append(hist.Habits, HabitHistory{Habit: h, Responses: make(map[models.Date]models.Response)})
	}
	for _, r := range responses {
		if i, ok := index[r.HabitID]; ok {
			hist.Habits[i].Responses[r.Date] = r
		}
	}
	return hist, nil
}

// Detail is the full view of a single habit.
type Detail struct {
	Habit          models.Habit      `json:"habit"`
	Streak         models.StreakData `json:"streak"`
	Today          *models.Response  `json:"today,omitempty"`
	Recent         []models.Response `json:"recent"`
	CompletionRate float64           `json:"completion_rate"`
}

// Detail returns the habit with its streak, today's response, the RecentResponses most
// recent responses (newest first) and its lifetime completion rate.
func (s *Service) Detail(ctx context.Context, habitID string) (Detail, error) {
	h, err := s.store.GetHabit(ctx, habitID)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Habit: h, Streak: models.StreakData{HabitID: habitID}}

	sd, err := s.store.GetStreak(ctx, habitID)
	if err != nil {
		return Detail{}, err
	}
	if sd != nil {
		d.Streak = *sd
	}

	today := s.today()
	all, err := s.store.ListResponses(ctx, habitID, models.Date{Year: 1, Month: time.January, Day: 1}, today)
	if err != nil {
		return Detail{}, err
	}
	var completed int
	for i := range all {
		if all[i].Completed {
			completed++
		}
		if all[i].Date == today {
			r := all[i]
			d.Today = &r
		}
	}
	d.CompletionRate = percent(completed, len(all))

	sort.Slice(all, func(i, j int) bool { return all[i].Date.After(all[j].Date) })
	if len(all) > RecentResponses {
		all = all[:RecentResponses]
	}
	d.Recent = all
	return d, nil
}

// Reminder is an upcoming reminder of a habit not yet completed today.
type Reminder struct {
	HabitID      string           `json:"id"`
	Name         string           `json:"name"`
	Question     string           `json:"question"`
	ReminderTime models.TimeOfDay `json:"reminder_time"`
	Color        string           `json:"color"`
	// DelayMS is the time until the reminder in milliseconds; 0 means it is due now.
	DelayMS int64 `json:"delay_ms"`
}

// Upcoming lists today's reminders that are not completed yet and are either still
// ahead of now or were due within the last hour, ordered by reminder time.
func (s *Service) Upcoming(ctx context.Context, userID string, now time.Time) ([]Reminder, error) {
	habits, err := s.store.ListHabits(ctx, userID)
	if err != nil {
		return nil, err
	}
	now = now.In(s.loc)
	today := models.DateOf(now)

	var out []Reminder
	for _, h := range habits {
		if !h.HasReminder() {
			continue
		}
		done, err := s.store.HasCompletedResponse(ctx, h.ID, today)
		if err != nil {
			return nil, err
		}
		if done {
			continue
		}
		delay := h.ReminderTime.On(today, s.loc).Sub(now)
		if delay <= -upcomingLookback {
			continue
		}
		out = append(out, Reminder{
			HabitID:      h.ID,
			Name:         h.Name,
			Question:     h.Question,
			ReminderTime: *h.ReminderTime,
			Color:        h.Color,
			DelayMS:      max(0, delay.Milliseconds()),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReminderTime.MinuteOfDay() < out[j].ReminderTime.MinuteOfDay()
	})
	return out, nil
}

// NextReminder is the widget view: the next reminder plus the mood of the latest response.
type NextReminder struct {
	Habit    *models.Habit         `json:"habit,omitempty"`
	At       time.Time             `json:"at"`
	Tomorrow bool                  `json:"tomorrow"`
	Mood     models.EmotionalState `json:"emotional_status"`
	Feedback string                `json:"feedback_message"`
}

// Next returns the first active reminder at or after the current minute, or the first
// reminder of tomorrow when none are left today. Habit is nil when the user has no
// active reminders.
func (s *Service) Next(ctx context.Context, userID string, now time.Time) (NextReminder, error) {
	habits, err := s.store.ListHabits(ctx, userID)
	if err != nil {
		return NextReminder{}, err
	}
	now = now.In(s.loc)
	today := models.DateOf(now)
	current := models.TimeOfDayOf(now).MinuteOfDay()

	var reminders []models.Habit
	for _, h := range habits {
		if h.HasReminder() {
			reminders = append(reminders, h)
		}
	}
	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].ReminderTime.MinuteOfDay() < reminders[j].ReminderTime.MinuteOfDay()
	})

	next := NextReminder{Mood: models.EmotionNeutral, Feedback: DefaultFeedback}
	for i := range reminders {
		if reminders[i].ReminderTime.MinuteOfDay() >= current {
			h := reminders[i]
			next.Habit = &h
			next.At = h.ReminderTime.On(today, s.loc)
			break
		}
	}
	if next.Habit == nil && len(reminders) > 0 {
		h := reminders[0]
		next.Habit = &h
		next.At = h.ReminderTime.On(today.AddDays(1), s.loc)
		next.Tomorrow = true
	}

	responses, err := s.store.ListUserResponses(ctx, userID, today.AddDays(-moodLookbackDays), today)
	if err != nil {
		return NextReminder{}, err
	}
	if latest := latestResponse(responses); latest != nil {
		next.Mood = latest.EmotionalState
		if latest.Feedback != "" {
			next.Feedback = latest.Feedback
		}
	}
	return next, nil
}

func latestResponse(responses []models.Response) *models.Response {
	var latest *models.Response
	for i := range responses {
		r := &responses[i]
		if latest == nil || r.Date.After(latest.Date) ||
			(r.Date == latest.Date && r.CreatedAt.After(latest.CreatedAt)) {
			latest = r
		}
	}
	return latest
}
