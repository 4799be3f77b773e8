package models

import "time"

// EmotionalState tags how a response felt.
type EmotionalState string

const (
	EmotionHappy   EmotionalState = "happy"
	EmotionNeutral EmotionalState = "neutral"
	EmotionSad     EmotionalState = "sad"
)

// Emoji returns the display glyph for the state.
func (e EmotionalState) Emoji() string {
	switch e {
	case EmotionHappy:
		return "😄"
	case EmotionSad:
		return "😢"
	default:
		return "😐"
	}
}

// Response is the record of whether and how a habit was performed on a given date.
// Storage guarantees at most one Response per (HabitID, Date).
type Response struct {
	ID             string         `json:"id"`
	HabitID        string         `json:"habit_id"`
	Date           Date           `json:"date"`
	Completed      bool           `json:"completed"`
	Value          *float64       `json:"value,omitempty"`
	EmotionalState EmotionalState `json:"emotional_state"`
	Notes          string         `json:"notes,omitempty"`
	Feedback       string         `json:"feedback,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// StreakData holds the consecutive-completion counters for one habit.
type StreakData struct {
	HabitID       string `json:"habit_id"`
	Current       int    `json:"current_streak"`
	Best          int    `json:"best_streak"`
	LastCompleted *Date  `json:"last_completed,omitempty"`
}

// NotificationMessages is the message set shown for one habit on one day.
type NotificationMessages struct {
	PreReminder string `json:"pre_reminder"`
	OnTime      string `json:"on_time"`
	Overdue     string `json:"overdue"`
}

// Complete reports whether all three messages are present.
func (m NotificationMessages) Complete() bool {
	return m.PreReminder != "" && m.OnTime != "" && m.Overdue != ""
}
