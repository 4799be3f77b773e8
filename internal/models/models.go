// Package models defines the core data structures for FlowMotion.
//
// It includes habits (yes/no and measurable), daily responses, streaks and the
// notification message triple shared between the reminder, notify and store modules.
package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// HabitKind tags which variant payload a Habit carries.
type HabitKind string

const (
	// HabitKindYesNo is a plain done/not-done habit.
	HabitKindYesNo HabitKind = "yes_no"
	// HabitKindMeasurable is a habit with a numeric target.
	HabitKindMeasurable HabitKind = "measurable"
)

// Frequency is how often a habit is expected to be performed.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
	FrequencyCustom Frequency = "custom"
)

// HabitStatus is the lifecycle state of a habit. Habits are retired by pausing, never deleted.
type HabitStatus string

const (
	HabitStatusActive HabitStatus = "active"
	HabitStatusPaused HabitStatus = "paused"
)

// TargetMode is how a measurable value is compared against its target.
type TargetMode string

const (
	TargetAtLeast TargetMode = "at_least"
	TargetExactly TargetMode = "exactly"
	TargetAtMost  TargetMode = "at_most"
)

// Defaults applied to new habits.
const (
	DefaultColor         = "#6366f1"
	DefaultIcon          = "check"
	DefaultLeadMinutes   = 5
	DefaultLagMinutes    = 5
	MaxNameLength        = 200
	MaxUnitLength        = 50
	MaxIconLength        = 50
	MaxReminderOffsetMin = 12 * 60
)

var (
	ErrHabitNotFound     = errors.New("habit not found")
	ErrEmptyName         = errors.New("habit name is required")
	ErrNameTooLong       = errors.New("habit name exceeds maximum length")
	ErrEmptyUser         = errors.New("habit owner is required")
	ErrInvalidHabitKind  = errors.New("invalid habit kind")
	ErrInvalidFrequency  = errors.New("invalid frequency")
	ErrInvalidStatus     = errors.New("invalid habit status")
	ErrInvalidColor      = errors.New("color must be a #RRGGBB hex value")
	ErrMissingMeasurable = errors.New("measurable habits require a unit, target and mode")
	ErrUnexpectedTarget  = errors.New("yes/no habits cannot carry a measurable target")
	ErrInvalidTargetMode = errors.New("invalid target mode")
	ErrMissingReminder   = errors.New("reminder time is required when reminders are enabled")
	ErrInvalidOffset     = errors.New("reminder offsets must be between 0 and 720 minutes")
	ErrMissingValue      = errors.New("a value is required to respond to a measurable habit")
)

var colorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// IsValidHabitKind checks if the given kind is supported.
func IsValidHabitKind(k HabitKind) bool {
	switch k {
	case HabitKindYesNo, HabitKindMeasurable:
		return true
	default:
		return false
	}
}

// IsValidFrequency checks if the given frequency is supported.
func IsValidFrequency(f Frequency) bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyCustom:
		return true
	default:
		return false
	}
}

// IsValidTargetMode checks if the given target mode is supported.
func IsValidTargetMode(m TargetMode) bool {
	switch m {
	case TargetAtLeast, TargetExactly, TargetAtMost:
		return true
	default:
		return false
	}
}

// MeasurableSpec is the variant payload of a measurable habit.
type MeasurableSpec struct {
	Unit   string     `json:"unit"`
	Target float64    `json:"target"`
	Mode   TargetMode `json:"mode"`
}

// Satisfied reports whether value meets the target under the target mode.
func (m MeasurableSpec) Satisfied(value float64) bool {
	switch m.Mode {
	case TargetExactly:
		return value == m.Target
	case TargetAtMost:
		return value <= m.Target
	default:
		return value >= m.Target
	}
}

// Tool is a suggested external tool for a habit.
type Tool struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Suggestion is AI-produced guidance attached to a habit when it is created.
type Suggestion struct {
	Category      string `json:"category"`
	Tools         []Tool `json:"suggested_tools"`
	EstimatedTime string `json:"estimated_time"`
}

// Habit is a recurring user-defined activity.
type Habit struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Kind            HabitKind       `json:"kind"`
	Name            string          `json:"name"`
	Question        string          `json:"question"`
	Frequency       Frequency       `json:"frequency"`
	ReminderEnabled bool            `json:"reminder_enabled"`
	ReminderTime    *TimeOfDay      `json:"reminder_time,omitempty"`
	LeadMinutes     int             `json:"lead_minutes"`
	LagMinutes      int             `json:"lag_minutes"`
	Color           string          `json:"color"`
	Icon            string          `json:"icon"`
	Status          HabitStatus     `json:"status"`
	Notes           string          `json:"notes,omitempty"`
	Acknowledged    *Date           `json:"acknowledged,omitempty"`
	Measurable      *MeasurableSpec `json:"measurable,omitempty"`
	Suggestion      *Suggestion     `json:"suggestion,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ApplyDefaults fills zero-valued optional fields with their defaults.
func (h *Habit) ApplyDefaults() {
	if h.Kind == "" {
		h.Kind = HabitKindYesNo
	}
	if h.Frequency == "" {
		h.Frequency = FrequencyDaily
	}
	if h.Status == "" {
		h.Status = HabitStatusActive
	}
	if h.Color == "" {
		h.Color = DefaultColor
	}
	if h.Icon == "" {
		h.Icon = DefaultIcon
	}
	if h.Measurable != nil && h.Measurable.Mode == "" {
		h.Measurable.Mode = TargetAtLeast
	}
}

// Validate performs comprehensive validation on a Habit, including its variant payload.
func (h *Habit) Validate() error {
	if h.UserID == "" {
		return ErrEmptyUser
	}
	name := strings.TrimSpace(h.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if !IsValidHabitKind(h.Kind) {
		return fmt.Errorf("%w: %q", ErrInvalidHabitKind, h.Kind)
	}
	if !IsValidFrequency(h.Frequency) {
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, h.Frequency)
	}
	if h.Status != HabitStatusActive && h.Status != HabitStatusPaused {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, h.Status)
	}
	if !colorRegex.MatchString(h.Color) {
		return ErrInvalidColor
	}
	if h.LeadMinutes < 0 || h.LeadMinutes > MaxReminderOffsetMin || h.LagMinutes < 0 || h.LagMinutes > MaxReminderOffsetMin {
		return ErrInvalidOffset
	}
	if h.ReminderEnabled && h.ReminderTime == nil {
		return ErrMissingReminder
	}

	switch h.Kind {
	case HabitKindMeasurable:
		return h.validateMeasurable()
	case HabitKindYesNo:
		if h.Measurable != nil {
			return ErrUnexpectedTarget
		}
	}
	return nil
}

func (h *Habit) validateMeasurable() error {
	m := h.Measurable
	if m == nil || strings.TrimSpace(m.Unit) == "" {
		return ErrMissingMeasurable
	}
	if len(m.Unit) > MaxUnitLength {
		return fmt.Errorf("%w: unit too long", ErrMissingMeasurable)
	}
	if !IsValidTargetMode(m.Mode) {
		return fmt.Errorf("%w: %q", ErrInvalidTargetMode, m.Mode)
	}
	return nil
}

// IsMeasurable reports whether the habit is the measurable variant.
func (h *Habit) IsMeasurable() bool {
	return h.Kind == HabitKindMeasurable && h.Measurable != nil
}

// HasReminder reports whether the habit should take part in reminder checks.
func (h *Habit) HasReminder() bool {
	return h.Status == HabitStatusActive && h.ReminderEnabled && h.ReminderTime != nil
}

// AcknowledgedOn reports whether the habit's overdue reminder was acknowledged on d.
func (h *Habit) AcknowledgedOn(d Date) bool {
	return h.Acknowledged != nil && *h.Acknowledged == d
}
