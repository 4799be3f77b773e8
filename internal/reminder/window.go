// Package reminder decides, minute by minute, which reminder window a habit is in
// and drives one notification pass over all habits with reminders enabled.
package reminder

import (
	"time"

	"github.com/flowmotion/flowmotion/internal/models"
)

// Window is the reminder classification for one habit at one minute.
type Window int

const (
	WindowNone Window = iota
	WindowPre
	WindowMain
	WindowPost
)

func (w Window) String() string {
	switch w {
	case WindowPre:
		return "pre"
	case WindowMain:
		return "main"
	case WindowPost:
		return "post"
	default:
		return "none"
	}
}

// Input carries everything Evaluate needs. Lead and Lag are in minutes.
type Input struct {
	Reminder     models.TimeOfDay
	Now          time.Time
	Lead         int
	Lag          int
	Completed    bool
	Acknowledged bool
}

const minutesPerDay = 24 * 60

// Targets returns the pre, main and post minutes for a reminder, wrapped to a time of day.
func Targets(reminder models.TimeOfDay, lead, lag int) (pre, main, post models.TimeOfDay) {
	// Anchor on an arbitrary UTC date so wrapping follows calendar arithmetic.
	anchor := reminder.On(models.Date{Year: 2000, Month: time.January, Day: 2}, time.UTC)
	pre = models.TimeOfDayOf(anchor.Add(-time.Duration(lead) * time.Minute))
	post = models.TimeOfDayOf(anchor.Add(time.Duration(lag) * time.Minute))
	return pre, reminder, post
}

// Evaluate classifies in.Now against the reminder's three target minutes.
// Matches are exact at minute granularity. When targets coincide, pre wins
// over main and main over post. Post degrades to none if the habit was
// completed or acknowledged for the occurrence it belongs to.
func Evaluate(in Input) Window {
	now := models.TimeOfDayOf(in.Now)
	pre, main, post := Targets(in.Reminder, in.Lead, in.Lag)

	switch now {
	case pre:
		return WindowPre
	case main:
		return WindowMain
	case post:
		if in.Completed || in.Acknowledged {
			return WindowNone
		}
		return WindowPost
	}
	return WindowNone
}

// PostDate returns the date of the reminder occurrence whose post target falls on now.
// When reminder plus lag crosses midnight, the overdue minute belongs to the previous
// day's occurrence.
func PostDate(reminder models.TimeOfDay, lag int, now time.Time) models.Date {
	today := models.DateOf(now)
	if reminder.MinuteOfDay()+lag >= minutesPerDay {
		return today.AddDays(-1)
	}
	return today
}

// IsPost reports whether now falls on the post target, ignoring completion state.
// The checker uses it to decide whether a completion lookup is needed.
func IsPost(reminder models.TimeOfDay, lead, lag int, now time.Time) bool {
	return Evaluate(Input{Reminder: reminder, Now: now, Lead: lead, Lag: lag}) == WindowPost
}
