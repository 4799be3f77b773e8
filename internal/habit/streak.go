package habit

import "github.com/flowmotion/flowmotion/internal/models"

// Streak returns the streak after a response for today.
//
// A completion on the day after the last one extends the run, any other first
// completion of a day starts a new run of one, and a repeated completion on the
// same day leaves the count alone. A non-completion resets the current run but
// keeps LastCompleted. Best never decreases.
func Streak(completed bool, today models.Date, s models.StreakData) models.StreakData {
	if completed {
		switch {
		case s.LastCompleted != nil && *s.LastCompleted == today.AddDays(-1):
			s.Current++
		case s.LastCompleted == nil || *s.LastCompleted != today:
			s.Current = 1
		}
		last := today
		s.LastCompleted = &last
	} else {
		s.Current = 0
	}
	if s.Current > s.Best {
		s.Best = s.Current
	}
	return s
}
