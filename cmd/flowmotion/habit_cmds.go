package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/flowmotion/flowmotion/internal/habit"
	"github.com/flowmotion/flowmotion/internal/models"
)

// HabitCmd groups the habit management commands.
type HabitCmd struct {
	Add    HabitAddCmd    `cmd:"" help:"Create a habit."`
	List   HabitListCmd   `cmd:"" default:"withargs" help:"List habits."`
	Show   HabitShowCmd   `cmd:"" help:"Show a habit with its streak and recent responses."`
	Edit   HabitEditCmd   `cmd:"" help:"Change a habit."`
	Pause  HabitPauseCmd  `cmd:"" help:"Pause a habit; paused habits get no reminders."`
	Resume HabitResumeCmd `cmd:"" help:"Resume a paused habit."`
}

// MeasurableFlags describe a numeric target.
type MeasurableFlags struct {
	Unit   string  `help:"Unit for a measurable habit, e.g. pages."`
	Target float64 `help:"Target value for a measurable habit."`
	Mode   string  `help:"How the value is compared with the target: at_least, exactly or at_most (default at_least)."`
}

func (m MeasurableFlags) spec() *models.MeasurableSpec {
	if m.Unit == "" {
		return nil
	}
	return &models.MeasurableSpec{Unit: m.Unit, Target: m.Target, Mode: models.TargetMode(m.Mode)}
}

type HabitAddCmd struct {
	Name      string `arg:"" help:"Habit name."`
	Question  string `short:"q" help:"Question asked when responding, e.g. \"Did you read today?\"."`
	Frequency string `help:"How often the habit is done." enum:"daily,weekly,custom" default:"daily"`
	Remind    string `short:"r" help:"Daily reminder time (HH:MM); enables reminders."`
	Lead      int    `help:"Minutes before the reminder for the prep notification." default:"5"`
	Lag       int    `help:"Minutes after the reminder for the overdue notification." default:"5"`
	Color     string `help:"Display color (#RRGGBB)."`
	Icon      string `help:"Display icon name."`
	Notes     string `help:"Free-form notes, also used as the description for suggestions."`

	MeasurableFlags `embed:""`
}

func (c *HabitAddCmd) Run(app *App) error {
	svc, st, err := app.service()
	if err != nil {
		return err
	}
	defer st.Close()

	req := habit.CreateRequest{
		UserID:      app.User,
		Name:        c.Name,
		Question:    c.Question,
		Frequency:   models.Frequency(c.Frequency),
		LeadMinutes: &c.Lead,
		LagMinutes:  &c.Lag,
		Color:       c.Color,
		Icon:        c.Icon,
		Notes:       c.Notes,
		Measurable:  c.MeasurableFlags.spec(),
	}
	if c.Remind != "" {
		t, err := models.ParseTimeOfDay(c.Remind)
		if err != nil {
			return err
		}
		req.ReminderEnabled = true
		req.ReminderTime = &t
	}

	h, err := svc.Create(app.ctx, req)
	if err != nil {
		return err
	}
	return app.emit(h, func(w io.Writer) error {
		fmt.Fprintf(w, "created %s %s\n", shortID(h.ID), h.Name)
		if h.Suggestion != nil {
			printSuggestion(w, *h.Suggestion)
		}
		return nil
	})
}

type HabitListCmd struct {
	All bool `short:"a" help:"Include paused habits."`
}

func (c *HabitListCmd) Run(app *App) error {
	svc, st, err := app.service()
	if err != nil {
		return err
	}
	defer st.Close()

	habits, err := svc.List(app.ctx, app.User)
	if err != nil {
		return err
	}
	if !c.All {
		active := habits[:0]
		for _, h := range habits {
			if h.Status == models.HabitStatusActive {
				active = append(active, h)
			}
		}
		habits = active
	}
	return app.emit(habits, func(w io.Writer) error {
		if len(habits) == 0 {
			_, err := fmt.Fprintln(w, "no habits yet; add one with: flowmotion habit add <name>")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tKIND\tFREQUENCY\tREMINDER\tSTATUS")
		for _, h := range habits {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", shortID(h.ID), h.Name, kindLabel(h), h.Frequency, reminderLabel(h), h.Status)
		}
		return tw.Flush()
	})
}

type HabitShowCmd struct {
	Habit string `arg:"" help:"Habit ID or unique ID prefix."`
}

func (c *HabitShowCmd) Run(app *App) error {
	svc, st, err := app.service()
	if err != nil {
		return err
	}
	defer st.Close()

	h, err := app.resolveHabit(svc, c.Habit)
	if err != nil {
		return err
	}
	d, err := svc.Detail(app.ctx, h.ID)
	if err != nil {
		return err
	}
	return app.emit(d, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "ID\t%s\n", d.Habit.ID)
		fmt.Fprintf(tw, "Name\t%s\n", d.Habit.Name)
		if d.Habit.Question != "" {
			fmt.Fprintf(tw, "Question\t%s\n", d.Habit.Question)
		}
		fmt.Fprintf(tw, "Kind\t%s\n", kindLabel(d.Habit))
		fmt.Fprintf(tw, "Frequency\t%s\n", d.Habit.Frequency)
		fmt.Fprintf(tw, "Reminder\t%s\n", reminderLabel(d.Habit))
		fmt.Fprintf(tw, "Status\t%s\n", d.Habit.Status)
		fmt.Fprintf(tw, "Streak\t%d (best %d)\n", d.Streak.Current, d.Streak.Best)
		fmt.Fprintf(tw, "Completion\t%.1f%%\n", d.CompletionRate)
		if d.Today != nil {
			fmt.Fprintf(tw, "Today\t%s\n", responseLabel(*d.Today))
		} else {
			fmt.Fprintf(tw, "Today\tnot answered\n")
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if d.Habit.Suggestion != nil {
			printSuggestion(w, *d.Habit.Suggestion)
		}
		if len(d.Recent) > 0 {
			fmt.Fprintln(w, "\nRecent:")
			for _, r := range d.Recent {
				fmt.Fprintf(w, "  %s  %s\n", r.Date, responseLabel(r))
			}
		}
		return nil
	})
}

// HabitEditCmd changes only the flags that were given.
type HabitEditCmd struct {
	Habit string `arg:"" help:"Habit ID or unique ID prefix."`

	Name      string `help:"New name."`
	Question  string `short:"q" help:"New question."`
	Frequency string `help:"New frequency: daily, weekly or custom."`
	Remind    string `short:"r" help:"New reminder time (HH:MM), or \"off\" to remove the reminder."`
	Reminders string `help:"Turn reminders on or off without changing the time."`
	Lead      int    `help:"Minutes before the reminder for the prep notification." default:"-1"`
	Lag       int    `help:"Minutes after the reminder for the overdue notification." default:"-1"`
	Color     string `help:"New color (#RRGGBB)."`
	Icon      string `help:"New icon name."`
	Notes     string `help:"New notes."`

	MeasurableFlags `embed:""`
}

func (c *HabitEditCmd) request() (habit.UpdateRequest, error) {
	var req habit.UpdateRequest
	if c.Name != "" {
		req.Name = &c.Name
	}
	if c.Question != "" {
		req.Question = &c.Question
	}
	if c.Frequency != "" {
		f := models.Frequency(c.Frequency)
		req.Frequency = &f
	}
	switch strings.ToLower(c.Remind) {
	case "":
	case "off", "none":
		req.ClearReminder = true
	default:
		t, err := models.ParseTimeOfDay(c.Remind)
		if err != nil {
			return req, err
		}
		on := true
		req.ReminderTime = &t
		req.ReminderEnabled = &on
	}
	switch strings.ToLower(c.Reminders) {
	case "":
	case "on":
		on := true
		req.ReminderEnabled = &on
	case "off":
		off := false
		req.ReminderEnabled = &off
	default:
		return req, fmt.Errorf("--reminders must be on or off, got %q", c.Reminders)
	}
	if c.Lead >= 0 {
		req.LeadMinutes = &c.Lead
	}
	if c.Lag >= 0 {
		req.LagMinutes = &c.Lag
	}
	if c.Color != "" {
		req.Color = &c.Color
	}
	if c.Icon != "" {
		req.Icon = &c.Icon
	}
	if c.Notes != "" {
		req.Notes = &c.Notes
	}
	req.Measurable = c.MeasurableFlags.spec()
	return req, nil
}

func (c *HabitEditCmd) Run(app *App) error {
	req, err := c.request()
	if err != nil {
		return err
	}
	svc, st, err := app.service()
	if err != nil {
		return err
	}
	defer st.Close()

	h, err := app.resolveHabit(svc, c.Habit)
	if err != nil {
		return err
	}
	h, err = svc.Update(app.ctx, h.ID, req)
	if err != nil {
		return err
	}
	return app.emit(h, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "updated %s %s (reminder %s)\n", shortID(h.ID), h.Name, reminderLabel(h))
		return err
	})
}

type HabitPauseCmd struct {
	Habit string `arg:"" help:"Habit ID or unique ID prefix."`
}

func (c *HabitPauseCmd) Run(app *App) error {
	return setStatus(app, c.Habit, models.HabitStatusPaused)
}

type HabitResumeCmd struct {
	Habit string `arg:"" help:"Habit ID or unique ID prefix."`
}

func (c *HabitResumeCmd) Run(app *App) error {
	return setStatus(app, c.Habit, models.HabitStatusActive)
}

func setStatus(app *App, ref string, status models.HabitStatus) error {
	svc, st, err := app.service()
	if err != nil {
		return err
	}
	defer st.Close()

	h, err := app.resolveHabit(svc, ref)
	if err != nil {
		return err
	}
	h, err = svc.SetStatus(app.ctx, h.ID, status)
	if err != nil {
		return err
	}
	return app.emit(h, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s is now %s\n", h.Name, h.Status)
		return err
	})
}

func kindLabel(h models.Habit) string {
	if h.IsMeasurable() {
		m := h.Measurable
		return fmt.Sprintf("%s %g %s", strings.ReplaceAll(string(m.Mode), "_", " "), m.Target, m.Unit)
	}
	return "yes/no"
}

func reminderLabel(h models.Habit) string {
	if h.ReminderTime == nil {
		return "-"
	}
	if !h.ReminderEnabled {
		return h.ReminderTime.String() + " (off)"
	}
	return fmt.Sprintf("%s (-%dm/+%dm)", h.ReminderTime, h.LeadMinutes, h.LagMinutes)
}

func responseLabel(r models.Response) string {
	label := "not done"
	if r.Completed {
		label = "done"
	}
	if r.Value != nil {
		label = fmt.Sprintf("%s (%g)", label, *r.Value)
	}
	return label + " " + r.EmotionalState.Emoji()
}

func printSuggestion(w io.Writer, s models.Suggestion) {
	fmt.Fprintf(w, "category: %s, estimated time: %s\n", s.Category, s.EstimatedTime)
	for _, t := range s.Tools {
		fmt.Fprintf(w, "  - %s %s\n", t.Name, t.URL)
	}
}
