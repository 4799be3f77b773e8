package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/flowmotion/flowmotion/internal/habit"
	"github.com/flowmotion/flowmotion/internal/models"
)

// RespondCmd records whether a habit was done today.
type RespondCmd struct {
	Habit string `arg:"" help:"Habit ID or unique ID prefix."`
	No    bool   `short:"n" help:"Record that the habit was not done (default is done)."`
	Value string `short:"v" help:"Value for a measurable habit."`
	Notes string `help:"Notes for today's response."`
}

func (c *RespondCmd) request() (habit.RespondRequest, error) {
	req := habit.RespondRequest{Completed: !c.No, Notes: c.Notes}
	if c.Value != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
		if err != nil {
			return req, fmt.Errorf("invalid value %q: %w", c.Value, err)
		}
		req.Value = &v
	}
	return req, nil
}

func (c *RespondCmd) Run(app *App) error {
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
	res, err := svc.Respond(app.ctx, h.ID, req)
	if err != nil {
		return err
	}
	return app.emit(res, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s\nstreak: %d (best %d)\n", res.Feedback, res.Streak.Current, res.Streak.Best)
		return err
	})
}

// AckCmd suppresses today's overdue notification for a habit.
type AckCmd struct {
	Habit string `arg:"" help:"Habit ID or unique ID prefix."`
}

func (c *AckCmd) Run(app *App) error {
	svc, st, err := app.service()
	if err != nil {
		return err
	}
	defer st.Close()

	h, err := app.resolveHabit(svc, c.Habit)
	if err != nil {
		return err
	}
	h, err = svc.Acknowledge(app.ctx, h.ID)
	if err != nil {
		return err
	}
	return app.emit(h, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "acknowledged %s for %s\n", h.Name, h.Acknowledged)
		return err
	})
}

type StatsCmd struct{}

func (c *StatsCmd) Run(app *App) error {
	svc, st, err := app.service()
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := svc.Stats(app.ctx, app.User)
	if err != nil {
		return err
	}
	return app.emit(stats, func(w io.Writer) error {
		fmt.Fprintf(w, "active habits: %d\ncompletion rate: %.1f%%\n\n", stats.TotalHabits, stats.CompletionRate)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DATE\tDONE\tANSWERED")
		for _, d := range stats.Daily {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", d.Date, d.Completed, d.Total)
		}
		return tw.Flush()
	})
}

type HistoryCmd struct {
	Days int `short:"d" help:"Number of days to show, today included." default:"30"`
}

func (c *HistoryCmd) Run(app *App) error {
	if c.Days <= 0 {
		return errors.New("--days must be positive")
	}
	svc, st, err := app.service()
	if err != nil {
		return err
	}
	defer st.Close()

	hist, err := svc.History(app.ctx, app.User, c.Days)
	if err != nil {
		return err
	}
	return app.emit(hist, func(w io.Writer) error {
		if len(hist.Habits) == 0 {
			_, err := fmt.Fprintln(w, "no habits yet")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
		fmt.Fprint(tw, "HABIT\t")
		for _, d := range hist.Dates {
			fmt.Fprintf(tw, "%02d\t", d.Day)
		}
		fmt.Fprintln(tw)
		for _, h := range hist.Habits {
			fmt.Fprintf(tw, "%s\t", h.Habit.Name)
			for _, d := range hist.Dates {
				fmt.Fprintf(tw, "%s\t", historyMark(h.Responses, d))
			}
			fmt.Fprintln(tw)
		}
		return tw.Flush()
	})
}

func historyMark(responses map[models.Date]models.Response, d models.Date) string {
	r, ok := responses[d]
	switch {
	case !ok:
		return "·"
	case r.Completed:
		return "✓"
	default:
		return "✗"
	}
}

type UpcomingCmd struct{}

func (c *UpcomingCmd) Run(app *App) error {
	svc, st, err := app.service()
	if err != nil {
		return err
	}
	defer st.Close()

	reminders, err := svc.Upcoming(app.ctx, app.User, app.now())
	if err != nil {
		return err
	}
	return app.emit(reminders, func(w io.Writer) error {
		if len(reminders) == 0 {
			_, err := fmt.Fprintln(w, "nothing left for today")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tHABIT\tIN")
		for _, r := range reminders {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ReminderTime, r.Name, delayLabel(r.DelayMS))
		}
		return tw.Flush()
	})
}

func delayLabel(ms int64) string {
	if ms <= 0 {
		return "now"
	}
	mins := (ms + 59_999) / 60_000
	if mins < 60 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dh%02dm", mins/60, mins%60)
}

type NextCmd struct{}

func (c *NextCmd) Run(app *App) error {
	svc, st, err := app.service()
	if err != nil {
		return err
	}
	defer st.Close()

	next, err := svc.Next(app.ctx, app.User, app.now())
	if err != nil {
		return err
	}
	return app.emit(next, func(w io.Writer) error {
		if next.Habit == nil {
			fmt.Fprintln(w, "no reminders set")
		} else {
			day := "today"
			if next.Tomorrow {
				day = "tomorrow"
			}
			fmt.Fprintf(w, "%s %s at %s\n", next.Habit.Name, day, next.At.Format(models.TimeOfDayLayout))
		}
		_, err := fmt.Fprintf(w, "%s %s\n", next.Mood.Emoji(), next.Feedback)
		return err
	})
}

// SuggestCmd prints a category, tools and time estimate for a prospective habit.
type SuggestCmd struct {
	Name        string `arg:"" help:"Habit name."`
	Description string `arg:"" optional:"" help:"What the habit involves."`
}

func (c *SuggestCmd) Run(app *App) error {
	svc, st, err := app.service()
	if err != nil {
		return err
	}
	defer st.Close()

	sg := svc.Suggest(app.ctx, c.Name, c.Description)
	return app.emit(sg, func(w io.Writer) error {
		printSuggestion(w, sg)
		return nil
	})
}
