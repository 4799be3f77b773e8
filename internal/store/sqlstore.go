package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/flowmotion/flowmotion/internal/models"
)

// Fixed-width UTC timestamps so text columns sort chronologically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// sqlStore holds the queries shared by the SQLite and Postgres stores. Queries are
// written with '?' placeholders and rebound for Postgres.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	name    string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *sqlStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

const habitColumns = `id, user_id, kind, name, question, frequency, reminder_enabled, reminder_time,
	lead_minutes, lag_minutes, color, icon, status, notes, acknowledged, unit, target, target_mode,
	suggestion, created_at, updated_at`

func habitArgs(h models.Habit) ([]any, error) {
	var reminderTime, acknowledged, unit, targetMode, suggestion any
	var target any
	if h.ReminderTime != nil {
		reminderTime = h.ReminderTime.String()
	}
	if h.Acknowledged != nil {
		acknowledged = h.Acknowledged.String()
	}
	if h.Measurable != nil {
		unit = h.Measurable.Unit
		target = h.Measurable.Target
		targetMode = string(h.Measurable.Mode)
	}
	if h.Suggestion != nil {
		data, err := json.Marshal(h.Suggestion)
		if err != nil {
			return nil, fmt.Errorf("failed to encode suggestion: %w", err)
		}
		suggestion = string(data)
	}
	return []any{
		h.ID, h.UserID, string(h.Kind), h.Name, h.Question, string(h.Frequency), h.ReminderEnabled, reminderTime,
		h.LeadMinutes, h.LagMinutes, h.Color, h.Icon, string(h.Status), h.Notes, acknowledged, unit, target, targetMode,
		suggestion, formatTimestamp(h.CreatedAt), formatTimestamp(h.UpdatedAt),
	}, nil
}

func scanHabit(row rowScanner) (models.Habit, error) {
	var (
		h                                                     models.Habit
		kind, frequency, status, createdAt, updatedAt         string
		reminderTime, acknowledged, unit, targetMode, suggest sql.NullString
		target                                                sql.NullFloat64
	)
	err := row.Scan(
		&h.ID, &h.UserID, &kind, &h.Name, &h.Question, &frequency, &h.ReminderEnabled, &reminderTime,
		&h.LeadMinutes, &h.LagMinutes, &h.Color, &h.Icon, &status, &h.Notes, &acknowledged, &unit, &target, &targetMode,
		&suggest, &createdAt, &updatedAt,
	)
	if err != nil {
		return h, err
	}
	h.Kind = models.HabitKind(kind)
	h.Frequency = models.Frequency(frequency)
	h.Status = models.HabitStatus(status)

	if reminderTime.Valid {
		tod, err := models.ParseTimeOfDay(reminderTime.String)
		if err != nil {
			return h, fmt.Errorf("habit %s: %w", h.ID, err)
		}
		h.ReminderTime = &tod
	}
	if acknowledged.Valid {
		d, err := models.ParseDate(acknowledged.String)
		if err != nil {
			return h, fmt.Errorf("habit %s: %w", h.ID, err)
		}
		h.Acknowledged = &d
	}
	if unit.Valid {
		h.Measurable = &models.MeasurableSpec{
			Unit:   unit.String,
			Target: target.Float64,
			Mode:   models.TargetMode(targetMode.String),
		}
	}
	if suggest.Valid && suggest.String != "" {
		var sg models.Suggestion
		if err := json.Unmarshal([]byte(suggest.String), &sg); err != nil {
			return h, fmt.Errorf("habit %s: failed to decode suggestion: %w", h.ID, err)
		}
		h.Suggestion = &sg
	}
	if h.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return h, fmt.Errorf("habit %s: bad created_at: %w", h.ID, err)
	}
	if h.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return h, fmt.Errorf("habit %s: bad updated_at: %w", h.ID, err)
	}
	return h, nil
}

func (s *sqlStore) CreateHabit(ctx context.Context, h models.Habit) error {
	args, err := habitArgs(h)
	if err != nil {
		return err
	}
	q := `INSERT INTO habits (` + habitColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.exec(ctx, q, args...); err != nil {
		slog.Error(s.name+".CreateHabit failed", "error", err, "habit_id", h.ID)
		return fmt.Errorf("failed to insert habit %s: %w", h.ID, err)
	}
	slog.Debug(s.name+".CreateHabit succeeded", "habit_id", h.ID)
	return nil
}

func (s *sqlStore) UpdateHabit(ctx context.Context, h models.Habit) error {
	args, err := habitArgs(h)
	if err != nil {
		return err
	}
	// Move id from the front to the WHERE clause; created_at is immutable.
	setArgs := make([]any, 0, len(args)-1)
	setArgs = append(setArgs, args[1:len(args)-2]...)
	setArgs = append(setArgs, args[len(args)-1], h.ID)
	q := `UPDATE habits SET user_id = ?, kind = ?, name = ?, question = ?, frequency = ?, reminder_enabled = ?,
		reminder_time = ?, lead_minutes = ?, lag_minutes = ?, color = ?, icon = ?, status = ?, notes = ?,
		acknowledged = ?, unit = ?, target = ?, target_mode = ?, suggestion = ?, updated_at = ?
		WHERE id = ?`
	res, err := s.exec(ctx, q, setArgs...)
	if err != nil {
		slog.Error(s.name+".UpdateHabit failed", "error", err, "habit_id", h.ID)
		return fmt.Errorf("failed to update habit %s: %w", h.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrHabitNotFound
	}
	return nil
}

func (s *sqlStore) GetHabit(ctx context.Context, id string) (models.Habit, error) {
	h, err := scanHabit(s.queryRow(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Habit{}, models.ErrHabitNotFound
	}
	if err != nil {
		return models.Habit{}, fmt.Errorf("failed to get habit %s: %w", id, err)
	}
	return h, nil
}

func (s *sqlStore) listHabits(ctx context.Context, query string, args ...any) ([]models.Habit, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query habits: %w", err)
	}
	defer rows.Close()

	var habits []models.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan habit row: %w", err)
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate habit rows: %w", err)
	}
	return habits, nil
}

func (s *sqlStore) ListHabits(ctx context.Context, userID string) ([]models.Habit, error) {
	return s.listHabits(ctx, `SELECT `+habitColumns+` FROM habits WHERE user_id = ? ORDER BY created_at, id`, userID)
}

func (s *sqlStore) ListReminderHabits(ctx context.Context) ([]models.Habit, error) {
	return s.listHabits(ctx,
		`SELECT `+habitColumns+` FROM habits
		WHERE status = ? AND reminder_enabled = ? AND reminder_time IS NOT NULL
		ORDER BY reminder_time, id`,
		string(models.HabitStatusActive), true)
}

const responseColumns = `id, habit_id, date, completed, value, emotional_state, notes, feedback, created_at`

func scanResponse(row rowScanner) (models.Response, error) {
	var (
		r                           models.Response
		date, emotional, createdAt string
		value                       sql.NullFloat64
	)
	if err := row.Scan(&r.ID, &r.HabitID, &date, &r.Completed, &value, &emotional, &r.Notes, &r.Feedback, &createdAt); err != nil {
		return r, err
	}
	d, err := models.ParseDate(date)
	if err != nil {
		return r, fmt.Errorf("response %s: %w", r.ID, err)
	}
	r.Date = d
	r.EmotionalState = models.EmotionalState(emotional)
	if value.Valid {
		v := value.Float64
		r.Value = &v
	}
	if r.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return r, fmt.Errorf("response %s: bad created_at: %w", r.ID, err)
	}
	return r, nil
}

func (s *sqlStore) GetResponse(ctx context.Context, habitID string, date models.Date) (*models.Response, error) {
	r, err := scanResponse(s.queryRow(ctx,
		`SELECT `+responseColumns+` FROM responses WHERE habit_id = ? AND date = ?`, habitID, date.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	return &r, nil
}

func (s *sqlStore) SaveResponse(ctx context.Context, r models.Response) error {
	var value any
	if r.Value != nil {
		value = *r.Value
	}
	q := `INSERT INTO responses (` + responseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (habit_id, date) DO UPDATE SET
			completed = excluded.completed,
			value = excluded.value,
			emotional_state = excluded.emotional_state,
			notes = excluded.notes,
			feedback = excluded.feedback`
	_, err := s.exec(ctx, q, r.ID, r.HabitID, r.Date.String(), r.Completed, value, string(r.EmotionalState), r.Notes, r.Feedback, formatTimestamp(r.CreatedAt))
	if err != nil {
		slog.Error(s.name+".SaveResponse failed", "error", err, "habit_id", r.HabitID, "date", r.Date.String())
		return fmt.Errorf("failed to save response: %w", err)
	}
	return nil
}

func (s *sqlStore) listResponses(ctx context.Context, query string, args ...any) ([]models.Response, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var out []models.Response
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan response row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate response rows: %w", err)
	}
	return out, nil
}

func (s *sqlStore) ListResponses(ctx context.Context, habitID string, from, to models.Date) ([]models.Response, error) {
	return s.listResponses(ctx,
		`SELECT `+responseColumns+` FROM responses WHERE habit_id = ? AND date >= ? AND date <= ? ORDER BY date`,
		habitID, from.String(), to.String())
}

func (s *sqlStore) ListUserResponses(ctx context.Context, userID string, from, to models.Date) ([]models.Response, error) {
	return s.listResponses(ctx,
		`SELECT r.id, r.habit_id, r.date, r.completed, r.value, r.emotional_state, r.notes, r.feedback, r.created_at
		FROM responses r JOIN habits h ON h.id = r.habit_id
		WHERE h.user_id = ? AND r.date >= ? AND r.date <= ?
		ORDER BY r.date, r.habit_id`,
		userID, from.String(), to.String())
}

func (s *sqlStore) HasCompletedResponse(ctx context.Context, habitID string, date models.Date) (bool, error) {
	var n int
	err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM responses WHERE habit_id = ? AND date = ? AND completed = ?`,
		habitID, date.String(), true).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check completion: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) GetStreak(ctx context.Context, habitID string) (*models.StreakData, error) {
	var (
		sd   models.StreakData
		last sql.NullString
	)
	err := s.queryRow(ctx,
		`SELECT habit_id, current_streak, best_streak, last_completed FROM streaks WHERE habit_id = ?`, habitID).
		Scan(&sd.HabitID, &sd.Current, &sd.Best, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	if last.Valid {
		d, err := models.ParseDate(last.String)
		if err != nil {
			return nil, fmt.Errorf("streak %s: %w", habitID, err)
		}
		sd.LastCompleted = &d
	}
	return &sd, nil
}

func (s *sqlStore) SaveStreak(ctx context.Context, sd models.StreakData) error {
	var last any
	if sd.LastCompleted != nil {
		last = sd.LastCompleted.String()
	}
	_, err := s.exec(ctx,
		`INSERT INTO streaks (habit_id, current_streak, best_streak, last_completed) VALUES (?, ?, ?, ?)
		ON CONFLICT (habit_id) DO UPDATE SET
			current_streak = excluded.current_streak,
			best_streak = excluded.best_streak,
			last_completed = excluded.last_completed`,
		sd.HabitID, sd.Current, sd.Best, last)
	if err != nil {
		slog.Error(s.name+".SaveStreak failed", "error", err, "habit_id", sd.HabitID)
		return fmt.Errorf("failed to save streak: %w", err)
	}
	return nil
}

func (s *sqlStore) RecordNotification(ctx context.Context, habitID, key string, sentAt time.Time) (bool, error) {
	res, err := s.exec(ctx,
		`INSERT INTO notification_log (habit_id, sent_key, sent_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		habitID, key, formatTimestamp(sentAt))
	if err != nil {
		return false, fmt.Errorf("record notification failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record notification failed: %w", err)
	}
	return n == 1, nil
}

func (s *sqlStore) PruneNotifications(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM notification_log WHERE sent_at < ?`, formatTimestamp(before))
	if err != nil {
		return 0, fmt.Errorf("prune notifications failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune notifications failed: %w", err)
	}
	if n > 0 {
		slog.Debug(s.name+".PruneNotifications: removed old records", "count", n)
	}
	return n, nil
}

func (s *sqlStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
