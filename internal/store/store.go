// Package store provides storage backends for FlowMotion.
//
// It includes an in-memory store for tests and dry runs, and SQL-backed stores for
// SQLite (cgo mattn/go-sqlite3 or pure-Go modernc.org/sqlite) and PostgreSQL.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/flowmotion/flowmotion/internal/models"
)

// DSN types returned by DetectDSNType. They double as database/sql driver names.
const (
	DSNTypePostgres = "postgres"
	DSNTypeSQLite   = "sqlite3"
)

// SQLite driver names accepted by WithSQLiteDriver.
const (
	SQLiteDriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
	SQLiteDriverPureGo = "sqlite"  // modernc.org/sqlite
)

// ErrDSNNotSet is returned when a SQL store is opened without a DSN.
var ErrDSNNotSet = errors.New("database DSN not set")

// Store is the persistence interface used by the habit service and the reminder checker.
type Store interface {
	CreateHabit(ctx context.Context, h models.Habit) error
	// UpdateHabit returns models.ErrHabitNotFound if the habit does not exist.
	UpdateHabit(ctx context.Context, h models.Habit) error
	// GetHabit returns models.ErrHabitNotFound if the habit does not exist.
	GetHabit(ctx context.Context, id string) (models.Habit, error)
	// ListHabits returns all of a user's habits, paused ones included, oldest first.
	ListHabits(ctx context.Context, userID string) ([]models.Habit, error)
	// ListReminderHabits returns active habits with reminders enabled and a reminder time, across all users.
	ListReminderHabits(ctx context.Context) ([]models.Habit, error)

	// GetResponse returns (nil, nil) when no response exists for the date.
	GetResponse(ctx context.Context, habitID string, date models.Date) (*models.Response, error)
	// SaveResponse inserts or replaces the response for (HabitID, Date).
	SaveResponse(ctx context.Context, r models.Response) error
	// ListResponses returns a habit's responses with from <= date <= to, oldest first.
	ListResponses(ctx context.Context, habitID string, from, to models.Date) ([]models.Response, error)
	// ListUserResponses returns responses for all of a user's habits with from <= date <= to.
	ListUserResponses(ctx context.Context, userID string, from, to models.Date) ([]models.Response, error)
	HasCompletedResponse(ctx context.Context, habitID string, date models.Date) (bool, error)

	// GetStreak returns (nil, nil) when the habit has no streak row yet.
	GetStreak(ctx context.Context, habitID string) (*models.StreakData, error)
	SaveStreak(ctx context.Context, s models.StreakData) error

	// RecordNotification returns false if (habitID, key) was already recorded.
	RecordNotification(ctx context.Context, habitID, key string, sentAt time.Time) (bool, error)
	// PruneNotifications deletes notification records sent before the cutoff.
	PruneNotifications(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

// Opts holds configuration for SQL stores.
type Opts struct {
	DSN          string
	SQLiteDriver string
}

// Option configures a SQL store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database path or DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDriver selects the SQLite driver: SQLiteDriverCGO (default) or SQLiteDriverPureGo.
func WithSQLiteDriver(driver string) Option {
	return func(o *Opts) {
		o.SQLiteDriver = driver
	}
}

// DetectDSNType returns DSNTypePostgres for postgres URLs and key=value connection
// strings, and DSNTypeSQLite for everything else (file paths and file: URIs).
func DetectDSNType(dsn string) string {
	s := strings.TrimSpace(dsn)
	if strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://") {
		return DSNTypePostgres
	}
	if strings.HasPrefix(s, "file:") || strings.Contains(s, "?") {
		return DSNTypeSQLite
	}
	if strings.Contains(s, "host=") || strings.Contains(s, "dbname=") || strings.Contains(s, "user=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// Open returns a PostgresStore or SQLiteStore depending on the DSN.
func Open(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, ErrDSNNotSet
	}
	if DetectDSNType(cfg.DSN) == DSNTypePostgres {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}
