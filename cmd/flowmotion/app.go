package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flowmotion/flowmotion/internal/genai"
	"github.com/flowmotion/flowmotion/internal/habit"
	"github.com/flowmotion/flowmotion/internal/models"
	"github.com/flowmotion/flowmotion/internal/notify"
	"github.com/flowmotion/flowmotion/internal/store"
)

const (
	appDirName        = "flowmotion"
	defaultDBFileName = "flowmotion.db"
	logFileName       = "flowmotion.log"
)

// Globals are flags shared by every command.
type Globals struct {
	StateDir string `name:"state-dir" help:"State directory for the database, lock and logs (default $XDG_STATE_HOME/flowmotion)." env:"FLOWMOTION_STATE_DIR"`
	DBDSN    string `name:"db-dsn" help:"SQLite path or PostgreSQL connection string (default <state-dir>/flowmotion.db)." env:"DATABASE_URL"`
	DBDriver string `name:"db-driver" help:"SQLite driver: sqlite3 (cgo) or sqlite (pure Go)." enum:"sqlite3,sqlite" default:"sqlite3" env:"FLOWMOTION_DB_DRIVER"`
	User     string `help:"User whose habits are managed." default:"local" env:"FLOWMOTION_USER"`
	Timezone string `help:"IANA time zone for reminder times (default local)." env:"FLOWMOTION_TZ"`
	JSON     bool   `help:"Print machine-readable JSON."`

	OpenAIAPIKey  string `name:"openai-api-key" help:"OpenAI API key; without one, fallback texts are used." env:"OPENAI_API_KEY"`
	OpenAIModel   string `name:"openai-model" help:"Chat model for reminder texts and suggestions." env:"OPENAI_MODEL"`
	OpenAIBaseURL string `name:"openai-base-url" help:"Alternative OpenAI-compatible endpoint." env:"OPENAI_BASE_URL"`
	GenAIDebug    bool   `name:"genai-debug" help:"Write every model request and response under <state-dir>/debug." env:"FLOWMOTION_GENAI_DEBUG"`

	LogLevel  string `name:"log-level" help:"Log level." enum:"debug,info,warn,error" default:"warn" env:"FLOWMOTION_LOG_LEVEL"`
	LogFormat string `name:"log-format" help:"Log format." enum:"text,json,pretty" default:"text" env:"FLOWMOTION_LOG_FORMAT"`
	LogFile   string `name:"log-file" help:"Also write logs to this rotating file (\"state\" for <state-dir>/logs)." env:"FLOWMOTION_LOG_FILE"`
}

// App is the runtime handed to every command.
type App struct {
	*Globals
	ctx context.Context
	out io.Writer
}

// stateDir resolves the state directory.
func (a *App) stateDir() string {
	if a.StateDir != "" {
		return a.StateDir
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", appDirName)
	}
	return appDirName
}

func (a *App) location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

func (a *App) now() time.Time {
	loc, err := a.location()
	if err != nil {
		return time.Now()
	}
	return time.Now().In(loc)
}

func (a *App) openStore() (store.Store, error) {
	dsn := a.DBDSN
	if dsn == "" {
		dsn = filepath.Join(a.stateDir(), defaultDBFileName)
	}
	slog.Debug("App.openStore: opening store", "type", store.DetectDSNType(dsn), "driver", a.DBDriver)
	return store.Open(store.WithSQLiteDSN(dsn), store.WithSQLiteDriver(a.DBDriver))
}

// genaiClient returns nil when no API key is configured.
func (a *App) genaiClient() (*genai.Client, error) {
	if a.OpenAIAPIKey == "" {
		return nil, nil
	}
	opts := []genai.Option{genai.WithAPIKey(a.OpenAIAPIKey)}
	if a.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(a.OpenAIModel))
	}
	if a.OpenAIBaseURL != "" {
		opts = append(opts, genai.WithBaseURL(a.OpenAIBaseURL))
	}
	if a.GenAIDebug {
		opts = append(opts, genai.WithDebugMode(a.stateDir()))
	}
	return genai.NewClient(opts...)
}

// generator returns the notification text generator, or nil for fallback texts only.
func (a *App) generator() (notify.Generator, error) {
	cli, err := a.genaiClient()
	if err != nil || cli == nil {
		return nil, err
	}
	return cli, nil
}

// service opens the store and builds a habit service. Callers close the store.
func (a *App) service() (*habit.Service, store.Store, error) {
	loc, err := a.location()
	if err != nil {
		return nil, nil, err
	}
	st, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	opts := []habit.Option{habit.WithLocation(loc)}
	cli, err := a.genaiClient()
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if cli != nil {
		opts = append(opts, habit.WithSuggester(cli))
	}
	return habit.NewService(st, opts...), st, nil
}

// resolveHabit finds one of the user's habits by full ID or unique ID prefix.
func (a *App) resolveHabit(svc *habit.Service, ref string) (models.Habit, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return models.Habit{}, models.ErrHabitNotFound
	}
	habits, err := svc.List(a.ctx, a.User)
	if err != nil {
		return models.Habit{}, err
	}
	var matches []models.Habit
	for _, h := range habits {
		if h.ID == ref {
			return h, nil
		}
		if strings.HasPrefix(h.ID, ref) {
			matches = append(matches, h)
		}
	}
	switch len(matches) {
	case 0:
		return models.Habit{}, fmt.Errorf("%w: %s", models.ErrHabitNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return models.Habit{}, fmt.Errorf("habit reference %q is ambiguous (%d matches)", ref, len(matches))
	}
}

// emit prints v as JSON when --json is set, otherwise calls text.
func (a *App) emit(v any, text func(w io.Writer) error) error {
	if a.JSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(a.out)
}

// resolveLogFile expands the "state" shorthand.
func resolveLogFile(g *Globals) string {
	if g.LogFile != "state" {
		return g.LogFile
	}
	a := &App{Globals: g}
	return filepath.Join(a.stateDir(), "logs", logFileName)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
