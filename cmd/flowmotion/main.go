// Command flowmotion tracks habits and sends reminder notifications around each
// habit's scheduled time.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/flowmotion/flowmotion/internal/logging"
)

const version = "v0.1.0"

// CLI is the root command tree.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Print version and exit."`

	Serve            ServeCmd            `cmd:"" help:"Run the reminder scheduler until interrupted."`
	Habit            HabitCmd            `cmd:"" help:"Manage habits."`
	Respond          RespondCmd          `cmd:"" help:"Record today's response for a habit."`
	Ack              AckCmd              `cmd:"" help:"Acknowledge today's reminder so no overdue notice is sent."`
	Stats            StatsCmd            `cmd:"" help:"Show the last 7 days of completions."`
	History          HistoryCmd          `cmd:"" help:"Show responses per habit and day."`
	Upcoming         UpcomingCmd         `cmd:"" help:"List reminders still due today."`
	Next             NextCmd             `cmd:"" help:"Show the next reminder."`
	TestNotification TestNotificationCmd `cmd:"" name:"test-notification" help:"Send all three reminder notifications for a habit name now."`
	Suggest          SuggestCmd          `cmd:"" help:"Suggest a category, tools and duration for a habit."`
}

func main() {
	loadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadDotEnv loads a .env file from the working directory if there is one.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}
}

// errExit carries kong's requested exit status out of run.
type errExit int

func (e errExit) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func run(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("flowmotion"),
		kong.Description("Habit tracking with timed reminder notifications."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{"version": version},
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { panic(errExit(code)) }),
	)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			code, ok := r.(errExit)
			if !ok {
				panic(r)
			}
			if code != 0 {
				err = code
			}
		}
	}()

	kctx, err := parser.Parse(args)
	if err != nil {
		parser.FatalIfErrorf(err)
		return err
	}

	closer, err := logging.Setup(logging.Options{
		Level:  cli.LogLevel,
		Format: cli.LogFormat,
		File:   resolveLogFile(&cli.Globals),
		Writer: stderr,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	app := &App{Globals: &cli.Globals, ctx: ctx, out: stdout}
	if err := kctx.Run(app); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}
