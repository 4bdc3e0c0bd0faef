// dictakey is the shortcut daemon of the dictation client. It watches the
// configured keys and mouse buttons and reports recording sessions to local
// subscribers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dictakey/internal/ipc"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("dictakey", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file (default: per-user config dir)")
	logLevel := fs.String("log-level", "", "override log_level from the config file (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(Options{
		ConfigPath:       *configPath,
		LogLevelOverride: *logLevel,
		Stderr:           stderr,
	})
	if err := app.startup(ctx); err != nil {
		code := 1
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			slog.Info("[DEBUG-SINGLE] another instance is already running, exiting")
			code = 0
		} else {
			slog.Error("[lifecycle] startup failed", "error", err)
		}
		_ = app.shutdown()
		return code
	}

	<-ctx.Done()
	slog.Info("[lifecycle] shutdown requested")
	if err := app.shutdown(); err != nil {
		return 1
	}
	return 0
}
