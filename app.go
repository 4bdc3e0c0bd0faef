package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"dictakey/internal/config"
	"dictakey/internal/input"
	"dictakey/internal/ipc"
	"dictakey/internal/journal"
	"dictakey/internal/logsink"
	"dictakey/internal/session"
	"dictakey/internal/shortcut"
	"dictakey/internal/wsserver"
)

// Options configures NewApp.
type Options struct {
	// ConfigPath overrides config.DefaultPath.
	ConfigPath string
	// LogLevelOverride wins over log_level from the config file when set.
	LogLevelOverride string
	// Stderr receives the text log. Nil selects os.Stderr.
	Stderr io.Writer
}

// Test seams.
var (
	newInputSourceFn = func() input.Source { return input.NewHookSource() }
	pingControlFn    = ipc.Ping
)

// App owns the daemon's services. The shortcut engine is rebuilt on every
// config reload; the broadcaster, sinks and control server live for the
// whole process.
type App struct {
	opts       Options
	configPath string

	// Lock ordering (outer -> inner): reloadMu -> engineMu -> cfgMu.
	reloadMu sync.Mutex
	cfgMu    sync.RWMutex
	cfg      config.Config

	engineMu sync.RWMutex
	engine   *shortcut.Engine

	logLevel *slog.LevelVar
	logFile  *os.File
	warnings *logsink.Ring

	broadcaster *session.Broadcaster
	hub         *wsserver.Hub
	journal     *journal.Journal
	control     *ipc.Server
	watcher     *config.Watcher

	shuttingDown atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// NewApp creates the daemon. Nothing is started until startup.
func NewApp(opts Options) *App {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &App{
		opts:     opts,
		logLevel: new(slog.LevelVar),
		warnings: logsink.NewRing(logsink.DefaultCapacity),
	}
}

func (a *App) configSnapshot() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

func (a *App) setConfigSnapshot(cfg config.Config) {
	a.cfgMu.Lock()
	a.cfg = cfg
	a.cfgMu.Unlock()
}

func (a *App) currentEngine() *shortcut.Engine {
	a.engineMu.RLock()
	defer a.engineMu.RUnlock()
	return a.engine
}

func (a *App) controlPipeName() string {
	if name := a.configSnapshot().Control.Pipe; name != "" {
		return name
	}
	return ipc.DefaultPipeName()
}
