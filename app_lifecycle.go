package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"dictakey/internal/config"
	"dictakey/internal/ipc"
	"dictakey/internal/journal"
	"dictakey/internal/session"
	"dictakey/internal/wsserver"
)

const (
	shutdownWaitTimeout   = 10 * time.Second
	broadcastDrainTimeout = 2 * time.Second
)

// startup loads the config, claims the control endpoint and starts every
// service. A config that fails to load is reported and replaced by defaults.
// It returns ipc.ErrAlreadyRunning when another daemon answers the control
// endpoint.
func (a *App) startup(ctx context.Context) error {
	a.configPath = a.opts.ConfigPath
	if a.configPath == "" {
		a.configPath = config.DefaultPath()
	}

	cfg, loadErr := a.loadConfig()
	if loadErr != nil {
		cfg = config.DefaultConfig()
	}
	a.setConfigSnapshot(cfg)
	a.initLogging(cfg)
	if loadErr != nil {
		slog.Warn("[WARN-CONFIG] failed to load config, running with defaults", "path", a.configPath, "error", loadErr)
	}

	pipeName := a.controlPipeName()
	if cfg.Control.Enabled {
		if err := pingControlFn(pipeName); err == nil {
			return ipc.ErrAlreadyRunning
		}
	}

	bgCtx, cancel := context.WithCancel(ctx)
	a.bgCancel = cancel

	sinks := a.startSinks(bgCtx, cfg)
	a.broadcaster = session.NewBroadcaster(session.DefaultQueueSize, sinks...)

	if err := a.swapEngine(cfg); err != nil {
		return err
	}

	if cfg.Control.Enabled {
		server := ipc.NewServer(pipeName, ipc.HandlerFunc(a.Handle))
		if err := server.Start(); err != nil {
			if errors.Is(err, ipc.ErrAlreadyRunning) {
				return err
			}
			slog.Warn("[ipc] control server unavailable", "endpoint", pipeName, "error", err)
		} else {
			a.control = server
		}
	}

	watcher, err := config.Watch(a.configPath, config.DefaultReloadDebounce, a.onConfigChange)
	if err != nil {
		slog.Warn("[WARN-CONFIG] config watch unavailable, edits need a restart", "path", a.configPath, "error", err)
	} else {
		a.watcher = watcher
	}

	slog.Info("[lifecycle] dictakey started",
		"config", a.configPath,
		"bindings", len(cfg.Bindings()),
		"control", a.control != nil,
		"events", a.hub != nil,
		"journal", a.journal != nil,
	)
	return nil
}

// loadConfig writes the default file on first run. Explicit paths outside
// the default config dir are only read.
func (a *App) loadConfig() (config.Config, error) {
	if filepath.Clean(a.configPath) == filepath.Clean(config.DefaultPath()) {
		return config.EnsureFile(a.configPath)
	}
	return config.Load(a.configPath)
}

// startSinks starts the optional event consumers. Each one that fails is
// logged and left out; the daemon runs without it.
func (a *App) startSinks(ctx context.Context, cfg config.Config) []session.Sink {
	var sinks []session.Sink
	if cfg.Events.Enabled {
		hub := wsserver.NewHub(wsserver.HubOptions{Addr: cfg.Events.Addr})
		if err := hub.Start(ctx); err != nil {
			slog.Warn("[DEBUG-WS] event feed unavailable", "addr", cfg.Events.Addr, "error", err)
		} else {
			a.hub = hub
			sinks = append(sinks, hub)
		}
	}
	if cfg.Journal.Enabled {
		path := config.JournalPath(cfg, a.configPath)
		j, err := journal.Open(path)
		if err != nil {
			slog.Warn("[journal] journal unavailable", "path", path, "error", err)
		} else {
			a.journal = j
			sinks = append(sinks, journalSink(j))
			a.startJournalPrune(ctx, j)
		}
	}
	return sinks
}

// shutdown stops every service in dependency order: config watch and control
// first so nothing restarts the engine, then the engine (which cancels open
// sessions), then the broadcaster so those cancellations reach the sinks,
// and the sinks last. Safe on a partially started App and idempotent.
func (a *App) shutdown() error {
	a.shutdownOnce.Do(func() {
		a.shuttingDown.Store(true)
		var errs []error

		if a.watcher != nil {
			if err := a.watcher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("config watcher: %w", err))
			}
		}
		if a.control != nil {
			if err := a.control.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("control server: %w", err))
			}
		}

		a.engineMu.Lock()
		if a.engine != nil {
			if err := a.engine.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("engine: %w", err))
			}
			a.engine = nil
		}
		a.engineMu.Unlock()

		if a.broadcaster != nil {
			if err := a.broadcaster.Close(broadcastDrainTimeout); err != nil {
				errs = append(errs, fmt.Errorf("broadcaster: %w", err))
			}
		}
		if a.hub != nil {
			if err := a.hub.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("event feed: %w", err))
			}
		}

		if a.bgCancel != nil {
			a.bgCancel()
		}
		if !waitWithTimeout(a.bgWG.Wait, shutdownWaitTimeout) {
			slog.Warn("[lifecycle] timed out waiting for background workers during shutdown")
		}

		if a.journal != nil {
			if err := a.journal.Close(); err != nil {
				errs = append(errs, fmt.Errorf("journal: %w", err))
			}
		}

		a.shutdownErr = errors.Join(errs...)
		if a.shutdownErr != nil {
			slog.Warn("[lifecycle] shutdown finished with errors", "error", a.shutdownErr)
		} else {
			slog.Info("[lifecycle] dictakey stopped")
		}

		if a.logFile != nil {
			_ = a.logFile.Close()
		}
	})
	return a.shutdownErr
}

// waitWithTimeout reports whether waitFn returned within timeout. The
// waiting goroutine may outlive timeout; it is only used at process exit.
func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
