package main

import (
	"fmt"
	"log/slog"

	"dictakey/internal/config"
	"dictakey/internal/shortcut"
)

// buildEngine creates an engine for cfg on a fresh input source.
func (a *App) buildEngine(cfg config.Config) (*shortcut.Engine, error) {
	src := newInputSourceFn()
	eng, err := shortcut.New(shortcut.Options{
		Source:      src,
		Bindings:    cfg.Bindings(),
		NewSession:  a.broadcaster.Factory(),
		Workers:     cfg.Workers,
		SettleDelay: cfg.SettleDelay.Std(),
	})
	if err != nil {
		if closeErr := src.Close(); closeErr != nil {
			slog.Warn("[shortcut] input source close failed", "error", closeErr)
		}
		return nil, err
	}
	return eng, nil
}

// swapEngine stops the running engine, cancelling its open sessions, and
// starts one for cfg. The old engine is stopped first so two hook sets never
// observe the same event. On failure no engine is running.
func (a *App) swapEngine(cfg config.Config) error {
	a.engineMu.Lock()
	defer a.engineMu.Unlock()

	if old := a.engine; old != nil {
		a.engine = nil
		if err := old.Stop(); err != nil {
			slog.Warn("[shortcut] previous engine stop failed", "error", err)
		}
	}
	if a.shuttingDown.Load() {
		return shortcut.ErrStopped
	}

	next, err := a.buildEngine(cfg)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	if err := next.Start(); err != nil {
		if stopErr := next.Stop(); stopErr != nil {
			slog.Warn("[shortcut] engine stop after failed start", "error", stopErr)
		}
		return fmt.Errorf("start engine: %w", err)
	}
	a.engine = next
	return nil
}

// onConfigChange applies a reloaded config file. An invalid file keeps the
// running config. The control, events, journal and log_file sections are
// read once at startup.
func (a *App) onConfigChange(cfg config.Config, err error) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	if a.shuttingDown.Load() {
		return
	}
	if err != nil {
		slog.Warn("[WARN-CONFIG] reload rejected, keeping current config", "path", a.configPath, "error", err)
		return
	}

	prev := a.configSnapshot()
	if cfg.Control != prev.Control || cfg.Events != prev.Events || cfg.Journal != prev.Journal || cfg.LogFile != prev.LogFile {
		slog.Warn("[WARN-CONFIG] control, events, journal and log_file changes apply after restart")
	}
	cfg.Control, cfg.Events, cfg.Journal, cfg.LogFile = prev.Control, prev.Events, prev.Journal, prev.LogFile

	a.logLevel.Set(a.effectiveLogLevel(cfg))
	a.setConfigSnapshot(cfg)
	if err := a.swapEngine(cfg); err != nil {
		slog.Error("[shortcut] engine reload failed, shortcuts are inactive", "error", err)
		return
	}
	slog.Info("[DEBUG-CONFIG] config reloaded", "path", a.configPath, "bindings", len(cfg.Bindings()))
}
