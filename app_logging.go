package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dictakey/internal/config"
	"dictakey/internal/logsink"
)

// initLogging installs the process logger: a text handler on stderr (and the
// optional log file) with warnings teed into a.warnings for the status
// command. A log file that cannot be opened is reported and skipped.
func (a *App) initLogging(cfg config.Config) {
	a.logLevel.Set(a.effectiveLogLevel(cfg))

	w := a.opts.Stderr
	var fileErr error
	if path := resolveLogFile(cfg.LogFile, a.configPath); path != "" {
		f, err := openLogFile(path)
		if err != nil {
			fileErr = err
		} else {
			a.logFile = f
			// stderr first: MultiWriter stops at the first failing writer.
			w = io.MultiWriter(a.opts.Stderr, f)
		}
	}

	base := slog.NewTextHandler(w, &slog.HandlerOptions{Level: a.logLevel})
	slog.SetDefault(slog.New(logsink.NewTeeHandler(base, slog.LevelWarn, a.warnings)))

	if fileErr != nil {
		slog.Warn("[logsink] log file unavailable, logging to stderr only", "error", fileErr)
	}
}

func (a *App) effectiveLogLevel(cfg config.Config) slog.Level {
	if level := strings.TrimSpace(a.opts.LogLevelOverride); level != "" {
		return config.ParseLogLevel(level)
	}
	return config.ParseLogLevel(cfg.LogLevel)
}

// resolveLogFile makes a relative log_file relative to the config dir.
func resolveLogFile(logFile, configPath string) string {
	logFile = strings.TrimSpace(logFile)
	if logFile == "" {
		return ""
	}
	if filepath.IsAbs(logFile) {
		return filepath.Clean(logFile)
	}
	return filepath.Join(filepath.Dir(configPath), logFile)
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory %q: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}
