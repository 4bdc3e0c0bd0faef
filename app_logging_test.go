package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dictakey/internal/config"
)

func TestResolveLogFile(t *testing.T) {
	configPath := filepath.Join("base", "dictakey", "config.yaml")
	abs, err := filepath.Abs(filepath.Join("var", "log", "dictakey.log"))
	if err != nil {
		t.Fatalf("Abs() error = %v", err)
	}

	tests := []struct {
		name    string
		logFile string
		want    string
	}{
		{name: "unset", logFile: "", want: ""},
		{name: "blank", logFile: "   ", want: ""},
		{name: "relative", logFile: "dictakey.log", want: filepath.Join("base", "dictakey", "dictakey.log")},
		{name: "absolute", logFile: abs, want: abs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveLogFile(tt.logFile, configPath); got != tt.want {
				t.Errorf("resolveLogFile(%q) = %q, want %q", tt.logFile, got, tt.want)
			}
		})
	}
}

func TestEffectiveLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		override string
		cfgLevel string
		want     slog.Level
	}{
		{name: "config", cfgLevel: "warn", want: slog.LevelWarn},
		{name: "override wins", override: "debug", cfgLevel: "error", want: slog.LevelDebug},
		{name: "unknown falls back to info", cfgLevel: "loud", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewApp(Options{LogLevelOverride: tt.override})
			cfg := config.DefaultConfig()
			cfg.LogLevel = tt.cfgLevel
			if got := a.effectiveLogLevel(cfg); got != tt.want {
				t.Errorf("effectiveLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInitLoggingWritesFileAndTeesWarnings(t *testing.T) {
	keepDefaultLogger(t)

	var stderr bytes.Buffer
	a := NewApp(Options{Stderr: &stderr})
	a.configPath = filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.DefaultConfig()
	cfg.LogFile = filepath.Join("logs", "dictakey.log")

	a.initLogging(cfg)
	t.Cleanup(func() { _ = a.logFile.Close() })

	slog.Info("[lifecycle] hello")
	slog.Debug("[lifecycle] hidden")
	slog.Warn("[WARN-CONFIG] unknown key dropped", "key", "f99")

	if !strings.Contains(stderr.String(), "hello") || strings.Contains(stderr.String(), "hidden") {
		t.Errorf("stderr = %q", stderr.String())
	}
	raw, err := os.ReadFile(filepath.Join(filepath.Dir(a.configPath), "logs", "dictakey.log"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(raw), "unknown key dropped") {
		t.Errorf("log file = %q", raw)
	}
	warnings := a.warnings.Snapshot()
	if len(warnings) != 1 || warnings[0].Attrs["key"] != "f99" {
		t.Errorf("teed warnings = %+v", warnings)
	}
}

func TestInitLoggingSurvivesUnopenableFile(t *testing.T) {
	keepDefaultLogger(t)

	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var stderr bytes.Buffer
	a := NewApp(Options{Stderr: &stderr})
	a.configPath = filepath.Join(dir, "config.yaml")
	cfg := config.DefaultConfig()
	// A regular file in the parent path makes MkdirAll fail on every OS.
	cfg.LogFile = filepath.Join(blocker, "dictakey.log")

	a.initLogging(cfg)

	if a.logFile != nil {
		t.Fatal("logFile set for an unopenable path")
	}
	if !strings.Contains(stderr.String(), "log file unavailable") {
		t.Errorf("stderr = %q", stderr.String())
	}
	if a.warnings.Len() != 1 {
		t.Errorf("warnings = %d, want 1", a.warnings.Len())
	}
}
