package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"dictakey/internal/keymap"
	"dictakey/internal/shortcut"
)

const (
	maxConfigFileBytes   int64 = 1 << 20 // 1MB
	maxRenameRetry             = 10
	renameRetryBaseDelay       = 10 * time.Millisecond

	appDirName = "dictakey"

	defaultWorkers     = 4
	maxWorkers         = 32
	defaultSettleDelay = 50 * time.Millisecond
	maxThreshold       = 10 * time.Second
	defaultEventsAddr  = "127.0.0.1:6017"
	defaultLogLevel    = "info"
)

// Test seams.
var (
	userHomeDirFn      = os.UserHomeDir
	defaultConfigDirFn = defaultConfigDir
)

// ShortcutConfig is one entry of the shortcuts list.
type ShortcutConfig struct {
	Key  string `yaml:"key" json:"key"`
	Type string `yaml:"type,omitempty" json:"type,omitempty"`
	// Enabled defaults to true when omitted.
	Enabled  *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	HoldMode bool  `yaml:"hold_mode" json:"hold_mode"`
	Suppress bool  `yaml:"suppress" json:"suppress"`
	// Restore defaults to true for an unsuppressed lock key.
	Restore *bool `yaml:"restore,omitempty" json:"restore,omitempty"`
	// Threshold overrides the global threshold for this shortcut.
	Threshold Duration `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

// IsEnabled reports whether the shortcut should be bound.
func (s ShortcutConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ControlConfig configures the local control channel.
type ControlConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Pipe overrides the default per-user pipe or socket name.
	Pipe string `yaml:"pipe,omitempty" json:"pipe,omitempty"`
}

// EventsConfig configures the websocket session event feed.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// JournalConfig configures the sqlite activation journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Path defaults to journal.db next to the config file.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// Config is the daemon configuration file.
type Config struct {
	Threshold   Duration         `yaml:"threshold" json:"threshold"`
	Workers     int              `yaml:"workers" json:"workers"`
	SettleDelay Duration         `yaml:"settle_delay" json:"settle_delay"`
	LogLevel    string           `yaml:"log_level" json:"log_level"`
	LogFile     string           `yaml:"log_file,omitempty" json:"log_file,omitempty"`
	Shortcuts   []ShortcutConfig `yaml:"shortcuts" json:"shortcuts"`
	Control     ControlConfig    `yaml:"control" json:"control"`
	Events      EventsConfig     `yaml:"events" json:"events"`
	Journal     JournalConfig    `yaml:"journal" json:"journal"`
}

// DefaultConfig binds caps lock and the forward mouse button, both held to
// record and both hidden from other applications.
func DefaultConfig() Config {
	return Config{
		Threshold:   Duration(shortcut.DefaultThreshold),
		Workers:     defaultWorkers,
		SettleDelay: Duration(defaultSettleDelay),
		LogLevel:    defaultLogLevel,
		Shortcuts: []ShortcutConfig{
			{Key: "caps_lock", Type: "keyboard", HoldMode: true, Suppress: true},
			{Key: "x2", Type: "mouse", HoldMode: true, Suppress: true},
		},
		Control: ControlConfig{Enabled: true},
		Events:  EventsConfig{Enabled: true, Addr: defaultEventsAddr},
		Journal: JournalConfig{Enabled: true},
	}
}

// DefaultPath resolves the config file path, preferring LOCALAPPDATA over
// APPDATA and falling back to ~/.config, then to the temp dir.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, appDirName, "config.yaml")
}

// JournalPath returns the journal database path for cfg loaded from
// configPath.
func JournalPath(cfg Config, configPath string) string {
	if p := strings.TrimSpace(cfg.Journal.Path); p != "" {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), "journal.db")
}

// Load reads the config file. A missing or empty file yields defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnsureFile writes the default config if missing and returns the loaded
// config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
		slog.Info("[DEBUG-CONFIG] default config written", "path", path)
	}
	return cfg, nil
}

// Save validates cfg and writes it atomically. Writes are confined to the
// default config directory.
func Save(path string, cfg Config) (Config, error) {
	normalizedPath, err := validateConfigPath(path)
	if err != nil {
		return cfg, err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(normalizedPath, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", path)
	return cfg, nil
}

// Bindings converts the enabled shortcuts into engine bindings. cfg must
// already be validated.
func (c Config) Bindings() []shortcut.Binding {
	out := make([]shortcut.Binding, 0, len(c.Shortcuts))
	for _, s := range c.Shortcuts {
		if !s.IsEnabled() {
			continue
		}
		class, err := keymap.ParseClass(s.Type)
		if err != nil {
			continue
		}
		threshold := s.Threshold.Std()
		if threshold <= 0 {
			threshold = c.Threshold.Std()
		}
		out = append(out, shortcut.Binding{
			Key:       keymap.ID(s.Key),
			Class:     class,
			HoldMode:  s.HoldMode,
			Suppress:  s.Suppress,
			Restore:   s.Restore != nil && *s.Restore,
			Threshold: threshold,
		})
	}
	return out
}

// ParseLogLevel maps a config log level to slog. Unknown values map to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// applyDefaultsAndValidate normalizes cfg in place. Recoverable problems are
// logged and replaced by defaults; conflicting shortcuts are an error.
func applyDefaultsAndValidate(cfg *Config) error {
	defaults := DefaultConfig()

	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	} else if cfg.Threshold.Std() > maxThreshold {
		slog.Warn("[WARN-CONFIG] threshold too large, clamping", "threshold", cfg.Threshold.Std(), "max", maxThreshold)
		cfg.Threshold = Duration(maxThreshold)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	} else if cfg.Workers > maxWorkers {
		slog.Warn("[WARN-CONFIG] workers too large, clamping", "workers", cfg.Workers, "max", maxWorkers)
		cfg.Workers = maxWorkers
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaults.SettleDelay
	}

	switch level := strings.ToLower(strings.TrimSpace(cfg.LogLevel)); level {
	case "":
		cfg.LogLevel = defaults.LogLevel
	case "debug", "info", "warn", "warning", "error":
		cfg.LogLevel = level
	default:
		slog.Warn("[WARN-CONFIG] unknown log_level, using default", "logLevel", cfg.LogLevel, "default", defaults.LogLevel)
		cfg.LogLevel = defaults.LogLevel
	}

	validateEventsAddr(cfg)
	return normalizeShortcuts(cfg)
}

func validateEventsAddr(cfg *Config) {
	addr := strings.TrimSpace(cfg.Events.Addr)
	if addr == "" {
		cfg.Events.Addr = defaultEventsAddr
		return
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		slog.Warn("[WARN-CONFIG] invalid events.addr, using default", "addr", addr, "error", err)
		cfg.Events.Addr = defaultEventsAddr
		return
	}
	cfg.Events.Addr = addr
}

// knownKey reports whether id exists on at least one supported platform.
func knownKey(class keymap.Class, id keymap.ID) bool {
	if class == keymap.Mouse {
		return keymap.MouseButtons().Has(id)
	}
	return keymap.VirtualKeys().Has(id) || keymap.UiohookKeys().Has(id)
}

func normalizeShortcuts(cfg *Config) error {
	type slot struct {
		class keymap.Class
		key   keymap.ID
	}
	seen := make(map[slot]int, len(cfg.Shortcuts))
	kept := cfg.Shortcuts[:0]

	for i, s := range cfg.Shortcuts {
		class, err := keymap.ParseClass(s.Type)
		if err != nil {
			slog.Warn("[WARN-CONFIG] shortcut dropped", "index", i, "key", s.Key, "error", err)
			continue
		}
		if strings.TrimSpace(s.Key) == "" {
			slog.Warn("[WARN-CONFIG] shortcut dropped: empty key", "index", i)
			continue
		}
		id := keymap.Normalize(class, s.Key)
		if !knownKey(class, id) {
			slog.Warn("[WARN-CONFIG] shortcut dropped: unknown key", "index", i, "key", s.Key, "type", class.String())
			continue
		}
		s.Key = string(id)
		s.Type = class.String()
		if s.Threshold < 0 {
			s.Threshold = 0
		}

		toggle := keymap.IsToggle(id)
		if s.Restore == nil {
			restore := toggle && !s.Suppress
			s.Restore = &restore
		} else if *s.Restore && !toggle {
			slog.Warn("[WARN-CONFIG] restore only applies to lock keys, disabling", "key", s.Key)
			off := false
			s.Restore = &off
		} else if *s.Restore && s.Suppress {
			// A suppressed hold never reaches the OS, so the lock state is
			// unchanged and a restore would flip it.
			slog.Warn("[WARN-CONFIG] restore conflicts with suppress, disabling restore", "key", s.Key)
			off := false
			s.Restore = &off
		}

		if s.IsEnabled() {
			k := slot{class, id}
			if prev, dup := seen[k]; dup {
				return fmt.Errorf("shortcuts[%d]: %s %s already bound by shortcuts[%d]", i, class, id, prev)
			}
			seen[k] = i
		}
		kept = append(kept, s)
	}
	cfg.Shortcuts = kept
	return nil
}

// atomicWrite writes via temp file + rename so readers never see a partial
// file, retrying the rename on Windows where indexers briefly lock files.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}
	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

func validateConfigPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("config path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}
	dir, err := defaultConfigDirFn()
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	if !pathWithinDir(abs, absDir) {
		return "", fmt.Errorf("save config: path outside config directory: %q", abs)
	}
	return abs, nil
}

func defaultConfigDir() (string, error) {
	return filepath.Dir(DefaultPath()), nil
}

// pathWithinDir rejects traversal and, on Windows, cross-drive paths.
func pathWithinDir(path string, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
