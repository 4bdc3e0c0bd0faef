//go:build !windows

package ipc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var socketNamePattern = regexp.MustCompile(`(?i)^dictakey-[a-z0-9._-]{1,128}\.sock$`)

// DefaultPipeName returns the per-user socket path under XDG_RUNTIME_DIR, or
// the temp dir when that is unset. DICTAKEY_PIPE overrides it when the value
// is an absolute path whose base name matches dictakey-*.sock.
func DefaultPipeName() string {
	if v, ok := trustedPipeNameFromEnv(); ok {
		return v
	}
	dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "dictakey-"+currentUsername("USER")+".sock")
}

func trustedPipeNameFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv(pipeEnvVar))
	if value == "" {
		return "", false
	}
	if !filepath.IsAbs(value) || !socketNamePattern.MatchString(filepath.Base(value)) {
		slog.Warn("[ipc] "+pipeEnvVar+" rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return filepath.Clean(value), true
}

func dial(name string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", name, timeout)
}

// listen binds a unix socket readable only by the current user. A leftover
// socket file from a crashed daemon is removed; a live one means another
// instance owns the endpoint.
func listen(name string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(name), 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if _, err := os.Lstat(name); err == nil {
		if conn, dialErr := dial(name, time.Second); dialErr == nil {
			_ = conn.Close()
			return nil, ErrAlreadyRunning
		}
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
		slog.Debug("[ipc] removed stale socket", "path", name)
	}
	listener, err := net.Listen("unix", name)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(name, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return listener, nil
}
