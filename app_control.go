package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"dictakey/internal/ipc"
	"dictakey/internal/journal"
	"dictakey/internal/keymap"
	"dictakey/internal/logsink"
	"dictakey/internal/shortcut"
)

const statusWarningLimit = 20

// statusReport is the Data payload of the status command.
type statusReport struct {
	PID           int                  `json:"pid"`
	ConfigPath    string               `json:"config_path"`
	Running       bool                 `json:"running"`
	Tasks         []shortcut.TaskState `json:"tasks"`
	Recent        []journal.Entry      `json:"recent,omitempty"`
	JournalError  string               `json:"journal_error,omitempty"`
	Warnings      []logsink.Entry      `json:"warnings,omitempty"`
	DroppedEvents uint64               `json:"dropped_events"`
	EventsURL     string               `json:"events_url,omitempty"`
	EventClients  int                  `json:"event_clients"`
}

// Handle serves control requests.
func (a *App) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandPing:
		return ipc.OK("pong\n", nil)
	case ipc.CommandStart:
		return a.handleStart(req)
	case ipc.CommandStop:
		return a.handleStop()
	case ipc.CommandStatus:
		return a.handleStatus(ctx, req)
	default:
		return ipc.Errorf("%v: %s", ipc.ErrUnknownCommand, req.Command)
	}
}

func (a *App) handleStart(req ipc.Request) ipc.Response {
	eng := a.currentEngine()
	if eng == nil {
		return ipc.Errorf("shortcut engine is not running")
	}
	key := resolveKey(eng.Snapshot(), req.Key)
	if err := eng.StartSession(key); err != nil {
		switch {
		case errors.Is(err, shortcut.ErrUnknownKey):
			return ipc.Errorf("no shortcut bound to %q", req.Key)
		case errors.Is(err, shortcut.ErrStopped):
			return ipc.Errorf("daemon is shutting down")
		default:
			return ipc.Errorf("start failed: %v", err)
		}
	}
	slog.Info("[ipc] session started by control request", "key", string(key))
	return ipc.OK("ok\n", nil)
}

func (a *App) handleStop() ipc.Response {
	eng := a.currentEngine()
	if eng == nil {
		return ipc.OK("stopped 0 sessions\n", map[string]int{"stopped": 0})
	}
	n := eng.StopSessions()
	if n > 0 {
		slog.Info("[ipc] sessions finished by control request", "count", n)
	}
	return ipc.OK(fmt.Sprintf("stopped %d sessions\n", n), map[string]int{"stopped": n})
}

func (a *App) handleStatus(ctx context.Context, req ipc.Request) ipc.Response {
	report := statusReport{
		PID:        os.Getpid(),
		ConfigPath: a.configPath,
		Tasks:      []shortcut.TaskState{},
		Warnings:   a.warnings.Recent(statusWarningLimit),
	}
	if eng := a.currentEngine(); eng != nil {
		report.Running = !eng.Stopping()
		report.Tasks = eng.Snapshot()
	}
	if a.broadcaster != nil {
		report.DroppedEvents = a.broadcaster.Dropped()
	}
	if a.hub != nil {
		report.EventsURL = a.hub.URL()
		report.EventClients = a.hub.ClientCount()
	}
	if a.journal != nil {
		limit := req.Limit
		if limit <= 0 {
			limit = journal.DefaultRecent
		}
		recent, err := a.journal.Recent(ctx, limit)
		if err != nil {
			report.JournalError = err.Error()
		} else {
			report.Recent = recent
		}
	}
	return ipc.OK(formatStatus(report, time.Now()), report)
}

// resolveKey maps a user-typed key name to the canonical id of a bound
// task, using the alias table of each task's class. Unmatched names are
// returned as typed so the engine reports them as unknown.
func resolveKey(tasks []shortcut.TaskState, raw string) keymap.ID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, t := range tasks {
		class, err := keymap.ParseClass(t.Class)
		if err != nil {
			continue
		}
		if string(keymap.Normalize(class, raw)) == t.Key {
			return keymap.ID(t.Key)
		}
	}
	return keymap.ID(strings.ToLower(raw))
}

func formatStatus(r statusReport, now time.Time) string {
	var b strings.Builder
	state := "stopped"
	if r.Running {
		state = "running"
	}
	fmt.Fprintf(&b, "dictakey %s (pid %d)\n", state, r.PID)
	for _, t := range r.Tasks {
		activity := "idle"
		if t.Recording {
			activity = "recording " + now.Sub(t.Since).Round(time.Millisecond).String()
		}
		fmt.Fprintf(&b, "  %-12s %-8s %-5s %s\n", t.Key, t.Class, t.Mode, activity)
	}
	if len(r.Tasks) == 0 {
		b.WriteString("  no shortcuts bound\n")
	}
	if r.EventsURL != "" {
		fmt.Fprintf(&b, "events: %s (%d clients)\n", r.EventsURL, r.EventClients)
	}
	if r.DroppedEvents > 0 {
		fmt.Fprintf(&b, "dropped events: %d\n", r.DroppedEvents)
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "recent warnings: %d (newest: %s)\n", len(r.Warnings), r.Warnings[len(r.Warnings)-1].Message)
	}
	return b.String()
}
