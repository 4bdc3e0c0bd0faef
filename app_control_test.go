package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dictakey/internal/config"
	"dictakey/internal/ipc"
	"dictakey/internal/journal"
	"dictakey/internal/keymap"
	"dictakey/internal/logsink"
	"dictakey/internal/session"
	"dictakey/internal/shortcut"
	"dictakey/internal/testutil"
)

func decodeStatus(t *testing.T, resp ipc.Response) statusReport {
	t.Helper()
	if resp.ExitCode != 0 {
		t.Fatalf("status ExitCode = %d, stderr = %q", resp.ExitCode, resp.Stderr)
	}
	var report statusReport
	if err := json.Unmarshal(resp.Data, &report); err != nil {
		t.Fatalf("decode status data: %v", err)
	}
	return report
}

func TestHandleStatusReportsTasks(t *testing.T) {
	a, _, _ := newTestApp(t, config.DefaultConfig())

	report := decodeStatus(t, a.Handle(context.Background(), ipc.Request{Command: ipc.CommandStatus}))

	if !report.Running {
		t.Error("Running = false, want true")
	}
	if len(report.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2", len(report.Tasks))
	}
	if report.Tasks[0].Key != "caps_lock" || report.Tasks[1].Key != "x2" {
		t.Errorf("task keys = %q, %q", report.Tasks[0].Key, report.Tasks[1].Key)
	}
	if report.Tasks[0].Mode != "hold" || !report.Tasks[0].Suppress {
		t.Errorf("caps_lock task = %+v", report.Tasks[0])
	}
	if report.PID == 0 {
		t.Error("PID is zero")
	}
}

func TestHandleStartAndStop(t *testing.T) {
	a, _, events := newTestApp(t, config.DefaultConfig())
	ctx := context.Background()

	resp := a.Handle(ctx, ipc.Request{Command: ipc.CommandStart, Key: "Caps Lock"})
	if resp.ExitCode != 0 {
		t.Fatalf("start ExitCode = %d, stderr = %q", resp.ExitCode, resp.Stderr)
	}
	report := decodeStatus(t, a.Handle(ctx, ipc.Request{Command: ipc.CommandStatus}))
	if !report.Tasks[0].Recording {
		t.Fatal("caps_lock not recording after start")
	}
	if report.Tasks[1].Recording {
		t.Fatal("x2 recording after start of caps_lock")
	}

	// A second start on the same key is ignored.
	if resp := a.Handle(ctx, ipc.Request{Command: ipc.CommandStart, Key: "caps_lock"}); resp.ExitCode != 0 {
		t.Fatalf("repeated start ExitCode = %d", resp.ExitCode)
	}

	resp = a.Handle(ctx, ipc.Request{Command: ipc.CommandStop})
	if resp.ExitCode != 0 || resp.Stdout != "stopped 1 sessions\n" {
		t.Fatalf("stop = %+v", resp)
	}
	if !testutil.WaitFor(t, 2*time.Second, func() bool { return len(events.types()) == 2 }) {
		t.Fatalf("events = %v, want begin and finish", events.types())
	}
	if got := events.types(); got[0] != session.Begin || got[1] != session.Finish {
		t.Errorf("events = %v, want [begin finish]", got)
	}
}

func TestHandleStartEmptyKeyUsesFirstBinding(t *testing.T) {
	a, _, _ := newTestApp(t, config.DefaultConfig())

	if resp := a.Handle(context.Background(), ipc.Request{Command: ipc.CommandStart}); resp.ExitCode != 0 {
		t.Fatalf("start ExitCode = %d, stderr = %q", resp.ExitCode, resp.Stderr)
	}
	if !a.currentEngine().Snapshot()[0].Recording {
		t.Error("first binding not recording")
	}
}

func TestHandleStartErrors(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(*App)
		key     string
		want    string
	}{
		{
			name: "unbound key",
			key:  "f13",
			want: `no shortcut bound to "f13"`,
		},
		{
			name: "engine stopped",
			prepare: func(a *App) {
				a.engineMu.Lock()
				a.engine = nil
				a.engineMu.Unlock()
			},
			want: "engine is not running",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, _ := newTestApp(t, config.DefaultConfig())
			if tt.prepare != nil {
				tt.prepare(a)
			}
			resp := a.Handle(context.Background(), ipc.Request{Command: ipc.CommandStart, Key: tt.key})
			if resp.ExitCode == 0 {
				t.Fatal("start succeeded, want failure")
			}
			if !strings.Contains(resp.Stderr, tt.want) {
				t.Errorf("Stderr = %q, want substring %q", resp.Stderr, tt.want)
			}
		})
	}
}

func TestHandleStopWithoutSessions(t *testing.T) {
	a, _, _ := newTestApp(t, config.DefaultConfig())

	resp := a.Handle(context.Background(), ipc.Request{Command: ipc.CommandStop})
	if resp.ExitCode != 0 {
		t.Fatalf("stop ExitCode = %d", resp.ExitCode)
	}
	var data map[string]int
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode stop data: %v", err)
	}
	if data["stopped"] != 0 {
		t.Errorf("stopped = %d, want 0", data["stopped"])
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	a, _, _ := newTestApp(t, config.DefaultConfig())

	resp := a.Handle(context.Background(), ipc.Request{Command: "reboot"})
	if resp.ExitCode == 0 {
		t.Fatal("unknown command succeeded")
	}
	if !strings.Contains(resp.Stderr, "unknown command: reboot") {
		t.Errorf("Stderr = %q", resp.Stderr)
	}
}

func TestHandlePing(t *testing.T) {
	a, _, _ := newTestApp(t, config.DefaultConfig())

	if resp := a.Handle(context.Background(), ipc.Request{Command: ipc.CommandPing}); resp.Stdout != "pong\n" {
		t.Errorf("ping = %+v", resp)
	}
}

func TestHandleStatusIncludesJournalAndWarnings(t *testing.T) {
	a, _, _ := newTestApp(t, config.DefaultConfig())
	ctx := context.Background()

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open() error = %v", err)
	}
	a.journal = j
	sink := journalSink(j)
	base := time.Now().Add(-time.Minute)
	for i, typ := range []session.EventType{session.Begin, session.Finish} {
		ev := session.Event{Type: typ, SessionID: "s1", Key: "caps_lock", At: base.Add(time.Duration(i) * time.Second)}
		if err := sink.Deliver(ctx, ev); err != nil {
			t.Fatalf("Deliver() error = %v", err)
		}
	}
	a.warnings.Add(logsink.Entry{Level: "WARN", Message: "[WARN-CONFIG] unknown key dropped"})

	report := decodeStatus(t, a.Handle(ctx, ipc.Request{Command: ipc.CommandStatus, Limit: 1}))

	if len(report.Recent) != 1 {
		t.Fatalf("len(Recent) = %d, want 1", len(report.Recent))
	}
	if report.Recent[0].Type != string(session.Finish) {
		t.Errorf("Recent[0].Type = %q, want newest (finish)", report.Recent[0].Type)
	}
	if len(report.Warnings) != 1 || report.Warnings[0].Message != "[WARN-CONFIG] unknown key dropped" {
		t.Errorf("Warnings = %+v", report.Warnings)
	}
	if report.JournalError != "" {
		t.Errorf("JournalError = %q", report.JournalError)
	}
}

func TestHandleStatusReportsJournalError(t *testing.T) {
	a, _, _ := newTestApp(t, config.DefaultConfig())

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	a.journal = j

	report := decodeStatus(t, a.Handle(context.Background(), ipc.Request{Command: ipc.CommandStatus}))
	if report.JournalError == "" {
		t.Error("JournalError empty for a closed journal")
	}
}

func TestResolveKey(t *testing.T) {
	tasks := []shortcut.TaskState{
		{Key: "caps_lock", Class: "keyboard"},
		{Key: "x2", Class: "mouse"},
	}
	tests := []struct {
		raw  string
		want keymap.ID
	}{
		{raw: "", want: ""},
		{raw: "caps_lock", want: "caps_lock"},
		{raw: " Caps Lock ", want: "caps_lock"},
		{raw: "capslock", want: "caps_lock"},
		{raw: "forward", want: "x2"},
		{raw: "F13", want: "f13"},
	}
	for _, tt := range tests {
		if got := resolveKey(tasks, tt.raw); got != tt.want {
			t.Errorf("resolveKey(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestFormatStatus(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	report := statusReport{
		PID:     42,
		Running: true,
		Tasks: []shortcut.TaskState{
			{Key: "caps_lock", Class: "keyboard", Mode: "hold", Recording: true, Since: now.Add(-1500 * time.Millisecond)},
			{Key: "x2", Class: "mouse", Mode: "click"},
		},
		EventsURL:     "ws://127.0.0.1:6017/ws",
		EventClients:  1,
		DroppedEvents: 3,
	}

	out := formatStatus(report, now)
	for _, want := range []string{
		"dictakey running (pid 42)",
		"caps_lock",
		"recording 1.5s",
		"idle",
		"events: ws://127.0.0.1:6017/ws (1 clients)",
		"dropped events: 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("formatStatus() missing %q in:\n%s", want, out)
		}
	}
	if empty := formatStatus(statusReport{}, now); !strings.Contains(empty, "no shortcuts bound") {
		t.Errorf("formatStatus(empty) = %q", empty)
	}
}
