package main

import (
	"bytes"
	"errors"
	"net"
	"reflect"
	"strings"
	"testing"

	"dictakey/internal/ipc"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    invocation
		wantErr string
	}{
		{
			name: "start with key",
			args: []string{"start", "caps_lock"},
			want: invocation{req: ipc.Request{Command: "start", Key: "caps_lock"}},
		},
		{
			name: "start first binding",
			args: []string{"START"},
			want: invocation{req: ipc.Request{Command: "start"}},
		},
		{
			name: "status with limit and globals",
			args: []string{"-pipe", "/tmp/dictakey-x.sock", "-json", "status", "-n", "5"},
			want: invocation{pipe: "/tmp/dictakey-x.sock", jsonOut: true, req: ipc.Request{Command: "status", Limit: 5}},
		},
		{
			name: "stop",
			args: []string{"stop"},
			want: invocation{req: ipc.Request{Command: "stop"}},
		},
		{name: "no command", args: nil, wantErr: "usage"},
		{name: "unknown command", args: []string{"reboot"}, wantErr: "unknown command: reboot"},
		{name: "too many args", args: []string{"start", "a", "b"}, wantErr: "too many arguments"},
		{name: "stop takes no key", args: []string{"stop", "caps_lock"}, wantErr: "too many arguments"},
		{name: "limit on start", args: []string{"start", "-n", "3"}, wantErr: "usage"},
		{name: "negative limit", args: []string{"status", "-n", "-1"}, wantErr: "must not be negative"},
		{name: "unknown global flag", args: []string{"-x", "status"}, wantErr: "usage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			got, err := parseArgs(tt.args, &stderr)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("parseArgs(%v) error = %v, want %q", tt.args, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseArgs(%v) error = %v", tt.args, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseArgs(%v) = %+v, want %+v", tt.args, got, tt.want)
			}
		})
	}
}

func stubSend(t *testing.T, fn func(string, ipc.Request) (ipc.Response, error)) {
	t.Helper()
	prev := sendFn
	sendFn = fn
	t.Cleanup(func() { sendFn = prev })
}

func TestRunPrintsResponse(t *testing.T) {
	var gotPipe string
	var gotReq ipc.Request
	stubSend(t, func(name string, req ipc.Request) (ipc.Response, error) {
		gotPipe, gotReq = name, req
		return ipc.Response{Stdout: "stopped 1 sessions\n", Data: []byte(`{"stopped":1}`)}, nil
	})

	var stdout, stderr bytes.Buffer
	code := run([]string{"-pipe", "/tmp/dictakey-t.sock", "stop"}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("run() = %d, stderr %q", code, stderr.String())
	}
	if gotPipe != "/tmp/dictakey-t.sock" || gotReq.Command != "stop" {
		t.Errorf("sent %q to %q", gotReq.Command, gotPipe)
	}
	if stdout.String() != "stopped 1 sessions\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunJSONOutput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "payload", data: []byte(`{"stopped":2}`), want: "{\n  \"stopped\": 2\n}\n"},
		{name: "empty", data: nil, want: "{}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubSend(t, func(string, ipc.Request) (ipc.Response, error) {
				return ipc.Response{Stdout: "ignored\n", Data: tt.data}, nil
			})
			var stdout, stderr bytes.Buffer
			if code := run([]string{"-json", "stop"}, &stdout, &stderr); code != 0 {
				t.Fatalf("run() = %d", code)
			}
			if stdout.String() != tt.want {
				t.Errorf("stdout = %q, want %q", stdout.String(), tt.want)
			}
		})
	}
}

func TestRunPropagatesDaemonFailure(t *testing.T) {
	stubSend(t, func(string, ipc.Request) (ipc.Response, error) {
		return ipc.Response{ExitCode: 1, Stderr: "no shortcut bound to \"f13\"\n"}, nil
	})

	var stdout, stderr bytes.Buffer
	if code := run([]string{"start", "f13"}, &stdout, &stderr); code != 1 {
		t.Fatalf("run() = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "no shortcut bound") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRunReportsMissingDaemon(t *testing.T) {
	stubSend(t, func(string, ipc.Request) (ipc.Response, error) {
		return ipc.Response{}, &net.OpError{Op: "dial", Net: "unix", Err: errors.New("connection refused")}
	})

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-pipe", "/tmp/dictakey-none.sock", "ping"}, &stdout, &stderr); code != 1 {
		t.Fatalf("run() = %d, want 1", code)
	}
	if got := stderr.String(); got != "no daemon running on /tmp/dictakey-none.sock\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestRunUsageErrors(t *testing.T) {
	stubSend(t, func(string, ipc.Request) (ipc.Response, error) {
		t.Fatal("send called for invalid arguments")
		return ipc.Response{}, nil
	})

	tests := []struct {
		args []string
		want int
	}{
		{args: nil, want: 2},
		{args: []string{"-h"}, want: 0},
		{args: []string{"bogus"}, want: 2},
	}
	for _, tt := range tests {
		var stdout, stderr bytes.Buffer
		if code := run(tt.args, &stdout, &stderr); code != tt.want {
			t.Errorf("run(%v) = %d, want %d", tt.args, code, tt.want)
		}
	}
	var stderr bytes.Buffer
	run(nil, &bytes.Buffer{}, &stderr)
	if !strings.Contains(stderr.String(), "Usage: dictakeyctl") {
		t.Errorf("usage not printed: %q", stderr.String())
	}
}
