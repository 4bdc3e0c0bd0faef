// Package ipc is the local control channel of the daemon: a per-user named
// pipe on Windows and a unix socket elsewhere, carrying one newline-delimited
// JSON request and one response per connection.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"regexp"
	"strings"
)

// Control commands.
const (
	CommandPing   = "ping"
	CommandStart  = "start"
	CommandStop   = "stop"
	CommandStatus = "status"
)

// ErrUnknownCommand is reported by handlers for a command they do not
// implement.
var ErrUnknownCommand = errors.New("unknown command")

// pipeEnvVar overrides the default endpoint when it matches the platform
// pattern.
const pipeEnvVar = "DICTAKEY_PIPE"

// Request is a single control command.
type Request struct {
	Command string `json:"command"`
	// Key selects the binding for start. Empty selects the first binding.
	Key string `json:"key,omitempty"`
	// Limit bounds the number of journal entries returned by status.
	Limit int `json:"limit,omitempty"`
}

// Response answers one Request. A non-zero ExitCode means failure and
// Stderr carries the reason.
type Response struct {
	ExitCode int             `json:"exit_code"`
	Stdout   string          `json:"stdout,omitempty"`
	Stderr   string          `json:"stderr,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Handler executes a control request.
type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response { return f(ctx, req) }

// OK builds a success response. data, when non-nil, is JSON-encoded into
// Data.
func OK(stdout string, data any) Response {
	resp := Response{Stdout: stdout}
	if data == nil {
		return resp
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Errorf("encode response data: %v", err)
	}
	resp.Data = raw
	return resp
}

// Errorf builds a failure response.
func Errorf(format string, args ...any) Response {
	return Response{ExitCode: 1, Stderr: fmt.Sprintf(format, args...) + "\n"}
}

var invalidUsernameRune = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeUsername makes a username safe for pipe and socket names.
func sanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return invalidUsernameRune.ReplaceAllString(value, "_")
}

func currentUsername(envVar string) string {
	username := strings.TrimSpace(os.Getenv(envVar))
	if username == "" {
		if current, err := user.Current(); err == nil {
			username = current.Username
		}
	}
	// Domain accounts come back as DOMAIN\user.
	if i := strings.LastIndexAny(username, `\/`); i >= 0 {
		username = username[i+1:]
	}
	return sanitizeUsername(username)
}

func encodeRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	req.Command = strings.ToLower(strings.TrimSpace(req.Command))
	if req.Command == "" {
		return Request{}, fmt.Errorf("command is required")
	}
	return req, nil
}

func encodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
