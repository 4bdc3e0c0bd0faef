package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

const (
	defaultDialTimeout = 2 * time.Second
	defaultRWTimeout   = 10 * time.Second
	pingTimeout        = 500 * time.Millisecond
	maxResponseBytes   = 256 * 1024
)

// Send sends one request and waits for one response. An empty name selects
// DefaultPipeName.
func Send(name string, req Request) (Response, error) {
	return send(name, req, defaultDialTimeout, defaultRWTimeout)
}

// Ping reports whether a daemon answers on name.
func Ping(name string) error {
	resp, err := send(name, Request{Command: CommandPing}, pingTimeout, pingTimeout)
	if err != nil {
		return err
	}
	if resp.ExitCode != 0 {
		return fmt.Errorf("ping: exit code %d", resp.ExitCode)
	}
	return nil
}

func send(name string, req Request, dialTimeout, rwTimeout time.Duration) (Response, error) {
	if name == "" {
		name = DefaultPipeName()
	}
	conn, err := dial(name, dialTimeout)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(rwTimeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}

	raw, err := encodeRequest(req)
	if err != nil {
		return Response{}, err
	}
	if _, err := conn.Write(append(raw, '\n')); err != nil {
		return Response{}, err
	}

	respRaw, err := readDelimitedFrame(bufio.NewReaderSize(conn, maxResponseBytes+1), maxResponseBytes)
	if err != nil {
		return Response{}, err
	}
	resp, err := decodeResponse(respRaw)
	if err != nil {
		return Response{}, fmt.Errorf("invalid response: %w", err)
	}
	return resp, nil
}

func readDelimitedFrame(reader *bufio.Reader, maxBytes int) ([]byte, error) {
	raw, err := reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("frame exceeds %d bytes", maxBytes)
	}
	if errors.Is(err, io.EOF) {
		if len(raw) == 0 {
			return nil, io.EOF
		}
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// IsConnectionError reports whether err means no daemon is listening.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "open"
	}
	return false
}
