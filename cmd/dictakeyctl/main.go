// dictakeyctl sends one control command to the dictakey daemon and prints
// the reply.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"dictakey/internal/ipc"
)

var sendFn = ipc.Send

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	inv, err := parseArgs(args, stderr)
	if err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			return 0
		case errors.Is(err, errUsage):
			return 2
		default:
			_, _ = fmt.Fprintln(stderr, err)
			return 2
		}
	}

	pipeName := inv.pipe
	if pipeName == "" {
		pipeName = ipc.DefaultPipeName()
	}

	resp, err := sendFn(pipeName, inv.req)
	if err != nil {
		if ipc.IsConnectionError(err) {
			_, _ = fmt.Fprintf(stderr, "no daemon running on %s\n", pipeName)
			return 1
		}
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}

	if inv.jsonOut {
		if err := writeJSON(stdout, resp.Data); err != nil {
			_, _ = fmt.Fprintf(stderr, "format response: %v\n", err)
			return 1
		}
	} else if resp.Stdout != "" {
		_, _ = io.WriteString(stdout, resp.Stdout)
	}
	if resp.Stderr != "" {
		_, _ = io.WriteString(stderr, resp.Stderr)
	}
	return resp.ExitCode
}

// writeJSON pretty-prints data; an empty payload prints {}.
func writeJSON(w io.Writer, data json.RawMessage) error {
	if len(data) == 0 {
		_, err := io.WriteString(w, "{}\n")
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}
