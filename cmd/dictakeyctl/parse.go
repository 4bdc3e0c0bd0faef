package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"dictakey/internal/ipc"
)

// errUsage asks main to print usage and exit 2.
var errUsage = errors.New("usage")

// commandSpec describes one control command. maxArgs bounds positional
// arguments after the command name.
type commandSpec struct {
	summary string
	args    string
	maxArgs int
	// limitFlag accepts -n for the journal entry count.
	limitFlag bool
}

var commandSpecs = map[string]commandSpec{
	ipc.CommandStart:  {summary: "start a recording session", args: "[key]", maxArgs: 1},
	ipc.CommandStop:   {summary: "finish every open session"},
	ipc.CommandStatus: {summary: "show shortcuts, recent sessions and warnings", args: "[-n count]", limitFlag: true},
	ipc.CommandPing:   {summary: "check that the daemon is running"},
}

var commandOrder = []string{ipc.CommandStart, ipc.CommandStop, ipc.CommandStatus, ipc.CommandPing}

// invocation is a parsed command line.
type invocation struct {
	pipe    string
	jsonOut bool
	req     ipc.Request
}

func parseArgs(args []string, stderr io.Writer) (invocation, error) {
	var inv invocation
	global := flag.NewFlagSet("dictakeyctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { printUsage(stderr) }
	global.StringVar(&inv.pipe, "pipe", "", "control pipe or socket (default: per-user endpoint)")
	global.BoolVar(&inv.jsonOut, "json", false, "print the response data as JSON")
	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return invocation{}, flag.ErrHelp
		}
		return invocation{}, errUsage
	}
	if global.NArg() == 0 {
		printUsage(stderr)
		return invocation{}, errUsage
	}

	name := strings.ToLower(strings.TrimSpace(global.Arg(0)))
	spec, ok := commandSpecs[name]
	if !ok {
		return invocation{}, fmt.Errorf("unknown command: %s", global.Arg(0))
	}
	inv.req.Command = name

	sub := flag.NewFlagSet(name, flag.ContinueOnError)
	sub.SetOutput(stderr)
	if spec.limitFlag {
		sub.IntVar(&inv.req.Limit, "n", 0, "number of recent journal entries")
	}
	if err := sub.Parse(global.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return invocation{}, flag.ErrHelp
		}
		return invocation{}, errUsage
	}
	if sub.NArg() > spec.maxArgs {
		return invocation{}, fmt.Errorf("%s: too many arguments: %s", name, strings.Join(sub.Args(), " "))
	}
	if inv.req.Limit < 0 {
		return invocation{}, fmt.Errorf("%s: -n must not be negative", name)
	}
	if sub.NArg() == 1 {
		inv.req.Key = sub.Arg(0)
	}
	return inv, nil
}

func printUsage(w io.Writer) {
	// Usage output is best effort.
	_, _ = fmt.Fprintln(w, "dictakeyctl controls a running dictakey daemon")
	_, _ = fmt.Fprintln(w, "Usage: dictakeyctl [-pipe name] [-json] <command> [args]")
	_, _ = fmt.Fprintln(w, "Commands:")
	for _, name := range commandOrder {
		spec := commandSpecs[name]
		_, _ = fmt.Fprintf(w, "  %-22s %s\n", strings.TrimSpace(name+" "+spec.args), spec.summary)
	}
}
