package ipc

import "context"

func echoHandler() Handler {
	return HandlerFunc(func(_ context.Context, req Request) Response {
		switch req.Command {
		case CommandStart:
			if req.Key == "nope" {
				return Errorf("no binding for %s", req.Key)
			}
			return OK("started "+req.Key+"\n", nil)
		case CommandStatus:
			return OK("", map[string]int{"limit": req.Limit})
		default:
			return Errorf("unknown command %q", req.Command)
		}
	})
}
