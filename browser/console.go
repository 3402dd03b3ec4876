package browser

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// resolveFunc turns a remote object handle into its JSON value.
type resolveFunc func(obj *proto.RuntimeRemoteObject) (gson.JSON, error)

// Console subscribes before returning, so a caller that calls Console
// before Navigate sees every message the navigation produces.
func (t *rodTab) Console(ctx context.Context, sentinel string, buffer int) (<-chan ConsoleMessage, error) {
	if ctx.Err() != nil {
		return nil, categorizeError(ctx.Err(), "console subscription")
	}
	if buffer <= 0 {
		buffer = 1
	}
	out := make(chan ConsoleMessage, buffer)
	p := t.page.Context(ctx)

	wait := p.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		msg, ok := newConsoleMessage(e.Args, sentinel, p.ObjectToJSON)
		if !ok {
			return
		}
		select {
		case out <- msg:
		default:
			slog.Warn("console buffer full, dropping message", "capacity", buffer)
		}
	})

	go func() {
		defer close(out)
		wait()
	}()

	return out, nil
}

// newConsoleMessage applies the sentinel filter to one console call and,
// when the call logged an object after the sentinel, resolves it by handle.
// Resolution failures keep the text so the caller can fall back to it.
func newConsoleMessage(args []*proto.RuntimeRemoteObject, sentinel string, resolve resolveFunc) (ConsoleMessage, bool) {
	if len(args) == 0 {
		return ConsoleMessage{}, false
	}

	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, argText(a))
	}
	text := strings.Join(parts, " ")
	if !strings.HasPrefix(text, sentinel) {
		return ConsoleMessage{}, false
	}

	msg := ConsoleMessage{Text: text}
	if len(args) < 2 || args[0].Type != proto.RuntimeRemoteObjectTypeString {
		return msg, true
	}
	if strings.TrimSpace(args[0].Value.Str()) != strings.TrimSpace(sentinel) {
		return msg, true
	}

	payload, err := resolve(args[1])
	if err != nil {
		slog.Debug("console payload handle could not be resolved", "error", err)
		return msg, true
	}
	if payload.Nil() {
		return msg, true
	}
	msg.Payload = payload
	msg.HasPayload = true
	return msg, true
}

// argText renders an argument the way the devtools console prints it.
func argText(a *proto.RuntimeRemoteObject) string {
	switch {
	case a.Type == proto.RuntimeRemoteObjectTypeString:
		return a.Value.Str()
	case a.Description != "":
		return a.Description
	case a.Type == proto.RuntimeRemoteObjectTypeUndefined:
		return "undefined"
	default:
		return a.Value.JSON("", "")
	}
}
