package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/protocol"
	"github.com/crystaldolphin/agentbridge/internal/tools"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

// onInvoke looks the tool up on the engine goroutine. An unknown tool is
// answered right away; a known one runs on its own goroutine so a slow
// handler never holds up other requests.
func (e *Engine) onInvoke(ctx context.Context, env protocol.Envelope) {
	name := env.String("toolName")
	tool, ok := e.registry.Get(name)
	if !ok {
		slog.Debug("bridge: unknown tool", "tool", name, "requestId", env.RequestID)
		e.send(ctx, protocol.Reply(protocol.KindError, env.RequestID, value.Object{
			"error": value.String("Tool not found: " + name),
		}))
		return
	}

	args := env.Object("args").Clone()
	r := e.replier(env.RequestID)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.invoke(ctx, r, tool, args)
	}()
}

type outcome struct {
	result value.Value
	err    error
}

func (e *Engine) invoke(ctx context.Context, r *replier, tool tools.Tool, args value.Object) {
	name := tool.Name()
	timeout := tool.Timeout()
	start := time.Now()

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("bridge: tool panicked", "tool", name, "panic", p, "stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("tool %s failed: %v", name, p)}
			}
		}()
		res, err := tool.Execute(callCtx, args)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		done <- outcome{result: wireResult(name, res)}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		select {
		case out = <-done:
		default:
			out.err = interrupted(name, timeout, callCtx.Err())
		}
	}

	if out.err != nil {
		slog.Warn("bridge: tool failed", "tool", name, "requestId", r.requestID,
			"elapsed", time.Since(start), "err", out.err)
		r.reply(ctx, protocol.New(protocol.KindError, value.Object{
			"error": value.String(errorText(name, out.err)),
		}))
		return
	}

	slog.Debug("bridge: tool done", "tool", name, "requestId", r.requestID, "elapsed", time.Since(start))
	r.reply(ctx, protocol.New(protocol.KindResult, value.Object{"result": out.result}))
}

// wireResult converts a handler result, degrading what the wire cannot carry.
// Degrading calls methods on the result; if one of them panics the result is
// reported by type name only.
func wireResult(name string, res any) (v value.Value) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("bridge: tool result conversion panicked", "tool", name, "type", fmt.Sprintf("%T", res), "panic", p)
			v = value.String(fmt.Sprintf("<%T>", res))
		}
	}()
	converted, err := value.FromAny(res)
	if err != nil {
		slog.Warn("bridge: tool result not representable, degrading", "tool", name, "err", err)
		converted = value.Degrade(res)
	}
	return converted
}

func errorText(name string, err error) (msg string) {
	defer func() {
		if p := recover(); p != nil {
			msg = fmt.Sprintf("tool %s failed with %T", name, err)
		}
	}()
	return err.Error()
}

func interrupted(name string, timeout time.Duration, cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) && timeout > 0 {
		return &tools.ToolError{
			Code:    tools.CodeTimeout,
			Message: fmt.Sprintf("Tool %s timed out after %dms", name, timeout.Milliseconds()),
		}
	}
	return fmt.Errorf("tool %s cancelled: %w", name, cause)
}
