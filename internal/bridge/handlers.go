package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/protocol"
	"github.com/crystaldolphin/agentbridge/internal/tools"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

// ─── Handshake & discovery ─────────────────────────────────────────────────

// onHandshake recomputes the capability set from scratch, acknowledges, and
// follows with the tool list when there is one.
func (e *Engine) onHandshake(ctx context.Context, env protocol.Envelope) {
	e.caps = protocol.Capabilities{
		MCP:     e.registry.Len() > 0,
		DOM:     e.opts.DOM,
		Storage: e.opts.Storage,
		LLM:     e.opts.Generator.Available(),
	}
	e.connected = true
	e.handshakes++
	slog.Info("Bridge handshake", "count", e.handshakes, "tools", e.registry.Len(), "llm", e.caps.LLM)

	e.send(ctx, protocol.Reply(protocol.KindHandshakeAck, env.RequestID, value.Object{
		"capabilities": e.caps.ToValue(),
		"hostOrigin":   value.String(e.opts.HostOrigin),
	}))
	if e.registry.Len() > 0 {
		e.broadcastTools(ctx)
	}
}

func (e *Engine) broadcastTools(ctx context.Context) {
	e.send(ctx, protocol.New(protocol.KindTools, e.toolsFields()))
}

func (e *Engine) toolsFields() value.Object {
	return value.Object{"tools": tools.DefinitionsToValue(e.registry.Definitions())}
}

func (e *Engine) onDiscover(ctx context.Context, env protocol.Envelope) {
	e.send(ctx, protocol.Reply(protocol.KindTools, env.RequestID, e.toolsFields()))
}

// ─── Theme ─────────────────────────────────────────────────────────────────

// SetTheme pushes theme to the client and clears readiness until the client
// answers with theme:ready.
func (e *Engine) SetTheme(ctx context.Context, theme value.Value) error {
	return e.do(ctx, func() {
		e.theme = theme
		if e.themeReady {
			e.themeReady = false
			e.themeWaiters = make(chan struct{})
		}
		e.send(ctx, protocol.Request(protocol.KindThemeSet, value.Object{"theme": theme}))
	})
}

func (e *Engine) onThemeReady(_ context.Context, _ protocol.Envelope) {
	if e.themeReady {
		return
	}
	e.themeReady = true
	close(e.themeWaiters)
	slog.Debug("bridge: theme ready")
}

// WaitThemeReady blocks until the client reports theme:ready or grace
// elapses. It returns false on timeout so the caller can reveal content
// anyway.
func (e *Engine) WaitThemeReady(ctx context.Context, grace time.Duration) (bool, error) {
	var (
		ready   bool
		waiters chan struct{}
	)
	if err := e.do(ctx, func() { ready, waiters = e.themeReady, e.themeWaiters }); err != nil {
		return false, err
	}
	if ready {
		return true, nil
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-waiters:
		return true, nil
	case <-timer.C:
		slog.Debug("bridge: theme grace period elapsed", "grace", grace)
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// ─── Widget ────────────────────────────────────────────────────────────────

func (e *Engine) onWidget(minimized bool) handler {
	return func(_ context.Context, _ protocol.Envelope) {
		e.minimized = minimized
		slog.Debug("bridge: widget state", "minimized", minimized)
		if e.opts.OnWidget != nil {
			e.opts.OnWidget(minimized)
		}
	}
}

// ─── Sessions ──────────────────────────────────────────────────────────────

func (e *Engine) onSessionList(ctx context.Context, env protocol.Envelope) {
	sessions := value.Array()
	if e.opts.Sessions != nil {
		sessions = e.opts.Sessions.ListValue()
	}
	e.send(ctx, protocol.Reply(protocol.KindSessionListResponse, env.RequestID, value.Object{
		"sessions": sessions,
	}))
}

func (e *Engine) onSessionOpened(_ context.Context, env protocol.Envelope) {
	if e.opts.Sessions == nil {
		return
	}
	if _, err := e.opts.Sessions.Opened(env.String("threadId"), env.String("title")); err != nil {
		slog.Debug("bridge: ignoring session:opened", "err", err)
	}
}
