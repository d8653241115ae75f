// Package bridge is the protocol engine between the host, the embedded web
// agent client and the optional local model.
//
// All protocol state lives on one goroutine (Run). Inbound payloads, theme
// changes, registry mutations and state queries reach it as commands; tool
// handlers and generation calls run on their own goroutines and only meet the
// engine again when they send their reply.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/channel"
	"github.com/crystaldolphin/agentbridge/internal/generation"
	"github.com/crystaldolphin/agentbridge/internal/protocol"
	"github.com/crystaldolphin/agentbridge/internal/session"
	"github.com/crystaldolphin/agentbridge/internal/tools"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

// ErrStopped is returned by engine methods once Run has returned.
var ErrStopped = errors.New("bridge engine stopped")

// defaultSendTimeout bounds a single outbound write.
const defaultSendTimeout = 10 * time.Second

// Options configure an Engine. The zero value is usable.
type Options struct {
	// HostOrigin is reported in handshake:ack.
	HostOrigin string
	// DOM and Storage are advertised as-is in the capability set.
	DOM     bool
	Storage bool

	Codec     protocol.Codec      // defaults to JSON
	Generator *generation.Adapter // nil: llm:generate always fails with model_unavailable
	Sessions  *session.Index      // nil: session:list answers with an empty list

	// OnWidget observes widget:minimize / widget:restore. It runs on the
	// engine goroutine and must not call back into the engine.
	OnWidget func(minimized bool)

	SendTimeout time.Duration
}

// State is a snapshot of the engine's protocol state.
type State struct {
	Connected    bool
	Handshakes   int
	Capabilities protocol.Capabilities
	ThemeReady   bool
	Theme        value.Value
	Minimized    bool
	Tools        int
}

type handler func(ctx context.Context, env protocol.Envelope)

// Engine routes envelopes between the channel, the tool registry and the
// generation adapter.
type Engine struct {
	ch       channel.Channel
	codec    protocol.Codec
	registry *tools.Registry
	opts     Options
	routes   map[string]map[string]handler

	cmds     chan func()
	stopped  chan struct{}
	running  atomic.Bool
	inflight sync.WaitGroup

	// owned by the Run goroutine
	connected    bool
	handshakes   int
	caps         protocol.Capabilities
	theme        value.Value
	themeReady   bool
	themeWaiters chan struct{}
	minimized    bool
}

// NewEngine creates an engine serving ch. The engine takes ownership of
// registry: after this call, register tools through Engine.Register.
func NewEngine(ch channel.Channel, registry *tools.Registry, opts Options) *Engine {
	if registry == nil {
		registry = tools.NewRegistry(tools.RejectDuplicates)
	}
	codec := opts.Codec
	if codec == nil {
		codec = protocol.NewJSONCodec()
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	e := &Engine{
		ch:           ch,
		codec:        codec,
		registry:     registry,
		opts:         opts,
		cmds:         make(chan func()),
		stopped:      make(chan struct{}),
		themeWaiters: make(chan struct{}),
	}
	e.routes = map[string]map[string]handler{
		protocol.NamespaceHandshake: {"": e.onHandshake},
		protocol.NamespaceMCP: {
			"discover": e.onDiscover,
			"invoke":   e.onInvoke,
		},
		protocol.NamespaceLLM:   {"generate": e.onGenerate},
		protocol.NamespaceTheme: {"ready": e.onThemeReady},
		protocol.NamespaceWidget: {
			"minimize": e.onWidget(true),
			"restore":  e.onWidget(false),
		},
		protocol.NamespaceSession: {
			"list":   e.onSessionList,
			"opened": e.onSessionOpened,
		},
	}
	return e
}

// Run processes inbound payloads and commands until ctx is cancelled or the
// channel closes. In-flight tool calls are cancelled and awaited before Run
// returns. Run may be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("bridge engine already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		close(e.stopped)
		e.inflight.Wait()
	}()

	slog.Info("Bridge engine started", "tools", e.registry.Len(), "llm", e.opts.Generator.Available())
	for {
		select {
		case payload := <-e.ch.Receive():
			e.dispatch(ctx, payload)
		case cmd := <-e.cmds:
			cmd()
		case <-e.ch.Done():
			slog.Info("Bridge engine stopping: channel closed")
			return nil
		case <-ctx.Done():
			slog.Info("Bridge engine stopping")
			return ctx.Err()
		}
	}
}

// do runs fn on the engine goroutine and waits for it.
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case e.cmds <- func() { fn(); close(done) }:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

func (e *Engine) dispatch(ctx context.Context, payload []byte) {
	env, err := e.codec.Decode(payload)
	if err != nil {
		slog.Debug("bridge: dropping inbound payload", "err", err, "len", len(payload))
		return
	}
	table, ok := e.routes[env.Type.Namespace()]
	if !ok {
		slog.Debug("bridge: no handlers for namespace", "type", env.Type)
		return
	}
	h, ok := table[env.Type.Suffix()]
	if !ok {
		slog.Debug("bridge: unhandled kind", "type", env.Type)
		return
	}
	h(ctx, env)
}

// Register adds tools to the registry (see tools.Registry.Register for the
// duplicate rules). A connected client receives a fresh mcp:tools broadcast.
func (e *Engine) Register(ctx context.Context, ts ...tools.Tool) error {
	var regErr error
	err := e.do(ctx, func() {
		before := e.registry.Len()
		regErr = e.registry.Register(ts...)
		if e.connected && (e.registry.Len() != before || e.registry.Policy() == tools.LastWins) {
			e.broadcastTools(ctx)
		}
	})
	if err != nil {
		return err
	}
	return regErr
}

// Definitions returns the registered tool definitions in registration order.
func (e *Engine) Definitions(ctx context.Context) ([]tools.Definition, error) {
	var defs []tools.Definition
	err := e.do(ctx, func() { defs = e.registry.Definitions() })
	return defs, err
}

// State returns a snapshot of the protocol state.
func (e *Engine) State(ctx context.Context) (State, error) {
	var st State
	err := e.do(ctx, func() {
		st = State{
			Connected:    e.connected,
			Handshakes:   e.handshakes,
			Capabilities: e.caps,
			ThemeReady:   e.themeReady,
			Theme:        e.theme,
			Minimized:    e.minimized,
			Tools:        e.registry.Len(),
		}
	})
	return st, err
}

// Inject forwards a script to the client surface.
func (e *Engine) Inject(ctx context.Context, script string) error {
	return e.ch.Inject(ctx, script)
}
