// Package dependency wires core agentbridge services using go.uber.org/dig.
package dependency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/dig"

	"github.com/crystaldolphin/agentbridge/internal/bridge"
	"github.com/crystaldolphin/agentbridge/internal/calendar"
	"github.com/crystaldolphin/agentbridge/internal/channel"
	"github.com/crystaldolphin/agentbridge/internal/config"
	"github.com/crystaldolphin/agentbridge/internal/generation"
	"github.com/crystaldolphin/agentbridge/internal/mcp"
	"github.com/crystaldolphin/agentbridge/internal/protocol"
	"github.com/crystaldolphin/agentbridge/internal/reminder"
	"github.com/crystaldolphin/agentbridge/internal/session"
	"github.com/crystaldolphin/agentbridge/internal/tools"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg       *config.Config
	server    *channel.WebSocketServer
	engine    *bridge.Engine
	registry  *tools.Registry
	generator *generation.Adapter
	calendar  *calendar.Store
	sessions  *session.Index
	alerts    *tools.AlertTool
	mcp       *mcp.Manager
	reminders *reminder.Service
}

func (c *Container) Config() *config.Config           { return c.cfg }
func (c *Container) Server() *channel.WebSocketServer { return c.server }
func (c *Container) Engine() *bridge.Engine           { return c.engine }
func (c *Container) Generator() *generation.Adapter   { return c.generator }
func (c *Container) Calendar() *calendar.Store        { return c.calendar }
func (c *Container) Sessions() *session.Index         { return c.sessions }
func (c *Container) Alerts() *tools.AlertTool         { return c.alerts }
func (c *Container) MCP() *mcp.Manager                { return c.mcp }

// Reminders is nil when calendar reminders are disabled.
func (c *Container) Reminders() *reminder.Service { return c.reminders }

// Registry returns the tool registry. Once the engine is running it owns the
// registry; use Engine().Definitions and Engine().Register instead.
func (c *Container) Registry() *tools.Registry { return c.registry }

// ConnectMCP registers tools from the configured MCP servers: through the
// engine when it is running, directly into the registry otherwise.
func (c *Container) ConnectMCP(ctx context.Context, engineRunning bool) {
	register := mcp.Registrar(c.registry.Register)
	if engineRunning {
		register = func(ts ...tools.Tool) error { return c.engine.Register(ctx, ts...) }
	}
	c.mcp.ConnectOnce(ctx, register)
}

// Close releases external resources.
func (c *Container) Close() {
	c.mcp.Close()
	_ = c.server.Close()
}

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	d := dig.New()

	providers := []any{
		func() *config.Config { return cfg },
		newCodec,
		newCalendar,
		newAlertTool,
		newRegistry,
		newGenerator,
		newSessionIndex,
		newServer,
		newMCPManager,
		newEngine,
		newReminders,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		server *channel.WebSocketServer,
		engine *bridge.Engine,
		registry *tools.Registry,
		generator *generation.Adapter,
		store *calendar.Store,
		sessions *session.Index,
		alerts *tools.AlertTool,
		mcpMgr *mcp.Manager,
		reminders *reminder.Service,
	) {
		result = &Container{
			cfg:       cfg,
			server:    server,
			engine:    engine,
			registry:  registry,
			generator: generator,
			calendar:  store,
			sessions:  sessions,
			alerts:    alerts,
			mcp:       mcpMgr,
			reminders: reminders,
		}
	})
	return result, err
}

func newCodec() protocol.Codec {
	return protocol.NewJSONCodec()
}

func newCalendar(cfg *config.Config) (*calendar.Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return calendar.NewStore(cfg.CalendarPath(), loc), nil
}

// newAlertTool logs alerts; the serve console answers them.
func newAlertTool() *tools.AlertTool {
	return tools.NewAlertTool(tools.PresenterFunc(func(_ context.Context, a tools.Alert) error {
		slog.Info("Alert waiting for user", "id", a.ID, "severity", a.Severity, "message", a.Message, "options", a.Options)
		return nil
	}))
}

func newRegistry(cfg *config.Config, store *calendar.Store, alerts *tools.AlertTool) (*tools.Registry, error) {
	policy, err := tools.ParseDuplicatePolicy(cfg.Bridge.DuplicatePolicy)
	if err != nil {
		return nil, err
	}
	reg := tools.NewRegistry(policy)

	var builtin []tools.Tool
	if cfg.Tools.Calendar.Enabled {
		builtin = append(builtin, calendar.Tools(store)...)
	}
	if cfg.Tools.Alert.Enabled {
		builtin = append(builtin, alerts)
	}
	if cfg.Tools.Fetch.Enabled {
		builtin = append(builtin, tools.NewFetchTool(cfg.Tools.Fetch.MaxChars))
	}
	if err := reg.Register(builtin...); err != nil {
		return nil, fmt.Errorf("register built-in tools: %w", err)
	}
	return reg, nil
}

func newGenerator(cfg *config.Config) (*generation.Adapter, error) {
	mode, err := generation.ParseMode(cfg.Generation.Mode)
	if err != nil {
		return nil, err
	}
	if !cfg.Generation.Enabled {
		return generation.NewAdapter(nil, mode), nil
	}
	g := cfg.Generation
	backend := generation.NewOpenAIBackend(generation.OpenAIConfig{
		APIBase:      g.APIBase,
		APIKey:       g.APIKey,
		Model:        g.Model,
		MaxTokens:    g.MaxTokens,
		Temperature:  g.Temperature,
		Timeout:      time.Duration(g.TimeoutSeconds) * time.Second,
		ExtraHeaders: g.ExtraHeaders,
	})
	return generation.NewAdapter(backend, mode), nil
}

func newSessionIndex(cfg *config.Config) *session.Index {
	return session.NewIndex(cfg.SessionsPath())
}

func newServer(cfg *config.Config) *channel.WebSocketServer {
	return channel.NewWebSocketServer(channel.ServerConfig{
		Path:           cfg.Channel.Path,
		AllowedOrigins: cfg.Channel.AllowedOrigins,
		BufferSize:     cfg.Channel.BufferSize,
	})
}

func newMCPManager(cfg *config.Config) *mcp.Manager {
	return mcp.NewManager(cfg.Tools.MCPServers)
}

func newEngine(
	cfg *config.Config,
	server *channel.WebSocketServer,
	reg *tools.Registry,
	codec protocol.Codec,
	gen *generation.Adapter,
	sessions *session.Index,
) *bridge.Engine {
	return bridge.NewEngine(server, reg, bridge.Options{
		HostOrigin: cfg.Bridge.HostOrigin,
		DOM:        cfg.Bridge.Capabilities.DOM,
		Storage:    cfg.Bridge.Capabilities.Storage,
		Codec:      codec,
		Generator:  gen,
		Sessions:   sessions,
		OnWidget: func(minimized bool) {
			slog.Info("Widget state changed", "minimized", minimized)
		},
	})
}

// newReminders announces upcoming events in the log and, when show_alert is
// enabled, as an alert the serve console can dismiss.
func newReminders(cfg *config.Config, store *calendar.Store, alerts *tools.AlertTool) *reminder.Service {
	cal := cfg.Tools.Calendar
	if !cal.Enabled || cal.ReminderMinutes <= 0 {
		return nil
	}
	notify := func(ctx context.Context, o calendar.Occurrence) error {
		msg := reminder.Message(o, time.Now())
		slog.Info("Upcoming event", "id", o.ID, "title", o.Title, "start", o.Start)
		if !cfg.Tools.Alert.Enabled {
			return nil
		}
		go announceReminder(ctx, alerts, msg)
		return nil
	}
	return reminder.NewService(store, time.Duration(cal.ReminderMinutes)*time.Minute, notify, 0)
}

// announceReminder shows msg as an alert and logs how it was closed.
func announceReminder(ctx context.Context, alerts *tools.AlertTool, msg string) {
	res, err := alerts.Execute(ctx, value.Object{
		"message":  value.String(msg),
		"severity": value.String("info"),
	})
	switch {
	case errors.Is(err, context.Canceled):
		slog.Debug("Reminder alert closed on shutdown", "message", msg)
	case err != nil:
		slog.Warn("Reminder alert failed", "message", msg, "err", err)
	default:
		answer, _ := res.(map[string]any)
		slog.Debug("Reminder alert answered", "message", msg, "choice", answer["choice"], "dismissed", answer["dismissed"])
	}
}
