package mcp

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/tools"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

const defaultToolTimeout = 60 * time.Second

// Registrar receives discovered tools. *tools.Registry and the bridge engine
// (through a closure) both fit.
type Registrar func(ts ...tools.Tool) error

// Manager owns the connections to every configured MCP server.
type Manager struct {
	servers map[string]ServerConfig

	mu      sync.Mutex
	clients []*client
	once    sync.Once
}

// NewManager returns a Manager for the given servers, keyed by name.
func NewManager(servers map[string]ServerConfig) *Manager {
	return &Manager{servers: servers}
}

// ToolName is the registry name of a remote tool.
func ToolName(server, tool string) string {
	return "mcp_" + server + "_" + tool
}

// ConnectOnce connects to every server and registers the tools they expose.
// Servers are visited in name order so registration order is stable. Failed
// servers are logged and skipped. Later calls do nothing.
func (m *Manager) ConnectOnce(ctx context.Context, register Registrar) {
	m.once.Do(func() {
		names := make([]string, 0, len(m.servers))
		for name := range m.servers {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if err := m.connect(ctx, name, m.servers[name], register); err != nil {
				slog.Error("MCP server connect failed", "server", name, "err", err)
			}
		}
	})
}

func (m *Manager) connect(ctx context.Context, name string, cfg ServerConfig, register Registrar) error {
	c := newClient(name, cfg)
	if err := c.connect(ctx); err != nil {
		return err
	}
	defs, err := c.listTools(ctx)
	if err != nil {
		c.close()
		return err
	}

	timeout := defaultToolTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	var ts []tools.Tool
	for _, d := range defs {
		if d.Name == "" {
			continue
		}
		schema := value.Object{}
		if len(d.InputSchema) > 0 {
			if v, err := value.Parse(d.InputSchema); err == nil {
				schema, _ = v.AsObject()
			}
		}
		ts = append(ts, &remote{
			client:      c,
			name:        ToolName(name, d.Name),
			origName:    d.Name,
			description: d.Description,
			params:      tools.ParamsFromSchema(schema),
			timeout:     timeout,
		})
		slog.Debug("MCP tool discovered", "server", name, "tool", d.Name)
	}
	if err := register(ts...); err != nil {
		slog.Warn("MCP tools partly registered", "server", name, "err", err)
	}

	m.mu.Lock()
	m.clients = append(m.clients, c)
	m.mu.Unlock()
	slog.Info("MCP server connected", "server", name, "tools", len(ts))
	return nil
}

// Close stops every subprocess-based server.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		c.close()
	}
	m.clients = nil
}
