// Package config defines the configuration schema for agentbridge.
//
// Files are JSON with camelCase keys; a .yaml or .yml file is read as YAML
// with the same keys.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/generation"
	"github.com/crystaldolphin/agentbridge/internal/mcp"
	"github.com/crystaldolphin/agentbridge/internal/tools"
)

// CapabilitiesConfig holds the statically advertised capabilities. mcp is
// always on and llm follows the generation backend.
type CapabilitiesConfig struct {
	DOM     bool `json:"dom" yaml:"dom"`
	Storage bool `json:"storage" yaml:"storage"`
}

// BridgeConfig configures the protocol engine.
type BridgeConfig struct {
	HostOrigin      string             `json:"hostOrigin" yaml:"hostOrigin"`
	ThemeGraceMs    int                `json:"themeGraceMs" yaml:"themeGraceMs"`
	DuplicatePolicy string             `json:"duplicatePolicy" yaml:"duplicatePolicy"`
	Capabilities    CapabilitiesConfig `json:"capabilities" yaml:"capabilities"`
}

func defaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		HostOrigin:      "agentbridge://host",
		ThemeGraceMs:    1500,
		DuplicatePolicy: tools.RejectDuplicates.String(),
		Capabilities:    CapabilitiesConfig{DOM: false, Storage: true},
	}
}

// ThemeGrace is ThemeGraceMs as a duration.
func (b BridgeConfig) ThemeGrace() time.Duration {
	return time.Duration(b.ThemeGraceMs) * time.Millisecond
}

// ChannelConfig configures the websocket the embedded client connects to.
type ChannelConfig struct {
	ListenAddr     string   `json:"listenAddr" yaml:"listenAddr"`
	Path           string   `json:"path" yaml:"path"`
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`
	BufferSize     int      `json:"bufferSize" yaml:"bufferSize"`
}

func defaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		ListenAddr:     "127.0.0.1:8765",
		Path:           "/bridge",
		AllowedOrigins: []string{},
		BufferSize:     64,
	}
}

// GenerationConfig configures the local model behind llm:generate.
type GenerationConfig struct {
	Enabled        bool              `json:"enabled" yaml:"enabled"`
	Mode           string            `json:"mode" yaml:"mode"`
	APIBase        string            `json:"apiBase" yaml:"apiBase"`
	APIKey         string            `json:"apiKey" yaml:"apiKey"`
	Model          string            `json:"model" yaml:"model"`
	MaxTokens      int               `json:"maxTokens" yaml:"maxTokens"`
	Temperature    float64           `json:"temperature" yaml:"temperature"`
	TimeoutSeconds int               `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	ExtraHeaders   map[string]string `json:"extraHeaders,omitempty" yaml:"extraHeaders,omitempty"`
}

func defaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Enabled:        false,
		Mode:           string(generation.ModeDynamic),
		APIBase:        "http://localhost:11434/v1",
		Model:          "qwen2.5:3b-instruct",
		MaxTokens:      512,
		Temperature:    0.1,
		TimeoutSeconds: 120,
	}
}

// CalendarToolConfig configures the calendar tools.
type CalendarToolConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Persist  bool   `json:"persist" yaml:"persist"`
	Timezone string `json:"timezone" yaml:"timezone"`
	// ReminderMinutes announces events this long before they start; 0 disables.
	ReminderMinutes int `json:"reminderMinutes" yaml:"reminderMinutes"`
}

// FetchToolConfig configures fetch_page.
type FetchToolConfig struct {
	Enabled  bool `json:"enabled" yaml:"enabled"`
	MaxChars int  `json:"maxChars" yaml:"maxChars"`
}

// AlertToolConfig configures show_alert.
type AlertToolConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// ToolsConfig groups the built-in tools and external MCP servers.
type ToolsConfig struct {
	Calendar   CalendarToolConfig          `json:"calendar" yaml:"calendar"`
	Fetch      FetchToolConfig             `json:"fetch" yaml:"fetch"`
	Alert      AlertToolConfig             `json:"alert" yaml:"alert"`
	MCPServers map[string]mcp.ServerConfig `json:"mcpServers" yaml:"mcpServers"`
}

func defaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		Calendar:   CalendarToolConfig{Enabled: true, Persist: true, ReminderMinutes: 10},
		Fetch:      FetchToolConfig{Enabled: true, MaxChars: 50000},
		Alert:      AlertToolConfig{Enabled: true},
		MCPServers: map[string]mcp.ServerConfig{},
	}
}

// SessionsConfig configures the session index.
type SessionsConfig struct {
	Persist bool `json:"persist" yaml:"persist"`
}

// Config is the root configuration object.
type Config struct {
	Bridge     BridgeConfig     `json:"bridge" yaml:"bridge"`
	Channel    ChannelConfig    `json:"channel" yaml:"channel"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Tools      ToolsConfig      `json:"tools" yaml:"tools"`
	Sessions   SessionsConfig   `json:"sessions" yaml:"sessions"`
	// DataDir holds persisted state; empty means ~/.agentbridge.
	DataDir  string `json:"dataDir,omitempty" yaml:"dataDir,omitempty"`
	LogLevel string `json:"logLevel" yaml:"logLevel"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Bridge:     defaultBridgeConfig(),
		Channel:    defaultChannelConfig(),
		Generation: defaultGenerationConfig(),
		Tools:      defaultToolsConfig(),
		Sessions:   SessionsConfig{Persist: true},
		LogLevel:   "info",
	}
}

// StateDir resolves DataDir, expanding a leading ~.
func (c *Config) StateDir() string {
	if c.DataDir == "" {
		return DataDir()
	}
	return expandHome(c.DataDir)
}

// CalendarPath is where calendar events persist, or "" when they do not.
func (c *Config) CalendarPath() string {
	if !c.Tools.Calendar.Persist {
		return ""
	}
	return filepath.Join(c.StateDir(), "calendar", "events.json")
}

// SessionsPath is where the session index persists, or "" when it does not.
func (c *Config) SessionsPath() string {
	if !c.Sessions.Persist {
		return ""
	}
	return filepath.Join(c.StateDir(), "sessions", "index.jsonl")
}

// Location resolves the calendar timezone; empty means local time.
func (c *Config) Location() (*time.Location, error) {
	if c.Tools.Calendar.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Tools.Calendar.Timezone)
	if err != nil {
		return nil, fmt.Errorf("tools.calendar.timezone: %w", err)
	}
	return loc, nil
}

// Validate reports every setting that cannot be used as given.
func (c *Config) Validate() error {
	var errs []error
	if _, err := tools.ParseDuplicatePolicy(c.Bridge.DuplicatePolicy); err != nil {
		errs = append(errs, fmt.Errorf("bridge.duplicatePolicy: %w", err))
	}
	if c.Bridge.ThemeGraceMs < 0 {
		errs = append(errs, fmt.Errorf("bridge.themeGraceMs must not be negative"))
	}
	if _, err := generation.ParseMode(c.Generation.Mode); err != nil {
		errs = append(errs, fmt.Errorf("generation.mode: %w", err))
	}
	if c.Generation.Enabled && strings.TrimSpace(c.Generation.Model) == "" {
		errs = append(errs, fmt.Errorf("generation.model is required when generation is enabled"))
	}
	if !strings.HasPrefix(c.Channel.Path, "/") {
		errs = append(errs, fmt.Errorf("channel.path must start with /, got %q", c.Channel.Path))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Tools.Calendar.ReminderMinutes < 0 {
		errs = append(errs, fmt.Errorf("tools.calendar.reminderMinutes must not be negative"))
	}
	for name, s := range c.Tools.MCPServers {
		if s.Command == "" && s.URL == "" {
			errs = append(errs, fmt.Errorf("tools.mcpServers.%s: command or url is required", name))
		}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
