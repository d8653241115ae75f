package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crystaldolphin/agentbridge/internal/mcp"
)

func writeConfig(t *testing.T, dir string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Channel.ListenAddr != def.Channel.ListenAddr {
		t.Errorf("expected default listenAddr %q, got %q", def.Channel.ListenAddr, cfg.Channel.ListenAddr)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"bridge": map[string]any{
			"hostOrigin":      "app://notes",
			"duplicatePolicy": "last",
		},
		"generation": map[string]any{
			"enabled": true,
			"mode":    "static",
		},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bridge.HostOrigin != "app://notes" {
		t.Errorf("expected hostOrigin %q, got %q", "app://notes", cfg.Bridge.HostOrigin)
	}
	if !cfg.Generation.Enabled || cfg.Generation.Mode != "static" {
		t.Errorf("generation = %+v", cfg.Generation)
	}
	// Untouched keys keep their defaults.
	if cfg.Generation.MaxTokens != 512 {
		t.Errorf("expected default maxTokens 512, got %d", cfg.Generation.MaxTokens)
	}
	if cfg.Bridge.ThemeGraceMs != 1500 {
		t.Errorf("expected default themeGraceMs 1500, got %d", cfg.Bridge.ThemeGraceMs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error for invalid JSON (falls back to default), got: %v", err)
	}
	if cfg.Bridge.HostOrigin != DefaultConfig().Bridge.HostOrigin {
		t.Errorf("expected default hostOrigin, got %q", cfg.Bridge.HostOrigin)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
bridge:
  hostOrigin: app://yaml
channel:
  listenAddr: 0.0.0.0:9000
  allowedOrigins: [app://yaml]
tools:
  fetch:
    enabled: false
  mcpServers:
    kb:
      url: http://localhost:3000/mcp
      timeoutSeconds: 15
logLevel: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bridge.HostOrigin != "app://yaml" || cfg.Channel.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Tools.Fetch.Enabled {
		t.Error("fetch should be disabled")
	}
	if !cfg.Tools.Calendar.Enabled {
		t.Error("calendar should keep its default")
	}
	if kb := cfg.Tools.MCPServers["kb"]; kb.URL != "http://localhost:3000/mcp" || kb.TimeoutSeconds != 15 {
		t.Errorf("mcp server = %+v", kb)
	}
	if lvl, _ := ParseLogLevel(cfg.LogLevel); lvl != slog.LevelDebug {
		t.Errorf("log level = %v", lvl)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := DefaultConfig()
			cfg.Bridge.HostOrigin = "app://saved"
			cfg.Tools.MCPServers["fs"] = mcp.ServerConfig{Command: "mcp-fs", Args: []string{"--root", "/tmp"}}

			if err := Save(&cfg, path); err != nil {
				t.Fatal(err)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != 0o600 {
				t.Errorf("mode = %v, want 0600", info.Mode().Perm())
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			if loaded.Bridge.HostOrigin != "app://saved" {
				t.Errorf("hostOrigin = %q", loaded.Bridge.HostOrigin)
			}
			if fs := loaded.Tools.MCPServers["fs"]; fs.Command != "mcp-fs" || len(fs.Args) != 2 {
				t.Errorf("mcp server = %+v", fs)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"policy", func(c *Config) { c.Bridge.DuplicatePolicy = "newest" }, "bridge.duplicatePolicy"},
		{"mode", func(c *Config) { c.Generation.Mode = "telepathic" }, "generation.mode"},
		{"model", func(c *Config) { c.Generation.Enabled = true; c.Generation.Model = "" }, "generation.model"},
		{"path", func(c *Config) { c.Channel.Path = "bridge" }, "channel.path"},
		{"timezone", func(c *Config) { c.Tools.Calendar.Timezone = "Mars/Olympus" }, "timezone"},
		{"mcp", func(c *Config) { c.Tools.MCPServers["empty"] = mcp.ServerConfig{} }, "mcpServers.empty"},
		{"log", func(c *Config) { c.LogLevel = "chatty" }, "logLevel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
	def := DefaultConfig()
	if err := def.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestStatePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/agentbridge"
	if got := cfg.CalendarPath(); got != "/var/lib/agentbridge/calendar/events.json" {
		t.Errorf("CalendarPath = %q", got)
	}
	if got := cfg.SessionsPath(); got != "/var/lib/agentbridge/sessions/index.jsonl" {
		t.Errorf("SessionsPath = %q", got)
	}
	cfg.Sessions.Persist = false
	if got := cfg.SessionsPath(); got != "" {
		t.Errorf("SessionsPath without persistence = %q", got)
	}
}
