// Package mcp re-exports tools from external MCP servers (stdio or HTTP
// JSON-RPC) into the bridge's tool registry.
package mcp

// ServerConfig holds the connection parameters for a single MCP server.
// Command selects a stdio subprocess; otherwise URL selects HTTP.
type ServerConfig struct {
	Command        string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args           []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	URL            string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
}
