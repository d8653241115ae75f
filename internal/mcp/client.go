package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/value"
)

const protocolVersion = "2024-11-05"

// client speaks JSON-RPC to a single MCP server over stdio or HTTP.
type client struct {
	name       string
	cfg        ServerConfig
	httpClient *http.Client

	// stdio only
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines   chan []byte // fed by readLines, closed on EOF
	readErr error       // valid once lines is closed
	quit    chan struct{}
	stop    sync.Once

	mu     sync.Mutex // serializes stdio round trips
	broken error      // set under mu when a round trip is abandoned
	nextID atomic.Int64
}

func newClient(name string, cfg ServerConfig) *client {
	return &client{
		name:       name,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message) }

// remoteTool is one entry of a tools/list result.
type remoteTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// callResult is a tools/call result.
type callResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent"`
	IsError           bool            `json:"isError"`
}

func (c *client) connect(ctx context.Context) error {
	switch {
	case c.cfg.Command != "":
		return c.connectStdio(ctx)
	case c.cfg.URL != "":
		return c.initialize(ctx)
	default:
		return fmt.Errorf("MCP server %q: no command or url configured", c.name)
	}
}

func (c *client) connectStdio(ctx context.Context) error {
	c.cmd = exec.CommandContext(ctx, c.cfg.Command, c.cfg.Args...)
	if len(c.cfg.Env) > 0 {
		c.cmd.Env = os.Environ()
		for k, v := range c.cfg.Env {
			c.cmd.Env = append(c.cmd.Env, k+"="+v)
		}
	}

	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	c.stdin = stdin
	c.lines = make(chan []byte)
	c.quit = make(chan struct{})

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("start MCP server: %w", err)
	}
	go c.readLines(bufio.NewReader(stdout))
	if err := c.initialize(ctx); err != nil {
		c.close()
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

func (c *client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "agentbridge", "version": "1.0"},
	}
	if _, err := c.call(ctx, "initialize", params); err != nil {
		return err
	}
	return c.notify(ctx, "notifications/initialized")
}

// readLines pumps server stdout into c.lines so round trips can select on ctx.
func (c *client) readLines(r *bufio.Reader) {
	defer close(c.lines)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			select {
			case c.lines <- line:
			case <-c.quit:
				c.readErr = io.ErrClosedPipe
				return
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

func (c *client) close() {
	if c.cmd == nil || c.cmd.Process == nil {
		return
	}
	c.stop.Do(func() {
		close(c.quit)
		_ = c.stdin.Close()
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	})
}

func (c *client) listTools(ctx context.Context) ([]remoteTool, error) {
	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []remoteTool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list: %w", err)
	}
	return result.Tools, nil
}

// callTool invokes a remote tool. Structured content is returned as a value;
// otherwise the text blocks are joined. A result flagged isError becomes an
// error carrying the server's text.
func (c *client) callTool(ctx context.Context, name string, args value.Object) (value.Value, error) {
	raw, err := c.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return value.Null(), err
	}

	var res callResult
	if err := json.Unmarshal(raw, &res); err != nil {
		// Not the documented shape; hand back whatever came.
		if v, perr := value.Parse(raw); perr == nil {
			return v, nil
		}
		return value.String(string(raw)), nil
	}

	var parts []string
	for _, block := range res.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if res.IsError {
		if text == "" {
			text = "remote tool reported an error"
		}
		return value.Null(), fmt.Errorf("%s", text)
	}
	if len(res.StructuredContent) > 0 && string(res.StructuredContent) != "null" {
		if v, err := value.Parse(res.StructuredContent); err == nil {
			return v, nil
		}
	}
	if text == "" {
		text = "(no output)"
	}
	return value.String(text), nil
}

// ─── JSON-RPC plumbing ─────────────────────────────────────────────────────

func (c *client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	req := rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}
	var (
		resp rpcResponse
		err  error
	)
	if c.cfg.Command != "" {
		resp, err = c.roundTripStdio(ctx, req)
	} else {
		resp, err = c.roundTripHTTP(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.name, method, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s %s: %w", c.name, method, resp.Error)
	}
	return resp.Result, nil
}

func (c *client) notify(ctx context.Context, method string) error {
	req := rpcRequest{JSONRPC: "2.0", Method: method}
	if c.cfg.Command != "" {
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.broken != nil {
			return c.broken
		}
		_, err = fmt.Fprintf(c.stdin, "%s\n", data)
		return err
	}
	_, err := c.post(ctx, req)
	return err
}

func (c *client) roundTripStdio(ctx context.Context, req rpcRequest) (rpcResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return rpcResponse{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return rpcResponse{}, c.broken
	}
	if _, err := fmt.Fprintf(c.stdin, "%s\n", data); err != nil {
		return rpcResponse{}, fmt.Errorf("write to MCP stdin: %w", err)
	}

	for {
		var line []byte
		select {
		case <-ctx.Done():
			// A late reply would desync the stream.
			c.broken = fmt.Errorf("server abandoned after %s: %w", req.Method, ctx.Err())
			c.close()
			return rpcResponse{}, ctx.Err()
		case l, ok := <-c.lines:
			if !ok {
				if err := ctx.Err(); err != nil {
					c.broken = fmt.Errorf("server abandoned after %s: %w", req.Method, err)
					return rpcResponse{}, err
				}
				c.broken = fmt.Errorf("read MCP stdout: %w", c.readErr)
				return rpcResponse{}, c.broken
			}
			line = l
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue // server log output
		}
		if resp.ID == nil || *resp.ID != req.ID {
			continue
		}
		return resp, nil
	}
}

func (c *client) roundTripHTTP(ctx context.Context, req rpcRequest) (rpcResponse, error) {
	body, err := c.post(ctx, req)
	if err != nil {
		return rpcResponse{}, err
	}
	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return rpcResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func (c *client) post(ctx context.Context, req rpcRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
