package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/tools"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

// fakeServer is a minimal HTTP MCP server.
type fakeServer struct {
	mu      sync.Mutex
	methods []string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     *int64          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.methods = append(f.methods, req.Method)
	f.mu.Unlock()

	if req.ID == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var result any
	switch req.Method {
	case "initialize":
		result = map[string]any{"protocolVersion": protocolVersion}
	case "tools/list":
		result = map[string]any{"tools": []any{
			map[string]any{
				"name":        "lookup",
				"description": "Look something up",
				"inputSchema": map[string]any{
					"type":       "object",
					"properties": map[string]any{"term": map[string]any{"type": "string"}},
					"required":   []string{"term"},
				},
			},
			map[string]any{"name": "broken"},
		}}
	case "tools/call":
		var p struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		_ = json.Unmarshal(req.Params, &p)
		if p.Name == "broken" {
			result = map[string]any{"isError": true, "content": []any{map[string]any{"type": "text", "text": "disk on fire"}}}
			break
		}
		result = map[string]any{"content": []any{map[string]any{"type": "text", "text": "found " + p.Arguments["term"].(string)}}}
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": *req.ID, "error": map[string]any{"code": -32601, "message": "no such method"}})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": *req.ID, "result": result})
}

func connectFake(t *testing.T) (*tools.Registry, *fakeServer) {
	t.Helper()
	fake := &fakeServer{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	reg := tools.NewRegistry(tools.RejectDuplicates)
	m := NewManager(map[string]ServerConfig{"kb": {URL: srv.URL, TimeoutSeconds: 5}})
	t.Cleanup(m.Close)
	m.ConnectOnce(context.Background(), reg.Register)
	return reg, fake
}

func TestConnect_RegistersPrefixedTools(t *testing.T) {
	reg, fake := connectFake(t)

	if got := strings.Join(reg.Names(), ","); got != "mcp_kb_lookup,mcp_kb_broken" {
		t.Fatalf("names = %s", got)
	}
	lookup, _ := reg.Get("mcp_kb_lookup")
	params := lookup.Params()
	if len(params) != 1 || params[0].Name != "term" || !params[0].Required {
		t.Errorf("params = %+v", params)
	}
	if lookup.Timeout().Seconds() != 5 {
		t.Errorf("timeout = %v", lookup.Timeout())
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if strings.Join(fake.methods, ",") != "initialize,notifications/initialized,tools/list" {
		t.Errorf("methods = %v", fake.methods)
	}
}

func TestRemoteTool_Execute(t *testing.T) {
	reg, _ := connectFake(t)
	lookup, _ := reg.Get("mcp_kb_lookup")

	res, err := lookup.Execute(context.Background(), value.Object{"term": value.String("otters")})
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := res.(value.Value); !ok || !v.Equal(value.String("found otters")) {
		t.Errorf("result = %#v", res)
	}
}

func TestRemoteTool_IsError(t *testing.T) {
	reg, _ := connectFake(t)
	broken, _ := reg.Get("mcp_kb_broken")

	_, err := broken.Execute(context.Background(), value.Object{})
	var te *tools.ToolError
	if !errors.As(err, &te) || te.Code != tools.CodeFailed {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "disk on fire") {
		t.Errorf("err = %v", err)
	}
}

func TestConnect_BadServerSkipped(t *testing.T) {
	reg := tools.NewRegistry(tools.RejectDuplicates)
	m := NewManager(map[string]ServerConfig{
		"nothing": {},
		"down":    {URL: "http://127.0.0.1:1/rpc"},
	})
	m.ConnectOnce(context.Background(), reg.Register)
	if reg.Len() != 0 {
		t.Errorf("Len = %d", reg.Len())
	}
}

func TestToolName(t *testing.T) {
	if got := ToolName("fs", "read"); got != "mcp_fs_read" {
		t.Errorf("ToolName = %s", got)
	}
}

func TestStdio_SilentServerTimesOut(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	c := newClient("mute", ServerConfig{Command: "sh", Args: []string{"-c", "cat >/dev/null"}})
	t.Cleanup(c.close)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := c.connectStdio(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if d := time.Since(start); d > 5*time.Second {
		t.Fatalf("connect took %s", d)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.call(context.Background(), "tools/list", nil)
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "abandoned") {
			t.Errorf("second call err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second call blocked on abandoned server")
	}
}
