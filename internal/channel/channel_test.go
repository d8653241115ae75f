package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crystaldolphin/agentbridge/internal/protocol"
)

func recvWithin(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

// ─── Pipe ──────────────────────────────────────────────────────────────────

func TestPipe_BothDirections(t *testing.T) {
	host, client := NewPipe(4)
	ctx := context.Background()

	if err := client.Send(ctx, []byte("from client")); err != nil {
		t.Fatal(err)
	}
	if err := host.Send(ctx, []byte("from host")); err != nil {
		t.Fatal(err)
	}
	if got := recvWithin(t, host.Receive()); string(got) != "from client" {
		t.Errorf("host got %q", got)
	}
	if got := recvWithin(t, client.Receive()); string(got) != "from host" {
		t.Errorf("client got %q", got)
	}
}

func TestPipe_SendCopiesPayload(t *testing.T) {
	host, client := NewPipe(1)
	buf := []byte("abc")
	_ = host.Send(context.Background(), buf)
	buf[0] = 'X'
	if got := recvWithin(t, client.Receive()); string(got) != "abc" {
		t.Errorf("payload aliased caller buffer: %q", got)
	}
}

func TestPipe_Close(t *testing.T) {
	host, client := NewPipe(1)
	_ = client.Close()

	select {
	case <-host.Done():
	default:
		t.Fatal("closing one side should close both")
	}
	if err := host.Send(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after close = %v", err)
	}
	_ = host.Close()
}

func TestPipe_SendRespectsContext(t *testing.T) {
	host, _ := NewPipe(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := host.Send(ctx, []byte("x")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline, got %v", err)
	}
}

func TestPipe_Inject(t *testing.T) {
	host, client := NewPipe(1)
	if err := host.Inject(context.Background(), "window.bridge.ready()"); err != nil {
		t.Fatal(err)
	}
	env, err := protocol.NewJSONCodec().Decode(recvWithin(t, client.Receive()))
	if err != nil {
		t.Fatalf("inject payload is not an envelope: %v", err)
	}
	if env.Type != protocol.KindInject || env.String("script") != "window.bridge.ready()" {
		t.Errorf("got %+v", env)
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────────────

func dial(t *testing.T, srv *httptest.Server, path, origin string) (*websocket.Conn, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	return conn, err
}

func waitConnected(t *testing.T, s *WebSocketServer, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Connected() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Connected() never became %v", want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketServer_Exchange(t *testing.T) {
	s := NewWebSocketServer(ServerConfig{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.Close()

	if err := s.Send(context.Background(), []byte("early")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send without client = %v", err)
	}

	conn, err := dial(t, srv, "/bridge", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitConnected(t, s, true)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"handshake"}`)); err != nil {
		t.Fatal(err)
	}
	if got := recvWithin(t, s.Receive()); string(got) != `{"type":"handshake"}` {
		t.Errorf("server got %q", got)
	}

	if err := s.Send(context.Background(), []byte(`{"type":"handshake:ack"}`)); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(msg) != `{"type":"handshake:ack"}` {
		t.Errorf("client got %q", msg)
	}
}

func TestWebSocketServer_ReconnectReplaces(t *testing.T) {
	s := NewWebSocketServer(ServerConfig{Path: "/ws"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.Close()

	first, err := dial(t, srv, "/ws", "")
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	waitConnected(t, s, true)

	second, err := dial(t, srv, "/ws", "")
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Error("replaced connection should be closed")
	}

	if err := s.Send(context.Background(), []byte("to second")); err != nil {
		t.Fatal(err)
	}
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := second.ReadMessage()
	if err != nil || string(msg) != "to second" {
		t.Errorf("second got %q, %v", msg, err)
	}
}

func TestWebSocketServer_Origin(t *testing.T) {
	s := NewWebSocketServer(ServerConfig{AllowedOrigins: []string{"https://agent.example"}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.Close()

	if _, err := dial(t, srv, "/bridge", "https://evil.example"); err == nil {
		t.Error("foreign origin should be rejected")
	}
	conn, err := dial(t, srv, "/bridge", "https://agent.example")
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close()
}

func TestWebSocketServer_Close(t *testing.T) {
	s := NewWebSocketServer(ServerConfig{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, err := dial(t, srv, "/bridge", "")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	waitConnected(t, s, true)

	_ = s.Close()
	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed")
	}
	if err := s.Send(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v", err)
	}
	if _, err := dial(t, srv, "/bridge", ""); err == nil {
		t.Error("closed server should refuse new clients")
	}
}
