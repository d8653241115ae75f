package channel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 1 << 20
)

// ServerConfig configures a WebSocketServer.
type ServerConfig struct {
	Path           string   // HTTP path the client dials, "/bridge" by default
	AllowedOrigins []string // empty or "*" allows any origin
	BufferSize     int      // inbound payload buffer, 64 by default
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) write(ctx context.Context, msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(msgType, data)
}

// WebSocketServer is the host side of a web view that talks to the host over
// a local websocket. It serves one client at a time: a new connection, such
// as the web view reloading, replaces the previous one.
type WebSocketServer struct {
	cfg      ServerConfig
	upgrader websocket.Upgrader
	recv     chan []byte

	mu     sync.Mutex
	active *wsConn

	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocketServer creates a server; mount Handler or call ListenAndServe.
func NewWebSocketServer(cfg ServerConfig) *WebSocketServer {
	if cfg.Path == "" {
		cfg.Path = "/bridge"
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	s := &WebSocketServer{
		cfg:  cfg,
		recv: make(chan []byte, cfg.BufferSize),
		done: make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	slog.Warn("channel: rejected origin", "origin", origin)
	return false
}

// Handler returns an http.Handler serving the bridge endpoint at cfg.Path.
func (s *WebSocketServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *WebSocketServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("channel: listening", "addr", addr, "path", s.cfg.Path)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.done:
		http.Error(w, "bridge closed", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("channel: upgrade failed", "err", err)
		return
	}
	c := &wsConn{conn: conn}

	s.mu.Lock()
	prev := s.active
	s.active = c
	s.mu.Unlock()
	if prev != nil {
		slog.Info("channel: client replaced")
		_ = prev.conn.Close()
	}
	slog.Info("channel: client connected", "remote", r.RemoteAddr)

	stopPing := make(chan struct{})
	go s.keepalive(c, stopPing)
	s.readLoop(c)
	close(stopPing)

	s.mu.Lock()
	if s.active == c {
		s.active = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
	slog.Info("channel: client disconnected", "remote", r.RemoteAddr)
}

func (s *WebSocketServer) readLoop(c *wsConn) {
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("channel: read error", "err", err)
			}
			return
		}
		select {
		case s.recv <- raw:
		case <-s.done:
			return
		}
	}
}

func (s *WebSocketServer) keepalive(c *wsConn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-stop:
			return
		case <-s.done:
			return
		}
	}
}

// Connected reports whether a client is attached.
func (s *WebSocketServer) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func (s *WebSocketServer) Send(ctx context.Context, payload []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	s.mu.Lock()
	c := s.active
	s.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}
	return c.write(ctx, websocket.TextMessage, payload)
}

func (s *WebSocketServer) Receive() <-chan []byte { return s.recv }

func (s *WebSocketServer) Inject(ctx context.Context, script string) error {
	payload, err := injectPayload(script)
	if err != nil {
		return err
	}
	return s.Send(ctx, payload)
}

func (s *WebSocketServer) Done() <-chan struct{} { return s.done }

// Close disconnects the client and stops accepting new ones.
func (s *WebSocketServer) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		c := s.active
		s.active = nil
		s.mu.Unlock()
		if c != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "host shutting down"),
				time.Now().Add(time.Second))
			_ = c.conn.Close()
		}
	})
	return nil
}

var _ Channel = (*WebSocketServer)(nil)
