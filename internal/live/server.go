package live

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/websocket"

	"github.com/roach88/autopsy/internal/report"
)

//go:embed live.html
var livePage []byte

const (
	defaultWriteTimeout = 5 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Server serves the live page and the update stream:
//
//	GET /    live HTML page
//	GET /ws  WebSocket stream of JSON messages
//	GET /up  health check
type Server struct {
	hub          *Hub
	logger       *slog.Logger
	page         []byte
	writeTimeout time.Duration
	mux          *http.ServeMux
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithPage replaces the live HTML page.
func WithPage(page []byte) ServerOption {
	return func(s *Server) { s.page = page }
}

// WithWriteTimeout bounds each WebSocket frame write.
func WithWriteTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.writeTimeout = d }
}

// NewServer returns a Server streaming hub's messages.
func NewServer(hub *Hub, opts ...ServerOption) *Server {
	s := &Server{
		hub:          hub,
		logger:       slog.Default(),
		page:         livePage,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(s.page)
	})
	mux.Handle("GET /ws", websocket.Handler(s.stream))
	s.mux = mux
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) stream(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	sub := s.hub.Subscribe()
	defer sub.Close()

	// Clients never send; a failed read means the peer went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		var discard string
		for {
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if err := s.send(conn, msg); err != nil {
				s.logger.Debug("live client write failed", "subscriber", sub.ID, "error", err)
				return
			}
			if _, ok := msg.(SnapshotMessage); ok {
				s.hub.markTransmitted()
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg any) error {
	if s.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	return websocket.JSON.Send(conn, msg)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown live server: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Addr formats the listen address of cfg.
func Addr(cfg report.Configuration) string {
	return net.JoinHostPort(cfg.LiveHost, strconv.Itoa(cfg.LivePort))
}

// Starter returns a report.LiveStarter that binds the configured address
// and serves in the background until ctx is done. source feeds the hub's
// snapshots.
func Starter(ctx context.Context, source SnapshotFunc, logger *slog.Logger) report.LiveStarter {
	return func(cfg report.Configuration) (report.Sink, error) {
		ln, err := net.Listen("tcp", Addr(cfg))
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", Addr(cfg), err)
		}
		hub := NewHub(source, WithHubLogger(logger))
		srv := NewServer(hub, WithLogger(logger))
		logger.Info("live server listening", "url", "http://"+ln.Addr().String())
		go func() {
			if err := srv.Serve(ctx, ln); err != nil {
				logger.Warn("live server stopped", "error", err)
			}
		}()
		return hub, nil
	}
}
