// Package httpserver exposes span state over a small read-only HTTP API,
// with a WebSocket feed of a session's events for live dashboards.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/benegessarit/skill-composer/internal/gate"
	"github.com/benegessarit/skill-composer/internal/tracker"
)

// DefaultPollInterval is how often an event stream looks for new events.
const DefaultPollInterval = time.Second

// Deps are the components the API reads from.
type Deps struct {
	Tracker *tracker.Tracker
	Gate    *gate.Gate
	Logger  *slog.Logger
	Version string

	// Tokens are the accepted bearer tokens. With none, every endpoint is
	// open.
	Tokens       []string
	PollInterval time.Duration
}

// HTTPServer represents the HTTP API server
type HTTPServer struct {
	mux    *http.ServeMux
	deps   Deps
	logger *slog.Logger
}

// NewHTTPServer creates a new HTTP server instance
func NewHTTPServer(d Deps) *HTTPServer {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.PollInterval <= 0 {
		d.PollInterval = DefaultPollInterval
	}
	s := &HTTPServer{
		mux:    http.NewServeMux(),
		deps:   d,
		logger: d.Logger,
	}
	s.registerRoutes()
	return s
}

func (s *HTTPServer) registerRoutes() {
	// Health check (no auth required)
	s.mux.HandleFunc("GET /health", s.loggingMiddleware(s.handleHealth))

	s.mux.HandleFunc("GET /sessions", s.loggingMiddleware(s.authMiddleware(s.handleRecent)))
	s.mux.HandleFunc("GET /sessions/{session}", s.loggingMiddleware(s.authMiddleware(s.handleStatus)))
	s.mux.HandleFunc("GET /sessions/{session}/events", s.loggingMiddleware(s.authMiddleware(s.handleSessionEvents)))
	s.mux.HandleFunc("GET /sessions/{session}/stream", s.loggingMiddleware(s.authMiddleware(s.handleStream)))
	s.mux.HandleFunc("GET /events", s.loggingMiddleware(s.authMiddleware(s.handleEventsOn)))
	s.mux.HandleFunc("GET /check", s.loggingMiddleware(s.authMiddleware(s.handleCheck)))
}

// Handler returns the routed handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *HTTPServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr, "tokens", len(s.deps.Tokens))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
