package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"lsgw/internal/jsonrpc"
	"lsgw/internal/metrics"
)

// shutdownGrace bounds how long in-flight HTTP requests may finish after
// the serve context ends.
const shutdownGrace = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin:     sameOrigin,
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// sameOrigin accepts non-browser clients, which send no Origin, and pages
// served from the listener's own host. Any other page could otherwise
// drive workspace/editFile from the user's browser.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// HTTPOptions names the HTTP routes.
type HTTPOptions struct {
	// Path serves websocket sessions.
	Path string
	// MetricsPath serves Prometheus metrics; empty disables it.
	MetricsPath string
}

// Handler routes websocket sessions, metrics and a health probe.
func (s *Server) Handler(opts HTTPOptions) http.Handler {
	if opts.Path == "" {
		opts.Path = "/lsp"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(opts.Path, s.serveWebSocket)
	if opts.MetricsPath != "" {
		mux.Handle(opts.MetricsPath, metrics.Handler())
	}
	mux.HandleFunc("/health", s.serveHealth)
	return s.recovery(mux)
}

// ListenAndServe serves HTTP on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string, opts HTTPOptions) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, opts)
}

// Serve serves HTTP on ln until ctx is cancelled. Open sessions are closed
// on the way out.
func (s *Server) Serve(ctx context.Context, ln net.Listener, opts HTTPOptions) error {
	srv := &http.Server{
		Handler:           s.Handler(opts),
		ReadHeaderTimeout: 15 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info("Starting HTTP server", "addr", ln.Addr().String(), "path", opts.Path)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	s.CloseSessions()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remoteAddr", r.RemoteAddr, "error", err.Error())
		return
	}
	if err := s.ServeStream(r.Context(), jsonrpc.NewWebSocketStream(ws)); err != nil {
		s.logger.Warn("Session ended with error", "remoteAddr", r.RemoteAddr, "error", err.Error())
	}
}

type healthResponse struct {
	Status   string            `json:"status"`
	Sessions int               `json:"sessions"`
	Backends map[string]string `json:"backends"`
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	states := s.svc.Initializer().States()
	backends := make(map[string]string, len(states))
	for id, st := range states {
		backends[id] = string(st)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:   "ok",
		Sessions: s.Sessions(),
		Backends: backends,
	})
}

// recovery turns handler panics into 500 responses.
func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("Panic recovered",
					"error", fmt.Sprintf("%v", err),
					"stack", string(debug.Stack()),
					"path", r.URL.Path,
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
