// Package rpc serves the gateway to callers over JSON-RPC 2.0, either on
// stdio with Content-Length framing or as websocket sessions.
package rpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"lsgw/internal/gateway"
	"lsgw/internal/jsonrpc"
	"lsgw/internal/slogutil"
)

// Server hands caller connections to the gateway service. Every
// connection becomes a session with its own event subscriptions.
type Server struct {
	svc     *gateway.Service
	logger  *slog.Logger
	methods map[string]methodFunc

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer creates a server for svc.
func NewServer(svc *gateway.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	s := &Server{
		svc:      svc,
		logger:   logger,
		sessions: make(map[string]*session),
	}
	s.methods = s.methodTable()
	return s
}

// ServeStdio serves a single session over r and w until r ends or ctx is
// cancelled.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	return s.ServeStream(ctx, jsonrpc.NewHeaderStream(r, w, nil))
}

// ServeStream serves one session over stream and blocks until it ends.
func (s *Server) ServeStream(ctx context.Context, stream jsonrpc.Stream) error {
	sess := s.newSession(stream)
	s.track(sess)
	defer s.untrack(sess)

	err := sess.run(ctx)
	if errors.Is(err, jsonrpc.ErrClosed) {
		return nil
	}
	return err
}

// Sessions returns the number of open sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CloseSessions closes every open session.
func (s *Server) CloseSessions() {
	s.mu.Lock()
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		_ = sess.conn.Close()
	}
}

func (s *Server) track(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}
