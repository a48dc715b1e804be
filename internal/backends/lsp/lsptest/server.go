// Package lsptest provides an in-process language server for tests.
package lsptest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"lsgw/internal/jsonrpc"
	"lsgw/internal/protocol"
)

// HandlerFunc answers one method.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Server is a scripted language server. Configure it before the first Serve.
type Server struct {
	Capabilities protocol.ServerCapabilities
	// InitDelay delays the initialize answer.
	InitDelay time.Duration
	// InitError makes initialize fail.
	InitError *jsonrpc.Error
	Handlers  map[string]HandlerFunc

	mu            sync.Mutex
	conn          *jsonrpc.Conn
	initParams    *protocol.InitializeParams
	notifications []jsonrpc.Message
	requests      map[string]int
	ready         chan struct{}
	readyOnce     sync.Once
}

// New returns a server advertising caps.
func New(caps protocol.ServerCapabilities) *Server {
	return &Server{
		Capabilities: caps,
		Handlers:     make(map[string]HandlerFunc),
		requests:     make(map[string]int),
		ready:        make(chan struct{}),
	}
}

// Handle registers a method handler and returns the server.
func (s *Server) Handle(method string, fn HandlerFunc) *Server {
	s.Handlers[method] = fn
	return s
}

// Serve runs the server over r/w until the client disconnects. It matches
// lsp.EmbeddedCommunicator's Serve field.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.WriteCloser) error {
	stream := jsonrpc.NewHeaderStream(r, w, w)
	conn := jsonrpc.NewConn(stream, s.handle)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	err := conn.Run(ctx)
	if errors.Is(err, jsonrpc.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) handle(ctx context.Context, _ *jsonrpc.Conn, msg *jsonrpc.Message) (interface{}, error) {
	s.mu.Lock()
	if msg.IsNotification() {
		s.notifications = append(s.notifications, *msg)
	} else {
		s.requests[msg.Method]++
	}
	s.mu.Unlock()

	switch msg.Method {
	case "initialize":
		var p protocol.InitializeParams
		_ = json.Unmarshal(msg.Params, &p)
		s.mu.Lock()
		s.initParams = &p
		s.mu.Unlock()
		if s.InitDelay > 0 {
			select {
			case <-time.After(s.InitDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if s.InitError != nil {
			return nil, s.InitError
		}
		return protocol.InitializeResult{Capabilities: s.Capabilities}, nil
	case "shutdown":
		return nil, nil
	}

	if fn, ok := s.Handlers[msg.Method]; ok {
		return fn(ctx, msg.Params)
	}
	if msg.IsRequest() {
		return nil, jsonrpc.MethodNotFoundError(msg.Method)
	}
	return nil, nil
}

// Requests returns how many times method was requested.
func (s *Server) Requests(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method]
}

// Notifications returns the received notifications named method.
func (s *Server) Notifications(method string) []jsonrpc.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []jsonrpc.Message
	for _, n := range s.notifications {
		if n.Method == method {
			out = append(out, n)
		}
	}
	return out
}

// InitializeParams returns the params of the last initialize request.
func (s *Server) InitializeParams() *protocol.InitializeParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initParams
}

// Notify pushes a notification to the client once connected.
func (s *Server) Notify(method string, params interface{}) error {
	<-s.ready
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return conn.Notify(method, params)
}

// Call sends a request to the client once connected.
func (s *Server) Call(ctx context.Context, method string, params, result interface{}) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return conn.Call(ctx, method, params, result)
}
