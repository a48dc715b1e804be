package lsp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lsgw/internal/jsonrpc"
)

// Communicator is a backend's communication descriptor: a liveness check
// plus a way to open the message stream to it.
type Communicator interface {
	// Kind is "process", "socket", "websocket" or "embedded".
	Kind() string
	// IsAlive returns nil when Open can be expected to succeed, or the cause.
	IsAlive(ctx context.Context) error
	// Open establishes the stream pair.
	Open(ctx context.Context) (*Streams, error)
}

// Streams is an open connection to a backend.
type Streams struct {
	Stream jsonrpc.Stream
	// PID is the backend process id for process backends, 0 otherwise.
	PID int

	closeOnce sync.Once
	closeFn   func() error
	closeErr  error
}

// NewStreams wraps a stream; closeFn runs once on Close and may be nil.
func NewStreams(stream jsonrpc.Stream, pid int, closeFn func() error) *Streams {
	return &Streams{Stream: stream, PID: pid, closeFn: closeFn}
}

// Close closes the stream and releases the backend connection.
func (s *Streams) Close() error {
	s.closeOnce.Do(func() {
		err := s.Stream.Close()
		if s.closeFn != nil {
			if cerr := s.closeFn(); cerr != nil {
				err = cerr
			}
		}
		s.closeErr = err
	})
	return s.closeErr
}

// ProcessCommunicator launches a backend as a subprocess speaking over stdio.
type ProcessCommunicator struct {
	Command string
	Args    []string
	Env     map[string]string
	Dir     string
	// Stderr receives the backend's stderr; nil discards it.
	Stderr io.Writer
}

func (p *ProcessCommunicator) Kind() string { return "process" }

// IsAlive checks that the command resolves on PATH.
func (p *ProcessCommunicator) IsAlive(ctx context.Context) error {
	if _, err := exec.LookPath(p.Command); err != nil {
		return fmt.Errorf("command %q not runnable: %w", p.Command, err)
	}
	return nil
}

// Open starts the process. ctx only bounds the start; the process outlives it.
func (p *ProcessCommunicator) Open(ctx context.Context) (*Streams, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(p.Command, p.Args...)
	cmd.Dir = p.Dir
	if len(p.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range p.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	if p.Stderr != nil {
		cmd.Stderr = p.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", p.Command, err)
	}

	stream := jsonrpc.NewHeaderStream(stdout, stdin, stdin)
	return NewStreams(stream, cmd.Process.Pid, func() error {
		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			_ = cmd.Process.Kill()
			<-done
		}
		return nil
	}), nil
}

// SocketCommunicator connects to a backend listening on TCP.
type SocketCommunicator struct {
	// Address is host:port, optionally prefixed with tcp://.
	Address     string
	DialTimeout time.Duration
}

func (s *SocketCommunicator) Kind() string { return "socket" }

func (s *SocketCommunicator) hostPort() string {
	return strings.TrimPrefix(s.Address, "tcp://")
}

// IsAlive probes the address with a short-lived connection.
func (s *SocketCommunicator) IsAlive(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("socket %s not reachable: %w", s.hostPort(), err)
	}
	return conn.Close()
}

func (s *SocketCommunicator) Open(ctx context.Context) (*Streams, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.hostPort(), err)
	}
	return NewStreams(jsonrpc.NewHeaderStream(conn, conn, conn), 0, nil), nil
}

func (s *SocketCommunicator) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: s.DialTimeout}
	return d.DialContext(ctx, "tcp", s.hostPort())
}

// WebSocketCommunicator connects to a backend exposed over a websocket,
// one JSON-RPC message per frame.
type WebSocketCommunicator struct {
	URL         string
	DialTimeout time.Duration
}

func (w *WebSocketCommunicator) Kind() string { return "websocket" }

// IsAlive checks the URL and that its host accepts TCP connections.
func (w *WebSocketCommunicator) IsAlive(ctx context.Context) error {
	u, err := url.Parse(w.URL)
	if err != nil {
		return fmt.Errorf("invalid websocket url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("websocket url must use ws or wss, got %q", u.Scheme)
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "wss" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	d := net.Dialer{Timeout: w.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("websocket %s not reachable: %w", host, err)
	}
	return conn.Close()
}

func (w *WebSocketCommunicator) Open(ctx context.Context) (*Streams, error) {
	dialer := websocket.Dialer{HandshakeTimeout: w.DialTimeout}
	ws, _, err := dialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", w.URL, err)
	}
	return NewStreams(jsonrpc.NewWebSocketStream(ws), 0, nil), nil
}

// ServeFunc runs an in-process language server over r/w until ctx ends or
// the client disconnects.
type ServeFunc func(ctx context.Context, r io.Reader, w io.WriteCloser) error

// EmbeddedCommunicator runs an in-process backend over a pipe pair.
// Serve is started once per Open with the backend's side of the pipes.
type EmbeddedCommunicator struct {
	Serve ServeFunc
}

func (e *EmbeddedCommunicator) Kind() string { return "embedded" }

func (e *EmbeddedCommunicator) IsAlive(context.Context) error {
	if e.Serve == nil {
		return fmt.Errorf("embedded backend has no server bound")
	}
	return nil
}

func (e *EmbeddedCommunicator) Open(context.Context) (*Streams, error) {
	if err := e.IsAlive(context.Background()); err != nil {
		return nil, err
	}
	toBackendR, toBackendW := io.Pipe()
	fromBackendR, fromBackendW := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		err := e.Serve(ctx, toBackendR, fromBackendW)
		_ = fromBackendW.CloseWithError(err)
	}()

	stream := jsonrpc.NewHeaderStream(fromBackendR, toBackendW, toBackendW)
	return NewStreams(stream, 0, func() error {
		cancel()
		_ = fromBackendR.Close()
		return toBackendR.Close()
	}), nil
}
