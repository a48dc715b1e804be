package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"lsgw/internal/slogutil"
)

// ErrClosed is returned by calls on a closed connection.
var ErrClosed = errors.New("jsonrpc: connection closed")

// Handler answers requests and notifications from the peer. The result of
// a notification is ignored. Returning an *Error sends it unchanged.
type Handler func(ctx context.Context, conn *Conn, msg *Message) (interface{}, error)

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the connection logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) { c.logger = logger }
}

// WithErrorMapper converts handler errors that are not *Error.
func WithErrorMapper(fn func(error) *Error) Option {
	return func(c *Conn) { c.mapErr = fn }
}

// Conn is a symmetric JSON-RPC connection: it issues calls to the peer and
// dispatches the peer's calls to a Handler. Requests from the peer run on
// their own goroutine; notifications run inline to preserve their order.
type Conn struct {
	stream  Stream
	handler Handler
	logger  *slog.Logger
	mapErr  func(error) *Error

	nextID atomic.Int64

	pendingMu sync.Mutex
	pending   map[string]chan *Message
	closed    bool

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	inflight  sync.WaitGroup
}

// NewConn creates a connection over stream. handler may be nil, in which
// case every peer request is answered with MethodNotFound.
func NewConn(stream Stream, handler Handler, opts ...Option) *Conn {
	c := &Conn{
		stream:  stream,
		handler: handler,
		logger:  slogutil.NewDiscardLogger(),
		mapErr:  defaultErrorMapper,
		pending: make(map[string]chan *Message),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run reads messages until the stream ends or ctx is cancelled. It returns
// nil on a clean end of stream.
func (c *Conn) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.stream.Close()
		case <-c.done:
		}
	}()

	var runErr error
	for {
		msg, err := c.stream.Read()
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				c.logger.Warn("Dropping undecodable message", "error", err)
				continue
			}
			if ctx.Err() == nil && !errors.Is(err, io.EOF) && !c.isClosed() {
				runErr = err
			}
			break
		}

		switch {
		case msg.IsResponse():
			c.deliver(msg)
		case msg.IsNotification():
			c.dispatch(ctx, msg)
		case msg.IsRequest():
			c.inflight.Add(1)
			go func() {
				defer c.inflight.Done()
				c.dispatch(ctx, msg)
			}()
		default:
			c.logger.Debug("Ignoring message without id or method")
		}
	}

	c.shutdown(runErr)
	return runErr
}

// Call sends a request and decodes the response into result (which may be
// nil). When ctx ends first the call is abandoned and $/cancelRequest is
// sent to the peer; the remote work is not guaranteed to stop.
func (c *Conn) Call(ctx context.Context, method string, params, result interface{}) error {
	id := NumberID(c.nextID.Add(1))
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}

	key := id.String()
	ch := make(chan *Message, 1)
	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return c.Err()
	}
	c.pending[key] = ch
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, key)
		c.pendingMu.Unlock()
	}()

	if err := c.stream.Write(req); err != nil {
		if c.isClosed() {
			return c.Err()
		}
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		_ = c.Notify("$/cancelRequest", map[string]interface{}{"id": id})
		return ctx.Err()
	case <-c.done:
		return c.Err()
	}
}

// Notify sends a notification.
func (c *Conn) Notify(method string, params interface{}) error {
	if c.isClosed() {
		return c.Err()
	}
	msg, err := NewNotification(method, params)
	if err != nil {
		return err
	}
	return c.stream.Write(msg)
}

// Close closes the stream and fails pending calls.
func (c *Conn) Close() error {
	err := c.stream.Close()
	c.shutdown(nil)
	return err
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or ErrClosed.
func (c *Conn) Err() error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrClosed
}

// Wait blocks until in-flight peer requests have been answered.
func (c *Conn) Wait() {
	c.inflight.Wait()
}

func (c *Conn) isClosed() bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return c.closed
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.pendingMu.Lock()
		c.closed = true
		if err != nil {
			c.closeErr = fmt.Errorf("%w: %v", ErrClosed, err)
		}
		c.pendingMu.Unlock()
		close(c.done)
	})
}

func (c *Conn) deliver(msg *Message) {
	key := msg.ID.String()
	c.pendingMu.Lock()
	ch, ok := c.pending[key]
	delete(c.pending, key)
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debug("Response for unknown request", "id", key)
		return
	}
	ch <- msg
}

func (c *Conn) dispatch(ctx context.Context, msg *Message) {
	if c.handler == nil {
		if msg.IsRequest() {
			c.reply(NewErrorResponse(*msg.ID, NewError(MethodNotFound, "method not found: "+msg.Method, nil)))
		}
		return
	}

	result, err := c.handler(ctx, c, msg)
	if msg.IsNotification() {
		if err != nil {
			c.logger.Debug("Notification handler failed", "method", msg.Method, "error", err)
		}
		return
	}

	if err != nil {
		c.reply(NewErrorResponse(*msg.ID, c.mapErr(err)))
		return
	}
	resp, err := NewResult(*msg.ID, result)
	if err != nil {
		c.reply(NewErrorResponse(*msg.ID, NewError(InternalError, err.Error(), nil)))
		return
	}
	c.reply(resp)
}

func (c *Conn) reply(msg *Message) {
	if err := c.stream.Write(msg); err != nil {
		c.logger.Debug("Failed to write response", "error", err)
	}
}

func defaultErrorMapper(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return NewError(InternalError, err.Error(), nil)
}

// MethodNotFoundError is a convenience for handlers.
func MethodNotFoundError(method string) *Error {
	return NewError(MethodNotFound, "method not found: "+method, nil)
}

// InvalidParamsError is a convenience for handlers.
func InvalidParamsError(err error) *Error {
	return NewError(InvalidParams, err.Error(), nil)
}
