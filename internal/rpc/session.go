package rpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lsgw/internal/gateway"
	"lsgw/internal/jsonrpc"
	"lsgw/internal/metrics"
	"lsgw/internal/protocol"
)

// session is one caller connection. Gateway events are forwarded to the
// caller for as long as the session is open.
type session struct {
	id     string
	server *Server
	conn   *jsonrpc.Conn
	logger *slog.Logger

	unsubscribe []func()
}

func (s *Server) newSession(stream jsonrpc.Stream) *session {
	sess := &session{
		id:     uuid.New().String(),
		server: s,
	}
	sess.logger = s.logger.With("session", sess.id)
	sess.conn = jsonrpc.NewConn(stream, sess.handle,
		jsonrpc.WithLogger(sess.logger),
		jsonrpc.WithErrorMapper(toRPCError),
	)
	return sess
}

func (sess *session) run(ctx context.Context) error {
	sess.logger.Info("Session opened")
	metrics.SessionOpened()
	sess.subscribe()
	defer func() {
		for _, fn := range sess.unsubscribe {
			fn()
		}
		metrics.SessionClosed()
		sess.logger.Info("Session closed")
	}()

	err := sess.conn.Run(ctx)
	sess.conn.Wait()
	return err
}

// subscribe forwards gateway events to the caller and lets the caller
// answer backend message requests.
func (sess *session) subscribe() {
	events := sess.server.svc.Events()

	id := events.Initialized.Subscribe(func(ev gateway.BackendInitialized) {
		sess.notify("languageServer/initialized", ev)
	})
	sess.unsubscribe = append(sess.unsubscribe, func() { events.Initialized.Unsubscribe(id) })

	diagID := events.Diagnostics.Subscribe(func(p protocol.ExtendedPublishDiagnosticsParams) {
		sess.notify("textDocument/publishDiagnostics", p)
	})
	sess.unsubscribe = append(sess.unsubscribe, func() { events.Diagnostics.Unsubscribe(diagID) })

	msgID := events.Messages.Subscribe(func(m gateway.BackendMessage) {
		sess.notify("window/showMessage", m)
	})
	sess.unsubscribe = append(sess.unsubscribe, func() { events.Messages.Unsubscribe(msgID) })

	askID := events.Responders.Subscribe(gateway.Responder(sess.askCaller))
	sess.unsubscribe = append(sess.unsubscribe, func() { events.Responders.Unsubscribe(askID) })
}

func (sess *session) notify(method string, params interface{}) {
	if err := sess.conn.Notify(method, params); err != nil {
		sess.logger.Debug("Failed to notify caller", "method", method, "error", err.Error())
	}
}

// askCaller forwards a backend's window/showMessageRequest and waits for
// the caller's choice. A null answer means the caller dismissed it.
func (sess *session) askCaller(ctx context.Context, req gateway.BackendMessageRequest) (*protocol.MessageActionItem, error) {
	var item *protocol.MessageActionItem
	if err := sess.conn.Call(ctx, "window/showMessageRequest", req, &item); err != nil {
		return nil, err
	}
	return item, nil
}

func (sess *session) handle(ctx context.Context, _ *jsonrpc.Conn, msg *jsonrpc.Message) (interface{}, error) {
	start := time.Now()
	sess.logger.Debug("Handling message", "method", msg.Method, "request", msg.IsRequest())

	fn, ok := sess.server.methods[msg.Method]
	if !ok {
		if msg.IsRequest() {
			metrics.RecordRPCRequest(msg.Method, jsonrpc.MethodNotFoundError(msg.Method), time.Since(start).Seconds())
		}
		return nil, jsonrpc.MethodNotFoundError(msg.Method)
	}

	result, err := fn(ctx, msg.Params)
	if msg.IsRequest() {
		metrics.RecordRPCRequest(msg.Method, err, time.Since(start).Seconds())
	}
	if err != nil {
		sess.logger.Debug("Method failed", "method", msg.Method, "error", err.Error())
	}
	return result, err
}
