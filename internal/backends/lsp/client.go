package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lsgw/internal/jsonrpc"
	"lsgw/internal/protocol"
)

// Callback receives what a backend pushes to its client. The gateway
// binds one Callback per backend id.
type Callback interface {
	PublishDiagnostics(params protocol.PublishDiagnosticsParams)
	ShowMessage(params protocol.ShowMessageParams)
	// ShowMessageRequest blocks until the user picks an action or ctx ends.
	ShowMessageRequest(ctx context.Context, params protocol.ShowMessageRequestParams) (*protocol.MessageActionItem, error)
	LogMessage(params protocol.ShowMessageParams)
}

// Instance is a live backend handle.
type Instance interface {
	ID() string
	Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error)
	Call(ctx context.Context, method string, params, result interface{}) error
	Notify(method string, params interface{}) error
	Shutdown(ctx context.Context) error
	Stats() Stats
}

// Constructor builds an Instance from opened streams and a callback.
type Constructor func(id string, streams *Streams, cb Callback, logger *slog.Logger) (Instance, error)

// Stats are per-backend call counters.
type Stats struct {
	Calls               int64     `json:"calls"`
	Failures            int64     `json:"failures"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastResponseTime    time.Time `json:"lastResponseTime"`
	Closed              bool      `json:"closed"`
}

// Client is the default Instance: a JSON-RPC connection to a language server.
type Client struct {
	id      string
	conn    *jsonrpc.Conn
	streams *Streams
	cb      Callback
	logger  *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewClient is the default Constructor. It starts the read loop.
func NewClient(id string, streams *Streams, cb Callback, logger *slog.Logger) (Instance, error) {
	if streams == nil || streams.Stream == nil {
		return nil, errors.New("no streams")
	}
	c := &Client{id: id, streams: streams, cb: cb, logger: logger}
	c.conn = jsonrpc.NewConn(streams.Stream, c.handle, jsonrpc.WithLogger(logger))

	go func() {
		if err := c.conn.Run(context.Background()); err != nil {
			logger.Warn("Backend connection ended", "error", err)
		} else {
			logger.Info("Backend connection closed")
		}
		c.mu.Lock()
		c.stats.Closed = true
		c.mu.Unlock()
	}()
	return c, nil
}

// ID returns the backend id.
func (c *Client) ID() string { return c.id }

// Initialize sends the initialize request and decodes the result. The
// caller sends "initialized" once it has recorded the capabilities.
func (c *Client) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	var result protocol.InitializeResult
	if err := c.Call(ctx, "initialize", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Call issues a request and records success/failure counters.
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	err := c.conn.Call(ctx, method, params, result)

	c.mu.Lock()
	c.stats.Calls++
	if err != nil {
		c.stats.Failures++
		c.stats.ConsecutiveFailures++
	} else {
		c.stats.ConsecutiveFailures = 0
		c.stats.LastResponseTime = time.Now()
	}
	c.mu.Unlock()
	return err
}

// Notify sends a notification.
func (c *Client) Notify(method string, params interface{}) error {
	return c.conn.Notify(method, params)
}

// Shutdown sends shutdown then exit and closes the streams.
func (c *Client) Shutdown(ctx context.Context) error {
	if err := c.conn.Call(ctx, "shutdown", nil, nil); err != nil {
		c.logger.Debug("Shutdown request failed", "error", err)
	}
	_ = c.conn.Notify("exit", nil)
	_ = c.conn.Close()
	return c.streams.Close()
}

// Stats returns a copy of the call counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// handle answers messages the backend sends to the gateway.
func (c *Client) handle(ctx context.Context, _ *jsonrpc.Conn, msg *jsonrpc.Message) (interface{}, error) {
	switch msg.Method {
	case "textDocument/publishDiagnostics":
		var p protocol.PublishDiagnosticsParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, jsonrpc.InvalidParamsError(err)
		}
		c.cb.PublishDiagnostics(p)
	case "window/showMessage":
		var p protocol.ShowMessageParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, jsonrpc.InvalidParamsError(err)
		}
		c.cb.ShowMessage(p)
	case "window/logMessage":
		var p protocol.ShowMessageParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, jsonrpc.InvalidParamsError(err)
		}
		c.cb.LogMessage(p)
	case "window/showMessageRequest":
		var p protocol.ShowMessageRequestParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, jsonrpc.InvalidParamsError(err)
		}
		return c.cb.ShowMessageRequest(ctx, p)
	case "client/registerCapability", "client/unregisterCapability", "window/workDoneProgress/create":
		// acknowledged, not acted on
		return nil, nil
	case "workspace/configuration":
		var p struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(msg.Params, &p)
		return make([]interface{}, len(p.Items)), nil
	case "$/progress", "telemetry/event", "$/logTrace":
	default:
		if msg.IsRequest() {
			return nil, jsonrpc.MethodNotFoundError(msg.Method)
		}
		c.logger.Debug("Ignoring backend notification", "method", msg.Method)
	}
	return nil, nil
}
