// Package jsonrpc implements JSON-RPC 2.0 messages, Content-Length framing,
// and a bidirectional connection used both toward backends and toward
// gateway callers.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the only protocol version spoken.
const Version = "2.0"

// Standard JSON-RPC error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
	// ConnectionClosed is reported to calls pending when a connection dies.
	ConnectionClosed = -32099
	// RequestCancelled is the LSP code for cancelled requests.
	RequestCancelled = -32800
)

// ID is a request id; LSP peers may send numbers or strings.
type ID struct {
	num   int64
	str   string
	isStr bool
}

// NumberID returns a numeric id.
func NumberID(n int64) ID { return ID{num: n} }

// StringID returns a string id.
func StringID(s string) ID { return ID{str: s, isStr: true} }

// String returns a key unique across both id forms.
func (id ID) String() string {
	if id.isStr {
		return "s:" + id.str
	}
	return "n:" + strconv.FormatInt(id.num, 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.isStr {
		return json.Marshal(id.str)
	}
	return []byte(strconv.FormatInt(id.num, 10)), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("jsonrpc: invalid id %s", data)
	}
	*id = NumberID(n)
	return nil
}

// Error is a JSON-RPC error object. It implements error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError creates an Error.
func NewError(code int, message string, data interface{}) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

// Message is any JSON-RPC message: request, notification or response.
type Message struct {
	ID     *ID
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *Error
}

type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// MarshalJSON always emits "result" on successful responses, null included.
func (m *Message) MarshalJSON() ([]byte, error) {
	if m.IsResponse() && m.Error == nil {
		result := m.Result
		if len(result) == 0 {
			result = json.RawMessage("null")
		}
		return json.Marshal(wireResponse{JSONRPC: Version, ID: m.ID, Result: result})
	}
	return json.Marshal(wireMessage{
		JSONRPC: Version,
		ID:      m.ID,
		Method:  m.Method,
		Params:  m.Params,
		Result:  m.Result,
		Error:   m.Error,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.JSONRPC != Version {
		return fmt.Errorf("jsonrpc: unsupported version %q", w.JSONRPC)
	}
	*m = Message{ID: w.ID, Method: w.Method, Params: w.Params, Result: w.Result, Error: w.Error}
	return nil
}

// IsRequest checks if the message is a request
func (m *Message) IsRequest() bool { return m.Method != "" && m.ID != nil }

// IsNotification checks if the message is a notification
func (m *Message) IsNotification() bool { return m.Method != "" && m.ID == nil }

// IsResponse checks if the message is a response
func (m *Message) IsResponse() bool { return m.Method == "" && m.ID != nil }

// NewRequest builds a request, marshaling params.
func NewRequest(id ID, method string, params interface{}) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{ID: &id, Method: method, Params: raw}, nil
}

// NewNotification builds a notification, marshaling params.
func NewNotification(method string, params interface{}) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{Method: method, Params: raw}, nil
}

// NewResult builds a success response.
func NewResult(id ID, result interface{}) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Message{ID: &id, Result: raw}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id ID, err *Error) *Message {
	return &Message{ID: &id, Error: err}
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}
