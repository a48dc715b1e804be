package jsonrpc

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketStream carries one JSON-RPC message per text frame.
type WebSocketStream struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// NewWebSocketStream wraps an established websocket connection.
func NewWebSocketStream(ws *websocket.Conn) *WebSocketStream {
	ws.SetReadLimit(MaxMessageSize)
	return &WebSocketStream{ws: ws}
}

// Read returns io.EOF when the peer closes normally.
func (s *WebSocketStream) Read() (*Message, error) {
	_, data, err := s.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &msg, nil
}

func (s *WebSocketStream) Write(msg *Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(msg)
}

// Close sends a close frame and closes the connection.
func (s *WebSocketStream) Close() error {
	s.writeMu.Lock()
	_ = s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return s.ws.Close()
}
