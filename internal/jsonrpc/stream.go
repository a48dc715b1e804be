package jsonrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// MaxMessageSize bounds a single framed message.
const MaxMessageSize = 64 * 1024 * 1024

// Stream reads and writes whole messages.
type Stream interface {
	Read() (*Message, error)
	Write(*Message) error
	Close() error
}

// HeaderStream frames messages with LSP base-protocol headers:
//
//	Content-Length: <n>\r\n\r\n<json>
type HeaderStream struct {
	r       *bufio.Reader
	w       io.Writer
	closer  io.Closer
	writeMu sync.Mutex
}

// NewHeaderStream wraps a reader/writer pair. closer may be nil.
func NewHeaderStream(r io.Reader, w io.Writer, closer io.Closer) *HeaderStream {
	return &HeaderStream{r: bufio.NewReader(r), w: w, closer: closer}
}

// Read reads one framed message. io.EOF is returned unwrapped when the
// peer closes between messages.
func (s *HeaderStream) Read() (*Message, error) {
	length := -1
	sawHeader := false
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" && !sawHeader {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if !sawHeader {
				continue
			}
			break
		}
		sawHeader = true
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header %q", line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid Content-Length %q", value)
			}
			length = n
		}
	}
	if length < 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}
	if length > MaxMessageSize {
		return nil, fmt.Errorf("message of %d bytes exceeds limit", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(s.r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &msg, nil
}

// Write writes one framed message.
func (s *HeaderStream) Write(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := fmt.Fprintf(s.w, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("write content: %w", err)
	}
	return nil
}

// Close closes the underlying closer, if any.
func (s *HeaderStream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// DecodeError reports a well-framed message whose body was not valid
// JSON-RPC. The stream stays usable after it.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode message: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }
