package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestHeaderStream_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	s := NewHeaderStream(&buf, &buf, nil)

	req, err := NewRequest(NumberID(7), "textDocument/hover", map[string]int{"line": 3})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if err := s.Write(req); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Content-Length: ") {
		t.Fatalf("missing header: %q", buf.String())
	}

	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.IsRequest() || got.Method != "textDocument/hover" || got.ID.String() != "n:7" {
		t.Errorf("Read() = %+v", got)
	}
	if _, err := s.Read(); err != io.EOF {
		t.Errorf("Read() at end = %v, want io.EOF", err)
	}
}

func TestHeaderStream_ExtraHeadersAndStringID(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":"abc","method":"x"}`
	raw := "Content-Type: application/vscode-jsonrpc; charset=utf-8\r\ncontent-length: " +
		itoa(len(body)) + "\r\n\r\n" + body
	s := NewHeaderStream(strings.NewReader(raw), io.Discard, nil)

	msg, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if msg.ID.String() != "s:abc" {
		t.Errorf("ID = %s, want s:abc", msg.ID.String())
	}
}

func TestHeaderStream_MissingLength(t *testing.T) {
	s := NewHeaderStream(strings.NewReader("Content-Type: x\r\n\r\n{}"), io.Discard, nil)
	if _, err := s.Read(); err == nil {
		t.Error("expected error for missing Content-Length")
	}
}

func TestHeaderStream_DecodeErrorKeepsStream(t *testing.T) {
	bad := `{"jsonrpc":"1.0"}`
	good := `{"jsonrpc":"2.0","method":"ok"}`
	raw := "Content-Length: " + itoa(len(bad)) + "\r\n\r\n" + bad +
		"Content-Length: " + itoa(len(good)) + "\r\n\r\n" + good
	s := NewHeaderStream(strings.NewReader(raw), io.Discard, nil)

	_, err := s.Read()
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("first Read() error = %v, want DecodeError", err)
	}
	msg, err := s.Read()
	if err != nil || msg.Method != "ok" {
		t.Errorf("second Read() = %+v, %v", msg, err)
	}
}

func TestMessage_NullResultIsEmitted(t *testing.T) {
	msg := &Message{ID: idPtr(NumberID(1))}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"jsonrpc":"2.0","id":1,"result":null}` {
		t.Errorf("Marshal() = %s", data)
	}
}

func idPtr(id ID) *ID { return &id }

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

// pipePair returns two connected streams.
func pipePair() (Stream, Stream) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := NewHeaderStream(ar, aw, multiCloser{ar, aw})
	b := NewHeaderStream(br, bw, multiCloser{br, bw})
	return a, b
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	for _, c := range m {
		_ = c.Close()
	}
	return nil
}

func TestConn_CallAndNotify(t *testing.T) {
	sa, sb := pipePair()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var notified []string

	server := NewConn(sb, func(ctx context.Context, conn *Conn, msg *Message) (interface{}, error) {
		switch msg.Method {
		case "echo":
			var p map[string]string
			_ = json.Unmarshal(msg.Params, &p)
			return p, nil
		case "fail":
			return nil, NewError(-27000, "nope", nil)
		case "note":
			mu.Lock()
			notified = append(notified, string(msg.Params))
			mu.Unlock()
			return nil, nil
		}
		return nil, MethodNotFoundError(msg.Method)
	})
	client := NewConn(sa, nil)
	go func() { _ = server.Run(ctx) }()
	go func() { _ = client.Run(ctx) }()

	var out map[string]string
	if err := client.Call(ctx, "echo", map[string]string{"k": "v"}, &out); err != nil {
		t.Fatalf("Call(echo): %v", err)
	}
	if out["k"] != "v" {
		t.Errorf("echo result = %v", out)
	}

	err := client.Call(ctx, "fail", nil, nil)
	var rpcErr *Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != -27000 {
		t.Errorf("Call(fail) error = %v", err)
	}

	err = client.Call(ctx, "missing", nil, nil)
	if !errors.As(err, &rpcErr) || rpcErr.Code != MethodNotFound {
		t.Errorf("Call(missing) error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := client.Notify("note", i); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	// a round trip after the notifications guarantees they were handled
	_ = client.Call(ctx, "echo", nil, nil)

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(notified, ",") != "0,1,2" {
		t.Errorf("notifications = %v, want in order", notified)
	}
}

func TestConn_CallTimeout(t *testing.T) {
	sa, sb := pipePair()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	server := NewConn(sb, func(ctx context.Context, conn *Conn, msg *Message) (interface{}, error) {
		if msg.Method == "slow" {
			<-release
		}
		return nil, nil
	})
	client := NewConn(sa, nil)
	go func() { _ = server.Run(ctx) }()
	go func() { _ = client.Run(ctx) }()
	defer close(release)

	callCtx, callCancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer callCancel()
	err := client.Call(callCtx, "slow", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Call(slow) error = %v, want DeadlineExceeded", err)
	}
}

func TestConn_CloseFailsPending(t *testing.T) {
	sa, sb := pipePair()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := NewConn(sb, func(ctx context.Context, conn *Conn, msg *Message) (interface{}, error) {
		<-ctx.Done()
		return nil, nil
	})
	client := NewConn(sa, nil)
	go func() { _ = server.Run(ctx) }()
	go func() { _ = client.Run(ctx) }()

	errCh := make(chan error, 1)
	go func() { errCh <- client.Call(ctx, "hang", nil, nil) }()

	time.Sleep(20 * time.Millisecond)
	_ = client.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("pending Call error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not released by Close")
	}

	if err := client.Notify("x", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Notify after Close = %v, want ErrClosed", err)
	}
}
