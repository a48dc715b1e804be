package backends

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"lsgw/internal/backends/lsp"
	"lsgw/internal/protocol"
)

// fakeInstance answers Call with a fixed result after an optional delay.
type fakeInstance struct {
	id     string
	result interface{}
	err    error
	delay  time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeInstance) ID() string { return f.id }

func (f *fakeInstance) Initialize(context.Context, *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	return &protocol.InitializeResult{}, nil
}

func (f *fakeInstance) Call(ctx context.Context, method string, params, result interface{}) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	if result == nil || f.result == nil {
		return nil
	}
	data, err := json.Marshal(f.result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}

func (f *fakeInstance) Notify(string, interface{}) error { return nil }

func (f *fakeInstance) Shutdown(context.Context) error { return nil }

func (f *fakeInstance) Stats() lsp.Stats { return lsp.Stats{} }

func (f *fakeInstance) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func handleFor(inst *fakeInstance, caps *protocol.ServerCapabilities) *Handle {
	if caps == nil {
		caps = &protocol.ServerCapabilities{}
	}
	return &Handle{ID: inst.id, Instance: inst, Capabilities: caps}
}
