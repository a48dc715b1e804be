package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"lsgw/internal/protocol"
)

// ErrNoResponder is returned by Ask when nobody is subscribed to answer
// message requests.
var ErrNoResponder = errors.New("no message responder subscribed")

// BackendInitialized is published once per backend when its handshake
// succeeds.
type BackendInitialized struct {
	EventID      string                       `json:"eventId"`
	BackendID    string                       `json:"languageServerId"`
	Capabilities *protocol.ServerCapabilities `json:"capabilities"`
	At           time.Time                    `json:"at"`
}

// BackendMessage is a window/showMessage pushed by a backend.
type BackendMessage struct {
	BackendID string                     `json:"languageServerId"`
	Params    protocol.ShowMessageParams `json:"params"`
}

// BackendMessageRequest is a window/showMessageRequest awaiting a caller
// answer.
type BackendMessageRequest struct {
	BackendID string                            `json:"languageServerId"`
	Params    protocol.ShowMessageRequestParams `json:"params"`
}

// Responder answers a message request on behalf of a caller.
type Responder func(ctx context.Context, req BackendMessageRequest) (*protocol.MessageActionItem, error)

// Observers is an ordered list of subscribers for one event kind.
type Observers[T any] struct {
	mu   sync.RWMutex
	subs []subscriber[T]
}

type subscriber[T any] struct {
	id string
	fn T
}

// Subscribe adds fn and returns its subscription id.
func (o *Observers[T]) Subscribe(fn T) string {
	id := uuid.New().String()
	o.mu.Lock()
	o.subs = append(o.subs, subscriber[T]{id: id, fn: fn})
	o.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (o *Observers[T]) Unsubscribe(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s.id == id {
			o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscribers.
func (o *Observers[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs)
}

func (o *Observers[T]) snapshot() []T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]T, len(o.subs))
	for i, s := range o.subs {
		out[i] = s.fn
	}
	return out
}

// Events fans backend events out to subscribed callers. Each kind has its
// own observer list.
type Events struct {
	Initialized Observers[func(BackendInitialized)]
	Diagnostics Observers[func(protocol.ExtendedPublishDiagnosticsParams)]
	Messages    Observers[func(BackendMessage)]
	Responders  Observers[Responder]
}

// NewEvents creates empty observer lists.
func NewEvents() *Events {
	return &Events{}
}

func (e *Events) publishInitialized(ev BackendInitialized) {
	for _, fn := range e.Initialized.snapshot() {
		fn(ev)
	}
}

func (e *Events) publishDiagnostics(p protocol.ExtendedPublishDiagnosticsParams) {
	for _, fn := range e.Diagnostics.snapshot() {
		fn(p)
	}
}

func (e *Events) publishMessage(m BackendMessage) {
	for _, fn := range e.Messages.snapshot() {
		fn(m)
	}
}

// Ask offers req to the responders in subscription order and returns the
// first answer. Responders that fail are skipped.
func (e *Events) Ask(ctx context.Context, req BackendMessageRequest) (*protocol.MessageActionItem, error) {
	responders := e.Responders.snapshot()
	if len(responders) == 0 {
		return nil, ErrNoResponder
	}
	var lastErr error
	for _, r := range responders {
		item, err := r(ctx, req)
		if err == nil {
			return item, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func newEventID() string {
	return uuid.New().String()
}
