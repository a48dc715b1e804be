package gateway

import (
	"context"
	"log/slog"
	"time"

	"lsgw/internal/paths"
	"lsgw/internal/protocol"
)

// backendCallback is the lsp.Callback bound to one backend id. It rewrites
// URIs to workspace paths and publishes on the gateway events.
type backendCallback struct {
	id             string
	events         *Events
	paths          *paths.Transformer
	logger         *slog.Logger
	requestTimeout time.Duration
}

func (c *backendCallback) PublishDiagnostics(p protocol.PublishDiagnosticsParams) {
	p.URI = c.paths.ToWsPath(c.id, p.URI)
	c.events.publishDiagnostics(protocol.ExtendedPublishDiagnosticsParams{
		LanguageServerID: c.id,
		Params:           p,
	})
}

func (c *backendCallback) ShowMessage(p protocol.ShowMessageParams) {
	c.events.publishMessage(BackendMessage{BackendID: c.id, Params: p})
}

func (c *backendCallback) ShowMessageRequest(ctx context.Context, p protocol.ShowMessageRequestParams) (*protocol.MessageActionItem, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	item, err := c.events.Ask(ctx, BackendMessageRequest{BackendID: c.id, Params: p})
	if err != nil {
		c.logger.Warn("Message request went unanswered", "message", p.Message, "error", err)
		return nil, err
	}
	return item, nil
}

func (c *backendCallback) LogMessage(p protocol.ShowMessageParams) {
	level := slog.LevelDebug
	switch p.Type {
	case protocol.MessageError:
		level = slog.LevelError
	case protocol.MessageWarning:
		level = slog.LevelWarn
	case protocol.MessageInfo:
		level = slog.LevelInfo
	}
	c.logger.Log(context.Background(), level, p.Message)
}
