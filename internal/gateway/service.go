// Package gateway exposes many language servers as one. It brings
// backends up on demand, fans document requests out to every backend
// matching the document and merges what they answer.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"lsgw/internal/backends"
	"lsgw/internal/errors"
	"lsgw/internal/paths"
	"lsgw/internal/protocol"
	"lsgw/internal/registry"
	"lsgw/internal/slogutil"
)

// Per-operation budgets. Parallel operations share the budget across all
// backends; sequential ones apply it to each call.
const (
	definitionTimeout  = 30 * time.Second
	referencesTimeout  = 30 * time.Second
	completionTimeout  = 30 * time.Second
	renameTimeout      = 30 * time.Second
	symbolTimeout      = 10 * time.Second
	codeActionTimeout  = 10 * time.Second
	hoverTimeout       = 10 * time.Second
	signatureTimeout   = 10 * time.Second
	highlightTimeout   = 10 * time.Second
	resolveTimeout     = 10 * time.Second
	fileContentTimeout = 10 * time.Second
	formattingTimeout  = 5 * time.Second
)

// Service answers gateway requests. All methods are safe for concurrent
// use.
type Service struct {
	life     *Initializer
	resolver *backends.Resolver
	exec     *backends.Executor
	paths    *paths.Transformer
	events   *Events
	logger   *slog.Logger

	fileLocks registry.Locks
}

// NewService wires a service over the registries.
func NewService(reg *backends.Registries, exec *backends.Executor, transformer *paths.Transformer, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	events := NewEvents()
	return &Service{
		life:     NewInitializer(reg, exec, transformer, events, logger, opts),
		resolver: backends.NewResolver(reg),
		exec:     exec,
		paths:    transformer,
		events:   events,
		logger:   logger,
	}
}

// Events returns the observer lists callers subscribe to.
func (s *Service) Events() *Events { return s.events }

// Initializer returns the lifecycle initializer.
func (s *Service) Initializer() *Initializer { return s.life }

// Initialize brings up the backends for a path and returns their merged
// capabilities.
func (s *Service) Initialize(ctx context.Context, p protocol.GatewayInitializeParams) (*protocol.ServerCapabilities, error) {
	if p.Path == "" {
		return nil, errors.New(errors.InvalidParams, "path is required", nil)
	}
	return s.life.Initialize(ctx, s.documentPath(p.Path))
}

// LanguageRegexes lists the language patterns of every registered backend.
func (s *Service) LanguageRegexes() []protocol.LanguageRegex {
	return s.resolver.LanguageRegexes()
}

// documentPath turns a caller URI into a workspace path. Callers send
// workspace paths; file URIs under the default root are accepted too.
func (s *Service) documentPath(uri string) string {
	return s.paths.WsPathFromAny("", uri)
}

// request builds a fan-out call that sends params, rewritten for each
// backend's file URI, and returns the raw answer.
func (s *Service) request(method, wsPath string, params func(fsURI string) interface{}) func(context.Context, *backends.Handle) (json.RawMessage, error) {
	return func(ctx context.Context, h *backends.Handle) (json.RawMessage, error) {
		var raw json.RawMessage
		err := h.Instance.Call(ctx, method, params(s.paths.ToFsURI(h.ID, wsPath)), &raw)
		return raw, err
	}
}

func (s *Service) malformed(backendID, method string, err error) {
	slogutil.ForBackend(s.logger, backendID).Warn("Dropping malformed answer", "method", method, "error", err.Error())
}

func requireURI(uri string) error {
	if uri == "" {
		return errors.New(errors.InvalidParams, "textDocument.uri is required", nil)
	}
	return nil
}

// Definition collects definitions from every capable backend.
func (s *Service) Definition(ctx context.Context, p protocol.TextDocumentPositionParams) ([]protocol.BackendLocation, error) {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return nil, err
	}
	return s.locations(ctx, "textDocument/definition", definitionTimeout, p.TextDocument.URI,
		func(h *backends.Handle) bool { return bool(h.Capabilities.DefinitionProvider) },
		func(fsURI string) interface{} {
			q := p
			q.TextDocument.URI = fsURI
			return q
		}), nil
}

// References collects references from every capable backend.
func (s *Service) References(ctx context.Context, p protocol.ReferenceParams) ([]protocol.BackendLocation, error) {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return nil, err
	}
	return s.locations(ctx, "textDocument/references", referencesTimeout, p.TextDocument.URI,
		func(h *backends.Handle) bool { return bool(h.Capabilities.ReferencesProvider) },
		func(fsURI string) interface{} {
			q := p
			q.TextDocument.URI = fsURI
			return q
		}), nil
}

func (s *Service) locations(ctx context.Context, method string, timeout time.Duration, uri string, applies func(*backends.Handle) bool, params func(string) interface{}) []protocol.BackendLocation {
	wsPath := s.documentPath(uri)
	out := []protocol.BackendLocation{}
	backends.Parallel(ctx, s.exec, s.resolver.Ready(wsPath), backends.Operation[json.RawMessage]{
		Method:  method,
		Applies: applies,
		Timeout: timeout,
		Call:    s.request(method, wsPath, params),
		Handle: func(h *backends.Handle, raw json.RawMessage) bool {
			locs, err := decodeLocations(raw)
			if err != nil {
				s.malformed(h.ID, method, err)
				return false
			}
			for _, l := range locs {
				out = append(out, protocol.BackendLocation{
					URI:              s.paths.ToWsPath(h.ID, l.URI),
					Range:            l.Range,
					LanguageServerID: h.ID,
				})
			}
			return false
		},
	})
	return out
}

// DocumentSymbol collects the symbols of a document from every capable
// backend. Hierarchical answers are flattened.
func (s *Service) DocumentSymbol(ctx context.Context, p protocol.DocumentSymbolParams) ([]protocol.SymbolInformation, error) {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return nil, err
	}
	const method = "textDocument/documentSymbol"
	wsPath := s.documentPath(p.TextDocument.URI)
	out := []protocol.SymbolInformation{}
	backends.Parallel(ctx, s.exec, s.resolver.Ready(wsPath), backends.Operation[json.RawMessage]{
		Method:  method,
		Applies: func(h *backends.Handle) bool { return bool(h.Capabilities.DocumentSymbolProvider) },
		Timeout: symbolTimeout,
		Call: s.request(method, wsPath, func(fsURI string) interface{} {
			return protocol.DocumentSymbolParams{TextDocument: protocol.TextDocumentIdentifier{URI: fsURI}}
		}),
		Handle: func(h *backends.Handle, raw json.RawMessage) bool {
			out = s.appendSymbols(out, h, method, raw, s.paths.ToFsURI(h.ID, wsPath))
			return false
		},
	})
	return out, nil
}

// WorkspaceSymbol queries every ready backend.
func (s *Service) WorkspaceSymbol(ctx context.Context, p protocol.WorkspaceSymbolParams) ([]protocol.SymbolInformation, error) {
	const method = "workspace/symbol"
	out := []protocol.SymbolInformation{}
	backends.Parallel(ctx, s.exec, s.resolver.All(), backends.Operation[json.RawMessage]{
		Method:  method,
		Applies: func(h *backends.Handle) bool { return bool(h.Capabilities.WorkspaceSymbolProvider) },
		Timeout: symbolTimeout,
		Call: func(ctx context.Context, h *backends.Handle) (json.RawMessage, error) {
			var raw json.RawMessage
			err := h.Instance.Call(ctx, method, p, &raw)
			return raw, err
		},
		Handle: func(h *backends.Handle, raw json.RawMessage) bool {
			out = s.appendSymbols(out, h, method, raw, "")
			return false
		},
	})
	return out, nil
}

func (s *Service) appendSymbols(out []protocol.SymbolInformation, h *backends.Handle, method string, raw json.RawMessage, docURI string) []protocol.SymbolInformation {
	symbols, err := decodeSymbols(raw, docURI)
	if err != nil {
		s.malformed(h.ID, method, err)
		return out
	}
	for _, sym := range symbols {
		sym.Location.URI = s.paths.ToWsPath(h.ID, sym.Location.URI)
		sym.LanguageServerID = h.ID
		out = append(out, sym)
	}
	return out
}

// CodeAction collects commands and code actions from every capable
// backend.
func (s *Service) CodeAction(ctx context.Context, p protocol.CodeActionParams) ([]json.RawMessage, error) {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return nil, err
	}
	const method = "textDocument/codeAction"
	wsPath := s.documentPath(p.TextDocument.URI)
	out := []json.RawMessage{}
	backends.Parallel(ctx, s.exec, s.resolver.Ready(wsPath), backends.Operation[json.RawMessage]{
		Method:  method,
		Applies: func(h *backends.Handle) bool { return bool(h.Capabilities.CodeActionProvider) },
		Timeout: codeActionTimeout,
		Call: s.request(method, wsPath, func(fsURI string) interface{} {
			q := p
			q.TextDocument.URI = fsURI
			return q
		}),
		Handle: func(h *backends.Handle, raw json.RawMessage) bool {
			if isNull(raw) {
				return false
			}
			var actions []json.RawMessage
			if err := json.Unmarshal(raw, &actions); err != nil {
				s.malformed(h.ID, method, err)
				return false
			}
			out = append(out, actions...)
			return false
		},
	})
	return out, nil
}

// Completion merges completion items from every capable backend, tagging
// each item with its backend. The list is incomplete when any backend's
// list is.
func (s *Service) Completion(ctx context.Context, p protocol.CompletionParams) (*protocol.ExtendedCompletionList, error) {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return nil, err
	}
	const method = "textDocument/completion"
	wsPath := s.documentPath(p.TextDocument.URI)
	out := &protocol.ExtendedCompletionList{Items: []protocol.ExtendedCompletionItem{}}
	backends.Parallel(ctx, s.exec, s.resolver.Ready(wsPath), backends.Operation[json.RawMessage]{
		Method:  method,
		Applies: func(h *backends.Handle) bool { return h.Capabilities.CompletionProvider != nil },
		Timeout: completionTimeout,
		Call: s.request(method, wsPath, func(fsURI string) interface{} {
			q := p
			q.TextDocument.URI = fsURI
			return q
		}),
		Handle: func(h *backends.Handle, raw json.RawMessage) bool {
			list, err := decodeCompletion(raw)
			if err != nil {
				s.malformed(h.ID, method, err)
				return false
			}
			out.IsIncomplete = out.IsIncomplete || list.IsIncomplete
			for _, item := range list.Items {
				out.Items = append(out.Items, protocol.ExtendedCompletionItem{Item: item, LanguageServerID: h.ID})
			}
			return false
		},
	})
	return out, nil
}

// ResolveCompletionItem asks the item's backend for the missing details.
// Items of unknown or non-resolving backends come back unchanged.
func (s *Service) ResolveCompletionItem(ctx context.Context, item protocol.ExtendedCompletionItem) (protocol.ExtendedCompletionItem, error) {
	h, ok := s.resolver.ByID(item.LanguageServerID)
	if !ok {
		return item, nil
	}
	if opts := h.Capabilities.CompletionProvider; opts == nil || !opts.ResolveProvider {
		return item, nil
	}

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	var resolved json.RawMessage
	if err := h.Instance.Call(ctx, "completionItem/resolve", item.Item, &resolved); err != nil {
		slogutil.ForBackend(s.logger, h.ID).Warn("Completion resolve failed", "error", err.Error())
		return item, nil
	}
	if isNull(resolved) {
		return item, nil
	}
	return protocol.ExtendedCompletionItem{Item: resolved, LanguageServerID: h.ID}, nil
}

// Hover concatenates the hover contents of every capable backend. The
// range is taken from the first backend reporting one.
func (s *Service) Hover(ctx context.Context, p protocol.TextDocumentPositionParams) (*protocol.Hover, error) {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return nil, err
	}
	const method = "textDocument/hover"
	wsPath := s.documentPath(p.TextDocument.URI)
	out := &protocol.Hover{Contents: []json.RawMessage{}}
	backends.Parallel(ctx, s.exec, s.resolver.Ready(wsPath), backends.Operation[json.RawMessage]{
		Method:  method,
		Applies: func(h *backends.Handle) bool { return bool(h.Capabilities.HoverProvider) },
		Timeout: hoverTimeout,
		Call: s.request(method, wsPath, func(fsURI string) interface{} {
			q := p
			q.TextDocument.URI = fsURI
			return q
		}),
		Handle: func(h *backends.Handle, raw json.RawMessage) bool {
			contents, rng, err := decodeHoverContents(raw)
			if err != nil {
				s.malformed(h.ID, method, err)
				return false
			}
			out.Contents = append(out.Contents, contents...)
			if out.Range == nil {
				out.Range = rng
			}
			return false
		},
	})
	return out, nil
}

// SignatureHelp asks capable backends in order and returns the first
// answer carrying signatures, or nil.
func (s *Service) SignatureHelp(ctx context.Context, p protocol.TextDocumentPositionParams) (*protocol.SignatureHelp, error) {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return nil, err
	}
	const method = "textDocument/signatureHelp"
	wsPath := s.documentPath(p.TextDocument.URI)
	var out *protocol.SignatureHelp
	backends.Sequential(ctx, s.exec, s.resolver.Ready(wsPath), backends.Operation[json.RawMessage]{
		Method:  method,
		Applies: func(h *backends.Handle) bool { return h.Capabilities.SignatureHelpProvider != nil },
		Timeout: signatureTimeout,
		Call: s.request(method, wsPath, func(fsURI string) interface{} {
			q := p
			q.TextDocument.URI = fsURI
			return q
		}),
		Handle: func(h *backends.Handle, raw json.RawMessage) bool {
			if isNull(raw) {
				return false
			}
			var help protocol.SignatureHelp
			if err := json.Unmarshal(raw, &help); err != nil {
				s.malformed(h.ID, method, err)
				return false
			}
			if len(help.Signatures) == 0 {
				return false
			}
			out = &help
			return true
		},
	})
	return out, nil
}

// DocumentHighlight asks capable backends in order and returns the first
// non-empty list of highlights.
func (s *Service) DocumentHighlight(ctx context.Context, p protocol.TextDocumentPositionParams) ([]protocol.DocumentHighlight, error) {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return nil, err
	}
	const method = "textDocument/documentHighlight"
	wsPath := s.documentPath(p.TextDocument.URI)
	out := []protocol.DocumentHighlight{}
	backends.Sequential(ctx, s.exec, s.resolver.Ready(wsPath), backends.Operation[json.RawMessage]{
		Method:  method,
		Applies: func(h *backends.Handle) bool { return bool(h.Capabilities.DocumentHighlightProvider) },
		Timeout: highlightTimeout,
		Call: s.request(method, wsPath, func(fsURI string) interface{} {
			q := p
			q.TextDocument.URI = fsURI
			return q
		}),
		Handle: func(h *backends.Handle, raw json.RawMessage) bool {
			if isNull(raw) {
				return false
			}
			var highlights []protocol.DocumentHighlight
			if err := json.Unmarshal(raw, &highlights); err != nil {
				s.malformed(h.ID, method, err)
				return false
			}
			if len(highlights) == 0 {
				return false
			}
			out = highlights
			return true
		},
	})
	return out, nil
}

// Formatting returns the edits of the first capable backend that answers.
func (s *Service) Formatting(ctx context.Context, p protocol.DocumentFormattingParams) ([]protocol.TextEdit, error) {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return nil, err
	}
	return s.format(ctx, "textDocument/formatting", p.TextDocument.URI,
		func(h *backends.Handle) bool { return bool(h.Capabilities.DocumentFormattingProvider) },
		func(fsURI string) interface{} {
			q := p
			q.TextDocument.URI = fsURI
			return q
		}), nil
}

// RangeFormatting returns the edits of the first capable backend that
// answers.
func (s *Service) RangeFormatting(ctx context.Context, p protocol.DocumentRangeFormattingParams) ([]protocol.TextEdit, error) {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return nil, err
	}
	return s.format(ctx, "textDocument/rangeFormatting", p.TextDocument.URI,
		func(h *backends.Handle) bool { return bool(h.Capabilities.DocumentRangeFormattingProvider) },
		func(fsURI string) interface{} {
			q := p
			q.TextDocument.URI = fsURI
			return q
		}), nil
}

// OnTypeFormatting returns the edits of the first capable backend that
// answers.
func (s *Service) OnTypeFormatting(ctx context.Context, p protocol.DocumentOnTypeFormattingParams) ([]protocol.TextEdit, error) {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return nil, err
	}
	return s.format(ctx, "textDocument/onTypeFormatting", p.TextDocument.URI,
		func(h *backends.Handle) bool { return h.Capabilities.DocumentOnTypeFormattingProvider != nil },
		func(fsURI string) interface{} {
			q := p
			q.TextDocument.URI = fsURI
			return q
		}), nil
}

func (s *Service) format(ctx context.Context, method, uri string, applies func(*backends.Handle) bool, params func(string) interface{}) []protocol.TextEdit {
	wsPath := s.documentPath(uri)
	out := []protocol.TextEdit{}
	backends.Sequential(ctx, s.exec, s.resolver.Ready(wsPath), backends.Operation[json.RawMessage]{
		Method:  method,
		Applies: applies,
		Timeout: formattingTimeout,
		Call:    s.request(method, wsPath, params),
		Handle: func(h *backends.Handle, raw json.RawMessage) bool {
			if isNull(raw) {
				return true
			}
			var edits []protocol.TextEdit
			if err := json.Unmarshal(raw, &edits); err != nil {
				s.malformed(h.ID, method, err)
				return false
			}
			out = edits
			return true
		},
	})
	return out
}

// Rename collects one workspace edit per capable backend, keyed by backend
// id. Edits carry the text of the line they start on.
func (s *Service) Rename(ctx context.Context, p protocol.RenameParams) (*protocol.RenameResult, error) {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return nil, err
	}
	const method = "textDocument/rename"
	wsPath := s.documentPath(p.TextDocument.URI)
	out := &protocol.RenameResult{Edits: map[string]protocol.ExtendedWorkspaceEdit{}}
	backends.Parallel(ctx, s.exec, s.resolver.Ready(wsPath), backends.Operation[json.RawMessage]{
		Method:  method,
		Applies: func(h *backends.Handle) bool { return bool(h.Capabilities.RenameProvider) },
		Timeout: renameTimeout,
		Call: s.request(method, wsPath, func(fsURI string) interface{} {
			q := p
			q.TextDocument.URI = fsURI
			return q
		}),
		Handle: func(h *backends.Handle, raw json.RawMessage) bool {
			if isNull(raw) {
				return false
			}
			var edit protocol.WorkspaceEdit
			if err := json.Unmarshal(raw, &edit); err != nil {
				s.malformed(h.ID, method, err)
				return false
			}
			if ext := s.extendRename(h.ID, edit); len(ext.DocumentChanges) > 0 {
				out.Edits[h.ID] = ext
			}
			return false
		},
	})
	return out, nil
}

// DidOpen forwards the notification to every ready backend matching the
// document.
func (s *Service) DidOpen(_ context.Context, p protocol.DidOpenTextDocumentParams) error {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return err
	}
	s.forward("textDocument/didOpen", p.TextDocument.URI, func(fsURI string) interface{} {
		q := p
		q.TextDocument.URI = fsURI
		return q
	})
	return nil
}

// DidChange forwards the notification to every ready backend matching the
// document.
func (s *Service) DidChange(_ context.Context, p protocol.DidChangeTextDocumentParams) error {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return err
	}
	s.forward("textDocument/didChange", p.TextDocument.URI, func(fsURI string) interface{} {
		q := p
		q.TextDocument.URI = fsURI
		return q
	})
	return nil
}

// DidClose forwards the notification to every ready backend matching the
// document.
func (s *Service) DidClose(_ context.Context, p protocol.DidCloseTextDocumentParams) error {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return err
	}
	s.forward("textDocument/didClose", p.TextDocument.URI, func(fsURI string) interface{} {
		q := p
		q.TextDocument.URI = fsURI
		return q
	})
	return nil
}

// DidSave forwards the notification to every ready backend matching the
// document.
func (s *Service) DidSave(_ context.Context, p protocol.DidSaveTextDocumentParams) error {
	if err := requireURI(p.TextDocument.URI); err != nil {
		return err
	}
	s.forward("textDocument/didSave", p.TextDocument.URI, func(fsURI string) interface{} {
		q := p
		q.TextDocument.URI = fsURI
		return q
	})
	return nil
}

func (s *Service) forward(method, uri string, params func(string) interface{}) {
	wsPath := s.documentPath(uri)
	for _, h := range s.resolver.Ready(wsPath) {
		if err := h.Instance.Notify(method, params(s.paths.ToFsURI(h.ID, wsPath))); err != nil {
			slogutil.ForBackend(s.logger, h.ID).Warn("Failed to forward notification", "method", method, "error", err.Error())
		}
	}
}

// FileContent asks one backend for the content of a URI it serves, such
// as a decompiled library class.
func (s *Service) FileContent(ctx context.Context, p protocol.FileContentParams) (string, error) {
	h, ok := s.resolver.ByID(p.LanguageServerID)
	if !ok {
		return "", errors.ForBackend(errors.NotFound, p.LanguageServerID, "did not find language server", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, fileContentTimeout)
	defer cancel()

	var content string
	if err := h.Instance.Call(ctx, "$/fileContent", map[string]string{"uri": p.URI}, &content); err != nil {
		return "", errors.ForBackend(errors.PerCallError, h.ID, "file content request failed", err)
	}
	return content, nil
}
