package rpc

import (
	"bytes"
	"context"
	"encoding/json"

	"lsgw/internal/jsonrpc"
	"lsgw/internal/protocol"
)

type methodFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

func (s *Server) methodTable() map[string]methodFunc {
	svc := s.svc
	return map[string]methodFunc{
		"languageServer/initialize": bind(svc.Initialize),
		"languageServer/getLanguageRegexes": func(context.Context, json.RawMessage) (interface{}, error) {
			return svc.LanguageRegexes(), nil
		},

		"textDocument/definition":        bind(svc.Definition),
		"textDocument/references":        bind(svc.References),
		"textDocument/documentSymbol":    bind(svc.DocumentSymbol),
		"textDocument/formatting":        bind(svc.Formatting),
		"textDocument/rangeFormatting":   bind(svc.RangeFormatting),
		"textDocument/onTypeFormatting":  bind(svc.OnTypeFormatting),
		"textDocument/codeAction":        bind(svc.CodeAction),
		"textDocument/completion":        bind(svc.Completion),
		"completionItem/resolve":         bind(svc.ResolveCompletionItem),
		"textDocument/hover":             bind(svc.Hover),
		"textDocument/signatureHelp":     bind(svc.SignatureHelp),
		"textDocument/documentHighlight": bind(svc.DocumentHighlight),
		"textDocument/rename":            bind(svc.Rename),
		"textDocument/fileContent":       bind(svc.FileContent),
		"textDocument/snippets":          bind(svc.Snippets),
		"workspace/symbol":               bind(svc.WorkspaceSymbol),
		"workspace/editFile":             bind(svc.EditFile),

		"textDocument/didOpen":   notification(svc.DidOpen),
		"textDocument/didChange": notification(svc.DidChange),
		"textDocument/didClose":  notification(svc.DidClose),
		"textDocument/didSave":   notification(svc.DidSave),
		"workspace/fileEvent": notification(func(ctx context.Context, ev protocol.GatewayFileEvent) error {
			svc.DidChangeWatchedFile(ctx, ev)
			return nil
		}),
	}
}

// bind adapts a typed service method to raw JSON-RPC params.
func bind[P, R any](fn func(context.Context, P) (R, error)) methodFunc {
	return func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		var params P
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		return fn(ctx, params)
	}
}

// notification adapts a service method without a result.
func notification[P any](fn func(context.Context, P) error) methodFunc {
	return func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		var params P
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		return nil, fn(ctx, params)
	}
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return jsonrpc.InvalidParamsError(err)
	}
	return nil
}
