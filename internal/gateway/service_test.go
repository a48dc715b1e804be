package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lsgw/internal/backends/lsp/lsptest"
	"lsgw/internal/errors"
	"lsgw/internal/protocol"
)

func TestDefinition_MergesAndTranslates(t *testing.T) {
	caps := protocol.ServerCapabilities{DefinitionProvider: true}
	var g *testGateway
	a := lsptest.New(caps).Handle("textDocument/definition", func(_ context.Context, params json.RawMessage) (interface{}, error) {
		return []protocol.Location{{URI: uriOf(params), Range: rng(1, 0, 1, 4)}}, nil
	})
	b := lsptest.New(caps).Handle("textDocument/definition", func(context.Context, json.RawMessage) (interface{}, error) {
		return protocol.Location{URI: g.fsURI("/proj/lib.ts"), Range: rng(7, 2, 7, 9)}, nil
	})
	g = newTestGateway(t, Options{},
		testBackend{id: "b", pattern: `\.ts$`, srv: b},
		testBackend{id: "a", pattern: `\.ts$`, srv: a},
	)
	g.initialize(t, "/proj/main.ts")

	locs, err := g.svc.Definition(context.Background(), position(1, 2))
	require.NoError(t, err)

	assert.Equal(t, []protocol.BackendLocation{
		{URI: "/proj/main.ts", Range: rng(1, 0, 1, 4), LanguageServerID: "a"},
		{URI: "/proj/lib.ts", Range: rng(7, 2, 7, 9), LanguageServerID: "b"},
	}, locs)
}

func TestReferences_IsolatesFailingBackend(t *testing.T) {
	caps := protocol.ServerCapabilities{ReferencesProvider: true}
	var g *testGateway
	good := lsptest.New(caps).Handle("textDocument/references", func(context.Context, json.RawMessage) (interface{}, error) {
		return []protocol.Location{{URI: g.fsURI("/proj/x.ts")}}, nil
	})
	bad := lsptest.New(caps).Handle("textDocument/references", func(context.Context, json.RawMessage) (interface{}, error) {
		return nil, stderrors.New("index not ready")
	})
	g = newTestGateway(t, Options{},
		testBackend{id: "bad", pattern: `\.ts$`, srv: bad},
		testBackend{id: "good", pattern: `\.ts$`, srv: good},
	)
	g.initialize(t, "/proj/main.ts")

	locs, err := g.svc.References(context.Background(), protocol.ReferenceParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "/proj/main.ts"},
	})
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "good", locs[0].LanguageServerID)
	assert.Equal(t, "/proj/x.ts", locs[0].URI)
}

func TestDefinition_SkipsIncapableBackends(t *testing.T) {
	capable := lsptest.New(protocol.ServerCapabilities{DefinitionProvider: true}).
		Handle("textDocument/definition", reply([]protocol.Location{}))
	incapable := lsptest.New(protocol.ServerCapabilities{HoverProvider: true})
	g := newTestGateway(t, Options{},
		testBackend{id: "capable", pattern: `\.ts$`, srv: capable},
		testBackend{id: "incapable", pattern: `\.ts$`, srv: incapable},
	)
	g.initialize(t, "/proj/main.ts")

	locs, err := g.svc.Definition(context.Background(), position(0, 0))
	require.NoError(t, err)

	assert.Empty(t, locs)
	assert.Equal(t, 1, capable.Requests("textDocument/definition"))
	assert.Equal(t, 0, incapable.Requests("textDocument/definition"))
}

func TestDefinition_RejectsMissingURI(t *testing.T) {
	g := newTestGateway(t, Options{})
	_, err := g.svc.Definition(context.Background(), protocol.TextDocumentPositionParams{})
	assert.True(t, errors.IsCode(err, errors.InvalidParams))
}

func TestCompletion_TagsItemsAndMergesIncomplete(t *testing.T) {
	caps := protocol.ServerCapabilities{CompletionProvider: &protocol.CompletionOptions{}}
	list := lsptest.New(caps).Handle("textDocument/completion", reply(map[string]interface{}{
		"isIncomplete": true,
		"items":        []map[string]string{{"label": "foo"}},
	}))
	array := lsptest.New(caps).Handle("textDocument/completion", reply([]map[string]string{
		{"label": "bar"}, {"label": "baz"},
	}))
	g := newTestGateway(t, Options{},
		testBackend{id: "array", pattern: `\.ts$`, srv: array},
		testBackend{id: "list", pattern: `\.ts$`, srv: list},
	)
	g.initialize(t, "/proj/main.ts")

	got, err := g.svc.Completion(context.Background(), protocol.CompletionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "/proj/main.ts"},
	})
	require.NoError(t, err)

	assert.True(t, got.IsIncomplete)
	require.Len(t, got.Items, 3)
	ids := []string{got.Items[0].LanguageServerID, got.Items[1].LanguageServerID, got.Items[2].LanguageServerID}
	assert.Equal(t, []string{"array", "array", "list"}, ids)
	assert.JSONEq(t, `{"label":"foo"}`, string(got.Items[2].Item))
}

func TestResolveCompletionItem(t *testing.T) {
	srv := lsptest.New(protocol.ServerCapabilities{
		CompletionProvider: &protocol.CompletionOptions{ResolveProvider: true},
	}).Handle("completionItem/resolve", func(_ context.Context, params json.RawMessage) (interface{}, error) {
		var item map[string]interface{}
		_ = json.Unmarshal(params, &item)
		item["detail"] = "func foo()"
		return item, nil
	})
	g := newTestGateway(t, Options{}, testBackend{id: "ts", pattern: `\.ts$`, srv: srv})
	g.initialize(t, "/proj/main.ts")

	resolved, err := g.svc.ResolveCompletionItem(context.Background(), protocol.ExtendedCompletionItem{
		Item:             json.RawMessage(`{"label":"foo"}`),
		LanguageServerID: "ts",
	})
	require.NoError(t, err)
	assert.Equal(t, "ts", resolved.LanguageServerID)
	assert.JSONEq(t, `{"label":"foo","detail":"func foo()"}`, string(resolved.Item))

	orphan := protocol.ExtendedCompletionItem{Item: json.RawMessage(`{"label":"x"}`), LanguageServerID: "ghost"}
	unchanged, err := g.svc.ResolveCompletionItem(context.Background(), orphan)
	require.NoError(t, err)
	assert.Equal(t, orphan, unchanged)
}

func TestHover_ConcatenatesContents(t *testing.T) {
	caps := protocol.ServerCapabilities{HoverProvider: true}
	marked := lsptest.New(caps).Handle("textDocument/hover", reply(map[string]interface{}{
		"contents": []string{"one", "two"},
		"range":    rng(0, 0, 0, 3),
	}))
	markup := lsptest.New(caps).Handle("textDocument/hover", reply(map[string]interface{}{
		"contents": map[string]string{"kind": "markdown", "value": "three"},
	}))
	empty := lsptest.New(caps).Handle("textDocument/hover", reply(nil))
	g := newTestGateway(t, Options{},
		testBackend{id: "a", pattern: `\.ts$`, srv: marked},
		testBackend{id: "b", pattern: `\.ts$`, srv: markup},
		testBackend{id: "c", pattern: `\.ts$`, srv: empty},
	)
	g.initialize(t, "/proj/main.ts")

	hover, err := g.svc.Hover(context.Background(), position(0, 1))
	require.NoError(t, err)

	require.Len(t, hover.Contents, 3)
	assert.JSONEq(t, `"one"`, string(hover.Contents[0]))
	assert.JSONEq(t, `"two"`, string(hover.Contents[1]))
	assert.JSONEq(t, `{"kind":"markdown","value":"three"}`, string(hover.Contents[2]))
	require.NotNil(t, hover.Range)
	assert.Equal(t, rng(0, 0, 0, 3), *hover.Range)
}

func TestSignatureHelp_FirstNonEmptyWins(t *testing.T) {
	caps := protocol.ServerCapabilities{SignatureHelpProvider: &protocol.SignatureHelpOptions{}}
	none := lsptest.New(caps).Handle("textDocument/signatureHelp", reply(map[string]interface{}{"signatures": []string{}}))
	some := lsptest.New(caps).Handle("textDocument/signatureHelp", reply(map[string]interface{}{
		"signatures": []map[string]string{{"label": "foo(a int)"}},
	}))
	later := lsptest.New(caps).Handle("textDocument/signatureHelp", reply(map[string]interface{}{
		"signatures": []map[string]string{{"label": "never"}},
	}))
	g := newTestGateway(t, Options{},
		testBackend{id: "a", pattern: `\.ts$`, srv: none},
		testBackend{id: "b", pattern: `\.ts$`, srv: some},
		testBackend{id: "c", pattern: `\.ts$`, srv: later},
	)
	g.initialize(t, "/proj/main.ts")

	help, err := g.svc.SignatureHelp(context.Background(), position(3, 4))
	require.NoError(t, err)

	require.NotNil(t, help)
	require.Len(t, help.Signatures, 1)
	assert.JSONEq(t, `{"label":"foo(a int)"}`, string(help.Signatures[0]))
	assert.Equal(t, 1, none.Requests("textDocument/signatureHelp"))
	assert.Equal(t, 0, later.Requests("textDocument/signatureHelp"))
}

func TestDocumentHighlight_FirstNonEmptyWins(t *testing.T) {
	caps := protocol.ServerCapabilities{DocumentHighlightProvider: true}
	none := lsptest.New(caps).Handle("textDocument/documentHighlight", reply([]protocol.DocumentHighlight{}))
	some := lsptest.New(caps).Handle("textDocument/documentHighlight", reply([]protocol.DocumentHighlight{
		{Range: rng(2, 0, 2, 3), Kind: 1},
	}))
	g := newTestGateway(t, Options{},
		testBackend{id: "a", pattern: `\.ts$`, srv: none},
		testBackend{id: "b", pattern: `\.ts$`, srv: some},
	)
	g.initialize(t, "/proj/main.ts")

	got, err := g.svc.DocumentHighlight(context.Background(), position(2, 1))
	require.NoError(t, err)
	assert.Equal(t, []protocol.DocumentHighlight{{Range: rng(2, 0, 2, 3), Kind: 1}}, got)
}

func TestFormatting_FirstCapableBackendOnly(t *testing.T) {
	caps := protocol.ServerCapabilities{DocumentFormattingProvider: true}
	first := lsptest.New(caps).Handle("textDocument/formatting", reply([]protocol.TextEdit{
		{Range: rng(0, 0, 0, 0), NewText: "  "},
	}))
	second := lsptest.New(caps).Handle("textDocument/formatting", reply([]protocol.TextEdit{}))
	g := newTestGateway(t, Options{},
		testBackend{id: "a", pattern: `\.ts$`, srv: first},
		testBackend{id: "b", pattern: `\.ts$`, srv: second},
	)
	g.initialize(t, "/proj/main.ts")

	edits, err := g.svc.Formatting(context.Background(), protocol.DocumentFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "/proj/main.ts"},
		Options:      protocol.FormattingOptions{"tabSize": 2, "insertSpaces": true},
	})
	require.NoError(t, err)

	assert.Equal(t, []protocol.TextEdit{{Range: rng(0, 0, 0, 0), NewText: "  "}}, edits)
	assert.Equal(t, 0, second.Requests("textDocument/formatting"))
}

func TestDocumentSymbol_FlattensHierarchy(t *testing.T) {
	caps := protocol.ServerCapabilities{DocumentSymbolProvider: true}
	srv := lsptest.New(caps).Handle("textDocument/documentSymbol", reply([]protocol.DocumentSymbol{{
		Name:           "Server",
		Kind:           5,
		Range:          rng(0, 0, 10, 1),
		SelectionRange: rng(0, 6, 0, 12),
		Children: []protocol.DocumentSymbol{{
			Name:           "start",
			Kind:           6,
			Range:          rng(2, 2, 4, 3),
			SelectionRange: rng(2, 2, 2, 7),
		}},
	}}))
	g := newTestGateway(t, Options{}, testBackend{id: "ts", pattern: `\.ts$`, srv: srv})
	g.initialize(t, "/proj/main.ts")

	symbols, err := g.svc.DocumentSymbol(context.Background(), protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "/proj/main.ts"},
	})
	require.NoError(t, err)

	require.Len(t, symbols, 2)
	assert.Equal(t, "Server", symbols[0].Name)
	assert.Equal(t, "/proj/main.ts", symbols[0].Location.URI)
	assert.Equal(t, "start", symbols[1].Name)
	assert.Equal(t, "Server", symbols[1].ContainerName)
	assert.Equal(t, "ts", symbols[1].LanguageServerID)
}

func TestWorkspaceSymbol_QueriesAllReadyBackends(t *testing.T) {
	caps := protocol.ServerCapabilities{WorkspaceSymbolProvider: true}
	var g *testGateway
	ts := lsptest.New(caps).Handle("workspace/symbol", func(context.Context, json.RawMessage) (interface{}, error) {
		return []protocol.SymbolInformation{{Name: "Widget", Kind: 5, Location: protocol.Location{URI: g.fsURI("/proj/w.ts")}}}, nil
	})
	py := lsptest.New(caps).Handle("workspace/symbol", func(context.Context, json.RawMessage) (interface{}, error) {
		return []protocol.SymbolInformation{{Name: "widget", Kind: 12, Location: protocol.Location{URI: g.fsURI("/proj/w.py")}}}, nil
	})
	g = newTestGateway(t, Options{},
		testBackend{id: "py", pattern: `\.py$`, srv: py},
		testBackend{id: "ts", pattern: `\.ts$`, srv: ts},
	)
	g.initialize(t, "/proj/main.ts")
	g.initialize(t, "/proj/main.py")

	symbols, err := g.svc.WorkspaceSymbol(context.Background(), protocol.WorkspaceSymbolParams{Query: "widget"})
	require.NoError(t, err)

	require.Len(t, symbols, 2)
	assert.Equal(t, "/proj/w.py", symbols[0].Location.URI)
	assert.Equal(t, "py", symbols[0].LanguageServerID)
	assert.Equal(t, "/proj/w.ts", symbols[1].Location.URI)
}

func TestRename_GroupsPerBackendWithLineText(t *testing.T) {
	caps := protocol.ServerCapabilities{RenameProvider: true}
	var g *testGateway
	srv := lsptest.New(caps).Handle("textDocument/rename", func(context.Context, json.RawMessage) (interface{}, error) {
		return protocol.WorkspaceEdit{Changes: map[string][]protocol.TextEdit{
			g.fsURI("/proj/main.ts"): {{Range: rng(1, 6, 1, 9), NewText: "bar"}},
		}}, nil
	})
	silent := lsptest.New(caps).Handle("textDocument/rename", reply(nil))
	g = newTestGateway(t, Options{},
		testBackend{id: "ts", pattern: `\.ts$`, srv: srv},
		testBackend{id: "quiet", pattern: `\.ts$`, srv: silent},
	)
	require.NoError(t, os.MkdirAll(filepath.Join(g.root, "proj"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(g.root, "proj", "main.ts"), []byte("// x\nconst foo = 1\n"), 0644))
	g.initialize(t, "/proj/main.ts")

	result, err := g.svc.Rename(context.Background(), protocol.RenameParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "/proj/main.ts"},
		Position:     protocol.Position{Line: 1, Character: 7},
		NewName:      "bar",
	})
	require.NoError(t, err)

	require.Contains(t, result.Edits, "ts")
	assert.NotContains(t, result.Edits, "quiet")
	changes := result.Edits["ts"].DocumentChanges
	require.Len(t, changes, 1)
	assert.Equal(t, "/proj/main.ts", changes[0].TextDocument.URI)
	assert.Equal(t, []protocol.ExtendedTextEdit{{
		Range:       rng(1, 6, 1, 9),
		NewText:     "bar",
		LineText:    "const foo = 1",
		InLineStart: 6,
		InLineEnd:   9,
	}}, changes[0].Edits)
}

func TestDidOpen_ForwardsToMatchingBackends(t *testing.T) {
	a := lsptest.New(protocol.ServerCapabilities{})
	b := lsptest.New(protocol.ServerCapabilities{})
	py := lsptest.New(protocol.ServerCapabilities{})
	g := newTestGateway(t, Options{},
		testBackend{id: "a", pattern: `\.ts$`, srv: a},
		testBackend{id: "b", pattern: `\.ts$`, srv: b},
		testBackend{id: "py", pattern: `\.py$`, srv: py},
	)
	g.initialize(t, "/proj/main.ts")
	g.initialize(t, "/proj/main.py")

	err := g.svc.DidOpen(context.Background(), protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: "/proj/main.ts", LanguageID: "typescript", Text: "let x"},
	})
	require.NoError(t, err)

	for _, srv := range []*lsptest.Server{a, b} {
		assert.Eventually(t, func() bool {
			return len(srv.Notifications("textDocument/didOpen")) == 1
		}, time.Second, 10*time.Millisecond)
	}
	msg := a.Notifications("textDocument/didOpen")[0]
	assert.Equal(t, g.fsURI("/proj/main.ts"), uriOf(msg.Params))
	assert.Empty(t, py.Notifications("textDocument/didOpen"))
}

func TestFileContent(t *testing.T) {
	srv := lsptest.New(protocol.ServerCapabilities{}).Handle("$/fileContent", reply("class Decompiled {}"))
	g := newTestGateway(t, Options{}, testBackend{id: "java", pattern: `\.java$`, srv: srv})
	g.initialize(t, "/proj/A.java")

	content, err := g.svc.FileContent(context.Background(), protocol.FileContentParams{
		LanguageServerID: "java",
		URI:              "jdt://contents/rt.jar/java.lang/Object.class",
	})
	require.NoError(t, err)
	assert.Equal(t, "class Decompiled {}", content)

	_, err = g.svc.FileContent(context.Background(), protocol.FileContentParams{LanguageServerID: "ghost"})
	assert.True(t, errors.IsCode(err, errors.NotFound))
}

func TestDidChangeWatchedFile_RoutesByGlob(t *testing.T) {
	ts := lsptest.New(protocol.ServerCapabilities{})
	golang := lsptest.New(protocol.ServerCapabilities{})
	g := newTestGateway(t, Options{},
		testBackend{id: "go", pattern: `\.go$`, watch: []string{"go.mod"}, srv: golang},
		testBackend{id: "ts", pattern: `\.ts$`, watch: []string{"**/package.json"}, srv: ts},
	)
	g.initialize(t, "/proj/main.ts")
	g.initialize(t, "/proj/main.go")

	n := g.svc.DidChangeWatchedFile(context.Background(), protocol.GatewayFileEvent{Path: "/proj/package.json", Type: protocol.FileChanged})

	assert.Equal(t, 1, n)
	assert.Eventually(t, func() bool {
		return len(ts.Notifications("workspace/didChangeWatchedFiles")) == 1
	}, time.Second, 10*time.Millisecond)

	var params protocol.DidChangeWatchedFilesParams
	require.NoError(t, json.Unmarshal(ts.Notifications("workspace/didChangeWatchedFiles")[0].Params, &params))
	assert.Equal(t, []protocol.FileEvent{{URI: g.fsURI("/proj/package.json"), Type: protocol.FileChanged}}, params.Changes)
	assert.Empty(t, golang.Notifications("workspace/didChangeWatchedFiles"))
}

func TestEvents_DiagnosticsUseWorkspacePaths(t *testing.T) {
	srv := lsptest.New(protocol.ServerCapabilities{})
	g := newTestGateway(t, Options{}, testBackend{id: "ts", pattern: `\.ts$`, srv: srv})

	got := make(chan protocol.ExtendedPublishDiagnosticsParams, 1)
	g.svc.Events().Diagnostics.Subscribe(func(p protocol.ExtendedPublishDiagnosticsParams) {
		got <- p
	})
	g.initialize(t, "/proj/main.ts")

	require.NoError(t, srv.Notify("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         g.fsURI("/proj/main.ts"),
		Diagnostics: []protocol.Diagnostic{{Message: "unused variable"}},
	}))

	select {
	case p := <-got:
		assert.Equal(t, "ts", p.LanguageServerID)
		assert.Equal(t, "/proj/main.ts", p.Params.URI)
		require.Len(t, p.Params.Diagnostics, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("diagnostics were not published")
	}
}

func TestEvents_MessageRequestReachesResponder(t *testing.T) {
	srv := lsptest.New(protocol.ServerCapabilities{})
	g := newTestGateway(t, Options{}, testBackend{id: "ts", pattern: `\.ts$`, srv: srv})

	var mu sync.Mutex
	var asked []BackendMessageRequest
	g.svc.Events().Responders.Subscribe(Responder(func(_ context.Context, req BackendMessageRequest) (*protocol.MessageActionItem, error) {
		mu.Lock()
		asked = append(asked, req)
		mu.Unlock()
		return &protocol.MessageActionItem{Title: req.Params.Actions[1].Title}, nil
	}))
	g.initialize(t, "/proj/main.ts")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var answer protocol.MessageActionItem
	err := srv.Call(ctx, "window/showMessageRequest", protocol.ShowMessageRequestParams{
		Type:    protocol.MessageInfo,
		Message: "Download SDK?",
		Actions: []protocol.MessageActionItem{{Title: "No"}, {Title: "Yes"}},
	}, &answer)
	require.NoError(t, err)

	assert.Equal(t, "Yes", answer.Title)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, asked, 1)
	assert.Equal(t, "ts", asked[0].BackendID)
}

func TestEvents_AskWithoutResponder(t *testing.T) {
	ev := NewEvents()
	_, err := ev.Ask(context.Background(), BackendMessageRequest{BackendID: "ts"})
	assert.ErrorIs(t, err, ErrNoResponder)
}

func TestObservers_Unsubscribe(t *testing.T) {
	var o Observers[func(int)]
	id := o.Subscribe(func(int) {})
	o.Subscribe(func(int) {})
	o.Unsubscribe(id)
	o.Unsubscribe("unknown")
	assert.Equal(t, 1, o.Len())
}
