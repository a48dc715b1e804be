package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lsgw/internal/backends"
	"lsgw/internal/backends/lsp"
	"lsgw/internal/backends/lsp/lsptest"
	"lsgw/internal/config"
	"lsgw/internal/paths"
	"lsgw/internal/protocol"
)

type testBackend struct {
	id      string
	pattern string
	watch   []string
	srv     *lsptest.Server
}

type testGateway struct {
	svc  *Service
	reg  *backends.Registries
	root string
}

func newTestGateway(t *testing.T, opts Options, list ...testBackend) *testGateway {
	t.Helper()
	return newTestGatewayWith(t, opts, nil, list...)
}

func newTestGatewayWith(t *testing.T, opts Options, construct lsp.Constructor, list ...testBackend) *testGateway {
	t.Helper()

	reg := backends.NewRegistries()
	embedded := make(map[string]lsp.ServeFunc, len(list))
	configs := make([]config.BackendConfig, 0, len(list))
	for _, b := range list {
		embedded[b.id] = b.srv.Serve
		configs = append(configs, config.BackendConfig{
			ID:            b.id,
			Languages:     map[string]string{b.id: b.pattern},
			Watch:         b.watch,
			Communication: config.CommunicationConfig{Kind: config.CommEmbedded},
		})
	}
	in := &backends.Ingester{Registries: reg, Embedded: embedded, Constructor: construct}
	report := in.Ingest(context.Background(), []backends.Provider{&backends.StaticProvider{Configs: configs}})
	require.Len(t, report.Registered, len(list))

	root := t.TempDir()
	svc := NewService(reg, backends.NewExecutor(4, nil), paths.NewTransformer(root), nil, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Initializer().Shutdown(ctx)
	})
	return &testGateway{svc: svc, reg: reg, root: root}
}

// initialize brings up the backends for path and fails the test when none
// came up.
func (g *testGateway) initialize(t *testing.T, path string) *protocol.ServerCapabilities {
	t.Helper()
	caps, err := g.svc.Initialize(context.Background(), protocol.GatewayInitializeParams{Path: path})
	require.NoError(t, err)
	return caps
}

func (g *testGateway) fsURI(path string) string {
	return paths.FileScheme + g.root + path
}

// reply returns a handler answering every request with v.
func reply(v interface{}) lsptest.HandlerFunc {
	return func(context.Context, json.RawMessage) (interface{}, error) {
		return v, nil
	}
}

// uriOf extracts textDocument.uri from request params.
func uriOf(params json.RawMessage) string {
	var p struct {
		TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
	}
	_ = json.Unmarshal(params, &p)
	return p.TextDocument.URI
}

func position(line, char int) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "/proj/main.ts"},
		Position:     protocol.Position{Line: line, Character: char},
	}
}

func rng(sl, sc, el, ec int) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: sl, Character: sc},
		End:   protocol.Position{Line: el, Character: ec},
	}
}
