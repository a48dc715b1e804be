package backends

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"lsgw/internal/backends/lsp"
	"lsgw/internal/config"
	"lsgw/internal/errors"
	"lsgw/internal/slogutil"
)

// InstallChecker verifies that a local backend is installed.
type InstallChecker interface {
	Check(ctx context.Context, cfg config.BackendConfig) error
}

// IngestReport records what one ingestion pass did.
type IngestReport struct {
	Registered     []string          `json:"registered"`
	Skipped        []string          `json:"skipped"`
	Failed         map[string]string `json:"failed"`
	ProviderErrors map[string]string `json:"providerErrors,omitempty"`
}

func newIngestReport() *IngestReport {
	return &IngestReport{
		Registered:     []string{},
		Skipped:        []string{},
		Failed:         make(map[string]string),
		ProviderErrors: make(map[string]string),
	}
}

// Ingester turns backend configurations into registered descriptors.
type Ingester struct {
	Registries *Registries

	// Checker gates local backends; nil accepts all of them
	Checker InstallChecker

	// Constructor binds instances; nil uses lsp.NewClient
	Constructor lsp.Constructor

	// Embedded maps the command name of embedded backends to their server
	Embedded map[string]lsp.ServeFunc

	// DialTimeout bounds socket and websocket connection setup
	DialTimeout time.Duration

	// Stderr returns where a process backend's stderr goes; nil discards it
	Stderr func(id string) io.Writer

	Logger *slog.Logger
}

// Ingest consults every provider in order and registers each backend id
// it has not seen before. Bad configs and failing providers are logged
// and skipped; the rest still get registered.
func (in *Ingester) Ingest(ctx context.Context, providers []Provider) *IngestReport {
	report := newIngestReport()
	logger := in.logger()

	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			report.ProviderErrors[p.Name()] = err.Error()
			break
		}

		configs, err := p.Backends(ctx)
		if err != nil {
			logger.Warn("Backend provider failed",
				"provider", p.Name(),
				"error", err.Error(),
			)
			report.ProviderErrors[p.Name()] = err.Error()
		}

		for _, bc := range configs {
			in.ingestOne(ctx, bc, report)
		}
	}

	logger.Info("Backend ingestion complete",
		"registered", len(report.Registered),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
	)
	return report
}

func (in *Ingester) ingestOne(ctx context.Context, bc config.BackendConfig, report *IngestReport) {
	logger := slogutil.ForBackend(in.logger(), bc.ID)

	if bc.ID != "" && in.Registries.Descriptors.Contains(bc.ID) {
		report.Skipped = append(report.Skipped, bc.ID)
		return
	}

	desc, err := in.Build(bc)
	if err != nil {
		logger.Warn("Invalid backend configuration", "error", err.Error())
		report.Failed[failedKey(bc, report)] = err.Error()
		return
	}

	if desc.Local && in.Checker != nil {
		if err := in.Checker.Check(ctx, bc); err != nil {
			gerr := errors.ForBackend(errors.InstallationError, bc.ID, "install check failed", err)
			logger.Warn("Backend not installed", "error", gerr.Error())
			report.Failed[bc.ID] = gerr.Error()
			return
		}
	}

	if _, loaded := in.Registries.Descriptors.AddIfAbsent(desc.ID, desc); loaded {
		report.Skipped = append(report.Skipped, desc.ID)
		return
	}
	report.Registered = append(report.Registered, desc.ID)
	logger.Debug("Registered backend",
		"communication", desc.Communication.Kind(),
		"local", desc.Local,
	)
}

// failedKey names a config in the report even when its id is missing.
func failedKey(bc config.BackendConfig, report *IngestReport) string {
	if bc.ID != "" {
		return bc.ID
	}
	return fmt.Sprintf("<unnamed #%d>", len(report.Failed)+1)
}

// Build validates a backend configuration and turns it into a descriptor.
// It does not touch the registries.
func (in *Ingester) Build(bc config.BackendConfig) (*Descriptor, error) {
	if err := bc.Validate(); err != nil {
		return nil, errors.ForBackend(errors.ConfigError, bc.ID, "invalid backend configuration", err)
	}

	desc := &Descriptor{
		ID:                    bc.ID,
		Local:                 bc.Local,
		ProjectsRoot:          bc.ProjectsRoot,
		InitializationOptions: bc.InitializationOptions,
		Constructor:           in.Constructor,
	}
	if desc.Constructor == nil {
		desc.Constructor = lsp.NewClient
	}

	languages := make([]string, 0, len(bc.Languages))
	for lang := range bc.Languages {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	for _, lang := range languages {
		re, err := regexp.Compile(bc.Languages[lang])
		if err != nil {
			return nil, errors.ForBackend(errors.ConfigError, bc.ID, "invalid language pattern for "+lang, err)
		}
		desc.MatchPatterns = append(desc.MatchPatterns, LanguagePattern{LanguageID: lang, Pattern: re})
	}

	for _, w := range bc.Watch {
		g, err := CompileGlob(w)
		if err != nil {
			return nil, errors.ForBackend(errors.ConfigError, bc.ID, "invalid watch pattern "+w, err)
		}
		desc.WatchPatterns = append(desc.WatchPatterns, g)
	}

	comm, err := in.communicator(bc)
	if err != nil {
		return nil, errors.ForBackend(errors.ConfigError, bc.ID, "invalid communication", err)
	}
	desc.Communication = comm
	return desc, nil
}

func (in *Ingester) communicator(bc config.BackendConfig) (lsp.Communicator, error) {
	c := bc.Communication
	switch c.Kind {
	case config.CommProcess:
		pc := &lsp.ProcessCommunicator{
			Command: c.Command,
			Args:    c.Args,
			Env:     c.Env,
			Dir:     c.Dir,
		}
		if in.Stderr != nil {
			pc.Stderr = in.Stderr(bc.ID)
		}
		return pc, nil
	case config.CommSocket:
		if strings.HasPrefix(c.Address, "ws://") || strings.HasPrefix(c.Address, "wss://") {
			return &lsp.WebSocketCommunicator{URL: c.Address, DialTimeout: in.DialTimeout}, nil
		}
		return &lsp.SocketCommunicator{Address: c.Address, DialTimeout: in.DialTimeout}, nil
	case config.CommWebSocket:
		return &lsp.WebSocketCommunicator{URL: c.Address, DialTimeout: in.DialTimeout}, nil
	case config.CommEmbedded:
		name := c.Command
		if name == "" {
			name = bc.ID
		}
		serve, ok := in.Embedded[name]
		if !ok {
			return nil, fmt.Errorf("no embedded server named %q", name)
		}
		return &lsp.EmbeddedCommunicator{Serve: serve}, nil
	}
	return nil, fmt.Errorf("unknown communication kind %q", c.Kind)
}

func (in *Ingester) logger() *slog.Logger {
	if in.Logger == nil {
		return slogutil.NewDiscardLogger()
	}
	return in.Logger
}
