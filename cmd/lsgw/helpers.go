package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"lsgw/internal/backends"
	"lsgw/internal/config"
	"lsgw/internal/gateway"
	"lsgw/internal/install"
	"lsgw/internal/paths"
	"lsgw/internal/slogutil"
	"lsgw/internal/version"
)

// getWorkspaceRoot returns the workspace root directory.
func getWorkspaceRoot() (string, error) {
	if rootFlag != "" {
		return filepath.Abs(rootFlag)
	}
	return os.Getwd()
}

// mustGetWorkspaceRoot returns the workspace root or exits on error.
func mustGetWorkspaceRoot() string {
	root, err := getWorkspaceRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return root
}

// loadConfig reads the workspace config and applies CLI overrides.
func loadConfig(root string) (*config.Config, error) {
	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logFileFlag != "" {
		cfg.Logging.File = logFileFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// cliLevel returns the level requested by -v/-q, or nil when neither was
// given so the config decides.
func cliLevel() *slog.Level {
	flags := rootCmd.PersistentFlags()
	if !flags.Changed("verbose") && !flags.Changed("quiet") {
		return nil
	}
	level := slogutil.LevelFromVerbosity(verbosity, quietFlag)
	return &level
}

// installDBPath resolves the install database relative to root. An empty
// path selects the database under the global lsgw home.
func installDBPath(root string, cfg *config.Config) string {
	if cfg.Install.DBPath == "" {
		if home, err := paths.GetHome(); err == nil {
			return filepath.Join(home, "install.db")
		}
		return filepath.Join(paths.GetRepoDir(root), "install.db")
	}
	if filepath.IsAbs(cfg.Install.DBPath) {
		return cfg.Install.DBPath
	}
	return filepath.Join(root, cfg.Install.DBPath)
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// gatewayStack is everything a running gateway owns.
type gatewayStack struct {
	root       string
	cfg        *config.Config
	logs       *slogutil.LoggerFactory
	logger     *slog.Logger
	installs   *install.Store
	registries *backends.Registries
	service    *gateway.Service
	report     *backends.IngestReport
}

// openGateway ingests the workspace's backends and wires the service.
// Nothing is started: backends come up on the first initialize.
func openGateway(ctx context.Context, root string) (*gatewayStack, error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	logs := slogutil.NewLoggerFactory(root, cfg, cliLevel())
	logger := logs.GatewayLogger()

	installs, err := install.Open(installDBPath(root, cfg), logger)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	registries := backends.NewRegistries()
	ingester := &backends.Ingester{
		Registries:  registries,
		Checker:     installs,
		DialTimeout: millis(cfg.Gateway.DialTimeoutMs),
		Stderr:      logs.BackendStderr,
		Logger:      logger,
	}
	report := ingester.Ingest(ctx, backends.DefaultProviders(cfg, root))

	exec := backends.NewExecutor(cfg.Gateway.WorkerPoolSize, logger)
	transformer := paths.NewTransformer(cfg.ProjectsRoot)
	svc := gateway.NewService(registries, exec, transformer, logger, gateway.Options{
		ClientName:            "lsgw",
		ClientVersion:         version.Info(),
		MessageRequestTimeout: millis(cfg.Gateway.MessageRequestTimeMs),
	})

	return &gatewayStack{
		root:       root,
		cfg:        cfg,
		logs:       logs,
		logger:     logger,
		installs:   installs,
		registries: registries,
		service:    svc,
		report:     report,
	}, nil
}

// Close shuts backends down and releases the stores.
func (g *gatewayStack) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), millis(g.cfg.Gateway.ShutdownTimeoutMs))
	defer cancel()
	g.service.Initializer().Shutdown(ctx)
	if err := g.installs.Close(); err != nil {
		g.logger.Warn("Failed to close install database", "error", err.Error())
	}
	_ = g.logs.Close()
}
