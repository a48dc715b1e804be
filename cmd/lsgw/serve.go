package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lsgw/internal/protocol"
	"lsgw/internal/rpc"
	"lsgw/internal/watcher"
)

var (
	serveTransport string
	serveAddr      string
	serveNoWatch   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the gateway and serve JSON-RPC over stdio (the default) or over
websockets. With --transport websocket the server also exposes Prometheus
metrics and a /health endpoint.

Backends are ingested at startup from .lsgw/config.json, BACKENDS.toml and
.lsgw/backends.d/. They are started on the first languageServer/initialize.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "Transport: stdio or websocket (default from config)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address for the websocket transport (default from config)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Disable the projects root file watcher")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := openGateway(ctx, mustGetWorkspaceRoot())
	if err != nil {
		return err
	}
	defer gw.Close()

	cfg := gw.cfg
	if serveTransport != "" {
		cfg.Server.Transport = serveTransport
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveNoWatch {
		cfg.Watcher.Enabled = false
	}

	w := watcher.New(cfg.ProjectsRoot, cfg.Watcher, gw.logger, func(events []watcher.Event) {
		for _, ev := range events {
			gw.service.DidChangeWatchedFile(ctx, protocol.GatewayFileEvent{Path: ev.Path, Type: ev.Type})
		}
	})
	if err := w.Start(ctx); err != nil {
		gw.logger.Warn("File watcher not started", "root", cfg.ProjectsRoot, "error", err.Error())
	}
	defer w.Stop()

	server := rpc.NewServer(gw.service, gw.logger)
	gw.logger.Info("Starting lsgw",
		"transport", cfg.Server.Transport,
		"backends", len(gw.report.Registered),
		"projectsRoot", cfg.ProjectsRoot,
	)

	switch cfg.Server.Transport {
	case "stdio":
		err = server.ServeStdio(ctx, os.Stdin, os.Stdout)
	case "websocket":
		fmt.Fprintf(os.Stderr, "lsgw listening on ws://%s%s\n", cfg.Server.Addr, cfg.Server.Path)
		err = server.ListenAndServe(ctx, cfg.Server.Addr, rpc.HTTPOptions{
			Path:        cfg.Server.Path,
			MetricsPath: cfg.Server.MetricsPath,
		})
	default:
		return fmt.Errorf("unknown transport %q", cfg.Server.Transport)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		gw.logger.Error("Server error", "error", err.Error())
		return err
	}
	gw.logger.Info("Server stopped")
	return nil
}

