package main

import (
	"github.com/spf13/cobra"

	"lsgw/internal/version"
)

var (
	// rootFlag is the CLI --root flag value
	rootFlag    string
	logFileFlag string
	verbosity   int
	quietFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "lsgw",
	Short: "lsgw - language server gateway",
	Long: `lsgw puts several language servers behind a single JSON-RPC endpoint.
Requests are routed to every backend whose language patterns match the
document, answered in parallel, and merged into one response. File URIs
are rewritten between the caller's workspace paths and each backend's
own projects root.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("lsgw version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "",
		"Workspace root holding .lsgw/ (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "",
		"Also write gateway logs to this file (overrides logging.file)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false,
		"Silence gateway logs")
}
