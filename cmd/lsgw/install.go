package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"lsgw/internal/backends"
	"lsgw/internal/config"
	"lsgw/internal/install"
)

var (
	installFormat  string
	installCommand string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Manage install records of local backends",
	Long: `Local backends are only registered when their executable can be found.
The install database remembers where each one was found, so a backend
registered with an explicit path keeps working when it is not on PATH.`,
}

var installCheckCmd = &cobra.Command{
	Use:   "check [backend-id...]",
	Short: "Check local backends and record the result",
	RunE:  runInstallCheck,
}

var installRegisterCmd = &cobra.Command{
	Use:   "register <backend-id> <path>",
	Short: "Record the executable of a local backend",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInstallStore(cmd.Context(), func(store *install.Store) error {
			rec, err := store.Register(cmd.Context(), args[0], installCommand, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s at %s\n", rec.BackendID, rec.ResolvedPath)
			return nil
		})
	},
}

var installListCmd = &cobra.Command{
	Use:   "list",
	Short: "List install records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInstallStore(cmd.Context(), func(store *install.Store) error {
			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			return printFormatted(records, installFormat)
		})
	},
}

var installRemoveCmd = &cobra.Command{
	Use:   "remove <backend-id>",
	Short: "Forget the install record of a backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInstallStore(cmd.Context(), func(store *install.Store) error {
			return store.Remove(cmd.Context(), args[0])
		})
	},
}

func init() {
	installCmd.PersistentFlags().StringVar(&installFormat, "format", "human", "Output format (json, human)")
	installRegisterCmd.Flags().StringVar(&installCommand, "command", "", "Command name to record (default: base name of path)")
	installCmd.AddCommand(installCheckCmd, installRegisterCmd, installListCmd, installRemoveCmd)
	rootCmd.AddCommand(installCmd)
}

func withInstallStore(ctx context.Context, fn func(*install.Store) error) error {
	root := mustGetWorkspaceRoot()
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	store, err := install.Open(installDBPath(root, cfg), nil)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func runInstallCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	root := mustGetWorkspaceRoot()
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	configs := collectBackends(ctx, cfg, root)

	return withInstallStore(ctx, func(store *install.Store) error {
		failed := 0
		for _, bc := range configs {
			if !bc.Local || (len(args) > 0 && !slices.Contains(args, bc.ID)) {
				continue
			}
			if err := store.Check(ctx, bc); err != nil {
				fmt.Printf("✗ %s: %v\n", bc.ID, err)
				failed++
				continue
			}
			fmt.Printf("✓ %s\n", bc.ID)
		}
		if failed > 0 {
			return fmt.Errorf("%d backend(s) not installed", failed)
		}
		return nil
	})
}

// collectBackends returns the first config seen for each backend id,
// in provider order.
func collectBackends(ctx context.Context, cfg *config.Config, root string) []config.BackendConfig {
	var out []config.BackendConfig
	seen := make(map[string]bool)
	for _, p := range backends.DefaultProviders(cfg, root) {
		configs, err := p.Backends(ctx)
		if err != nil {
			fmt.Printf("! provider %s: %v\n", p.Name(), err)
		}
		for _, bc := range configs {
			if bc.ID == "" || seen[bc.ID] {
				continue
			}
			seen[bc.ID] = true
			out = append(out, bc)
		}
	}
	return out
}
