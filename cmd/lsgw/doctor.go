package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lsgw/internal/backends"
	"lsgw/internal/install"
)

var doctorFormat string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose gateway configuration",
	Long: `Run backend ingestion without starting any backend and report what was
registered, what was skipped and why, and the recorded install state of
local backends. Exits non-zero when something failed.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(doctorCmd)
}

type doctorReport struct {
	Root               string                 `json:"root"`
	ProjectsRoot       string                 `json:"projectsRoot"`
	ProjectsRootExists bool                   `json:"projectsRootExists"`
	Ingest             *backends.IngestReport `json:"ingest"`
	Installs           []install.Record       `json:"installs"`
	Healthy            bool                   `json:"healthy"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := cmd.Context()

	gw, err := openGateway(ctx, mustGetWorkspaceRoot())
	if err != nil {
		return err
	}
	defer gw.Close()

	records, err := gw.installs.List(ctx)
	if err != nil {
		return err
	}
	report := &doctorReport{
		Root:         gw.root,
		ProjectsRoot: gw.cfg.ProjectsRoot,
		Ingest:       gw.report,
		Installs:     records,
	}
	if info, err := os.Stat(gw.cfg.ProjectsRoot); err == nil && info.IsDir() {
		report.ProjectsRootExists = true
	}
	report.Healthy = report.ProjectsRootExists &&
		len(report.Ingest.Failed) == 0 &&
		len(report.Ingest.ProviderErrors) == 0

	output, err := FormatResponse(report, OutputFormat(doctorFormat))
	if err != nil {
		return err
	}
	fmt.Println(output)
	if doctorFormat == string(FormatHuman) {
		fmt.Printf("\n(Diagnostics took %dms)\n", time.Since(start).Milliseconds())
	}

	if !report.Healthy {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}
