package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backendsFormat string

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "Inspect registered backends",
}

var backendsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the backends ingestion would register",
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, err := openGateway(cmd.Context(), mustGetWorkspaceRoot())
		if err != nil {
			return err
		}
		defer gw.Close()
		return printFormatted(gw.registries.Statuses(), backendsFormat)
	},
}

var backendsRegexesCmd = &cobra.Command{
	Use:   "regexes",
	Short: "Print the language patterns answered by languageServer/getLanguageRegexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, err := openGateway(cmd.Context(), mustGetWorkspaceRoot())
		if err != nil {
			return err
		}
		defer gw.Close()
		return printFormatted(gw.service.LanguageRegexes(), backendsFormat)
	},
}

func init() {
	backendsCmd.PersistentFlags().StringVar(&backendsFormat, "format", "human", "Output format (json, human)")
	backendsCmd.AddCommand(backendsListCmd)
	backendsCmd.AddCommand(backendsRegexesCmd)
	rootCmd.AddCommand(backendsCmd)
}

func printFormatted(resp interface{}, format string) error {
	output, err := FormatResponse(resp, OutputFormat(format))
	if err != nil {
		return err
	}
	fmt.Println(output)
	return nil
}
