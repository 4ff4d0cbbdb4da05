// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/deep-research/internal/report"
	"github.com/pdiddy/deep-research/pkg/types"
)

var renderCmd = &cobra.Command{
	Use:   "render <report.yaml|report.json>",
	Short: "Re-render a saved report",
	Long: `Render loads a report saved with --format yaml or json and writes it in
another format. --style reformats the citations without re-running research.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	addOutputFlags(renderCmd)
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	r, err := report.ReadFile(args[0])
	if err != nil {
		return err
	}
	if name, _ := cmd.Flags().GetString("style"); name != "" {
		style, err := types.ParseCitationStyle(name)
		if err != nil {
			return err
		}
		if r, err = report.Restyle(r, style); err != nil {
			return err
		}
	}
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	return writeOutput(cmd, r, format)
}
