// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/metrics"
	"github.com/pdiddy/deep-research/internal/orchestrator"
	"github.com/pdiddy/deep-research/internal/report"
	"github.com/pdiddy/deep-research/pkg/types"
)

var quickCmd = &cobra.Command{
	Use:   "quick <question>",
	Short: "Answer a question in a single research pass",
	Long: `Quick clarifies the question and researches it as one task, skipping
planning. It is the fastest way to a cited answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResearch(cmd, args, types.ModeQuick)
	},
}

var researchCmd = &cobra.Command{
	Use:   "research <question>",
	Short: "Run the full multi-agent research pipeline",
	Long: `Research clarifies the question, plans sub-topics, researches them in
parallel, reconciles findings across sub-topics (flagging contradictions),
and writes a report with citations, caveats, and an execution summary.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResearch(cmd, args, types.ModeComprehensive)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{quickCmd, researchCmd} {
		addSessionFlags(cmd)
		addOutputFlags(cmd)
		cmd.Flags().Bool("quiet", false, "do not print progress to stderr")
		rootCmd.AddCommand(cmd)
	}
}

func runResearch(cmd *cobra.Command, args []string, mode types.ResearchMode) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := orchestrator.Dependencies{Logger: logger, Metrics: metrics.Default()}
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		deps.Sink = progressPrinter(os.Stderr)
	}
	if cfg.Orchestrator.Interactive {
		deps.Asker = newStdinAsker(os.Stdin, os.Stderr)
	}

	o, closeFn, err := orchestrator.Build(ctx, cfg, deps)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.Warn("closing source cache", zap.Error(err))
		}
	}()

	r, err := o.Run(ctx, orchestrator.Request{
		Question: strings.Join(args, " "),
		Mode:     mode,
		Style:    cfg.Citations.Style,
	})
	if err != nil {
		return runError(err)
	}
	return writeOutput(cmd, r, format)
}

// runError adds a user-facing explanation to ErrNoFindings and keeps it
// matchable with errors.Is.
func runError(err error) error {
	if errors.Is(err, orchestrator.ErrNoFindings) {
		return fmt.Errorf("none of the research tasks returned usable sources: %w", err)
	}
	return err
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("style", "", "citation style: APA or MLA")
	cmd.Flags().String("format", "markdown", "output format: markdown, json, yaml, csl, or bibtex")
	cmd.Flags().StringP("out", "o", "", "write the report to this file instead of stdout")
	cmd.Flags().Bool("render", false, "render Markdown for the terminal")
}

func outputFormat(cmd *cobra.Command) (report.Format, error) {
	name, _ := cmd.Flags().GetString("format")
	f, err := report.ParseFormat(name)
	if err != nil {
		return "", err
	}
	if !cmd.Flags().Changed("format") {
		if out, _ := cmd.Flags().GetString("out"); out != "" {
			f = report.FormatForPath(out)
		}
	}
	return f, nil
}

// writeOutput saves r to --out or prints it to stdout.
func writeOutput(cmd *cobra.Command, r *types.ResearchReport, format report.Format) error {
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		if err := report.WriteFileAs(out, r, format); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", out)
		return nil
	}

	if render, _ := cmd.Flags().GetBool("render"); render && format == report.FormatMarkdown {
		return renderMarkdown(os.Stdout, report.Markdown(r))
	}
	return report.Encode(os.Stdout, r, format)
}

func renderMarkdown(w io.Writer, md string) error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

// progressPrinter writes one line per progress event.
func progressPrinter(w io.Writer) orchestrator.EventSink {
	return orchestrator.SinkFunc(func(ev types.ProgressEvent) {
		fmt.Fprintf(w, "[%-12s] %s (sources %d, findings %d)\n", ev.Phase, ev.Message, ev.Sources, ev.Findings)
	})
}
