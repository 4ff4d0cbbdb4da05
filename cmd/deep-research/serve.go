// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/metrics"
	"github.com/pdiddy/deep-research/internal/orchestrator"
	"github.com/pdiddy/deep-research/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the research API over HTTP",
	Long: `Serve exposes POST /api/research (JSON report), GET /api/research/stream
(Server-Sent Events progress followed by the report), /healthz, and
Prometheus metrics on /metrics.`,
	RunE: runServe,
}

func init() {
	addSessionFlags(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().StringSlice("cors-origin", nil, "allowed CORS origins (default all)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o, closeFn, err := orchestrator.Build(ctx, cfg, orchestrator.Dependencies{
		Logger:  logger,
		Metrics: metrics.Default(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.Warn("closing source cache", zap.Error(err))
		}
	}()

	opts := []server.Option{
		server.WithLogger(logger.Named("http")),
		server.WithGatherer(prometheus.DefaultGatherer),
	}
	if origins, _ := cmd.Flags().GetStringSlice("cors-origin"); len(origins) > 0 {
		opts = append(opts, server.WithAllowedOrigins(origins...))
	}
	addr, _ := cmd.Flags().GetString("addr")
	return server.New(o, opts...).ListenAndServe(ctx, addr)
}
