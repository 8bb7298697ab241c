package main

import (
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/adqueue/internal/logging"
	"github.com/dusk-indust/adqueue/internal/mcptools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the queue tools over MCP on stdio",
	Long:  "Serve the queue tools over MCP on stdio. Logs go to stderr; stdout carries the protocol.",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wb, closeWB, err := openWorkbench(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer func() {
		if err := closeWB(); err != nil {
			logger.Warn("close archive", zap.Error(err))
		}
	}()

	return mcptools.RunStdio(ctx, mcptools.NewServer(wb))
}
