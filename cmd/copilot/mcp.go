package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docuease/copilot/internal/config"
	"github.com/docuease/copilot/internal/gateway/mcpserver"
	goutils "github.com/jkaninda/go-utils"
)

var mcpConfigPath string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the clinical tools over MCP (stdio)",
	RunE:  runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpConfigPath, "config", config.DefaultConfigPath(), "path to config file")
}

// runMCP starts the MCP stdio server. Tool calls go through the same
// orchestrator as HTTP requests, confirmation protocol included.
func runMCP(_ *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := config.Load(goutils.Env("COPILOT_CONFIG", mcpConfigPath))
	if err != nil {
		return err
	}

	logger.Info("starting in mcp mode", slog.String("config", mcpConfigPath))

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := mcpserver.NewServer(sc.ToolReg, sc.Orchestrator, version, logger)
	return srv.Serve(ctx)
}
