package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/qadhya/drivesync/internal/app"
	"github.com/qadhya/drivesync/internal/config"
	"github.com/qadhya/drivesync/internal/logging"
	"github.com/qadhya/drivesync/internal/mcpserver"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// stdout is the MCP transport.
	logger, err := logging.NewStdioLogger(cfg.Environment, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "drivesync-mcp", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, a.Engine, a.Store, a.Defaults)

	logger.Info("starting MCP stdio server", slog.String("version", Version))

	if err := mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}
