package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/progression/internal/app"
	"github.com/felixgeelhaar/progression/internal/config"
	mcpserver "github.com/felixgeelhaar/progression/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ledger as MCP tools (stdio by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(httpAddr)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve over HTTP at this address instead of stdio")
	return cmd
}

// runMCP opens the configured store directly; the daemon need not be running
func runMCP(httpAddr string) error {
	progressionDir, err := config.EnsureProgressionDir()
	if err != nil {
		return fmt.Errorf("ensure progression dir: %w", err)
	}
	if err := config.LoadEnvFiles(".env", filepath.Join(progressionDir, ".env")); err != nil {
		return err
	}

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level, err := config.ParseLogLevel(cfg.Daemon.LogLevel)
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol, so logs go to stderr
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer application.Close()

	srv := mcpserver.NewServer(mcpserver.Config{
		Ledger:   application.Ledger,
		Practice: application.Practice,
		Version:  Version,
	})

	if httpAddr != "" {
		logger.Info("serving MCP over HTTP", "addr", httpAddr)
		return srv.ServeHTTP(ctx, httpAddr)
	}
	return srv.ServeStdio(ctx)
}
