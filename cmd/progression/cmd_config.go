package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/progression/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadLocalConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Progression Configuration")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Daemon:")
			fmt.Fprintf(out, "  bind: %s:%d\n", cfg.Daemon.Bind, cfg.Daemon.Port)
			fmt.Fprintf(out, "  log_level: %s\n", cfg.Daemon.LogLevel)

			fmt.Fprintln(out, "\nStorage:")
			fmt.Fprintf(out, "  driver: %s\n", cfg.Storage.Driver)
			switch cfg.Storage.Driver {
			case config.DriverSQLite:
				path, _ := cfg.SQLitePath()
				fmt.Fprintf(out, "  sqlite_path: %s\n", path)
			case config.DriverLocal:
				path, _ := cfg.LocalPath()
				fmt.Fprintf(out, "  local_path: %s\n", path)
			case config.DriverPostgres:
				fmt.Fprintf(out, "  database_url: %s\n", setMark(cfg.Storage.DatabaseURL != ""))
				fmt.Fprintf(out, "  max_conns: %d\n", cfg.Storage.MaxConns)
			}

			fmt.Fprintln(out, "\nLedger:")
			fmt.Fprintf(out, "  max_retries: %d\n", cfg.Ledger.MaxRetries)
			fmt.Fprintf(out, "  retry backoff: %s to %s\n", cfg.Ledger.RetryInitial(), cfg.Ledger.RetryMax())
			fmt.Fprintf(out, "  op_timeout: %s\n", cfg.Ledger.OpTimeout())

			fmt.Fprintln(out, "\nPractice:")
			fmt.Fprintf(out, "  history_window: %d\n", cfg.Practice.HistoryWindow)
			if len(cfg.Practice.Rotation) > 0 {
				fmt.Fprintf(out, "  rotation: %v\n", cfg.Practice.Rotation)
			}

			fmt.Fprintln(out, "\nQueue:")
			fmt.Fprintf(out, "  enabled: %t\n", cfg.Queue.Enabled)
			if cfg.Queue.Enabled {
				fmt.Fprintf(out, "  rabbitmq_url: %s\n", setMark(cfg.Queue.URL != ""))
				fmt.Fprintf(out, "  workers: %d prefetch: %d\n", cfg.Queue.Workers, cfg.Queue.Prefetch)
			}

			path, _ := config.ConfigPath()
			fmt.Fprintf(out, "\nConfig path: %s\n", path)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.EnsureProgressionDir(); err != nil {
				return err
			}
			cfg, err := config.LoadLocalConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SaveLocalConfig(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			path, _ := config.ConfigPath()
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
			return nil
		},
	})
	return cmd
}

// setMark hides secrets behind a presence marker
func setMark(set bool) string {
	if set {
		return "✓ (set)"
	}
	return "✗ (missing)"
}
