// Package main is the entry point for kpmd, the keystroke aggregation daemon.
// It loads configuration, wires the services and either runs headless or
// with the terminal dashboard.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/j-veylop/kpm-aggregator/internal/config"
	"github.com/j-veylop/kpm-aggregator/internal/logger"
	"github.com/j-veylop/kpm-aggregator/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   version.Name,
		Short: "Editor keystroke aggregator",
		Long: `kpmd counts editor keystrokes per project and file, and every flush
interval submits one aggregate per project with activity to the configured
sinks (SQLite history and, optionally, an HTTP ingest endpoint).

Editor events are read as newline-delimited JSON from the spool file
(EVENTS_PATH) or from stdin. Configuration is read from .env files in the
current directory, ~/.config/kpm/.env or ~/.kpm/.env, then from the
environment.`,
		SilenceUsage: true,
		RunE:         runDashboardCmd,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newDashboardCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newPruneCmd())
	rootCmd.AddCommand(newBootstrapCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}

// loadConfig loads the configuration and points the global logger at w.
func loadConfig(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Setup(cfg.LogLevel, w)
	return cfg, nil
}

// openLogFile opens the log file used while the dashboard owns the terminal.
func openLogFile(cfg *config.Config) (*os.File, error) {
	path := filepath.Join(filepath.Dir(cfg.DatabasePath), version.Name+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
