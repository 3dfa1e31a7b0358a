package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/j-veylop/kpm-aggregator/internal/app"
	"github.com/j-veylop/kpm-aggregator/internal/logger"
	"github.com/j-veylop/kpm-aggregator/internal/services"
	"github.com/j-veylop/kpm-aggregator/internal/services/source"
	"github.com/j-veylop/kpm-aggregator/internal/ui/tabs/dashboard"
	"github.com/j-veylop/kpm-aggregator/internal/ui/tabs/history"
	"github.com/j-veylop/kpm-aggregator/internal/ui/tabs/info"
)

var runFromStdin bool

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the aggregator without the dashboard",
		Args:  cobra.NoArgs,
		RunE:  runDaemonCmd,
	}
	cmd.Flags().BoolVar(&runFromStdin, "stdin", false, "read editor events from stdin instead of only the spool file")
	return cmd
}

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Run the aggregator with the terminal dashboard",
		Args:  cobra.NoArgs,
		RunE:  runDashboardCmd,
	}
}

func runDaemonCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	mgr, err := services.NewManager(cfg, services.Options{})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if closeErr := mgr.Close(); closeErr != nil {
			logger.Warn("error closing services", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("aggregator running",
		"spool", cfg.EventsPath, "interval", cfg.FlushInterval, "ingest", cfg.IngestURL != "")

	if runFromStdin {
		stats, err := source.ReadAll(ctx, cmd.InOrStdin(), mgr.Engine())
		logger.Info("stdin closed", "lines", stats.Lines, "counted", stats.Counted, "malformed", stats.Malformed)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to read events: %w", err)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down; the current window is discarded")
	return nil
}

func runDashboardCmd(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	// The dashboard owns the terminal, so logs go to a file.
	logFile, err := openLogFile(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logFile.Close() }()
	logger.Setup(cfg.LogLevel, logFile)

	svcManager, err := services.NewManager(cfg, services.Options{})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if closeErr := svcManager.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing services: %v\n", closeErr)
		}
	}()

	model := app.NewModel(svcManager)

	state := model.GetState()
	model.SetTabs([]app.Tab{
		dashboard.New(state),
		history.New(state, svcManager),
		info.New(state, cfg, svcManager.MetricsAddr()),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	go func() {
		if _, ok := <-sigChan; ok {
			p.Send(tea.Quit())
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
