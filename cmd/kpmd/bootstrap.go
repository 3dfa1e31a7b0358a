package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/j-veylop/kpm-aggregator/internal/kpm"
	"github.com/j-veylop/kpm-aggregator/internal/services"
)

var (
	bootstrapForce   bool
	bootstrapTimeout time.Duration
)

func newBootstrapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Submit the first-run payload through the configured sinks",
		Long: `Submits a minimal one-keystroke payload so the ingest side sees the
installation. It is skipped when the history already holds a flush,
unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: runBootstrapCmd,
	}
	cmd.Flags().BoolVar(&bootstrapForce, "force", false, "submit even if history already exists")
	cmd.Flags().DurationVar(&bootstrapTimeout, "timeout", 2*time.Minute, "give up delivering after this long")
	return cmd
}

func runBootstrapCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	if !bootstrapForce {
		totals, err := database.GetTotalStats()
		if err != nil {
			return err
		}
		if totals.TotalFlushes > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "History already present; nothing to bootstrap (use --force to resend).")
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), bootstrapTimeout)
	defer cancel()

	payload := kpm.BootstrapPayload(cfg.DefaultProjectName, time.Now())
	if err := services.NewSink(cfg, database, services.Options{}).Submit(ctx, payload); err != nil {
		return fmt.Errorf("failed to submit bootstrap payload: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Bootstrap payload submitted.")
	return nil
}
