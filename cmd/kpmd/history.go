package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/j-veylop/kpm-aggregator/internal/config"
	"github.com/j-veylop/kpm-aggregator/internal/db"
	"github.com/j-veylop/kpm-aggregator/internal/logger"
)

const defaultHistoryLimit = 20

var (
	historyLimit int
	historyID    int64

	pruneOlderThan time.Duration
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent flushes from the history database",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLimit, "limit", defaultHistoryLimit, "number of flushes to show")
	cmd.Flags().Int64Var(&historyID, "id", 0, "print the stored payload of one flush as JSON")
	return cmd
}

func newPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete flush history older than a cutoff",
		Args:  cobra.NoArgs,
		RunE:  runPruneCmd,
	}
	cmd.Flags().DurationVar(&pruneOlderThan, "older-than", 90*24*time.Hour, "age of the oldest history kept")
	return cmd
}

func openHistory(cmd *cobra.Command) (*db.DB, error) {
	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return openDatabase(cfg)
}

func openDatabase(cfg *config.Config) (*db.DB, error) {
	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return database, nil
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	database, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	out := cmd.OutOrStdout()
	if historyID > 0 {
		return printPayload(out, database, historyID)
	}
	return printHistory(out, database, historyLimit)
}

func printPayload(w io.Writer, database *db.DB, id int64) error {
	agg, err := database.GetFlushPayload(id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(agg)
}

func printHistory(w io.Writer, database *db.DB, limit int) error {
	totals, err := database.GetTotalStats()
	if err != nil {
		return err
	}
	records, err := database.GetRecentFlushes(limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s keystrokes in %s flushes across %s projects and %s files\n",
		humanize.Comma(int64(totals.TotalKeystrokes)),
		humanize.Comma(int64(totals.TotalFlushes)),
		humanize.Comma(int64(totals.UniqueProjects)),
		humanize.Comma(int64(totals.UniqueFiles)))
	fmt.Fprintf(w, "add %s  delete %s  paste %s\n\n",
		humanize.Comma(int64(totals.TotalAdd)),
		humanize.Comma(int64(totals.TotalDelete)),
		humanize.Comma(int64(totals.TotalPaste)))

	if len(records) == 0 {
		fmt.Fprintln(w, "No flushes recorded yet.")
		return nil
	}

	fmt.Fprintf(w, "%-6s %-16s %-24s %10s %6s  %s\n", "ID", "WHEN", "PROJECT", "KEYSTROKES", "FILES", "BATCH")
	for _, r := range records {
		fmt.Fprintf(w, "%-6d %-16s %-24s %10s %6d  %s\n",
			r.ID,
			humanize.Time(r.Timestamp),
			truncate(r.Name, 24),
			humanize.Comma(int64(r.Keystrokes)),
			r.Files,
			r.BatchID)
	}
	return nil
}

func runPruneCmd(cmd *cobra.Command, _ []string) error {
	if pruneOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive, got %v", pruneOlderThan)
	}

	database, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	cutoff := time.Now().Add(-pruneOlderThan)
	n, err := database.PruneBefore(cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		if err := database.Vacuum(); err != nil {
			logger.Warn("vacuum failed", "error", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s flushes recorded before %s\n",
		humanize.Comma(n), cutoff.Format(time.DateTime))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
