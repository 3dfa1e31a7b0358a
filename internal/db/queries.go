package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/j-veylop/kpm-aggregator/internal/logger"
	"github.com/j-veylop/kpm-aggregator/internal/models"
)

// InsertFlush stores a flushed project aggregate and its file counters.
func (db *DB) InsertFlush(ctx context.Context, agg *models.ProjectAggregate, at time.Time) (id int64, err error) {
	payload, err := json.Marshal(agg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal aggregate: %w", err)
	}
	if at.IsZero() {
		at = time.Now()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				logger.Error("failed to rollback flush insert", "error", rerr)
			}
		}
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO flushes (
			batch_id, timestamp, directory, name, identifier, keystrokes,
			start_ts, end_ts, timezone, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		agg.BatchID,
		at.UTC().Format(sqlTimeLayout),
		agg.Directory,
		agg.Name,
		nullString(agg.Identifier),
		agg.Keystrokes,
		agg.Start,
		agg.End,
		nullString(agg.Timezone),
		string(payload),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert flush: %w", err)
	}

	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read flush id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO file_flushes (
			flush_id, path, syntax, add_count, delete_count, paste_count,
			open_count, close_count, netkeys, length, lines, lines_added, lines_removed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare file insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for path, fc := range agg.Source {
		if _, err = stmt.ExecContext(ctx,
			id, path, nullString(fc.Syntax),
			fc.Add, fc.Delete, fc.Paste, fc.Open, fc.Close, fc.NetKeys,
			fc.Length, fc.Lines, fc.LinesAdded, fc.LinesRemoved,
		); err != nil {
			return 0, fmt.Errorf("failed to insert file flush %s: %w", path, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit flush: %w", err)
	}
	return id, nil
}

// GetRecentFlushes returns the most recent flushes, newest first.
func (db *DB) GetRecentFlushes(limit int) ([]models.FlushRecord, error) {
	query := `
		SELECT f.id, f.batch_id, f.timestamp, f.directory, f.name, f.keystrokes,
			   f.start_ts, f.end_ts, COUNT(ff.path)
		FROM flushes f
		LEFT JOIN file_flushes ff ON ff.flush_id = f.id
		GROUP BY f.id
		ORDER BY f.timestamp DESC, f.id DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(context.Background(), query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent flushes: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("failed to close rows", "error", err)
		}
	}()

	var records []models.FlushRecord
	for rows.Next() {
		var rec models.FlushRecord
		var ts string

		err := rows.Scan(
			&rec.ID,
			&rec.BatchID,
			&ts,
			&rec.Directory,
			&rec.Name,
			&rec.Keystrokes,
			&rec.Start,
			&rec.End,
			&rec.Files,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flush: %w", err)
		}

		rec.Timestamp = parseTimestamp(ts)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetFlushPayload returns the stored payload of a flush.
func (db *DB) GetFlushPayload(id int64) (*models.ProjectAggregate, error) {
	var payload string
	err := db.QueryRowContext(context.Background(),
		"SELECT payload FROM flushes WHERE id = ?", id).Scan(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to get flush payload: %w", err)
	}

	var agg models.ProjectAggregate
	if err := json.Unmarshal([]byte(payload), &agg); err != nil {
		return nil, fmt.Errorf("failed to decode flush payload: %w", err)
	}
	return &agg, nil
}

// GetHourlyKeystrokes returns keystrokes grouped by hour for the last hours.
func (db *DB) GetHourlyKeystrokes(hours int) ([]models.HourlyKeystrokes, error) {
	query := `
		SELECT
			strftime('%Y-%m-%d %H:00:00', timestamp) as hour,
			COALESCE(SUM(keystrokes), 0) as keystrokes,
			COUNT(*) as flushes
		FROM flushes
		WHERE ` + sqlSinceClause + `
		GROUP BY hour
		ORDER BY hour ASC
	`

	rows, err := db.QueryContext(context.Background(), query, fmt.Sprintf("-%d hours", hours))
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly keystrokes: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("failed to close rows", "error", err)
		}
	}()

	var stats []models.HourlyKeystrokes
	for rows.Next() {
		var s models.HourlyKeystrokes
		var hourStr string

		if err := rows.Scan(&hourStr, &s.Keystrokes, &s.Flushes); err != nil {
			return nil, fmt.Errorf("failed to scan hourly keystrokes: %w", err)
		}

		s.Hour = parseTimestamp(hourStr)
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// GetTotalStats returns overall aggregated statistics.
func (db *DB) GetTotalStats() (*models.TotalStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM flushes),
			(SELECT COALESCE(SUM(keystrokes), 0) FROM flushes),
			COALESCE(SUM(add_count), 0),
			COALESCE(SUM(delete_count), 0),
			COALESCE(SUM(paste_count), 0),
			(SELECT COUNT(DISTINCT directory) FROM flushes),
			COUNT(DISTINCT path)
		FROM file_flushes
	`

	var stats models.TotalStats
	err := db.QueryRowContext(context.Background(), query).Scan(
		&stats.TotalFlushes,
		&stats.TotalKeystrokes,
		&stats.TotalAdd,
		&stats.TotalDelete,
		&stats.TotalPaste,
		&stats.UniqueProjects,
		&stats.UniqueFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query total stats: %w", err)
	}

	return &stats, nil
}

// GetTopFiles returns the files with the most additive keystrokes.
func (db *DB) GetTopFiles(limit int) ([]models.FileTotals, error) {
	query := `
		SELECT path, COALESCE(MAX(syntax), ''),
			SUM(add_count), SUM(delete_count), SUM(paste_count),
			SUM(lines_added), SUM(lines_removed)
		FROM file_flushes
		GROUP BY path
		ORDER BY SUM(add_count) + SUM(delete_count) DESC, path ASC
		LIMIT ?
	`

	rows, err := db.QueryContext(context.Background(), query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []models.FileTotals
	for rows.Next() {
		var f models.FileTotals
		if err := rows.Scan(&f.Path, &f.Syntax, &f.Add, &f.Delete, &f.Paste, &f.LinesAdded, &f.LinesRemoved); err != nil {
			return nil, fmt.Errorf("failed to scan top file: %w", err)
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

// PruneBefore deletes flushes recorded before cutoff and returns how many were removed.
func (db *DB) PruneBefore(cutoff time.Time) (int64, error) {
	ts := cutoff.UTC().Format(sqlTimeLayout)

	if _, err := db.ExecContext(context.Background(),
		"DELETE FROM file_flushes WHERE flush_id IN (SELECT id FROM flushes WHERE timestamp < ?)", ts); err != nil {
		return 0, fmt.Errorf("failed to prune file flushes: %w", err)
	}

	result, err := db.ExecContext(context.Background(), "DELETE FROM flushes WHERE timestamp < ?", ts)
	if err != nil {
		return 0, fmt.Errorf("failed to prune flushes: %w", err)
	}
	return result.RowsAffected()
}

// parseTimestamp parses a stored UTC timestamp, returning the zero time on failure.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{sqlTimeLayout, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// nullString returns a sql.NullString from a string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
