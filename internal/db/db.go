// Package db manages the database connection
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Import modernc.org/sqlite as a blank import to register the driver
	_ "modernc.org/sqlite"
	// sqlite driver
)

// connPragmas is applied to every pooled connection.
const connPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

// DB wraps the SQL database connection with application-specific methods.
type DB struct {
	*sql.DB
	path string
}

// New creates a new database connection and initializes the schema.
func New(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database connection
	sqlDB, err := sql.Open("sqlite", path+connPragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; concurrent flush workers queue on the pool
	// instead of failing with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	// Test connection
	if err := sqlDB.PingContext(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{
		DB:   sqlDB,
		path: path,
	}

	// Configure database
	if err := db.configure(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	// Create schema
	if err := db.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// configure sets up database pragmas for optimal performance.
func (db *DB) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000", // 64MB cache
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

func (db *DB) createSchema() error {
	if err := db.createFlushesTable(); err != nil {
		return err
	}
	return db.createFileFlushesTable()
}

func (db *DB) createFlushesTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS flushes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		directory TEXT NOT NULL,
		name TEXT NOT NULL,
		identifier TEXT,
		keystrokes INTEGER DEFAULT 0,
		start_ts INTEGER DEFAULT 0,
		end_ts INTEGER DEFAULT 0,
		timezone TEXT,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_flushes_timestamp ON flushes(timestamp);
	CREATE INDEX IF NOT EXISTS idx_flushes_directory ON flushes(directory);
	CREATE INDEX IF NOT EXISTS idx_flushes_batch ON flushes(batch_id);
	`
	_, err := db.ExecContext(context.Background(), query)
	return err
}

func (db *DB) createFileFlushesTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS file_flushes (
		flush_id INTEGER NOT NULL REFERENCES flushes(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		syntax TEXT,
		add_count INTEGER DEFAULT 0,
		delete_count INTEGER DEFAULT 0,
		paste_count INTEGER DEFAULT 0,
		open_count INTEGER DEFAULT 0,
		close_count INTEGER DEFAULT 0,
		netkeys INTEGER DEFAULT 0,
		length INTEGER DEFAULT 0,
		lines INTEGER DEFAULT 0,
		lines_added INTEGER DEFAULT 0,
		lines_removed INTEGER DEFAULT 0,
		PRIMARY KEY (flush_id, path)
	);
	CREATE INDEX IF NOT EXISTS idx_file_flushes_path ON file_flushes(path);
	`
	_, err := db.ExecContext(context.Background(), query)
	return err
}

// Close closes the database connection gracefully.
func (db *DB) Close() error {
	// Checkpoint WAL before closing
	_, _ = db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	return db.DB.Close()
}

// Vacuum performs database maintenance to reclaim space.
func (db *DB) Vacuum() error {
	_, err := db.ExecContext(context.Background(), "VACUUM")
	return err
}
