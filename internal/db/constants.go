package db

// SQL query fragments used across multiple functions
const (
	// sqlTimeLayout is the timestamp layout understood by SQLite date functions
	sqlTimeLayout = "2006-01-02 15:04:05"

	// sqlSinceClause filters flushes by a datetime window
	sqlSinceClause = "timestamp >= datetime('now', ?)"
)
