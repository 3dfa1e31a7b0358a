package models

import "time"

// FlushRecord is a persisted project aggregate (DB model).
type FlushRecord struct {
	Timestamp  time.Time
	BatchID    string
	Directory  string
	Name       string
	ID         int64
	Keystrokes int
	Files      int
	Start      int64
	End        int64
}

// FileTotals sums file counters across persisted flushes (DB model).
type FileTotals struct {
	Path         string
	Syntax       string
	Add          int
	Delete       int
	Paste        int
	LinesAdded   int
	LinesRemoved int
}

// HourlyKeystrokes represents keystrokes grouped by hour.
type HourlyKeystrokes struct {
	Hour       time.Time
	Keystrokes int
	Flushes    int
}

// TotalStats represents overall aggregated statistics.
type TotalStats struct {
	TotalFlushes    int
	TotalKeystrokes int
	TotalAdd        int
	TotalDelete     int
	TotalPaste      int
	UniqueProjects  int
	UniqueFiles     int
}
