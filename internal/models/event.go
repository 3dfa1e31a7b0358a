package models

// ChangeRecord is a single content change inside a ChangeEvent.
type ChangeRecord struct {
	Text        string `json:"text"`
	RangeLength int    `json:"rangeLength"`
}

// OpenEvent is delivered when the host opens a document.
type OpenEvent struct {
	Path          string
	Root          string
	IsMetricsFile bool
	Length        int
}

// CloseEvent is delivered when the host closes a document.
type CloseEvent struct {
	Path          string
	Root          string
	IsMetricsFile bool
	FinalLength   int
}

// ChangeEvent is delivered when the text of a document changes.
type ChangeEvent struct {
	Path          string
	Root          string
	IsMetricsFile bool
	LanguageID    string
	LineCount     int
	CurrentLength int
	Changes       []ChangeRecord
}
