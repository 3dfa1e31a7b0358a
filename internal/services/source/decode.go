// Package source feeds editor events from a JSON-lines spool file into the
// aggregation engine.
package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/src-d/enry/v2"

	"github.com/j-veylop/kpm-aggregator/internal/kpm"
	"github.com/j-veylop/kpm-aggregator/internal/models"
)

// ErrUnknownEventType is returned for records whose type is not open, close or change.
var ErrUnknownEventType = errors.New("unknown event type")

// Handler receives decoded events. *kpm.Engine implements it.
type Handler interface {
	HandleOpen(ev models.OpenEvent) kpm.Outcome
	HandleClose(ev models.CloseEvent) kpm.Outcome
	HandleChange(ev models.ChangeEvent) kpm.Outcome
}

// record is one line of the spool file.
type record struct {
	Type        string                `json:"type"`
	Path        string                `json:"path"`
	Root        string                `json:"root"`
	LanguageID  string                `json:"languageId"`
	Changes     []models.ChangeRecord `json:"changes"`
	LineCount   int                   `json:"lineCount"`
	Length      int                   `json:"length"`
	MetricsFile bool                  `json:"metricsFile"`
}

// Decode parses one spool line into an OpenEvent, CloseEvent or ChangeEvent.
func Decode(line []byte) (any, error) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", kpm.ErrMalformedEvent, err)
	}

	switch rec.Type {
	case "open":
		return models.OpenEvent{
			Path:          rec.Path,
			Root:          rec.Root,
			IsMetricsFile: rec.MetricsFile,
			Length:        rec.Length,
		}, nil
	case "close":
		return models.CloseEvent{
			Path:          rec.Path,
			Root:          rec.Root,
			IsMetricsFile: rec.MetricsFile,
			FinalLength:   rec.Length,
		}, nil
	case "change":
		lang := rec.LanguageID
		if lang == "" {
			lang = detectLanguage(rec.Path)
		}
		return models.ChangeEvent{
			Path:          rec.Path,
			Root:          rec.Root,
			IsMetricsFile: rec.MetricsFile,
			LanguageID:    lang,
			LineCount:     rec.LineCount,
			CurrentLength: rec.Length,
			Changes:       rec.Changes,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, rec.Type)
	}
}

// Dispatch routes a decoded event to h.
func Dispatch(h Handler, ev any) (kpm.Outcome, error) {
	switch e := ev.(type) {
	case models.OpenEvent:
		return h.HandleOpen(e), nil
	case models.CloseEvent:
		return h.HandleClose(e), nil
	case models.ChangeEvent:
		return h.HandleChange(e), nil
	default:
		return kpm.OutcomeDropped, fmt.Errorf("%w: %T", ErrUnknownEventType, ev)
	}
}

// detectLanguage guesses a language id from the file name.
func detectLanguage(path string) string {
	if path == "" {
		return ""
	}
	return strings.ToLower(enry.GetLanguage(filepath.Base(path), nil))
}
