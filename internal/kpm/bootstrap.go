package kpm

import (
	"time"

	"github.com/j-veylop/kpm-aggregator/internal/models"
)

const (
	// BootstrapDirectory is the directory of the first-run payload.
	BootstrapDirectory = "Unnamed"
	// BootstrapFile is the single file key of the first-run payload.
	BootstrapFile = "Untitled"
)

// BootstrapPayload builds the minimal one-keystroke payload sent on first run.
func BootstrapPayload(name string, now time.Time) *models.ProjectAggregate {
	if name == "" {
		name = DefaultProjectName
	}
	agg := models.NewProjectAggregate(BootstrapDirectory, name)
	agg.Keystrokes = 1

	_, offset := now.Zone()
	agg.Start = now.Unix()
	agg.LocalStart = agg.Start + int64(offset)
	agg.End = agg.Start
	agg.LocalEnd = agg.LocalStart
	agg.Timezone = now.Location().String()

	fc := agg.File(BootstrapFile)
	fc.Add = 1
	fc.UpdateNetKeys()
	return agg
}
