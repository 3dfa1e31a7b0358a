// Package models defines data structures and domain types.
package models

import "maps"

// FileCounter holds the per-file counters accumulated during one window.
type FileCounter struct {
	Add          int    `json:"add"`
	Delete       int    `json:"delete"`
	Paste        int    `json:"paste"`
	Open         int    `json:"open"`
	Close        int    `json:"close"`
	Length       int    `json:"length"`
	Lines        int    `json:"lines"`
	LinesAdded   int    `json:"linesAdded"`
	LinesRemoved int    `json:"linesRemoved"`
	NetKeys      int    `json:"netkeys"`
	Syntax       string `json:"syntax"`

	// linesSeen records whether Lines holds a real observation yet.
	linesSeen bool
}

// UpdateNetKeys recomputes NetKeys from Add and Delete.
func (f *FileCounter) UpdateNetKeys() {
	f.NetKeys = f.Add - f.Delete
}

// ObserveLines stores a new line count and folds the difference into
// LinesAdded or LinesRemoved. The first observation only sets the baseline.
// It returns the signed difference that was applied.
func (f *FileCounter) ObserveLines(lineCount int) int {
	diff := 0
	if f.linesSeen {
		diff = lineCount - f.Lines
	}
	f.Lines = lineCount
	f.linesSeen = true

	switch {
	case diff < 0:
		f.LinesRemoved += -diff
	case diff > 0:
		f.LinesAdded += diff
	}
	return diff
}

// HasData reports whether any event counter is non-zero.
func (f *FileCounter) HasData() bool {
	return f.Add != 0 || f.Delete != 0 || f.Paste != 0 || f.Open != 0 || f.Close != 0
}

// ProjectAggregate is the payload for one project root in one window.
type ProjectAggregate struct {
	Directory  string                  `json:"directory"`
	Name       string                  `json:"name"`
	Identifier string                  `json:"identifier"`
	Resource   map[string]string       `json:"resource"`
	Keystrokes int                     `json:"keystrokes"`
	Start      int64                   `json:"start"`
	LocalStart int64                   `json:"local_start"`
	End        int64                   `json:"end"`
	LocalEnd   int64                   `json:"local_end"`
	Timezone   string                  `json:"timezone"`
	Source     map[string]*FileCounter `json:"source"`

	// BatchID identifies the flush tick that emitted the aggregate.
	BatchID string `json:"-"`
}

// NewProjectAggregate creates an empty aggregate for a project root.
func NewProjectAggregate(directory, name string) *ProjectAggregate {
	return &ProjectAggregate{
		Directory: directory,
		Name:      name,
		Resource:  make(map[string]string),
		Source:    make(map[string]*FileCounter),
	}
}

// File returns the counter for path, creating it if needed.
func (p *ProjectAggregate) File(path string) *FileCounter {
	if fc, ok := p.Source[path]; ok {
		return fc
	}
	fc := &FileCounter{}
	p.Source[path] = fc
	return fc
}

// HasData reports whether the aggregate carries any activity worth sending.
func (p *ProjectAggregate) HasData() bool {
	if p.Keystrokes > 0 {
		return true
	}
	for _, fc := range p.Source {
		if fc.HasData() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the aggregate.
func (p *ProjectAggregate) Clone() *ProjectAggregate {
	c := *p
	c.Resource = maps.Clone(p.Resource)
	if c.Resource == nil {
		c.Resource = make(map[string]string)
	}
	c.Source = make(map[string]*FileCounter, len(p.Source))
	for path, fc := range p.Source {
		copied := *fc
		c.Source[path] = &copied
	}
	return &c
}

// TotalNetKeys sums NetKeys across all files.
func (p *ProjectAggregate) TotalNetKeys() int {
	total := 0
	for _, fc := range p.Source {
		total += fc.NetKeys
	}
	return total
}
