package kpm

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/coder/quartz"

	"github.com/j-veylop/kpm-aggregator/internal/logger"
	"github.com/j-veylop/kpm-aggregator/internal/metrics"
	"github.com/j-veylop/kpm-aggregator/internal/models"
)

const (
	// UntitledRoot is the root key used when a file has no resolvable project.
	UntitledRoot = "Untitled"
	// DefaultProjectName is the display name used when nothing better is known.
	DefaultProjectName = "Untitled"
)

// Outcome describes what the engine did with an event.
type Outcome int

const (
	// OutcomeCounted means counters were updated.
	OutcomeCounted Outcome = iota
	// OutcomeNoOp means the event was accepted but changed no keystroke counter.
	OutcomeNoOp
	// OutcomeIgnored means the event was filtered out on purpose.
	OutcomeIgnored
	// OutcomeDropped means the event was malformed or ambiguous.
	OutcomeDropped
)

// String returns the lower-case name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeCounted:
		return "counted"
	case OutcomeNoOp:
		return "noop"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "dropped"
	}
}

// MetricsFileState tracks the visibility of the aggregator's own status file.
type MetricsFileState struct {
	Focused bool
	Closed  bool
}

// Options configures an Engine.
type Options struct {
	// MetricsFile is the path of the aggregator's own status file.
	MetricsFile string
	// FallbackName is the project name used for unresolvable roots.
	FallbackName string
	// Namer resolves a display name for a project root.
	Namer func(root string) string
	Clock   quartz.Clock
	Metrics *metrics.Collectors
}

// Engine applies editor events to a Store.
type Engine struct {
	store        *Store
	clock        quartz.Clock
	metrics      *metrics.Collectors
	metricsFile  string
	fallbackName string
	namer        func(root string) string

	mu        sync.Mutex
	fileState MetricsFileState
}

// NewEngine creates an engine writing into store.
func NewEngine(store *Store, opts Options) *Engine {
	e := &Engine{
		store:        store,
		clock:        opts.Clock,
		metrics:      opts.Metrics,
		metricsFile:  opts.MetricsFile,
		fallbackName: opts.FallbackName,
		namer:        opts.Namer,
	}
	if e.clock == nil {
		e.clock = quartz.NewReal()
	}
	if e.fallbackName == "" {
		e.fallbackName = DefaultProjectName
	}
	if e.namer == nil {
		e.namer = e.defaultName
	}
	return e
}

// Store returns the store the engine writes into.
func (e *Engine) Store() *Store {
	return e.store
}

// MetricsFileState returns the current visibility of the status file.
func (e *Engine) MetricsFileState() MetricsFileState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fileState
}

// HandleOpen counts a document open.
func (e *Engine) HandleOpen(ev models.OpenEvent) (out Outcome) {
	defer e.finish("open", &out)

	if ev.Path == "" {
		return OutcomeDropped
	}

	metricsFile := ev.IsMetricsFile || e.isMetricsFile(ev.Path)
	e.setFileState(func(s *MetricsFileState) {
		s.Focused = metricsFile
		if metricsFile {
			s.Closed = false
		}
	})
	if metricsFile || isTransient(ev.Path) {
		return OutcomeIgnored
	}

	root := e.rootKey(ev.Root)
	e.store.Update(root, e.creator(root), func(agg *models.ProjectAggregate) {
		fc := agg.File(ev.Path)
		if ev.Length > 0 {
			fc.Length = ev.Length
		}
		fc.Open++
	})
	logger.Debug("File opened", "path", ev.Path, "root", root)
	return OutcomeCounted
}

// HandleClose counts a document close and records its final length.
func (e *Engine) HandleClose(ev models.CloseEvent) (out Outcome) {
	defer e.finish("close", &out)

	if ev.Path == "" {
		return OutcomeDropped
	}

	if ev.IsMetricsFile || e.isMetricsFile(ev.Path) {
		e.setFileState(func(s *MetricsFileState) {
			s.Focused = false
			s.Closed = true
		})
		return OutcomeIgnored
	}
	if isTransient(ev.Path) {
		return OutcomeIgnored
	}

	root := e.rootKey(ev.Root)
	e.store.Update(root, e.creator(root), func(agg *models.ProjectAggregate) {
		fc := agg.File(ev.Path)
		if ev.FinalLength > 0 {
			fc.Length = ev.FinalLength
		}
		fc.Close++
	})
	logger.Debug("File closed", "path", ev.Path, "root", root)
	return OutcomeCounted
}

// HandleChange classifies a text change and folds it into the counters.
func (e *Engine) HandleChange(ev models.ChangeEvent) (out Outcome) {
	defer e.finish("change", &out)

	if ev.Path == "" {
		return OutcomeDropped
	}
	if ev.IsMetricsFile || e.isMetricsFile(ev.Path) || isTransient(ev.Path) {
		return OutcomeIgnored
	}

	cls, err := Classify(ev.Changes)
	out = OutcomeCounted
	switch {
	case err != nil:
		logger.Debug("Change not classified", "path", ev.Path, "records", len(ev.Changes), "error", err)
		out = OutcomeDropped
	case !cls.Counts():
		out = OutcomeNoOp
	default:
		e.metrics.Classified(cls.Kind.String())
	}

	root := e.rootKey(ev.Root)
	e.store.Update(root, e.creator(root), func(agg *models.ProjectAggregate) {
		fc := agg.File(ev.Path)
		fc.Length = ev.CurrentLength
		if out != OutcomeCounted {
			return
		}
		e.apply(agg, fc, cls, ev)
	})
	return out
}

// apply updates counters for a counted change. Callers hold the store lock.
func (e *Engine) apply(agg *models.ProjectAggregate, fc *models.FileCounter, cls Classification, ev models.ChangeEvent) {
	switch cls.Kind {
	case KindPaste:
		fc.Paste++
		logger.Debug("Copy+Paste incremented", "path", ev.Path)
	case KindDelete:
		fc.Delete++
		logger.Debug("Delete incremented", "path", ev.Path)
	case KindAdd:
		fc.Add++
		logger.Debug("KPM incremented", "path", ev.Path)
	}
	agg.Keystrokes++
	fc.UpdateNetKeys()

	if fc.Syntax == "" {
		fc.Syntax = ev.LanguageID
	}

	if diff := fc.ObserveLines(ev.LineCount); diff != 0 {
		logger.Debug("Lines changed", "path", ev.Path, "diff", diff)
	}
	if cls.HasNewline && fc.LinesAdded == 0 {
		fc.LinesAdded = 1
	}
}

// finish records metrics for a handled event and turns a panic in a handler
// into a dropped event so the stream keeps flowing.
func (e *Engine) finish(eventType string, out *Outcome) {
	if r := recover(); r != nil {
		logger.Error("event handler panicked", "type", eventType, "panic", r)
		*out = OutcomeDropped
	}
	e.metrics.Event(eventType, out.String())
	e.metrics.SetActiveProjects(e.store.Len())
}

func (e *Engine) creator(root string) func() *models.ProjectAggregate {
	return func() *models.ProjectAggregate {
		agg := models.NewProjectAggregate(root, e.namer(root))
		now := e.clock.Now()
		_, offset := now.Zone()
		agg.Start = now.Unix()
		agg.LocalStart = agg.Start + int64(offset)
		agg.Timezone = now.Location().String()
		return agg
	}
}

func (e *Engine) rootKey(root string) string {
	if root == "" {
		return UntitledRoot
	}
	return root
}

func (e *Engine) defaultName(root string) string {
	if root == UntitledRoot {
		return e.fallbackName
	}
	name := filepath.Base(root)
	if name == "." || name == string(filepath.Separator) {
		return e.fallbackName
	}
	return name
}

func (e *Engine) isMetricsFile(path string) bool {
	return e.metricsFile != "" && path == e.metricsFile
}

func (e *Engine) setFileState(fn func(*MetricsFileState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.fileState)
}

// isTransient matches temporary Live Share workspace files, which never
// resolve to a real project.
func isTransient(path string) bool {
	return strings.Contains(path, ".code-workspace") &&
		strings.Contains(path, "vsliveshare") &&
		strings.Contains(path, "tmp-")
}
