package kpm

import (
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/j-veylop/kpm-aggregator/internal/models"
)

const testMetricsFile = "/home/dev/.kpm/CodeTime.txt"

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC))
	return NewEngine(NewStore(), Options{
		MetricsFile: testMetricsFile,
		Clock:       clock,
	})
}

func change(path, text string, rangeLength int) models.ChangeEvent {
	return models.ChangeEvent{
		Path:       path,
		Root:       "/p",
		LanguageID: "typescript",
		Changes:    []models.ChangeRecord{{Text: text, RangeLength: rangeLength}},
	}
}

func fileCounter(t *testing.T, e *Engine, root, path string) *models.FileCounter {
	t.Helper()
	agg, ok := e.Store().Get(root)
	if !ok {
		t.Fatalf("no aggregate for root %q", root)
	}
	fc, ok := agg.Source[path]
	if !ok {
		t.Fatalf("no file counter for %q", path)
	}
	return fc
}

func keystrokes(t *testing.T, e *Engine, root string) int {
	t.Helper()
	agg, ok := e.Store().Get(root)
	if !ok {
		t.Fatalf("no aggregate for root %q", root)
	}
	return agg.Keystrokes
}

func TestEngine_Scenario(t *testing.T) {
	e := newTestEngine(t)
	const path = "/p/a.ts"

	if got := e.HandleOpen(models.OpenEvent{Path: path, Root: "/p"}); got != OutcomeCounted {
		t.Fatalf("HandleOpen = %v, want counted", got)
	}
	fc := fileCounter(t, e, "/p", path)
	if fc.Open != 1 || fc.Add != 0 {
		t.Errorf("after open: %+v", fc)
	}

	e.HandleChange(change(path, "let ", 0))
	fc = fileCounter(t, e, "/p", path)
	if fc.Add != 1 || fc.NetKeys != 1 {
		t.Errorf("after add: add=%d netkeys=%d, want 1/1", fc.Add, fc.NetKeys)
	}

	e.HandleChange(change(path, "", 4))
	fc = fileCounter(t, e, "/p", path)
	if fc.Add != 1 || fc.Delete != 1 || fc.NetKeys != 0 {
		t.Errorf("after delete: add=%d delete=%d netkeys=%d, want 1/1/0", fc.Add, fc.Delete, fc.NetKeys)
	}

	e.HandleChange(change(path, strings.Repeat("z", 20), 0))
	fc = fileCounter(t, e, "/p", path)
	if fc.Paste != 1 || fc.Add != 1 || fc.Delete != 1 {
		t.Errorf("after paste: %+v", fc)
	}

	e.HandleClose(models.CloseEvent{Path: path, Root: "/p", FinalLength: 20})
	fc = fileCounter(t, e, "/p", path)
	if fc.Close != 1 || fc.Length != 20 {
		t.Errorf("after close: close=%d length=%d", fc.Close, fc.Length)
	}

	if got := keystrokes(t, e, "/p"); got != 3 {
		t.Errorf("Keystrokes = %d, want 3", got)
	}
	if fc.Syntax != "typescript" {
		t.Errorf("Syntax = %q, want typescript", fc.Syntax)
	}
}

func TestEngine_NoOpChangeTouchesNothing(t *testing.T) {
	e := newTestEngine(t)
	const path = "/p/a.ts"
	e.HandleChange(change(path, "a", 0))

	ev := change(path, "", 0)
	ev.CurrentLength = 42
	if got := e.HandleChange(ev); got != OutcomeNoOp {
		t.Errorf("HandleChange = %v, want noop", got)
	}

	fc := fileCounter(t, e, "/p", path)
	if fc.Add != 1 || fc.Delete != 0 || fc.Paste != 0 {
		t.Errorf("counters changed: %+v", fc)
	}
	if fc.Length != 42 {
		t.Errorf("Length = %d, want 42", fc.Length)
	}
	if got := keystrokes(t, e, "/p"); got != 1 {
		t.Errorf("Keystrokes = %d, want 1", got)
	}
}

func TestEngine_DeleteFiveChars(t *testing.T) {
	e := newTestEngine(t)
	e.HandleChange(change("/p/a.ts", "", 5))

	fc := fileCounter(t, e, "/p", "/p/a.ts")
	if fc.Delete != 1 || fc.NetKeys != -1 {
		t.Errorf("delete=%d netkeys=%d, want 1/-1", fc.Delete, fc.NetKeys)
	}
}

func TestEngine_NewlineForcesLinesAdded(t *testing.T) {
	e := newTestEngine(t)
	const path = "/p/a.ts"

	ev := change(path, "x\n", 0)
	ev.LineCount = 10
	e.HandleChange(ev)

	fc := fileCounter(t, e, "/p", path)
	if fc.Add != 1 {
		t.Errorf("Add = %d, want 1", fc.Add)
	}
	if fc.LinesAdded != 1 {
		t.Errorf("LinesAdded = %d, want 1 on first newline", fc.LinesAdded)
	}

	ev = change(path, "\n", 0)
	ev.LineCount = 10
	if got := e.HandleChange(ev); got != OutcomeCounted {
		t.Errorf("newline-only change = %v, want counted", got)
	}
	fc = fileCounter(t, e, "/p", path)
	if fc.Add != 1 {
		t.Errorf("newline-only insert changed Add to %d", fc.Add)
	}
	if got := keystrokes(t, e, "/p"); got != 2 {
		t.Errorf("Keystrokes = %d, want 2", got)
	}
}

func TestEngine_LineDiffs(t *testing.T) {
	e := newTestEngine(t)
	const path = "/p/a.ts"

	steps := []struct {
		lines       int
		wantAdded   int
		wantRemoved int
	}{
		{100, 0, 0}, // baseline
		{103, 3, 0},
		{101, 3, 2},
		{101, 3, 2},
		{110, 12, 2},
	}

	for i, step := range steps {
		ev := change(path, "a", 0)
		ev.LineCount = step.lines
		e.HandleChange(ev)

		fc := fileCounter(t, e, "/p", path)
		if fc.LinesAdded != step.wantAdded || fc.LinesRemoved != step.wantRemoved {
			t.Errorf("step %d: added=%d removed=%d, want %d/%d",
				i, fc.LinesAdded, fc.LinesRemoved, step.wantAdded, step.wantRemoved)
		}
		if fc.Lines != step.lines {
			t.Errorf("step %d: Lines = %d, want %d", i, fc.Lines, step.lines)
		}
	}
}

func TestEngine_SyntaxSetOnce(t *testing.T) {
	e := newTestEngine(t)
	const path = "/p/a.ts"

	ev := change(path, "a", 0)
	ev.LanguageID = ""
	e.HandleChange(ev)
	if fc := fileCounter(t, e, "/p", path); fc.Syntax != "" {
		t.Errorf("Syntax = %q, want empty", fc.Syntax)
	}

	ev.LanguageID = "go"
	e.HandleChange(ev)
	ev.LanguageID = "python"
	e.HandleChange(ev)

	if fc := fileCounter(t, e, "/p", path); fc.Syntax != "go" {
		t.Errorf("Syntax = %q, want go", fc.Syntax)
	}
}

func TestEngine_AmbiguousChange(t *testing.T) {
	e := newTestEngine(t)
	const path = "/p/a.ts"
	e.HandleOpen(models.OpenEvent{Path: path, Root: "/p"})

	ev := models.ChangeEvent{
		Path: path,
		Root: "/p",
		Changes: []models.ChangeRecord{
			{Text: "a"},
			{Text: "b"},
		},
	}
	if got := e.HandleChange(ev); got != OutcomeDropped {
		t.Errorf("HandleChange = %v, want dropped", got)
	}

	fc := fileCounter(t, e, "/p", path)
	if fc.Add != 0 || fc.Open != 1 {
		t.Errorf("counters after ambiguous change: %+v", fc)
	}
	if got := keystrokes(t, e, "/p"); got != 0 {
		t.Errorf("Keystrokes = %d, want 0", got)
	}
}

func TestEngine_Filtering(t *testing.T) {
	liveShare := "/tmp/vsliveshare/tmp-1234/Visual Studio Live Share.code-workspace"

	tests := []struct {
		name string
		run  func(e *Engine) Outcome
		want Outcome
	}{
		{"OpenEmptyPath", func(e *Engine) Outcome {
			return e.HandleOpen(models.OpenEvent{})
		}, OutcomeDropped},
		{"CloseEmptyPath", func(e *Engine) Outcome {
			return e.HandleClose(models.CloseEvent{})
		}, OutcomeDropped},
		{"ChangeEmptyPath", func(e *Engine) Outcome {
			return e.HandleChange(models.ChangeEvent{Changes: []models.ChangeRecord{{Text: "a"}}})
		}, OutcomeDropped},
		{"OpenLiveShare", func(e *Engine) Outcome {
			return e.HandleOpen(models.OpenEvent{Path: liveShare})
		}, OutcomeIgnored},
		{"ChangeLiveShare", func(e *Engine) Outcome {
			return e.HandleChange(change(liveShare, "a", 0))
		}, OutcomeIgnored},
		{"ChangeMetricsFile", func(e *Engine) Outcome {
			return e.HandleChange(change(testMetricsFile, "a", 0))
		}, OutcomeIgnored},
		{"ChangeFlaggedMetricsFile", func(e *Engine) Outcome {
			ev := change("/somewhere/else.txt", "a", 0)
			ev.IsMetricsFile = true
			return e.HandleChange(ev)
		}, OutcomeIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			if got := tt.run(e); got != tt.want {
				t.Errorf("outcome = %v, want %v", got, tt.want)
			}
			if n := e.Store().Len(); n != 0 {
				t.Errorf("store has %d aggregates, want 0", n)
			}
		})
	}
}

func TestEngine_MetricsFileState(t *testing.T) {
	e := newTestEngine(t)

	e.HandleOpen(models.OpenEvent{Path: testMetricsFile})
	if s := e.MetricsFileState(); !s.Focused || s.Closed {
		t.Errorf("after opening status file: %+v", s)
	}

	e.HandleOpen(models.OpenEvent{Path: "/p/a.ts", Root: "/p"})
	if s := e.MetricsFileState(); s.Focused {
		t.Errorf("after opening other file: %+v", s)
	}

	e.HandleClose(models.CloseEvent{Path: testMetricsFile})
	if s := e.MetricsFileState(); s.Focused || !s.Closed {
		t.Errorf("after closing status file: %+v", s)
	}
}

func TestEngine_UntitledRoot(t *testing.T) {
	clock := quartz.NewMock(t)
	e := NewEngine(NewStore(), Options{FallbackName: "My Workspace", Clock: clock})

	e.HandleOpen(models.OpenEvent{Path: "/scratch.txt"})

	agg, ok := e.Store().Get(UntitledRoot)
	if !ok {
		t.Fatal("no aggregate for untitled root")
	}
	if agg.Name != "My Workspace" {
		t.Errorf("Name = %q, want My Workspace", agg.Name)
	}
}

func TestEngine_ProjectNameAndWindowStart(t *testing.T) {
	e := newTestEngine(t)
	e.HandleOpen(models.OpenEvent{Path: "/work/api/main.go", Root: "/work/api"})

	agg, _ := e.Store().Get("/work/api")
	if agg.Name != "api" {
		t.Errorf("Name = %q, want api", agg.Name)
	}
	want := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC).Unix()
	if agg.Start != want {
		t.Errorf("Start = %d, want %d", agg.Start, want)
	}
}

func TestEngine_CustomNamer(t *testing.T) {
	e := NewEngine(NewStore(), Options{
		Clock: quartz.NewMock(t),
		Namer: func(root string) string { return "named:" + root },
	})
	e.HandleOpen(models.OpenEvent{Path: "/r/x", Root: "/r"})

	agg, _ := e.Store().Get("/r")
	if agg.Name != "named:/r" {
		t.Errorf("Name = %q", agg.Name)
	}
}

func TestEngine_PanicInNamerIsRecovered(t *testing.T) {
	e := NewEngine(NewStore(), Options{
		Clock: quartz.NewMock(t),
		Namer: func(string) string { panic("boom") },
	})

	if got := e.HandleOpen(models.OpenEvent{Path: "/r/x", Root: "/r"}); got != OutcomeDropped {
		t.Errorf("HandleOpen = %v, want dropped", got)
	}

	// The engine keeps working after a panic.
	e.namer = func(root string) string { return root }
	if got := e.HandleOpen(models.OpenEvent{Path: "/r/x", Root: "/r"}); got != OutcomeCounted {
		t.Errorf("HandleOpen after panic = %v, want counted", got)
	}
}

func TestEngine_NetKeysInvariant(t *testing.T) {
	e := newTestEngine(t)
	const path = "/p/a.ts"

	inputs := []struct {
		text string
		rng  int
	}{
		{"a", 0}, {"", 1}, {"bc", 0}, {"", 0}, {strings.Repeat("x", 30), 0},
		{"", 12}, {"\n", 0}, {"d", 2}, {"", 3},
	}
	for i, in := range inputs {
		e.HandleChange(change(path, in.text, in.rng))
		fc := fileCounter(t, e, "/p", path)
		if fc.NetKeys != fc.Add-fc.Delete {
			t.Fatalf("step %d: netkeys %d != add %d - delete %d", i, fc.NetKeys, fc.Add, fc.Delete)
		}
	}
}

func TestBootstrapPayload(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	agg := BootstrapPayload("", now)

	if agg.Directory != BootstrapDirectory {
		t.Errorf("Directory = %q, want %q", agg.Directory, BootstrapDirectory)
	}
	if agg.Name != DefaultProjectName {
		t.Errorf("Name = %q, want %q", agg.Name, DefaultProjectName)
	}
	if agg.Keystrokes != 1 {
		t.Errorf("Keystrokes = %d, want 1", agg.Keystrokes)
	}
	fc, ok := agg.Source[BootstrapFile]
	if !ok || fc.Add != 1 {
		t.Fatalf("bootstrap file counter = %+v", fc)
	}
	if !agg.HasData() {
		t.Error("bootstrap payload should have data")
	}
	if agg.Start != now.Unix() || agg.End != now.Unix() {
		t.Errorf("Start/End = %d/%d, want %d", agg.Start, agg.End, now.Unix())
	}
}
