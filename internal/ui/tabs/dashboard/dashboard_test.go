package dashboard

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/kpm-aggregator/internal/app"
	"github.com/j-veylop/kpm-aggregator/internal/kpm"
	"github.com/j-veylop/kpm-aggregator/internal/models"
	"github.com/j-veylop/kpm-aggregator/internal/services"
)

func testWindow() []*models.ProjectAggregate {
	api := models.NewProjectAggregate("/src/api", "api")
	api.Start = time.Now().Add(-2 * time.Minute).Unix()
	fc := api.File("/src/api/server.go")
	fc.Add, fc.Delete, fc.Paste = 40, 5, 1
	fc.Syntax = "go"
	fc.LinesAdded = 3
	fc.UpdateNetKeys()
	api.Keystrokes = 46

	web := models.NewProjectAggregate("/src/web", "web")
	web.Start = time.Now().Add(-time.Minute).Unix()
	web.File("/src/web/index.ts").Open = 1

	return []*models.ProjectAggregate{api, web}
}

func loadedState(window []*models.ProjectAggregate) *app.State {
	state := app.NewState()
	state.SetLoading("initial", false)
	state.SetWindow(window, services.StatsEvent{
		ActiveProjects:    len(window),
		ActiveFiles:       2,
		PendingKeystrokes: 1046,
	}, kpm.MetricsFileState{Focused: true})
	return state
}

func TestNew(t *testing.T) {
	m := New(app.NewState())
	if m == nil {
		t.Fatal("New returned nil")
	}
	if m.Init() == nil {
		t.Error("Init returned nil")
	}
}

func TestModel_Update(t *testing.T) {
	m := New(app.NewState())
	updated, _ := m.Update(nil)
	if updated == nil {
		t.Error("Update returned nil model")
	}
}

func TestModel_ViewLoading(t *testing.T) {
	m := New(app.NewState())
	m.SetSize(80, 20)
	if view := m.View(); !strings.Contains(view, "Reading editor events") {
		t.Error("loading view should show the spinner label")
	}
}

func TestModel_ViewEmpty(t *testing.T) {
	m := New(loadedState(nil))
	m.SetSize(100, 40)

	view := m.View()
	if !strings.Contains(view, "Nothing typed yet") {
		t.Error("empty window should say so")
	}
}

func TestModel_ViewWindow(t *testing.T) {
	m := New(loadedState(testWindow()))
	m.SetSize(140, 60)

	view := m.View()
	for _, want := range []string{"Current Window", "api", "web", "1,046", "net 35", "server.go", "focused"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_Navigation(t *testing.T) {
	state := loadedState(testWindow())
	m := New(state)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	if m.SelectedIndex() != 1 {
		t.Fatalf("selected = %d, want 1", m.SelectedIndex())
	}
	if cmd == nil {
		t.Fatal("selection change should emit a command")
	}
	msg, ok := cmd().(app.SelectedProjectChangedMsg)
	if !ok || msg.Directory != "/src/web" || msg.Index != 1 {
		t.Errorf("msg = %#v", msg)
	}
	if state.GetSelectedProject() != 1 {
		t.Error("selection should be stored in state")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	if m.SelectedIndex() != 0 {
		t.Errorf("selection should wrap, got %d", m.SelectedIndex())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'G'}})
	if m.SelectedIndex() != 1 {
		t.Errorf("G should select last, got %d", m.SelectedIndex())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'g'}})
	if m.SelectedIndex() != 0 {
		t.Errorf("g should select first, got %d", m.SelectedIndex())
	}
}

func TestModel_ClampOnReload(t *testing.T) {
	window := testWindow()
	state := loadedState(window)
	m := New(state)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'G'}})

	state.SetWindow(window[:1], services.StatsEvent{}, kpm.MetricsFileState{})
	m.Update(app.WindowLoadedMsg{})
	if m.SelectedIndex() != 0 {
		t.Errorf("selection = %d, want 0 after shrink", m.SelectedIndex())
	}
}

func TestHelp(t *testing.T) {
	m := New(app.NewState())
	if len(m.ShortHelp()) != 2 {
		t.Errorf("ShortHelp len = %d", len(m.ShortHelp()))
	}
	if len(m.FullHelp()) != 2 {
		t.Errorf("FullHelp len = %d", len(m.FullHelp()))
	}
}

func TestRelativePath(t *testing.T) {
	if got := relativePath("/src/api", "/src/api/cmd/main.go"); got != "cmd/main.go" {
		t.Errorf("relativePath = %q", got)
	}
	if got := relativePath("/src/api", "/elsewhere/x.go"); got != "x.go" {
		t.Errorf("relativePath outside root = %q", got)
	}
}
