// Package dashboard provides the live window tab: the projects and files
// counted since the last flush.
package dashboard

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/kpm-aggregator/internal/app"
	"github.com/j-veylop/kpm-aggregator/internal/ui/components"
)

// keyMap defines the key bindings specific to the window tab.
type keyMap struct {
	NextProject  key.Binding
	PrevProject  key.Binding
	FirstProject key.Binding
	LastProject  key.Binding
}

// defaultKeyMap returns the default key bindings for the window tab.
func defaultKeyMap() keyMap {
	return keyMap{
		NextProject: key.NewBinding(
			key.WithKeys("n", "j", "down"),
			key.WithHelp("j/n", "next project"),
		),
		PrevProject: key.NewBinding(
			key.WithKeys("p", "k", "up"),
			key.WithHelp("k/p", "prev project"),
		),
		FirstProject: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "first project"),
		),
		LastProject: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "last project"),
		),
	}
}

// Model represents the window tab state.
type Model struct {
	state         *app.State
	spinner       components.LoadingSpinner
	keys          keyMap
	viewport      viewport.Model
	width         int
	height        int
	selectedIndex int
}

// New creates a new window tab model.
func New(state *app.State) *Model {
	return &Model{
		state:    state,
		spinner:  components.NewSpinner("Reading editor events..."),
		keys:     defaultKeyMap(),
		viewport: viewport.New(0, 0),
	}
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Init()
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case app.WindowLoadedMsg, app.FlushCompletedMsg:
		m.clampSelection()

	case tea.KeyMsg:
		cmds = append(cmds, m.handleKeyMsg(msg))

	case spinner.TickMsg:
		if m.state.IsInitialLoading() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	window := m.state.GetWindow()
	count := len(window)
	prev := m.selectedIndex

	switch {
	case key.Matches(msg, m.keys.NextProject):
		if count > 0 {
			m.selectedIndex = (m.selectedIndex + 1) % count
		}
	case key.Matches(msg, m.keys.PrevProject):
		if count > 0 {
			m.selectedIndex = (m.selectedIndex - 1 + count) % count
		}
	case key.Matches(msg, m.keys.FirstProject):
		m.selectedIndex = 0
	case key.Matches(msg, m.keys.LastProject):
		if count > 0 {
			m.selectedIndex = count - 1
		}
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}

	if m.selectedIndex == prev || count == 0 {
		return nil
	}
	m.state.SetSelectedProject(m.selectedIndex)
	dir := window[m.selectedIndex].Directory
	idx := m.selectedIndex
	return func() tea.Msg {
		return app.SelectedProjectChangedMsg{Directory: dir, Index: idx}
	}
}

func (m *Model) clampSelection() {
	count := len(m.state.GetWindow())
	if m.selectedIndex >= count {
		m.selectedIndex = max(count-1, 0)
		m.state.SetSelectedProject(m.selectedIndex)
	}
}

// SelectedIndex returns the index of the highlighted project.
func (m *Model) SelectedIndex() int {
	return m.selectedIndex
}

// SetSize sets the available size for the tab.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	return []key.Binding{
		m.keys.NextProject,
		m.keys.PrevProject,
	}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.NextProject, m.keys.PrevProject},
		{m.keys.FirstProject, m.keys.LastProject},
	}
}
