package dashboard

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/j-veylop/kpm-aggregator/internal/models"
	"github.com/j-veylop/kpm-aggregator/internal/ui/components"
	"github.com/j-veylop/kpm-aggregator/internal/ui/styles"
)

// View renders the window tab.
func (m *Model) View() string {
	if m.state.IsInitialLoading() {
		return components.RenderSpinnerCentered(m.spinner, m.width, m.height)
	}

	window := m.state.GetWindow()

	sections := []string{
		m.renderTitle(),
		m.renderSummary(window),
		m.renderProjectList(window),
	}
	if len(window) > 0 && m.selectedIndex < len(window) {
		sections = append(sections, m.renderFileTable(window[m.selectedIndex]))
	}

	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, sections...))

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

func (m *Model) renderTitle() string {
	title := styles.TitleStyle.Render("Current Window")
	subtitle := styles.HelpStyle.Render("Keystrokes counted since the last flush")
	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) renderSummary(window []*models.ProjectAggregate) string {
	stats := m.state.GetStats()

	started := "—"
	if oldest := oldestStart(window); oldest > 0 {
		started = humanize.Time(time.Unix(oldest, 0))
	}

	fileState := m.state.GetFileState()
	status := "hidden"
	switch {
	case fileState.Focused:
		status = styles.SuccessTextStyle.Render("focused")
	case fileState.Closed:
		status = "closed"
	}

	stat := func(value, label string) string {
		return lipgloss.JoinVertical(lipgloss.Left,
			styles.StatValueStyle.Render(value),
			styles.StatLabelStyle.Render(label))
	}

	row := lipgloss.JoinHorizontal(lipgloss.Top,
		stat(humanize.Comma(int64(stats.PendingKeystrokes)), "keystrokes"), "    ",
		stat(humanize.Comma(int64(stats.ActiveProjects)), "projects"), "    ",
		stat(humanize.Comma(int64(stats.ActiveFiles)), "files"), "    ",
		stat(started, "window opened"), "    ",
		stat(status, "status file"),
	)
	return styles.CardStyle.Width(m.cardWidth()).Render(row)
}

func (m *Model) renderProjectList(window []*models.ProjectAggregate) string {
	cardWidth := m.cardWidth()
	titleIcon := lipgloss.NewStyle().Foreground(styles.Primary).Render("◈")
	rows := []string{fmt.Sprintf("%s %s", titleIcon, styles.CardTitleStyle.Render("Projects"))}

	if len(window) == 0 {
		emptyIcon := lipgloss.NewStyle().Foreground(styles.Subtle).Render("○")
		rows = append(rows, "",
			fmt.Sprintf("  %s %s", emptyIcon, styles.HelpStyle.Render("Nothing typed yet in this window")))
		return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	peak := 0
	for _, agg := range window {
		peak = max(peak, agg.Keystrokes)
	}

	rows = append(rows, "")
	for i, agg := range window {
		rows = append(rows, m.renderProjectRow(agg, i == m.selectedIndex, peak, cardWidth-4))
	}

	return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderProjectRow(agg *models.ProjectAggregate, selected bool, peak, width int) string {
	prefix := "  "
	if selected {
		prefix = styles.HelpKeyStyle.Render("▸ ")
	}

	var add, del, paste int
	for _, fc := range agg.Source {
		add += fc.Add
		del += fc.Delete
		paste += fc.Paste
	}

	name := lipgloss.NewStyle().Bold(true).Render(agg.Name)
	count := styles.GetActivityStyle(agg.Keystrokes, peak).Render(humanize.Comma(int64(agg.Keystrokes)))
	net := styles.HelpStyle.Render("net " + humanize.Comma(int64(agg.TotalNetKeys())))
	line := fmt.Sprintf("%s%s  %s  %s  %s  %s",
		prefix, name, count, net,
		components.RenderKindBreakdown(add, del, paste),
		styles.HelpStyle.Render(agg.Directory))

	return ansi.Truncate(line, width, "…")
}

func (m *Model) renderFileTable(agg *models.ProjectAggregate) string {
	paths := make([]string, 0, len(agg.Source))
	for path := range agg.Source {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		return agg.Source[paths[i]].NetKeys > agg.Source[paths[j]].NetKeys ||
			(agg.Source[paths[i]].NetKeys == agg.Source[paths[j]].NetKeys && paths[i] < paths[j])
	})

	header := styles.TableHeaderStyle.Render(
		fmt.Sprintf("%-32s %-10s %-18s %6s %6s %8s", "File", "Syntax", "Keys", "+Lines", "-Lines", "Length"))

	rows := []string{
		styles.CardTitleStyle.Render(agg.Name + " files"),
		header,
	}
	for _, path := range paths {
		fc := agg.Source[path]
		name := ansi.Truncate(relativePath(agg.Directory, path), 32, "…")
		syntax := fc.Syntax
		if syntax == "" {
			syntax = "—"
		}
		breakdown := components.RenderKindBreakdown(fc.Add, fc.Delete, fc.Paste)
		pad := max(18-lipgloss.Width(breakdown), 0)
		rows = append(rows, styles.TableCellStyle.Render(fmt.Sprintf("%-32s %-10s %s%s %6d %6d %8s",
			name, syntax, breakdown, strings.Repeat(" ", pad),
			fc.LinesAdded, fc.LinesRemoved, humanize.Comma(int64(fc.Length)))))
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) cardWidth() int {
	return max(m.width-6, 40)
}

func oldestStart(window []*models.ProjectAggregate) int64 {
	var oldest int64
	for _, agg := range window {
		if agg.Start > 0 && (oldest == 0 || agg.Start < oldest) {
			oldest = agg.Start
		}
	}
	return oldest
}

func relativePath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return filepath.Base(path)
}
