package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/j-veylop/kpm-aggregator/internal/models"
	"github.com/j-veylop/kpm-aggregator/internal/ui/components"
	"github.com/j-veylop/kpm-aggregator/internal/ui/styles"
)

// View renders the history tab.
func (m *Model) View() string {
	if m.loading && m.data == nil {
		return m.renderLoading()
	}
	if m.errorMsg != "" {
		return m.renderError()
	}
	if m.data == nil || m.data.totals == nil || m.data.totals.TotalFlushes == 0 {
		return m.renderEmpty()
	}

	sections := []string{
		m.renderHeader(),
		m.renderTotals(),
		m.renderKeystrokeChart(),
		m.renderHourlyHeatmap(),
		m.renderTopFiles(),
		m.renderRecentFlushes(),
	}

	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, sections...))

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

func (m *Model) renderLoading() string {
	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(styles.HelpStyle.Render("Loading history data..."))
}

func (m *Model) renderError() string {
	content := fmt.Sprintf("%s %s",
		styles.ErrorTextStyle.Render("Error:"),
		m.errorMsg,
	)
	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(content)
}

func (m *Model) renderEmpty() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		styles.TitleStyle.Render("History"),
		"",
		styles.HelpStyle.Render("No flushes recorded yet."),
		styles.HelpStyle.Render("Aggregates appear here once a window with activity is flushed."),
	)
	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(content)
}

func (m *Model) renderHeader() string {
	title := styles.TitleStyle.Render("History")

	rangeStyle := lipgloss.NewStyle().
		Foreground(styles.Primary).
		Bold(true).
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Primary)

	rangeIndicator := rangeStyle.Render(fmt.Sprintf("[t] last %s", rangeLabel(m.data.hours)))
	header := lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", rangeIndicator)

	var subtitle string
	if !m.lastRefresh.IsZero() {
		subtitle = styles.HelpStyle.Render("Updated " + humanize.Time(m.lastRefresh))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, subtitle, "")
}

func (m *Model) renderTotals() string {
	t := m.data.totals

	stat := func(value int, label string) string {
		return lipgloss.JoinVertical(lipgloss.Left,
			styles.StatValueStyle.Render(humanize.Comma(int64(value))),
			styles.StatLabelStyle.Render(label))
	}

	row := lipgloss.JoinHorizontal(lipgloss.Top,
		stat(t.TotalKeystrokes, "keystrokes"), "    ",
		stat(t.TotalFlushes, "flushes"), "    ",
		stat(t.UniqueProjects, "projects"), "    ",
		stat(t.UniqueFiles, "files"),
	)

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left,
		row, "", "  "+components.RenderKindBreakdown(t.TotalAdd, t.TotalDelete, t.TotalPaste)))
}

func (m *Model) renderKeystrokeChart() string {
	cardWidth := m.cardWidth()

	titleIcon := lipgloss.NewStyle().Foreground(styles.Primary).Render("📈")
	rows := []string{fmt.Sprintf("%s %s", titleIcon, styles.CardTitleStyle.Render("Keystrokes per Hour")), ""}

	if len(m.data.hourly) == 0 {
		rows = append(rows, styles.HelpStyle.Render("  No activity in this range"))
	} else {
		series := hourlySeries(m.data.hourly, m.data.hours, m.now())
		chart := components.RenderLineChart(series, max(cardWidth-12, 30), 8,
			fmt.Sprintf("Last %s", rangeLabel(m.data.hours)))
		for line := range strings.SplitSeq(chart, "\n") {
			rows = append(rows, "  "+line)
		}
		rows = append(rows, "", "  "+components.RenderSparkline(series, max(cardWidth-8, 10)))
	}

	rows = append(rows, "")
	return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderHourlyHeatmap() string {
	titleIcon := lipgloss.NewStyle().Foreground(styles.Primary).Render("🕐")
	rows := []string{fmt.Sprintf("%s %s", titleIcon, styles.CardTitleStyle.Render("Hour of Day")), ""}

	byHour := hourOfDay(m.data.hourly)
	rows = append(rows, "  "+components.RenderHourlyHeatmap(byHour[:]))

	peak, peakVal := 0, 0.0
	for h, v := range byHour {
		if v > peakVal {
			peak, peakVal = h, v
		}
	}
	if peakVal > 0 {
		rows = append(rows, fmt.Sprintf("  Peak: %s (%s keystrokes)",
			lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).
				Render(fmt.Sprintf("%02d:00-%02d:00", peak, (peak+1)%24)),
			humanize.Comma(int64(peakVal))))
	}

	rows = append(rows, "")
	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderTopFiles() string {
	cardWidth := m.cardWidth()
	titleIcon := lipgloss.NewStyle().Foreground(styles.Primary).Render("◈")
	rows := []string{fmt.Sprintf("%s %s", titleIcon, styles.CardTitleStyle.Render("Busiest Files")), ""}

	if len(m.data.topFiles) == 0 {
		rows = append(rows, styles.HelpStyle.Render("  No file activity recorded"))
	} else {
		values := make([]float64, len(m.data.topFiles))
		labels := make([]string, len(m.data.topFiles))
		for i, f := range m.data.topFiles {
			values[i] = float64(f.Add + f.Delete + f.Paste)
			labels[i] = ansi.TruncateLeft(f.Path, max(len(f.Path)-28, 0), "…")
		}
		for line := range strings.SplitSeq(components.RenderBarChart(values, labels, max(cardWidth-8, 30)), "\n") {
			rows = append(rows, "  "+line)
		}
	}

	rows = append(rows, "")
	return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderRecentFlushes() string {
	records := m.state.GetRecentFlushes()
	rows := []string{
		styles.CardTitleStyle.Render("Recent Flushes"),
		styles.TableHeaderStyle.Render(fmt.Sprintf("%-16s %-24s %10s %6s  %s", "When", "Project", "Keystrokes", "Files", "Batch")),
	}

	if len(records) == 0 {
		rows = append(rows, styles.HelpStyle.Render("No flushes loaded"))
	}
	for _, r := range records {
		batch := r.BatchID
		if len(batch) > 8 {
			batch = batch[:8]
		}
		rows = append(rows, styles.TableCellStyle.Render(fmt.Sprintf("%-16s %-24s %10s %6d  %s",
			humanize.Time(r.Timestamp),
			ansi.Truncate(r.Name, 24, "…"),
			humanize.Comma(int64(r.Keystrokes)),
			r.Files,
			styles.HelpStyle.Render(batch))))
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) cardWidth() int {
	return max(m.width-6, 40)
}

// hourlySeries spreads sparse hourly rows over a dense series of the given
// length ending at the hour containing now.
func hourlySeries(hourly []models.HourlyKeystrokes, hours int, now time.Time) []float64 {
	series := make([]float64, hours)
	end := now.UTC().Truncate(time.Hour)
	for _, h := range hourly {
		ago := int(end.Sub(h.Hour.UTC().Truncate(time.Hour)) / time.Hour)
		if ago < 0 || ago >= hours {
			continue
		}
		series[hours-1-ago] += float64(h.Keystrokes)
	}
	return series
}

// hourOfDay folds hourly rows onto the local hour of day.
func hourOfDay(hourly []models.HourlyKeystrokes) [24]float64 {
	var out [24]float64
	for _, h := range hourly {
		out[h.Hour.Local().Hour()] += float64(h.Keystrokes)
	}
	return out
}

func rangeLabel(hours int) string {
	if hours%24 == 0 && hours > 24 {
		return fmt.Sprintf("%d days", hours/24)
	}
	return fmt.Sprintf("%dh", hours)
}
