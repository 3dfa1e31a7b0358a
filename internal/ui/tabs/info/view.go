package info

import (
	"fmt"
	"net/url"
	"runtime"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/j-veylop/kpm-aggregator/internal/ui/styles"
	"github.com/j-veylop/kpm-aggregator/internal/version"
)

// View renders the info tab.
func (m *Model) View() string {
	sections := []string{
		m.renderTitle(),
		m.renderConfigCard(),
		m.renderRuntimeCard(),
		m.renderAboutCard(),
	}

	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, sections...))

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

func (m *Model) renderTitle() string {
	title := styles.TitleStyle.Render("Info")
	subtitle := styles.HelpStyle.Render("Configuration and runtime information")

	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) cardWidth() int {
	return min(max(m.width-6, 50), 90)
}

func (m *Model) renderConfigCard() string {
	rows := []string{styles.CardTitleStyle.Render("Configuration"), ""}

	if m.config == nil {
		rows = append(rows, styles.HelpStyle.Render("Configuration not loaded"))
		return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	ingest := "disabled (history only)"
	if m.config.IngestURL != "" {
		ingest = redactURL(m.config.IngestURL)
		if m.config.IngestToken != "" {
			ingest += " (token set)"
		}
	}
	metricsAddr := m.metricsAddr
	if metricsAddr == "" {
		metricsAddr = "disabled"
	}

	rows = append(rows,
		renderRow("Event Spool", m.config.EventsPath),
		renderRow("Database", m.config.DatabasePath),
		renderRow("Status File", m.config.DashboardFile),
		renderRow("Flush Interval", m.config.FlushInterval.String()),
		renderRow("Ingest", ingest),
		renderRow("Submit Workers", fmt.Sprintf("%d", m.config.MaxConcurrentSubmits)),
		renderRow("Metrics", metricsAddr),
		renderRow("Notifications", onOff(m.config.NotifyOnFailure)),
		renderRow("Log Level", m.config.LogLevel),
	)

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderRuntimeCard() string {
	rows := []string{styles.CardTitleStyle.Render("Session"), ""}

	fileState := m.state.GetFileState()
	status := "not open"
	switch {
	case fileState.Focused:
		status = "focused"
	case fileState.Closed:
		status = "closed"
	}

	lastFlush := "never"
	last, batch := m.state.GetLastFlush()
	if !last.IsZero() {
		lastFlush = fmt.Sprintf("%s (%s)", humanize.Time(last), batch)
	}

	failed := m.state.GetFailedDeliveries()
	failedText := styles.SuccessTextStyle.Render("0")
	if failed > 0 {
		failedText = styles.WarningTextStyle.Render(humanize.Comma(int64(failed)))
	}

	rows = append(rows,
		renderRow("Status File", status),
		renderRow("Last Flush", lastFlush),
		renderRow("Failed Deliveries", failedText),
	)

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderAboutCard() string {
	rows := []string{
		styles.CardTitleStyle.Render("About " + version.Name),
		"",
		renderRow("Version", version.GetVersion()),
		renderRow("Build Date", version.GetDate()),
		renderRow("Git Commit", version.GetCommit()),
		renderRow("Go Version", runtime.Version()),
		renderRow("Platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)),
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// renderRow renders a key-value row.
func renderRow(label, value string) string {
	labelStyle := lipgloss.NewStyle().
		Width(18).
		Foreground(styles.TextMuted)

	valueStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary)

	return labelStyle.Render(label+":") + " " + valueStyle.Render(value)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// redactURL drops credentials and query parameters from an endpoint.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid URL"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
