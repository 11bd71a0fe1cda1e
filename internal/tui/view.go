package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/cleanstat/internal/model"
)

// View renders the dashboard.
func (m *DashboardModel) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "Initializing dashboard..."
	}

	header := m.renderHeader()
	footer := m.renderFooter()

	// borders and padding of the two panels
	bodyWidth := max(20, m.width-4)
	available := m.height - lipgloss.Height(header) - lipgloss.Height(footer) - 4
	chartHeight := min(max(available/2, 6), 12)

	chart := sectionStyle.Width(bodyWidth).Render(
		renderChart(m.summary.Rows, m.visibleTotal(), m.SelectedDate(), bodyWidth-2, chartHeight),
	)
	table := activeSectionStyle.Width(bodyWidth).Render(m.renderTable())

	return lipgloss.JoinVertical(lipgloss.Left, header, chart, table, footer)
}

func (m *DashboardModel) renderHeader() string {
	left := " cleanstat "
	right := fmt.Sprintf(" source: %s ", m.sourceName)

	var status string
	switch {
	case m.refreshing:
		status = "refreshing..."
	case !m.lastRefresh.At.IsZero():
		status = fmt.Sprintf("refreshed %s (%d parsed)", m.lastRefresh.At.Format("15:04:05"), m.lastRefresh.Parsed)
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - lipgloss.Width(status)
	if gap < 2 {
		return headerStyle.Width(m.width).Render(left + right)
	}
	pad := strings.Repeat(" ", gap/2)
	return headerStyle.Width(m.width).Render(left + pad + status + pad + right)
}

func (m *DashboardModel) renderTable() string {
	rows := m.visibleRows()
	if len(rows) == 0 {
		return helpStyle.Render("No cleanup records in the last 7 days")
	}

	lines := []string{chartTitleStyle.Render(fmt.Sprintf("%-12s %10s %10s %10s", "Date", "Files", "Dirs", "Segments"))}
	for _, row := range rows {
		line := formatRow(row)
		if row.Date == m.SelectedDate() {
			line = selectedRowStyle.Render(line)
		}
		lines = append(lines, line)
	}
	if len(rows) > 1 {
		lines = append(lines, formatRow(m.visibleTotal()))
	}
	return strings.Join(lines, "\n")
}

func formatRow(t model.DailyTotals) string {
	date := t.Date
	if date == "" {
		date = "Total"
	}
	return fmt.Sprintf("%-12s %10d %10d %10d", date, t.DeletedFiles, t.DeletedDirs, t.DirtySegments)
}

func (m *DashboardModel) renderFooter() string {
	switch {
	case m.confirmClear:
		return warnStyle.Render("Clear all stored records? (y/n)")
	case m.err != nil:
		return errorStyle.Render("Error: "+m.err.Error()) + "\n" + m.help.View(m.keys)
	}
	return m.help.View(m.keys)
}
