package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/cleanstat/internal/model"
)

const (
	legendWidth = 22
	barWidth    = 5 // fits an MM-DD label
)

type seriesSpec struct {
	name  string
	color lipgloss.Color
	value func(model.DailyTotals) int
}

var chartSeries = []seriesSpec{
	{"Files", ColorFiles, func(t model.DailyTotals) int { return t.DeletedFiles }},
	{"Dirs", ColorDirs, func(t model.DailyTotals) int { return t.DeletedDirs }},
	{"Segments", ColorSegments, func(t model.DailyTotals) int { return t.DirtySegments }},
}

// shortDate turns 2024-01-10 into 01-10.
func shortDate(date string) string {
	if len(date) == len(model.DateLayout) {
		return date[5:]
	}
	return date
}

// renderChart draws one stacked bar per date next to a legend of totals.
func renderChart(rows []model.DailyTotals, total model.DailyTotals, selected string, width, height int) string {
	if len(rows) == 0 {
		return helpStyle.Render("No data available")
	}
	if height < 4 {
		height = 4
	}

	chartWidth := width - legendWidth - 2
	if chartWidth < 20 {
		chartWidth = 20
	}

	// Rows are in store order; keep the last ones when there are more than fit.
	maxBars := max(1, chartWidth/(barWidth+1))
	if len(rows) > maxBars {
		rows = rows[len(rows)-maxBars:]
	}

	bc := barchart.New(chartWidth, height,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(barWidth),
	)

	for _, row := range rows {
		var values []barchart.BarValue
		for _, s := range chartSeries {
			v := s.value(row)
			if v <= 0 {
				continue
			}
			values = append(values, barchart.BarValue{
				Name:  s.name,
				Value: float64(v),
				Style: barStyle(s.color),
			})
		}
		if len(values) == 0 {
			values = append(values, barchart.BarValue{Name: "EMPTY", Value: 0, Style: barStyle(ColorGray)})
		}
		bc.Push(barchart.BarData{Label: shortDate(row.Date), Values: values})
	}

	bc.Draw()

	return lipgloss.JoinHorizontal(lipgloss.Top, bc.View(), "  ", renderLegend(total, selected, height))
}

func renderLegend(total model.DailyTotals, selected string, height int) string {
	scope := "All dates"
	if selected != "" {
		scope = selected
	}

	lines := []string{chartTitleStyle.Render(scope)}
	sum := 0
	for _, s := range chartSeries {
		v := s.value(total)
		sum += v
		style := lipgloss.NewStyle().Foreground(s.color)
		lines = append(lines, style.Render(fmt.Sprintf("%-9s %8d", s.name+":", v)))
	}
	lines = append(lines,
		lipgloss.NewStyle().Foreground(ColorGray).Render(strings.Repeat("─", legendWidth-4)),
		fmt.Sprintf("%-9s %8d", "Total:", sum),
	)
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
