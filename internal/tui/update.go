package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles Bubble Tea messages.
func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case refreshDoneMsg:
		m.refreshing = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.lastRefresh = msg.result
		return m, m.loadSummaryCmd()

	case summaryLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		prev := m.SelectedDate()
		m.summary = msg.summary
		m.reselect(prev)
		return m, nil

	case clearDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.selected = -1
		return m, m.loadSummaryCmd()

	case autoRefreshMsg:
		return m, tea.Batch(m.startRefresh(), m.autoRefreshCmd())
	}

	return m, nil
}

func (m *DashboardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m, tea.Quit
	}

	if m.confirmClear {
		m.confirmClear = false
		if key.Matches(msg, m.keys.Confirm) {
			return m, m.clearCmd()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Refresh):
		return m, m.startRefresh()
	case key.Matches(msg, m.keys.Clear):
		m.confirmClear = true
	case key.Matches(msg, m.keys.AllDates):
		m.selected = -1
	case key.Matches(msg, m.keys.PrevDate):
		m.moveSelection(-1)
	case key.Matches(msg, m.keys.NextDate):
		m.moveSelection(1)
	}
	return m, nil
}

// moveSelection steps through dates in store order. From "all dates", left
// jumps to the last date and right to the first.
func (m *DashboardModel) moveSelection(delta int) {
	n := len(m.summary.Dates)
	if n == 0 {
		m.selected = -1
		return
	}
	if m.selected < 0 {
		if delta < 0 {
			m.selected = n - 1
		} else {
			m.selected = 0
		}
		return
	}
	m.selected = min(max(m.selected+delta, 0), n-1)
}

// reselect keeps the previously selected date selected after a reload,
// falling back to all dates when it was pruned or cleared.
func (m *DashboardModel) reselect(date string) {
	m.selected = -1
	if date == "" {
		return
	}
	for i, d := range m.summary.Dates {
		if d == date {
			m.selected = i
			return
		}
	}
}
