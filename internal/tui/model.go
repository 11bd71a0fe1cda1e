package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tinytelemetry/cleanstat/internal/aggregate"
	"github.com/tinytelemetry/cleanstat/internal/ingest"
	"github.com/tinytelemetry/cleanstat/internal/model"
)

const defaultRefreshTimeout = 30 * time.Second

// Backend is the pipeline contract the dashboard drives.
type Backend interface {
	Refresh(ctx context.Context) (ingest.RefreshResult, error)
	Summary(date string) (ingest.Summary, error)
	Clear() error
	SourceName() string
}

// Options holds optional dashboard parameters.
type Options struct {
	// RefreshInterval schedules automatic refreshes. Zero disables them.
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
}

type (
	refreshDoneMsg struct {
		result ingest.RefreshResult
		err    error
	}
	summaryLoadedMsg struct {
		summary ingest.Summary
		err     error
	}
	clearDoneMsg struct {
		err error
	}
	autoRefreshMsg time.Time
)

// DashboardModel is the Bubble Tea model for the cleanup statistics dashboard.
type DashboardModel struct {
	ctx     context.Context
	backend Backend
	opts    Options
	keys    KeyMap
	help    help.Model

	sourceName string

	width  int
	height int

	summary  ingest.Summary
	selected int // index into summary.Dates, -1 = all dates

	refreshing   bool
	confirmClear bool
	lastRefresh  ingest.RefreshResult
	err          error
}

// NewDashboardModel creates a dashboard over backend. The source name is read
// once here; View never calls the backend.
func NewDashboardModel(ctx context.Context, backend Backend, opts Options) *DashboardModel {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	return &DashboardModel{
		ctx:      ctx,
		backend:  backend,
		opts:     opts,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		selected: -1,

		sourceName: backend.SourceName(),
	}
}

// Init loads the stored summary and starts the first refresh.
func (m *DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.loadSummaryCmd(), m.startRefresh(), m.autoRefreshCmd())
}

// SelectedDate returns the selected date, or "" when all dates are shown.
func (m *DashboardModel) SelectedDate() string {
	if m.selected < 0 || m.selected >= len(m.summary.Dates) {
		return ""
	}
	return m.summary.Dates[m.selected]
}

// Refreshing reports whether a refresh is in flight.
func (m *DashboardModel) Refreshing() bool { return m.refreshing }

// visibleRows returns the rows for the current date selection.
func (m *DashboardModel) visibleRows() []model.DailyTotals {
	date := m.SelectedDate()
	if date == "" {
		return m.summary.Rows
	}
	for _, row := range m.summary.Rows {
		if row.Date == date {
			return []model.DailyTotals{row}
		}
	}
	return nil
}

// visibleTotal sums the rows for the current date selection.
func (m *DashboardModel) visibleTotal() model.DailyTotals {
	if m.SelectedDate() == "" {
		return m.summary.Total
	}
	total := aggregate.Total(m.visibleRows())
	total.Date = m.SelectedDate()
	return total
}

// startRefresh marks a refresh in flight and returns the command running it.
// It returns nil when a refresh is already running.
func (m *DashboardModel) startRefresh() tea.Cmd {
	if m.refreshing {
		return nil
	}
	m.refreshing = true

	ctx, backend, timeout := m.ctx, m.backend, m.opts.RefreshTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		res, err := backend.Refresh(ctx)
		return refreshDoneMsg{result: res, err: err}
	}
}

func (m *DashboardModel) loadSummaryCmd() tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		s, err := backend.Summary("")
		return summaryLoadedMsg{summary: s, err: err}
	}
}

func (m *DashboardModel) clearCmd() tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		return clearDoneMsg{err: backend.Clear()}
	}
}

func (m *DashboardModel) autoRefreshCmd() tea.Cmd {
	if m.opts.RefreshInterval <= 0 {
		return nil
	}
	return tea.Tick(m.opts.RefreshInterval, func(t time.Time) tea.Msg {
		return autoRefreshMsg(t)
	})
}
