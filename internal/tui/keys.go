package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all dashboard key bindings with built-in help text.
type KeyMap struct {
	Refresh   key.Binding
	PrevDate  key.Binding
	NextDate  key.Binding
	AllDates  key.Binding
	Clear     key.Binding
	Confirm   key.Binding
	Cancel    key.Binding
	Quit      key.Binding
	ForceQuit key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		PrevDate: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←", "prev date"),
		),
		NextDate: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→", "next date"),
		),
		AllDates: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "all dates"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("n", "N", "esc"),
			key.WithHelp("n/esc", "cancel"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "force quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.PrevDate, k.NextDate, k.AllDates, k.Clear, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Refresh, k.Clear, k.Confirm, k.Cancel},
		{k.PrevDate, k.NextDate, k.AllDates},
		{k.Quit, k.ForceQuit},
	}
}
