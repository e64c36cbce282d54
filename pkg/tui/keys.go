package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds all browser key bindings.
type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding
	Back    key.Binding
	Refresh key.Binding
	Quit    key.Binding
	PgUp    key.Binding
	PgDown  key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "detail"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	PgUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("PgUp", "scroll up"),
	),
	PgDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("PgDn", "scroll down"),
	),
}

// keyBarText renders the context-sensitive key hint string.
func keyBarText(state viewState) string {
	switch state {
	case stateDetail:
		return keyStyle.Render("Esc") + keyDescStyle.Render(":back") + "  " +
			keyStyle.Render("PgUp/Dn") + keyDescStyle.Render(":scroll") + "  " +
			keyStyle.Render("q") + keyDescStyle.Render(":quit")
	case stateLoading:
		return keyStyle.Render("q") + keyDescStyle.Render(":quit")
	default:
		return keyStyle.Render("↑↓") + keyDescStyle.Render(":browse") + "  " +
			keyStyle.Render("enter") + keyDescStyle.Render(":detail") + "  " +
			keyStyle.Render("r") + keyDescStyle.Render(":refresh") + "  " +
			keyStyle.Render("q") + keyDescStyle.Render(":quit")
	}
}
