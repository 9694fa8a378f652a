// Package tui is the interactive board view: the board's columns on the left,
// the board chat on the right and notification toasts at the bottom.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"kanchat-cli/internal/notify"
)

type Options struct {
	Board  Board
	Chat   Chat
	Notify *notify.Relay

	// Title is shown in the top line (board title and id).
	Title string
	// Self is the local username, used to highlight own messages and mentions.
	Self     string
	Markdown bool
	Glyphs   string
}

// Run blocks until the user quits. The caller owns Board and Chat and tears
// them down afterwards.
func Run(o Options) error {
	applyThemePreference()
	applyColorProfilePreference()
	applyGlyphPreference(o.Glyphs)

	m := newAppModel(o)
	defer m.close()
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
