package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Left      key.Binding
	Right     key.Binding
	Up        key.Binding
	Down      key.Binding
	MoveLeft  key.Binding
	MoveRight key.Binding
	New       key.Binding
	Delete    key.Binding
	Reload    key.Binding
	Focus     key.Binding
	Mention   key.Binding
	Send      key.Binding
	Cancel    key.Binding
	Dismiss   key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Left:      key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("h/l", "column")),
		Right:     key.NewBinding(key.WithKeys("right", "l")),
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("j/k", "task")),
		Down:      key.NewBinding(key.WithKeys("down", "j")),
		MoveLeft:  key.NewBinding(key.WithKeys("shift+left", "H"), key.WithHelp("H/L", "move")),
		MoveRight: key.NewBinding(key.WithKeys("shift+right", "L")),
		New:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
		Delete:    key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "delete")),
		Reload:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Focus:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "chat")),
		Mention:   key.NewBinding(key.WithKeys("@"), key.WithHelp("@", "mention assignee")),
		Send:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Cancel:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Dismiss:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear toasts")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) boardHelp() []key.Binding {
	return []key.Binding{k.Left, k.Up, k.MoveLeft, k.New, k.Delete, k.Reload, k.Mention, k.Focus, k.Dismiss, k.Quit}
}

func (k keyMap) chatHelp() []key.Binding {
	return []key.Binding{k.Send, k.Cancel, k.Focus}
}

func renderHelp(bs []key.Binding, width int) string {
	parts := make([]string, 0, len(bs))
	for _, b := range bs {
		h := b.Help()
		if h.Key == "" {
			continue
		}
		parts = append(parts, h.Key+" "+h.Desc)
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "  "
		}
		out += p
	}
	return styleMuted().Render(truncateText(out, width))
}
