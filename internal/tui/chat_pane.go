package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"kanchat-cli/internal/chat"
	"kanchat-cli/internal/model"
)

// renderMessages formats the chat log for the viewport, oldest first. Messages
// that mention self are marked in the gutter.
func renderMessages(msgs []model.Message, self string, width int, markdown bool) string {
	if len(msgs) == 0 {
		return styleMuted().Render("No messages yet. Press tab to write one.")
	}
	nameStyle := lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	selfStyle := lipgloss.NewStyle().Bold(true).Foreground(colorSurfaceFg)
	mentionStyle := lipgloss.NewStyle().Foreground(colorMention).Bold(true)
	bodyW := width - 2
	if bodyW < 10 {
		bodyW = 10
	}

	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		name := strings.TrimSpace(m.Username)
		if name == "" {
			name = "user " + m.UserID.String()
		}
		ns := nameStyle
		if self != "" && strings.EqualFold(name, self) {
			ns = selfStyle
		}
		gutter := "  "
		if self != "" && mentionsUser(m, self) {
			gutter = mentionStyle.Render("@ ")
		}
		head := gutter + ns.Render(name)
		if !m.CreatedAt.IsZero() {
			head += " " + styleMuted().Render(m.CreatedAt.Local().Format("15:04"))
		}
		b.WriteString(head + "\n")

		var body string
		if markdown {
			body = renderMarkdown(m.Content, bodyW)
		} else {
			body = strings.Join(wrapWords(m.Content, bodyW), "\n")
		}
		for j, ln := range strings.Split(body, "\n") {
			if j > 0 {
				b.WriteString("\n")
			}
			b.WriteString("  " + ln)
		}
	}
	return b.String()
}

func mentionsUser(m model.Message, username string) bool {
	for _, n := range m.Mentions {
		if strings.EqualFold(n, username) {
			return true
		}
	}
	for _, n := range chat.ParseMentions(m.Content) {
		if strings.EqualFold(n, username) {
			return true
		}
	}
	return false
}

func renderChatHeader(status chat.Status, online, unread int, focused bool, width int) string {
	st := lipgloss.NewStyle().Bold(true).Foreground(colorSurfaceFg).Background(colorControlBg)
	if focused {
		st = st.Foreground(colorSelectedFg).Background(colorSelectedBg)
	}
	parts := []string{"Chat", statusLabel(status), fmt.Sprintf("%d online", online)}
	if unread > 0 {
		parts = append(parts, fmt.Sprintf("%d new", unread))
	}
	return st.Width(width).Render(truncateText(strings.Join(parts, " "+glyphBullet()+" "), width))
}

func statusLabel(s chat.Status) string {
	switch s {
	case chat.StatusConnected:
		return lipgloss.NewStyle().Foreground(colorOnline).Render("connected")
	case chat.StatusConnecting:
		return "connecting" + glyphEllipsis()
	case chat.StatusError:
		return lipgloss.NewStyle().Foreground(colorError).Render("offline")
	default:
		return "disconnected"
	}
}

func renderRoster(ps []model.Participant, width int) string {
	if len(ps) == 0 {
		return ""
	}
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		name := p.Username
		if name == "" {
			name = p.UserID.String()
		}
		if p.Online {
			name = lipgloss.NewStyle().Foreground(colorOnline).Render(name)
		}
		names = append(names, name)
	}
	return truncateText(styleMuted().Render("people: ")+strings.Join(names, ", "), width)
}
