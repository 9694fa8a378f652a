package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"kanchat-cli/internal/notify"
)

// toastTTL is how long an unread notification stays on screen.
const toastTTL = 4 * time.Second

const maxToasts = 3

func renderToasts(items []notify.Notification, width int) string {
	if len(items) == 0 || width <= 0 {
		return ""
	}
	if len(items) > maxToasts {
		items = items[:maxToasts]
	}
	lines := make([]string, 0, len(items))
	for _, n := range items {
		tag := lipgloss.NewStyle().Bold(true).Foreground(severityColor(n.Severity)).Render(strings.ToUpper(string(n.Severity)))
		text := n.Message
		if n.Title != "" {
			text = n.Title + ": " + n.Message
		}
		lines = append(lines, truncateText(tag+" "+text, width))
	}
	return strings.Join(lines, "\n")
}
