package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"kanchat-cli/internal/boardsync"
	"kanchat-cli/internal/model"
	"kanchat-cli/internal/statusutil"
)

type boardSelection struct {
	Col  int
	Item int
	// TaskID tracks focus across optimistic inserts, confirmations and rollbacks.
	TaskID model.ID
}

type boardCol struct {
	// target is what MoveTask receives for this column: the column id, or the
	// status for synthesized enum columns.
	target string
	label  string
	status model.Status
	tasks  []model.Task
}

type boardView struct {
	cols []boardCol
}

// buildBoard lays tasks out in column order. Boards without columns get one
// column per status. Tasks matching no column land in a leading "(no column)".
func buildBoard(st boardsync.State) boardView {
	var cols []boardCol
	if len(st.Columns) == 0 {
		for _, s := range model.Statuses {
			cols = append(cols, boardCol{target: string(s), label: s.Label(), status: s})
		}
	} else {
		for _, c := range st.Columns {
			s, _ := statusutil.StatusForColumn(c)
			label := strings.TrimSpace(c.Title)
			if label == "" {
				label = c.ID.String()
			}
			cols = append(cols, boardCol{target: c.ID.String(), label: label, status: s})
		}
	}

	var orphans []model.Task
	for _, t := range st.Tasks {
		i := columnIndexFor(t, cols)
		if i < 0 {
			orphans = append(orphans, t)
			continue
		}
		cols[i].tasks = append(cols[i].tasks, t)
	}
	if len(orphans) > 0 {
		cols = append([]boardCol{{label: "(no column)", tasks: orphans}}, cols...)
	}
	return boardView{cols: cols}
}

func columnIndexFor(t model.Task, cols []boardCol) int {
	if !t.ColumnID.IsZero() {
		for i, c := range cols {
			if c.target == t.ColumnID.String() {
				return i
			}
		}
	}
	if t.Status != "" {
		for i, c := range cols {
			if c.status != "" && c.status == model.ParsedOrSelf(t.Status) {
				return i
			}
		}
	}
	return -1
}

func (b boardView) indexOfTask(id model.ID) (int, int, bool) {
	if id.IsZero() {
		return 0, 0, false
	}
	for ci := range b.cols {
		for ii := range b.cols[ci].tasks {
			if b.cols[ci].tasks[ii].ID == id {
				return ci, ii, true
			}
		}
	}
	return 0, 0, false
}

func (b boardView) clamp(sel boardSelection) boardSelection {
	if len(b.cols) == 0 {
		return boardSelection{Item: -1}
	}
	if ci, ii, ok := b.indexOfTask(sel.TaskID); ok {
		sel.Col, sel.Item = ci, ii
	} else {
		sel.TaskID = ""
	}
	sel.Col = clampInt(sel.Col, 0, len(b.cols)-1)
	n := len(b.cols[sel.Col].tasks)
	if n == 0 {
		sel.Item = -1
		return sel
	}
	sel.Item = clampInt(sel.Item, 0, n-1)
	sel.TaskID = b.cols[sel.Col].tasks[sel.Item].ID
	return sel
}

func (b boardView) selectedTask(sel boardSelection) (model.Task, bool) {
	sel = b.clamp(sel)
	if len(b.cols) == 0 || sel.Item < 0 {
		return model.Task{}, false
	}
	return b.cols[sel.Col].tasks[sel.Item], true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func renderBoard(b boardView, sel boardSelection, focused bool, width, height int) string {
	n := len(b.cols)
	if n == 0 || width <= 0 {
		return normalizePane(styleMuted().Render("(no columns)"), width, height)
	}
	sel = b.clamp(sel)

	gap := 2
	colW := (width - gap*(n-1)) / n
	if colW < 12 {
		colW = 12
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(colorSurfaceFg).Background(colorControlBg)
	headerSelectedStyle := lipgloss.NewStyle().Bold(true).Foreground(colorSelectedFg).Background(colorSelectedBg)
	cardStyle := lipgloss.NewStyle().Width(colW-2).Border(lipgloss.RoundedBorder()).BorderForeground(colorCardBorder)
	cardSelectedStyle := cardStyle.BorderForeground(colorSelectedBorder).Bold(true)
	pendingStyle := styleMuted().Italic(true)
	innerW := colW - 4

	renderCard := func(t model.Task, selected bool) string {
		title := strings.TrimSpace(t.Title)
		if title == "" {
			title = "(untitled)"
		}
		lines := wrapWords(title, innerW)
		if a := strings.TrimSpace(t.Assignee); a != "" {
			lines = append(lines, styleMuted().Render(truncateText("@"+a, innerW)))
		}
		if boardsync.IsPlaceholder(t.ID) {
			lines = append(lines, pendingStyle.Render("saving"+glyphEllipsis()))
		}
		st := cardStyle
		if selected && focused {
			st = cardSelectedStyle
		}
		return st.Render(strings.Join(lines, "\n"))
	}

	rendered := make([]string, 0, n)
	for ci, c := range b.cols {
		hs := headerStyle
		if ci == sel.Col && focused {
			hs = headerSelectedStyle
		}
		lines := []string{hs.Width(colW).Render(truncateText(fmt.Sprintf("%s (%d)", c.label, len(c.tasks)), colW))}
		if len(c.tasks) == 0 {
			lines = append(lines, styleMuted().Render("(empty)"))
		}
		var body []string
		selEnd := 0
		for ii, t := range c.tasks {
			body = append(body, strings.Split(renderCard(t, ci == sel.Col && ii == sel.Item), "\n")...)
			if ci == sel.Col && ii == sel.Item {
				selEnd = len(body)
			}
		}
		// Scroll so the selected card stays visible under the header.
		if avail := height - 1; avail > 0 && selEnd > avail {
			body = body[selEnd-avail:]
		}
		lines = append(lines, body...)
		rendered = append(rendered, normalizePane(strings.Join(lines, "\n"), colW, height))
	}

	out := rendered[0]
	sep := strings.Repeat(" ", gap)
	for _, r := range rendered[1:] {
		out = lipgloss.JoinHorizontal(lipgloss.Top, out, sep, r)
	}
	return normalizePane(out, width, height)
}
