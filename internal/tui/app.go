package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"

	"kanchat-cli/internal/boardsync"
	"kanchat-cli/internal/chat"
	"kanchat-cli/internal/model"
	"kanchat-cli/internal/notify"
)

// Board is the board sync engine as the TUI uses it.
type Board interface {
	State() boardsync.State
	Subscribe() (<-chan struct{}, func())
	Load(ctx context.Context) error
	CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error)
	MoveTask(ctx context.Context, id model.ID, target string) (model.Task, error)
	DeleteTask(ctx context.Context, id model.ID) error
}

// Chat is the chat session as the TUI uses it.
type Chat interface {
	Messages() []model.Message
	Participants() []model.Participant
	Status() chat.Status
	Unread() int
	MarkSeen()
	Input() string
	SetInput(v string)
	Mention(username string)
	SendInput() bool
	Changed() <-chan struct{}
}

type focusMode int

const (
	focusBoard focusMode = iota
	focusChat
	focusNewTask
	focusConfirmDelete
)

type (
	boardChangedMsg  struct{}
	chatChangedMsg   struct{}
	notifyChangedMsg struct{}
	toastExpiredMsg  struct{ id string }
	mutationDoneMsg  struct {
		op  string
		err error
	}
)

type appModel struct {
	board   Board
	chat    Chat
	notify  *notify.Relay
	title   string
	self    string
	keys    keyMap
	mdChat  bool
	closers []func()

	boardCh  <-chan struct{}
	notifyCh <-chan struct{}

	width  int
	height int
	focus  focusMode
	view   boardView
	sel    boardSelection

	messages viewport.Model
	input    textarea.Model
	newTask  textinput.Model

	// toasts already scheduled for expiry.
	scheduled map[string]bool
}

func newAppModel(o Options) appModel {
	m := appModel{
		board:     o.Board,
		chat:      o.Chat,
		notify:    o.Notify,
		title:     o.Title,
		self:      o.Self,
		keys:      defaultKeyMap(),
		mdChat:    o.Markdown,
		messages:  viewport.New(40, 10),
		scheduled: map[string]bool{},
	}
	if m.notify == nil {
		m.notify = notify.NewRelay()
	}

	m.input = textarea.New()
	m.input.Placeholder = "Message (@name to mention)"
	m.input.ShowLineNumbers = false
	m.input.CharLimit = 0
	m.input.SetHeight(2)
	m.input.SetWidth(40)

	m.newTask = textinput.New()
	m.newTask.Placeholder = "Task title"
	m.newTask.Prompt = "New task: "

	if m.board != nil {
		ch, stop := m.board.Subscribe()
		m.boardCh = ch
		m.closers = append(m.closers, stop)
		m.view = buildBoard(m.board.State())
		m.sel = m.view.clamp(m.sel)
	}
	ch, stop := m.notify.Changed()
	m.notifyCh = ch
	m.closers = append(m.closers, stop)
	m.refreshMessages()
	return m
}

func (m appModel) Init() tea.Cmd {
	cmds := []tea.Cmd{waitSignal(m.notifyCh, notifyChangedMsg{})}
	if m.boardCh != nil {
		cmds = append(cmds, waitSignal(m.boardCh, boardChangedMsg{}))
	}
	if m.chat != nil {
		cmds = append(cmds, waitSignal(m.chat.Changed(), chatChangedMsg{}))
	}
	cmds = append(cmds, m.scheduleToasts()...)
	return tea.Batch(cmds...)
}

// waitSignal turns one receive on ch into msg. Callers re-arm it after each
// delivery; a closed channel stops the loop.
func waitSignal(ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return msg
	}
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refreshMessages()
		return m, nil

	case boardChangedMsg:
		m.view = buildBoard(m.board.State())
		m.sel = m.view.clamp(m.sel)
		return m, waitSignal(m.boardCh, boardChangedMsg{})

	case chatChangedMsg:
		if m.focus == focusChat {
			m.chat.MarkSeen()
		}
		m.refreshMessages()
		return m, waitSignal(m.chat.Changed(), chatChangedMsg{})

	case notifyChangedMsg:
		cmds := m.scheduleToasts()
		cmds = append(cmds, waitSignal(m.notifyCh, notifyChangedMsg{}))
		return m, tea.Batch(cmds...)

	case toastExpiredMsg:
		delete(m.scheduled, msg.id)
		m.notify.MarkAsRead(msg.id)
		return m, nil

	case mutationDoneMsg:
		// The engine already raised the user-facing notification.
		if msg.err != nil {
			log.WithError(msg.err).WithField("op", msg.op).Debug("board mutation failed")
		}
		return m, nil

	case tea.KeyMsg:
		switch m.focus {
		case focusChat:
			return m.updateChat(msg)
		case focusNewTask:
			return m.updateNewTask(msg)
		case focusConfirmDelete:
			return m.updateConfirmDelete(msg)
		default:
			return m.updateBoard(msg)
		}
	}
	return m, nil
}

func (m appModel) updateBoard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Left):
		m.sel = m.view.clamp(boardSelection{Col: m.sel.Col - 1, Item: m.sel.Item})
	case key.Matches(msg, m.keys.Right):
		m.sel = m.view.clamp(boardSelection{Col: m.sel.Col + 1, Item: m.sel.Item})
	case key.Matches(msg, m.keys.Up):
		m.sel = m.view.clamp(boardSelection{Col: m.sel.Col, Item: m.sel.Item - 1})
	case key.Matches(msg, m.keys.Down):
		m.sel = m.view.clamp(boardSelection{Col: m.sel.Col, Item: m.sel.Item + 1})
	case key.Matches(msg, m.keys.MoveLeft):
		return m, m.moveSelected(-1)
	case key.Matches(msg, m.keys.MoveRight):
		return m, m.moveSelected(1)
	case key.Matches(msg, m.keys.New):
		if m.board == nil {
			return m, nil
		}
		m.focus = focusNewTask
		m.newTask.SetValue("")
		return m, m.newTask.Focus()
	case key.Matches(msg, m.keys.Delete):
		if _, ok := m.view.selectedTask(m.sel); ok {
			m.focus = focusConfirmDelete
		}
	case key.Matches(msg, m.keys.Reload):
		if m.board == nil {
			return m, nil
		}
		b := m.board
		return m, func() tea.Msg {
			ctx := context.Background()
			err := b.Load(ctx)
			if err != nil {
				m.notify.Error("Could not reload board", err.Error())
			}
			return mutationDoneMsg{op: "reload", err: err}
		}
	case key.Matches(msg, m.keys.Mention):
		t, ok := m.view.selectedTask(m.sel)
		if !ok || m.chat == nil || strings.TrimSpace(t.Assignee) == "" {
			return m, nil
		}
		m.chat.SetInput(m.input.Value())
		m.chat.Mention(t.Assignee)
		m.input.SetValue(m.chat.Input())
		return m, m.focusChat()
	case key.Matches(msg, m.keys.Focus):
		if m.chat == nil {
			return m, nil
		}
		return m, m.focusChat()
	case key.Matches(msg, m.keys.Dismiss):
		m.notify.MarkAllAsRead()
	}
	return m, nil
}

func (m *appModel) focusChat() tea.Cmd {
	m.focus = focusChat
	m.chat.MarkSeen()
	return m.input.Focus()
}

func (m appModel) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		m.close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Focus):
		m.chat.SetInput(m.input.Value())
		m.input.Blur()
		m.focus = focusBoard
		return m, nil
	case key.Matches(msg, m.keys.Send):
		m.chat.SetInput(m.input.Value())
		if strings.TrimSpace(m.chat.Input()) == "" {
			return m, nil
		}
		if !m.chat.SendInput() {
			m.notify.Warning("", "Not connected; message not sent")
			return m, nil
		}
		m.input.Reset()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.chat.SetInput(m.input.Value())
	return m, cmd
}

func (m appModel) updateNewTask(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.newTask.Blur()
		m.focus = focusBoard
		return m, nil
	case "enter":
		title := strings.TrimSpace(m.newTask.Value())
		m.newTask.Blur()
		m.focus = focusBoard
		if title == "" {
			return m, nil
		}
		in := model.TaskInput{Title: title}
		if len(m.view.cols) > 0 {
			col := m.view.cols[clampInt(m.sel.Col, 0, len(m.view.cols)-1)]
			if col.target != "" {
				st := m.board.State()
				if _, ok := st.Column(model.ID(col.target)); ok {
					in.ColumnID = model.ID(col.target)
				} else {
					in.Status = col.status
				}
			}
		}
		b := m.board
		return m, func() tea.Msg {
			ctx := context.Background()
			_, err := b.CreateTask(ctx, in)
			return mutationDoneMsg{op: "create task", err: err}
		}
	}
	var cmd tea.Cmd
	m.newTask, cmd = m.newTask.Update(msg)
	return m, cmd
}

func (m appModel) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.focus = focusBoard
	if msg.String() != "y" {
		return m, nil
	}
	t, ok := m.view.selectedTask(m.sel)
	if !ok {
		return m, nil
	}
	b := m.board
	return m, func() tea.Msg {
		ctx := context.Background()
		return mutationDoneMsg{op: "delete task", err: b.DeleteTask(ctx, t.ID)}
	}
}

// moveSelected moves the selected task dir columns over. The optimistic update
// lands through the board subscription.
func (m appModel) moveSelected(dir int) tea.Cmd {
	t, ok := m.view.selectedTask(m.sel)
	if !ok {
		return nil
	}
	to := m.sel.Col + dir
	if to < 0 || to >= len(m.view.cols) || m.view.cols[to].target == "" {
		return nil
	}
	target := m.view.cols[to].target
	b := m.board
	return func() tea.Msg {
		ctx := context.Background()
		_, err := b.MoveTask(ctx, t.ID, target)
		return mutationDoneMsg{op: "move task", err: err}
	}
}

// scheduleToasts arms an expiry timer for each visible toast not yet scheduled.
func (m appModel) scheduleToasts() []tea.Cmd {
	var cmds []tea.Cmd
	unread := m.notify.Unread()
	if len(unread) > maxToasts {
		unread = unread[:maxToasts]
	}
	for _, n := range unread {
		if m.scheduled[n.ID] {
			continue
		}
		m.scheduled[n.ID] = true
		id := n.ID
		cmds = append(cmds, tea.Tick(toastTTL, func(time.Time) tea.Msg { return toastExpiredMsg{id: id} }))
	}
	return cmds
}

func (m *appModel) close() {
	for _, c := range m.closers {
		c()
	}
	m.closers = nil
}

func (m appModel) chatWidth() int {
	if m.chat == nil {
		return 0
	}
	w := m.width / 3
	if w < 30 {
		w = 30
	}
	if w > m.width/2 {
		w = m.width / 2
	}
	return w
}

// bodyHeight is the height of the board and chat panes (title, toasts and help
// lines excluded).
func (m appModel) bodyHeight() int {
	h := m.height - 2 - maxToasts
	if h < 3 {
		h = 3
	}
	return h
}

func (m *appModel) resize() {
	cw := m.chatWidth()
	if cw <= 0 {
		return
	}
	m.input.SetWidth(cw)
	m.messages.Width = cw
	// header + roster + input
	m.messages.Height = max(1, m.bodyHeight()-2-m.input.Height())
}

func (m *appModel) refreshMessages() {
	if m.chat == nil {
		return
	}
	atBottom := m.messages.AtBottom() || m.messages.TotalLineCount() == 0
	m.messages.SetContent(renderMessages(m.chat.Messages(), m.self, m.messages.Width, m.mdChat))
	if atBottom {
		m.messages.GotoBottom()
	}
}

func (m appModel) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(colorSurfaceFg)
	title := titleStyle.Render(truncateText(m.title, m.width))

	cw := m.chatWidth()
	bw := m.width
	if cw > 0 {
		bw = m.width - cw - 1
	}
	h := m.bodyHeight()
	boardPane := renderBoard(m.view, m.sel, m.focus == focusBoard || m.focus == focusConfirmDelete, bw, h)

	body := boardPane
	if cw > 0 {
		chatPane := strings.Join([]string{
			renderChatHeader(m.chat.Status(), online(m.chat.Participants()), m.chat.Unread(), m.focus == focusChat, cw),
			renderRoster(m.chat.Participants(), cw),
			m.messages.View(),
			m.input.View(),
		}, "\n")
		sep := styleMuted().Render(strings.TrimRight(strings.Repeat("│\n", h), "\n"))
		body = lipgloss.JoinHorizontal(lipgloss.Top, boardPane, sep, normalizePane(chatPane, cw, h))
	}

	var footer string
	switch m.focus {
	case focusNewTask:
		footer = m.newTask.View()
	case focusConfirmDelete:
		t, _ := m.view.selectedTask(m.sel)
		footer = lipgloss.NewStyle().Foreground(colorWarning).Render("Delete " + truncateText(t.Title, 40) + "? (y/N)")
	case focusChat:
		footer = renderHelp(m.keys.chatHelp(), m.width)
	default:
		footer = renderHelp(m.keys.boardHelp(), m.width)
	}

	toasts := normalizePane(renderToasts(m.notify.Unread(), m.width), m.width, maxToasts)
	return strings.Join([]string{title, body, toasts, footer}, "\n")
}

func online(ps []model.Participant) int {
	n := 0
	for _, p := range ps {
		if p.Online {
			n++
		}
	}
	return n
}
