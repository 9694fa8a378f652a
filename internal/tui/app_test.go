package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"kanchat-cli/internal/boardsync"
	"kanchat-cli/internal/chat"
	"kanchat-cli/internal/model"
	"kanchat-cli/internal/notify"
)

type fakeBoard struct {
	mu      sync.Mutex
	state   boardsync.State
	ch      chan struct{}
	moves   []string
	created []model.TaskInput
	deleted []model.ID
	bounded int
}

func (b *fakeBoard) noteDeadline(ctx context.Context) {
	if _, ok := ctx.Deadline(); ok {
		b.bounded++
	}
}

func (b *fakeBoard) State() boardsync.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Clone()
}

func (b *fakeBoard) Subscribe() (<-chan struct{}, func()) {
	if b.ch == nil {
		b.ch = make(chan struct{}, 1)
	}
	return b.ch, func() {}
}

func (b *fakeBoard) Load(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.noteDeadline(ctx)
	return nil
}

func (b *fakeBoard) CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.noteDeadline(ctx)
	b.created = append(b.created, in)
	return model.Task{ID: "99", Title: in.Title}, nil
}

func (b *fakeBoard) MoveTask(ctx context.Context, id model.ID, target string) (model.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.noteDeadline(ctx)
	b.moves = append(b.moves, id.String()+"->"+target)
	return model.Task{ID: id}, nil
}

func (b *fakeBoard) DeleteTask(ctx context.Context, id model.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.noteDeadline(ctx)
	b.deleted = append(b.deleted, id)
	return nil
}

type fakeChat struct {
	msgs   []model.Message
	people []model.Participant
	status chat.Status
	unread int
	input  string
	sent   []string
	open   bool
	ch     chan struct{}
}

func (c *fakeChat) Messages() []model.Message         { return c.msgs }
func (c *fakeChat) Participants() []model.Participant { return c.people }
func (c *fakeChat) Status() chat.Status               { return c.status }
func (c *fakeChat) Unread() int                       { return c.unread }
func (c *fakeChat) MarkSeen()                         { c.unread = 0 }
func (c *fakeChat) Input() string                     { return c.input }
func (c *fakeChat) SetInput(v string)                 { c.input = v }
func (c *fakeChat) Mention(u string)                  { c.input += "@" + u + " " }
func (c *fakeChat) Changed() <-chan struct{}          { return c.ch }

func (c *fakeChat) SendInput() bool {
	if !c.open {
		return false
	}
	c.sent = append(c.sent, c.input)
	c.input = ""
	return true
}

func columnsBoard() *fakeBoard {
	return &fakeBoard{state: boardsync.State{
		Columns: []model.Column{
			{ID: "c1", Title: "To Do", Position: 0},
			{ID: "c2", Title: "Doing", Position: 1},
			{ID: "c3", Title: "Done", Position: 2},
		},
		Tasks: []model.Task{
			{ID: "7", Title: "Write docs", ColumnID: "c1", Assignee: "ann"},
			{ID: "8", Title: "Ship", ColumnID: "c2"},
		},
	}}
}

func newTestModel(t *testing.T, b *fakeBoard, c *fakeChat) appModel {
	t.Helper()
	o := Options{Board: b, Notify: notify.NewRelay(), Title: "Board", Self: "me"}
	if c != nil {
		o.Chat = c
	}
	m := newAppModel(o)
	mm, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return mm.(appModel)
}

func press(t *testing.T, m appModel, keys ...tea.KeyMsg) (appModel, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var mm tea.Model
		mm, cmd = m.Update(k)
		m = mm.(appModel)
	}
	return m, cmd
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestBoard_MoveSelectedTaskRight(t *testing.T) {
	b := columnsBoard()
	m := newTestModel(t, b, nil)

	m, cmd := press(t, m, runes("L"))
	if cmd == nil {
		t.Fatalf("expected a move command")
	}
	if msg, ok := cmd().(mutationDoneMsg); !ok || msg.err != nil {
		t.Fatalf("unexpected result %#v", msg)
	}
	if len(b.moves) != 1 || b.moves[0] != "7->c2" {
		t.Fatalf("unexpected moves %v", b.moves)
	}

	// Nothing left of the first column.
	_, cmd = press(t, m, runes("H"))
	if cmd != nil {
		t.Fatalf("expected no move from the first column")
	}
}

func TestBoard_MutationsCarryNoLocalDeadline(t *testing.T) {
	b := columnsBoard()
	m := newTestModel(t, b, nil)

	_, cmd := press(t, m, runes("L"))
	cmd()
	_, cmd = press(t, m, runes("r"))
	if cmd == nil {
		t.Fatalf("expected a reload command")
	}
	cmd()
	_, cmd = press(t, m, runes("x"), runes("y"))
	if cmd == nil {
		t.Fatalf("expected a delete command")
	}
	cmd()

	if b.bounded != 0 {
		t.Fatalf("expected board calls without a deadline; %d had one", b.bounded)
	}
	if len(b.moves) != 1 || len(b.deleted) != 1 {
		t.Fatalf("expected one move and one delete; got %v %v", b.moves, b.deleted)
	}
}

func TestBoard_NavigationFollowsTaskAcrossRebuilds(t *testing.T) {
	b := columnsBoard()
	m := newTestModel(t, b, nil)
	m, _ = press(t, m, runes("l"))
	if m.sel.TaskID != "8" {
		t.Fatalf("expected task 8 selected, got %q", m.sel.TaskID)
	}

	b.mu.Lock()
	b.state.Tasks[1].ColumnID = "c3"
	b.mu.Unlock()
	mm, _ := m.Update(boardChangedMsg{})
	m = mm.(appModel)
	if m.sel.Col != 2 || m.sel.TaskID != "8" {
		t.Fatalf("selection should follow the task; got %+v", m.sel)
	}
}

func TestBoard_NewTaskUsesSelectedColumn(t *testing.T) {
	b := columnsBoard()
	m := newTestModel(t, b, nil)
	m, _ = press(t, m, runes("l"), runes("n"))
	if m.focus != focusNewTask {
		t.Fatalf("expected new-task prompt")
	}
	m.newTask.SetValue("Review")
	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("expected create command")
	}
	cmd()
	if len(b.created) != 1 || b.created[0].Title != "Review" || b.created[0].ColumnID != "c2" {
		t.Fatalf("unexpected create %+v", b.created)
	}
}

func TestBoard_NewTaskOnSynthesizedStatusColumn(t *testing.T) {
	b := &fakeBoard{state: boardsync.State{Columns: []model.Column{}, Tasks: []model.Task{}}}
	m := newTestModel(t, b, nil)
	m, _ = press(t, m, runes("l"), runes("l"), runes("n"))
	m.newTask.SetValue("Celebrate")
	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	cmd()
	if len(b.created) != 1 || b.created[0].Status != model.StatusDone || !b.created[0].ColumnID.IsZero() {
		t.Fatalf("unexpected create %+v", b.created)
	}
}

func TestBoard_DeleteNeedsConfirmation(t *testing.T) {
	b := columnsBoard()
	m := newTestModel(t, b, nil)

	m, _ = press(t, m, runes("x"))
	m, cmd := press(t, m, runes("n"))
	if cmd != nil || m.focus != focusBoard {
		t.Fatalf("anything but y cancels")
	}

	_, cmd = press(t, m, runes("x"), runes("y"))
	if cmd == nil {
		t.Fatalf("expected delete command")
	}
	cmd()
	if len(b.deleted) != 1 || b.deleted[0] != "7" {
		t.Fatalf("unexpected deletes %v", b.deleted)
	}
}

func TestChat_MentionAssigneeAndSend(t *testing.T) {
	c := &fakeChat{status: chat.StatusConnected, open: true, unread: 2, ch: make(chan struct{}, 1)}
	m := newTestModel(t, columnsBoard(), c)

	m, _ = press(t, m, runes("@"))
	if m.focus != focusChat {
		t.Fatalf("mention should focus the chat input")
	}
	if c.unread != 0 {
		t.Fatalf("focusing chat marks messages seen")
	}
	if got := m.input.Value(); got != "@ann " {
		t.Fatalf("unexpected input %q", got)
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(c.sent) != 1 || c.sent[0] != "@ann " {
		t.Fatalf("unexpected sends %q", c.sent)
	}
	if m.input.Value() != "" {
		t.Fatalf("input should be cleared after send")
	}
}

func TestChat_SendWhileDisconnectedWarns(t *testing.T) {
	c := &fakeChat{status: chat.StatusDisconnected, ch: make(chan struct{}, 1)}
	m := newTestModel(t, columnsBoard(), c)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m.input.SetValue("hello")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(c.sent) != 0 {
		t.Fatalf("nothing should be sent")
	}
	if m.input.Value() != "hello" {
		t.Fatalf("input should be kept for a retry")
	}
	if n := m.notify.Unread(); len(n) != 1 || n[0].Severity != notify.Warning {
		t.Fatalf("expected a warning toast, got %+v", n)
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.focus != focusBoard || c.input != "hello" {
		t.Fatalf("esc returns to the board and keeps the draft")
	}
}

func TestToasts_ExpireMarksRead(t *testing.T) {
	m := newTestModel(t, columnsBoard(), nil)
	n := m.notify.Error("Could not move task", "boom")

	mm, cmd := m.Update(notifyChangedMsg{})
	m = mm.(appModel)
	if cmd == nil || !m.scheduled[n.ID] {
		t.Fatalf("expected toast expiry to be scheduled")
	}
	if !strings.Contains(m.View(), "Could not move task: boom") {
		t.Fatalf("toast not rendered:\n%s", m.View())
	}

	mm, _ = m.Update(toastExpiredMsg{id: n.ID})
	m = mm.(appModel)
	if len(m.notify.Unread()) != 0 {
		t.Fatalf("expired toast should be read")
	}
}

func TestView_RendersBoardAndChat(t *testing.T) {
	c := &fakeChat{
		status: chat.StatusConnected,
		ch:     make(chan struct{}, 1),
		msgs: []model.Message{
			{ID: "1", Username: "ann", Content: "hi @me", CreatedAt: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)},
		},
		people: []model.Participant{{Key: "name:me", Username: "me", Online: true}, {Key: "name:ann", Username: "ann", Online: true}},
	}
	m := newTestModel(t, columnsBoard(), c)
	mm, _ := m.Update(chatChangedMsg{})
	m = mm.(appModel)

	out := m.View()
	for _, want := range []string{"To Do (1)", "Doing (1)", "Write docs", "connected", "2 online", "hi @me"} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q:\n%s", want, out)
		}
	}
}
