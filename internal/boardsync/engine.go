// Package boardsync keeps a board's columns and tasks in memory and applies
// every edit optimistically: the change is visible at once, the server call
// follows, and a failure restores the affected entities and raises an error
// notification.
package boardsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kanchat-cli/internal/config"
	"kanchat-cli/internal/model"
	"kanchat-cli/internal/notify"
	"kanchat-cli/internal/statusutil"
)

// PlaceholderPrefix marks ids assigned locally before the server answered.
const PlaceholderPrefix = "tmp-"

func IsPlaceholder(id model.ID) bool { return strings.HasPrefix(id.String(), PlaceholderPrefix) }

// Remote is the board REST collaborator (*api.Client).
type Remote interface {
	Columns(ctx context.Context, boardID model.ID) ([]model.Column, error)
	Tasks(ctx context.Context, boardID model.ID) ([]model.Task, error)
	CreateColumn(ctx context.Context, boardID model.ID, in model.ColumnInput) (model.Column, error)
	UpdateColumn(ctx context.Context, boardID, columnID model.ID, in model.ColumnInput) (model.Column, error)
	DeleteColumn(ctx context.Context, boardID, columnID model.ID) error
	CreateTask(ctx context.Context, boardID model.ID, in model.TaskInput) (model.Task, error)
	UpdateTask(ctx context.Context, boardID, taskID model.ID, patch model.TaskPatch) (model.Task, error)
	DeleteTask(ctx context.Context, boardID, taskID model.ID) error
}

type Options struct {
	BoardID model.ID
	Remote  Remote
	Mode    config.StatusMode
	Notify  *notify.Relay
	Now     func() time.Time

	// NewID returns placeholder ids; defaults to tmp-<uuid>.
	NewID func() model.ID
}

type Engine struct {
	boardID model.ID
	remote  Remote
	norm    statusutil.Normalizer
	notify  *notify.Relay
	newID   func() model.ID
	now     func() time.Time
	locks   *keyedLocks

	mu      sync.Mutex
	state   State
	aliases map[model.ID]model.ID
	closed  bool
	subs    map[chan struct{}]struct{}
}

func New(o Options) *Engine {
	if o.Notify == nil {
		o.Notify = notify.NewRelay()
	}
	if o.NewID == nil {
		o.NewID = func() model.ID { return model.ID(PlaceholderPrefix + uuid.NewString()) }
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Mode == "" {
		o.Mode = config.StatusModeEnum
	}
	return &Engine{
		boardID: o.BoardID,
		remote:  o.Remote,
		norm:    statusutil.Normalizer{Mode: o.Mode},
		notify:  o.Notify,
		newID:   o.NewID,
		now:     o.Now,
		locks:   newKeyedLocks(),
		state:   State{Columns: []model.Column{}, Tasks: []model.Task{}},
		aliases: map[model.ID]model.ID{},
		subs:    map[chan struct{}]struct{}{},
	}
}

func (e *Engine) BoardID() model.ID { return e.boardID }

func (e *Engine) Mode() config.StatusMode { return e.norm.Mode }

// State returns a copy of the current board state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Subscribe returns a channel signalled after every state change, coalesced
// to one pending signal, and a func to stop receiving.
func (e *Engine) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	e.mu.Lock()
	e.subs[ch] = struct{}{}
	e.mu.Unlock()
	return ch, func() {
		e.mu.Lock()
		delete(e.subs, ch)
		e.mu.Unlock()
	}
}

func (e *Engine) broadcast() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close detaches the engine from its view. Requests still in flight complete,
// but their results no longer touch state or raise notifications.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.subs = map[chan struct{}]struct{}{}
	e.mu.Unlock()
}

// Load replaces local state with the server's columns and tasks.
func (e *Engine) Load(ctx context.Context) error {
	cols, err := e.remote.Columns(ctx, e.boardID)
	if err != nil {
		return fmt.Errorf("load columns: %w", err)
	}
	tasks, err := e.remote.Tasks(ctx, e.boardID)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	st := State{Columns: append([]model.Column{}, cols...), Tasks: make([]model.Task, 0, len(tasks))}
	sortColumns(st.Columns)
	for _, t := range tasks {
		if t.BoardID.IsZero() {
			t.BoardID = e.boardID
		}
		st.Tasks = append(st.Tasks, e.norm.Task(t, st.Columns))
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.state = st
	e.aliases = map[model.ID]model.ID{}
	e.mu.Unlock()
	log.WithFields(log.Fields{"board": e.boardID, "columns": len(st.Columns), "tasks": len(st.Tasks)}).Debug("board loaded")
	e.broadcast()
	return nil
}

// resolve follows placeholder ids that have since been confirmed.
func (e *Engine) resolve(id model.ID) model.ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if to, ok := e.aliases[id]; ok {
		return to
	}
	return id
}

// run executes cmd under its entity locks: check, apply, call, then confirm or
// roll back.
func (e *Engine) run(ctx context.Context, cmd *Command) (any, error) {
	release := e.locks.acquire(cmd.keys())
	defer release()
	// A create that held one of our placeholder keys may have resolved it.
	if before := cmd.keys(); cmd.rebind(e.resolve) {
		if extra := missingKeys(before, cmd.keys()); len(extra) > 0 {
			releaseExtra := e.locks.acquire(extra)
			defer releaseExtra()
		}
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if cmd.check != nil {
		if err := cmd.check(e.state); err != nil {
			e.mu.Unlock()
			return nil, err
		}
	}
	cmd.Apply(&e.state)
	e.mu.Unlock()
	e.broadcast()

	entry := log.WithFields(log.Fields{"board": e.boardID, "op": cmd.Op, "entity": cmd.EntityID})
	resp, err := cmd.send(ctx)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		entry.Debug("discarding result after close")
		if err != nil {
			return nil, &MutationError{Op: cmd.Op, EntityID: cmd.EntityID, Err: err}
		}
		return resp, nil
	}
	if err != nil {
		cmd.Rollback(&e.state)
	} else {
		cmd.Confirm(&e.state, resp)
	}
	e.mu.Unlock()
	e.broadcast()

	if err != nil {
		entry.WithError(err).Warn("mutation rolled back")
		e.notify.Error("Could not "+cmd.Op, err.Error())
		return nil, &MutationError{Op: cmd.Op, EntityID: cmd.EntityID, Err: err}
	}
	return resp, nil
}

func missingKeys(have, want []string) []string {
	held := make(map[string]bool, len(have))
	for _, k := range have {
		held[k] = true
	}
	var out []string
	for _, k := range want {
		if !held[k] {
			out = append(out, k)
		}
	}
	return out
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Columns.

func (e *Engine) CreateColumn(ctx context.Context, title string) (model.Column, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Column{}, errors.New("column title is required")
	}
	tmp := e.newID()
	var placeholder model.Column
	cmd := &Command{
		Op:       "create column",
		EntityID: tmp,
		refs:     []entityRef{{kindColumn, tmp}},
		check: func(st State) error {
			placeholder = model.Column{ID: tmp, BoardID: e.boardID, Title: title, Position: st.nextPosition()}
			return nil
		},
		apply: func(st *State) { st.insertColumn(placeholder, -1) },
		send: func(ctx context.Context) (any, error) {
			pos := placeholder.Position
			return e.remote.CreateColumn(ctx, e.boardID, model.ColumnInput{Title: title, Position: &pos})
		},
		confirm: func(st *State, resp any) {
			c := resp.(model.Column)
			if c.ID.IsZero() {
				return
			}
			if c.BoardID.IsZero() {
				c.BoardID = e.boardID
			}
			st.replaceColumn(tmp, c)
			sortColumns(st.Columns)
			e.aliases[tmp] = c.ID
		},
	}
	resp, err := e.run(ctx, cmd)
	if err != nil {
		return model.Column{}, err
	}
	c := resp.(model.Column)
	if c.ID.IsZero() {
		c = placeholder
	}
	return c, nil
}

func (e *Engine) UpdateColumn(ctx context.Context, id model.ID, in model.ColumnInput) (model.Column, error) {
	id = e.resolve(id)
	in.Title = strings.TrimSpace(in.Title)
	cmd := &Command{
		Op:       "update column",
		EntityID: id,
		refs:     []entityRef{{kindColumn, id}},
		onRebind: func(resolve func(model.ID) model.ID) { id = resolve(id) },
		check: func(st State) error {
			if _, ok := st.Column(id); !ok {
				return NotFoundError{Kind: "column", ID: id}
			}
			return nil
		},
		apply: func(st *State) {
			i := st.columnIndex(id)
			if in.Title != "" {
				st.Columns[i].Title = in.Title
			}
			if in.Position != nil {
				st.Columns[i].Position = *in.Position
				sortColumns(st.Columns)
			}
		},
		send: func(ctx context.Context) (any, error) {
			return e.remote.UpdateColumn(ctx, e.boardID, id, in)
		},
		confirm: func(st *State, resp any) {
			c := resp.(model.Column)
			if c.ID.IsZero() {
				return
			}
			if c.BoardID.IsZero() {
				c.BoardID = e.boardID
			}
			st.replaceColumn(id, c)
			sortColumns(st.Columns)
		},
	}
	resp, err := e.run(ctx, cmd)
	if err != nil {
		return model.Column{}, err
	}
	if c := resp.(model.Column); !c.ID.IsZero() {
		return c, nil
	}
	c, _ := e.State().Column(id)
	return c, nil
}

// DeleteColumn removes the column and detaches its tasks: they stay on the
// board with an empty column reference and keep their status.
func (e *Engine) DeleteColumn(ctx context.Context, id model.ID) error {
	id = e.resolve(id)
	refs := []entityRef{{kindColumn, id}}
	for _, t := range e.State().TasksIn(id) {
		refs = append(refs, entityRef{kindTask, t.ID})
	}
	var cmd *Command
	cmd = &Command{
		Op:       "delete column",
		EntityID: id,
		refs:     refs,
		onRebind: func(resolve func(model.ID) model.ID) { id = resolve(id) },
		check: func(st State) error {
			if _, ok := st.Column(id); !ok {
				return NotFoundError{Kind: "column", ID: id}
			}
			return nil
		},
		apply: func(st *State) {
			st.removeColumn(id)
			for _, r := range cmd.refs[1:] {
				if i := st.taskIndex(r.id); i >= 0 {
					st.Tasks[i].ColumnID = ""
				}
			}
		},
		send: func(ctx context.Context) (any, error) {
			return nil, e.remote.DeleteColumn(ctx, e.boardID, id)
		},
	}
	_, err := e.run(ctx, cmd)
	return err
}

// Tasks.

func (e *Engine) CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return model.Task{}, errors.New("task title is required")
	}
	tmp := e.newID()
	var placeholder model.Task
	var wire model.TaskInput
	cmd := &Command{
		Op:       "create task",
		EntityID: tmp,
		refs:     []entityRef{{kindTask, tmp}},
		check: func(st State) error {
			if in.Status == "" && in.ColumnID.IsZero() {
				if len(st.Columns) > 0 {
					in.ColumnID = st.Columns[0].ID
				} else {
					in.Status = model.StatusTodo
				}
			}
			placeholder = e.norm.Task(model.Task{
				ID:          tmp,
				BoardID:     e.boardID,
				Title:       in.Title,
				Description: in.Description,
				Status:      in.Status,
				ColumnID:    in.ColumnID,
				CreatedAt:   e.now().UTC().Format(time.RFC3339),
			}, st.Columns)
			wire = e.norm.Input(in, st.Columns)
			return nil
		},
		apply: func(st *State) { st.insertTask(placeholder, -1) },
		send: func(ctx context.Context) (any, error) {
			return e.remote.CreateTask(ctx, e.boardID, wire)
		},
		confirm: func(st *State, resp any) {
			t := resp.(model.Task)
			if t.ID.IsZero() {
				return
			}
			if t.BoardID.IsZero() {
				t.BoardID = e.boardID
			}
			st.replaceTask(tmp, e.norm.Task(t, st.Columns))
			e.aliases[tmp] = t.ID
		},
	}
	resp, err := e.run(ctx, cmd)
	if err != nil {
		return model.Task{}, err
	}
	if !e.isClosed() {
		e.notify.Info("", fmt.Sprintf("Task %q created", in.Title))
	}
	t := resp.(model.Task)
	if t.ID.IsZero() {
		return placeholder, nil
	}
	st := e.State()
	return e.norm.Task(t, st.Columns), nil
}

func (e *Engine) UpdateTask(ctx context.Context, id model.ID, patch model.TaskPatch) (model.Task, error) {
	if patch.Empty() {
		return model.Task{}, errors.New("nothing to update")
	}
	return e.updateTask(ctx, "update task", id, patch)
}

// MoveTask moves a task to target, which may be a status ("done",
// "in-progress") or a column id or title.
func (e *Engine) MoveTask(ctx context.Context, id model.ID, target string) (model.Task, error) {
	st := e.State()
	status, colID, err := e.norm.Target(target, st.Columns)
	if err != nil {
		return model.Task{}, err
	}
	var patch model.TaskPatch
	if status != "" {
		patch.Status = &status
	}
	if !colID.IsZero() {
		patch.ColumnID = &colID
	}
	t, err := e.updateTask(ctx, "move task", id, patch)
	if err != nil {
		return model.Task{}, err
	}
	if !e.isClosed() {
		label := status.Label()
		if c, ok := st.Column(colID); ok {
			label = c.Title
		}
		e.notify.Success("", "Task moved to "+label)
	}
	return t, nil
}

func (e *Engine) updateTask(ctx context.Context, op string, id model.ID, patch model.TaskPatch) (model.Task, error) {
	id = e.resolve(id)
	wire := e.norm.Patch(patch)
	cmd := &Command{
		Op:       op,
		EntityID: id,
		refs:     []entityRef{{kindTask, id}},
		onRebind: func(resolve func(model.ID) model.ID) { id = resolve(id) },
		check: func(st State) error {
			if _, ok := st.Task(id); !ok {
				return NotFoundError{Kind: "task", ID: id}
			}
			return nil
		},
		apply: func(st *State) {
			i := st.taskIndex(id)
			st.Tasks[i] = e.norm.Task(patch.ApplyTo(st.Tasks[i]), st.Columns)
		},
		send: func(ctx context.Context) (any, error) {
			return e.remote.UpdateTask(ctx, e.boardID, id, wire)
		},
		confirm: func(st *State, resp any) {
			t := resp.(model.Task)
			if t.ID.IsZero() {
				return
			}
			if t.BoardID.IsZero() {
				t.BoardID = e.boardID
			}
			st.replaceTask(id, e.norm.Task(t, st.Columns))
		},
	}
	if _, err := e.run(ctx, cmd); err != nil {
		return model.Task{}, err
	}
	t, _ := e.State().Task(id)
	return t, nil
}

func (e *Engine) DeleteTask(ctx context.Context, id model.ID) error {
	id = e.resolve(id)
	cmd := &Command{
		Op:       "delete task",
		EntityID: id,
		refs:     []entityRef{{kindTask, id}},
		onRebind: func(resolve func(model.ID) model.ID) { id = resolve(id) },
		check: func(st State) error {
			if _, ok := st.Task(id); !ok {
				return NotFoundError{Kind: "task", ID: id}
			}
			return nil
		},
		apply: func(st *State) { st.removeTask(id) },
		send: func(ctx context.Context) (any, error) {
			return nil, e.remote.DeleteTask(ctx, e.boardID, id)
		},
	}
	_, err := e.run(ctx, cmd)
	return err
}
