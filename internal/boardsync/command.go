package boardsync

import (
	"context"

	"kanchat-cli/internal/model"
)

type entityKind string

const (
	kindTask   entityKind = "task"
	kindColumn entityKind = "column"
)

type entityRef struct {
	kind entityKind
	id   model.ID
}

func (r entityRef) key() string { return string(r.kind) + ":" + r.id.String() }

// Command is one optimistic mutation: the state before it was applied, the
// local change, the network call, and how to merge the server's answer.
// Rollback restores every entity the command touches as a whole record,
// position included, from the prior snapshot.
type Command struct {
	Op       string
	EntityID model.ID

	refs    []entityRef
	prior   State
	check   func(State) error
	apply   func(*State)
	send    func(context.Context) (any, error)
	confirm func(*State, any)
	// onRebind moves the op's own captured ids along with rebind.
	onRebind func(resolve func(model.ID) model.ID)
}

func (c *Command) keys() []string {
	out := make([]string, 0, len(c.refs))
	for _, r := range c.refs {
		out = append(out, r.key())
	}
	return out
}

// rebind rewrites placeholder ids that were confirmed while the command waited
// for its locks. It reports whether anything changed.
func (c *Command) rebind(resolve func(model.ID) model.ID) bool {
	changed := false
	for i, r := range c.refs {
		if to := resolve(r.id); to != r.id {
			c.refs[i].id = to
			changed = true
		}
	}
	if to := resolve(c.EntityID); to != c.EntityID {
		c.EntityID = to
		changed = true
	}
	if changed && c.onRebind != nil {
		c.onRebind(resolve)
	}
	return changed
}

// Prior is the snapshot taken by Apply.
func (c *Command) Prior() State { return c.prior.Clone() }

// Apply snapshots st and applies the optimistic change.
func (c *Command) Apply(st *State) {
	c.prior = st.Clone()
	if c.apply != nil {
		c.apply(st)
	}
}

// Confirm merges the server response; the server's values win.
func (c *Command) Confirm(st *State, resp any) {
	if c.confirm != nil {
		c.confirm(st, resp)
	}
}

func (c *Command) Rollback(st *State) {
	for _, r := range c.refs {
		switch r.kind {
		case kindTask:
			if i := c.prior.taskIndex(r.id); i >= 0 {
				st.insertTask(c.prior.Tasks[i].Clone(), i)
			} else {
				st.removeTask(r.id)
			}
		case kindColumn:
			if i := c.prior.columnIndex(r.id); i >= 0 {
				st.insertColumn(c.prior.Columns[i], i)
			} else {
				st.removeColumn(r.id)
			}
		}
	}
}
