// Package statusutil maps task status between the two board representations:
// a fixed enum (todo/in_progress/done) and a reference to a column.
package statusutil

import (
	"fmt"
	"strings"

	"kanchat-cli/internal/config"
	"kanchat-cli/internal/model"
)

// StatusForColumn returns the enum stage a column stands for, matching on the
// title first and the id second ("In Progress", "in-progress", "doing", ...).
func StatusForColumn(c model.Column) (model.Status, bool) {
	if s, err := model.ParseStatus(c.Title); err == nil {
		return s, true
	}
	if s, err := model.ParseStatus(c.ID.String()); err == nil {
		return s, true
	}
	return "", false
}

// ColumnForStatus returns the first column (by position) standing for s.
func ColumnForStatus(s model.Status, cols []model.Column) (model.Column, bool) {
	s = model.ParsedOrSelf(s)
	var best model.Column
	found := false
	for _, c := range cols {
		cs, ok := StatusForColumn(c)
		if !ok || cs != s {
			continue
		}
		if !found || c.Position < best.Position {
			best, found = c, true
		}
	}
	return best, found
}

// FindColumn resolves ref against cols by id, then case-insensitive title.
func FindColumn(ref string, cols []model.Column) (model.Column, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return model.Column{}, false
	}
	for _, c := range cols {
		if c.ID.String() == ref {
			return c, true
		}
	}
	for _, c := range cols {
		if strings.EqualFold(strings.TrimSpace(c.Title), ref) {
			return c, true
		}
	}
	return model.Column{}, false
}

type Normalizer struct {
	Mode config.StatusMode
}

func (n Normalizer) columnMode() bool { return n.Mode == config.StatusModeColumns }

// Task returns t with Status and ColumnID made consistent with each other.
// In enum mode the status is authoritative; in column mode the column is.
func (n Normalizer) Task(t model.Task, cols []model.Column) model.Task {
	t = t.Clone()
	if t.Status != "" {
		t.Status = model.ParsedOrSelf(t.Status)
	}
	if n.columnMode() {
		if c, ok := n.columnOf(t, cols); ok {
			t.ColumnID = c.ID
			t.Status, _ = StatusForColumn(c)
		}
		return t
	}

	if !t.Status.Valid() {
		if c, ok := n.columnOf(t, cols); ok {
			if s, ok := StatusForColumn(c); ok {
				t.Status = s
			}
		} else if s, err := model.ParseStatus(t.ColumnID.String()); err == nil {
			t.Status = s
		}
	}
	if t.Status.Valid() {
		if c, ok := ColumnForStatus(t.Status, cols); ok {
			t.ColumnID = c.ID
		}
	}
	return t
}

func (n Normalizer) columnOf(t model.Task, cols []model.Column) (model.Column, bool) {
	if !t.ColumnID.IsZero() {
		for _, c := range cols {
			if c.ID == t.ColumnID {
				return c, true
			}
		}
	}
	if t.Status != "" {
		if c, ok := FindColumn(string(t.Status), cols); ok {
			return c, true
		}
		return ColumnForStatus(t.Status, cols)
	}
	return model.Column{}, false
}

// Target resolves a move destination (a status, a column id or a column title)
// to the status and column a task should end up with.
func (n Normalizer) Target(ref string, cols []model.Column) (model.Status, model.ID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", fmt.Errorf("invalid target: empty")
	}
	if !n.columnMode() {
		s, err := model.ParseStatus(ref)
		if err != nil {
			c, ok := FindColumn(ref, cols)
			if !ok {
				return "", "", err
			}
			if s, ok = StatusForColumn(c); !ok {
				return "", "", fmt.Errorf("column %q has no status", c.Title)
			}
		}
		c, _ := ColumnForStatus(s, cols)
		return s, c.ID, nil
	}

	c, ok := FindColumn(ref, cols)
	if !ok {
		s, err := model.ParseStatus(ref)
		if err != nil {
			return "", "", fmt.Errorf("unknown column: %s", ref)
		}
		if c, ok = ColumnForStatus(s, cols); !ok {
			return "", "", fmt.Errorf("no column for status %s", s)
		}
	}
	s, _ := StatusForColumn(c)
	return s, c.ID, nil
}

// Input shapes a create request for the wire. Enum boards take a status, column
// boards take a column id.
func (n Normalizer) Input(in model.TaskInput, cols []model.Column) model.TaskInput {
	t := n.Task(model.Task{Status: in.Status, ColumnID: in.ColumnID}, cols)
	if n.columnMode() {
		in.ColumnID = t.ColumnID
		in.Status = ""
	} else {
		in.Status = t.Status
		in.ColumnID = ""
	}
	return in
}

// Patch shapes an update for the wire, keeping only the representation the
// board uses.
func (n Normalizer) Patch(p model.TaskPatch) model.TaskPatch {
	if n.columnMode() {
		if p.ColumnID != nil {
			p.Status = nil
		}
		return p
	}
	if p.Status != nil {
		p.ColumnID = nil
	}
	return p
}
