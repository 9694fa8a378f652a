package boardsync

import (
	"sort"

	"kanchat-cli/internal/model"
)

// State is the in-memory copy of one board: columns ordered by position and
// tasks in server order.
type State struct {
	Columns []model.Column `json:"columns"`
	Tasks   []model.Task   `json:"tasks"`
}

func (s State) Clone() State {
	out := State{}
	if s.Columns != nil {
		out.Columns = append([]model.Column{}, s.Columns...)
	}
	if s.Tasks != nil {
		out.Tasks = make([]model.Task, len(s.Tasks))
		for i, t := range s.Tasks {
			out.Tasks[i] = t.Clone()
		}
	}
	return out
}

func (s State) Task(id model.ID) (model.Task, bool) {
	if i := s.taskIndex(id); i >= 0 {
		return s.Tasks[i].Clone(), true
	}
	return model.Task{}, false
}

func (s State) Column(id model.ID) (model.Column, bool) {
	if i := s.columnIndex(id); i >= 0 {
		return s.Columns[i], true
	}
	return model.Column{}, false
}

// TasksIn returns the tasks whose column is columnID, in state order.
func (s State) TasksIn(columnID model.ID) []model.Task {
	var out []model.Task
	for _, t := range s.Tasks {
		if t.ColumnID == columnID {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (s State) taskIndex(id model.ID) int {
	for i, t := range s.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s State) columnIndex(id model.ID) int {
	for i, c := range s.Columns {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *State) removeTask(id model.ID) {
	if i := s.taskIndex(id); i >= 0 {
		s.Tasks = append(s.Tasks[:i], s.Tasks[i+1:]...)
	}
}

func (s *State) removeColumn(id model.ID) {
	if i := s.columnIndex(id); i >= 0 {
		s.Columns = append(s.Columns[:i], s.Columns[i+1:]...)
	}
}

// insertTask places t at index at (clamped), replacing any task with the same id.
func (s *State) insertTask(t model.Task, at int) {
	s.removeTask(t.ID)
	if at < 0 || at > len(s.Tasks) {
		at = len(s.Tasks)
	}
	s.Tasks = append(s.Tasks, model.Task{})
	copy(s.Tasks[at+1:], s.Tasks[at:])
	s.Tasks[at] = t
}

func (s *State) insertColumn(c model.Column, at int) {
	s.removeColumn(c.ID)
	if at < 0 || at > len(s.Columns) {
		at = len(s.Columns)
	}
	s.Columns = append(s.Columns, model.Column{})
	copy(s.Columns[at+1:], s.Columns[at:])
	s.Columns[at] = c
}

// replaceTask swaps the task with id old for t in place; t is appended when
// old is gone.
func (s *State) replaceTask(old model.ID, t model.Task) {
	if i := s.taskIndex(old); i >= 0 {
		if old != t.ID {
			s.removeTask(t.ID)
			i = s.taskIndex(old)
		}
		s.Tasks[i] = t
		return
	}
	s.insertTask(t, -1)
}

func (s *State) replaceColumn(old model.ID, c model.Column) {
	if i := s.columnIndex(old); i >= 0 {
		if old != c.ID {
			s.removeColumn(c.ID)
			i = s.columnIndex(old)
		}
		s.Columns[i] = c
		return
	}
	s.insertColumn(c, -1)
}

func sortColumns(cols []model.Column) {
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Position < cols[j].Position })
}

func (s State) nextPosition() int {
	next := 0
	for _, c := range s.Columns {
		if c.Position >= next {
			next = c.Position + 1
		}
	}
	return next
}
