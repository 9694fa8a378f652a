package model

import (
	"fmt"
	"strings"
)

// Status is the fixed lifecycle stage of a task when the board is not column-based.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// DefaultColumnTitles are the titles boards are seeded with in enum mode.
var DefaultColumnTitles = map[Status]string{
	StatusTodo:       "To Do",
	StatusInProgress: "In Progress",
	StatusDone:       "Done",
}

// ParseStatus accepts the spellings clients have used over time
// ("in-progress", "In Progress", "DOING", ...).
func ParseStatus(s string) (Status, error) {
	k := strings.ToLower(strings.TrimSpace(s))
	k = strings.NewReplacer("-", "", "_", "", " ", "").Replace(k)
	switch k {
	case "todo":
		return StatusTodo, nil
	case "inprogress", "doing", "wip":
		return StatusInProgress, nil
	case "done", "complete", "completed":
		return StatusDone, nil
	case "":
		return "", fmt.Errorf("invalid status: empty")
	default:
		return "", fmt.Errorf("invalid status: %s", s)
	}
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil && ParsedOrSelf(s) == s
}

// ParsedOrSelf returns the canonical form of s, or s unchanged when it is not a known stage.
func ParsedOrSelf(s Status) Status {
	if p, err := ParseStatus(string(s)); err == nil {
		return p
	}
	return s
}

// Label is the human column title for a status.
func (s Status) Label() string {
	if t, ok := DefaultColumnTitles[ParsedOrSelf(s)]; ok {
		return t
	}
	return string(s)
}
