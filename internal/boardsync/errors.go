package boardsync

import (
	"errors"
	"fmt"

	"kanchat-cli/internal/model"
)

// ErrClosed is returned for mutations issued after Close.
var ErrClosed = errors.New("board sync closed")

type NotFoundError struct {
	Kind string
	ID   model.ID
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// MutationError is returned when the server rejected a mutation. Local state
// has already been rolled back.
type MutationError struct {
	Op       string
	EntityID model.ID
	Err      error
}

func (e *MutationError) Error() string {
	if e.EntityID.IsZero() {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.EntityID, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }
