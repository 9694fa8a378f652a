package cli

import (
	"errors"
	"fmt"

	"kanchat-cli/internal/api"
	"kanchat-cli/internal/auth"
)

type notFoundError struct {
	kind string
	id   string
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.kind, e.id)
}

func errNotFound(kind, id string) error {
	return notFoundError{kind: kind, id: id}
}

// userMessage is what writeErr prints for err.
func userMessage(err error) string {
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		return "session expired, run `kanchat login`"
	case errors.Is(err, auth.ErrAuthRequired):
		return "not logged in, run `kanchat login`"
	}
	return err.Error()
}
