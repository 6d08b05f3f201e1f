package memory

import (
	"errors"
	"fmt"
)

var (
	errNotFound = errors.New("memory: not found")
	errConflict = errors.New("memory: already exists")
)

// Error implements repositories.RepositoryError for the in-memory stores.
type Error struct {
	op  string
	err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// IsNotFound reports whether the record was missing.
func (e *Error) IsNotFound() bool { return errors.Is(e.err, errNotFound) }

// IsConflict reports whether the record already existed.
func (e *Error) IsConflict() bool { return errors.Is(e.err, errConflict) }

// IsUnavailable is always false; the in-memory stores never fail transiently.
func (e *Error) IsUnavailable() bool { return false }

func notFound(op, id string) error {
	return &Error{op: op, err: fmt.Errorf("%w: %s", errNotFound, id)}
}

func conflict(op, id string) error {
	return &Error{op: op, err: fmt.Errorf("%w: %s", errConflict, id)}
}
