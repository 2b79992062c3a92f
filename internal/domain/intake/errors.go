package intake

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an intake id or reference does not resolve.
	ErrNotFound = errors.New("intake not found")

	// ErrForbidden is returned when the actor's role or ownership is
	// insufficient for the requested transition. No store write is attempted.
	ErrForbidden = errors.New("not allowed to perform this action")

	// ErrConflict is returned when a conditional update found the intake in a
	// different status than expected, meaning a concurrent transition won.
	ErrConflict = errors.New("intake was modified concurrently")
)

// PreconditionError signals that the intake's current state is incompatible
// with the requested transition. The message is specific and safe to render
// to reviewers.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }

// Preconditionf builds a PreconditionError.
func Preconditionf(format string, args ...any) error {
	return &PreconditionError{Message: fmt.Sprintf(format, args...)}
}

// IsPrecondition reports whether err is a precondition violation.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
