package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidReference marks an action citing an unknown or invisible statement.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrPermissionDenied marks a dataplane access without a justifying action.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvariantViolation marks an engine bug. Always fatal.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrNotSynchronizer marks a clock or agreement operation by a non-synchronizer.
	ErrNotSynchronizer = errors.New("not the synchronizer")
)

// ReferenceError reports which justification ids could not be resolved.
type ReferenceError struct {
	Actor   ActorID
	Missing []StatementID
	Hidden  []StatementID
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s: actor %s cites missing=%v hidden=%v", ErrInvalidReference, e.Actor, e.Missing, e.Hidden)
}

func (e *ReferenceError) Unwrap() error { return ErrInvalidReference }

// PermissionError reports a refused dataplane access.
type PermissionError struct {
	Actor  ActorID
	Mode   Access
	Key    string
	Action ActionID
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: %s %s %q via %s: %s", ErrPermissionDenied, e.Actor, e.Mode, e.Key, e.Action, e.Reason)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// InvariantError describes a broken engine invariant.
type InvariantError struct {
	What string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvariantViolation, e.What)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// Invariantf builds an InvariantError.
func Invariantf(format string, args ...any) error {
	return &InvariantError{What: fmt.Sprintf(format, args...)}
}

// Recoverable reports whether err is reported back to an actor instead of
// aborting the run.
func Recoverable(err error) bool {
	return errors.Is(err, ErrInvalidReference) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrNotSynchronizer)
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	return err != nil && !Recoverable(err)
}
