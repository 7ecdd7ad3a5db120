package undo

import (
	"errors"
	"fmt"
)

// StateError represents a failure of an undo engine operation.
//
// Two categories share this type:
//   - Precondition violations: freeze while already frozen, unfreeze while
//     not frozen, freeze/unfreeze on an inactive session. These leave the
//     session state untouched.
//   - Replay failure: an inverse statement failed inside a step's
//     transaction. The transaction is rolled back and the popped interval
//     is restored to its source stack, so the step can be retried or
//     abandoned explicitly.
type StateError struct {
	// Code identifies the error category.
	Code StateErrorCode

	// Message is a human-readable description.
	Message string

	// Session identifies the affected session.
	Session string

	// Err is the underlying database error (replay failures only).
	Err error
}

// StateErrorCode categorizes engine errors.
type StateErrorCode string

const (
	// ErrCodeAlreadyFrozen indicates Freeze was called while frozen.
	ErrCodeAlreadyFrozen StateErrorCode = "ALREADY_FROZEN"

	// ErrCodeNotFrozen indicates Unfreeze was called while not frozen.
	ErrCodeNotFrozen StateErrorCode = "NOT_FROZEN"

	// ErrCodeNotActive indicates an operation that requires an activated
	// session was called on an inactive one.
	ErrCodeNotActive StateErrorCode = "NOT_ACTIVE"

	// ErrCodeReplayFailed indicates an inverse statement failed during an
	// undo/redo step and the step was rolled back.
	ErrCodeReplayFailed StateErrorCode = "REPLAY_FAILED"
)

// Error implements the error interface.
func (e *StateError) Error() string {
	if e.Session != "" {
		return fmt.Sprintf("%s: %s (session=%s)", e.Code, e.Message, e.Session)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying database error, if any.
func (e *StateError) Unwrap() error {
	return e.Err
}

// IsAlreadyFrozen returns true for recursive-freeze errors.
// Uses errors.As to handle wrapped errors.
func IsAlreadyFrozen(err error) bool {
	return hasCode(err, ErrCodeAlreadyFrozen)
}

// IsNotFrozen returns true for unfreeze-while-not-frozen errors.
func IsNotFrozen(err error) bool {
	return hasCode(err, ErrCodeNotFrozen)
}

// IsNotActive returns true for operations attempted on an inactive session.
func IsNotActive(err error) bool {
	return hasCode(err, ErrCodeNotActive)
}

// IsReplayFailed returns true for rolled-back undo/redo steps.
func IsReplayFailed(err error) bool {
	return hasCode(err, ErrCodeReplayFailed)
}

func hasCode(err error, code StateErrorCode) bool {
	var se *StateError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
