// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrActionNotFound indicates no live Action has the given identifier.
	ErrActionNotFound = errors.New("action not found")

	// ErrVersionConflict indicates a compare-and-swap lost the race: the
	// stored version moved since the caller read the Action.
	ErrVersionConflict = errors.New("action version conflict")

	// ErrActionAlreadyExists indicates an Action with the same identifier
	// already exists.
	ErrActionAlreadyExists = errors.New("action already exists")

	// ErrInvalidSortField indicates a sort field outside the allowlist.
	ErrInvalidSortField = errors.New("invalid sort field")
)

// ActionError wraps action-related storage errors with operation context.
type ActionError struct {
	Op       string // Operation being performed (e.g., "GetByID", "CompareAndSwap")
	ActionID string
	Err      error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failed for action %s: %v", e.Op, e.ActionID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func (e *ActionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewActionError creates a new action storage error with context.
func NewActionError(op, actionID string, err error) *ActionError {
	return &ActionError{Op: op, ActionID: actionID, Err: err}
}

// DecisionError wraps decision-ledger storage errors with context.
type DecisionError struct {
	Op       string
	ActionID string
	Err      error
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("%s failed for action %s ledger: %v", e.Op, e.ActionID, e.Err)
}

func (e *DecisionError) Unwrap() error {
	return e.Err
}

func (e *DecisionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsActionNotFound checks if an error indicates a missing Action.
func IsActionNotFound(err error) bool {
	return errors.Is(err, ErrActionNotFound)
}

// IsVersionConflict checks if an error indicates a lost compare-and-swap.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsInvalidSortField checks if an error indicates a disallowed sort field.
func IsInvalidSortField(err error) bool {
	return errors.Is(err, ErrInvalidSortField)
}
