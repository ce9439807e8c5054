// Package approval owns the Action lifecycle: the transition table, its
// preconditions, and the evidence/rollback gate that guards approval.
package approval

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hotdash/actionqueue/pkg/models"
)

// InvalidTransitionError reports a transition that is not legal from the
// Action's current state: a stale client, a lost race, or an attempt to
// leave a terminal state. It carries the actual current state so callers
// can resync.
type InvalidTransitionError struct {
	ActionID string
	Current  models.ActionState
	Event    Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s action %s in state %s", e.Event, e.ActionID, e.Current)
}

// PreconditionError reports every field a transition is missing, not just
// the first, so operators fix everything in one pass.
type PreconditionError struct {
	ActionID string
	Event    Event
	Missing  []string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot %s action %s: missing %s", e.Event, e.ActionID, strings.Join(e.Missing, ", "))
}

// IsInvalidTransition checks if an error is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError

	return errors.As(err, &target)
}

// IsPreconditionFailed checks if an error is a PreconditionError.
func IsPreconditionFailed(err error) bool {
	var target *PreconditionError

	return errors.As(err, &target)
}
