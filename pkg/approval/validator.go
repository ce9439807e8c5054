package approval

import (
	"errors"
	"strings"

	"github.com/hotdash/actionqueue/pkg/models"
)

// Violations an operator must resolve before an Action can be approved.
var (
	// ErrMissingEvidence indicates evidence.what_changes is empty or absent.
	ErrMissingEvidence = errors.New("evidence.what_changes is required")

	// ErrMissingRollback indicates rollback.steps is empty or absent.
	ErrMissingRollback = errors.New("rollback.steps is required")
)

// Violation is one failed check, tied to the field that caused it.
type Violation struct {
	Field string `json:"field"`
	Err   error  `json:"-"`
}

// Message returns the human-readable description of the violation.
func (v Violation) Message() string {
	return v.Err.Error()
}

// ValidationResult is the outcome of the evidence and rollback gate.
type ValidationResult struct {
	OK         bool
	Violations []Violation
}

// MissingFields returns the field paths of every violation.
func (r ValidationResult) MissingFields() []string {
	fields := make([]string, 0, len(r.Violations))
	for _, violation := range r.Violations {
		fields = append(fields, violation.Field)
	}

	return fields
}

// Validate checks that an Action carries the documented evidence and
// rollback plan an operator needs before approving it. Pure function: it
// collects every violation rather than stopping at the first, and never
// mutates the Action.
func Validate(action *models.Action) ValidationResult {
	violations := make([]Violation, 0, 2)

	if strings.TrimSpace(action.Evidence.WhatChanges) == "" {
		violations = append(violations, Violation{Field: "evidence.what_changes", Err: ErrMissingEvidence})
	}

	if len(action.Rollback.Steps) == 0 {
		violations = append(violations, Violation{Field: "rollback.steps", Err: ErrMissingRollback})
	}

	return ValidationResult{OK: len(violations) == 0, Violations: violations}
}
