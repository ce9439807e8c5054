// Package services provides the business operations behind the action queue
// API: creating actions, driving their approval lifecycle, and serving
// ranked listings.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInvalidSortField      = errors.New("invalid sort field")
	ErrInvalidSortOrder      = errors.New("invalid sort order")
	ErrInvalidKind           = errors.New("invalid action kind")
	ErrInvalidState          = errors.New("invalid action state")
	ErrInvalidRankingVersion = errors.New("invalid ranking version")
	ErrDraftRequired         = errors.New("draft text is required")
	ErrEmptyAgent            = errors.New("agent cannot be empty")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInvalidRankingVersion) ||
		errors.Is(err, ErrDraftRequired) ||
		errors.Is(err, ErrEmptyAgent)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
