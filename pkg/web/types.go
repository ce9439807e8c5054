// Package web provides HTTP request and response types for the action queue API.
package web

import (
	"github.com/hotdash/actionqueue/pkg/approval"
	"github.com/hotdash/actionqueue/pkg/models"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateActionRequest represents the request body for proposing a new action.
type CreateActionRequest struct {
	Kind     string                `json:"kind"     validate:"required"`
	Draft    string                `json:"draft"    validate:"required,min=1"`
	Agent    string                `json:"agent"    validate:"required"`
	Evidence models.Evidence       `json:"evidence"`
	Impact   models.Impact         `json:"impact"`
	Risk     models.Risk           `json:"risk"`
	Rollback models.Rollback       `json:"rollback"`
	Factors  models.RankingFactors `json:"ranking_factors"`
	Calls    []models.EndpointCall `json:"calls,omitempty"`
}

// DecisionRequest represents the request body for a lifecycle transition.
type DecisionRequest struct {
	Actor  string `json:"actor"  validate:"required"`
	Reason string `json:"reason,omitempty"`
}

// ApplyRequest represents the request body for applying an approved action.
type ApplyRequest struct {
	Actor      string `json:"actor"        validate:"required"`
	SkipDryRun bool   `json:"skip_dry_run"`
}

// ViolationResponse is one failed validation gate.
type ViolationResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateResponse reports the evidence and rollback gate outcome.
type ValidateResponse struct {
	OK         bool                `json:"ok"`
	Violations []ViolationResponse `json:"violations,omitempty"`
}

// TransformValidateResponse flattens a validation result for the wire.
func TransformValidateResponse(result *approval.ValidationResult) ValidateResponse {
	response := ValidateResponse{OK: result.OK}

	for _, violation := range result.Violations {
		response.Violations = append(response.Violations, ViolationResponse{
			Field:   violation.Field,
			Message: violation.Err.Error(),
		})
	}

	return response
}
