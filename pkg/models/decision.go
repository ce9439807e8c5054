package models

import "time"

// DecisionEvent names the requested transition an ApprovalDecision records.
type DecisionEvent string

const (
	DecisionSubmit         DecisionEvent = "submit"
	DecisionApprove        DecisionEvent = "approve"
	DecisionReject         DecisionEvent = "reject"
	DecisionRequestChanges DecisionEvent = "request_changes"
	DecisionApply          DecisionEvent = "apply"
	DecisionAudit          DecisionEvent = "audit"
	DecisionLearn          DecisionEvent = "learn"
)

// ApprovalDecision is one immutable entry in the per-Action audit ledger.
// Exactly one is appended per successful transition; entries are never
// updated or deleted.
type ApprovalDecision struct {
	ID        string        `json:"id"`
	ActionID  string        `json:"action_id"`
	Event     DecisionEvent `json:"event"`
	FromState ActionState   `json:"from_state"`
	ToState   ActionState   `json:"to_state"`
	Actor     string        `json:"actor"`
	Reason    string        `json:"reason,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
