package approval

import (
	"strings"
	"time"

	"github.com/hotdash/actionqueue/pkg/models"
)

// Event is a requested transition on an Action.
type Event string

const (
	EventSubmit         Event = "submit"
	EventApprove        Event = "approve"
	EventReject         Event = "reject"
	EventRequestChanges Event = "request_changes"
	EventApply          Event = "apply"
	EventAudit          Event = "audit"
	EventLearn          Event = "learn"
)

// Request carries a requested transition and everything its preconditions
// inspect.
type Request struct {
	Action *models.Action
	Event  Event
	Actor  string
	Reason string

	// SkipDryRun is the explicit operator override for apply: side effects
	// run without requiring dry-run success. Never implied by a failing
	// dry run.
	SkipDryRun bool
}

// edge is one legal transition of the approval lifecycle.
type edge struct {
	from models.ActionState
	to   models.ActionState
	pre  func(req Request) []string
}

// Machine owns every legal edge of the approval lifecycle. All state changes
// go through Apply; nothing else in the system compares states. The machine
// mutates the Action in memory only - persisting the transition (with the
// compare-and-swap version check) is the caller's job.
type Machine struct {
	edges map[Event]edge
}

// NewMachine builds the transition table.
func NewMachine() *Machine {
	return &Machine{
		edges: map[Event]edge{
			EventSubmit: {
				from: models.ActionStateDraft,
				to:   models.ActionStatePendingReview,
				pre: func(req Request) []string {
					if strings.TrimSpace(req.Action.Evidence.WhatChanges) == "" {
						return []string{"evidence.what_changes"}
					}

					return nil
				},
			},
			EventApprove: {
				from: models.ActionStatePendingReview,
				to:   models.ActionStateApproved,
				pre: func(req Request) []string {
					missing := Validate(req.Action).MissingFields()
					if strings.TrimSpace(req.Actor) == "" {
						missing = append(missing, "actor")
					}

					return missing
				},
			},
			EventReject: {
				from: models.ActionStatePendingReview,
				to:   models.ActionStateRejected,
				pre:  requireReason,
			},
			EventRequestChanges: {
				from: models.ActionStatePendingReview,
				to:   models.ActionStatePendingReview,
				pre:  requireReason,
			},
			EventApply: {
				from: models.ActionStateApproved,
				to:   models.ActionStateApplied,
				pre: func(req Request) []string {
					if req.SkipDryRun {
						return nil
					}

					for _, call := range req.Action.Calls {
						if call.DryRunStatus != models.DryRunSuccess && call.DryRunStatus != models.DryRunSkipped {
							return []string{"calls[].dry_run_status"}
						}
					}

					return nil
				},
			},
			EventAudit: {
				from: models.ActionStateApplied,
				to:   models.ActionStateAudited,
				pre: func(req Request) []string {
					if len(req.Action.Receipts) == 0 {
						return []string{"receipts"}
					}

					return nil
				},
			},
			EventLearn: {
				from: models.ActionStateAudited,
				to:   models.ActionStateLearned,
			},
		},
	}
}

func requireReason(req Request) []string {
	if strings.TrimSpace(req.Reason) == "" {
		return []string{"reason"}
	}

	return nil
}

// Apply validates the requested event against the transition table and, on
// success, mutates the Action in memory and returns the single
// ApprovalDecision to append to the ledger. On failure the Action is
// untouched and no decision is produced. Never a silent no-op.
func (m *Machine) Apply(req Request) (*models.ApprovalDecision, error) {
	action := req.Action

	if action.State.Terminal() {
		return nil, &InvalidTransitionError{ActionID: action.ID, Current: action.State, Event: req.Event}
	}

	next, ok := m.edges[req.Event]
	if !ok || next.from != action.State {
		return nil, &InvalidTransitionError{ActionID: action.ID, Current: action.State, Event: req.Event}
	}

	if next.pre != nil {
		if missing := next.pre(req); len(missing) > 0 {
			return nil, &PreconditionError{ActionID: action.ID, Event: req.Event, Missing: missing}
		}
	}

	now := time.Now().UTC()
	from := action.State
	action.State = next.to
	action.UpdatedAt = now

	switch req.Event {
	case EventApprove:
		action.ApprovedBy = req.Actor
	case EventApply:
		action.AppliedBy = req.Actor

		if req.SkipDryRun {
			for i := range action.Calls {
				if action.Calls[i].DryRunStatus != models.DryRunSuccess {
					action.Calls[i].DryRunStatus = models.DryRunSkipped
				}
			}
		}
	case EventRequestChanges:
		// Back to the drawing board: stale dry-run results no longer count.
		for i := range action.Calls {
			action.Calls[i].DryRunStatus = models.DryRunPending
		}
	}

	return &models.ApprovalDecision{
		ActionID:  action.ID,
		Event:     models.DecisionEvent(req.Event),
		FromState: from,
		ToState:   action.State,
		Actor:     req.Actor,
		Reason:    req.Reason,
		CreatedAt: now,
	}, nil
}
