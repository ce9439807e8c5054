// Package persistence provides the data storage abstraction for Actions and
// their approval-decision ledger.
package persistence

import (
	"context"

	"github.com/hotdash/actionqueue/pkg/models"
)

type Persistence interface {
	ActionRepository() ActionRepository
	DecisionRepository() DecisionRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListActionsOptions filters, sorts and paginates Action listings.
type ListActionsOptions struct {
	Limit  int
	Offset int

	State *models.ActionState
	Kind  *models.ActionKind
	Agent string

	SortBy    string
	SortOrder string
}

// ListActionsResult is one page of Actions plus pagination metadata.
type ListActionsResult struct {
	Actions     []*models.Action
	TotalCount  int64
	HasNextPage bool
}

// StateCounts maps each lifecycle state to the number of live Actions in it.
type StateCounts map[models.ActionState]int64

type ActionRepository interface {
	List(ctx context.Context, opts ListActionsOptions) (*ListActionsResult, error)

	// GetByID returns nil, nil when no live Action has the ID.
	GetByID(ctx context.Context, id string) (*models.Action, error)

	// Save inserts or fully replaces an Action without touching its version
	// or its realized ROI; the latter belongs to UpdateRealizedROI alone.
	Save(ctx context.Context, action *models.Action) error

	// CompareAndSwap persists a state transition only if the stored version
	// still equals expectedVersion, then bumps the version. A lost race
	// returns ErrVersionConflict and leaves the row untouched. This is what
	// makes concurrent transitions on one Action at-most-one-winner.
	CompareAndSwap(ctx context.Context, action *models.Action, expectedVersion int64) error

	// Delete soft-deletes an Action. Only Actions in a terminal state are
	// archived this way; enforcement lives in the service layer.
	Delete(ctx context.Context, id string) error

	CountByState(ctx context.Context) (StateCounts, error)

	// SuccessRates returns, per kind, the share of learned Actions whose
	// longest realized-ROI observation is positive. Kinds with no learned
	// Actions are absent from the map.
	SuccessRates(ctx context.Context) (map[models.ActionKind]float64, error)

	// PendingAttribution returns Actions that are approved or later but not
	// yet learned, in CreatedAt ascending order - the nightly refresh set.
	PendingAttribution(ctx context.Context) ([]*models.Action, error)

	// UpdateRealizedROI upserts one attribution window's observed revenue
	// delta without touching state or version.
	UpdateRealizedROI(ctx context.Context, id string, window models.AttributionWindow, revenueDelta float64) error
}

type DecisionRepository interface {
	// Append adds one immutable ledger entry. There is deliberately no
	// update or delete.
	Append(ctx context.Context, decision *models.ApprovalDecision) error

	// ListByAction returns the ledger for one Action, oldest first.
	ListByAction(ctx context.Context, actionID string) ([]*models.ApprovalDecision, error)
}
