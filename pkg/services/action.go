package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hotdash/actionqueue/pkg/approval"
	"github.com/hotdash/actionqueue/pkg/cache"
	"github.com/hotdash/actionqueue/pkg/eventbus"
	"github.com/hotdash/actionqueue/pkg/events"
	"github.com/hotdash/actionqueue/pkg/executor"
	"github.com/hotdash/actionqueue/pkg/models"
	"github.com/hotdash/actionqueue/pkg/persistence"
)

// ErrActionNotFound is returned when an action is not found.
var ErrActionNotFound = persistence.ErrActionNotFound

// RankCachePrefix keys every cached ranked listing. Lifecycle transitions
// invalidate the whole prefix.
const RankCachePrefix = "rank:"

// CreateActionRequest carries an agent's proposal for a new draft Action.
type CreateActionRequest struct {
	Kind     models.ActionKind
	Draft    string
	Agent    string
	Evidence models.Evidence
	Impact   models.Impact
	Risk     models.Risk
	Rollback models.Rollback
	Factors  models.RankingFactors
	Calls    []models.EndpointCall
}

// Action drives the approval lifecycle. Every transition goes through the
// machine and is persisted with a compare-and-swap, so two racing reviewers
// produce exactly one winner.
type Action struct {
	persistence persistence.Persistence
	machine     *approval.Machine
	executor    executor.Executor
	publisher   eventbus.EventPublisher
	cache       cache.Cache
	logger      *slog.Logger
}

// NewAction creates a new action service. executor, publisher and cache may
// be nil; the corresponding side effects are skipped.
func NewAction(
	p persistence.Persistence,
	exec executor.Executor,
	publisher eventbus.EventPublisher,
	c cache.Cache,
	logger *slog.Logger,
) *Action {
	return &Action{
		persistence: p,
		machine:     approval.NewMachine(),
		executor:    exec,
		publisher:   publisher,
		cache:       c,
		logger:      logger.With("module", "action_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Action) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create stores a new draft Action from an agent proposal.
func (s *Action) Create(ctx context.Context, req CreateActionRequest) (*models.Action, error) {
	if !req.Kind.Valid() {
		return nil, NewValidationError(
			"Create",
			"INVALID_KIND",
			fmt.Sprintf("invalid action kind '%s'", req.Kind),
			ErrInvalidKind,
		)
	}

	if strings.TrimSpace(req.Draft) == "" {
		return nil, ErrDraftRequired
	}

	if strings.TrimSpace(req.Agent) == "" {
		return nil, ErrEmptyAgent
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate action id: %w", err)
	}

	now := time.Now().UTC()
	action := &models.Action{
		ID:             id.String(),
		Kind:           req.Kind,
		State:          models.ActionStateDraft,
		Draft:          req.Draft,
		Agent:          req.Agent,
		Evidence:       req.Evidence,
		Impact:         req.Impact,
		Risk:           req.Risk,
		Rollback:       req.Rollback,
		RankingFactors: req.Factors,
		Calls:          req.Calls,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for i := range action.Calls {
		action.Calls[i].DryRunStatus = models.DryRunPending
	}

	if err := s.persistence.ActionRepository().Save(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to create action: %w", err)
	}

	return action, nil
}

// FetchByID retrieves an action by its ID.
func (s *Action) FetchByID(ctx context.Context, id string) (*models.Action, error) {
	action, err := s.persistence.ActionRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if action == nil {
		return nil, ErrActionNotFound
	}

	return action, nil
}

// ListActionsRequest contains options for listing actions.
type ListActionsRequest struct {
	// Pagination
	Limit  int
	Offset int

	// Filtering
	State *models.ActionState
	Kind  *models.ActionKind
	Agent string

	// Sorting
	SortBy    string
	SortOrder string
}

// ListActionsResponse contains the result of listing actions.
type ListActionsResponse struct {
	Actions     []*models.Action `json:"actions"`
	TotalCount  int64            `json:"total_count"`
	HasNextPage bool             `json:"has_next_page"`
}

// List retrieves actions with filtering, sorting, and pagination.
func (s *Action) List(ctx context.Context, req ListActionsRequest) (*ListActionsResponse, error) {
	if err := s.validateListRequest(&req); err != nil {
		return nil, err
	}

	result, err := s.persistence.ActionRepository().List(ctx, persistence.ListActionsOptions{
		Limit:     req.Limit,
		Offset:    req.Offset,
		State:     req.State,
		Kind:      req.Kind,
		Agent:     req.Agent,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		if persistence.IsInvalidSortField(err) {
			return nil, ErrInvalidSortField
		}

		return nil, fmt.Errorf("failed to list actions: %w", err)
	}

	return &ListActionsResponse{
		Actions:     result.Actions,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

func (s *Action) validateListRequest(req *ListActionsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "updated_at"}
	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	if req.State != nil && !req.State.Valid() {
		return NewValidationError(
			"validateListRequest",
			"INVALID_STATE",
			fmt.Sprintf("invalid state '%s'", *req.State),
			ErrInvalidState,
		)
	}

	if req.Kind != nil && !req.Kind.Valid() {
		return NewValidationError(
			"validateListRequest",
			"INVALID_KIND",
			fmt.Sprintf("invalid kind '%s'", *req.Kind),
			ErrInvalidKind,
		)
	}

	return nil
}

// Summary returns per-state counts of live actions.
func (s *Action) Summary(ctx context.Context) (persistence.StateCounts, error) {
	counts, err := s.persistence.ActionRepository().CountByState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count actions: %w", err)
	}

	return counts, nil
}

// Decisions returns the append-only approval ledger for one action.
func (s *Action) Decisions(ctx context.Context, actionID string) ([]*models.ApprovalDecision, error) {
	if _, err := s.FetchByID(ctx, actionID); err != nil {
		return nil, err
	}

	decisions, err := s.persistence.DecisionRepository().ListByAction(ctx, actionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}

	return decisions, nil
}

// Validate runs the evidence and rollback gate without changing anything.
func (s *Action) Validate(ctx context.Context, actionID string) (*approval.ValidationResult, error) {
	action, err := s.FetchByID(ctx, actionID)
	if err != nil {
		return nil, err
	}

	result := approval.Validate(action)

	return &result, nil
}

// Submit moves a draft into the review queue.
func (s *Action) Submit(ctx context.Context, actionID, actor string) (*models.Action, error) {
	return s.transition(ctx, actionID, approval.Request{Event: approval.EventSubmit, Actor: actor})
}

// Approve moves a reviewed action to approved. The evidence and rollback
// gate runs inside the machine; a missing field fails the whole transition.
func (s *Action) Approve(ctx context.Context, actionID, actor, reason string) (*models.Action, error) {
	return s.transition(ctx, actionID, approval.Request{Event: approval.EventApprove, Actor: actor, Reason: reason})
}

// Reject is terminal and requires a reason.
func (s *Action) Reject(ctx context.Context, actionID, actor, reason string) (*models.Action, error) {
	return s.transition(ctx, actionID, approval.Request{Event: approval.EventReject, Actor: actor, Reason: reason})
}

// RequestChanges keeps the action in review and resets its dry-run results.
func (s *Action) RequestChanges(ctx context.Context, actionID, actor, reason string) (*models.Action, error) {
	return s.transition(ctx, actionID, approval.Request{Event: approval.EventRequestChanges, Actor: actor, Reason: reason})
}

// Apply executes an approved action's endpoint calls. Unless skipDryRun is
// set, pending calls are dry-run first and every call must simulate clean
// before anything runs for real. The compare-and-swap decides the winner
// before any side effect fires, so a lost race never double-executes.
func (s *Action) Apply(ctx context.Context, actionID, actor string, skipDryRun bool) (*models.Action, error) {
	action, err := s.FetchByID(ctx, actionID)
	if err != nil {
		return nil, err
	}

	if action.State == models.ActionStateApproved && !skipDryRun && s.executor != nil {
		if err := s.executor.DryRun(ctx, action); err != nil {
			return nil, fmt.Errorf("failed to dry run action: %w", err)
		}

		// Record the statuses even if the gate below rejects the apply.
		if err := s.persistence.ActionRepository().Save(ctx, action); err != nil {
			return nil, fmt.Errorf("failed to save dry run results: %w", err)
		}
	}

	action, err = s.applyTransition(ctx, action, approval.Request{
		Event:      approval.EventApply,
		Actor:      actor,
		SkipDryRun: skipDryRun,
	})
	if err != nil {
		return nil, err
	}

	if s.executor != nil {
		receipts, execErr := s.executor.Execute(ctx, action)
		action.Receipts = append(action.Receipts, receipts...)

		if err := s.persistence.ActionRepository().Save(ctx, action); err != nil {
			return nil, fmt.Errorf("failed to save receipts: %w", err)
		}

		if execErr != nil {
			// The transition already won; the receipts record how far
			// execution got and the audit step surfaces the failure.
			s.logger.ErrorContext(ctx, "apply executed with failing calls",
				"action_id", action.ID, "receipts", len(receipts), "error", execErr)
		}
	}

	return action, nil
}

// Audit confirms the applied action's receipts were reviewed.
func (s *Action) Audit(ctx context.Context, actionID, actor string) (*models.Action, error) {
	return s.transition(ctx, actionID, approval.Request{Event: approval.EventAudit, Actor: actor})
}

// Learn closes the loop: the action's realized outcomes now feed ranking.
func (s *Action) Learn(ctx context.Context, actionID, actor string) (*models.Action, error) {
	return s.transition(ctx, actionID, approval.Request{Event: approval.EventLearn, Actor: actor})
}

func (s *Action) transition(ctx context.Context, actionID string, req approval.Request) (*models.Action, error) {
	action, err := s.FetchByID(ctx, actionID)
	if err != nil {
		return nil, err
	}

	return s.applyTransition(ctx, action, req)
}

// applyTransition runs the machine against the loaded snapshot and persists
// the result with a compare-and-swap on the snapshot's version. A lost race
// re-reads and reports the actual current state.
func (s *Action) applyTransition(ctx context.Context, action *models.Action, req approval.Request) (*models.Action, error) {
	expectedVersion := action.Version

	req.Action = action

	decision, err := s.machine.Apply(req)
	if err != nil {
		return nil, err
	}

	err = s.persistence.ActionRepository().CompareAndSwap(ctx, action, expectedVersion)
	if err != nil {
		if persistence.IsVersionConflict(err) {
			current, readErr := s.persistence.ActionRepository().GetByID(ctx, action.ID)
			if readErr != nil || current == nil {
				return nil, err
			}

			return nil, &approval.InvalidTransitionError{
				ActionID: action.ID,
				Current:  current.State,
				Event:    req.Event,
			}
		}

		return nil, fmt.Errorf("failed to persist transition: %w", err)
	}

	if err := s.persistence.DecisionRepository().Append(ctx, decision); err != nil {
		return nil, fmt.Errorf("failed to append decision: %w", err)
	}

	s.publishTransition(ctx, action, decision)
	s.invalidateRankings(ctx)

	return action, nil
}

func (s *Action) publishTransition(ctx context.Context, action *models.Action, decision *models.ApprovalDecision) {
	if s.publisher == nil {
		return
	}

	event := events.ActionTransitioned{
		BaseEvent: events.NewBaseEvent(events.TransitionEventType(decision.Event), action.ID),
		Kind:      action.Kind,
		FromState: decision.FromState,
		ToState:   decision.ToState,
		Actor:     decision.Actor,
		Reason:    decision.Reason,
	}

	if err := s.publisher.Publish(ctx, action.ID, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish transition event",
			"action_id", action.ID, "event", decision.Event, "error", err)
	}
}

func (s *Action) invalidateRankings(ctx context.Context) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Invalidate(ctx, RankCachePrefix); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate ranking cache", "error", err)
	}
}
