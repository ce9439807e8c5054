package services

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotdash/actionqueue/pkg/approval"
	"github.com/hotdash/actionqueue/pkg/cache"
	"github.com/hotdash/actionqueue/pkg/models"
	"github.com/hotdash/actionqueue/pkg/persistence/file"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeExecutor marks every call dry-run success and returns one receipt per
// call on execute.
type fakeExecutor struct {
	dryRuns  int
	executes int
}

func (f *fakeExecutor) DryRun(_ context.Context, action *models.Action) error {
	f.dryRuns++

	for i := range action.Calls {
		action.Calls[i].DryRunStatus = models.DryRunSuccess
	}

	return nil
}

func (f *fakeExecutor) Execute(_ context.Context, action *models.Action) ([]models.Receipt, error) {
	f.executes++

	receipts := make([]models.Receipt, 0, len(action.Calls))
	for _, call := range action.Calls {
		receipts = append(receipts, models.Receipt{CallName: call.Name, StatusCode: 200})
	}

	return receipts, nil
}

func newTestService(t *testing.T) (*Action, *fakeExecutor) {
	t.Helper()

	exec := &fakeExecutor{}
	service := NewAction(file.NewPersistence(t.TempDir()), exec, nil, cache.NewMemory(), testLogger())

	return service, exec
}

func createRequest() CreateActionRequest {
	return CreateActionRequest{
		Kind:  models.ActionKindCXReply,
		Draft: "Reply to ticket #4821 with restock ETA",
		Agent: "cx-agent",
		Evidence: models.Evidence{
			WhatChanges: "Sends one templated reply to the customer",
			WhyNow:      "Ticket is 18 hours old",
		},
		Rollback: models.Rollback{Steps: []string{"Send follow-up correction"}},
		Factors: models.RankingFactors{
			ExpectedImpact: 1000,
			Confidence:     0.8,
			Ease:           0.9,
			RiskScore:      0.1,
		},
		Calls: []models.EndpointCall{
			{Name: "send_reply", Endpoint: "/tickets/4821/reply", Method: "POST"},
		},
	}
}

func TestAction_Create(t *testing.T) {
	service, _ := newTestService(t)

	action, err := service.Create(t.Context(), createRequest())
	require.NoError(t, err)
	require.NotNil(t, action)

	assert.NotEmpty(t, action.ID)
	assert.Equal(t, models.ActionStateDraft, action.State)
	assert.Equal(t, int64(1), action.Version)
	assert.Equal(t, models.DryRunPending, action.Calls[0].DryRunStatus)
	assert.False(t, action.CreatedAt.IsZero())
}

func TestAction_CreateValidation(t *testing.T) {
	service, _ := newTestService(t)

	req := createRequest()
	req.Kind = "bogus"

	_, err := service.Create(t.Context(), req)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	req = createRequest()
	req.Draft = "  "

	_, err = service.Create(t.Context(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDraftRequired)

	req = createRequest()
	req.Agent = ""

	_, err = service.Create(t.Context(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyAgent)
}

func TestAction_FullLifecycle(t *testing.T) {
	service, exec := newTestService(t)

	action, err := service.Create(t.Context(), createRequest())
	require.NoError(t, err)

	action, err = service.Submit(t.Context(), action.ID, "cx-agent")
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatePendingReview, action.State)

	action, err = service.Approve(t.Context(), action.ID, "merchant", "")
	require.NoError(t, err)
	assert.Equal(t, models.ActionStateApproved, action.State)
	assert.Equal(t, "merchant", action.ApprovedBy)

	action, err = service.Apply(t.Context(), action.ID, "merchant", false)
	require.NoError(t, err)
	assert.Equal(t, models.ActionStateApplied, action.State)
	assert.Equal(t, 1, exec.dryRuns)
	assert.Equal(t, 1, exec.executes)
	require.Len(t, action.Receipts, 1)
	assert.Equal(t, "send_reply", action.Receipts[0].CallName)

	action, err = service.Audit(t.Context(), action.ID, "merchant")
	require.NoError(t, err)
	assert.Equal(t, models.ActionStateAudited, action.State)

	action, err = service.Learn(t.Context(), action.ID, "system")
	require.NoError(t, err)
	assert.Equal(t, models.ActionStateLearned, action.State)

	ledger, err := service.Decisions(t.Context(), action.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 5)
	assert.Equal(t, models.DecisionSubmit, ledger[0].Event)
	assert.Equal(t, models.DecisionLearn, ledger[4].Event)
}

func TestAction_RejectRequiresReason(t *testing.T) {
	service, _ := newTestService(t)

	action, err := service.Create(t.Context(), createRequest())
	require.NoError(t, err)

	_, err = service.Submit(t.Context(), action.ID, "cx-agent")
	require.NoError(t, err)

	_, err = service.Reject(t.Context(), action.ID, "merchant", "")
	require.Error(t, err)
	assert.True(t, approval.IsPreconditionFailed(err))

	rejected, err := service.Reject(t.Context(), action.ID, "merchant", "duplicate of another action")
	require.NoError(t, err)
	assert.Equal(t, models.ActionStateRejected, rejected.State)

	// Terminal: nothing moves a rejected action.
	_, err = service.Submit(t.Context(), action.ID, "cx-agent")
	require.Error(t, err)
	assert.True(t, approval.IsInvalidTransition(err))
}

func TestAction_ConcurrentApproveSingleWinner(t *testing.T) {
	service, _ := newTestService(t)

	action, err := service.Create(t.Context(), createRequest())
	require.NoError(t, err)

	_, err = service.Submit(t.Context(), action.ID, "cx-agent")
	require.NoError(t, err)

	var wg sync.WaitGroup

	errs := make([]error, 2)

	for i := range errs {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			_, errs[i] = service.Approve(context.Background(), action.ID, "merchant", "")
		}(i)
	}

	wg.Wait()

	var wins, conflicts int

	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case approval.IsInvalidTransition(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, wins, "exactly one approve should win")
	assert.Equal(t, 1, conflicts, "the loser should see an invalid transition")

	current, err := service.FetchByID(t.Context(), action.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionStateApproved, current.State)
	assert.Equal(t, int64(3), current.Version)
}

func TestAction_LostRaceReportsCurrentState(t *testing.T) {
	service, _ := newTestService(t)

	action, err := service.Create(t.Context(), createRequest())
	require.NoError(t, err)

	_, err = service.Submit(t.Context(), action.ID, "cx-agent")
	require.NoError(t, err)

	_, err = service.Approve(t.Context(), action.ID, "merchant", "")
	require.NoError(t, err)

	// A second approve sees the already-approved state, not the stale one.
	_, err = service.Approve(t.Context(), action.ID, "other-merchant", "")
	require.Error(t, err)

	var transitionErr *approval.InvalidTransitionError

	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, models.ActionStateApproved, transitionErr.Current)
}

func TestAction_ApplySkipDryRun(t *testing.T) {
	service, exec := newTestService(t)

	action, err := service.Create(t.Context(), createRequest())
	require.NoError(t, err)

	_, err = service.Submit(t.Context(), action.ID, "cx-agent")
	require.NoError(t, err)

	_, err = service.Approve(t.Context(), action.ID, "merchant", "")
	require.NoError(t, err)

	applied, err := service.Apply(t.Context(), action.ID, "merchant", true)
	require.NoError(t, err)
	assert.Equal(t, models.ActionStateApplied, applied.State)
	assert.Equal(t, 0, exec.dryRuns)
	assert.Equal(t, models.DryRunSkipped, applied.Calls[0].DryRunStatus)
}

func TestAction_Summary(t *testing.T) {
	service, _ := newTestService(t)

	first, err := service.Create(t.Context(), createRequest())
	require.NoError(t, err)

	_, err = service.Create(t.Context(), createRequest())
	require.NoError(t, err)

	_, err = service.Submit(t.Context(), first.ID, "cx-agent")
	require.NoError(t, err)

	counts, err := service.Summary(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.ActionStateDraft])
	assert.Equal(t, int64(1), counts[models.ActionStatePendingReview])
}

func TestAction_ValidateCollectsAllViolations(t *testing.T) {
	service, _ := newTestService(t)

	req := createRequest()
	req.Evidence.WhatChanges = ""
	req.Rollback = models.Rollback{}

	action, err := service.Create(t.Context(), req)
	require.NoError(t, err)

	result, err := service.Validate(t.Context(), action.ID)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, []string{"evidence.what_changes", "rollback.steps"}, result.MissingFields())
}

func TestAction_FetchByIDNotFound(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.FetchByID(t.Context(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActionNotFound)
}
