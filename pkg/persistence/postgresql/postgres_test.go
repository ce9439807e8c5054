package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/hotdash/actionqueue/pkg/models"
	"github.com/hotdash/actionqueue/pkg/persistence"
	"github.com/hotdash/actionqueue/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"approval_decisions", "actions", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("actionqueue_test"),
			postgres.WithUsername("actionqueue"),
			postgres.WithPassword("actionqueue"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func testAction(kind models.ActionKind) *models.Action {
	return &models.Action{
		ID:    uuid.NewString(),
		Kind:  kind,
		State: models.ActionStateDraft,
		Draft: "Reply to ticket #4821 with restock ETA",
		Agent: "cx-agent",
		Evidence: models.Evidence{
			WhatChanges: "Sends one templated reply to the customer",
			WhyNow:      "Ticket is 18 hours old",
		},
		Rollback: models.Rollback{
			Steps: []string{"Send follow-up correction"},
		},
		RankingFactors: models.RankingFactors{
			ExpectedImpact: 1000,
			Confidence:     0.8,
			Ease:           0.9,
			FreshnessDays:  0,
			RiskScore:      0.1,
		},
		Calls: []models.EndpointCall{
			{Name: "send_reply", Endpoint: "/tickets/4821/reply", Method: "POST", DryRunStatus: models.DryRunPending},
		},
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'actions')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "actions table should exist")

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'approval_decisions')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "approval_decisions table should exist")

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestNewPersistence_SaveAndRetrieveAction(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	action := testAction(models.ActionKindCXReply)

	err := p.ActionRepository().Save(ctx, action)
	require.NoError(t, err)
	assert.False(t, action.CreatedAt.IsZero())
	assert.False(t, action.UpdatedAt.IsZero())
	assert.Equal(t, int64(1), action.Version)

	retrieved, err := p.ActionRepository().GetByID(ctx, action.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, action.ID, retrieved.ID)
	assert.Equal(t, action.Kind, retrieved.Kind)
	assert.Equal(t, action.State, retrieved.State)
	assert.Equal(t, action.Draft, retrieved.Draft)
	assert.Equal(t, action.Agent, retrieved.Agent)
	assert.Equal(t, action.Evidence.WhatChanges, retrieved.Evidence.WhatChanges)
	assert.Equal(t, action.Rollback.Steps, retrieved.Rollback.Steps)
	assert.Len(t, retrieved.Calls, 1)
	assert.Equal(t, models.DryRunPending, retrieved.Calls[0].DryRunStatus)

	notFound, err := p.ActionRepository().GetByID(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, notFound)
}

func TestNewPersistence_CompareAndSwap(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	action := testAction(models.ActionKindInventory)

	err := p.ActionRepository().Save(ctx, action)
	require.NoError(t, err)

	action.State = models.ActionStatePendingReview
	action.UpdatedAt = time.Now().UTC()

	err = p.ActionRepository().CompareAndSwap(ctx, action, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), action.Version)

	// A second writer holding the stale version loses the race.
	stale := testAction(models.ActionKindInventory)
	stale.ID = action.ID
	stale.State = models.ActionStateApproved
	stale.UpdatedAt = time.Now().UTC()

	err = p.ActionRepository().CompareAndSwap(ctx, stale, 1)
	require.Error(t, err)
	assert.True(t, persistence.IsVersionConflict(err))

	retrieved, err := p.ActionRepository().GetByID(ctx, action.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, models.ActionStatePendingReview, retrieved.State)
	assert.Equal(t, int64(2), retrieved.Version)

	missing := testAction(models.ActionKindInventory)
	missing.UpdatedAt = time.Now().UTC()

	err = p.ActionRepository().CompareAndSwap(ctx, missing, 1)
	require.Error(t, err)
	assert.True(t, persistence.IsActionNotFound(err))
}

func TestNewPersistence_CompareAndSwapKeepsRefreshedROI(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	action := testAction(models.ActionKindInventory)
	action.State = models.ActionStateApproved

	err := p.ActionRepository().Save(ctx, action)
	require.NoError(t, err)

	// A transition reads its snapshot before the attribution refresh lands.
	snapshot, err := p.ActionRepository().GetByID(ctx, action.ID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	err = p.ActionRepository().UpdateRealizedROI(ctx, action.ID, models.Window7d, 120)
	require.NoError(t, err)

	snapshot.State = models.ActionStateApplied
	snapshot.UpdatedAt = time.Now().UTC()

	err = p.ActionRepository().CompareAndSwap(ctx, snapshot, 1)
	require.NoError(t, err)

	retrieved, err := p.ActionRepository().GetByID(ctx, action.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, models.ActionStateApplied, retrieved.State)
	assert.InDelta(t, 120, retrieved.RealizedROI[models.Window7d], 0.0001)

	// A plain Save of a stale snapshot must not clobber it either.
	snapshot.RealizedROI = nil
	err = p.ActionRepository().Save(ctx, snapshot)
	require.NoError(t, err)

	retrieved, err = p.ActionRepository().GetByID(ctx, action.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.InDelta(t, 120, retrieved.RealizedROI[models.Window7d], 0.0001)
}

func TestNewPersistence_ListActions(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	first := testAction(models.ActionKindCXReply)
	second := testAction(models.ActionKindSEO)
	second.State = models.ActionStatePendingReview
	second.Agent = "seo-agent"

	for _, action := range []*models.Action{first, second} {
		err := p.ActionRepository().Save(ctx, action)
		require.NoError(t, err)
	}

	result, err := p.ActionRepository().List(ctx, persistence.ListActionsOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalCount)
	assert.Len(t, result.Actions, 2)
	assert.False(t, result.HasNextPage)

	state := models.ActionStatePendingReview
	result, err = p.ActionRepository().List(ctx, persistence.ListActionsOptions{State: &state})
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, second.ID, result.Actions[0].ID)

	result, err = p.ActionRepository().List(ctx, persistence.ListActionsOptions{Agent: "seo-agent"})
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, second.ID, result.Actions[0].ID)

	_, err = p.ActionRepository().List(ctx, persistence.ListActionsOptions{SortBy: "draft"})
	require.Error(t, err)
	assert.True(t, persistence.IsInvalidSortField(err))
}

func TestNewPersistence_DeleteAction(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	action := testAction(models.ActionKindGrowth)

	err := p.ActionRepository().Save(ctx, action)
	require.NoError(t, err)

	err = p.ActionRepository().Delete(ctx, action.ID)
	require.NoError(t, err)

	deleted, err := p.ActionRepository().GetByID(ctx, action.ID)
	require.NoError(t, err)
	assert.Nil(t, deleted)

	err = p.ActionRepository().Delete(ctx, uuid.NewString())
	require.Error(t, err)
	assert.True(t, persistence.IsActionNotFound(err))
}

func TestNewPersistence_CountByState(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	first := testAction(models.ActionKindCXReply)
	second := testAction(models.ActionKindCXReply)
	second.State = models.ActionStatePendingReview

	for _, action := range []*models.Action{first, second} {
		err := p.ActionRepository().Save(ctx, action)
		require.NoError(t, err)
	}

	counts, err := p.ActionRepository().CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.ActionStateDraft])
	assert.Equal(t, int64(1), counts[models.ActionStatePendingReview])
}

func TestNewPersistence_RealizedROIAndSuccessRates(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	winner := testAction(models.ActionKindPricing)
	winner.State = models.ActionStateLearned
	loser := testAction(models.ActionKindPricing)
	loser.State = models.ActionStateLearned

	for _, action := range []*models.Action{winner, loser} {
		err := p.ActionRepository().Save(ctx, action)
		require.NoError(t, err)
	}

	err := p.ActionRepository().UpdateRealizedROI(ctx, winner.ID, models.Window28d, 320.5)
	require.NoError(t, err)

	err = p.ActionRepository().UpdateRealizedROI(ctx, loser.ID, models.Window28d, -40)
	require.NoError(t, err)

	retrieved, err := p.ActionRepository().GetByID(ctx, winner.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.InDelta(t, 320.5, retrieved.RealizedROI[models.Window28d], 0.001)

	rates, err := p.ActionRepository().SuccessRates(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rates[models.ActionKindPricing], 0.001)

	err = p.ActionRepository().UpdateRealizedROI(ctx, uuid.NewString(), models.Window7d, 10)
	require.Error(t, err)
	assert.True(t, persistence.IsActionNotFound(err))
}

func TestNewPersistence_PendingAttribution(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	older := testAction(models.ActionKindAds)
	older.State = models.ActionStateApplied
	older.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)

	newer := testAction(models.ActionKindAds)
	newer.State = models.ActionStateApproved
	newer.CreatedAt = time.Now().UTC().Add(-24 * time.Hour)

	learned := testAction(models.ActionKindAds)
	learned.State = models.ActionStateLearned

	for _, action := range []*models.Action{newer, older, learned} {
		err := p.ActionRepository().Save(ctx, action)
		require.NoError(t, err)
	}

	pending, err := p.ActionRepository().PendingAttribution(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, older.ID, pending[0].ID)
	assert.Equal(t, newer.ID, pending[1].ID)
}

func TestNewPersistence_DecisionLedger(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	action := testAction(models.ActionKindContent)

	err := p.ActionRepository().Save(ctx, action)
	require.NoError(t, err)

	first := &models.ApprovalDecision{
		ActionID:  action.ID,
		Event:     models.DecisionSubmit,
		FromState: models.ActionStateDraft,
		ToState:   models.ActionStatePendingReview,
		Actor:     "cx-agent",
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	}
	second := &models.ApprovalDecision{
		ActionID:  action.ID,
		Event:     models.DecisionApprove,
		FromState: models.ActionStatePendingReview,
		ToState:   models.ActionStateApproved,
		Actor:     "merchant",
		Reason:    "looks safe",
	}

	for _, decision := range []*models.ApprovalDecision{first, second} {
		err := p.DecisionRepository().Append(ctx, decision)
		require.NoError(t, err)
		assert.NotEmpty(t, decision.ID)
	}

	ledger, err := p.DecisionRepository().ListByAction(ctx, action.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, models.DecisionSubmit, ledger[0].Event)
	assert.Equal(t, models.DecisionApprove, ledger[1].Event)
	assert.Equal(t, "looks safe", ledger[1].Reason)
}
