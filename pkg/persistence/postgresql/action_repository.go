package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hotdash/actionqueue/pkg/models"
	"github.com/hotdash/actionqueue/pkg/persistence"
)

const actionColumns = `
	id
  , kind
  , state
  , draft
  , agent
  , evidence
  , impact
  , risk
  , rollback
  , ranking_factors
  , realized_roi
  , calls
  , receipts
  , approved_by
  , applied_by
  , version
  , created_at
  , updated_at
  , deleted_at
`

// ActionRepository handles action-related database operations.
type ActionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewActionRepository creates a new action repository.
func NewActionRepository(db *sql.DB, logger *slog.Logger) *ActionRepository {
	return &ActionRepository{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ActionRepository) scanAction(row rowScanner) (*models.Action, error) {
	var (
		action       models.Action
		agent        sql.NullString
		approvedBy   sql.NullString
		appliedBy    sql.NullString
		deletedAt    sql.NullTime
		evidenceJSON []byte
		impactJSON   []byte
		riskJSON     []byte
		rollbackJSON []byte
		rankingJSON  []byte
		realizedJSON []byte
		callsJSON    []byte
		receiptsJSON []byte
	)

	err := row.Scan(
		&action.ID,
		&action.Kind,
		&action.State,
		&action.Draft,
		&agent,
		&evidenceJSON,
		&impactJSON,
		&riskJSON,
		&rollbackJSON,
		&rankingJSON,
		&realizedJSON,
		&callsJSON,
		&receiptsJSON,
		&approvedBy,
		&appliedBy,
		&action.Version,
		&action.CreatedAt,
		&action.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	action.Agent = agent.String
	action.ApprovedBy = approvedBy.String
	action.AppliedBy = appliedBy.String

	if deletedAt.Valid {
		action.DeletedAt = &deletedAt.Time
	}

	for _, field := range []struct {
		data   []byte
		target any
	}{
		{evidenceJSON, &action.Evidence},
		{impactJSON, &action.Impact},
		{riskJSON, &action.Risk},
		{rollbackJSON, &action.Rollback},
		{rankingJSON, &action.RankingFactors},
		{realizedJSON, &action.RealizedROI},
		{callsJSON, &action.Calls},
		{receiptsJSON, &action.Receipts},
	} {
		if len(field.data) == 0 {
			continue
		}

		if err := json.Unmarshal(field.data, field.target); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action %s field: %w", action.ID, err)
		}
	}

	return &action, nil
}

func marshalActionFields(action *models.Action) (evidence, impact, risk, rollback, ranking, realized, calls, receipts []byte, err error) {
	for _, field := range []struct {
		source any
		target *[]byte
	}{
		{action.Evidence, &evidence},
		{action.Impact, &impact},
		{action.Risk, &risk},
		{action.Rollback, &rollback},
		{action.RankingFactors, &ranking},
		{action.RealizedROI, &realized},
		{action.Calls, &calls},
		{action.Receipts, &receipts},
	} {
		data, marshalErr := json.Marshal(field.source)
		if marshalErr != nil {
			err = fmt.Errorf("failed to marshal action field: %w", marshalErr)

			return
		}

		*field.target = data
	}

	return
}

// List returns paginated and filtered actions.
func (r *ActionRepository) List(ctx context.Context, opts persistence.ListActionsOptions) (*persistence.ListActionsResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[opts.SortBy] {
		return nil, persistence.NewActionError("List", "", persistence.ErrInvalidSortField)
	}

	order := "DESC"
	if strings.EqualFold(opts.SortOrder, "asc") {
		order = "ASC"
	}

	where := []string{"deleted_at IS NULL"}
	args := []any{}

	if opts.State != nil {
		args = append(args, string(*opts.State))
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}

	if opts.Kind != nil {
		args = append(args, string(*opts.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}

	if opts.Agent != "" {
		args = append(args, opts.Agent)
		where = append(where, fmt.Sprintf("agent = $%d", len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var totalCount int64

	countQuery := "SELECT COUNT(*) FROM actions WHERE " + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count actions: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(
		"SELECT %s FROM actions WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		actionColumns, whereClause, opts.SortBy, order, len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	actions := make([]*models.Action, 0, opts.Limit)

	for rows.Next() {
		action, err := r.scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return &persistence.ListActionsResult{
		Actions:     actions,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(actions)) < totalCount,
	}, nil
}

func (r *ActionRepository) GetByID(ctx context.Context, id string) (*models.Action, error) {
	query := fmt.Sprintf("SELECT %s FROM actions WHERE id = $1 AND deleted_at IS NULL", actionColumns)

	action, err := r.scanAction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan action: %w", err)
	}

	return action, nil
}

// Save inserts or fully replaces an action without touching its version.
// realized_roi is written on insert only; updates to it go through
// UpdateRealizedROI so a concurrent refresh is never overwritten.
func (r *ActionRepository) Save(ctx context.Context, action *models.Action) error {
	now := time.Now().UTC()

	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}

	action.UpdatedAt = now

	if action.Version == 0 {
		action.Version = 1
	}

	evidence, impact, risk, rollback, ranking, realized, calls, receipts, err := marshalActionFields(action)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO actions (id, kind, state, draft, agent, evidence, impact, risk, rollback,
			ranking_factors, realized_roi, calls, receipts, approved_by, applied_by, version,
			created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			state = EXCLUDED.state,
			draft = EXCLUDED.draft,
			agent = EXCLUDED.agent,
			evidence = EXCLUDED.evidence,
			impact = EXCLUDED.impact,
			risk = EXCLUDED.risk,
			rollback = EXCLUDED.rollback,
			ranking_factors = EXCLUDED.ranking_factors,
			calls = EXCLUDED.calls,
			receipts = EXCLUDED.receipts,
			approved_by = EXCLUDED.approved_by,
			applied_by = EXCLUDED.applied_by,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = r.db.ExecContext(ctx, query,
		action.ID,
		action.Kind,
		action.State,
		action.Draft,
		nullable(action.Agent),
		evidence,
		impact,
		risk,
		rollback,
		ranking,
		realized,
		calls,
		receipts,
		nullable(action.ApprovedBy),
		nullable(action.AppliedBy),
		action.Version,
		action.CreatedAt,
		action.UpdatedAt,
		action.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save action %s: %w", action.ID, err)
	}

	return nil
}

// CompareAndSwap persists a transition only when the stored version still
// matches. The UPDATE's WHERE clause is the whole locking story: zero rows
// affected means either a lost race or a missing action.
func (r *ActionRepository) CompareAndSwap(ctx context.Context, action *models.Action, expectedVersion int64) error {
	_, _, _, _, _, _, calls, receipts, err := marshalActionFields(action)
	if err != nil {
		return err
	}

	action.Version = expectedVersion + 1

	// realized_roi is excluded from the write set: no transition mutates it,
	// and attribution upserts it without bumping the version. Writing the
	// snapshot here would clobber a refresh that landed since our read.
	query := `
		UPDATE actions SET
			state = $1,
			calls = $2,
			receipts = $3,
			approved_by = $4,
			applied_by = $5,
			version = $6,
			updated_at = $7
		WHERE id = $8 AND version = $9 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		action.State,
		calls,
		receipts,
		nullable(action.ApprovedBy),
		nullable(action.AppliedBy),
		action.Version,
		action.UpdatedAt,
		action.ID,
		expectedVersion,
	)
	if err != nil {
		action.Version = expectedVersion

		return fmt.Errorf("failed to update action %s: %w", action.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected > 0 {
		return nil
	}

	action.Version = expectedVersion

	existing, err := r.GetByID(ctx, action.ID)
	if err != nil {
		return err
	}

	if existing == nil {
		return persistence.NewActionError("CompareAndSwap", action.ID, persistence.ErrActionNotFound)
	}

	return persistence.NewActionError("CompareAndSwap", action.ID, persistence.ErrVersionConflict)
}

// Delete soft deletes an action by setting deleted_at.
func (r *ActionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE actions SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return fmt.Errorf("failed to delete action %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewActionError("Delete", id, persistence.ErrActionNotFound)
	}

	return nil
}

func (r *ActionRepository) CountByState(ctx context.Context) (persistence.StateCounts, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT state, COUNT(*) FROM actions WHERE deleted_at IS NULL GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("failed to count actions by state: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	counts := make(persistence.StateCounts)

	for rows.Next() {
		var (
			state models.ActionState
			count int64
		)

		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan state count: %w", err)
		}

		counts[state] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating state counts: %w", err)
	}

	return counts, nil
}

// SuccessRates loads learned actions and computes positive-ROI shares in
// memory; the learned set stays small relative to the queue.
func (r *ActionRepository) SuccessRates(ctx context.Context) (map[models.ActionKind]float64, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM actions WHERE state = $1 AND deleted_at IS NULL",
		actionColumns,
	)

	rows, err := r.db.QueryContext(ctx, query, models.ActionStateLearned)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned actions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	learned := make(map[models.ActionKind]int)
	positive := make(map[models.ActionKind]int)

	for rows.Next() {
		action, err := r.scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		learned[action.Kind]++

		if _, roi, ok := action.LongestRealizedWindow(); ok && roi > 0 {
			positive[action.Kind]++
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating learned actions: %w", err)
	}

	rates := make(map[models.ActionKind]float64, len(learned))
	for kind, total := range learned {
		rates[kind] = float64(positive[kind]) / float64(total)
	}

	return rates, nil
}

func (r *ActionRepository) PendingAttribution(ctx context.Context) ([]*models.Action, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM actions
		WHERE state IN ('approved', 'applied', 'audited') AND deleted_at IS NULL
		ORDER BY created_at ASC
	`, actionColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query attribution candidates: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	actions := make([]*models.Action, 0)

	for rows.Next() {
		action, err := r.scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attribution candidates: %w", err)
	}

	return actions, nil
}

func (r *ActionRepository) UpdateRealizedROI(ctx context.Context, id string, window models.AttributionWindow, revenueDelta float64) error {
	query := `
		UPDATE actions SET
			realized_roi = COALESCE(realized_roi, '{}'::jsonb) || jsonb_build_object($2::text, $3::numeric),
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, string(window), revenueDelta)
	if err != nil {
		return fmt.Errorf("failed to update realized ROI for action %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewActionError("UpdateRealizedROI", id, persistence.ErrActionNotFound)
	}

	return nil
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
