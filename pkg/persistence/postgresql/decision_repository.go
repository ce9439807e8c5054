package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hotdash/actionqueue/pkg/models"
)

// DecisionRepository persists the append-only approval decision ledger.
type DecisionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDecisionRepository(db *sql.DB, logger *slog.Logger) *DecisionRepository {
	return &DecisionRepository{db: db, logger: logger}
}

func (r *DecisionRepository) Append(ctx context.Context, decision *models.ApprovalDecision) error {
	if decision.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate decision id: %w", err)
		}

		decision.ID = id.String()
	}

	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO approval_decisions (id, action_id, event, from_state, to_state, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		decision.ID,
		decision.ActionID,
		decision.Event,
		decision.FromState,
		decision.ToState,
		decision.Actor,
		nullable(decision.Reason),
		decision.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append decision for action %s: %w", decision.ActionID, err)
	}

	return nil
}

func (r *DecisionRepository) ListByAction(ctx context.Context, actionID string) ([]*models.ApprovalDecision, error) {
	query := `
		SELECT id, action_id, event, from_state, to_state, actor, reason, created_at
		FROM approval_decisions
		WHERE action_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, actionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions for action %s: %w", actionID, err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	decisions := make([]*models.ApprovalDecision, 0)

	for rows.Next() {
		var (
			decision models.ApprovalDecision
			reason   sql.NullString
		)

		err := rows.Scan(
			&decision.ID,
			&decision.ActionID,
			&decision.Event,
			&decision.FromState,
			&decision.ToState,
			&decision.Actor,
			&reason,
			&decision.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}

		decision.Reason = reason.String
		decisions = append(decisions, &decision)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}

	return decisions, nil
}
