package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/hotdash/actionqueue/pkg/models"
)

// DecisionRepository stores each Action's ledger as one JSON array under
// <root>/decisions/. Entries are only ever appended.
type DecisionRepository struct {
	root string
	mu   sync.Mutex
}

// NewDecisionRepository creates a new file-backed decision repository.
func NewDecisionRepository(root string) *DecisionRepository {
	return &DecisionRepository{root: root}
}

func (r *DecisionRepository) path(actionID string) string {
	return filepath.Join(r.root, "decisions", actionID+".json")
}

func (r *DecisionRepository) load(actionID string) ([]*models.ApprovalDecision, error) {
	data, err := os.ReadFile(r.path(actionID))
	if os.IsNotExist(err) {
		return []*models.ApprovalDecision{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read decision ledger: %w", err)
	}

	var decisions []*models.ApprovalDecision
	if err := json.Unmarshal(data, &decisions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision ledger for %s: %w", actionID, err)
	}

	return decisions, nil
}

func (r *DecisionRepository) Append(ctx context.Context, decision *models.ApprovalDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if decision.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate decision ID: %w", err)
		}

		decision.ID = id.String()
	}

	decisions, err := r.load(decision.ActionID)
	if err != nil {
		return err
	}

	decisions = append(decisions, decision)

	if err := os.MkdirAll(filepath.Join(r.root, "decisions"), 0o755); err != nil {
		return fmt.Errorf("failed to create decisions directory: %w", err)
	}

	data, err := json.MarshalIndent(decisions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal decision ledger: %w", err)
	}

	if err := os.WriteFile(r.path(decision.ActionID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write decision ledger: %w", err)
	}

	return nil
}

func (r *DecisionRepository) ListByAction(ctx context.Context, actionID string) ([]*models.ApprovalDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load(actionID)
}
