// Package file provides file-based persistence for Actions and their
// decision ledger. It backs local development and unit tests; production
// deployments use the postgresql package.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/hotdash/actionqueue/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root         string
	actionRepo   *ActionRepository
	decisionRepo *DecisionRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		actionRepo:   NewActionRepository(cleanRoot),
		decisionRepo: NewDecisionRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file persistence there is none.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) ActionRepository() persistence.ActionRepository {
	return p.actionRepo
}

func (p *Persistence) DecisionRepository() persistence.DecisionRepository {
	return p.decisionRepo
}
