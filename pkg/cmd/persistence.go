// Package cmd provides common initialization functions for the action queue
// binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hotdash/actionqueue/pkg/persistence"
	"github.com/hotdash/actionqueue/pkg/persistence/file"
	"github.com/hotdash/actionqueue/pkg/persistence/postgresql"
)

// NewPersistence selects the storage backend from the database URL scheme:
// postgres:// and postgresql:// get the SQL store, anything else is treated
// as a filesystem path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	scheme, _, found := strings.Cut(databaseURL, "://")

	if found && (scheme == "postgres" || scheme == "postgresql") {
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres persistence: %w", err)
		}

		return p, nil
	}

	return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
}
