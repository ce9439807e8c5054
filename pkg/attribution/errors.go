// Package attribution refreshes realized-ROI observations from the external
// analytics collaborator and re-ranks the review queue when they change.
package attribution

import (
	"errors"
	"fmt"

	"github.com/hotdash/actionqueue/pkg/models"
)

// UnavailableError reports that every attribution window failed for one
// action. Partial failure never raises this; the nightly batch retries on
// its next run.
type UnavailableError struct {
	ActionID string
	Windows  []models.AttributionWindow
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("attribution unavailable for action %s: all %d windows failed", e.ActionID, len(e.Windows))
}

// IsUnavailable checks if an error is an UnavailableError.
func IsUnavailable(err error) bool {
	var target *UnavailableError

	return errors.As(err, &target)
}
