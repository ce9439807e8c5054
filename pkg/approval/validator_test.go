package approval

import (
	"testing"

	"github.com/hotdash/actionqueue/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Complete(t *testing.T) {
	action := &models.Action{
		Evidence: models.Evidence{WhatChanges: "Drop hero image weight by 40%"},
		Rollback: models.Rollback{Steps: []string{"restore previous asset"}},
	}

	result := Validate(action)
	assert.True(t, result.OK)
	assert.Empty(t, result.Violations)
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	action := &models.Action{}

	result := Validate(action)
	require.False(t, result.OK)
	require.Len(t, result.Violations, 2)

	assert.Equal(t, []string{"evidence.what_changes", "rollback.steps"}, result.MissingFields())
	assert.ErrorIs(t, result.Violations[0].Err, ErrMissingEvidence)
	assert.ErrorIs(t, result.Violations[1].Err, ErrMissingRollback)
}

func TestValidate_WhitespaceEvidence(t *testing.T) {
	action := &models.Action{
		Evidence: models.Evidence{WhatChanges: "   "},
		Rollback: models.Rollback{Steps: []string{"disable flag"}},
	}

	result := Validate(action)
	require.False(t, result.OK)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "evidence.what_changes", result.Violations[0].Field)
}

func TestValidate_Pure(t *testing.T) {
	action := &models.Action{State: models.ActionStatePendingReview}

	before := *action
	_ = Validate(action)

	assert.Equal(t, before, *action)
}
