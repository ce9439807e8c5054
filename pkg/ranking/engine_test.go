package ranking

import (
	"testing"
	"time"

	"github.com/hotdash/actionqueue/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankedIDs(ranked []Ranked) []string {
	ids := make([]string, 0, len(ranked))
	for _, entry := range ranked {
		ids = append(ids, entry.Action.ID)
	}

	return ids
}

func TestEngine_V1Arithmetic(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	action := &models.Action{
		ID: "a",
		RankingFactors: models.RankingFactors{
			ExpectedImpact: 1000,
			Confidence:     0.8,
			Ease:           0.9,
			FreshnessDays:  0,
			RiskScore:      0.1,
		},
	}

	// 1000*0.8*0.9 + bonus(0 days) - 0.1*1000*0.3 = 720 + 10 - 30.
	score := engine.Score(action, VersionV1Basic, nil)
	assert.InDelta(t, 700.0, score, 1e-9)
}

func TestEngine_FreshnessDecay(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	assert.InDelta(t, 10.0, engine.freshnessBonus(0), 1e-9)
	assert.InDelta(t, 5.0, engine.freshnessBonus(7), 1e-9)
	assert.InDelta(t, 0.0, engine.freshnessBonus(14), 1e-9)
	assert.InDelta(t, 0.0, engine.freshnessBonus(90), 1e-9)
}

func TestEngine_V2BlendsRealizedROI(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	action := &models.Action{
		ID: "a",
		RankingFactors: models.RankingFactors{
			ExpectedImpact: 1000,
			Confidence:     0.8,
			Ease:           0.9,
			FreshnessDays:  14,
			RiskScore:      0,
		},
	}

	// No realized ROI yet: 100% expected.
	expected := engine.Score(action, VersionV1Basic, nil)
	assert.InDelta(t, expected, engine.Score(action, VersionV2Hybrid, nil), 1e-9)

	action.SetRealizedROI(models.Window7d, 100)
	action.SetRealizedROI(models.Window28d, 500)

	// Longest window wins: 0.7*720 + 0.3*500.
	assert.InDelta(t, 0.7*720+0.3*500, engine.Score(action, VersionV2Hybrid, nil), 1e-9)
}

func TestEngine_V3SuccessMultiplier(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	action := &models.Action{
		ID:   "a",
		Kind: models.ActionKindSEO,
		RankingFactors: models.RankingFactors{
			ExpectedImpact: 1000,
			Confidence:     0.8,
			Ease:           0.9,
			FreshnessDays:  14,
		},
	}

	base := engine.Score(action, VersionV2Hybrid, nil)

	// No history: neutral multiplier.
	assert.InDelta(t, base, engine.Score(action, VersionV3ML, nil), 1e-9)

	// Perfect history: 1.5x, already at the clamp ceiling.
	rates := map[models.ActionKind]float64{models.ActionKindSEO: 1.0}
	assert.InDelta(t, base*1.5, engine.Score(action, VersionV3ML, rates), 1e-9)

	// Zero history: 0.5x floor.
	rates[models.ActionKindSEO] = 0.0
	assert.InDelta(t, base*0.5, engine.Score(action, VersionV3ML, rates), 1e-9)
}

func TestEngine_TieBreakByCreatedAt(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	t0 := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)

	factors := models.RankingFactors{ExpectedImpact: 100, Confidence: 0.5, Ease: 0.5, FreshnessDays: 14}

	older := &models.Action{ID: "older", CreatedAt: t0, RankingFactors: factors}
	newer := &models.Action{ID: "newer", CreatedAt: t1, RankingFactors: factors}

	// Feed newest-first to prove the tie-break reorders.
	ranked, _, err := engine.Rank([]*models.Action{newer, older}, VersionV1Basic, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"older", "newer"}, rankedIDs(ranked))
}

func TestRankedLess_TransitiveAcrossNearTies(t *testing.T) {
	t0 := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	// Chained near-ties with creation times running against the scores. A
	// raw epsilon comparison would call a~b and b~c equal but a>c, which
	// cycles once the time tie-break points the other way.
	a := Ranked{Score: 1.6e-9, Action: &models.Action{ID: "a", CreatedAt: t0.Add(2 * time.Hour)}}
	b := Ranked{Score: 0.8e-9, Action: &models.Action{ID: "b", CreatedAt: t0.Add(time.Hour)}}
	c := Ranked{Score: 0, Action: &models.Action{ID: "c", CreatedAt: t0}}

	assert.True(t, rankedLess(a, b))
	assert.True(t, rankedLess(b, c))
	assert.True(t, rankedLess(a, c))

	assert.False(t, rankedLess(b, a))
	assert.False(t, rankedLess(c, b))
	assert.False(t, rankedLess(c, a))
}

func TestEngine_Deterministic(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	base := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	actions := []*models.Action{
		{ID: "a", CreatedAt: base, RankingFactors: models.RankingFactors{ExpectedImpact: 500, Confidence: 0.9, Ease: 0.8}},
		{ID: "b", CreatedAt: base.Add(time.Hour), RankingFactors: models.RankingFactors{ExpectedImpact: 900, Confidence: 0.4, Ease: 0.6}},
		{ID: "c", CreatedAt: base.Add(2 * time.Hour), RankingFactors: models.RankingFactors{ExpectedImpact: 200, Confidence: 1.0, Ease: 1.0, RiskScore: 0.5}},
	}

	first, _, err := engine.Rank(actions, VersionV1Basic, nil)
	require.NoError(t, err)

	second, _, err := engine.Rank(actions, VersionV1Basic, nil)
	require.NoError(t, err)

	assert.Equal(t, rankedIDs(first), rankedIDs(second))

	// Input order preserved: Rank never mutates its input.
	assert.Equal(t, "a", actions[0].ID)
	assert.Equal(t, "b", actions[1].ID)
	assert.Equal(t, "c", actions[2].ID)
}

func TestEngine_EmptyInput(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	ranked, diagnostics, err := engine.Rank(nil, VersionV2Hybrid, nil)
	require.NoError(t, err)
	assert.Empty(t, ranked)
	assert.Empty(t, diagnostics)
}

func TestEngine_MissingFactorsFlagged(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	actions := []*models.Action{
		{ID: "complete", RankingFactors: models.RankingFactors{ExpectedImpact: 100, Confidence: 0.5, Ease: 0.5}},
		{ID: "partial", RankingFactors: models.RankingFactors{ExpectedImpact: 100}},
	}

	ranked, diagnostics, err := engine.Rank(actions, VersionV1Basic, nil)
	require.NoError(t, err)

	// Not dropped: both still rank.
	assert.Len(t, ranked, 2)

	require.Len(t, diagnostics, 2)
	assert.Equal(t, "partial", diagnostics[0].ActionID)
	assert.Equal(t, "confidence", diagnostics[0].Field)
	assert.Equal(t, "partial", diagnostics[1].ActionID)
	assert.Equal(t, "ease", diagnostics[1].Field)
}

func TestEngine_UnknownVersion(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	_, _, err := engine.Rank(nil, Version("v9_quantum"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownVersion)
}
