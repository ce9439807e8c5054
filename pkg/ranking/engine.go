// Package ranking computes deterministic orderings of pending Actions so
// operators always review the highest-leverage proposal first.
package ranking

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/hotdash/actionqueue/pkg/models"
)

// Version selects one of the scoring algorithms. Versions coexist so two can
// be compared against each other on live data.
type Version string

const (
	VersionV1Basic  Version = "v1_basic"
	VersionV2Hybrid Version = "v2_hybrid"
	VersionV3ML     Version = "v3_ml"
)

// ErrUnknownVersion is returned for a ranking version not in the table.
var ErrUnknownVersion = errors.New("unknown ranking version")

// Valid reports whether the version is one of the selectable algorithms.
func (v Version) Valid() bool {
	return v == VersionV1Basic || v == VersionV2Hybrid || v == VersionV3ML
}

// epsilon is the width of a score bucket; scores in the same bucket count
// as equal and the tie-break applies.
const epsilon = 1e-9

func scoreBucket(score float64) int64 {
	return int64(math.Round(score / epsilon))
}

// rankedLess orders by score bucket descending, then CreatedAt ascending.
// Comparing buckets instead of raw epsilon differences keeps the order
// transitive when each score in a chain sits within epsilon of the next.
func rankedLess(a, b Ranked) bool {
	abucket, bbucket := scoreBucket(a.Score), scoreBucket(b.Score)
	if abucket != bbucket {
		return abucket > bbucket
	}

	return a.Action.CreatedAt.Before(b.Action.CreatedAt)
}

// Config holds the tunable weights. The defaults mirror what the operator
// dashboard shipped with; treat them as starting points, not business rules.
type Config struct {
	// FreshnessWindowDays is the linear decay window for the freshness
	// bonus: a proposal FreshnessWindowDays old or older gets no bonus.
	FreshnessWindowDays int

	// FreshnessMaxBonus is the bonus for a proposal created today.
	FreshnessMaxBonus float64

	// RiskWeight scales the risk penalty (riskScore x expectedImpact x RiskWeight).
	RiskWeight float64

	// ExpectedWeight and RealizedWeight blend expected and realized ROI in
	// v2_hybrid. They should sum to 1.
	ExpectedWeight float64
	RealizedWeight float64

	// MinSuccessMultiplier and MaxSuccessMultiplier clamp the v3_ml
	// historical success-rate multiplier.
	MinSuccessMultiplier float64
	MaxSuccessMultiplier float64
}

// DefaultConfig returns the shipped weights.
func DefaultConfig() Config {
	return Config{
		FreshnessWindowDays:  14,
		FreshnessMaxBonus:    10,
		RiskWeight:           0.3,
		ExpectedWeight:       0.7,
		RealizedWeight:       0.3,
		MinSuccessMultiplier: 0.5,
		MaxSuccessMultiplier: 1.5,
	}
}

// Ranked pairs an Action with its computed score.
type Ranked struct {
	Action *models.Action `json:"action"`
	Score  float64        `json:"score"`
}

// Diagnostic flags an Action whose ranking factors were incomplete. The
// Action still ranks (the missing factor scores as zero) but callers surface
// the gap instead of silently dropping the row.
type Diagnostic struct {
	ActionID string `json:"action_id"`
	Field    string `json:"field"`
}

// Engine computes deterministic total orderings. Stateless and
// side-effect-free: safe for concurrent use, reproducible from the snapshot
// passed in.
type Engine struct {
	cfg Config
}

// NewEngine creates a ranking engine with the given weights.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Rank orders actions by descending score under the selected version.
// successRates is only consulted by v3_ml: it maps each kind to the share of
// learned Actions of that kind with positive realized ROI; missing kinds
// default to 0.5 (a neutral multiplier).
//
// Scores falling in the same epsilon bucket count as equal and order by
// CreatedAt ascending so older proposals surface first. The input slice is
// never mutated; an empty input yields an empty output.
func (e *Engine) Rank(
	actions []*models.Action,
	version Version,
	successRates map[models.ActionKind]float64,
) ([]Ranked, []Diagnostic, error) {
	if !version.Valid() {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}

	ranked := make([]Ranked, 0, len(actions))
	diagnostics := make([]Diagnostic, 0)

	for _, action := range actions {
		diagnostics = append(diagnostics, e.diagnose(action)...)
		ranked = append(ranked, Ranked{
			Action: action,
			Score:  e.Score(action, version, successRates),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return rankedLess(ranked[i], ranked[j])
	})

	return ranked, diagnostics, nil
}

// Score computes one Action's score under the selected version.
func (e *Engine) Score(action *models.Action, version Version, successRates map[models.ActionKind]float64) float64 {
	switch version {
	case VersionV1Basic:
		return e.scoreV1(action)
	case VersionV2Hybrid:
		return e.scoreV2(action)
	case VersionV3ML:
		return e.scoreV2(action) * e.successMultiplier(action.Kind, successRates)
	}

	return 0
}

// scoreV1: expectedImpact x confidence x ease + freshnessBonus - riskPenalty.
func (e *Engine) scoreV1(action *models.Action) float64 {
	factors := action.RankingFactors
	base := factors.ExpectedImpact * factors.Confidence * factors.Ease
	penalty := factors.RiskScore * factors.ExpectedImpact * e.cfg.RiskWeight

	return base + e.freshnessBonus(factors.FreshnessDays) - penalty
}

// scoreV2 blends the expected score with realized ROI from the longest
// observed attribution window. With no observation yet it falls back to the
// expected score alone.
func (e *Engine) scoreV2(action *models.Action) float64 {
	expected := e.scoreV1(action)

	_, realized, ok := action.LongestRealizedWindow()
	if !ok {
		return expected
	}

	return e.cfg.ExpectedWeight*expected + e.cfg.RealizedWeight*realized
}

// freshnessBonus decays linearly from FreshnessMaxBonus at zero days to zero
// at the window edge.
func (e *Engine) freshnessBonus(freshnessDays int) float64 {
	if e.cfg.FreshnessWindowDays <= 0 || freshnessDays >= e.cfg.FreshnessWindowDays {
		return 0
	}

	if freshnessDays < 0 {
		freshnessDays = 0
	}

	remaining := 1 - float64(freshnessDays)/float64(e.cfg.FreshnessWindowDays)

	return e.cfg.FreshnessMaxBonus * remaining
}

// successMultiplier maps a success rate in [0, 1] to a multiplier centered
// on 1.0, clamped to the configured band. No history reads as 0.5, which is
// exactly neutral.
func (e *Engine) successMultiplier(kind models.ActionKind, successRates map[models.ActionKind]float64) float64 {
	rate := 0.5
	if observed, ok := successRates[kind]; ok {
		rate = observed
	}

	multiplier := 0.5 + rate
	if multiplier < e.cfg.MinSuccessMultiplier {
		multiplier = e.cfg.MinSuccessMultiplier
	}

	if multiplier > e.cfg.MaxSuccessMultiplier {
		multiplier = e.cfg.MaxSuccessMultiplier
	}

	return multiplier
}

// diagnose flags zero-valued factors that make a score meaningless.
// FreshnessDays and RiskScore legitimately sit at zero, so only the
// multiplicative factors are checked.
func (e *Engine) diagnose(action *models.Action) []Diagnostic {
	factors := action.RankingFactors
	flagged := make([]Diagnostic, 0, 3)

	if factors.ExpectedImpact == 0 {
		flagged = append(flagged, Diagnostic{ActionID: action.ID, Field: "expected_impact"})
	}

	if factors.Confidence == 0 {
		flagged = append(flagged, Diagnostic{ActionID: action.ID, Field: "confidence"})
	}

	if factors.Ease == 0 {
		flagged = append(flagged, Diagnostic{ActionID: action.ID, Field: "ease"})
	}

	return flagged
}
