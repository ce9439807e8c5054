// Package models defines the core domain models for the action approval queue.
package models

import "time"

// ActionState represents the lifecycle stage of an Action.
type ActionState string

const (
	ActionStateDraft         ActionState = "draft"          // Proposed by an agent, not yet submitted
	ActionStatePendingReview ActionState = "pending_review" // Waiting for an operator decision
	ActionStateApproved      ActionState = "approved"       // Cleared for execution
	ActionStateApplied       ActionState = "applied"        // Side effects executed, receipts recorded
	ActionStateAudited       ActionState = "audited"        // Receipts reviewed
	ActionStateLearned       ActionState = "learned"        // Outcome folded into ranking history
	ActionStateRejected      ActionState = "rejected"       // Declined by an operator
)

// Terminal reports whether no transition can leave the state.
func (s ActionState) Terminal() bool {
	return s == ActionStateRejected || s == ActionStateLearned
}

// Valid reports whether the state is one of the known lifecycle stages.
func (s ActionState) Valid() bool {
	switch s {
	case ActionStateDraft, ActionStatePendingReview, ActionStateApproved,
		ActionStateApplied, ActionStateAudited, ActionStateLearned, ActionStateRejected:
		return true
	}

	return false
}

// ActionKind categorizes the proposed work.
type ActionKind string

const (
	ActionKindCXReply   ActionKind = "cx_reply"
	ActionKindInventory ActionKind = "inventory"
	ActionKindGrowth    ActionKind = "growth"
	ActionKindSEO       ActionKind = "seo"
	ActionKindContent   ActionKind = "content"
	ActionKindPricing   ActionKind = "pricing"
	ActionKindAds       ActionKind = "ads"
	ActionKindMisc      ActionKind = "misc"
)

// Kinds lists every known action kind.
func Kinds() []ActionKind {
	return []ActionKind{
		ActionKindCXReply,
		ActionKindInventory,
		ActionKindGrowth,
		ActionKindSEO,
		ActionKindContent,
		ActionKindPricing,
		ActionKindAds,
		ActionKindMisc,
	}
}

// Valid reports whether the kind is one of the known categories.
func (k ActionKind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}

	return false
}

// Sample is a labeled preview attached as evidence (post copy, email draft, ...).
type Sample struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

// Evidence is the structured justification for a proposed Action. An Action
// cannot enter review without WhatChanges, and cannot be approved without a
// rollback plan alongside it.
type Evidence struct {
	WhatChanges string   `json:"what_changes"`
	WhyNow      string   `json:"why_now"`
	Diffs       []string `json:"diffs,omitempty"`
	Samples     []Sample `json:"samples,omitempty"`
	Queries     []string `json:"queries,omitempty"`
	Screenshots []string `json:"screenshots,omitempty"`
}

// Impact is the forecast attached to a proposed Action.
type Impact struct {
	ExpectedOutcome string   `json:"expected_outcome"`
	MetricsAffected []string `json:"metrics_affected,omitempty"`
	BusinessValue   string   `json:"business_value"`
}

// Risk documents what could go wrong and how long recovery takes.
type Risk struct {
	WhatCouldGoWrong string `json:"what_could_go_wrong"`
	RecoveryTime     string `json:"recovery_time"`
}

// Rollback is the documented undo plan. Steps are ordered.
type Rollback struct {
	Steps            []string `json:"steps"`
	ArtifactLocation string   `json:"artifact_location,omitempty"`
}

// RankingFactors feed the ranking engine. Confidence, Ease and RiskScore are
// unit-interval values; ExpectedImpact is in currency units.
type RankingFactors struct {
	ExpectedImpact float64 `json:"expected_impact"`
	Confidence     float64 `json:"confidence"`
	Ease           float64 `json:"ease"`
	FreshnessDays  int     `json:"freshness_days"`
	RiskScore      float64 `json:"risk_score"`
}

// AttributionWindow is a fixed look-back period over which realized revenue
// impact of an applied Action is measured.
type AttributionWindow string

const (
	Window7d  AttributionWindow = "7d"
	Window14d AttributionWindow = "14d"
	Window28d AttributionWindow = "28d"
)

// Windows lists the attribution windows from shortest to longest.
func Windows() []AttributionWindow {
	return []AttributionWindow{Window7d, Window14d, Window28d}
}

// Days returns the window length in days.
func (w AttributionWindow) Days() int {
	switch w {
	case Window7d:
		return 7
	case Window14d:
		return 14
	case Window28d:
		return 28
	}

	return 0
}

// Valid reports whether the window is one of the supported look-back periods.
func (w AttributionWindow) Valid() bool {
	return w.Days() > 0
}

// DryRunStatus is the recorded result of a simulated execution of one
// endpoint call.
type DryRunStatus string

const (
	DryRunPending DryRunStatus = "pending"
	DryRunSuccess DryRunStatus = "success"
	DryRunFailed  DryRunStatus = "failed"
	DryRunSkipped DryRunStatus = "skipped"
)

// EndpointCall is one side-effecting call an Action performs when applied.
type EndpointCall struct {
	Name         string         `json:"name"`
	Endpoint     string         `json:"endpoint"`
	Method       string         `json:"method"`
	Payload      map[string]any `json:"payload,omitempty"`
	DryRunStatus DryRunStatus   `json:"dry_run_status"`
}

// Receipt records the observed result of one endpoint call during apply.
type Receipt struct {
	CallName   string    `json:"call_name"`
	StatusCode int       `json:"status_code"`
	Response   string    `json:"response,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Action is the persisted unit of work: a proposed change plus its evidence,
// impact, risk and rollback plan. State transitions go exclusively through
// the approval machine; Version backs the compare-and-swap that keeps
// concurrent transitions linearizable per Action.
type Action struct {
	ID             string                        `json:"id"`
	Kind           ActionKind                    `json:"kind"`
	State          ActionState                   `json:"state"`
	Draft          string                        `json:"draft"`
	Agent          string                        `json:"agent,omitempty"`
	Evidence       Evidence                      `json:"evidence"`
	Impact         Impact                        `json:"impact"`
	Risk           Risk                          `json:"risk"`
	Rollback       Rollback                      `json:"rollback"`
	RankingFactors RankingFactors                `json:"ranking_factors"`
	RealizedROI    map[AttributionWindow]float64 `json:"realized_roi,omitempty"`
	Calls          []EndpointCall                `json:"calls,omitempty"`
	Receipts       []Receipt                     `json:"receipts,omitempty"`
	ApprovedBy     string                        `json:"approved_by,omitempty"`
	AppliedBy      string                        `json:"applied_by,omitempty"`
	Version        int64                         `json:"version"`
	CreatedAt      time.Time                     `json:"created_at"`
	UpdatedAt      time.Time                     `json:"updated_at"`
	DeletedAt      *time.Time                    `json:"deleted_at,omitempty"`
}

// LongestRealizedWindow returns the realized ROI for the longest window that
// has an observation, preferring 28d over 14d over 7d.
func (a *Action) LongestRealizedWindow() (AttributionWindow, float64, bool) {
	windows := Windows()
	for i := len(windows) - 1; i >= 0; i-- {
		if value, ok := a.RealizedROI[windows[i]]; ok {
			return windows[i], value, true
		}
	}

	return "", 0, false
}

// SetRealizedROI upserts the observed revenue delta for one window.
func (a *Action) SetRealizedROI(window AttributionWindow, revenueDelta float64) {
	if a.RealizedROI == nil {
		a.RealizedROI = make(map[AttributionWindow]float64, len(Windows()))
	}

	a.RealizedROI[window] = revenueDelta
}
