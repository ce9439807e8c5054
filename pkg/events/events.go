// Package events defines event types and structures for action lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/hotdash/actionqueue/pkg/models"
)

type EventType string

// Kafka topic for action lifecycle events.
const Topic = "actionqueue.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Approval lifecycle events.
	ActionSubmittedEvent        EventType = "action.submitted"
	ActionApprovedEvent         EventType = "action.approved"
	ActionRejectedEvent         EventType = "action.rejected"
	ActionChangesRequestedEvent EventType = "action.changes_requested"
	ActionAppliedEvent          EventType = "action.applied"
	ActionAuditedEvent          EventType = "action.audited"
	ActionLearnedEvent          EventType = "action.learned"

	// Attribution events.
	AttributionRefreshedEvent EventType = "attribution.refreshed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	ActionID  string         `json:"action_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, actionID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ActionID:  actionID,
		Metadata:  make(map[string]any),
	}
}

// ActionTransitioned is published for every successful approval lifecycle
// transition. Its Type field distinguishes which edge fired.
type ActionTransitioned struct {
	BaseEvent

	Kind      models.ActionKind  `json:"kind"`
	FromState models.ActionState `json:"from_state"`
	ToState   models.ActionState `json:"to_state"`
	Actor     string             `json:"actor,omitempty"`
	Reason    string             `json:"reason,omitempty"`
}

func (a ActionTransitioned) GetType() EventType {
	return a.Type
}

// TransitionEventType maps a ledger event to its published event type.
func TransitionEventType(event models.DecisionEvent) EventType {
	switch event {
	case models.DecisionSubmit:
		return ActionSubmittedEvent
	case models.DecisionApprove:
		return ActionApprovedEvent
	case models.DecisionReject:
		return ActionRejectedEvent
	case models.DecisionRequestChanges:
		return ActionChangesRequestedEvent
	case models.DecisionApply:
		return ActionAppliedEvent
	case models.DecisionAudit:
		return ActionAuditedEvent
	case models.DecisionLearn:
		return ActionLearnedEvent
	}

	return ""
}

// AttributionRefreshed is published when the nightly or on-demand refresh
// records new realized-ROI observations for an action.
type AttributionRefreshed struct {
	BaseEvent

	Kind          models.ActionKind                    `json:"kind"`
	RealizedROI   map[models.AttributionWindow]float64 `json:"realized_roi"`
	FailedWindows []models.AttributionWindow           `json:"failed_windows,omitempty"`
}

func (a AttributionRefreshed) GetType() EventType {
	return AttributionRefreshedEvent
}
