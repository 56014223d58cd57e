package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/whiskertrace/trapper/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	// Resolution events
	EventTypeResolutionDecided EventType = "resolution.decided"
	EventTypeReviewResolved    EventType = "review.resolved"

	// Edge events
	EventTypeEdgeUpserted EventType = "edge.upserted"

	// Pipeline events
	EventTypePipelineCompleted EventType = "pipeline.completed"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// ResolutionDecidedEvent is emitted for every person resolution attempt.
type ResolutionDecidedEvent struct {
	BaseEvent
	DecisionID   string              `json:"decision_id"`
	Decision     models.DecisionType `json:"decision"`
	PersonID     *string             `json:"person_id,omitempty"`
	Confidence   float64             `json:"confidence"`
	Reason       string              `json:"reason"`
	SourceSystem string              `json:"source_system"`
}

// ReviewResolvedEvent is emitted when a reviewer approves or rejects a
// pending decision.
type ReviewResolvedEvent struct {
	BaseEvent
	DecisionID   string              `json:"decision_id"`
	ReviewStatus models.ReviewStatus `json:"review_status"`
	ReviewedBy   string              `json:"reviewed_by"`
	PersonID     *string             `json:"person_id,omitempty"`
}

// EdgeUpsertedEvent is emitted when an edge is created or its confidence
// raised.
type EdgeUpsertedEvent struct {
	BaseEvent
	EdgeID           string                  `json:"edge_id"`
	EdgeKind         models.EdgeKind         `json:"edge_kind"`
	EntityAID        string                  `json:"entity_a_id"`
	EntityBID        string                  `json:"entity_b_id"`
	RelationshipType models.RelationshipType `json:"relationship_type"`
	Confidence       float64                 `json:"confidence"`
	EvidenceType     models.EvidenceType     `json:"evidence_type"`
}

// PipelinePassSummary is one pass's counts inside a pipeline event.
type PipelinePassSummary struct {
	Pass    string `json:"pass"`
	Linked  int    `json:"linked"`
	Skipped int    `json:"skipped"`
}

// PipelineCompletedEvent is emitted when a propagation run finishes.
type PipelineCompletedEvent struct {
	BaseEvent
	DryRun bool                  `json:"dry_run"`
	Passes []PipelinePassSummary `json:"passes"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
