// Package events publishes lifecycle events for downstream consumers: a
// reporting warehouse, notification tooling, anything watching the outbound
// topic. Emission is best effort from the caller's point of view; failures
// surface as errors but callers log and move on.
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/whiskertrace/trapper/pkg/kafka"
	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/tracing"
)

// Emitter publishes domain events to the outbound topic.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitResolutionDecided emits one event per person resolution attempt.
func (e *Emitter) EmitResolutionDecided(ctx context.Context, rec *models.DecisionRecord) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitResolutionDecided")
	defer span.End()

	event := &ResolutionDecidedEvent{
		BaseEvent:    NewBaseEvent(EventTypeResolutionDecided),
		DecisionID:   rec.ID,
		Decision:     rec.Decision,
		PersonID:     rec.PersonID,
		Confidence:   rec.Confidence,
		Reason:       rec.Reason,
		SourceSystem: rec.SourceSystem,
	}

	key := rec.ID
	if rec.PersonID != nil {
		key = *rec.PersonID
	}

	if err := e.producer.Publish(ctx, key, string(event.EventType), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit resolution.decided event")
		return err
	}

	return nil
}

// EmitReviewResolved emits an event when a pending decision is approved or
// rejected.
func (e *Emitter) EmitReviewResolved(ctx context.Context, rec *models.DecisionRecord) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitReviewResolved")
	defer span.End()

	reviewedBy := ""
	if rec.ReviewedBy != nil {
		reviewedBy = *rec.ReviewedBy
	}

	event := &ReviewResolvedEvent{
		BaseEvent:    NewBaseEvent(EventTypeReviewResolved),
		DecisionID:   rec.ID,
		ReviewStatus: rec.ReviewStatus,
		ReviewedBy:   reviewedBy,
		PersonID:     rec.PersonID,
	}

	if err := e.producer.Publish(ctx, rec.ID, string(event.EventType), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit review.resolved event")
		return err
	}

	return nil
}

// EmitEdgeUpserted emits an event when an edge is created or strengthened.
func (e *Emitter) EmitEdgeUpserted(ctx context.Context, kind models.EdgeKind, edge *models.Edge) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEdgeUpserted")
	defer span.End()

	event := &EdgeUpsertedEvent{
		BaseEvent:        NewBaseEvent(EventTypeEdgeUpserted),
		EdgeID:           edge.ID,
		EdgeKind:         kind,
		EntityAID:        edge.EntityAID,
		EntityBID:        edge.EntityBID,
		RelationshipType: edge.RelationshipType,
		Confidence:       edge.Confidence,
		EvidenceType:     edge.EvidenceType,
	}

	if err := e.producer.Publish(ctx, edge.EntityAID, string(event.EventType), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit edge.upserted event")
		return err
	}

	return nil
}

// EmitPipelineCompleted emits a summary event after a propagation run.
func (e *Emitter) EmitPipelineCompleted(ctx context.Context, dryRun bool, passes []PipelinePassSummary) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitPipelineCompleted")
	defer span.End()

	event := &PipelineCompletedEvent{
		BaseEvent: NewBaseEvent(EventTypePipelineCompleted),
		DryRun:    dryRun,
		Passes:    passes,
	}

	if err := e.producer.Publish(ctx, "pipeline", string(event.EventType), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit pipeline.completed event")
		return err
	}

	return nil
}
