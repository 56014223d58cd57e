// Package ingest handles incoming observation messages. This is the write
// path from source adapters: each message is one person, animal, or visit
// record, routed through the decision engine. Graph projection and event
// emission are best effort; Postgres writes are the ones that matter.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/whiskertrace/trapper/pkg/kafka"
	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/normalizers"
	"github.com/whiskertrace/trapper/pkg/resolution"
	"github.com/whiskertrace/trapper/pkg/tracing"
)

// VisitWriter persists ingested visits.
type VisitWriter interface {
	Create(ctx context.Context, v *models.Visit) error
}

// PersonProjector mirrors resolved persons into the graph.
type PersonProjector interface {
	ProjectPerson(ctx context.Context, person *models.Person) error
	ProjectAnimal(ctx context.Context, animal *models.Animal) error
}

// DecisionEmitter publishes resolution outcomes.
type DecisionEmitter interface {
	EmitResolutionDecided(ctx context.Context, rec *models.DecisionRecord) error
}

// PersonReader reads persons back for projection.
type PersonReader interface {
	Get(ctx context.Context, id string) (*models.Person, error)
}

// AnimalReader reads animals back for projection.
type AnimalReader interface {
	Get(ctx context.Context, id string) (*models.Animal, error)
}

// DecisionReader reads decision records back for emission.
type DecisionReader interface {
	Get(ctx context.Context, id string) (*models.DecisionRecord, error)
}

// Handler routes observations into the decision engine.
type Handler struct {
	logger    ectologger.Logger
	resolver  *resolution.Service
	visits    VisitWriter
	persons   PersonReader
	animals   AnimalReader
	decisions DecisionReader
	projector PersonProjector // nil disables graph projection
	emitter   DecisionEmitter // nil disables event emission
}

// NewHandler creates the ingestion handler.
func NewHandler(
	logger ectologger.Logger,
	resolver *resolution.Service,
	visits VisitWriter,
	persons PersonReader,
	animals AnimalReader,
	decisions DecisionReader,
	projector PersonProjector,
	emitter DecisionEmitter,
) *Handler {
	return &Handler{
		logger:    logger,
		resolver:  resolver,
		visits:    visits,
		persons:   persons,
		animals:   animals,
		decisions: decisions,
		projector: projector,
		emitter:   emitter,
	}
}

// HandleMessage is the Kafka consumer entry point. Malformed messages are
// logged and dropped; they would fail identically on every retry.
func (h *Handler) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Handler.HandleMessage")
	defer span.End()

	log := h.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":  msg.Topic,
		"offset": msg.Offset,
	})

	obs, err := msg.ParseObservation()
	if err != nil {
		log.WithError(err).Error("Dropping malformed observation")
		return nil
	}

	return h.Handle(ctx, obs)
}

// Handle routes one observation by kind. The envelope is re-validated here
// because callers other than the consumer reach Handle directly.
func (h *Handler) Handle(ctx context.Context, obs *models.Observation) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Handler.Handle")
	defer span.End()

	if err := obs.Validate(); err != nil {
		h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"kind": obs.Kind}).Error("Rejecting inconsistent observation")
		return err
	}

	switch obs.Kind {
	case models.ObservationPerson:
		return h.handlePerson(ctx, obs)
	case models.ObservationAnimal:
		return h.handleAnimal(ctx, obs)
	default:
		return h.handleVisit(ctx, obs)
	}
}

func (h *Handler) handlePerson(ctx context.Context, obs *models.Observation) error {
	in := obs.Person

	result, err := h.resolver.ResolvePerson(ctx, resolution.PersonRequest{
		Email:        in.Email,
		Phone:        in.Phone,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		AddressText:  in.AddressText,
		SourceSystem: obs.SourceSystem,
	})
	if err != nil {
		return err
	}

	if h.projector != nil && result.PersonID != nil {
		person, err := h.persons.Get(ctx, *result.PersonID)
		if err == nil && person != nil {
			if err := h.projector.ProjectPerson(ctx, person); err != nil {
				h.logger.WithContext(ctx).WithError(err).Warn("Failed to project person to graph")
			}
		}
	}

	h.emitDecision(ctx, result.DecisionID)
	return nil
}

func (h *Handler) handleAnimal(ctx context.Context, obs *models.Observation) error {
	in := obs.Animal

	animalID, err := h.resolver.ResolveAnimal(ctx, resolution.AnimalRequest{
		IDType:       in.IDType,
		IDValue:      in.IDValue,
		Name:         in.Name,
		Species:      in.Species,
		SourceSystem: obs.SourceSystem,
	})
	if err != nil {
		return err
	}
	if animalID == nil {
		h.logger.WithContext(ctx).WithFields(map[string]any{
			"id_type":    in.IDType,
			"source_key": obs.SourceKey,
		}).Debug("Animal observation carries no usable identifier")
		return nil
	}

	if h.projector != nil {
		animal, err := h.animals.Get(ctx, *animalID)
		if err == nil && animal != nil {
			if err := h.projector.ProjectAnimal(ctx, animal); err != nil {
				h.logger.WithContext(ctx).WithError(err).Warn("Failed to project animal to graph")
			}
		}
	}

	return nil
}

func (h *Handler) handleVisit(ctx context.Context, obs *models.Observation) error {
	in := obs.Visit

	visit := &models.Visit{
		SourceSystem: obs.SourceSystem,
	}
	if in.PersonID != "" {
		id := in.PersonID
		visit.PersonID = &id
	}
	if in.AnimalID != "" {
		id := in.AnimalID
		visit.AnimalID = &id
	}
	if addr := strings.TrimSpace(in.AddressText); addr != "" {
		visit.AddressText = &addr
		if key := normalizers.AddressKey(addr); key != "" {
			visit.AddressKey = &key
		}
	}
	if in.VisitedAt != "" {
		at, err := time.Parse(time.RFC3339, in.VisitedAt)
		if err != nil {
			h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"source_key": obs.SourceKey,
			}).Warn("Ignoring unparseable visit timestamp")
		} else {
			utc := at.UTC()
			visit.VisitedAt = &utc
		}
	}

	return h.visits.Create(ctx, visit)
}

func (h *Handler) emitDecision(ctx context.Context, decisionID string) {
	if h.emitter == nil || decisionID == "" {
		return
	}
	rec, err := h.decisions.Get(ctx, decisionID)
	if err != nil || rec == nil {
		return
	}
	if err := h.emitter.EmitResolutionDecided(ctx, rec); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("Failed to emit resolution event")
	}
}
