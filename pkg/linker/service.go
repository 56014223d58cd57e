// Package linker maintains the confidence-weighted edges between persons,
// animals, and places. Edges are created and updated here and nowhere else.
// A link to a missing or merged-away entity is a no-op outcome, not an
// error; callers treat it as "nothing to link yet."
package linker

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/resolution"
	"github.com/whiskertrace/trapper/pkg/tracing"
)

// EdgeStore persists edges. Upsert must be atomic and commutative: on
// conflict the stored confidence becomes the maximum of old and new, so
// concurrent writers never lose an update.
type EdgeStore interface {
	Upsert(ctx context.Context, kind models.EdgeKind, edge *models.Edge) (*models.Edge, error)
	BestPlaceForPerson(ctx context.Context, personID string) (*models.Edge, error)
	ListPersonAnimal(ctx context.Context, types []models.RelationshipType) ([]models.Edge, error)
}

// PlaceGetter reads places for kind checks during propagation.
type PlaceGetter interface {
	Get(ctx context.Context, id string) (*models.Place, error)
}

// Projector mirrors edges into the graph store. Projection is best effort;
// failures are logged, never propagated, because Postgres remains the
// source of truth.
type Projector interface {
	ProjectEdge(ctx context.Context, kind models.EdgeKind, edge *models.Edge) error
}

// Request is one edge assertion.
type Request struct {
	Kind             models.EdgeKind
	EntityAID        string
	EntityBID        string
	RelationshipType models.RelationshipType
	Evidence         models.EvidenceType
	SourceSystem     string
	Confidence       float64
}

// No-op reasons returned by Link.
const (
	SkipEntityANotFound = "entity_a_not_found"
	SkipEntityBNotFound = "entity_b_not_found"
)

// Outcome reports what Link did. Linked false means no edge exists for the
// request and Reason says why.
type Outcome struct {
	EdgeID *string
	Linked bool
	Reason string
}

// Service validates and upserts edges.
type Service struct {
	logger    ectologger.Logger
	persons   resolution.MergeChain
	animals   resolution.MergeChain
	places    resolution.MergeChain
	edges     EdgeStore
	projector Projector // nil disables graph projection
}

// NewService creates the linker.
func NewService(
	logger ectologger.Logger,
	persons resolution.MergeChain,
	animals resolution.MergeChain,
	places resolution.MergeChain,
	edges EdgeStore,
	projector Projector,
) *Service {
	return &Service{
		logger:    logger,
		persons:   persons,
		animals:   animals,
		places:    places,
		edges:     edges,
		projector: projector,
	}
}

// Link validates both endpoints, canonicalizes them through their merge
// chains, and upserts the edge. Confidence only ever increases on an
// existing edge.
func (s *Service) Link(ctx context.Context, req Request) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "linker.Service.Link")
	defer span.End()

	kind, ok := models.EdgeKindFor(req.RelationshipType)
	if !ok || kind != req.Kind {
		return nil, errors.Errorf("relationship type %q is not valid for edge kind %q", req.RelationshipType, req.Kind)
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, errors.Errorf("confidence %f out of range", req.Confidence)
	}

	aKind, bKind := req.Kind.Endpoints()

	aID, err := s.canonicalize(ctx, aKind, req.EntityAID)
	if err != nil {
		return nil, err
	}
	if aID == "" {
		return &Outcome{Reason: SkipEntityANotFound}, nil
	}

	bID, err := s.canonicalize(ctx, bKind, req.EntityBID)
	if err != nil {
		return nil, err
	}
	if bID == "" {
		return &Outcome{Reason: SkipEntityBNotFound}, nil
	}

	now := time.Now().UTC()
	edge := &models.Edge{
		EntityAID:        aID,
		EntityBID:        bID,
		RelationshipType: req.RelationshipType,
		Confidence:       req.Confidence,
		EvidenceType:     req.Evidence,
		SourceSystem:     req.SourceSystem,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	stored, err := s.edges.Upsert(ctx, req.Kind, edge)
	if err != nil {
		return nil, err
	}

	if s.projector != nil {
		if err := s.projector.ProjectEdge(ctx, req.Kind, stored); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"edge_id": stored.ID,
			}).Warn("Failed to project edge to graph")
		}
	}

	return &Outcome{EdgeID: &stored.ID, Linked: true}, nil
}

func (s *Service) canonicalize(ctx context.Context, kind models.EntityKind, id string) (string, error) {
	var chain resolution.MergeChain
	switch kind {
	case models.EntityKindPerson:
		chain = s.persons
	case models.EntityKindAnimal:
		chain = s.animals
	case models.EntityKindPlace:
		chain = s.places
	default:
		return "", errors.Errorf("unknown entity kind %q", kind)
	}
	return resolution.CanonicalID(ctx, chain, id)
}
