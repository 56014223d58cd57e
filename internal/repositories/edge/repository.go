package edge

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/whiskertrace/trapper/pkg/database"
	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/tracing"
)

var columns = []string{
	"id", "entity_a_id", "entity_b_id", "relationship_type",
	"confidence", "evidence_type", "source_system",
	"created_at", "updated_at",
}

// Repository handles edge persistence across the three edge tables
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new edge repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func tableFor(kind models.EdgeKind) (string, error) {
	table, ok := models.EdgeTables[kind]
	if !ok {
		return "", httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("edge kind %q has no table", kind))
	}
	return table, nil
}

// Upsert inserts an edge or raises the stored confidence when the
// (entity_a_id, entity_b_id, relationship_type) row already exists. The
// stored confidence is the maximum of old and new, so the operation is
// commutative under concurrent writers. Returns the stored row.
func (r *Repository) Upsert(ctx context.Context, kind models.EdgeKind, edge *models.Edge) (*models.Edge, error) {
	ctx, span := tracing.StartSpan(ctx, "edge.Repository.Upsert")
	defer span.End()

	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	edge.CreatedAt = now
	edge.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(edge.ID, edge.EntityAID, edge.EntityBID, edge.RelationshipType,
		edge.Confidence, edge.EvidenceType, edge.SourceSystem,
		edge.CreatedAt, edge.UpdatedAt)

	query, args := sb.Build()
	query += fmt.Sprintf(
		" ON CONFLICT (entity_a_id, entity_b_id, relationship_type) DO UPDATE SET confidence = GREATEST(%s.confidence, EXCLUDED.confidence), evidence_type = EXCLUDED.evidence_type, updated_at = EXCLUDED.updated_at RETURNING %s",
		table, columnList(),
	)

	var stored models.Edge
	if err := r.db.GetContext(ctx, &stored, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"edge_kind":   kind,
			"entity_a_id": edge.EntityAID,
			"entity_b_id": edge.EntityBID,
		}).Error("Failed to upsert edge")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert edge")
	}

	return &stored, nil
}

// BestPlaceForPerson retrieves the single highest-confidence person-place
// edge for a person. Returns nil when the person has no place edges.
func (r *Repository) BestPlaceForPerson(ctx context.Context, personID string) (*models.Edge, error) {
	ctx, span := tracing.StartSpan(ctx, "edge.Repository.BestPlaceForPerson")
	defer span.End()

	table, err := tableFor(models.EdgeKindPersonPlace)
	if err != nil {
		return nil, err
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("entity_a_id", personID))
	sb.OrderBy("confidence DESC", "updated_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var edge models.Edge
	if err := r.db.GetContext(ctx, &edge, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get best place for person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get best place edge")
	}

	return &edge, nil
}

// ListPersonAnimal retrieves person-animal edges of the given relationship
// types.
func (r *Repository) ListPersonAnimal(ctx context.Context, types []models.RelationshipType) ([]models.Edge, error) {
	ctx, span := tracing.StartSpan(ctx, "edge.Repository.ListPersonAnimal")
	defer span.End()

	table, err := tableFor(models.EdgeKindPersonAnimal)
	if err != nil {
		return nil, err
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	if len(types) > 0 {
		sb.Where(sb.In("relationship_type", typesToAny(types)...))
	}
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var edges []models.Edge
	if err := r.db.SelectContext(ctx, &edges, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list person-animal edges")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list edges")
	}

	return edges, nil
}

// ListForEntity retrieves every edge of one kind touching an entity on
// either side.
func (r *Repository) ListForEntity(ctx context.Context, kind models.EdgeKind, entityID string) ([]models.Edge, error) {
	ctx, span := tracing.StartSpan(ctx, "edge.Repository.ListForEntity")
	defer span.End()

	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Or(
		sb.Equal("entity_a_id", entityID),
		sb.Equal("entity_b_id", entityID),
	))
	sb.OrderBy("confidence DESC", "created_at ASC")

	query, args := sb.Build()
	var edges []models.Edge
	if err := r.db.SelectContext(ctx, &edges, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"edge_kind": kind,
			"entity_id": entityID,
		}).Error("Failed to list edges for entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list edges")
	}

	return edges, nil
}

func columnList() string {
	return strings.Join(columns, ", ")
}

func typesToAny(types []models.RelationshipType) []any {
	result := make([]any, len(types))
	for i, t := range types {
		result[i] = t
	}
	return result
}
