package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/tracing"
)

// Node labels per entity kind.
var kindLabels = map[models.EntityKind]string{
	models.EntityKindPerson: "Person",
	models.EntityKindAnimal: "Animal",
	models.EntityKindPlace:  "Place",
}

// Projector writes entity nodes and relationship edges into the graph.
type Projector struct {
	client *Client
	logger ectologger.Logger
}

// NewProjector creates a graph projector
func NewProjector(client *Client, logger ectologger.Logger) *Projector {
	return &Projector{
		client: client,
		logger: logger,
	}
}

// ProjectPerson mirrors a person node
func (p *Projector) ProjectPerson(ctx context.Context, person *models.Person) error {
	props := map[string]any{
		"id":            person.ID,
		"display_name":  person.DisplayName,
		"name_key":      person.NameKey,
		"source_system": person.SourceSystem,
	}
	if person.Email != nil {
		props["email"] = *person.Email
	}
	if person.Phone != nil {
		props["phone"] = *person.Phone
	}
	return p.mergeNode(ctx, models.EntityKindPerson, person.ID, props)
}

// ProjectAnimal mirrors an animal node
func (p *Projector) ProjectAnimal(ctx context.Context, animal *models.Animal) error {
	return p.mergeNode(ctx, models.EntityKindAnimal, animal.ID, map[string]any{
		"id":            animal.ID,
		"name":          animal.Name,
		"species":       animal.Species,
		"source_system": animal.SourceSystem,
	})
}

// ProjectPlace mirrors a place node
func (p *Projector) ProjectPlace(ctx context.Context, place *models.Place) error {
	props := map[string]any{
		"id":            place.ID,
		"name":          place.Name,
		"address_key":   place.AddressKey,
		"kind":          string(place.Kind),
		"source_system": place.SourceSystem,
	}
	if place.HasCoordinates() {
		props["latitude"] = *place.Latitude
		props["longitude"] = *place.Longitude
	}
	return p.mergeNode(ctx, models.EntityKindPlace, place.ID, props)
}

func (p *Projector) mergeNode(ctx context.Context, kind models.EntityKind, id string, props map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.mergeNode")
	defer span.End()

	cypher := fmt.Sprintf(`
		MERGE (e:%s {id: $id})
		SET e += $props
		RETURN e
	`, kindLabels[kind])

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id":    id,
			"props": props,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_kind": kind,
			"entity_id":   id,
		}).Error("Failed to project node to graph")
		return fmt.Errorf("failed to project node: %w", err)
	}

	return nil
}

// ProjectEdge mirrors one edge. The relationship label is the uppercased
// relationship type (RESIDENT_OF, SEEN_AT, ...); both endpoint nodes must
// already exist in the graph.
func (p *Projector) ProjectEdge(ctx context.Context, kind models.EdgeKind, edge *models.Edge) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ProjectEdge")
	defer span.End()

	aKind, bKind := kind.Endpoints()

	cypher := fmt.Sprintf(`
		MATCH (a:%s {id: $a_id})
		MATCH (b:%s {id: $b_id})
		MERGE (a)-[r:%s]->(b)
		SET r.id = $edge_id,
			r.confidence = $confidence,
			r.evidence_type = $evidence_type,
			r.source_system = $source_system
		RETURN r
	`, kindLabels[aKind], kindLabels[bKind], relationshipLabel(edge.RelationshipType))

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"a_id":          edge.EntityAID,
			"b_id":          edge.EntityBID,
			"edge_id":       edge.ID,
			"confidence":    edge.Confidence,
			"evidence_type": string(edge.EvidenceType),
			"source_system": edge.SourceSystem,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"edge_kind": kind,
			"edge_id":   edge.ID,
		}).Error("Failed to project edge to graph")
		return fmt.Errorf("failed to project edge: %w", err)
	}

	return nil
}

// ProjectMerge re-points a merged-away node: its relationships are left in
// place and the node is marked so network queries can filter it.
func (p *Projector) ProjectMerge(ctx context.Context, kind models.EntityKind, fromID, intoID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ProjectMerge")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (e:%s {id: $from_id})
		SET e.merged_into = $into_id
		RETURN e
	`, kindLabels[kind])

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"from_id": fromID,
			"into_id": intoID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to project merge to graph")
		return fmt.Errorf("failed to project merge: %w", err)
	}

	return nil
}

// relationshipLabel uppercases a relationship type into a Cypher-safe label.
func relationshipLabel(t models.RelationshipType) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(string(t)) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "RELATED_TO"
	}
	return b.String()
}
