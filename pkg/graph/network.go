package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/tracing"
)

// NetworkService answers read-side connectivity questions: who else is tied
// to this colony site, which people share animals, how two records connect.
type NetworkService struct {
	client *Client
	logger ectologger.Logger
}

// NewNetworkService creates a new network query service
func NewNetworkService(client *Client, logger ectologger.Logger) *NetworkService {
	return &NetworkService{
		client: client,
		logger: logger,
	}
}

// QueryResult represents the result of a graph query
type QueryResult struct {
	Nodes         []NodeResult `json:"nodes,omitempty"`
	Relationships []RelResult  `json:"relationships,omitempty"`
	Rows          []any        `json:"rows,omitempty"`
}

// NodeResult represents a node from query results
type NodeResult struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// RelResult represents a relationship from query results
type RelResult struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// Neighborhood finds everything connected to an entity within N hops.
// Merged-away nodes are filtered out.
func (s *NetworkService) Neighborhood(ctx context.Context, kind models.EntityKind, entityID string, hops int) (*QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.NetworkService.Neighborhood")
	defer span.End()

	if hops <= 0 {
		hops = 1
	}
	if hops > 5 {
		hops = 5
	}

	cypher := fmt.Sprintf(`
		MATCH (start:%s {id: $id})
		MATCH (start)-[r*1..%d]-(neighbor)
		WHERE neighbor.merged_into IS NULL
		RETURN DISTINCT neighbor
	`, kindLabels[kind], hops)

	return s.executeQuery(ctx, cypher, map[string]any{"id": entityID})
}

// ShortestPath finds the shortest connection between two entities.
func (s *NetworkService) ShortestPath(ctx context.Context, fromID, toID string, maxHops int) (*QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.NetworkService.ShortestPath")
	defer span.End()

	if maxHops <= 0 {
		maxHops = 10
	}

	cypher := fmt.Sprintf(`
		MATCH (start {id: $from_id})
		MATCH (end {id: $to_id})
		MATCH p = shortestPath((start)-[*..%d]-(end))
		RETURN p
	`, maxHops)

	return s.executeQuery(ctx, cypher, map[string]any{
		"from_id": fromID,
		"to_id":   toID,
	})
}

// executeQuery runs a read-only Cypher query and shapes the result.
func (s *NetworkService) executeQuery(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error) {
	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}

		qr := &QueryResult{
			Nodes:         make([]NodeResult, 0),
			Relationships: make([]RelResult, 0),
			Rows:          make([]any, 0),
		}

		seenNodes := make(map[string]bool)
		seenRels := make(map[string]bool)

		for result.Next(ctx) {
			record := result.Record()
			row := make(map[string]any)

			for _, key := range record.Keys {
				val, _ := record.Get(key)
				row[key] = extractValue(val, qr, seenNodes, seenRels)
			}

			qr.Rows = append(qr.Rows, row)
		}

		return qr, nil
	})

	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to execute graph query")
		return nil, fmt.Errorf("failed to execute graph query: %w", err)
	}

	return result.(*QueryResult), nil
}

// extractValue converts neo4j types to standard Go types
func extractValue(val any, qr *QueryResult, seenNodes, seenRels map[string]bool) any {
	if val == nil {
		return nil
	}

	switch v := val.(type) {
	case neo4j.Node:
		id := fmt.Sprintf("%v", v.Props["id"])
		if !seenNodes[id] {
			seenNodes[id] = true
			qr.Nodes = append(qr.Nodes, NodeResult{
				ID:         id,
				Labels:     v.Labels,
				Properties: v.Props,
			})
		}
		return id

	case neo4j.Relationship:
		id := fmt.Sprintf("%v", v.Props["id"])
		if !seenRels[id] {
			seenRels[id] = true
			qr.Relationships = append(qr.Relationships, RelResult{
				ID:         id,
				Type:       v.Type,
				Properties: v.Props,
			})
		}
		return id

	case neo4j.Path:
		for _, node := range v.Nodes {
			extractValue(node, qr, seenNodes, seenRels)
		}
		for _, rel := range v.Relationships {
			extractValue(rel, qr, seenNodes, seenRels)
		}
		return map[string]any{
			"node_count": len(v.Nodes),
			"rel_count":  len(v.Relationships),
		}

	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = extractValue(item, qr, seenNodes, seenRels)
		}
		return result

	default:
		return v
	}
}
