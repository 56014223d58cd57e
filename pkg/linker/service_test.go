package linker

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whiskertrace/trapper/pkg/models"
)

// memChain is an in-memory merge chain keyed by entity id.
type memChain map[string]*string

func (c memChain) MergedInto(_ context.Context, id string) (*string, bool, error) {
	next, ok := c[id]
	if !ok {
		return nil, false, nil
	}
	return next, true, nil
}

// memEdges stores edges keyed by (kind, a, b, type) with confidence-max
// upsert semantics, mirroring the SQL store.
type memEdges struct {
	edges map[string]*models.Edge
}

func newMemEdges() *memEdges {
	return &memEdges{edges: make(map[string]*models.Edge)}
}

func edgeKey(kind models.EdgeKind, a, b string, t models.RelationshipType) string {
	return string(kind) + "|" + a + "|" + b + "|" + string(t)
}

func (m *memEdges) Upsert(_ context.Context, kind models.EdgeKind, edge *models.Edge) (*models.Edge, error) {
	key := edgeKey(kind, edge.EntityAID, edge.EntityBID, edge.RelationshipType)
	if existing, ok := m.edges[key]; ok {
		if edge.Confidence > existing.Confidence {
			existing.Confidence = edge.Confidence
		}
		return existing, nil
	}
	stored := *edge
	stored.ID = uuid.NewString()
	m.edges[key] = &stored
	return &stored, nil
}

func (m *memEdges) BestPlaceForPerson(_ context.Context, personID string) (*models.Edge, error) {
	var candidates []*models.Edge
	for key, e := range m.edges {
		if e.EntityAID == personID && strings.HasPrefix(key, string(models.EdgeKindPersonPlace)+"|") {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates[0], nil
}

func (m *memEdges) ListPersonAnimal(_ context.Context, types []models.RelationshipType) ([]models.Edge, error) {
	var out []models.Edge
	for key, e := range m.edges {
		if !strings.HasPrefix(key, string(models.EdgeKindPersonAnimal)+"|") {
			continue
		}
		for _, t := range types {
			if e.RelationshipType == t {
				out = append(out, *e)
				break
			}
		}
	}
	return out, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestLinker(persons, animals, places memChain, edges *memEdges) *Service {
	return NewService(testLogger(), persons, animals, places, edges, nil)
}

func TestLinkCreatesEdge(t *testing.T) {
	edges := newMemEdges()
	svc := newTestLinker(memChain{"p1": nil}, memChain{"a1": nil}, memChain{}, edges)

	outcome, err := svc.Link(context.Background(), Request{
		Kind:             models.EdgeKindPersonAnimal,
		EntityAID:        "p1",
		EntityBID:        "a1",
		RelationshipType: models.RelationOwnerOf,
		Evidence:         models.EvidenceImport,
		SourceSystem:     "clinichq",
		Confidence:       0.9,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Linked)
	require.NotNil(t, outcome.EdgeID)
	assert.Len(t, edges.edges, 1)
}

func TestLinkConfidenceNeverDecreases(t *testing.T) {
	edges := newMemEdges()
	svc := newTestLinker(memChain{"p1": nil}, memChain{"a1": nil}, memChain{}, edges)

	req := Request{
		Kind:             models.EdgeKindPersonAnimal,
		EntityAID:        "p1",
		EntityBID:        "a1",
		RelationshipType: models.RelationOwnerOf,
		Evidence:         models.EvidenceImport,
		SourceSystem:     "clinichq",
		Confidence:       0.9,
	}

	_, err := svc.Link(context.Background(), req)
	require.NoError(t, err)

	req.Confidence = 0.5
	_, err = svc.Link(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, edges.edges, 1)
	for _, e := range edges.edges {
		assert.Equal(t, 0.9, e.Confidence)
	}
}

func TestLinkMissingEntityIsNoOp(t *testing.T) {
	edges := newMemEdges()
	svc := newTestLinker(memChain{"p1": nil}, memChain{}, memChain{}, edges)

	outcome, err := svc.Link(context.Background(), Request{
		Kind:             models.EdgeKindPersonAnimal,
		EntityAID:        "p1",
		EntityBID:        "ghost",
		RelationshipType: models.RelationOwnerOf,
		Evidence:         models.EvidenceImport,
		SourceSystem:     "clinichq",
		Confidence:       0.9,
	})
	require.NoError(t, err)
	assert.False(t, outcome.Linked)
	assert.Equal(t, SkipEntityBNotFound, outcome.Reason)
	assert.Nil(t, outcome.EdgeID)
	assert.Empty(t, edges.edges, "no edge row written for a missing target")
}

func TestLinkResolvesMergedEndpoints(t *testing.T) {
	edges := newMemEdges()
	canonical := "p_canonical"
	persons := memChain{"p_old": &canonical, "p_canonical": nil}
	svc := newTestLinker(persons, memChain{"a1": nil}, memChain{}, edges)

	outcome, err := svc.Link(context.Background(), Request{
		Kind:             models.EdgeKindPersonAnimal,
		EntityAID:        "p_old",
		EntityBID:        "a1",
		RelationshipType: models.RelationOwnerOf,
		Evidence:         models.EvidenceImport,
		SourceSystem:     "clinichq",
		Confidence:       0.8,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Linked)

	for _, e := range edges.edges {
		assert.Equal(t, "p_canonical", e.EntityAID, "edge lands on the canonical person")
	}
}

func TestLinkRejectsMismatchedRelationship(t *testing.T) {
	svc := newTestLinker(memChain{"p1": nil}, memChain{"a1": nil}, memChain{}, newMemEdges())

	_, err := svc.Link(context.Background(), Request{
		Kind:             models.EdgeKindPersonAnimal,
		EntityAID:        "p1",
		EntityBID:        "a1",
		RelationshipType: models.RelationSeenAt,
		Evidence:         models.EvidenceImport,
		SourceSystem:     "clinichq",
		Confidence:       0.9,
	})
	require.Error(t, err)
}
