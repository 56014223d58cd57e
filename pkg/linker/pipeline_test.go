package linker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whiskertrace/trapper/pkg/models"
)

type memVisits struct {
	visits map[string]*models.Visit
}

func newMemVisits(visits ...*models.Visit) *memVisits {
	m := &memVisits{visits: make(map[string]*models.Visit)}
	for _, v := range visits {
		m.visits[v.ID] = v
	}
	return m
}

func (m *memVisits) ListUnplaced(_ context.Context) ([]models.Visit, error) {
	var out []models.Visit
	for _, v := range m.visits {
		if v.PlaceID == nil {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *memVisits) ListPlacedWithAnimal(_ context.Context) ([]models.Visit, error) {
	var out []models.Visit
	for _, v := range m.visits {
		if v.PlaceID != nil && v.AnimalID != nil {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *memVisits) SetPlace(_ context.Context, visitID, placeID string) error {
	if v, ok := m.visits[visitID]; ok {
		v.PlaceID = &placeID
	}
	return nil
}

type memPlaces struct {
	places map[string]*models.Place
}

func newMemPlaces(places ...*models.Place) *memPlaces {
	m := &memPlaces{places: make(map[string]*models.Place)}
	for _, p := range places {
		m.places[p.ID] = p
	}
	return m
}

func (m *memPlaces) Get(_ context.Context, id string) (*models.Place, error) {
	return m.places[id], nil
}

func (m *memPlaces) GetByAddressKey(_ context.Context, key string) (*models.Place, error) {
	for _, p := range m.places {
		if p.AddressKey == key {
			return p, nil
		}
	}
	return nil, nil
}

func (m *memPlaces) chain() memChain {
	c := memChain{}
	for id, p := range m.places {
		c[id] = p.MergedInto
	}
	return c
}

type memSkips struct {
	skips []*models.LinkSkip
}

func (m *memSkips) Record(_ context.Context, skip *models.LinkSkip) error {
	m.skips = append(m.skips, skip)
	return nil
}

func str(s string) *string { return &s }

func pipelineFixture(visits *memVisits, places *memPlaces, edges *memEdges, persons, animals memChain) (*Pipeline, *memSkips) {
	linkSvc := NewService(testLogger(), persons, animals, places.chain(), edges, nil)
	skips := &memSkips{}
	return NewPipeline(testLogger(), linkSvc, visits, places, edges, skips), skips
}

func TestPipelineVisitPlacesByAddress(t *testing.T) {
	place := &models.Place{ID: "pl1", AddressKey: "890 rockwell rd", Kind: models.PlaceKindResidence}
	visit := &models.Visit{ID: "v1", PersonID: str("p1"), AddressKey: str("890 rockwell rd"), SourceSystem: "clinichq"}

	visits := newMemVisits(visit)
	edges := newMemEdges()
	pipe, skips := pipelineFixture(visits, newMemPlaces(place), edges, memChain{"p1": nil}, memChain{})

	results, err := pipe.Run(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 1, results[0].Linked)
	assert.Equal(t, 0, results[0].Skipped)
	require.NotNil(t, visits.visits["v1"].PlaceID)
	assert.Equal(t, "pl1", *visits.visits["v1"].PlaceID)
	assert.Empty(t, skips.skips)

	// The visiting person gains a residence edge to the matched place.
	found := false
	for _, e := range edges.edges {
		if e.EntityAID == "p1" && e.EntityBID == "pl1" && e.RelationshipType == models.RelationResidentOf {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPipelineVisitFallsBackToPersonPlace(t *testing.T) {
	place := &models.Place{ID: "pl1", AddressKey: "1200 main st", Kind: models.PlaceKindResidence}
	visit := &models.Visit{ID: "v1", PersonID: str("p1"), SourceSystem: "clinichq"}

	visits := newMemVisits(visit)
	edges := newMemEdges()
	_, err := edges.Upsert(context.Background(), models.EdgeKindPersonPlace, &models.Edge{
		EntityAID:        "p1",
		EntityBID:        "pl1",
		RelationshipType: models.RelationResidentOf,
		Confidence:       0.9,
	})
	require.NoError(t, err)

	pipe, _ := pipelineFixture(visits, newMemPlaces(place), edges, memChain{"p1": nil}, memChain{})

	results, err := pipe.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Linked)
	require.NotNil(t, visits.visits["v1"].PlaceID)
	assert.Equal(t, "pl1", *visits.visits["v1"].PlaceID)
}

func TestPipelineVisitSkipReasons(t *testing.T) {
	// No matching address and no person: address_unmatched. Person without
	// any place: person_no_place.
	orphan := &models.Visit{ID: "v1", AddressKey: str("nowhere ln"), SourceSystem: "clinichq"}
	homeless := &models.Visit{ID: "v2", PersonID: str("p1"), SourceSystem: "clinichq"}

	visits := newMemVisits(orphan, homeless)
	pipe, skips := pipelineFixture(visits, newMemPlaces(), newMemEdges(), memChain{"p1": nil}, memChain{})

	results, err := pipe.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, results[0].Linked)
	assert.Equal(t, 2, results[0].Skipped)

	reasons := map[string]bool{}
	for _, s := range skips.skips {
		reasons[s.Reason] = true
	}
	assert.True(t, reasons[SkipAddressUnmatched])
	assert.True(t, reasons[SkipPersonNoPlace])
}

func TestPipelineAnimalVisitPlaces(t *testing.T) {
	place := &models.Place{ID: "pl1", AddressKey: "890 rockwell rd", Kind: models.PlaceKindResidence}
	visit := &models.Visit{ID: "v1", AnimalID: str("a1"), PlaceID: str("pl1"), SourceSystem: "clinichq"}

	edges := newMemEdges()
	pipe, _ := pipelineFixture(newMemVisits(visit), newMemPlaces(place), edges, memChain{}, memChain{"a1": nil})

	results, err := pipe.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, results[1].Linked)

	found := false
	for _, e := range edges.edges {
		if e.EntityAID == "a1" && e.EntityBID == "pl1" && e.RelationshipType == models.RelationSeenAt {
			found = true
			assert.Equal(t, models.EvidenceAppointment, e.EvidenceType)
		}
	}
	assert.True(t, found)
}

func TestPipelineAnimalInheritsOwnerPlace(t *testing.T) {
	home := &models.Place{ID: "pl1", AddressKey: "890 rockwell rd", Kind: models.PlaceKindResidence}

	edges := newMemEdges()
	ctx := context.Background()
	_, err := edges.Upsert(ctx, models.EdgeKindPersonAnimal, &models.Edge{
		EntityAID:        "p1",
		EntityBID:        "a1",
		RelationshipType: models.RelationOwnerOf,
		Confidence:       0.95,
		SourceSystem:     "clinichq",
	})
	require.NoError(t, err)
	_, err = edges.Upsert(ctx, models.EdgeKindPersonPlace, &models.Edge{
		EntityAID:        "p1",
		EntityBID:        "pl1",
		RelationshipType: models.RelationResidentOf,
		Confidence:       0.8,
		SourceSystem:     "clinichq",
	})
	require.NoError(t, err)

	pipe, _ := pipelineFixture(newMemVisits(), newMemPlaces(home), edges, memChain{"p1": nil}, memChain{"a1": nil})

	results, err := pipe.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, results[2].Linked)

	found := false
	for _, e := range edges.edges {
		if e.EntityAID == "a1" && e.EntityBID == "pl1" && e.RelationshipType == models.RelationLivesAt {
			found = true
			assert.Equal(t, models.EvidenceOwnerAddress, e.EvidenceType)
			assert.InDelta(t, 0.8, e.Confidence, 0.0001, "inherited confidence is the weaker of the two edges")
		}
	}
	assert.True(t, found)
}

func TestPipelineAnimalDoesNotInheritClinicAddress(t *testing.T) {
	clinic := &models.Place{ID: "pl1", AddressKey: "1 clinic way", Kind: models.PlaceKindOrganization}

	edges := newMemEdges()
	ctx := context.Background()
	_, err := edges.Upsert(ctx, models.EdgeKindPersonAnimal, &models.Edge{
		EntityAID:        "p1",
		EntityBID:        "a1",
		RelationshipType: models.RelationOwnerOf,
		Confidence:       0.95,
	})
	require.NoError(t, err)
	_, err = edges.Upsert(ctx, models.EdgeKindPersonPlace, &models.Edge{
		EntityAID:        "p1",
		EntityBID:        "pl1",
		RelationshipType: models.RelationResidentOf,
		Confidence:       0.9,
	})
	require.NoError(t, err)

	pipe, skips := pipelineFixture(newMemVisits(), newMemPlaces(clinic), edges, memChain{"p1": nil}, memChain{"a1": nil})

	results, err := pipe.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, results[2].Linked)
	assert.Equal(t, 1, results[2].Skipped)

	require.Len(t, skips.skips, 1)
	assert.Equal(t, SkipOwnerPlaceExcluded, skips.skips[0].Reason)
}

func TestPipelineDryRunWritesNothing(t *testing.T) {
	place := &models.Place{ID: "pl1", AddressKey: "890 rockwell rd", Kind: models.PlaceKindResidence}
	visit := &models.Visit{ID: "v1", PersonID: str("p1"), AddressKey: str("890 rockwell rd"), SourceSystem: "clinichq"}

	visits := newMemVisits(visit)
	edges := newMemEdges()
	pipe, skips := pipelineFixture(visits, newMemPlaces(place), edges, memChain{"p1": nil}, memChain{})

	results, err := pipe.Run(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Linked, "dry run still counts")

	assert.Nil(t, visits.visits["v1"].PlaceID)
	assert.Empty(t, edges.edges)
	assert.Empty(t, skips.skips)
}

func TestPipelineIsIdempotent(t *testing.T) {
	place := &models.Place{ID: "pl1", AddressKey: "890 rockwell rd", Kind: models.PlaceKindResidence}
	visit := &models.Visit{ID: "v1", PersonID: str("p1"), AnimalID: str("a1"), AddressKey: str("890 rockwell rd"), SourceSystem: "clinichq"}

	visits := newMemVisits(visit)
	edges := newMemEdges()
	pipe, _ := pipelineFixture(visits, newMemPlaces(place), edges, memChain{"p1": nil}, memChain{"a1": nil})

	ctx := context.Background()
	_, err := pipe.Run(ctx, false)
	require.NoError(t, err)
	edgeCount := len(edges.edges)

	_, err = pipe.Run(ctx, false)
	require.NoError(t, err)
	assert.Len(t, edges.edges, edgeCount, "second run creates no new edges")
}
