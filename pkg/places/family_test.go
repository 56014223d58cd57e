package places

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whiskertrace/trapper/pkg/models"
)

type memStore struct {
	places map[string]*models.Place
}

func newMemStore(places ...*models.Place) *memStore {
	m := &memStore{places: make(map[string]*models.Place)}
	for _, p := range places {
		m.places[p.ID] = p
	}
	return m
}

func (m *memStore) Get(_ context.Context, id string) (*models.Place, error) {
	return m.places[id], nil
}

func (m *memStore) ListByParent(_ context.Context, parentID string) ([]models.Place, error) {
	var out []models.Place
	for _, p := range m.places {
		if p.ParentPlaceID != nil && *p.ParentPlaceID == parentID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) ListWithCoordinates(_ context.Context) ([]models.Place, error) {
	var out []models.Place
	for _, p := range m.places {
		if p.HasCoordinates() {
			out = append(out, *p)
		}
	}
	return out, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func ref(s string) *string     { return &s }
func coord(f float64) *float64 { return &f }

func familyIDs(family []models.Place) map[string]bool {
	ids := make(map[string]bool, len(family))
	for _, p := range family {
		ids[p.ID] = true
	}
	return ids
}

func TestFamilyAlwaysIncludesSelf(t *testing.T) {
	lone := &models.Place{ID: "pl1", AddressKey: "890 rockwell rd"}
	svc := NewService(testLogger(), newMemStore(lone))

	family, err := svc.Family(context.Background(), "pl1")
	require.NoError(t, err)
	require.Len(t, family, 1)
	assert.Equal(t, "pl1", family[0].ID)
}

func TestFamilyUnknownPlace(t *testing.T) {
	svc := NewService(testLogger(), newMemStore())

	family, err := svc.Family(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, family)
}

func TestFamilyHierarchy(t *testing.T) {
	park := &models.Place{ID: "park", AddressKey: "woodcrest mhp"}
	unitA := &models.Place{ID: "unit_a", AddressKey: "woodcrest mhp 12", ParentPlaceID: ref("park")}
	unitB := &models.Place{ID: "unit_b", AddressKey: "woodcrest mhp 14", ParentPlaceID: ref("park")}
	unrelated := &models.Place{ID: "other", AddressKey: "1200 main st"}

	svc := NewService(testLogger(), newMemStore(park, unitA, unitB, unrelated))

	t.Run("from a unit: self, parent, sibling", func(t *testing.T) {
		family, err := svc.Family(context.Background(), "unit_a")
		require.NoError(t, err)

		ids := familyIDs(family)
		assert.True(t, ids["unit_a"])
		assert.True(t, ids["park"])
		assert.True(t, ids["unit_b"])
		assert.False(t, ids["other"])
	})

	t.Run("from the park: self and children", func(t *testing.T) {
		family, err := svc.Family(context.Background(), "park")
		require.NoError(t, err)

		ids := familyIDs(family)
		assert.True(t, ids["park"])
		assert.True(t, ids["unit_a"])
		assert.True(t, ids["unit_b"])
		assert.False(t, ids["other"])
	})
}

func TestFamilyGeographicProximity(t *testing.T) {
	// Two records of the same lot, ~30m apart, plus one ~1.5km away.
	self := &models.Place{ID: "self", Latitude: coord(38.4404), Longitude: coord(-122.7141)}
	near := &models.Place{ID: "near", Latitude: coord(38.44065), Longitude: coord(-122.71415)}
	far := &models.Place{ID: "far", Latitude: coord(38.4530), Longitude: coord(-122.7141)}

	svc := NewService(testLogger(), newMemStore(self, near, far))

	family, err := svc.Family(context.Background(), "self")
	require.NoError(t, err)

	ids := familyIDs(family)
	assert.True(t, ids["self"])
	assert.True(t, ids["near"])
	assert.False(t, ids["far"])
}

func TestFamilyNoDuplicates(t *testing.T) {
	// A sibling that is also within proximity range must appear once.
	park := &models.Place{ID: "park"}
	unitA := &models.Place{ID: "unit_a", ParentPlaceID: ref("park"), Latitude: coord(38.4404), Longitude: coord(-122.7141)}
	unitB := &models.Place{ID: "unit_b", ParentPlaceID: ref("park"), Latitude: coord(38.44041), Longitude: coord(-122.71411)}

	svc := NewService(testLogger(), newMemStore(park, unitA, unitB))

	family, err := svc.Family(context.Background(), "unit_a")
	require.NoError(t, err)

	counts := map[string]int{}
	for _, p := range family {
		counts[p.ID]++
	}
	for id, n := range counts {
		assert.Equal(t, 1, n, "place %s appears more than once", id)
	}
}

func TestHaversineMeters(t *testing.T) {
	assert.InDelta(t, 0.0, HaversineMeters(38.44, -122.71, 38.44, -122.71), 0.001)

	// One degree of latitude is roughly 111km.
	d := HaversineMeters(38.0, -122.0, 39.0, -122.0)
	assert.InDelta(t, 111000, d, 1000)
}
