// Package places derives read-side clusters of place records. A single
// physical site often exists as several rows (a mobile home park and its
// units, the same lot under two addresses); family() groups them on demand
// so aggregation does not double count. Nothing here persists state.
package places

import (
	"context"
	"math"

	"github.com/Gobusters/ectologger"

	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/tracing"
)

// ProximityRadiusMeters is the distance within which two geocoded places
// count as co-located.
const ProximityRadiusMeters = 100.0

const earthRadiusMeters = 6371000.0

// Store reads places for clustering.
type Store interface {
	Get(ctx context.Context, id string) (*models.Place, error)
	ListByParent(ctx context.Context, parentID string) ([]models.Place, error)
	ListWithCoordinates(ctx context.Context) ([]models.Place, error)
}

// Service computes place families.
type Service struct {
	logger ectologger.Logger
	store  Store
}

// NewService creates the place clustering service.
func NewService(logger ectologger.Logger, store Store) *Service {
	return &Service{logger: logger, store: store}
}

// Family returns the minimal cluster around a place: the place itself, its
// parent, its children, its siblings, and any geocoded place within
// ProximityRadiusMeters. The place itself is always included; a place with
// no relatives returns a one-element family. Unknown ids return nil.
func (s *Service) Family(ctx context.Context, placeID string) ([]models.Place, error) {
	ctx, span := tracing.StartSpan(ctx, "places.Service.Family")
	defer span.End()

	place, err := s.store.Get(ctx, placeID)
	if err != nil {
		return nil, err
	}
	if place == nil {
		return nil, nil
	}

	seen := map[string]bool{place.ID: true}
	family := []models.Place{*place}

	add := func(members ...models.Place) {
		for _, m := range members {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			family = append(family, m)
		}
	}

	if place.ParentPlaceID != nil {
		parent, err := s.store.Get(ctx, *place.ParentPlaceID)
		if err != nil {
			return nil, err
		}
		if parent != nil {
			add(*parent)
		}

		siblings, err := s.store.ListByParent(ctx, *place.ParentPlaceID)
		if err != nil {
			return nil, err
		}
		add(siblings...)
	}

	children, err := s.store.ListByParent(ctx, place.ID)
	if err != nil {
		return nil, err
	}
	add(children...)

	if place.HasCoordinates() {
		geocoded, err := s.store.ListWithCoordinates(ctx)
		if err != nil {
			return nil, err
		}
		for _, other := range geocoded {
			if seen[other.ID] || !other.HasCoordinates() {
				continue
			}
			d := HaversineMeters(*place.Latitude, *place.Longitude, *other.Latitude, *other.Longitude)
			if d <= ProximityRadiusMeters {
				add(other)
			}
		}
	}

	return family, nil
}

// HaversineMeters returns the great-circle distance between two coordinates.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}
