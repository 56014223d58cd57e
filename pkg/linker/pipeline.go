package linker

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/tracing"
)

// Pass names, in execution order.
const (
	PassVisitPlaces       = "visit_places"
	PassAnimalVisitPlaces = "animal_visit_places"
	PassAnimalOwnerPlaces = "animal_owner_places"
)

// Skip reasons recorded by the pipeline.
const (
	SkipAddressUnmatched   = "address_unmatched"
	SkipPersonNoPlace      = "person_no_place"
	SkipOwnerPlaceExcluded = "owner_place_excluded"
)

// Confidence assigned to derived edges. Direct observation (the animal was
// brought in from the address) outranks inheritance through an owner.
const (
	visitEdgeConfidence       = 0.7
	appointmentEdgeConfidence = 0.8
)

// VisitStore reads and updates interaction records for propagation.
type VisitStore interface {
	ListUnplaced(ctx context.Context) ([]models.Visit, error)
	ListPlacedWithAnimal(ctx context.Context) ([]models.Visit, error)
	SetPlace(ctx context.Context, visitID, placeID string) error
}

// PlaceLookup reads places during propagation.
type PlaceLookup interface {
	Get(ctx context.Context, id string) (*models.Place, error)
	GetByAddressKey(ctx context.Context, addressKey string) (*models.Place, error)
}

// SkipStore records entities a pass could not link.
type SkipStore interface {
	Record(ctx context.Context, skip *models.LinkSkip) error
}

// PassResult summarizes one pass.
type PassResult struct {
	Pass    string `json:"pass"`
	Linked  int    `json:"linked"`
	Skipped int    `json:"skipped"`
}

// Pipeline derives new edges from existing entities, visits, and edges. Each
// pass is idempotent and commits independently, so re-running after a
// partial failure is the recovery mechanism.
type Pipeline struct {
	logger ectologger.Logger
	linker *Service
	visits VisitStore
	places PlaceLookup
	edges  EdgeStore
	skips  SkipStore
}

// NewPipeline creates the propagation pipeline.
func NewPipeline(
	logger ectologger.Logger,
	linker *Service,
	visits VisitStore,
	places PlaceLookup,
	edges EdgeStore,
	skips SkipStore,
) *Pipeline {
	return &Pipeline{
		logger: logger,
		linker: linker,
		visits: visits,
		places: places,
		edges:  edges,
		skips:  skips,
	}
}

// Run executes every pass in fixed order. With dryRun set, passes count what
// they would do but write nothing.
func (p *Pipeline) Run(ctx context.Context, dryRun bool) ([]PassResult, error) {
	ctx, span := tracing.StartSpan(ctx, "linker.Pipeline.Run")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{"dry_run": dryRun})
	log.Info("Starting propagation pipeline")

	results := make([]PassResult, 0, 3)
	for _, pass := range []struct {
		name string
		run  func(context.Context, bool) (PassResult, error)
	}{
		{PassVisitPlaces, p.runVisitPlaces},
		{PassAnimalVisitPlaces, p.runAnimalVisitPlaces},
		{PassAnimalOwnerPlaces, p.runAnimalOwnerPlaces},
	} {
		result, err := pass.run(ctx, dryRun)
		if err != nil {
			return results, err
		}
		log.WithFields(map[string]any{
			"pass":    result.Pass,
			"linked":  result.Linked,
			"skipped": result.Skipped,
		}).Info("Propagation pass finished")
		results = append(results, result)
	}

	return results, nil
}

// runVisitPlaces resolves each unplaced visit to a place: first by address
// key, then by the visiting person's best-known place. A resolved visit with
// a person also asserts that person's residence edge.
func (p *Pipeline) runVisitPlaces(ctx context.Context, dryRun bool) (PassResult, error) {
	result := PassResult{Pass: PassVisitPlaces}

	visits, err := p.visits.ListUnplaced(ctx)
	if err != nil {
		return result, err
	}

	for _, visit := range visits {
		placeID, reason, err := p.placeForVisit(ctx, visit)
		if err != nil {
			return result, err
		}
		if placeID == "" {
			result.Skipped++
			if !dryRun {
				if err := p.recordSkip(ctx, PassVisitPlaces, models.EntityKindPerson, visit.ID, reason); err != nil {
					return result, err
				}
			}
			continue
		}

		result.Linked++
		if dryRun {
			continue
		}
		if err := p.visits.SetPlace(ctx, visit.ID, placeID); err != nil {
			return result, err
		}
		if visit.PersonID != nil {
			if _, err := p.linker.Link(ctx, Request{
				Kind:             models.EdgeKindPersonPlace,
				EntityAID:        *visit.PersonID,
				EntityBID:        placeID,
				RelationshipType: models.RelationResidentOf,
				Evidence:         models.EvidenceAppointment,
				SourceSystem:     visit.SourceSystem,
				Confidence:       visitEdgeConfidence,
			}); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

func (p *Pipeline) placeForVisit(ctx context.Context, visit models.Visit) (string, string, error) {
	if visit.AddressKey != nil && *visit.AddressKey != "" {
		place, err := p.places.GetByAddressKey(ctx, *visit.AddressKey)
		if err != nil {
			return "", "", err
		}
		if place != nil {
			return place.ID, "", nil
		}
	}

	if visit.PersonID == nil {
		return "", SkipAddressUnmatched, nil
	}

	best, err := p.edges.BestPlaceForPerson(ctx, *visit.PersonID)
	if err != nil {
		return "", "", err
	}
	if best == nil {
		return "", SkipPersonNoPlace, nil
	}
	return best.EntityBID, "", nil
}

// runAnimalVisitPlaces links each animal to the places in its own visit
// history. Seeing the animal at the address is direct evidence.
func (p *Pipeline) runAnimalVisitPlaces(ctx context.Context, dryRun bool) (PassResult, error) {
	result := PassResult{Pass: PassAnimalVisitPlaces}

	visits, err := p.visits.ListPlacedWithAnimal(ctx)
	if err != nil {
		return result, err
	}

	for _, visit := range visits {
		if visit.AnimalID == nil || visit.PlaceID == nil {
			continue
		}
		result.Linked++
		if dryRun {
			continue
		}
		outcome, err := p.linker.Link(ctx, Request{
			Kind:             models.EdgeKindAnimalPlace,
			EntityAID:        *visit.AnimalID,
			EntityBID:        *visit.PlaceID,
			RelationshipType: models.RelationSeenAt,
			Evidence:         models.EvidenceAppointment,
			SourceSystem:     visit.SourceSystem,
			Confidence:       appointmentEdgeConfidence,
		})
		if err != nil {
			return result, err
		}
		if !outcome.Linked {
			result.Linked--
			result.Skipped++
			if err := p.recordSkip(ctx, PassAnimalVisitPlaces, models.EntityKindAnimal, *visit.AnimalID, outcome.Reason); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

// runAnimalOwnerPlaces gives each owned or fostered animal its owner's
// single best place. One place per owner, and never an organization or site
// place; an animal must not inherit a clinic's address.
func (p *Pipeline) runAnimalOwnerPlaces(ctx context.Context, dryRun bool) (PassResult, error) {
	result := PassResult{Pass: PassAnimalOwnerPlaces}

	ownerEdges, err := p.edges.ListPersonAnimal(ctx, []models.RelationshipType{
		models.RelationOwnerOf,
		models.RelationFosterOf,
	})
	if err != nil {
		return result, err
	}

	for _, ownerEdge := range ownerEdges {
		animalID := ownerEdge.EntityBID

		skip := func(reason string) error {
			result.Skipped++
			if dryRun {
				return nil
			}
			return p.recordSkip(ctx, PassAnimalOwnerPlaces, models.EntityKindAnimal, animalID, reason)
		}

		best, err := p.edges.BestPlaceForPerson(ctx, ownerEdge.EntityAID)
		if err != nil {
			return result, err
		}
		if best == nil {
			if err := skip(SkipPersonNoPlace); err != nil {
				return result, err
			}
			continue
		}

		place, err := p.places.Get(ctx, best.EntityBID)
		if err != nil {
			return result, err
		}
		if place == nil || !place.Kind.InheritableThroughOwner() {
			if err := skip(SkipOwnerPlaceExcluded); err != nil {
				return result, err
			}
			continue
		}

		confidence := min(ownerEdge.Confidence, best.Confidence)

		result.Linked++
		if dryRun {
			continue
		}
		outcome, err := p.linker.Link(ctx, Request{
			Kind:             models.EdgeKindAnimalPlace,
			EntityAID:        animalID,
			EntityBID:        place.ID,
			RelationshipType: models.RelationLivesAt,
			Evidence:         models.EvidenceOwnerAddress,
			SourceSystem:     ownerEdge.SourceSystem,
			Confidence:       confidence,
		})
		if err != nil {
			return result, err
		}
		if !outcome.Linked {
			result.Linked--
			result.Skipped++
			if err := p.recordSkip(ctx, PassAnimalOwnerPlaces, models.EntityKindAnimal, animalID, outcome.Reason); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

func (p *Pipeline) recordSkip(ctx context.Context, pass string, kind models.EntityKind, entityID, reason string) error {
	return p.skips.Record(ctx, &models.LinkSkip{
		ID:         uuid.NewString(),
		Pass:       pass,
		EntityKind: kind,
		EntityID:   entityID,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	})
}
