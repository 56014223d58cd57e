// Package resolution is the decision engine: it turns normalized
// observations into person, animal, and place entities, and writes one
// append-only decision record per person resolution attempt. Entities and
// identifiers are created here and nowhere else.
package resolution

import (
	"context"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/whiskertrace/trapper/pkg/classify"
	"github.com/whiskertrace/trapper/pkg/gate"
	"github.com/whiskertrace/trapper/pkg/matching"
	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/normalizers"
	"github.com/whiskertrace/trapper/pkg/tracing"
)

// PersonStore persists person entities.
type PersonStore interface {
	MergeChain
	Create(ctx context.Context, p *models.Person) error
	Get(ctx context.Context, id string) (*models.Person, error)
	FillMissingContact(ctx context.Context, id string, email, phone, addressText, addressKey *string) error
}

// AnimalStore persists animal entities.
type AnimalStore interface {
	MergeChain
	Create(ctx context.Context, a *models.Animal) error
	Get(ctx context.Context, id string) (*models.Animal, error)
}

// PlaceStore persists place entities.
type PlaceStore interface {
	MergeChain
	Create(ctx context.Context, p *models.Place) error
	Get(ctx context.Context, id string) (*models.Place, error)
	GetByAddressKey(ctx context.Context, addressKey string) (*models.Place, error)
}

// IdentifierStore persists identifiers. Upsert must be atomic: a (type,
// normalized value) pair already owned elsewhere is reassigned to the new
// owner in the same statement, never duplicated.
type IdentifierStore interface {
	Upsert(ctx context.Context, ident *models.Identifier) error
	GetByValue(ctx context.Context, idType models.IdentifierType, valueNormalized string) (*models.Identifier, error)
}

// DecisionStore appends decision records.
type DecisionStore interface {
	Create(ctx context.Context, rec *models.DecisionRecord) error
}

// PersonRequest is one incoming person record.
type PersonRequest struct {
	Email        string
	Phone        string
	FirstName    string
	LastName     string
	AddressText  string
	SourceSystem string
}

// PersonResult is the outcome of one person resolution attempt.
type PersonResult struct {
	Decision   models.DecisionType
	PersonID   *string
	Confidence float64
	Reason     string
	Breakdown  *models.ScoreBreakdown
	DecisionID string
}

// AnimalRequest is one incoming animal record, keyed by an external
// identifier such as a microchip.
type AnimalRequest struct {
	IDType       models.IdentifierType
	IDValue      string
	Name         string
	Species      string
	SourceSystem string
}

// PlaceRequest is one incoming place record.
type PlaceRequest struct {
	AddressText  string
	Name         string
	Kind         models.PlaceKind
	Latitude     *float64
	Longitude    *float64
	SourceSystem string
}

// Service is the decision engine.
type Service struct {
	logger      ectologger.Logger
	gate        *gate.Gate
	engine      *matching.Engine
	blacklist   matching.BlacklistStore
	persons     PersonStore
	animals     AnimalStore
	places      PlaceStore
	identifiers IdentifierStore
	decisions   DecisionStore
}

// NewService creates the decision engine.
func NewService(
	logger ectologger.Logger,
	g *gate.Gate,
	engine *matching.Engine,
	blacklist matching.BlacklistStore,
	persons PersonStore,
	animals AnimalStore,
	places PlaceStore,
	identifiers IdentifierStore,
	decisions DecisionStore,
) *Service {
	return &Service{
		logger:      logger,
		gate:        g,
		engine:      engine,
		blacklist:   blacklist,
		persons:     persons,
		animals:     animals,
		places:      places,
		identifiers: identifiers,
		decisions:   decisions,
	}
}

// ResolvePerson runs one record through gate, scorer, and decision. Every
// path writes exactly one decision record, including rejections.
func (s *Service) ResolvePerson(ctx context.Context, req PersonRequest) (*PersonResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.ResolvePerson")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"source_system": req.SourceSystem,
	})

	email := normalizers.Email(req.Email)
	phone := normalizers.Phone(req.Phone)
	displayName := strings.TrimSpace(strings.TrimSpace(req.FirstName) + " " + strings.TrimSpace(req.LastName))
	nameKey := normalizers.Name(displayName)
	addressKey := normalizers.AddressKey(req.AddressText)

	sig := matching.Signals{
		Email:      email,
		Phone:      phone,
		NameKey:    nameKey,
		AddressKey: addressKey,
	}

	rec := &models.DecisionRecord{
		ID:           uuid.NewString(),
		SourceSystem: req.SourceSystem,
		NameKey:      nameKey,
		ReviewStatus: models.ReviewNotRequired,
		CreatedAt:    time.Now().UTC(),
	}
	if email != "" {
		rec.EmailNormalized = &email
	}
	if phone != "" {
		rec.PhoneNormalized = &phone
	}
	if addressKey != "" {
		rec.AddressKey = &addressKey
	}

	checks, err := s.blacklistChecks(ctx, sig)
	if err != nil {
		return nil, err
	}

	admitted, reason := s.gate.Evaluate(gate.Input{
		Email:           email,
		Phone:           phone,
		FirstName:       req.FirstName,
		DisplayName:     displayName,
		BlacklistChecks: checks,
	})
	if !admitted {
		rec.Decision = models.DecisionRejected
		rec.Reason = reason
		if err := s.decisions.Create(ctx, rec); err != nil {
			return nil, err
		}
		log.WithFields(map[string]any{"reason": reason}).Debug("Record rejected by gate")
		return &PersonResult{
			Decision:   models.DecisionRejected,
			Reason:     reason,
			DecisionID: rec.ID,
		}, nil
	}

	best, err := s.engine.BestCandidate(ctx, sig)
	if err != nil {
		return nil, err
	}

	score := 0.0
	var breakdown *models.ScoreBreakdown
	if best != nil {
		score = best.Score
		breakdown = &best.Breakdown
		id := best.Person.ID
		rec.CandidatePersonID = &id
		if err := rec.MarshalBreakdown(breakdown); err != nil {
			return nil, err
		}
	}

	decision := models.DecisionForScore(score, best != nil)
	rec.Decision = decision
	rec.Confidence = score

	var personID string
	switch decision {
	case models.DecisionAutoMatch:
		personID = best.Person.ID
		rec.Reason = "candidate score at or above auto-match threshold"
		if err := s.attachIdentity(ctx, personID, email, phone, req.AddressText, addressKey, req.SourceSystem, score); err != nil {
			return nil, err
		}

	case models.DecisionReviewPending:
		personID = best.Person.ID
		rec.Reason = "candidate score in review band"
		rec.ReviewStatus = models.ReviewPending

	case models.DecisionNewEntity:
		personID = uuid.NewString()
		if best == nil {
			rec.Reason = "no candidate shares any signal"
		} else {
			rec.Reason = "best candidate below review threshold"
		}
		person := &models.Person{
			ID:           personID,
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
			DisplayName:  displayName,
			NameKey:      nameKey,
			SourceSystem: req.SourceSystem,
		}
		if email != "" {
			person.Email = &email
		}
		if phone != "" {
			person.Phone = &phone
		}
		if addr := strings.TrimSpace(req.AddressText); addr != "" {
			person.AddressText = &addr
		}
		if addressKey != "" {
			person.AddressKey = &addressKey
		}
		if err := s.persons.Create(ctx, person); err != nil {
			return nil, err
		}
		if err := s.upsertIdentifiers(ctx, personID, email, phone, req.SourceSystem, 1.0); err != nil {
			return nil, err
		}
	}

	rec.PersonID = &personID
	if err := s.decisions.Create(ctx, rec); err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{
		"decision":  decision,
		"person_id": personID,
		"score":     score,
	}).Info("Resolved person record")

	return &PersonResult{
		Decision:   decision,
		PersonID:   &personID,
		Confidence: score,
		Reason:     rec.Reason,
		Breakdown:  breakdown,
		DecisionID: rec.ID,
	}, nil
}

// ResolveAnimal finds or creates an animal by external identifier. The
// identifier is the sole key; there is no scoring band for animals.
func (s *Service) ResolveAnimal(ctx context.Context, req AnimalRequest) (*string, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.ResolveAnimal")
	defer span.End()

	value := normalizers.ForIdentifierType(string(req.IDType), req.IDValue)
	if value == "" {
		return nil, nil
	}

	existing, err := s.identifiers.GetByValue(ctx, req.IDType, value)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.OwnerKind == models.EntityKindAnimal {
		id, err := CanonicalID(ctx, s.animals, existing.OwnerID)
		if err != nil {
			return nil, err
		}
		if id != "" {
			return &id, nil
		}
	}

	animal := &models.Animal{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Species:      strings.TrimSpace(req.Species),
		SourceSystem: req.SourceSystem,
	}
	if err := s.animals.Create(ctx, animal); err != nil {
		return nil, err
	}

	ident := &models.Identifier{
		ID:              uuid.NewString(),
		IDType:          req.IDType,
		ValueRaw:        req.IDValue,
		ValueNormalized: value,
		OwnerKind:       models.EntityKindAnimal,
		OwnerID:         animal.ID,
		Confidence:      1.0,
		SourceSystem:    req.SourceSystem,
	}
	if err := s.identifiers.Upsert(ctx, ident); err != nil {
		return nil, err
	}

	return &animal.ID, nil
}

// ResolvePlace finds or creates a place by address key. Unparseable
// addresses resolve to nil rather than erroring.
func (s *Service) ResolvePlace(ctx context.Context, req PlaceRequest) (*string, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.ResolvePlace")
	defer span.End()

	addressKey := normalizers.AddressKey(req.AddressText)
	if addressKey == "" {
		return nil, nil
	}

	existing, err := s.places.GetByAddressKey(ctx, addressKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		id, err := CanonicalID(ctx, s.places, existing.ID)
		if err != nil {
			return nil, err
		}
		if id != "" {
			return &id, nil
		}
	}

	kind := req.Kind
	if kind == "" {
		kind = placeKindFor(req.Name)
	}

	place := &models.Place{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		AddressText:  strings.TrimSpace(req.AddressText),
		AddressKey:   addressKey,
		Kind:         kind,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		SourceSystem: req.SourceSystem,
	}
	if err := s.places.Create(ctx, place); err != nil {
		return nil, err
	}

	return &place.ID, nil
}

// placeKindFor derives a place kind from its label.
func placeKindFor(name string) models.PlaceKind {
	if strings.TrimSpace(name) == "" {
		return models.PlaceKindResidence
	}
	switch classify.OwnerName(name) {
	case classify.Organization:
		return models.PlaceKindOrganization
	case classify.SiteName:
		return models.PlaceKindSite
	case classify.LikelyPerson, classify.Address:
		return models.PlaceKindResidence
	default:
		return models.PlaceKindUnknown
	}
}

// blacklistChecks collects blacklist hits for the incoming identifiers and
// pairs each with the best name similarity among persons sharing the value.
func (s *Service) blacklistChecks(ctx context.Context, sig matching.Signals) ([]gate.BlacklistCheck, error) {
	var checks []gate.BlacklistCheck

	add := func(idType models.IdentifierType, value string) error {
		if value == "" {
			return nil
		}
		entry, err := s.blacklist.Get(ctx, idType, value)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		// Narrow the lookup to this one identifier so unrelated shared
		// signals cannot inflate similarity.
		narrowed := matching.Signals{NameKey: sig.NameKey}
		switch idType {
		case models.IdentifierTypeEmail:
			narrowed.Email = value
		case models.IdentifierTypePhone:
			narrowed.Phone = value
		}
		sim, err := s.engine.MaxNameSimilarity(ctx, narrowed)
		if err != nil {
			return err
		}
		checks = append(checks, gate.BlacklistCheck{Entry: entry, NameSimilarity: sim})
		return nil
	}

	if err := add(models.IdentifierTypeEmail, sig.Email); err != nil {
		return nil, err
	}
	if err := add(models.IdentifierTypePhone, sig.Phone); err != nil {
		return nil, err
	}
	return checks, nil
}

// attachIdentity adds the record's identifiers to an existing person and
// backfills contact fields the person was missing.
func (s *Service) attachIdentity(ctx context.Context, personID, email, phone, addressText, addressKey, sourceSystem string, confidence float64) error {
	if err := s.upsertIdentifiers(ctx, personID, email, phone, sourceSystem, confidence); err != nil {
		return err
	}

	var emailPtr, phonePtr, addrPtr, keyPtr *string
	if email != "" {
		emailPtr = &email
	}
	if phone != "" {
		phonePtr = &phone
	}
	if addr := strings.TrimSpace(addressText); addr != "" {
		addrPtr = &addr
	}
	if addressKey != "" {
		keyPtr = &addressKey
	}
	if emailPtr == nil && phonePtr == nil && addrPtr == nil {
		return nil
	}
	return s.persons.FillMissingContact(ctx, personID, emailPtr, phonePtr, addrPtr, keyPtr)
}

func (s *Service) upsertIdentifiers(ctx context.Context, personID, email, phone, sourceSystem string, confidence float64) error {
	upsert := func(idType models.IdentifierType, value string) error {
		if value == "" {
			return nil
		}
		return s.identifiers.Upsert(ctx, &models.Identifier{
			ID:              uuid.NewString(),
			IDType:          idType,
			ValueRaw:        value,
			ValueNormalized: value,
			OwnerKind:       models.EntityKindPerson,
			OwnerID:         personID,
			Confidence:      confidence,
			SourceSystem:    sourceSystem,
		})
	}

	if err := upsert(models.IdentifierTypeEmail, email); err != nil {
		return errors.Wrap(err, "upsert email identifier")
	}
	if err := upsert(models.IdentifierTypePhone, phone); err != nil {
		return errors.Wrap(err, "upsert phone identifier")
	}
	return nil
}
