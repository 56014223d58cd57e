package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whiskertrace/trapper/pkg/gate"
	"github.com/whiskertrace/trapper/pkg/kafka"
	"github.com/whiskertrace/trapper/pkg/matching"
	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/resolution"
)

// world is an in-memory backing for every store the handler path touches,
// from the decision engine down to visits and emitted events.
type world struct {
	persons     map[string]*models.Person
	animals     map[string]*models.Animal
	places      map[string]*models.Place
	identifiers map[string]*models.Identifier
	decisions   map[string]*models.DecisionRecord
	visits      []*models.Visit

	projectedPersons []string
	projectedAnimals []string
	emitted          []string
}

func newWorld() *world {
	return &world{
		persons:     make(map[string]*models.Person),
		animals:     make(map[string]*models.Animal),
		places:      make(map[string]*models.Place),
		identifiers: make(map[string]*models.Identifier),
		decisions:   make(map[string]*models.DecisionRecord),
	}
}

func (w *world) Create(_ context.Context, p *models.Person) error {
	p.UpdatedAt = time.Now()
	w.persons[p.ID] = p
	return nil
}

func (w *world) Get(_ context.Context, id string) (*models.Person, error) {
	return w.persons[id], nil
}

func (w *world) MergedInto(_ context.Context, id string) (*string, bool, error) {
	if p, ok := w.persons[id]; ok {
		return p.MergedInto, true, nil
	}
	return nil, false, nil
}

func (w *world) FillMissingContact(_ context.Context, id string, email, phone, addressText, addressKey *string) error {
	p, ok := w.persons[id]
	if !ok {
		return nil
	}
	if p.Email == nil {
		p.Email = email
	}
	if p.Phone == nil {
		p.Phone = phone
	}
	if p.AddressText == nil {
		p.AddressText = addressText
	}
	if p.AddressKey == nil {
		p.AddressKey = addressKey
	}
	return nil
}

func (w *world) FindBySharedSignals(_ context.Context, sig matching.Signals) ([]models.Person, error) {
	var out []models.Person
	for _, p := range w.persons {
		if !p.IsCanonical() {
			continue
		}
		if sig.Email != "" && p.Email != nil && *p.Email == sig.Email {
			out = append(out, *p)
			continue
		}
		if sig.Phone != "" && p.Phone != nil && *p.Phone == sig.Phone {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (w *world) Upsert(_ context.Context, ident *models.Identifier) error {
	w.identifiers[string(ident.IDType)+":"+ident.ValueNormalized] = ident
	return nil
}

func (w *world) GetByValue(_ context.Context, idType models.IdentifierType, value string) (*models.Identifier, error) {
	return w.identifiers[string(idType)+":"+value], nil
}

// Single-method stores whose method names collide on world itself.

type animalWorld struct{ *world }

func (a animalWorld) Create(_ context.Context, an *models.Animal) error {
	a.animals[an.ID] = an
	return nil
}

func (a animalWorld) Get(_ context.Context, id string) (*models.Animal, error) {
	return a.animals[id], nil
}

func (a animalWorld) MergedInto(_ context.Context, id string) (*string, bool, error) {
	if an, ok := a.animals[id]; ok {
		return an.MergedInto, true, nil
	}
	return nil, false, nil
}

type placeWorld struct{ *world }

func (p placeWorld) Create(_ context.Context, pl *models.Place) error {
	p.places[pl.ID] = pl
	return nil
}

func (p placeWorld) Get(_ context.Context, id string) (*models.Place, error) {
	return p.places[id], nil
}

func (p placeWorld) GetByAddressKey(_ context.Context, key string) (*models.Place, error) {
	for _, pl := range p.places {
		if pl.AddressKey == key {
			return pl, nil
		}
	}
	return nil, nil
}

func (p placeWorld) MergedInto(_ context.Context, id string) (*string, bool, error) {
	if pl, ok := p.places[id]; ok {
		return pl.MergedInto, true, nil
	}
	return nil, false, nil
}

type decisionWorld struct{ *world }

func (d decisionWorld) Create(_ context.Context, rec *models.DecisionRecord) error {
	d.decisions[rec.ID] = rec
	return nil
}

func (d decisionWorld) Get(_ context.Context, id string) (*models.DecisionRecord, error) {
	return d.decisions[id], nil
}

type blacklistWorld struct{ *world }

func (b blacklistWorld) Get(_ context.Context, _ models.IdentifierType, _ string) (*models.BlacklistEntry, error) {
	return nil, nil
}

type visitWorld struct{ *world }

func (v visitWorld) Create(_ context.Context, visit *models.Visit) error {
	v.world.visits = append(v.world.visits, visit)
	return nil
}

type fakeProjector struct{ *world }

func (f fakeProjector) ProjectPerson(_ context.Context, p *models.Person) error {
	f.world.projectedPersons = append(f.world.projectedPersons, p.ID)
	return nil
}

func (f fakeProjector) ProjectAnimal(_ context.Context, a *models.Animal) error {
	f.world.projectedAnimals = append(f.world.projectedAnimals, a.ID)
	return nil
}

type fakeEmitter struct{ *world }

func (f fakeEmitter) EmitResolutionDecided(_ context.Context, rec *models.DecisionRecord) error {
	f.world.emitted = append(f.world.emitted, rec.ID)
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestHandler(w *world) *Handler {
	bl := blacklistWorld{w}
	engine := matching.NewEngine(testLogger(), w, bl, matching.DefaultConfig())
	resolver := resolution.NewService(
		testLogger(),
		gate.New(nil),
		engine,
		bl,
		w,
		animalWorld{w},
		placeWorld{w},
		w,
		decisionWorld{w},
	)
	return NewHandler(
		testLogger(),
		resolver,
		visitWorld{w},
		w,
		animalWorld{w},
		decisionWorld{w},
		fakeProjector{w},
		fakeEmitter{w},
	)
}

func TestHandlePersonObservation(t *testing.T) {
	w := newWorld()
	h := newTestHandler(w)

	err := h.Handle(context.Background(), &models.Observation{
		Kind:         models.ObservationPerson,
		SourceSystem: "clinichq",
		Person: &models.PersonInput{
			FirstName: "Maria",
			LastName:  "Lopez",
			Email:     "maria.lopez@example.com",
		},
	})
	require.NoError(t, err)

	require.Len(t, w.persons, 1)
	assert.Len(t, w.projectedPersons, 1, "resolved person should be mirrored to the graph")
	require.Len(t, w.decisions, 1)
	assert.Len(t, w.emitted, 1, "decision should be published")
}

func TestHandleAnimalObservation(t *testing.T) {
	w := newWorld()
	h := newTestHandler(w)

	err := h.Handle(context.Background(), &models.Observation{
		Kind:         models.ObservationAnimal,
		SourceSystem: "clinichq",
		Animal: &models.AnimalInput{
			IDType:  models.IdentifierTypeMicrochip,
			IDValue: "985112004567890",
			Name:    "Patches",
			Species: "cat",
		},
	})
	require.NoError(t, err)

	require.Len(t, w.animals, 1)
	assert.Len(t, w.projectedAnimals, 1)
}

func TestHandleAnimalObservationEmptyIdentifier(t *testing.T) {
	w := newWorld()
	h := newTestHandler(w)

	err := h.Handle(context.Background(), &models.Observation{
		Kind:         models.ObservationAnimal,
		SourceSystem: "clinichq",
		Animal:       &models.AnimalInput{IDType: models.IdentifierTypeMicrochip, IDValue: "   "},
	})
	require.NoError(t, err)

	assert.Empty(t, w.animals, "unusable identifier should not create an animal")
	assert.Empty(t, w.projectedAnimals)
}

func TestHandleVisitObservation(t *testing.T) {
	w := newWorld()
	h := newTestHandler(w)

	err := h.Handle(context.Background(), &models.Observation{
		Kind:         models.ObservationVisit,
		SourceSystem: "clinichq",
		Visit: &models.VisitInput{
			PersonID:    "p1",
			AnimalID:    "a1",
			AddressText: "  890 Rockwell Road  ",
			VisitedAt:   "2026-03-14T10:30:00Z",
		},
	})
	require.NoError(t, err)

	require.Len(t, w.visits, 1)
	visit := w.visits[0]
	require.NotNil(t, visit.PersonID)
	assert.Equal(t, "p1", *visit.PersonID)
	require.NotNil(t, visit.AddressText)
	assert.Equal(t, "890 Rockwell Road", *visit.AddressText)
	require.NotNil(t, visit.AddressKey, "trimmed address should produce a key")
	require.NotNil(t, visit.VisitedAt)
	assert.Equal(t, 2026, visit.VisitedAt.Year())
}

func TestHandleVisitObservationBadTimestamp(t *testing.T) {
	w := newWorld()
	h := newTestHandler(w)

	err := h.Handle(context.Background(), &models.Observation{
		Kind:         models.ObservationVisit,
		SourceSystem: "clinichq",
		Visit:        &models.VisitInput{AddressText: "890 Rockwell Rd", VisitedAt: "yesterday"},
	})
	require.NoError(t, err)

	require.Len(t, w.visits, 1)
	assert.Nil(t, w.visits[0].VisitedAt, "bad timestamp is dropped, not fatal")
}

func TestHandleRejectsMissingPayload(t *testing.T) {
	w := newWorld()
	h := newTestHandler(w)

	tests := []struct {
		name string
		obs  *models.Observation
	}{
		{"person kind without payload", &models.Observation{Kind: models.ObservationPerson, SourceSystem: "clinichq"}},
		{"animal kind without payload", &models.Observation{Kind: models.ObservationAnimal, SourceSystem: "clinichq"}},
		{"visit kind without payload", &models.Observation{Kind: models.ObservationVisit, SourceSystem: "clinichq"}},
		{"unknown kind", &models.Observation{Kind: "sighting", SourceSystem: "clinichq"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { err = h.Handle(context.Background(), tt.obs) })
			assert.Error(t, err)
		})
	}

	assert.Empty(t, w.persons)
	assert.Empty(t, w.animals)
	assert.Empty(t, w.visits)
}

func TestHandleMessageDropsMalformed(t *testing.T) {
	w := newWorld()
	h := newTestHandler(w)

	msg := &kafka.IncomingMessage{Value: []byte(`{"kind": "sighting"`), Topic: "observations"}
	err := h.HandleMessage(context.Background(), msg)

	assert.NoError(t, err, "malformed messages are dropped so the offset commits")
	assert.Empty(t, w.persons)
	assert.Empty(t, w.visits)
}
