package resolution

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whiskertrace/trapper/pkg/gate"
	"github.com/whiskertrace/trapper/pkg/matching"
	"github.com/whiskertrace/trapper/pkg/models"
)

// memStore backs every store interface the decision engine needs, so one
// fixture exercises the whole gate -> scorer -> decision path in memory.
type memStore struct {
	persons     map[string]*models.Person
	animals     map[string]*models.Animal
	places      map[string]*models.Place
	identifiers map[string]*models.Identifier // keyed by type:value
	decisions   []*models.DecisionRecord
	blacklist   map[string]*models.BlacklistEntry
}

func newMemStore() *memStore {
	return &memStore{
		persons:     make(map[string]*models.Person),
		animals:     make(map[string]*models.Animal),
		places:      make(map[string]*models.Place),
		identifiers: make(map[string]*models.Identifier),
		blacklist:   make(map[string]*models.BlacklistEntry),
	}
}

func (m *memStore) Create(ctx context.Context, p *models.Person) error {
	p.UpdatedAt = time.Now()
	m.persons[p.ID] = p
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*models.Person, error) {
	return m.persons[id], nil
}

func (m *memStore) FillMissingContact(_ context.Context, id string, email, phone, addressText, addressKey *string) error {
	p, ok := m.persons[id]
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

func (m *memStore) MergedInto(_ context.Context, id string) (*string, bool, error) {
	if p, ok := m.persons[id]; ok {
		return p.MergedInto, true, nil
	}
	return nil, false, nil
}

func (m *memStore) FindBySharedSignals(_ context.Context, sig matching.Signals) ([]models.Person, error) {
	var out []models.Person
	for _, p := range m.persons {
		if !p.IsCanonical() {
			continue
		}
		shared := false
		if sig.Email != "" && p.Email != nil && *p.Email == sig.Email {
			shared = true
		}
		if sig.Phone != "" && p.Phone != nil && *p.Phone == sig.Phone {
			shared = true
		}
		if sig.NameKey != "" && p.NameKey == sig.NameKey {
			shared = true
		}
		if sig.AddressKey != "" && p.AddressKey != nil && *p.AddressKey == sig.AddressKey {
			shared = true
		}
		if shared {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) Upsert(_ context.Context, ident *models.Identifier) error {
	m.identifiers[string(ident.IDType)+":"+ident.ValueNormalized] = ident
	return nil
}

func (m *memStore) GetByValue(_ context.Context, idType models.IdentifierType, value string) (*models.Identifier, error) {
	return m.identifiers[string(idType)+":"+value], nil
}

func (m *memStore) CreateDecision(_ context.Context, rec *models.DecisionRecord) error {
	m.decisions = append(m.decisions, rec)
	return nil
}

func (m *memStore) GetBlacklist(_ context.Context, idType models.IdentifierType, value string) (*models.BlacklistEntry, error) {
	return m.blacklist[string(idType)+":"+value], nil
}

// Narrow adapters so one memStore can satisfy several single-method
// interfaces with colliding method names.
type animalStore struct{ *memStore }

func (a animalStore) Create(_ context.Context, an *models.Animal) error {
	a.animals[an.ID] = an
	return nil
}

func (a animalStore) Get(_ context.Context, id string) (*models.Animal, error) {
	return a.animals[id], nil
}

func (a animalStore) MergedInto(_ context.Context, id string) (*string, bool, error) {
	if an, ok := a.animals[id]; ok {
		return an.MergedInto, true, nil
	}
	return nil, false, nil
}

type placeStore struct{ *memStore }

func (p placeStore) Create(_ context.Context, pl *models.Place) error {
	p.places[pl.ID] = pl
	return nil
}

func (p placeStore) Get(_ context.Context, id string) (*models.Place, error) {
	return p.places[id], nil
}

func (p placeStore) GetByAddressKey(_ context.Context, key string) (*models.Place, error) {
	for _, pl := range p.places {
		if pl.AddressKey == key {
			return pl, nil
		}
	}
	return nil, nil
}

func (p placeStore) MergedInto(_ context.Context, id string) (*string, bool, error) {
	if pl, ok := p.places[id]; ok {
		return pl.MergedInto, true, nil
	}
	return nil, false, nil
}

type decisionStore struct{ *memStore }

func (d decisionStore) Create(ctx context.Context, rec *models.DecisionRecord) error {
	return d.CreateDecision(ctx, rec)
}

type blacklistStore struct{ *memStore }

func (b blacklistStore) Get(ctx context.Context, idType models.IdentifierType, value string) (*models.BlacklistEntry, error) {
	return b.GetBlacklist(ctx, idType, value)
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestService(store *memStore) *Service {
	bl := blacklistStore{store}
	engine := matching.NewEngine(testLogger(), store, bl, matching.DefaultConfig())
	return NewService(
		testLogger(),
		gate.New([]string{"forgottenfelines.example"}),
		engine,
		bl,
		store,
		animalStore{store},
		placeStore{store},
		store,
		decisionStore{store},
	)
}

func TestResolvePersonNewEntity(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	result, err := svc.ResolvePerson(context.Background(), PersonRequest{
		Email:        "Maria.Lopez@Example.com",
		FirstName:    "Maria",
		LastName:     "Lopez",
		SourceSystem: "clinichq",
	})
	require.NoError(t, err)

	assert.Equal(t, models.DecisionNewEntity, result.Decision)
	require.NotNil(t, result.PersonID)

	created := store.persons[*result.PersonID]
	require.NotNil(t, created)
	assert.Equal(t, "maria lopez", created.NameKey)
	require.NotNil(t, created.Email)
	assert.Equal(t, "maria.lopez@example.com", *created.Email)

	require.Len(t, store.decisions, 1)
	rec := store.decisions[0]
	assert.Equal(t, models.DecisionNewEntity, rec.Decision)
	assert.Equal(t, models.ReviewNotRequired, rec.ReviewStatus)
	require.NotNil(t, rec.PersonID)
	assert.Equal(t, *result.PersonID, *rec.PersonID)
}

func TestResolvePersonTwiceIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	req := PersonRequest{
		Email:        "maria@example.com",
		FirstName:    "Maria",
		LastName:     "Lopez",
		SourceSystem: "clinichq",
	}

	first, err := svc.ResolvePerson(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionNewEntity, first.Decision)

	second, err := svc.ResolvePerson(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAutoMatch, second.Decision)
	assert.InDelta(t, 1.0, second.Confidence, 0.0001)
	require.NotNil(t, second.PersonID)
	assert.Equal(t, *first.PersonID, *second.PersonID)

	assert.Len(t, store.persons, 1, "no duplicate person created")
	assert.Len(t, store.decisions, 2, "each attempt writes its own record")
}

func TestResolvePersonGateRejection(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	result, err := svc.ResolvePerson(context.Background(), PersonRequest{
		Email:        "info@vetclinic.example",
		FirstName:    "Front",
		LastName:     "Desk",
		SourceSystem: "clinichq",
	})
	require.NoError(t, err)

	assert.Equal(t, models.DecisionRejected, result.Decision)
	assert.Equal(t, gate.ReasonGenericEmailPrefix, result.Reason)
	assert.Nil(t, result.PersonID)
	assert.Empty(t, store.persons, "rejection creates no entity")

	require.Len(t, store.decisions, 1)
	assert.Equal(t, models.DecisionRejected, store.decisions[0].Decision)
	assert.Nil(t, store.decisions[0].PersonID)
}

func TestResolvePersonReviewBand(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	// Existing person sharing only a similar name and the same phone: the
	// phone agrees, the name partially agrees, no email on either side.
	phone := "7075551234"
	store.persons["p1"] = &models.Person{
		ID:        "p1",
		NameKey:   "maria lopes",
		Phone:     &phone,
		UpdatedAt: time.Now(),
	}

	result, err := svc.ResolvePerson(context.Background(), PersonRequest{
		Phone:        "707-555-1234",
		FirstName:    "Mariana",
		LastName:     "Lopez",
		SourceSystem: "airtable",
	})
	require.NoError(t, err)

	// phone exact (weight .3) + imperfect name (weight .2) lands between
	// the review and auto-match thresholds.
	assert.Equal(t, models.DecisionReviewPending, result.Decision)
	require.NotNil(t, result.PersonID)
	assert.Equal(t, "p1", *result.PersonID)

	require.Len(t, store.decisions, 1)
	assert.Equal(t, models.ReviewPending, store.decisions[0].ReviewStatus)
}

func TestResolveAnimalByMicrochip(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	req := AnimalRequest{
		IDType:       models.IdentifierTypeMicrochip,
		IDValue:      "985-112-001-234-567",
		Name:         "Pumpkin",
		Species:      "cat",
		SourceSystem: "clinichq",
	}

	first, err := svc.ResolveAnimal(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.ResolveAnimal(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, *first, *second, "same chip resolves to same animal")
	assert.Len(t, store.animals, 1)
}

func TestResolveAnimalUnusableIdentifier(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	id, err := svc.ResolveAnimal(context.Background(), AnimalRequest{
		IDType:       models.IdentifierTypeMicrochip,
		IDValue:      "---",
		SourceSystem: "clinichq",
	})
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Empty(t, store.animals)
}

func TestResolvePlaceByAddressKey(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	first, err := svc.ResolvePlace(context.Background(), PlaceRequest{
		AddressText:  "890 Rockwell Road, Windsor",
		SourceSystem: "airtable",
	})
	require.NoError(t, err)
	require.NotNil(t, first)

	// Same address in a different written form resolves to the same place.
	second, err := svc.ResolvePlace(context.Background(), PlaceRequest{
		AddressText:  "890 Rockwell Rd., Windsor",
		SourceSystem: "clinichq",
	})
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, *first, *second)
	assert.Len(t, store.places, 1)
}

func TestResolvePlaceEmptyAddress(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	id, err := svc.ResolvePlace(context.Background(), PlaceRequest{AddressText: "   "})
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestResolvePlaceKindFromName(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	id, err := svc.ResolvePlace(context.Background(), PlaceRequest{
		AddressText:  "100 Commerce Blvd, Rohnert Park",
		Name:         "FFSC Woodcrest MHP",
		SourceSystem: "airtable",
	})
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, models.PlaceKindSite, store.places[*id].Kind)
}
