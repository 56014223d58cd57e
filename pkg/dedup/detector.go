// Package dedup surfaces pairs of canonical persons that likely describe
// the same human. Detection is an offline read-only pass; pairs go to a
// reviewer's queue and are never merged automatically.
package dedup

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/whiskertrace/trapper/pkg/matching"
	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/tracing"
)

// Tiers, strongest signal first. Reviewers work the queue top down.
const (
	TierEmailAndPhone = 1
	TierEmailOnly     = 2
	TierPhoneOnly     = 3
	TierExactName     = 4
	TierFuzzyName     = 5
)

// Pair is one dedup candidate for review.
type Pair struct {
	PersonAID      string   `json:"person_a_id"`
	PersonBID      string   `json:"person_b_id"`
	Tier           int      `json:"tier"`
	SharedEmail    *string  `json:"shared_email,omitempty"`
	SharedPhone    *string  `json:"shared_phone,omitempty"`
	NameSimilarity float64  `json:"name_similarity"`
}

// PersonSource lists canonical persons.
type PersonSource interface {
	ListCanonical(ctx context.Context) ([]models.Person, error)
}

// IdentifierSource lists person-owned identifiers of one type at or above a
// confidence floor.
type IdentifierSource interface {
	ListPersonOwned(ctx context.Context, idType models.IdentifierType, minConfidence float64) ([]models.Identifier, error)
}

// DispositionSource reports pairs a reviewer has already handled, in either
// order.
type DispositionSource interface {
	IsDispositioned(ctx context.Context, personAID, personBID string) (bool, error)
}

// Config tunes detection.
type Config struct {
	MinIdentifierConfidence float64 // identifiers below this never pair (default: 0.5)
	FuzzyNameThreshold      float64 // Jaro-Winkler floor for tier 5 (default: 0.85)
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		MinIdentifierConfidence: 0.5,
		FuzzyNameThreshold:      0.85,
	}
}

// Detector finds dedup candidates.
type Detector struct {
	logger       ectologger.Logger
	persons      PersonSource
	identifiers  IdentifierSource
	blacklist    matching.BlacklistStore
	dispositions DispositionSource
	scorer       *matching.Scorer
	cfg          Config
}

// NewDetector creates a detector.
func NewDetector(
	logger ectologger.Logger,
	persons PersonSource,
	identifiers IdentifierSource,
	blacklist matching.BlacklistStore,
	dispositions DispositionSource,
	cfg Config,
) *Detector {
	if cfg.MinIdentifierConfidence <= 0 {
		cfg.MinIdentifierConfidence = DefaultConfig().MinIdentifierConfidence
	}
	if cfg.FuzzyNameThreshold <= 0 {
		cfg.FuzzyNameThreshold = DefaultConfig().FuzzyNameThreshold
	}
	return &Detector{
		logger:       logger,
		persons:      persons,
		identifiers:  identifiers,
		blacklist:    blacklist,
		dispositions: dispositions,
		scorer:       matching.NewScorer(),
		cfg:          cfg,
	}
}

// Detect returns candidate pairs ordered by tier, then ids. Pairs whose only
// shared signal is a blacklisted identifier are excluded, as are pairs
// already dispositioned by review.
func (d *Detector) Detect(ctx context.Context) ([]Pair, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Detector.Detect")
	defer span.End()

	log := d.logger.WithContext(ctx)

	sharedEmails, err := d.sharedValues(ctx, models.IdentifierTypeEmail)
	if err != nil {
		return nil, err
	}
	sharedPhones, err := d.sharedValues(ctx, models.IdentifierTypePhone)
	if err != nil {
		return nil, err
	}

	drafts := make(map[[2]string]*draftPair)

	for value, owners := range sharedEmails {
		v := value
		for _, key := range pairKeys(owners) {
			dr := drafts[key]
			if dr == nil {
				dr = &draftPair{}
				drafts[key] = dr
			}
			dr.email = &v
		}
	}
	for value, owners := range sharedPhones {
		v := value
		for _, key := range pairKeys(owners) {
			dr := drafts[key]
			if dr == nil {
				dr = &draftPair{}
				drafts[key] = dr
			}
			dr.phone = &v
		}
	}

	persons, err := d.persons.ListCanonical(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Person, len(persons))
	for _, p := range persons {
		byID[p.ID] = p
	}

	var pairs []Pair
	for key, dr := range drafts {
		a, aOK := byID[key[0]]
		b, bOK := byID[key[1]]
		if !aOK || !bOK {
			continue
		}

		tier := TierPhoneOnly
		switch {
		case dr.email != nil && dr.phone != nil:
			tier = TierEmailAndPhone
		case dr.email != nil:
			tier = TierEmailOnly
		}

		pairs = append(pairs, Pair{
			PersonAID:      key[0],
			PersonBID:      key[1],
			Tier:           tier,
			SharedEmail:    dr.email,
			SharedPhone:    dr.phone,
			NameSimilarity: d.nameSimilarity(a, b),
		})
	}

	namePairs := d.namePairs(persons, drafts)
	pairs = append(pairs, namePairs...)

	filtered := pairs[:0]
	for _, p := range pairs {
		done, err := d.dispositions.IsDispositioned(ctx, p.PersonAID, p.PersonBID)
		if err != nil {
			return nil, err
		}
		if !done {
			filtered = append(filtered, p)
		}
	}
	pairs = filtered

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Tier != pairs[j].Tier {
			return pairs[i].Tier < pairs[j].Tier
		}
		if pairs[i].PersonAID != pairs[j].PersonAID {
			return pairs[i].PersonAID < pairs[j].PersonAID
		}
		return pairs[i].PersonBID < pairs[j].PersonBID
	})

	log.WithFields(map[string]any{"pair_count": len(pairs)}).Info("Detected dedup candidates")

	return pairs, nil
}

// sharedValues maps each non-blacklisted identifier value to the distinct
// canonical owners sharing it, keeping only values with two or more owners.
func (d *Detector) sharedValues(ctx context.Context, idType models.IdentifierType) (map[string][]string, error) {
	idents, err := d.identifiers.ListPersonOwned(ctx, idType, d.cfg.MinIdentifierConfidence)
	if err != nil {
		return nil, err
	}

	owners := make(map[string][]string)
	for _, ident := range idents {
		owners[ident.ValueNormalized] = append(owners[ident.ValueNormalized], ident.OwnerID)
	}

	shared := make(map[string][]string)
	for value, ids := range owners {
		distinct := uniqueStrings(ids)
		if len(distinct) < 2 {
			continue
		}
		entry, err := d.blacklist.Get(ctx, idType, value)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			continue
		}
		shared[value] = distinct
	}
	return shared, nil
}

// draftPair accumulates the shared identifier values for one candidate
// pair before its tier is assigned.
type draftPair struct {
	email *string
	phone *string
}

// namePairs finds tier 4 and 5 pairs among persons that share no usable
// identifier.
func (d *Detector) namePairs(persons []models.Person, existing map[[2]string]*draftPair) []Pair {
	var pairs []Pair
	for i := 0; i < len(persons); i++ {
		for j := i + 1; j < len(persons); j++ {
			a, b := persons[i], persons[j]
			if a.NameKey == "" || b.NameKey == "" {
				continue
			}
			key := orderedKey(a.ID, b.ID)
			if _, ok := existing[key]; ok {
				continue
			}

			if a.NameKey == b.NameKey {
				pairs = append(pairs, Pair{
					PersonAID:      key[0],
					PersonBID:      key[1],
					Tier:           TierExactName,
					NameSimilarity: 1.0,
				})
				continue
			}

			sim := d.scorer.JaroWinkler(a.NameKey, b.NameKey)
			if sim >= d.cfg.FuzzyNameThreshold {
				pairs = append(pairs, Pair{
					PersonAID:      key[0],
					PersonBID:      key[1],
					Tier:           TierFuzzyName,
					NameSimilarity: sim,
				})
			}
		}
	}
	return pairs
}

func (d *Detector) nameSimilarity(a, b models.Person) float64 {
	if a.NameKey == "" || b.NameKey == "" {
		return 0
	}
	return d.scorer.NameSimilarity(a.NameKey, b.NameKey)
}

func pairKeys(owners []string) [][2]string {
	var keys [][2]string
	for i := 0; i < len(owners); i++ {
		for j := i + 1; j < len(owners); j++ {
			keys = append(keys, orderedKey(owners[i], owners[j]))
		}
	}
	return keys
}

func orderedKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
