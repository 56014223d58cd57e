// Package matching scores incoming person records against existing person
// entities. The engine pulls candidates that share at least one normalized
// signal, scores each signal pair, and combines them under configured
// weights. Signals present on only one side contribute nothing, so sparse
// records are not penalized for what they never carried.
package matching

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/tracing"
)

// Signals are the normalized fields of an incoming person record. Empty
// string means the signal is absent.
type Signals struct {
	Email      string
	Phone      string
	NameKey    string
	AddressKey string
}

// HasAny reports whether at least one signal is present.
func (s Signals) HasAny() bool {
	return s.Email != "" || s.Phone != "" || s.NameKey != "" || s.AddressKey != ""
}

// Candidate is one scored existing person.
type Candidate struct {
	Person    models.Person
	Score     float64
	Breakdown models.ScoreBreakdown
}

// CandidateStore finds canonical persons sharing at least one signal with
// the given input. Implementations must exclude merged-away rows.
type CandidateStore interface {
	FindBySharedSignals(ctx context.Context, sig Signals) ([]models.Person, error)
}

// BlacklistStore looks up soft-blacklisted identifiers. A nil entry means
// the value is not blacklisted.
type BlacklistStore interface {
	Get(ctx context.Context, idType models.IdentifierType, valueNormalized string) (*models.BlacklistEntry, error)
}

// Config carries the scoring weights and the candidate cap. The thresholds
// that act on the final score live with the decision engine; only the
// per-signal weights are tunable here.
type Config struct {
	EmailWeight   float64
	PhoneWeight   float64
	NameWeight    float64
	AddressWeight float64
	MaxCandidates int // cap on candidates returned per record (default: 5)
}

// DefaultConfig returns the production weights.
func DefaultConfig() Config {
	return Config{
		EmailWeight:   0.4,
		PhoneWeight:   0.3,
		NameWeight:    0.2,
		AddressWeight: 0.1,
		MaxCandidates: 5,
	}
}

// Engine scores incoming records against existing persons.
type Engine struct {
	logger    ectologger.Logger
	persons   CandidateStore
	blacklist BlacklistStore
	scorer    *Scorer
	cfg       Config
}

// NewEngine creates a new match engine.
func NewEngine(logger ectologger.Logger, persons CandidateStore, blacklist BlacklistStore, cfg Config) *Engine {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultConfig().MaxCandidates
	}
	return &Engine{
		logger:    logger,
		persons:   persons,
		blacklist: blacklist,
		scorer:    NewScorer(),
		cfg:       cfg,
	}
}

// BestCandidate returns the highest-scoring existing person sharing a
// signal, or nil when nothing shares any signal. Ties break toward the most
// recently updated person.
func (e *Engine) BestCandidate(ctx context.Context, sig Signals) (*Candidate, error) {
	candidates, err := e.TopCandidates(ctx, sig)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// TopCandidates returns up to MaxCandidates scored persons, best first.
func (e *Engine) TopCandidates(ctx context.Context, sig Signals) ([]Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.TopCandidates")
	defer span.End()

	log := e.logger.WithContext(ctx)

	if !sig.HasAny() {
		return nil, nil
	}

	persons, err := e.persons.FindBySharedSignals(ctx, sig)
	if err != nil {
		return nil, err
	}
	if len(persons) == 0 {
		return nil, nil
	}

	candidates := make([]Candidate, 0, len(persons))
	for _, p := range persons {
		score, breakdown, err := e.score(ctx, sig, p)
		if err != nil {
			return nil, err
		}
		if score <= 0 {
			continue
		}
		candidates = append(candidates, Candidate{Person: p, Score: score, Breakdown: breakdown})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Person.UpdatedAt.After(candidates[j].Person.UpdatedAt)
	})

	if len(candidates) > e.cfg.MaxCandidates {
		candidates = candidates[:e.cfg.MaxCandidates]
	}

	log.WithFields(map[string]any{"candidate_count": len(candidates)}).Debug("Scored match candidates")

	return candidates, nil
}

// MaxNameSimilarity returns the highest name similarity among candidates
// sharing the given identifier value. The gate uses this when an incoming
// identifier is soft-blacklisted.
func (e *Engine) MaxNameSimilarity(ctx context.Context, sig Signals) (float64, error) {
	persons, err := e.persons.FindBySharedSignals(ctx, sig)
	if err != nil {
		return 0, err
	}
	best := 0.0
	for _, p := range persons {
		if p.NameKey == "" || sig.NameKey == "" {
			continue
		}
		if sim := e.scorer.NameSimilarity(sig.NameKey, p.NameKey); sim > best {
			best = sim
		}
	}
	return best, nil
}

// score compares one incoming record against one person. Exact identifier
// agreement on a soft-blacklisted value only counts when name similarity
// clears the entry's required threshold.
func (e *Engine) score(ctx context.Context, sig Signals, p models.Person) (float64, models.ScoreBreakdown, error) {
	breakdown := models.ScoreBreakdown{
		EmailWeight:   e.cfg.EmailWeight,
		PhoneWeight:   e.cfg.PhoneWeight,
		NameWeight:    e.cfg.NameWeight,
		AddressWeight: e.cfg.AddressWeight,
	}

	nameSim := 0.0
	if sig.NameKey != "" && p.NameKey != "" {
		nameSim = e.scorer.NameSimilarity(sig.NameKey, p.NameKey)
	}

	scores := make(map[string]float64, 4)
	weights := map[string]float64{
		"email":   e.cfg.EmailWeight,
		"phone":   e.cfg.PhoneWeight,
		"name":    e.cfg.NameWeight,
		"address": e.cfg.AddressWeight,
	}

	if sig.Email != "" && p.Email != nil && *p.Email != "" {
		match := e.scorer.ExactMatch(sig.Email, *p.Email)
		if match == 1.0 {
			usable, err := e.identifierUsable(ctx, models.IdentifierTypeEmail, sig.Email, nameSim)
			if err != nil {
				return 0, breakdown, err
			}
			if !usable {
				match = 0.0
			}
		}
		scores["email"] = match
		breakdown.EmailMatch = match == 1.0
	}

	if sig.Phone != "" && p.Phone != nil && *p.Phone != "" {
		match := e.scorer.ExactMatch(sig.Phone, *p.Phone)
		if match == 1.0 {
			usable, err := e.identifierUsable(ctx, models.IdentifierTypePhone, sig.Phone, nameSim)
			if err != nil {
				return 0, breakdown, err
			}
			if !usable {
				match = 0.0
			}
		}
		scores["phone"] = match
		breakdown.PhoneMatch = match == 1.0
	}

	if sig.NameKey != "" && p.NameKey != "" {
		scores["name"] = nameSim
		breakdown.NameSimilarity = nameSim
	}

	if sig.AddressKey != "" && p.AddressKey != nil && *p.AddressKey != "" {
		addrSim := e.scorer.Levenshtein(sig.AddressKey, *p.AddressKey)
		scores["address"] = addrSim
		breakdown.AddressSimilarity = addrSim
	}

	total := e.scorer.WeightedScore(scores, weights)
	breakdown.Total = total
	return total, breakdown, nil
}

// identifierUsable checks whether an exact identifier match may count toward
// the score. Blacklisted values need name similarity at or above the entry's
// threshold.
func (e *Engine) identifierUsable(ctx context.Context, idType models.IdentifierType, value string, nameSim float64) (bool, error) {
	if e.blacklist == nil {
		return true, nil
	}
	entry, err := e.blacklist.Get(ctx, idType, value)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return true, nil
	}
	return nameSim >= entry.RequiredNameSimilarity, nil
}
