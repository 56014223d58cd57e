package models

import (
	"fmt"
	"time"
)

// EdgeKind names the entity-kind pair an edge connects. Each kind has its own
// table.
type EdgeKind string

const (
	EdgeKindPersonPlace  EdgeKind = "person_place"
	EdgeKindPersonAnimal EdgeKind = "person_animal"
	EdgeKindAnimalPlace  EdgeKind = "animal_place"
)

// EdgeTables maps every edge kind to its table. Exhaustive by construction;
// ValidateEdgeTables is called at startup.
var EdgeTables = map[EdgeKind]string{
	EdgeKindPersonPlace:  "person_place_edges",
	EdgeKindPersonAnimal: "person_animal_edges",
	EdgeKindAnimalPlace:  "animal_place_edges",
}

// Endpoints returns the entity kinds for the A and B sides of an edge kind.
func (k EdgeKind) Endpoints() (EntityKind, EntityKind) {
	switch k {
	case EdgeKindPersonPlace:
		return EntityKindPerson, EntityKindPlace
	case EdgeKindPersonAnimal:
		return EntityKindPerson, EntityKindAnimal
	case EdgeKindAnimalPlace:
		return EntityKindAnimal, EntityKindPlace
	}
	return "", ""
}

// RelationshipType is the semantic label on an edge.
type RelationshipType string

const (
	RelationResidentOf  RelationshipType = "resident_of"  // person -> place
	RelationCaretakerAt RelationshipType = "caretaker_at" // person -> place
	RelationOwnerOf     RelationshipType = "owner_of"     // person -> animal
	RelationFosterOf    RelationshipType = "foster_of"    // person -> animal
	RelationTrapperOf   RelationshipType = "trapper_of"   // person -> animal
	RelationSeenAt      RelationshipType = "seen_at"      // animal -> place
	RelationLivesAt     RelationshipType = "lives_at"     // animal -> place
)

// legacyRelationshipTypes remaps historical free-text labels to the current
// enum. Every legacy label seen in imported data must appear here; an unknown
// label is a startup error, not a silent default.
var legacyRelationshipTypes = map[string]RelationshipType{
	"owner":       RelationOwnerOf,
	"owns":        RelationOwnerOf,
	"guardian":    RelationOwnerOf,
	"foster":      RelationFosterOf,
	"fostering":   RelationFosterOf,
	"trapper":     RelationTrapperOf,
	"trapped_by":  RelationTrapperOf,
	"resident":    RelationResidentOf,
	"lives_at":    RelationLivesAt,
	"resides_at":  RelationResidentOf,
	"caretaker":   RelationCaretakerAt,
	"colony_site": RelationSeenAt,
	"seen_at":     RelationSeenAt,
	"location":    RelationSeenAt,
}

// validRelationshipTypes is the closed set of current labels per edge kind.
var validRelationshipTypes = map[EdgeKind][]RelationshipType{
	EdgeKindPersonPlace:  {RelationResidentOf, RelationCaretakerAt},
	EdgeKindPersonAnimal: {RelationOwnerOf, RelationFosterOf, RelationTrapperOf},
	EdgeKindAnimalPlace:  {RelationSeenAt, RelationLivesAt},
}

// MapLegacyRelationshipType resolves a historical label. Current labels pass
// through unchanged.
func MapLegacyRelationshipType(raw string) (RelationshipType, error) {
	for _, types := range validRelationshipTypes {
		for _, t := range types {
			if string(t) == raw {
				return t, nil
			}
		}
	}
	if mapped, ok := legacyRelationshipTypes[raw]; ok {
		return mapped, nil
	}
	return "", fmt.Errorf("unmapped legacy relationship type %q", raw)
}

// ValidateEdgeTables confirms the remap tables are closed over the enum.
// Called once at startup so a bad mapping fails the boot, not a request.
func ValidateEdgeTables() error {
	for _, kind := range []EdgeKind{EdgeKindPersonPlace, EdgeKindPersonAnimal, EdgeKindAnimalPlace} {
		if _, ok := EdgeTables[kind]; !ok {
			return fmt.Errorf("edge kind %q has no table mapping", kind)
		}
		if len(validRelationshipTypes[kind]) == 0 {
			return fmt.Errorf("edge kind %q has no relationship types", kind)
		}
	}
	for raw, mapped := range legacyRelationshipTypes {
		if _, ok := edgeKindForRelationship(mapped); !ok {
			return fmt.Errorf("legacy label %q maps to unknown relationship type %q", raw, mapped)
		}
	}
	return nil
}

func edgeKindForRelationship(t RelationshipType) (EdgeKind, bool) {
	for kind, types := range validRelationshipTypes {
		for _, vt := range types {
			if vt == t {
				return kind, true
			}
		}
	}
	return "", false
}

// EdgeKindFor returns the edge kind a relationship type belongs to.
func EdgeKindFor(t RelationshipType) (EdgeKind, bool) {
	return edgeKindForRelationship(t)
}

// EvidenceType records what kind of observation produced an edge.
type EvidenceType string

const (
	EvidenceOwnerAddress  EvidenceType = "owner_address"
	EvidenceAppointment   EvidenceType = "appointment"
	EvidenceSharedAddress EvidenceType = "shared_address"
	EvidenceManual        EvidenceType = "manual"
	EvidenceImport        EvidenceType = "import"
)

// ConfidenceTier is a coarse confidence label accepted at write boundaries in
// place of a numeric confidence. The label is translated exactly once, where
// the request enters; stored edges always carry the numeric value.
type ConfidenceTier string

const (
	TierHigh    ConfidenceTier = "high"
	TierMedium  ConfidenceTier = "medium"
	TierLow     ConfidenceTier = "low"
	TierVeryLow ConfidenceTier = "very_low"
)

var tierConfidence = map[ConfidenceTier]float64{
	TierHigh:    0.9,
	TierMedium:  0.7,
	TierLow:     0.5,
	TierVeryLow: 0.3,
}

// ConfidenceForTier resolves a tier label to its numeric confidence.
func ConfidenceForTier(tier ConfidenceTier) (float64, bool) {
	confidence, ok := tierConfidence[tier]
	return confidence, ok
}

// Edge is a confidence-weighted link between two entities. Unique per
// (entity_a_id, entity_b_id, relationship_type); re-asserting with lower
// confidence never decreases the stored value.
type Edge struct {
	ID               string           `json:"id" db:"id"`
	EntityAID        string           `json:"entity_a_id" db:"entity_a_id"`
	EntityBID        string           `json:"entity_b_id" db:"entity_b_id"`
	RelationshipType RelationshipType `json:"relationship_type" db:"relationship_type"`
	Confidence       float64          `json:"confidence" db:"confidence"`
	EvidenceType     EvidenceType     `json:"evidence_type" db:"evidence_type"`
	SourceSystem     string           `json:"source_system" db:"source_system"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}
