package models

import (
	"encoding/json"
	"fmt"
)

// ObservationKind discriminates the payloads on the ingestion topic.
type ObservationKind string

const (
	ObservationPerson ObservationKind = "person_observation"
	ObservationAnimal ObservationKind = "animal_observation"
	ObservationVisit  ObservationKind = "visit"
)

// Observation is the envelope source adapters publish to Kafka. One message,
// one record; adapters own parsing their source formats.
type Observation struct {
	Kind         ObservationKind `json:"kind" validate:"required"`
	SourceSystem string          `json:"source_system" validate:"required"`
	SourceKey    string          `json:"source_key,omitempty"` // adapter's record id, for traceability
	Person       *PersonInput    `json:"person,omitempty"`
	Animal       *AnimalInput    `json:"animal,omitempty"`
	Visit        *VisitInput     `json:"visit,omitempty"`
}

// Validate confirms the envelope carries the payload its kind names. Struct
// tags cannot express this cross-field constraint, so every ingestion
// boundary calls it before routing.
func (o *Observation) Validate() error {
	switch o.Kind {
	case ObservationPerson:
		if o.Person == nil {
			return fmt.Errorf("observation kind %q carries no person payload", o.Kind)
		}
	case ObservationAnimal:
		if o.Animal == nil {
			return fmt.Errorf("observation kind %q carries no animal payload", o.Kind)
		}
	case ObservationVisit:
		if o.Visit == nil {
			return fmt.Errorf("observation kind %q carries no visit payload", o.Kind)
		}
	default:
		return fmt.Errorf("unknown observation kind %q", o.Kind)
	}
	return nil
}

// PersonInput is a raw person record from a source adapter.
type PersonInput struct {
	Email       string          `json:"email,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name,omitempty"`
	DisplayName string          `json:"display_name,omitempty"`
	AddressText string          `json:"address_text,omitempty"`
	Attributes  json.RawMessage `json:"attributes,omitempty"`
}

// AnimalInput is a raw animal record keyed by an external identifier.
type AnimalInput struct {
	IDType     IdentifierType  `json:"id_type"`
	IDValue    string          `json:"id_value"`
	Name       string          `json:"name,omitempty"`
	Species    string          `json:"species,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// VisitInput is a raw interaction record. Animal and person references use
// the same external identifiers the adapters resolve through
// resolveAnimal/resolvePerson; ids here are already-resolved entity ids.
type VisitInput struct {
	PersonID    string `json:"person_id,omitempty"`
	AnimalID    string `json:"animal_id,omitempty"`
	AddressText string `json:"address_text,omitempty"`
	VisitedAt   string `json:"visited_at,omitempty"` // RFC3339
}
