package models

import "time"

// Visit is one interaction record (a clinic appointment, typically),
// ingested independently of resolution. Propagation passes use visits to
// derive animal-place and person-place links; PlaceID stays nil until a pass
// resolves the address.
type Visit struct {
	ID           string     `json:"id" db:"id"`
	PersonID     *string    `json:"person_id,omitempty" db:"person_id"`
	AnimalID     *string    `json:"animal_id,omitempty" db:"animal_id"`
	PlaceID      *string    `json:"place_id,omitempty" db:"place_id"`
	AddressText  *string    `json:"address_text,omitempty" db:"address_text"`
	AddressKey   *string    `json:"address_key,omitempty" db:"address_key"`
	VisitedAt    *time.Time `json:"visited_at,omitempty" db:"visited_at"`
	SourceSystem string     `json:"source_system" db:"source_system"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
