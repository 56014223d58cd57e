package models

import (
	"encoding/json"
	"time"
)

// EntityKind discriminates the three entity tables.
type EntityKind string

const (
	EntityKindPerson EntityKind = "person"
	EntityKindPlace  EntityKind = "place"
	EntityKindAnimal EntityKind = "animal"
)

// MaxMergeHops bounds canonical-pointer traversal. A chain longer than this
// (or any revisit) is treated as corruption and the walk stops at the last
// sound node.
const MaxMergeHops = 32

// Person is a canonical (or merged-away) person record.
type Person struct {
	ID           string          `json:"id" db:"id"`
	FirstName    string          `json:"first_name" db:"first_name"`
	LastName     string          `json:"last_name,omitempty" db:"last_name"`
	DisplayName  string          `json:"display_name" db:"display_name"`
	NameKey      string          `json:"name_key" db:"name_key"` // normalized display name, match index
	Email        *string         `json:"email,omitempty" db:"email"`
	Phone        *string         `json:"phone,omitempty" db:"phone"`
	AddressText  *string         `json:"address_text,omitempty" db:"address_text"`
	AddressKey   *string         `json:"address_key,omitempty" db:"address_key"`
	Attributes   json.RawMessage `json:"attributes,omitempty" db:"attributes"`
	SourceSystem string          `json:"source_system" db:"source_system"`
	MergedInto   *string         `json:"merged_into,omitempty" db:"merged_into"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// IsCanonical reports whether this record is its own representative.
func (p *Person) IsCanonical() bool {
	return p.MergedInto == nil
}

// PlaceKind classifies a place for propagation rules. Organization and site
// places are never inherited through an owner chain.
type PlaceKind string

const (
	PlaceKindResidence    PlaceKind = "residence"
	PlaceKindOrganization PlaceKind = "organization"
	PlaceKindSite         PlaceKind = "site"
	PlaceKindUnknown      PlaceKind = "unknown"
)

// InheritableThroughOwner reports whether an animal may inherit this kind of
// place from its owner's best place.
func (k PlaceKind) InheritableThroughOwner() bool {
	return k == PlaceKindResidence || k == PlaceKindUnknown
}

// Place is a physical location record. ParentPlaceID builds the hierarchy
// used by place families (unit -> building, stall -> market, ...).
type Place struct {
	ID            string          `json:"id" db:"id"`
	Name          string          `json:"name,omitempty" db:"name"`
	AddressText   string          `json:"address_text" db:"address_text"`
	AddressKey    string          `json:"address_key" db:"address_key"`
	Kind          PlaceKind       `json:"kind" db:"kind"`
	ParentPlaceID *string         `json:"parent_place_id,omitempty" db:"parent_place_id"`
	Latitude      *float64        `json:"latitude,omitempty" db:"latitude"`
	Longitude     *float64        `json:"longitude,omitempty" db:"longitude"`
	Attributes    json.RawMessage `json:"attributes,omitempty" db:"attributes"`
	SourceSystem  string          `json:"source_system" db:"source_system"`
	MergedInto    *string         `json:"merged_into,omitempty" db:"merged_into"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

func (p *Place) IsCanonical() bool {
	return p.MergedInto == nil
}

// HasCoordinates reports whether the place has been geocoded.
func (p *Place) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// Animal is an animal record (cats, mostly).
type Animal struct {
	ID           string          `json:"id" db:"id"`
	Name         string          `json:"name,omitempty" db:"name"`
	Species      string          `json:"species" db:"species"`
	Attributes   json.RawMessage `json:"attributes,omitempty" db:"attributes"`
	SourceSystem string          `json:"source_system" db:"source_system"`
	MergedInto   *string         `json:"merged_into,omitempty" db:"merged_into"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

func (a *Animal) IsCanonical() bool {
	return a.MergedInto == nil
}
