package models

import "time"

// IdentifierType labels the kind of contact or tag identifier.
type IdentifierType string

const (
	IdentifierTypeEmail     IdentifierType = "email"
	IdentifierTypePhone     IdentifierType = "phone"
	IdentifierTypeMicrochip IdentifierType = "microchip"
	IdentifierTypeClinicID  IdentifierType = "clinic_id"
	IdentifierTypeEarTag    IdentifierType = "ear_tag"
)

// Identifier is a (type, normalized value) owned by exactly one person or
// animal. (id_type, value_normalized) is globally unique; inserting a value
// owned elsewhere reassigns ownership instead of duplicating the row.
type Identifier struct {
	ID              string         `json:"id" db:"id"`
	IDType          IdentifierType `json:"id_type" db:"id_type"`
	ValueRaw        string         `json:"value_raw" db:"value_raw"`
	ValueNormalized string         `json:"value_normalized" db:"value_normalized"`
	OwnerKind       EntityKind     `json:"owner_kind" db:"owner_kind"`
	OwnerID         string         `json:"owner_id" db:"owner_id"`
	Confidence      float64        `json:"confidence" db:"confidence"`
	SourceSystem    string         `json:"source_system" db:"source_system"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}
