package models

import "time"

// LinkSkip records one entity a propagation pass could not link, with the
// reason. The pipeline logs skips instead of failing; the table feeds the
// review tooling's "unlinked with reason" report.
type LinkSkip struct {
	ID         string     `json:"id" db:"id"`
	Pass       string     `json:"pass" db:"pass"`
	EntityKind EntityKind `json:"entity_kind" db:"entity_kind"`
	EntityID   string     `json:"entity_id" db:"entity_id"`
	Reason     string     `json:"reason" db:"reason"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
