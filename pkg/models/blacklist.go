package models

import "time"

// BlacklistEntry marks an identifier that must not, by itself, justify an
// automatic match. Shared lines (a clinic's front desk number, a shelter's
// catch-all email) end up here after review. A candidate sharing the
// identifier is only accepted when name similarity clears
// RequiredNameSimilarity.
type BlacklistEntry struct {
	ID                     string         `json:"id" db:"id"`
	IDType                 IdentifierType `json:"id_type" db:"id_type"`
	ValueNormalized        string         `json:"value_normalized" db:"value_normalized"`
	Reason                 string         `json:"reason" db:"reason"`
	RequiredNameSimilarity float64        `json:"required_name_similarity" db:"required_name_similarity"`
	CreatedAt              time.Time      `json:"created_at" db:"created_at"`
}
