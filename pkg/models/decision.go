package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DecisionType is the outcome of one resolution attempt.
type DecisionType string

const (
	DecisionAutoMatch     DecisionType = "auto_match"
	DecisionReviewPending DecisionType = "review_pending"
	DecisionNewEntity     DecisionType = "new_entity"
	DecisionRejected      DecisionType = "rejected"
)

// Decision thresholds. Boundary values are inclusive toward the
// higher-confidence tier: exactly 0.95 auto-matches, exactly 0.50 goes to
// review.
const (
	AutoMatchThreshold = 0.95
	ReviewThreshold    = 0.50
)

// DecisionForScore maps a candidate score to its tier.
func DecisionForScore(score float64, hasCandidate bool) DecisionType {
	if !hasCandidate {
		return DecisionNewEntity
	}
	switch {
	case score >= AutoMatchThreshold:
		return DecisionAutoMatch
	case score >= ReviewThreshold:
		return DecisionReviewPending
	default:
		return DecisionNewEntity
	}
}

// ReviewStatus tracks the human disposition of a review_pending decision.
type ReviewStatus string

const (
	ReviewNotRequired ReviewStatus = "not_required"
	ReviewPending     ReviewStatus = "pending"
	ReviewApproved    ReviewStatus = "approved"
	ReviewRejected    ReviewStatus = "rejected"
)

// CanTransitionTo enforces the review state machine: only pending ->
// approved and pending -> rejected are legal.
func (s ReviewStatus) CanTransitionTo(next ReviewStatus) bool {
	return s == ReviewPending && (next == ReviewApproved || next == ReviewRejected)
}

// ScoreBreakdown records per-signal agreement for one scored candidate.
type ScoreBreakdown struct {
	EmailMatch        bool    `json:"email_match"`
	PhoneMatch        bool    `json:"phone_match"`
	NameSimilarity    float64 `json:"name_similarity"`
	AddressSimilarity float64 `json:"address_similarity"`
	EmailWeight       float64 `json:"email_weight"`
	PhoneWeight       float64 `json:"phone_weight"`
	NameWeight        float64 `json:"name_weight"`
	AddressWeight     float64 `json:"address_weight"`
	Total             float64 `json:"total"`
}

// DecisionRecord is one append-only audit entry for a resolution attempt.
// Never mutated after insert except the review status transition.
type DecisionRecord struct {
	ID                string          `json:"id" db:"id"`
	SourceSystem      string          `json:"source_system" db:"source_system"`
	EmailNormalized   *string         `json:"email_normalized,omitempty" db:"email_normalized"`
	PhoneNormalized   *string         `json:"phone_normalized,omitempty" db:"phone_normalized"`
	NameKey           string          `json:"name_key" db:"name_key"`
	AddressKey        *string         `json:"address_key,omitempty" db:"address_key"`
	CandidatePersonID *string         `json:"candidate_person_id,omitempty" db:"candidate_person_id"`
	Breakdown         json.RawMessage `json:"breakdown,omitempty" db:"breakdown"`
	Decision          DecisionType    `json:"decision" db:"decision"`
	PersonID          *string         `json:"person_id,omitempty" db:"person_id"`
	Confidence        float64         `json:"confidence" db:"confidence"`
	Reason            string          `json:"reason" db:"reason"`
	ReviewStatus      ReviewStatus    `json:"review_status" db:"review_status"`
	ReviewedBy        *string         `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt        *time.Time      `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// MarshalBreakdown attaches the score breakdown as stored JSON.
func (d *DecisionRecord) MarshalBreakdown(b *ScoreBreakdown) error {
	if b == nil {
		return nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal score breakdown: %w", err)
	}
	d.Breakdown = raw
	return nil
}
