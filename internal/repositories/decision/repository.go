package decision

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/whiskertrace/trapper/pkg/database"
	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/tracing"
)

var columns = []string{
	"id", "source_system", "email_normalized", "phone_normalized",
	"name_key", "address_key", "candidate_person_id", "breakdown",
	"decision", "person_id", "confidence", "reason",
	"review_status", "reviewed_by", "reviewed_at", "created_at",
}

// Repository handles decision record persistence. Records are append-only;
// the review status transition is the only legal update.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new decision record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends a decision record
func (r *Repository) Create(ctx context.Context, rec *models.DecisionRecord) error {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.Create")
	defer span.End()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.ReviewStatus == "" {
		rec.ReviewStatus = models.ReviewNotRequired
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("decision_records")
	sb.Cols(columns...)
	sb.Values(rec.ID, rec.SourceSystem, rec.EmailNormalized, rec.PhoneNormalized,
		rec.NameKey, rec.AddressKey, rec.CandidatePersonID, rec.Breakdown,
		rec.Decision, rec.PersonID, rec.Confidence, rec.Reason,
		rec.ReviewStatus, rec.ReviewedBy, rec.ReviewedAt, rec.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"decision_id": rec.ID}).Error("Failed to create decision record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create decision record")
	}

	return nil
}

// Get retrieves a decision record by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.DecisionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("decision_records")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var rec models.DecisionRecord
	if err := r.db.GetContext(ctx, &rec, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("decision record %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get decision record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get decision record")
	}

	return &rec, nil
}

// ListByReviewStatus retrieves decision records in one review status, newest
// first.
func (r *Repository) ListByReviewStatus(ctx context.Context, status models.ReviewStatus, limit int) ([]models.DecisionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.ListByReviewStatus")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("decision_records")
	sb.Where(sb.Equal("review_status", status))
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var recs []models.DecisionRecord
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list decision records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list decision records")
	}

	return recs, nil
}

// ListForPerson retrieves every decision record naming a person, newest
// first.
func (r *Repository) ListForPerson(ctx context.Context, personID string, limit int) ([]models.DecisionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.ListForPerson")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("decision_records")
	sb.Where(sb.Or(
		sb.Equal("person_id", personID),
		sb.Equal("candidate_person_id", personID),
	))
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var recs []models.DecisionRecord
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list decision records for person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list decision records")
	}

	return recs, nil
}

// UpdateReviewStatus applies one review state transition. Only pending
// records may move, and only to approved or rejected; anything else is a
// conflict.
func (r *Repository) UpdateReviewStatus(ctx context.Context, id string, next models.ReviewStatus, reviewedBy string) (*models.DecisionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.UpdateReviewStatus")
	defer span.End()

	rec, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !rec.ReviewStatus.CanTransitionTo(next) {
		return nil, httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("decision record %s cannot move from %s to %s", id, rec.ReviewStatus, next))
	}

	now := time.Now().UTC()
	query := `
		UPDATE decision_records
		SET review_status = $1, reviewed_by = $2, reviewed_at = $3
		WHERE id = $4 AND review_status = $5
	`

	result, err := r.db.ExecContext(ctx, query, next, reviewedBy, now, id, models.ReviewPending)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"decision_id": id}).Error("Failed to update review status")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update review status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Lost the race with another reviewer.
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("decision record %s is no longer pending", id))
	}

	rec.ReviewStatus = next
	rec.ReviewedBy = &reviewedBy
	rec.ReviewedAt = &now
	return rec, nil
}

// IsDispositioned reports whether a reviewed decision already covers a pair
// of persons, in either order.
func (r *Repository) IsDispositioned(ctx context.Context, personAID, personBID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.IsDispositioned")
	defer span.End()

	query := `
		SELECT EXISTS (
			SELECT 1 FROM decision_records
			WHERE review_status IN ($1, $2)
			AND ((person_id = $3 AND candidate_person_id = $4) OR (person_id = $4 AND candidate_person_id = $3))
		)
	`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, models.ReviewApproved, models.ReviewRejected, personAID, personBID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check pair disposition")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check pair disposition")
	}

	return exists, nil
}
