package linkskip

import (
	"context"
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
	"id", "pass", "entity_kind", "entity_id", "reason", "created_at",
}

// Repository handles link skip persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new link skip repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Record inserts a skip entry. One entry per (pass, entity, reason); a pass
// re-skipping the same entity overwrites the timestamp instead of piling up
// rows.
func (r *Repository) Record(ctx context.Context, skip *models.LinkSkip) error {
	ctx, span := tracing.StartSpan(ctx, "linkskip.Repository.Record")
	defer span.End()

	if skip.ID == "" {
		skip.ID = uuid.New().String()
	}
	if skip.CreatedAt.IsZero() {
		skip.CreatedAt = time.Now().UTC()
	}

	sb := database.NewInsertBuilder()
	sb.InsertInto("link_skips")
	sb.Cols(columns...)
	sb.Values(skip.ID, skip.Pass, skip.EntityKind, skip.EntityID, skip.Reason, skip.CreatedAt)

	ub := sb.OnConflict("pass", "entity_id", "reason")
	ub.Set(
		ub.Assign("created_at", database.Excluded("created_at")),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"pass":      skip.Pass,
			"entity_id": skip.EntityID,
		}).Error("Failed to record link skip")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record link skip")
	}

	return nil
}

// List retrieves skip entries, optionally filtered by pass, newest first.
func (r *Repository) List(ctx context.Context, pass string, limit int) ([]models.LinkSkip, error) {
	ctx, span := tracing.StartSpan(ctx, "linkskip.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("link_skips")
	if pass != "" {
		sb.Where(sb.Equal("pass", pass))
	}
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var skips []models.LinkSkip
	if err := r.db.SelectContext(ctx, &skips, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list link skips")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list link skips")
	}

	return skips, nil
}
