package visit

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
	"id", "person_id", "animal_id", "place_id",
	"address_text", "address_key", "visited_at", "source_system",
	"created_at", "updated_at",
}

// Repository handles visit persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new visit repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new visit
func (r *Repository) Create(ctx context.Context, v *models.Visit) error {
	ctx, span := tracing.StartSpan(ctx, "visit.Repository.Create")
	defer span.End()

	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("visits")
	sb.Cols(columns...)
	sb.Values(v.ID, v.PersonID, v.AnimalID, v.PlaceID,
		v.AddressText, v.AddressKey, v.VisitedAt, v.SourceSystem,
		v.CreatedAt, v.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"visit_id": v.ID}).Error("Failed to create visit")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create visit")
	}

	return nil
}

// ListUnplaced retrieves visits not yet resolved to a place, oldest first.
func (r *Repository) ListUnplaced(ctx context.Context) ([]models.Visit, error) {
	ctx, span := tracing.StartSpan(ctx, "visit.Repository.ListUnplaced")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("visits")
	sb.Where(sb.IsNull("place_id"))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var visits []models.Visit
	if err := r.db.SelectContext(ctx, &visits, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unplaced visits")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list visits")
	}

	return visits, nil
}

// ListPlacedWithAnimal retrieves visits that name both a place and an
// animal.
func (r *Repository) ListPlacedWithAnimal(ctx context.Context) ([]models.Visit, error) {
	ctx, span := tracing.StartSpan(ctx, "visit.Repository.ListPlacedWithAnimal")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("visits")
	sb.Where(
		sb.IsNotNull("place_id"),
		sb.IsNotNull("animal_id"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var visits []models.Visit
	if err := r.db.SelectContext(ctx, &visits, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list placed visits with animals")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list visits")
	}

	return visits, nil
}

// SetPlace resolves a visit to a place
func (r *Repository) SetPlace(ctx context.Context, visitID, placeID string) error {
	ctx, span := tracing.StartSpan(ctx, "visit.Repository.SetPlace")
	defer span.End()

	query := `
		UPDATE visits
		SET place_id = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, placeID, time.Now().UTC(), visitID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"visit_id": visitID}).Error("Failed to set visit place")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update visit")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("visit %s not found", visitID))
	}

	return nil
}
