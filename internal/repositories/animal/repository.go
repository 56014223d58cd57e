package animal

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
	"id", "name", "species", "attributes", "source_system",
	"merged_into", "created_at", "updated_at",
}

// Repository handles animal persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new animal repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new animal
func (r *Repository) Create(ctx context.Context, a *models.Animal) error {
	ctx, span := tracing.StartSpan(ctx, "animal.Repository.Create")
	defer span.End()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("animals")
	sb.Cols(columns...)
	sb.Values(a.ID, a.Name, a.Species, a.Attributes, a.SourceSystem,
		a.MergedInto, a.CreatedAt, a.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"animal_id": a.ID}).Error("Failed to create animal")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create animal")
	}

	return nil
}

// Get retrieves an animal by ID. Returns nil when no row exists.
func (r *Repository) Get(ctx context.Context, id string) (*models.Animal, error) {
	ctx, span := tracing.StartSpan(ctx, "animal.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("animals")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var a models.Animal
	if err := r.db.GetContext(ctx, &a, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get animal")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get animal")
	}

	return &a, nil
}

// MergedInto returns the merge pointer for an animal. The bool reports
// whether the row exists at all.
func (r *Repository) MergedInto(ctx context.Context, id string) (*string, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "animal.Repository.MergedInto")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("merged_into")
	sb.From("animals")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var mergedInto *string
	if err := r.db.GetContext(ctx, &mergedInto, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, false, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get animal merge pointer")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get animal")
	}

	return mergedInto, true, nil
}
