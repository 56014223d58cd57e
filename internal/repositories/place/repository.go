package place

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
	"id", "name", "address_text", "address_key", "kind",
	"parent_place_id", "latitude", "longitude", "attributes",
	"source_system", "merged_into", "created_at", "updated_at",
}

// Repository handles place persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new place repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new place
func (r *Repository) Create(ctx context.Context, p *models.Place) error {
	ctx, span := tracing.StartSpan(ctx, "place.Repository.Create")
	defer span.End()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("places")
	sb.Cols(columns...)
	sb.Values(p.ID, p.Name, p.AddressText, p.AddressKey, p.Kind,
		p.ParentPlaceID, p.Latitude, p.Longitude, p.Attributes,
		p.SourceSystem, p.MergedInto, p.CreatedAt, p.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"place_id": p.ID}).Error("Failed to create place")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create place")
	}

	return nil
}

// Get retrieves a place by ID. Returns nil when no row exists.
func (r *Repository) Get(ctx context.Context, id string) (*models.Place, error) {
	ctx, span := tracing.StartSpan(ctx, "place.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("places")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var p models.Place
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get place")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get place")
	}

	return &p, nil
}

// GetByAddressKey retrieves the place for a normalized address key,
// preferring canonical rows, then the oldest. Returns nil when no row
// exists.
func (r *Repository) GetByAddressKey(ctx context.Context, addressKey string) (*models.Place, error) {
	ctx, span := tracing.StartSpan(ctx, "place.Repository.GetByAddressKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("places")
	sb.Where(sb.Equal("address_key", addressKey))
	sb.OrderBy("(merged_into IS NULL) DESC", "created_at ASC")
	sb.Limit(1)

	query, args := sb.Build()
	var p models.Place
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get place by address key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get place")
	}

	return &p, nil
}

// MergedInto returns the merge pointer for a place. The bool reports whether
// the row exists at all.
func (r *Repository) MergedInto(ctx context.Context, id string) (*string, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "place.Repository.MergedInto")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("merged_into")
	sb.From("places")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var mergedInto *string
	if err := r.db.GetContext(ctx, &mergedInto, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, false, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get place merge pointer")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get place")
	}

	return mergedInto, true, nil
}

// ListByParent retrieves the canonical children of a parent place.
func (r *Repository) ListByParent(ctx context.Context, parentID string) ([]models.Place, error) {
	ctx, span := tracing.StartSpan(ctx, "place.Repository.ListByParent")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("places")
	sb.Where(
		sb.Equal("parent_place_id", parentID),
		sb.IsNull("merged_into"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var places []models.Place
	if err := r.db.SelectContext(ctx, &places, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list places by parent")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list places")
	}

	return places, nil
}

// ListWithCoordinates retrieves every canonical geocoded place.
func (r *Repository) ListWithCoordinates(ctx context.Context) ([]models.Place, error) {
	ctx, span := tracing.StartSpan(ctx, "place.Repository.ListWithCoordinates")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("places")
	sb.Where(
		sb.IsNotNull("latitude"),
		sb.IsNotNull("longitude"),
		sb.IsNull("merged_into"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var places []models.Place
	if err := r.db.SelectContext(ctx, &places, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list geocoded places")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list places")
	}

	return places, nil
}
