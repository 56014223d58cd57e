package identifier

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
	"id", "id_type", "value_raw", "value_normalized",
	"owner_kind", "owner_id", "confidence", "source_system",
	"created_at", "updated_at",
}

// Repository handles identifier persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new identifier repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts an identifier or, when the (id_type, value_normalized) pair
// already exists, reassigns it to the new owner in the same statement.
// Confidence never decreases on conflict.
func (r *Repository) Upsert(ctx context.Context, ident *models.Identifier) error {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.Upsert")
	defer span.End()

	if ident.ID == "" {
		ident.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	ident.CreatedAt = now
	ident.UpdatedAt = now

	sb := database.NewInsertBuilder()
	sb.InsertInto("identifiers")
	sb.Cols(columns...)
	sb.Values(ident.ID, ident.IDType, ident.ValueRaw, ident.ValueNormalized,
		ident.OwnerKind, ident.OwnerID, ident.Confidence, ident.SourceSystem,
		ident.CreatedAt, ident.UpdatedAt)

	ub := sb.OnConflict("id_type", "value_normalized")
	ub.Set(
		ub.Assign("owner_kind", database.Excluded("owner_kind")),
		ub.Assign("owner_id", database.Excluded("owner_id")),
		ub.Assign("confidence", sqlbuilder.Raw("GREATEST(identifiers.confidence, EXCLUDED.confidence)")),
		ub.Assign("source_system", database.Excluded("source_system")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id_type":  ident.IDType,
			"owner_id": ident.OwnerID,
		}).Error("Failed to upsert identifier")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert identifier")
	}

	return nil
}

// GetByValue retrieves the identifier owning a normalized value. Returns nil
// when no row exists.
func (r *Repository) GetByValue(ctx context.Context, idType models.IdentifierType, valueNormalized string) (*models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.GetByValue")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("identifiers")
	sb.Where(
		sb.Equal("id_type", idType),
		sb.Equal("value_normalized", valueNormalized),
	)

	query, args := sb.Build()
	var ident models.Identifier
	if err := r.db.GetContext(ctx, &ident, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get identifier by value")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get identifier")
	}

	return &ident, nil
}

// ListPersonOwned retrieves person-owned identifiers of one type at or above
// a confidence floor.
func (r *Repository) ListPersonOwned(ctx context.Context, idType models.IdentifierType, minConfidence float64) ([]models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.ListPersonOwned")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("identifiers")
	sb.Where(
		sb.Equal("id_type", idType),
		sb.Equal("owner_kind", models.EntityKindPerson),
		sb.GreaterEqualThan("confidence", minConfidence),
	)
	sb.OrderBy("value_normalized ASC")

	query, args := sb.Build()
	var idents []models.Identifier
	if err := r.db.SelectContext(ctx, &idents, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list person-owned identifiers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list identifiers")
	}

	return idents, nil
}

// ListForOwner retrieves every identifier owned by one entity.
func (r *Repository) ListForOwner(ctx context.Context, ownerKind models.EntityKind, ownerID string) ([]models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.ListForOwner")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("identifiers")
	sb.Where(
		sb.Equal("owner_kind", ownerKind),
		sb.Equal("owner_id", ownerID),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var idents []models.Identifier
	if err := r.db.SelectContext(ctx, &idents, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list identifiers for owner")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list identifiers")
	}

	return idents, nil
}
