package blacklist

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
	"id", "id_type", "value_normalized", "reason",
	"required_name_similarity", "created_at",
}

// Repository handles blacklist entry persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new blacklist repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a blacklist entry. Re-adding an existing value updates its
// reason and threshold.
func (r *Repository) Create(ctx context.Context, entry *models.BlacklistEntry) error {
	ctx, span := tracing.StartSpan(ctx, "blacklist.Repository.Create")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()

	sb := database.NewInsertBuilder()
	sb.InsertInto("blacklist_entries")
	sb.Cols(columns...)
	sb.Values(entry.ID, entry.IDType, entry.ValueNormalized, entry.Reason,
		entry.RequiredNameSimilarity, entry.CreatedAt)

	ub := sb.OnConflict("id_type", "value_normalized")
	ub.Set(
		ub.Assign("reason", database.Excluded("reason")),
		ub.Assign("required_name_similarity", database.Excluded("required_name_similarity")),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id_type": entry.IDType,
		}).Error("Failed to create blacklist entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create blacklist entry")
	}

	return nil
}

// Get retrieves the entry for a normalized value. Returns nil when the value
// is not blacklisted.
func (r *Repository) Get(ctx context.Context, idType models.IdentifierType, valueNormalized string) (*models.BlacklistEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "blacklist.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("blacklist_entries")
	sb.Where(
		sb.Equal("id_type", idType),
		sb.Equal("value_normalized", valueNormalized),
	)

	query, args := sb.Build()
	var entry models.BlacklistEntry
	if err := r.db.GetContext(ctx, &entry, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get blacklist entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get blacklist entry")
	}

	return &entry, nil
}

// List retrieves every blacklist entry
func (r *Repository) List(ctx context.Context) ([]models.BlacklistEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "blacklist.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("blacklist_entries")
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var entries []models.BlacklistEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list blacklist entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list blacklist entries")
	}

	return entries, nil
}
