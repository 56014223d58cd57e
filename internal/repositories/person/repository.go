package person

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
	"github.com/whiskertrace/trapper/pkg/matching"
	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/tracing"
)

var columns = []string{
	"id", "first_name", "last_name", "display_name", "name_key",
	"email", "phone", "address_text", "address_key", "attributes",
	"source_system", "merged_into", "created_at", "updated_at",
}

// Repository handles person persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new person repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new person
func (r *Repository) Create(ctx context.Context, p *models.Person) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Create")
	defer span.End()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("persons")
	sb.Cols(columns...)
	sb.Values(p.ID, p.FirstName, p.LastName, p.DisplayName, p.NameKey,
		p.Email, p.Phone, p.AddressText, p.AddressKey, p.Attributes,
		p.SourceSystem, p.MergedInto, p.CreatedAt, p.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": p.ID}).Error("Failed to create person")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create person")
	}

	return nil
}

// Get retrieves a person by ID. Returns nil when no row exists.
func (r *Repository) Get(ctx context.Context, id string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("persons")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var p models.Person
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get person")
	}

	return &p, nil
}

// MergedInto returns the merge pointer for a person. The bool reports whether
// the row exists at all.
func (r *Repository) MergedInto(ctx context.Context, id string) (*string, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.MergedInto")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("merged_into")
	sb.From("persons")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var mergedInto *string
	if err := r.db.GetContext(ctx, &mergedInto, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, false, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get person merge pointer")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get person")
	}

	return mergedInto, true, nil
}

// FillMissingContact backfills contact columns that are currently NULL.
// Columns the person already has keep their stored value.
func (r *Repository) FillMissingContact(ctx context.Context, id string, email, phone, addressText, addressKey *string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FillMissingContact")
	defer span.End()

	query := `
		UPDATE persons
		SET email = COALESCE(email, $1),
			phone = COALESCE(phone, $2),
			address_text = COALESCE(address_text, $3),
			address_key = COALESCE(address_key, $4),
			updated_at = $5
		WHERE id = $6
	`

	result, err := r.db.ExecContext(ctx, query, email, phone, addressText, addressKey, time.Now().UTC(), id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": id}).Error("Failed to backfill person contact")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update person")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("person %s not found", id))
	}

	return nil
}

// FindBySharedSignals retrieves canonical persons sharing at least one
// normalized signal with the input, directly on their contact columns or
// through an owned identifier. Merged-away rows are excluded.
func (r *Repository) FindBySharedSignals(ctx context.Context, sig matching.Signals) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindBySharedSignals")
	defer span.End()

	if !sig.HasAny() {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("persons")

	var shared []string
	if sig.Email != "" {
		shared = append(shared,
			sb.Equal("email", sig.Email),
			fmt.Sprintf("EXISTS (SELECT 1 FROM identifiers WHERE owner_kind = 'person' AND owner_id = persons.id AND id_type = 'email' AND value_normalized = %s)", sb.Var(sig.Email)),
		)
	}
	if sig.Phone != "" {
		shared = append(shared,
			sb.Equal("phone", sig.Phone),
			fmt.Sprintf("EXISTS (SELECT 1 FROM identifiers WHERE owner_kind = 'person' AND owner_id = persons.id AND id_type = 'phone' AND value_normalized = %s)", sb.Var(sig.Phone)),
		)
	}
	if sig.NameKey != "" {
		shared = append(shared, sb.Equal("name_key", sig.NameKey))
	}
	if sig.AddressKey != "" {
		shared = append(shared, sb.Equal("address_key", sig.AddressKey))
	}

	sb.Where(
		sb.IsNull("merged_into"),
		sb.Or(shared...),
	)
	sb.OrderBy("updated_at DESC")
	sb.Limit(200)

	query, args := sb.Build()
	var persons []models.Person
	if err := r.db.SelectContext(ctx, &persons, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find persons by shared signals")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find candidate persons")
	}

	return persons, nil
}

// ListCanonical retrieves every person that has not been merged away.
func (r *Repository) ListCanonical(ctx context.Context) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.ListCanonical")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("persons")
	sb.Where(sb.IsNull("merged_into"))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var persons []models.Person
	if err := r.db.SelectContext(ctx, &persons, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list canonical persons")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list persons")
	}

	return persons, nil
}

// Merge points one person at another and moves their identifiers to the
// surviving row, in one transaction. Only a canonical row may be merged;
// re-pointing an already merged row is a conflict.
func (r *Repository) Merge(ctx context.Context, fromID, intoID string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Merge")
	defer span.End()

	if fromID == intoID {
		return httperror.NewHTTPError(http.StatusBadRequest, "cannot merge a person into itself")
	}

	txCtx, tx, err := database.GetTx(ctx, r.logger, r.db, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to merge person")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	mergeQuery := `
		UPDATE persons
		SET merged_into = $1, updated_at = $2
		WHERE id = $3 AND merged_into IS NULL
	`
	result, err := tx.ExecContext(txCtx, mergeQuery, intoID, now, fromID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"from_id": fromID,
			"into_id": intoID,
		}).Error("Failed to merge person")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to merge person")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("person %s is missing or already merged", fromID))
	}

	// Identifiers follow the surviving row so lookups land on the canonical
	// person without chasing the merge pointer.
	reassignQuery := `
		UPDATE identifiers
		SET owner_id = $1, updated_at = $2
		WHERE owner_kind = 'person' AND owner_id = $3
	`
	if _, err := tx.ExecContext(txCtx, reassignQuery, intoID, now, fromID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"from_id": fromID,
			"into_id": intoID,
		}).Error("Failed to reassign identifiers during merge")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to merge person")
	}

	if err := tx.Commit(txCtx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to merge person")
	}

	return nil
}
