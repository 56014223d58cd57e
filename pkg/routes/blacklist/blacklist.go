// Package blacklist manages shared identifier values. A value listed here is
// owned by an organization or a facility, not a household, so matching on it
// demands extra name evidence.
package blacklist

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	blacklistrepo "github.com/whiskertrace/trapper/internal/repositories/blacklist"
	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/normalizers"
)

var validate = validator.New()

// Register registers blacklist routes
func Register(g *echo.Group) {
	g.GET("", ListEntries)
	g.POST("", CreateEntry)
}

// ListEntries lists every blacklist entry
func ListEntries(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, repo, err := ectoinject.GetContext[*blacklistrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entries, err := repo.List(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}

// EntryRequest is the create blacklist entry payload
type EntryRequest struct {
	IDType                 string  `json:"id_type" validate:"required,oneof=email phone"`
	Value                  string  `json:"value" validate:"required"`
	Reason                 string  `json:"reason" validate:"required"`
	RequiredNameSimilarity float64 `json:"required_name_similarity" validate:"gte=0,lte=1"`
}

// CreateEntry upserts a blacklist entry. The value is normalized the same
// way incoming records are, so lookups hit regardless of input formatting.
func CreateEntry(c echo.Context) error {
	ctx := c.Request().Context()

	var req EntryRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	idType := models.IdentifierType(req.IDType)
	var normalized string
	switch idType {
	case models.IdentifierTypeEmail:
		normalized = normalizers.Email(req.Value)
	case models.IdentifierTypePhone:
		normalized = normalizers.Phone(req.Value)
	}
	if normalized == "" {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, "value is empty after normalization")
	}

	ctx, repo, err := ectoinject.GetContext[*blacklistrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entry := &models.BlacklistEntry{
		IDType:                 idType,
		ValueNormalized:        normalized,
		Reason:                 req.Reason,
		RequiredNameSimilarity: req.RequiredNameSimilarity,
	}
	if err := repo.Create(ctx, entry); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, entry)
}
