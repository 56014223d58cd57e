// Package person exposes person record lookups and manual merges.
package person

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/whiskertrace/trapper/internal/repositories/decision"
	"github.com/whiskertrace/trapper/internal/repositories/identifier"
	personrepo "github.com/whiskertrace/trapper/internal/repositories/person"
	"github.com/whiskertrace/trapper/pkg/graph"
	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/resolution"
)

var validate = validator.New()

// Register registers person routes
func Register(g *echo.Group) {
	g.GET("/:id", GetPerson)
	g.GET("/:id/decisions", ListPersonDecisions)
	g.GET("/:id/identifiers", ListPersonIdentifiers)
	g.POST("/:id/merge", MergePerson)
}

// GetPerson gets a person by ID. Merged-away records resolve to their
// canonical representative, reported alongside the record.
func GetPerson(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, repo, err := ectoinject.GetContext[*personrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	p, err := repo.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	if p == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "person not found")
	}

	canonicalID, err := resolution.CanonicalID(ctx, repo, p.ID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"person":       p,
		"canonical_id": canonicalID,
	})
}

// ListPersonDecisions lists the decision records that name this person,
// whether as subject or as match candidate
func ListPersonDecisions(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
		limit = parsed
	}

	ctx, repo, err := ectoinject.GetContext[*decision.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	records, err := repo.ListForPerson(ctx, c.Param("id"), limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, records)
}

// ListPersonIdentifiers lists the identifiers owned by a person
func ListPersonIdentifiers(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, repo, err := ectoinject.GetContext[*identifier.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	idents, err := repo.ListForOwner(ctx, models.EntityKindPerson, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, idents)
}

// MergeRequest is the manual merge payload
type MergeRequest struct {
	IntoID string `json:"into_id" validate:"required"`
}

// MergePerson redirects one person record into another. The source record
// keeps its data but stops appearing in canonical listings.
func MergePerson(c echo.Context) error {
	ctx := c.Request().Context()

	var req MergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	fromID := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*personrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.Merge(ctx, fromID, req.IntoID); err != nil {
		return err
	}

	ctx, projector, _ := ectoinject.GetContext[*graph.Projector](ctx)
	if projector != nil {
		if err := projector.ProjectMerge(ctx, models.EntityKindPerson, fromID, req.IntoID); err != nil {
			ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
			if logger != nil {
				logger.WithContext(ctx).WithError(err).Warn("Failed to project merge to graph")
			}
		}
	}

	return c.JSON(http.StatusOK, map[string]string{
		"merged_from": fromID,
		"merged_into": req.IntoID,
	})
}
