// Package places exposes place cluster lookups.
package places

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	placesvc "github.com/whiskertrace/trapper/pkg/places"
)

// Register registers place routes
func Register(g *echo.Group) {
	g.GET("/:id/family", GetFamily)
}

// GetFamily returns the cluster of place records around a place: the place
// itself, its parent, children, siblings, and co-located geocoded places
func GetFamily(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, svc, err := ectoinject.GetContext[*placesvc.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	family, err := svc.Family(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	if family == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "place not found")
	}

	return c.JSON(http.StatusOK, family)
}
