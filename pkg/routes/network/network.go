// Package network exposes graph connectivity queries backed by the mirror
// database. Results reflect the last successful projection, not necessarily
// the current Postgres state.
package network

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/whiskertrace/trapper/pkg/graph"
	"github.com/whiskertrace/trapper/pkg/models"
)

// Register registers network query routes
func Register(g *echo.Group) {
	g.GET("/:kind/:id/neighborhood", GetNeighborhood)
	g.GET("/path", GetShortestPath)
}

var entityKinds = map[models.EntityKind]bool{
	models.EntityKindPerson: true,
	models.EntityKindAnimal: true,
	models.EntityKindPlace:  true,
}

// GetNeighborhood returns everything connected to an entity within N hops
func GetNeighborhood(c echo.Context) error {
	ctx := c.Request().Context()

	kind := models.EntityKind(c.Param("kind"))
	if !entityKinds[kind] {
		return httperror.NewHTTPError(http.StatusBadRequest, "unknown entity kind")
	}

	hops := 1
	if raw := c.QueryParam("hops"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "hops must be an integer")
		}
		hops = parsed
	}

	ctx, svc, err := ectoinject.GetContext[*graph.NetworkService](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := svc.Neighborhood(ctx, kind, c.Param("id"), hops)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// GetShortestPath returns the shortest connection between two entities
func GetShortestPath(c echo.Context) error {
	ctx := c.Request().Context()

	fromID := c.QueryParam("from")
	toID := c.QueryParam("to")
	if fromID == "" || toID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "from and to are required")
	}

	maxHops := 0
	if raw := c.QueryParam("max_hops"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "max_hops must be an integer")
		}
		maxHops = parsed
	}

	ctx, svc, err := ectoinject.GetContext[*graph.NetworkService](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := svc.ShortestPath(ctx, fromID, toID, maxHops)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
