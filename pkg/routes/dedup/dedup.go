// Package dedup exposes the dedup candidate queue for reviewers.
package dedup

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	dedupsvc "github.com/whiskertrace/trapper/pkg/dedup"
)

// Register registers dedup routes
func Register(g *echo.Group) {
	g.GET("/candidates", ListCandidates)
}

// ListCandidates runs detection and returns candidate pairs ordered by tier
func ListCandidates(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, detector, err := ectoinject.GetContext[*dedupsvc.Detector](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	pairs, err := detector.Detect(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, pairs)
}
