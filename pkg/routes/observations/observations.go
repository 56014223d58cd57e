// Package observations accepts observation envelopes over HTTP. It runs the
// same handler as the Kafka consumer, for adapters and backfills that post
// records directly.
package observations

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/whiskertrace/trapper/pkg/ingest"
	"github.com/whiskertrace/trapper/pkg/models"
)

var validate = validator.New()

// Register registers observation routes
func Register(g *echo.Group) {
	g.POST("", SubmitObservation)
}

// SubmitObservation runs one observation through the ingestion handler
func SubmitObservation(c echo.Context) error {
	ctx := c.Request().Context()

	var obs models.Observation
	if err := c.Bind(&obs); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&obs); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := obs.Validate(); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, handler, err := ectoinject.GetContext[*ingest.Handler](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := handler.Handle(ctx, &obs); err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}
