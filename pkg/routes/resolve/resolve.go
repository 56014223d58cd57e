// Package resolve exposes the synchronous resolution API. Source adapters
// that cannot publish to Kafka post records here one at a time.
package resolve

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/whiskertrace/trapper/pkg/appcontext"
	"github.com/whiskertrace/trapper/pkg/models"
	"github.com/whiskertrace/trapper/pkg/resolution"
)

var validate = validator.New()

// Register registers resolution routes
func Register(g *echo.Group) {
	g.POST("/person", ResolvePerson)
	g.POST("/animal", ResolveAnimal)
	g.POST("/place", ResolvePlace)
}

// PersonRequest is the resolve person payload
type PersonRequest struct {
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	AddressText string `json:"address_text"`
}

// ResolvePerson runs one person record through the decision engine
func ResolvePerson(c echo.Context) error {
	ctx := c.Request().Context()

	var req PersonRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*resolution.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := svc.ResolvePerson(ctx, resolution.PersonRequest{
		Email:        req.Email,
		Phone:        req.Phone,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		AddressText:  req.AddressText,
		SourceSystem: sourceSystem(c),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// AnimalRequest is the resolve animal payload
type AnimalRequest struct {
	IDType  string `json:"id_type" validate:"required"`
	IDValue string `json:"id_value" validate:"required"`
	Name    string `json:"name"`
	Species string `json:"species"`
}

// ResolveAnimal finds or creates an animal by external identifier
func ResolveAnimal(c echo.Context) error {
	ctx := c.Request().Context()

	var req AnimalRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*resolution.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	animalID, err := svc.ResolveAnimal(ctx, resolution.AnimalRequest{
		IDType:       models.IdentifierType(req.IDType),
		IDValue:      req.IDValue,
		Name:         req.Name,
		Species:      req.Species,
		SourceSystem: sourceSystem(c),
	})
	if err != nil {
		return err
	}
	if animalID == nil {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, "identifier value is empty after normalization")
	}

	return c.JSON(http.StatusOK, map[string]string{"animal_id": *animalID})
}

// PlaceRequest is the resolve place payload
type PlaceRequest struct {
	AddressText string   `json:"address_text" validate:"required"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// ResolvePlace finds or creates a place by address key
func ResolvePlace(c echo.Context) error {
	ctx := c.Request().Context()

	var req PlaceRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*resolution.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	placeID, err := svc.ResolvePlace(ctx, resolution.PlaceRequest{
		AddressText:  req.AddressText,
		Name:         req.Name,
		Kind:         models.PlaceKind(req.Kind),
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		SourceSystem: sourceSystem(c),
	})
	if err != nil {
		return err
	}
	if placeID == nil {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, "address is empty after normalization")
	}

	return c.JSON(http.StatusOK, map[string]string{"place_id": *placeID})
}

func sourceSystem(c echo.Context) string {
	if src := appcontext.GetSourceSystem(c.Request().Context()); src != "" {
		return src
	}
	return "api"
}
