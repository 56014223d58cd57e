// Package links exposes edge creation and lookup. Incoming relationship
// labels may be historical; they are remapped before validation so imports
// from older systems keep working.
package links

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	edgerepo "github.com/whiskertrace/trapper/internal/repositories/edge"
	"github.com/whiskertrace/trapper/pkg/appcontext"
	"github.com/whiskertrace/trapper/pkg/linker"
	"github.com/whiskertrace/trapper/pkg/models"
)

var validate = validator.New()

// Register registers link routes
func Register(g *echo.Group) {
	g.POST("", CreateLink)
	g.GET("/:kind/:entityID", ListLinks)
}

// LinkRequest is the create link payload. Callers state confidence either as
// a number or as a tier label, not both.
type LinkRequest struct {
	EntityAID        string  `json:"entity_a_id" validate:"required"`
	EntityBID        string  `json:"entity_b_id" validate:"required"`
	RelationshipType string  `json:"relationship_type" validate:"required"`
	Evidence         string  `json:"evidence"`
	Confidence       float64 `json:"confidence" validate:"gte=0,lte=1"`
	Tier             string  `json:"tier"`
}

// requestConfidence translates a tier label to its numeric confidence. The
// translation happens here so nothing below the route ever sees a tier.
func requestConfidence(req *LinkRequest) (float64, error) {
	if req.Tier == "" {
		return req.Confidence, nil
	}
	if req.Confidence != 0 {
		return 0, fmt.Errorf("provide confidence or tier, not both")
	}
	confidence, ok := models.ConfidenceForTier(models.ConfidenceTier(req.Tier))
	if !ok {
		return 0, fmt.Errorf("unknown confidence tier %q", req.Tier)
	}
	return confidence, nil
}

// CreateLink validates and upserts one edge
func CreateLink(c echo.Context) error {
	ctx := c.Request().Context()

	var req LinkRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	confidence, err := requestConfidence(&req)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	relType, err := models.MapLegacyRelationshipType(req.RelationshipType)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	kind, ok := models.EdgeKindFor(relType)
	if !ok {
		return httperror.NewHTTPError(http.StatusBadRequest, "relationship type has no edge kind")
	}

	evidence := models.EvidenceType(req.Evidence)
	if evidence == "" {
		evidence = models.EvidenceManual
	}

	sourceSystem := appcontext.GetSourceSystem(ctx)
	if sourceSystem == "" {
		sourceSystem = "api"
	}

	ctx, svc, err := ectoinject.GetContext[*linker.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	outcome, err := svc.Link(ctx, linker.Request{
		Kind:             kind,
		EntityAID:        req.EntityAID,
		EntityBID:        req.EntityBID,
		RelationshipType: relType,
		Evidence:         evidence,
		SourceSystem:     sourceSystem,
		Confidence:       confidence,
	})
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !outcome.Linked {
		return c.JSON(http.StatusUnprocessableEntity, outcome)
	}

	return c.JSON(http.StatusOK, outcome)
}

// ListLinks lists edges of one kind touching an entity
func ListLinks(c echo.Context) error {
	ctx := c.Request().Context()

	kind := models.EdgeKind(c.Param("kind"))
	if _, ok := models.EdgeTables[kind]; !ok {
		return httperror.NewHTTPError(http.StatusBadRequest, "unknown edge kind")
	}

	ctx, repo, err := ectoinject.GetContext[*edgerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	edges, err := repo.ListForEntity(ctx, kind, c.Param("entityID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, edges)
}
