// Package decisions exposes the decision record audit trail and the review
// queue. Approve and reject are the only writes; records are otherwise
// immutable.
package decisions

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/whiskertrace/trapper/internal/repositories/decision"
	"github.com/whiskertrace/trapper/pkg/appcontext"
	"github.com/whiskertrace/trapper/pkg/events"
	"github.com/whiskertrace/trapper/pkg/models"
)

// Register registers decision record routes
func Register(g *echo.Group) {
	g.GET("", ListDecisions)
	g.GET("/:id", GetDecision)
	g.POST("/:id/approve", ApproveDecision)
	g.POST("/:id/reject", RejectDecision)
}

// ListDecisions lists decision records by review status
func ListDecisions(c echo.Context) error {
	ctx := c.Request().Context()

	status := models.ReviewStatus(c.QueryParam("status"))
	if status == "" {
		status = models.ReviewStatus(c.QueryParam("review_status"))
	}
	if status == "" {
		status = models.ReviewPending
	}

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

	records, err := repo.ListByReviewStatus(ctx, status, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, records)
}

// GetDecision gets a decision record by ID
func GetDecision(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, repo, err := ectoinject.GetContext[*decision.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	record, err := repo.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, record)
}

// ApproveDecision approves a pending decision
func ApproveDecision(c echo.Context) error {
	return resolveReview(c, models.ReviewApproved)
}

// RejectDecision rejects a pending decision
func RejectDecision(c echo.Context) error {
	return resolveReview(c, models.ReviewRejected)
}

func resolveReview(c echo.Context, next models.ReviewStatus) error {
	ctx := c.Request().Context()

	reviewer := appcontext.GetReviewer(ctx)
	if reviewer == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-Reviewer header is required")
	}

	ctx, repo, err := ectoinject.GetContext[*decision.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	record, err := repo.UpdateReviewStatus(ctx, c.Param("id"), next, reviewer)
	if err != nil {
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"decision_id":   record.ID,
			"review_status": next,
			"reviewer":      reviewer,
		}).Info("Resolved review")
	}

	ctx, emitter, _ := ectoinject.GetContext[*events.Emitter](ctx)
	if emitter != nil {
		if err := emitter.EmitReviewResolved(ctx, record); err != nil && logger != nil {
			logger.WithContext(ctx).WithError(err).Warn("Failed to emit review event")
		}
	}

	return c.JSON(http.StatusOK, record)
}
