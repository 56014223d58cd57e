// Package pipeline exposes the propagation pipeline: run it (optionally dry)
// and inspect what the passes could not link.
package pipeline

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/whiskertrace/trapper/internal/repositories/linkskip"
	"github.com/whiskertrace/trapper/pkg/events"
	"github.com/whiskertrace/trapper/pkg/linker"
)

// Register registers pipeline routes
func Register(g *echo.Group) {
	g.POST("/run", RunPipeline)
	g.GET("/skips", ListSkips)
}

// RunPipeline executes every propagation pass in order. With ?dry_run=true
// the passes count what they would do but write nothing.
func RunPipeline(c echo.Context) error {
	ctx := c.Request().Context()

	dryRun := false
	if raw := c.QueryParam("dry_run"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "dry_run must be a boolean")
		}
		dryRun = parsed
	}

	ctx, p, err := ectoinject.GetContext[*linker.Pipeline](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	results, err := p.Run(ctx, dryRun)
	if err != nil {
		return err
	}

	ctx, emitter, _ := ectoinject.GetContext[*events.Emitter](ctx)
	if emitter != nil {
		passes := make([]events.PipelinePassSummary, len(results))
		for i, r := range results {
			passes[i] = events.PipelinePassSummary{Pass: r.Pass, Linked: r.Linked, Skipped: r.Skipped}
		}
		if err := emitter.EmitPipelineCompleted(ctx, dryRun, passes); err != nil {
			ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
			if logger != nil {
				logger.WithContext(ctx).WithError(err).Warn("Failed to emit pipeline event")
			}
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"dry_run": dryRun,
		"passes":  results,
	})
}

// ListSkips lists what the passes could not link, optionally filtered by
// pass name
func ListSkips(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
		limit = parsed
	}

	ctx, repo, err := ectoinject.GetContext[*linkskip.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	skips, err := repo.List(ctx, c.QueryParam("pass"), limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, skips)
}
