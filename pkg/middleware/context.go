package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/whiskertrace/trapper/pkg/appcontext"
)

const (
	// HeaderSourceSystem names the ingestion adapter a request acts for
	HeaderSourceSystem = "X-Source-System"
	// HeaderReviewer names the human working the review queue
	HeaderReviewer = "X-Reviewer"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			// get request id from header
			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			sourceSystem := req.Header.Get(HeaderSourceSystem)
			reviewer := req.Header.Get(HeaderReviewer)

			ctx := req.Context()
			ctx = appcontext.SetRequestID(ctx, requestID)
			ctx = appcontext.SetMethod(ctx, req.Method)
			ctx = appcontext.SetRoute(ctx, req.URL.Path)
			ctx = appcontext.SetRemoteIP(ctx, c.RealIP())
			ctx = appcontext.SetReferer(ctx, req.Referer())
			ctx = appcontext.SetSourceSystem(ctx, sourceSystem)
			ctx = appcontext.SetReviewer(ctx, reviewer)

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
