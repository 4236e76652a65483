package correlation

import (
	"net/http"
	"time"

	constant "github.com/projectecosystemapp/lib-resilience/constants"
	"github.com/gofiber/fiber/v2"
)

// Middleware returns a fiber handler that makes a correlation context active
// for every request. Propagated identifiers on the inbound request are
// honored; otherwise a fresh root context is created. The correlation and
// trace IDs are echoed on the response so callers can join their own logs.
func Middleware(tracker *Tracker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		operation := c.Method() + " " + c.Path()

		ctx := c.UserContext()

		if inbound, ok := ExtractFromHeaders(requestHeaders(c)); ok {
			inbound.Service = tracker.Service()
			inbound.Operation = operation
			ctx = ContextWith(ctx, inbound)
		} else {
			ctx, _ = tracker.StartCorrelation(ctx, operation, nil)
		}

		corr, _ := FromContext(ctx)

		c.SetUserContext(ctx)
		c.Set(constant.HeaderCorrelationID, corr.CorrelationID)
		c.Set(constant.HeaderTraceID, corr.TraceID)

		start := time.Now()
		err := c.Next()

		tracker.logger.WithFields(
			"correlation_id", corr.CorrelationID,
			"trace_id", corr.TraceID,
			"span_id", corr.SpanID,
		).Infof("%s completed with status %d in %v", operation, c.Response().StatusCode(), time.Since(start))

		return err
	}
}

// requestHeaders copies the fasthttp request headers into a net/http header
// map so the transport-agnostic extractor can read them.
func requestHeaders(c *fiber.Ctx) http.Header {
	h := make(http.Header)

	c.Request().Header.VisitAll(func(key, value []byte) {
		h.Add(string(key), string(value))
	})

	return h
}
