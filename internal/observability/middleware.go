package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// unmatchedRoute labels requests that hit no route, so scanners probing
// random paths do not grow the metric label set.
const unmatchedRoute = "unmatched"

// opsRequests records every ops request in the HTTP metrics under the node
// label and logs it. Successful /metrics and /health polls are not logged;
// scrapers hit them every few seconds.
func opsRequests(node string, logger zerolog.Logger) gin.HandlerFunc {
	logger = logger.With().Str("node", node).Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		RecordHTTPRequest(node, c.Request.Method, route, status, elapsed)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case isPollRoute(route):
			return
		default:
			event = logger.Debug()
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("ops request")
	}
}

func isPollRoute(route string) bool {
	return route == "/metrics" || route == "/health"
}
