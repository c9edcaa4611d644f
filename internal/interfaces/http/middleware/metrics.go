package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request count and latency per route. The route template
// (c.FullPath) is used instead of the raw URL so path parameters do not
// explode label cardinality.
func Metrics(app *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		prometheus.RecordHTTPRequest(app, c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
