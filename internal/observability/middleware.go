package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware records request metrics keyed by the matched route.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		metrics.HTTPRequestsInFlight.Inc()
		contextGin.Next()
		metrics.HTTPRequestsInFlight.Dec()

		endpoint := contextGin.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := strconv.Itoa(contextGin.Writer.Status())
		metrics.RecordHTTPRequest(endpoint, contextGin.Request.Method, status, time.Since(startTime).Seconds())
	}
}
