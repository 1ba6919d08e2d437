package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/notebook-backend/internal/observability"
)

// Metrics instruments request counts and latency per route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		m := observability.Current()
		m.IncCounter("http_requests_total", "HTTP requests",
			"method", c.Request.Method, "route", route, "status", status)
		m.ObserveSeconds("http_request_duration_seconds", "HTTP request latency",
			time.Since(start).Seconds(), "route", route)
	}
}
