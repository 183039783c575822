package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/infrastructure/metrics"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// SentryMiddleware captures errors that happened during request handling
// and reports them to Sentry
func SentryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		for _, err := range c.Errors {
			sentry.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("method", c.Request.Method)
				scope.SetTag("path", c.Request.URL.Path)
				scope.SetTag("status", http.StatusText(c.Writer.Status()))
				scope.SetTag("ip", c.ClientIP())
				scope.SetTag("user-agent", c.Request.UserAgent())
				scope.SetExtra("latency", time.Since(start).String())
				scope.SetRequest(c.Request)

				sentry.CaptureException(err.Err)
			})
		}
	}
}

// MetricsMiddleware records request counts and latencies labelled by route
// template, so path parameters do not blow up label cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(
			c.Request.Method, path,
		).Observe(time.Since(start).Seconds())
	}
}

func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry.WithError(c.Errors.Last().Err).Warn("request failed")
			return
		}
		entry.Trace("request served")
	}
}
