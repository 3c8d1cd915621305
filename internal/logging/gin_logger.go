package logging

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// GinLogrusLogger returns an access log middleware that routes Gin's
// per-request line through logrus, so proxy traffic shares the application
// log output and its rotation policy.
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.Request.URL.Path
		if query := c.Request.URL.RawQuery; query != "" {
			path += "?" + query
		}

		// Streaming completions run for the lifetime of the upstream
		// stream, so latency here is stream duration, not time to first
		// byte.
		entry := log.WithFields(log.Fields{
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Truncate(time.Millisecond).String(),
			"ip":      c.ClientIP(),
			"method":  c.Request.Method,
			"path":    path,
		})
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			entry = entry.WithField("errors", errs.String())
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request served")
		}
	}
}

// GinLogrusRecovery converts a handler panic into a 500 response after
// logging the panic value and stack through logrus.
func GinLogrusRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.WithFields(log.Fields{
			"panic": recovered,
			"path":  c.Request.URL.Path,
			"stack": string(debug.Stack()),
		}).Error("recovered from handler panic")

		c.AbortWithStatus(http.StatusInternalServerError)
	})
}
