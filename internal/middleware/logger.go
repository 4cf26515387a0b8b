package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ward-api/pkg/logger"
)

// Logger attaches a request-scoped logger to the request context and writes
// one access log line per request. Bodies are never logged; they carry
// patient data.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		reqLog := log.ZL.With().
			Str("request_id", c.GetString(ContextRequestID)).
			Logger()
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))

		// Process request
		c.Next()

		status := c.Writer.Status()
		event := reqLog.Info()
		msg := "Request processed"
		switch {
		case status >= 500:
			event = reqLog.Error()
			msg = "Server error"
		case status >= 400:
			event = reqLog.Warn()
			msg = "Client error"
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("route", c.FullPath()).
			Str("client_ip", c.ClientIP()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("size", c.Writer.Size()).
			Str("user_agent", c.Request.UserAgent()).
			Msg(msg)
	}
}
