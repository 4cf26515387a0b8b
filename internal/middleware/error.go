package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/ward-api/pkg/errors"
	"github.com/jwalitptl/ward-api/pkg/httputil"
)

// ErrorHandler logs the errors handlers attached to the context, at a level
// chosen by their kind, and writes the last one if no response was sent.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only handle errors if they exist
		if len(c.Errors) == 0 {
			return
		}

		log := zerolog.Ctx(c.Request.Context())
		for _, e := range c.Errors {
			var event *zerolog.Event
			switch errors.KindOf(e.Err) {
			case errors.KindNotFound:
				event = log.Info()
			case errors.KindValidation, errors.KindFormat, errors.KindConflict:
				event = log.Warn()
			default:
				event = log.Error()
			}

			event.
				Err(e.Err).
				Str("kind", string(errors.KindOf(e.Err))).
				Str("request_id", c.GetString(ContextRequestID)).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}

		if !c.Writer.Written() {
			httputil.RespondWithError(c, c.Errors.Last().Err)
		}
	}
}
