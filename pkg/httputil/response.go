package httputil

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ward-api/pkg/errors"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// Error codes for failures raised outside the lifecycle service.
const (
	CodeTimeout     = "timeout"
	CodeRateLimited = "rate_limited"
	CodeTooLarge    = "too_large"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string              `json:"error"`
	Code      string              `json:"code"`
	RequestID string              `json:"request_id,omitempty"`
	Fields    []errors.FieldError `json:"fields,omitempty"`
}

// RespondWithSuccess sends data as the response body.
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// RespondWithError records err on the context for the error middleware and
// writes it as an ErrorResponse.
func RespondWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	if stderrors.Is(err, context.DeadlineExceeded) {
		RespondWithStatus(c, http.StatusGatewayTimeout, CodeTimeout, "request timeout")
		return
	}

	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Internal(err)
	}

	c.AbortWithStatusJSON(appErr.StatusCode(), ErrorResponse{
		Error:     appErr.Message,
		Code:      string(appErr.Kind),
		RequestID: c.GetString(RequestIDKey),
		Fields:    appErr.Fields,
	})
}

// RespondWithStatus aborts with a plain error body.
func RespondWithStatus(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: c.GetString(RequestIDKey),
	})
}
