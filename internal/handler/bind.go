package handler

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ward-api/pkg/errors"
	"github.com/jwalitptl/ward-api/pkg/httputil"
)

// BindJSON binds the request body into obj. Request models carry no binding
// tags, so this only checks that the body is well-formed JSON of the right
// shape and field rules stay with the services. On failure it writes the error
// response and returns false.
func BindJSON(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	var (
		typeErr *json.UnmarshalTypeError
		sizeErr *http.MaxBytesError
	)
	switch {
	case stderrors.As(err, &sizeErr):
		httputil.RespondWithStatus(c, http.StatusRequestEntityTooLarge, httputil.CodeTooLarge, "request body too large")
	case stderrors.As(err, &typeErr):
		httputil.RespondWithError(c, errors.InvalidField(typeErr.Field, typeMessage(typeErr.Type), err))
	case stderrors.Is(err, io.EOF):
		httputil.RespondWithError(c, errors.Validation("request body is required"))
	default:
		httputil.RespondWithError(c, &errors.AppError{
			Kind:    errors.KindValidation,
			Message: "invalid JSON body",
			Err:     err,
		})
	}
	return false
}

// PathID parses a positive integer path parameter. On failure it writes the
// error response and returns false.
func PathID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		httputil.RespondWithError(c, errors.InvalidField(param, "must be a positive integer", err))
		return 0, false
	}
	return id, true
}

func typeMessage(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "must be an integer"
	case reflect.String:
		return "must be a string"
	default:
		return fmt.Sprintf("must be of type %s", t)
	}
}
