// Package httpx renders the JSON envelope shared by handlers and middleware.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"portfolio/internal/apperr"
)

const RequestIDHeader = "X-Request-Id"

// verboseKey marks requests whose error responses may carry internal detail.
const verboseKey = "httpx.verbose"

type Envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Code    string              `json:"code,omitempty"`
	Error   string              `json:"error,omitempty"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
}

// Verbose enables internal error detail in responses; the server installs it only
// in development.
func Verbose() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(verboseKey, true)
		c.Next()
	}
}

func OK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

func Created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

// Abort writes e and stops the handler chain.
func Abort(c *gin.Context, e *apperr.Error) {
	c.AbortWithStatusJSON(e.Status(), Envelope{
		Message: e.Message,
		Code:    e.Code,
		Errors:  e.Fields,
	})
}

// Fail renders err. Application errors keep their status and message; anything
// else is logged and becomes a generic 500.
func Fail(c *gin.Context, log zerolog.Logger, err error) {
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind == apperr.KindInternal {
		log.Error().
			Err(err).
			Str("request_id", c.Writer.Header().Get(RequestIDHeader)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")

		env := Envelope{Message: "internal server error", Code: "internal_error"}
		if c.GetBool(verboseKey) {
			env.Error = err.Error()
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, env)
		return
	}

	if appErr.Kind == apperr.KindConflict && appErr.Err != nil {
		log.Warn().Err(appErr.Err).Str("path", c.Request.URL.Path).Msg(appErr.Message)
	}
	env := Envelope{Message: appErr.Message, Code: appErr.Code, Errors: appErr.Fields}
	if appErr.Kind == apperr.KindConflict {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(appErr.Status(), env)
}

// BindError converts a gin binding failure into a validation error with one entry per
// offending field.
func BindError(err error) *apperr.Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperr.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apperr.FieldError{Field: jsonName(fe), Message: describe(fe)})
		}
		return apperr.Validation("invalid fields", fields...)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return apperr.Validation("request body is required")
	case errors.As(err, &syntaxErr):
		return apperr.Validation("request body is not valid json")
	case errors.As(err, &typeErr):
		return apperr.Validation("invalid fields", apperr.FieldError{Field: typeErr.Field, Message: "must be a " + typeErr.Type.String()})
	}
	return apperr.Validation("invalid request body")
}

func jsonName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return fe.StructField()
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return "is invalid"
}
