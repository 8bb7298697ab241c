package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dusk-indust/adqueue/internal/request"
)

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor maps a queue error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, request.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, request.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, request.ErrBuildInProgress),
		errors.Is(err, request.ErrInvalidTransition),
		errors.Is(err, request.ErrNothingToBuild):
		return http.StatusConflict
	case errors.Is(err, request.ErrMergeService),
		errors.Is(err, request.ErrService):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := ErrorResponse{Error: err.Error()}

		var he *echo.HTTPError
		var ve *request.ValidationError
		switch {
		case errors.As(err, &he):
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				body.Error = msg
			} else {
				body.Error = http.StatusText(he.Code)
			}
		case errors.As(err, &ve):
			status = http.StatusBadRequest
			body.Field = ve.Field
		default:
			status = statusFor(err)
		}

		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", status),
				zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Warn("write error response", zap.Error(err))
		}
	}
}
