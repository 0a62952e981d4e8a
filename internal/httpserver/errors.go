package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shopfront/internal/domain"
)

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Kind    domain.Kind    `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindOutOfStock:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// toBody hides the cause of internal failures from clients.
func toBody(err error) (int, errorBody) {
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind == domain.KindInternal {
		return http.StatusInternalServerError, errorBody{Error: errorPayload{
			Kind:    domain.KindInternal,
			Message: "Server Error",
		}}
	}
	return statusFor(de.Kind), errorBody{Error: errorPayload{
		Kind:    de.Kind,
		Message: de.Message,
		Details: de.Details,
	}}
}

func abortWithError(c *gin.Context, err error) {
	status, body := toBody(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *handlers) fail(c *gin.Context, err error) {
	status, _ := toBody(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	abortWithError(c, err)
}

func badRequest(c *gin.Context, format string, args ...any) {
	abortWithError(c, domain.Validation(format, args...))
}
