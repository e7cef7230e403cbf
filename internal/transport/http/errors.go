package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/parley/internal/auth"
	"github.com/vovakirdan/parley/internal/core"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
		return http.StatusBadRequest
	}

	switch core.Code(err) {
	case core.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case core.ErrCodeForbidden, core.ErrCodeUnauthorized, core.ErrCodeNotInRoom:
		return http.StatusForbidden
	case core.ErrCodeNotFound, core.ErrCodeRoomNotFound:
		return http.StatusNotFound
	case core.ErrCodeEmptyMessage, core.ErrCodeInvalidEnum, core.ErrCodeBadRequest:
		return http.StatusBadRequest
	case core.ErrCodeInvalidState, core.ErrCodeCallInProgress, core.ErrCodeNoCall:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a structured failure. Internal errors are not described to the caller.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, ErrorResponse{Error: "internal server error", Code: "internal"})
		return
	}
	code := core.Code(err)
	if code == "internal" {
		code = ""
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}
