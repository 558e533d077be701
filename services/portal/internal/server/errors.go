package server

import (
	"errors"
	"net/http"
	"strings"

	"campuscanvas/pkg/domain"
	"campuscanvas/services/portal/internal/app"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
	Field     string `json:"field,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Limit     int64  `json:"limit,omitempty"`
	Total     int64  `json:"total,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeAppError maps the workflow error taxonomy to HTTP.
func writeAppError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     ve.Message,
			Code:      "PROJECT_VALIDATION_FAILED",
			RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
			Field:     ve.Field,
			Reason:    ve.Code,
			Limit:     ve.Limit,
			Total:     ve.Total,
		})
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "PROJECT_FORBIDDEN", "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "project not found")
	case errors.Is(err, domain.ErrNotConfirmed):
		writeError(w, http.StatusConflict, "PROJECT_CONFIRMATION_REQUIRED", "confirmation required, retry with confirm=true")
	case domain.IsPersistence(err):
		writeError(w, http.StatusServiceUnavailable, "SYSTEM_STORE_UNAVAILABLE", "project store unavailable")
	case errors.Is(err, app.ErrNoSessions):
		writeError(w, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "sessions not configured")
	default:
		writeError(w, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "internal error")
	}
}
