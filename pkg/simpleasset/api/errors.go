package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// ErrorResponse is the body of every non-2xx response except reclaim results.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// statusForError maps the service error taxonomy to HTTP.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, simpleasset.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, simpleasset.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, simpleasset.ErrAlreadyDeleted):
		return http.StatusConflict, "already_deleted"
	case errors.Is(err, simpleasset.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, simpleasset.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, simpleasset.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, "unsupported_media_type"
	case errors.Is(err, simpleasset.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, simpleasset.ErrTransientStore):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// statusForOutcome maps a reclaim outcome to HTTP.
func statusForOutcome(o simpleasset.Outcome) int {
	switch o {
	case simpleasset.OutcomeSuccess:
		return http.StatusOK
	case simpleasset.OutcomeNotFound:
		return http.StatusNotFound
	case simpleasset.OutcomeForbidden:
		return http.StatusForbidden
	case simpleasset.OutcomeAlreadyDeleted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "An internal server error occurred"
		if status == http.StatusServiceUnavailable {
			msg = "Service temporarily unavailable, retry later"
		}
	}
	writeErrorBody(w, r, status, code, msg)
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{
		Code:      code,
		Message:   msg,
		RequestID: middleware.GetReqID(r.Context()),
	}})
}
