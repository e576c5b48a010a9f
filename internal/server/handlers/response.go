package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/watzon/tenantcore/internal/dispatch"
	"github.com/watzon/tenantcore/internal/requestctx"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

func Error(w http.ResponseWriter, status int, code string, message string) {
	JSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func ErrorWithDetails(w http.ResponseWriter, status int, code string, message string, details any) {
	JSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, "NOT_FOUND", message)
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, "CONFLICT", message)
}

func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// DispatchError renders an invocation failure. Organization access failures
// are indistinguishable from unknown procedures.
func DispatchError(w http.ResponseWriter, r *http.Request, err error) {
	var de *dispatch.Error
	if !errors.As(err, &de) {
		requestctx.Logger(r.Context()).Error().Err(err).Msg("Unclassified invocation error")
		InternalError(w, "Internal server error")
		return
	}

	switch de.Kind {
	case dispatch.KindNotFound, dispatch.KindOrganizationAccess:
		NotFound(w, dispatch.ErrOrganizationAccess.Message)
	case dispatch.KindRegistrationConflict:
		Conflict(w, de.Message)
	default:
		InternalError(w, de.Message)
	}
}

// decodeBody reads an optional JSON object. An empty body decodes to the zero
// value.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
