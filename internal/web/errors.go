package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err, operationID)
//  3. Status comes from the core sentinel the error wraps
//  4. Error is mapped via core.MapError to get a user-friendly message
//  5. Technical error is logged with request and correlation IDs

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/policyhub/internal/core"
	"github.com/JonMunkholm/policyhub/internal/logging"
)

// ErrorResponse is the JSON body of every API error.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Message       string `json:"message"`
	Code          string `json:"code"`
	Action        string `json:"action,omitempty"`
	CorrelationID string `json:"correlation_id"`
	OperationID   string `json:"operation_id,omitempty"`
}

// statusFor maps a core error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrUploadTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrOperationNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrNoFile),
		errors.Is(err, core.ErrFileTooLarge),
		errors.Is(err, core.ErrInvalidCSV):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the technical error server-side and writes the
// user-facing form. operationID is empty when no operation was created.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, operationID string) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if operationID != "" {
		attrs = append(attrs, "operation_id", operationID)
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "5")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Message:       userMsg.Message,
		Code:          userMsg.Code,
		Action:        userMsg.Action,
		CorrelationID: logging.CorrelationID(r.Context()),
		OperationID:   operationID,
	}); err != nil {
		logger.Error("json encode error", "error", err)
	}
}
