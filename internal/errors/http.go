// Package errors maps domain errors onto the API's JSON error envelope.
//
// A legitimately failed simulation is never an HTTP error: it surfaces as a
// 200 job view with status=FAILED and a structured failure reason. The
// envelope here covers request-level problems (bad input, unknown job,
// quota) and true orchestrator faults.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atmoslabs/simbatch/pkg/jobstore"
	"github.com/atmoslabs/simbatch/pkg/orchestrator"
)

// Stable error codes returned in the envelope.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
)

// HTTPErrorResponse is the JSON envelope for all error responses.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

type HTTPError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Write emits the envelope with the given status.
func Write(w http.ResponseWriter, status int, code, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPError{Code: code, Message: message, RequestID: requestID},
	})
}

// RespondWithError classifies a domain error and writes the envelope.
func RespondWithError(w http.ResponseWriter, requestID string, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidSpec):
		Write(w, http.StatusBadRequest, CodeValidationFailed, err.Error(), requestID)
	case errors.Is(err, orchestrator.ErrQuotaExceeded):
		Write(w, http.StatusTooManyRequests, CodeQuotaExceeded, err.Error(), requestID)
	case errors.Is(err, orchestrator.ErrInvalidState):
		Write(w, http.StatusConflict, CodeConflict, err.Error(), requestID)
	case errors.Is(err, jobstore.ErrNotFound):
		Write(w, http.StatusNotFound, CodeNotFound, "job not found", requestID)
	case errors.Is(err, jobstore.ErrInvalidPageToken):
		Write(w, http.StatusBadRequest, CodeBadRequest, err.Error(), requestID)
	default:
		// Do not leak internals; the detail goes to the server log.
		Write(w, http.StatusInternalServerError, CodeInternal, "internal error", requestID)
	}
}
