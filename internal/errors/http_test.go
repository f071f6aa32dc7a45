package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmoslabs/simbatch/pkg/jobstore"
	"github.com/atmoslabs/simbatch/pkg/orchestrator"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) HTTPErrorResponse {
	t.Helper()
	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, http.StatusBadRequest, CodeBadRequest, "limit must be a non-negative integer", "req-123")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeEnvelope(t, rec)
	assert.Equal(t, CodeBadRequest, body.Error.Code)
	assert.Equal(t, "limit must be a non-negative integer", body.Error.Message)
	assert.Equal(t, "req-123", body.Error.RequestID)
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid spec", fmt.Errorf("%w: bad resolution", orchestrator.ErrInvalidSpec), http.StatusBadRequest, CodeValidationFailed},
		{"quota", fmt.Errorf("%w: limit reached", orchestrator.ErrQuotaExceeded), http.StatusTooManyRequests, CodeQuotaExceeded},
		{"invalid state", fmt.Errorf("%w: job is SUCCEEDED", orchestrator.ErrInvalidState), http.StatusConflict, CodeConflict},
		{"not found", jobstore.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"bad page token", jobstore.ErrInvalidPageToken, http.StatusBadRequest, CodeBadRequest},
		{"unknown error", fmt.Errorf("disk on fire"), http.StatusInternalServerError, CodeInternal},
		{"store fault", fmt.Errorf("list jobs: database is locked"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondWithError(rec, "req-1", tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeEnvelope(t, rec)
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}
}

func TestRespondWithErrorNeverLeaksInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithError(rec, "req-1", fmt.Errorf("dial tcp 10.0.0.5:5432: connection refused"))

	body := decodeEnvelope(t, rec)
	assert.Equal(t, "internal error", body.Error.Message)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}
