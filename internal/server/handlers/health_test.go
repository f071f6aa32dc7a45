package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	t.Run("healthy with no checkers", func(t *testing.T) {
		m := NewHealthManager("1.2.3")

		rec := httptest.NewRecorder()
		m.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)

		var body HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "1.2.3", body.Version)
	})

	t.Run("healthy when all checks pass", func(t *testing.T) {
		m := NewHealthManager("1.2.3")
		m.RegisterChecker("store", checkerFunc(func(context.Context) error { return nil }))

		rec := httptest.NewRecorder()
		m.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)

		var body HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Checks["store"])
	})

	t.Run("503 when a check fails", func(t *testing.T) {
		m := NewHealthManager("1.2.3")
		m.RegisterChecker("store", checkerFunc(func(context.Context) error { return nil }))
		m.RegisterChecker("backend", checkerFunc(func(context.Context) error {
			return errors.New("describe timed out")
		}))

		rec := httptest.NewRecorder()
		m.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "describe timed out", body.Checks["backend"])
		assert.Equal(t, "healthy", body.Checks["store"])
	})
}

func TestVersionHandler(t *testing.T) {
	m := NewHealthManager("0.3.0")

	rec := httptest.NewRecorder()
	m.VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "0.3.0", body["version"])
}
