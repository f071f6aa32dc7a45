package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/atmoslabs/simbatch/internal/errors"
	"github.com/atmoslabs/simbatch/internal/server/handlers"
	"github.com/atmoslabs/simbatch/internal/server/middleware"
	"github.com/atmoslabs/simbatch/pkg/compute"
	"github.com/atmoslabs/simbatch/pkg/compute/computetest"
	"github.com/atmoslabs/simbatch/pkg/job"
	"github.com/atmoslabs/simbatch/pkg/jobstore"
	"github.com/atmoslabs/simbatch/pkg/orchestrator"
	"github.com/atmoslabs/simbatch/pkg/resultsink/sinktest"
)

type testEnv struct {
	srv     *Server
	store   *jobstore.Store
	backend *computetest.Fake
	sink    *sinktest.Fake
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := jobstore.Open(ctx, jobstore.Config{Path: filepath.Join(t.TempDir(), "jobs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, jobstore.Migrate(ctx, db))
	store := jobstore.New(db)

	backend := computetest.New()
	sink := sinktest.New()

	orch := orchestrator.New(store, backend, sink, orchestrator.Config{
		PollInitial:    5 * time.Millisecond,
		PollMax:        20 * time.Millisecond,
		AdapterTimeout: time.Second,
	}, orchestrator.Options{})
	t.Cleanup(orch.Shutdown)

	health := handlers.NewHealthManager("test")
	srv := New("127.0.0.1", 0, orch, health, nil)

	return &testEnv{srv: srv, store: store, backend: backend, sink: sink}
}

func (e *testEnv) do(method, path, caller, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if caller != "" {
		req.Header.Set(middleware.CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorResponse {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

const validSubmitBody = `{
	"simulation_type": "fullchem",
	"resolution": "4x5",
	"start_date": "2024-01-01",
	"end_date": "2024-01-07",
	"processor_family": "graviton",
	"instance_size": "8xlarge",
	"spot_eligible": true
}`

func TestUnknownRouteReturnsEnvelope(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/does-not-exist", "alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeNotFound, decodeError(t, rec).Error.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPut, "/jobs", "alice", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, apperrors.CodeMethodNotAllowed, decodeError(t, rec).Error.Code)
}

func TestJobRoutesRequireIdentity(t *testing.T) {
	e := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/jobs"},
		{http.MethodGet, "/jobs"},
		{http.MethodGet, "/jobs/abc"},
		{http.MethodPost, "/jobs/abc/cancel"},
	} {
		rec := e.do(tc.method, tc.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
		assert.Equal(t, apperrors.CodeUnauthenticated, decodeError(t, rec).Error.Code)
	}
}

func TestHealthAndVersionAreUnauthenticated(t *testing.T) {
	e := newTestEnv(t)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/version", "", "").Code)
}

func TestSubmitJob(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/jobs", "alice", validSubmitBody)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp handlers.SubmitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, job.StatusDispatching, resp.Status)
}

func TestSubmitInvalidSpec(t *testing.T) {
	e := newTestEnv(t)

	body := strings.Replace(validSubmitBody, "4x5", "1x1", 1)
	rec := e.do(http.MethodPost, "/jobs", "alice", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.CodeValidationFailed, decodeError(t, rec).Error.Code)
}

func TestSubmitMalformedBody(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/jobs", "alice", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.CodeBadRequest, decodeError(t, rec).Error.Code)
}

func TestGetJob(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	j := &job.Job{ID: "j-1", OwnerID: "alice", Status: job.StatusRunning,
		Spec: job.Spec{SimulationType: "fullchem", Resolution: "4x5"}}
	require.NoError(t, e.store.Create(ctx, j))

	rec := e.do(http.MethodGet, "/jobs/j-1", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got job.Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "j-1", got.ID)
	assert.Equal(t, job.StatusRunning, got.Status)

	t.Run("other owner gets 404", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/jobs/j-1", "bob", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, apperrors.CodeNotFound, decodeError(t, rec).Error.Code)
	})

	t.Run("unknown id gets 404", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/jobs/nope", "alice", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestFailedJobIsNotAnHTTPError(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	j := &job.Job{
		ID: "j-failed", OwnerID: "alice", Status: job.StatusFailed,
		Spec: job.Spec{SimulationType: "fullchem", Resolution: "4x5"},
		FailureReason: &job.FailureReason{
			Category: job.FailureExecution, Detail: "container exited 1",
		},
	}
	require.NoError(t, e.store.Create(ctx, j))

	rec := e.do(http.MethodGet, "/jobs/j-failed", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got job.Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, job.StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, job.FailureExecution, got.FailureReason.Category)
}

func TestListJobs(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	for _, id := range []string{"j-1", "j-2"} {
		require.NoError(t, e.store.Create(ctx, &job.Job{
			ID: id, OwnerID: "alice", Status: job.StatusSucceeded,
			Spec: job.Spec{SimulationType: "fullchem", Resolution: "4x5"},
		}))
	}

	rec := e.do(http.MethodGet, "/jobs", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.ListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Jobs, 2)
	assert.Empty(t, resp.NextPageToken)

	t.Run("bad status filter", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/jobs?status=BOGUS", "alice", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/jobs?limit=minus-one", "alice", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad page token", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/jobs?pageToken=not-a-token!!!", "alice", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, apperrors.CodeBadRequest, decodeError(t, rec).Error.Code)
	})

	t.Run("status filter applies", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/jobs?status=RUNNING", "alice", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var resp handlers.ListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Empty(t, resp.Jobs)
	})
}

func TestCancelJob(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	j := &job.Job{ID: "j-run", OwnerID: "alice", Status: job.StatusRunning,
		ComputeHandle: "batch-0001",
		Spec:          job.Spec{SimulationType: "fullchem", Resolution: "4x5"}}
	require.NoError(t, e.store.Create(ctx, j))
	e.backend.SetState("batch-0001", compute.StateRunning, "")

	rec := e.do(http.MethodPost, "/jobs/j-run/cancel", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.SubmitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "j-run", resp.JobID)
	assert.Equal(t, job.StatusCancelling, resp.Status)

	t.Run("terminal job yields conflict", func(t *testing.T) {
		done := &job.Job{ID: "j-done", OwnerID: "alice", Status: job.StatusSucceeded,
			Spec: job.Spec{SimulationType: "fullchem", Resolution: "4x5"}}
		require.NoError(t, e.store.Create(ctx, done))

		rec := e.do(http.MethodPost, "/jobs/j-done/cancel", "alice", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, apperrors.CodeConflict, decodeError(t, rec).Error.Code)
	})
}
