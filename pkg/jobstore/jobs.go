package jobstore

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atmoslabs/simbatch/pkg/job"
)

// timeLayout is the stored timestamp format. Fixed-width fractional seconds
// keep UTC timestamps lexicographically ordered, which keyset pagination
// relies on (RFC3339Nano trims trailing zeros and breaks that).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store provides keyed access to job records over a SQL database.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new job record. The job's Version is forced to 1 and
// CreatedAt/UpdatedAt are set if zero.
func (s *Store) Create(ctx context.Context, j *job.Job) error {
	if j == nil {
		return fmt.Errorf("job is nil")
	}
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("job id is required")
	}
	if strings.TrimSpace(j.OwnerID) == "" {
		return fmt.Errorf("owner id is required")
	}

	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	j.Version = 1
	if j.Attempt == 0 {
		j.Attempt = 1
	}

	specJSON, err := json.Marshal(j.Spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	failureJSON, err := marshalFailure(j.FailureReason)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs
		 (job_id, owner_id, spec_json, status, compute_handle, attempt,
		  result_location, cost_estimate_usd, cost_actual_usd, failure_json,
		  created_at, updated_at, started_at, completed_at, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.OwnerID, string(specJSON), string(j.Status), j.ComputeHandle, j.Attempt,
		j.ResultLocation, j.CostEstimateUSD, j.CostActualUSD, failureJSON,
		j.CreatedAt.Format(timeLayout), j.UpdatedAt.Format(timeLayout),
		formatOptionalTime(j.StartedAt), formatOptionalTime(j.CompletedAt), j.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

// Get returns the job with the given id scoped to owner. Lookups from
// another owner report ErrNotFound rather than existence.
func (s *Store) Get(ctx context.Context, ownerID, jobID string) (*job.Job, error) {
	j, err := s.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return j, nil
}

// GetByID returns the job with the given id regardless of owner. Used by the
// orchestrator's internal actors, which operate on jobs they were handed.
func (s *Store) GetByID(ctx context.Context, jobID string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, selectJob+` WHERE job_id = ?`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// Update writes the job conditioned on j.Version matching the stored row.
// On success the stored version is incremented and j reflects the new
// version and updated_at. A lost race returns ErrVersionConflict and leaves
// both j and the stored row unmodified.
func (s *Store) Update(ctx context.Context, j *job.Job) error {
	if j == nil {
		return fmt.Errorf("job is nil")
	}

	failureJSON, err := marshalFailure(j.FailureReason)
	if err != nil {
		return err
	}

	updatedAt := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET
		   status = ?,
		   compute_handle = ?,
		   attempt = ?,
		   result_location = ?,
		   cost_estimate_usd = ?,
		   cost_actual_usd = ?,
		   failure_json = ?,
		   updated_at = ?,
		   started_at = ?,
		   completed_at = ?,
		   version = version + 1
		 WHERE job_id = ? AND version = ?`,
		string(j.Status), j.ComputeHandle, j.Attempt, j.ResultLocation,
		j.CostEstimateUSD, j.CostActualUSD, failureJSON,
		updatedAt.Format(timeLayout),
		formatOptionalTime(j.StartedAt), formatOptionalTime(j.CompletedAt),
		j.ID, j.Version)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM jobs WHERE job_id = ?`, j.ID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("check job existence: %w", err)
		}
		return ErrVersionConflict
	}

	j.Version++
	j.UpdatedAt = updatedAt
	return nil
}

// ListOptions control owner-scoped listing.
type ListOptions struct {
	// Status filters to a single status when non-empty.
	Status job.Status

	// Limit is the page size. Clamped to [1, MaxPageSize]; zero means
	// DefaultPageSize.
	Limit int

	// PageToken resumes listing after a previous page's boundary.
	PageToken string
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// List returns one page of the owner's jobs, newest first, plus the token
// for the next page ("" when the listing is exhausted).
func (s *Store) List(ctx context.Context, ownerID string, opts ListOptions) ([]job.Job, string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	query := selectJob + ` WHERE owner_id = ?`
	args := []any{ownerID}

	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}

	if opts.PageToken != "" {
		createdAt, jobID, err := decodePageToken(opts.PageToken)
		if err != nil {
			return nil, "", err
		}
		query += ` AND (created_at < ? OR (created_at = ? AND job_id < ?))`
		args = append(args, createdAt, createdAt, jobID)
	}

	// Fetch one extra row to learn whether another page exists.
	query += ` ORDER BY created_at DESC, job_id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]job.Job, 0, limit)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("scan jobs: %w", err)
	}

	next := ""
	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]
		next = encodePageToken(last.CreatedAt, last.ID)
	}

	return out, next, nil
}

// ListActive returns every non-terminal job so a restarted orchestrator can
// re-drive each one from wherever the previous process stopped.
func (s *Store) ListActive(ctx context.Context) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		selectJob+` WHERE status IN (?, ?, ?, ?, ?, ?) ORDER BY created_at`,
		string(job.StatusSubmitted), string(job.StatusValidating),
		string(job.StatusDispatching), string(job.StatusRunning),
		string(job.StatusProcessing), string(job.StatusCancelling))
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan active jobs: %w", err)
	}
	return out, nil
}

// CountActive returns the number of non-terminal jobs the owner has. Quota
// enforcement counts everything still in flight, including jobs that are
// only queued for validation.
func (s *Store) CountActive(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs
		 WHERE owner_id = ? AND status NOT IN (?, ?, ?, ?, ?)`,
		ownerID,
		string(job.StatusValidationFailed), string(job.StatusDispatchFailed),
		string(job.StatusSucceeded), string(job.StatusFailed), string(job.StatusCancelled)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return n, nil
}

const selectJob = `SELECT job_id, owner_id, spec_json, status, compute_handle, attempt,
	result_location, cost_estimate_usd, cost_actual_usd, failure_json,
	created_at, updated_at, started_at, completed_at, version FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j           job.Job
		specJSON    string
		status      string
		failureJSON sql.NullString
		createdAt   string
		updatedAt   string
		startedAt   sql.NullString
		completedAt sql.NullString
	)

	err := row.Scan(&j.ID, &j.OwnerID, &specJSON, &status, &j.ComputeHandle, &j.Attempt,
		&j.ResultLocation, &j.CostEstimateUSD, &j.CostActualUSD, &failureJSON,
		&createdAt, &updatedAt, &startedAt, &completedAt, &j.Version)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(specJSON), &j.Spec); err != nil {
		return nil, fmt.Errorf("parse spec for job %s: %w", j.ID, err)
	}
	j.Status = job.Status(status)

	if failureJSON.Valid && strings.TrimSpace(failureJSON.String) != "" {
		var fr job.FailureReason
		if err := json.Unmarshal([]byte(failureJSON.String), &fr); err != nil {
			return nil, fmt.Errorf("parse failure reason for job %s: %w", j.ID, err)
		}
		j.FailureReason = &fr
	}

	if j.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for job %s: %w", j.ID, err)
	}
	if j.StartedAt, err = parseOptionalTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at for job %s: %w", j.ID, err)
	}
	if j.CompletedAt, err = parseOptionalTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at for job %s: %w", j.ID, err)
	}

	return &j, nil
}

func marshalFailure(fr *job.FailureReason) (any, error) {
	if fr == nil {
		return nil, nil
	}
	b, err := json.Marshal(fr)
	if err != nil {
		return nil, fmt.Errorf("marshal failure reason: %w", err)
	}
	return string(b), nil
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseOptionalTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "primary key")
}

func encodePageToken(createdAt time.Time, jobID string) string {
	raw := createdAt.UTC().Format(timeLayout) + "|" + jobID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodePageToken(token string) (createdAt string, jobID string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return "", "", ErrInvalidPageToken
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidPageToken
	}
	if _, err := time.Parse(timeLayout, parts[0]); err != nil {
		return "", "", ErrInvalidPageToken
	}
	return parts[0], parts[1], nil
}
