package compute

import (
	"errors"
	"fmt"
)

// Sentinel errors for backend operations.
var (
	// ErrRejected indicates the backend refused the submission outright
	// (malformed parameters, unknown queue). Non-transient.
	ErrRejected = errors.New("submission rejected")

	// ErrNoCapacity indicates the backend could not place the work right
	// now. Transient; bounded retry applies.
	ErrNoCapacity = errors.New("no capacity available")

	// ErrThrottled indicates the backend rate limited the request.
	ErrThrottled = errors.New("request throttled")

	// ErrNotFound indicates the handle is unknown to the backend.
	ErrNotFound = errors.New("compute handle not found")

	// ErrUnavailable indicates the backend service could not be reached.
	ErrUnavailable = errors.New("compute backend unavailable")
)

// BackendError wraps backend-specific errors with context.
type BackendError struct {
	// Op is the operation that failed (e.g. "Submit", "Describe").
	Op string

	// Handle is the backend handle, if applicable.
	Handle string

	// Err is the underlying error.
	Err error
}

func (e *BackendError) Error() string {
	if e.Handle != "" {
		return fmt.Sprintf("compute %s: %s: %v", e.Op, e.Handle, e.Err)
	}
	return fmt.Sprintf("compute %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsRejected returns true if the backend refused the submission outright.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}

// IsNoCapacity returns true if the backend lacked capacity for the work.
func IsNoCapacity(err error) bool {
	return errors.Is(err, ErrNoCapacity)
}

// IsThrottled returns true if the request was rate limited.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsNotFound returns true if the handle is unknown to the backend.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable returns true if the backend could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsTransient returns true for errors worth retrying locally: throttling,
// missing capacity, and unreachable backends.
func IsTransient(err error) bool {
	return IsThrottled(err) || IsNoCapacity(err) || IsUnavailable(err)
}
