// Package compute defines the narrow interface the orchestrator uses to run
// a unit of simulation work on an external scheduler. The orchestrator
// treats the backend as opaque: all it holds is the handle returned by
// Submit, and all state needed to resume after a crash is reconstructable
// from the stored job plus a fresh Describe.
package compute

import (
	"context"

	"github.com/atmoslabs/simbatch/pkg/job"
)

// State is the backend's view of a submitted unit of work.
type State string

const (
	// StatePending means the backend accepted the work but has not started
	// executing it (queued, provisioning capacity).
	StatePending State = "Pending"

	StateRunning   State = "Running"
	StateSucceeded State = "Succeeded"
	StateFailed    State = "Failed"

	// StateInterrupted means the backend reclaimed the capacity the work
	// was running on (spot-style pre-emption). Transient by nature.
	StateInterrupted State = "Interrupted"
)

// Terminal reports whether the backend will make no further progress.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateInterrupted
}

// Submission carries everything the backend needs to run one attempt.
type Submission struct {
	// JobID is the orchestrator's job id, used for naming and tagging so
	// backend-side records correlate with the store.
	JobID string

	// Attempt distinguishes resubmissions after interruption.
	Attempt int

	Spec job.Spec

	// OutputLocation is where the container writes results (s3://...).
	OutputLocation string
}

// Description is the result of a Describe call.
type Description struct {
	State State

	// Detail carries the backend's human-readable status reason, if any.
	Detail string
}

// Backend is the compute adapter consumed by the orchestrator.
//
// All calls are potentially slow network operations; implementations must
// honor ctx deadlines. A timeout is an unknown outcome: callers retry on the
// next tick rather than assume failure.
type Backend interface {
	// Submit places one attempt on the backend and returns its handle.
	Submit(ctx context.Context, sub Submission) (handle string, err error)

	// Describe reports current backend state for a handle.
	Describe(ctx context.Context, handle string) (Description, error)

	// Terminate requests the backend stop work on a handle. Idempotent;
	// terminating already-finished work is not an error.
	Terminate(ctx context.Context, handle string) error
}
