// Package job defines the simulation job model shared by the store, the
// orchestrator, and the API surface.
package job

import (
	"fmt"
	"strings"
	"time"
)

// FailureCategory classifies why a job ended in a failed state. The category
// tells callers whether resubmitting the same spec could succeed.
type FailureCategory string

const (
	// FailureValidation is a caller-fixable spec problem.
	FailureValidation FailureCategory = "validation"

	// FailureQuota means the owner's concurrent-job quota was exhausted.
	FailureQuota FailureCategory = "quota"

	// FailureDispatch means the compute backend rejected the submission.
	FailureDispatch FailureCategory = "dispatch"

	// FailureExecution means the backend ran the simulation and it failed.
	FailureExecution FailureCategory = "execution"

	// FailurePreempted means spot capacity was reclaimed and the retry
	// ceiling was exhausted.
	FailurePreempted FailureCategory = "preempted"

	// FailureResults means the simulation finished but its output was
	// missing or incomplete.
	FailureResults FailureCategory = "results"

	// FailureInternal is an orchestrator-side fault.
	FailureInternal FailureCategory = "internal"
)

// FailureReason is the structured cause recorded on any failed or cancelled
// terminal state.
type FailureReason struct {
	Category FailureCategory `json:"category"`
	Detail   string          `json:"detail"`
}

func (r FailureReason) String() string {
	return fmt.Sprintf("%s: %s", r.Category, r.Detail)
}

// Spec is the immutable domain configuration of a simulation, fixed at
// submission.
type Spec struct {
	// SimulationType selects the chemistry mechanism (fullchem, aerosol,
	// transport, co2).
	SimulationType string `json:"simulation_type"`

	// Resolution is the model grid (e.g. 4x5, 2x2.5, c24).
	Resolution string `json:"resolution"`

	// StartDate and EndDate bound the simulated period (inclusive start,
	// exclusive end), layout 2006-01-02.
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`

	// ProcessorFamily is the requested CPU family (graviton, intel, amd).
	ProcessorFamily string `json:"processor_family"`

	// InstanceSize is the requested size within the family (large,
	// 4xlarge, 8xlarge, 16xlarge).
	InstanceSize string `json:"instance_size"`

	// SpotEligible allows the job to run on reclaimable capacity in
	// exchange for a lower rate.
	SpotEligible bool `json:"spot_eligible"`
}

// Days returns the simulated duration in days, or an error when the date
// range does not parse. Validation rejects malformed ranges before any job
// is dispatched, so errors here indicate a spec that bypassed validation.
func (s Spec) Days() (int, error) {
	start, err := time.Parse("2006-01-02", strings.TrimSpace(s.StartDate))
	if err != nil {
		return 0, fmt.Errorf("parse start_date: %w", err)
	}
	end, err := time.Parse("2006-01-02", strings.TrimSpace(s.EndDate))
	if err != nil {
		return 0, fmt.Errorf("parse end_date: %w", err)
	}
	days := int(end.Sub(start) / (24 * time.Hour))
	if days <= 0 {
		return 0, fmt.Errorf("end_date %s is not after start_date %s", s.EndDate, s.StartDate)
	}
	return days, nil
}

// Job is the central tracked entity: one user-submitted simulation, followed
// end to end by the orchestrator.
//
// All mutation goes through the store's version-conditioned update; Version
// is the optimistic concurrency token and increments on every successful
// write.
type Job struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Spec    Spec   `json:"spec"`
	Status  Status `json:"status"`

	// ComputeHandle is the backend's reference for the submitted work.
	// Set at most once per attempt; retained on CANCELLED for audit.
	ComputeHandle string `json:"compute_handle,omitempty"`

	// Attempt counts backend submissions, starting at 1. Incremented only
	// on spot-interruption resubmission.
	Attempt int `json:"attempt"`

	// ResultLocation is where finalized output lives (s3://bucket/prefix).
	ResultLocation string `json:"result_location,omitempty"`

	// CostEstimateUSD is computed at validation; CostActualUSD only after
	// finalization.
	CostEstimateUSD float64 `json:"cost_estimate_usd,omitempty"`
	CostActualUSD   float64 `json:"cost_actual_usd,omitempty"`

	FailureReason *FailureReason `json:"failure_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Version int64 `json:"version"`
}
