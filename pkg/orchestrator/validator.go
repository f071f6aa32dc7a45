package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atmoslabs/simbatch/pkg/catalog"
	"github.com/atmoslabs/simbatch/pkg/job"
	"github.com/atmoslabs/simbatch/pkg/jobstore"
	"github.com/atmoslabs/simbatch/pkg/pricing"
)

// ValidateSpec checks a submission spec against the domain catalog. Pure:
// no store or backend access. Returns nil when the spec is acceptable,
// otherwise a user-facing failure reason.
func ValidateSpec(spec job.Spec, quota catalog.Quota) *job.FailureReason {
	if !catalog.ValidSimulationType(spec.SimulationType) {
		return &job.FailureReason{
			Category: job.FailureValidation,
			Detail:   fmt.Sprintf("unsupported simulation type %q", spec.SimulationType),
		}
	}
	if !catalog.ValidResolution(spec.Resolution) {
		return &job.FailureReason{
			Category: job.FailureValidation,
			Detail:   fmt.Sprintf("unsupported resolution %q", spec.Resolution),
		}
	}

	if strings.TrimSpace(spec.StartDate) == "" || strings.TrimSpace(spec.EndDate) == "" {
		return &job.FailureReason{
			Category: job.FailureValidation,
			Detail:   "start_date and end_date are required (format 2006-01-02)",
		}
	}
	days, err := spec.Days()
	if err != nil {
		return &job.FailureReason{
			Category: job.FailureValidation,
			Detail:   fmt.Sprintf("invalid date range: %v", err),
		}
	}
	if quota.MaxSimulationDays > 0 && days > quota.MaxSimulationDays {
		return &job.FailureReason{
			Category: job.FailureValidation,
			Detail:   fmt.Sprintf("simulated period of %d days exceeds the %d day limit", days, quota.MaxSimulationDays),
		}
	}

	if _, err := catalog.Lookup(spec.ProcessorFamily, spec.InstanceSize); err != nil {
		return &job.FailureReason{
			Category: job.FailureValidation,
			Detail:   err.Error(),
		}
	}

	return nil
}

// validate advances a freshly created job through SUBMITTED -> VALIDATING ->
// DISPATCHING, recording VALIDATION_FAILED (with the typed reason returned
// to the caller) when the spec or quota check fails. A version conflict at
// any step means another actor already advanced the job; the validator
// abandons its own transition without error.
func (o *Orchestrator) validate(ctx context.Context, j *job.Job) error {
	if err := o.advance(ctx, j, job.StatusValidating, "validator", nil); err != nil {
		if isConflict(err) {
			return nil
		}
		return err
	}

	if reason := ValidateSpec(j.Spec, o.quota); reason != nil {
		return o.failValidation(ctx, j, reason, ErrInvalidSpec)
	}

	// Quota is checked after the cheap spec checks so a malformed request
	// never consumes a store scan.
	active, err := o.store.CountActive(ctx, j.OwnerID)
	if err != nil {
		return fmt.Errorf("count active jobs: %w", err)
	}
	// The job being validated is itself active; quota constrains the rest.
	if o.quota.MaxActiveJobs > 0 && active-1 >= o.quota.MaxActiveJobs {
		reason := &job.FailureReason{
			Category: job.FailureQuota,
			Detail:   fmt.Sprintf("active job limit of %d reached", o.quota.MaxActiveJobs),
		}
		return o.failValidation(ctx, j, reason, ErrQuotaExceeded)
	}

	estimate, err := pricing.Estimate(o.prices, j.Spec)
	if err != nil {
		reason := &job.FailureReason{
			Category: job.FailureValidation,
			Detail:   fmt.Sprintf("cost estimation: %v", err),
		}
		return o.failValidation(ctx, j, reason, ErrInvalidSpec)
	}

	if err := o.advance(ctx, j, job.StatusDispatching, "validator", func(j *job.Job) {
		j.CostEstimateUSD = estimate
	}); err != nil {
		if isConflict(err) {
			return nil
		}
		return err
	}

	return nil
}

func (o *Orchestrator) failValidation(ctx context.Context, j *job.Job, reason *job.FailureReason, sentinel error) error {
	now := time.Now().UTC()
	if err := o.advance(ctx, j, job.StatusValidationFailed, "validator", func(j *job.Job) {
		j.FailureReason = reason
		j.CompletedAt = &now
	}); err != nil && !isConflict(err) {
		return err
	}
	return fmt.Errorf("%w: %s", sentinel, reason.Detail)
}

// isConflict reports whether a store write lost its version race.
func isConflict(err error) bool {
	return errors.Is(err, jobstore.ErrVersionConflict)
}
