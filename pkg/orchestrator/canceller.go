package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/atmoslabs/simbatch/pkg/job"
)

// CancelOutcome reports what a cancel request achieved. Cancellation is
// best-effort but confirmed: the caller gets an immediate acknowledgment
// that CANCELLING was written, with CANCELLED visible later once the
// backend corroborates termination.
type CancelOutcome struct {
	Job *job.Job

	// TooLate means the job moved past the cancellable window while the
	// request was in flight (e.g. it just reached PROCESSING_RESULTS).
	// A no-op, not an error.
	TooLate bool
}

// Cancel requests cancellation of the owner's job. Only jobs in SUBMITTED,
// VALIDATING, DISPATCHING, or RUNNING accept a cancel; a terminal or
// already-cancelling job yields ErrInvalidState.
func (o *Orchestrator) Cancel(ctx context.Context, ownerID, jobID string) (CancelOutcome, error) {
	j, err := o.store.Get(ctx, ownerID, jobID)
	if err != nil {
		return CancelOutcome{}, err
	}

	if !j.Status.Cancellable() {
		return CancelOutcome{Job: j}, fmt.Errorf("%w: job is %s", ErrInvalidState, j.Status)
	}

	if err := o.advance(ctx, j, job.StatusCancelling, "canceller", nil); err != nil {
		if !isConflict(err) {
			return CancelOutcome{}, err
		}
		// Someone else advanced the job first. Re-read and decide:
		// still cancellable means a benign race (validator moved it
		// one step), so try once more from the new version; anything
		// else means the cancel arrived too late.
		fresh, err := o.store.Get(ctx, ownerID, jobID)
		if err != nil {
			return CancelOutcome{}, err
		}
		if !fresh.Status.Cancellable() {
			if fresh.Status.Terminal() {
				return CancelOutcome{Job: fresh}, fmt.Errorf("%w: job is %s", ErrInvalidState, fresh.Status)
			}
			return CancelOutcome{Job: fresh, TooLate: true}, nil
		}
		if err := o.advance(ctx, fresh, job.StatusCancelling, "canceller", nil); err != nil {
			if isConflict(err) {
				latest, lerr := o.store.Get(ctx, ownerID, jobID)
				if lerr != nil {
					return CancelOutcome{}, lerr
				}
				return CancelOutcome{Job: latest, TooLate: !latest.Status.Active()}, nil
			}
			return CancelOutcome{}, err
		}
		j = fresh
	}

	o.afterCancelWrite(ctx, j)

	return CancelOutcome{Job: j}, nil
}

// afterCancelWrite drives the job toward CANCELLED once CANCELLING is
// durably recorded.
func (o *Orchestrator) afterCancelWrite(ctx context.Context, j *job.Job) {
	if j.ComputeHandle != "" {
		// Terminate is best-effort here; the monitor confirms
		// CANCELLED when the backend reports a terminal state, and
		// retries termination implicitly by observing state each tick.
		callCtx, cancel := o.adapterCtx(ctx)
		defer cancel()
		if err := o.backend.Terminate(callCtx, j.ComputeHandle); err != nil {
			o.log.Warn("cancel: terminate",
				zap.String("job_id", j.ID),
				zap.String("handle", j.ComputeHandle),
				zap.Error(err))
		}
		o.startMonitor(j)
		return
	}

	// No backend work exists. If a dispatcher is mid-flight it will
	// observe CANCELLING on its own conditional write and confirm; writing
	// CANCELLED here as well covers the case where no dispatcher ever
	// picks the job up. The version check makes the double write safe.
	o.confirmCancelled(ctx, j, "canceller")
}
