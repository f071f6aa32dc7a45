package orchestrator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/atmoslabs/simbatch/pkg/compute"
	"github.com/atmoslabs/simbatch/pkg/job"
)

// dispatch turns a DISPATCHING job into a backend submission and starts its
// monitor. Idempotent from the orchestrator's perspective: if a previous
// attempt crashed after the backend accepted the work but before the local
// write committed, the stored handle is reused and no second submission is
// made.
func (o *Orchestrator) dispatch(ctx context.Context, j *job.Job) {
	fresh, err := o.store.GetByID(ctx, j.ID)
	if err != nil {
		o.log.Error("dispatch: reload job", zap.String("job_id", j.ID), zap.Error(err))
		return
	}
	j = fresh

	switch j.Status {
	case job.StatusDispatching:
		// proceed
	case job.StatusCancelling:
		// Cancel arrived before dispatch; confirm it without ever
		// touching the backend.
		o.confirmCancelled(ctx, j, "dispatcher")
		return
	default:
		// Another actor already moved the job past dispatch.
		return
	}

	handle := j.ComputeHandle
	if handle == "" {
		handle, err = o.submitAttempt(ctx, j)
		if err != nil {
			o.failDispatch(ctx, j, err)
			return
		}
		// Persist the handle before leaving DISPATCHING. A crash between
		// backend acceptance and the RUNNING write must not orphan the
		// work: a later redispatch finds the stored handle and skips the
		// second submission.
		err = o.advance(ctx, j, job.StatusDispatching, "dispatcher", func(j *job.Job) {
			j.ComputeHandle = handle
		})
		if err != nil {
			if !isConflict(err) {
				o.log.Error("dispatch: record handle", zap.String("job_id", j.ID), zap.Error(err))
				return
			}
			o.reapAfterDispatchRace(ctx, j.ID, handle)
			return
		}
	}

	now := time.Now().UTC()
	err = o.advance(ctx, j, job.StatusRunning, "dispatcher", func(j *job.Job) {
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
	})
	if err != nil {
		if !isConflict(err) {
			o.log.Error("dispatch: record running", zap.String("job_id", j.ID), zap.Error(err))
			return
		}
		o.reapAfterDispatchRace(ctx, j.ID, handle)
		return
	}

	o.startMonitor(j)
}

// reapAfterDispatchRace handles a dispatcher losing its conditional write
// after the backend accepted an attempt. Whatever the winner managed to
// record, accepted work nobody tracks must not keep running.
func (o *Orchestrator) reapAfterDispatchRace(ctx context.Context, jobID, handle string) {
	fresh, err := o.store.GetByID(ctx, jobID)
	if err != nil {
		o.log.Error("dispatch: reload after conflict", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	switch fresh.Status {
	case job.StatusCancelling:
		o.terminateQuietly(ctx, handle)
		// Keep the handle on the record for audit even though the
		// attempt never reached RUNNING.
		now := time.Now().UTC()
		cErr := o.advance(ctx, fresh, job.StatusCancelled, "dispatcher", func(j *job.Job) {
			j.ComputeHandle = handle
			j.CompletedAt = &now
		})
		if cErr != nil && !isConflict(cErr) {
			o.log.Error("record cancelled", zap.String("job_id", fresh.ID), zap.Error(cErr))
		}
	case job.StatusCancelled:
		// The canceller saw no handle yet and already closed the record.
		// The record is terminal and stays untouched; the backend work
		// still has to go.
		o.terminateQuietly(ctx, handle)
	default:
		// A concurrent dispatcher won with its own submission; ours is
		// the orphan.
		if fresh.ComputeHandle != "" && fresh.ComputeHandle != handle {
			o.terminateQuietly(ctx, handle)
		}
	}
}

// submitAttempt performs one backend submission with bounded retry on
// transient errors. Rejections are returned to the caller for terminal
// handling.
func (o *Orchestrator) submitAttempt(ctx context.Context, j *job.Job) (string, error) {
	sub := compute.Submission{
		JobID:          j.ID,
		Attempt:        j.Attempt,
		Spec:           j.Spec,
		OutputLocation: o.sink.OutputLocation(j.ID),
	}

	var handle string
	op := func() error {
		callCtx, cancel := o.adapterCtx(ctx)
		defer cancel()

		h, err := o.backend.Submit(callCtx, sub)
		if err != nil {
			if compute.IsTransient(err) {
				return err // retry
			}
			return backoff.Permanent(err)
		}
		handle = h
		return nil
	}

	if err := backoff.Retry(op, o.adapterBackoff(ctx)); err != nil {
		return "", err
	}

	o.log.Info("job submitted to backend",
		zap.String("job_id", j.ID),
		zap.String("handle", handle),
		zap.Int("attempt", j.Attempt))
	return handle, nil
}

// failDispatch records a terminal DISPATCH_FAILED with the backend's reason.
func (o *Orchestrator) failDispatch(ctx context.Context, j *job.Job, cause error) {
	now := time.Now().UTC()
	reason := &job.FailureReason{Category: job.FailureDispatch, Detail: cause.Error()}

	err := o.advance(ctx, j, job.StatusDispatchFailed, "dispatcher", func(j *job.Job) {
		j.FailureReason = reason
		j.CompletedAt = &now
	})
	if err != nil && !isConflict(err) {
		o.log.Error("dispatch: record failure", zap.String("job_id", j.ID), zap.Error(err))
	}
}

// confirmCancelled finishes a CANCELLING job whose backend work either never
// existed or is no longer running.
func (o *Orchestrator) confirmCancelled(ctx context.Context, j *job.Job, actor string) {
	now := time.Now().UTC()
	err := o.advance(ctx, j, job.StatusCancelled, actor, func(j *job.Job) {
		j.CompletedAt = &now
	})
	if err != nil && !isConflict(err) {
		o.log.Error("record cancelled", zap.String("job_id", j.ID), zap.Error(err))
	}
}

// terminateQuietly is a best-effort backend terminate used when a dispatch
// raced a cancel. The monitor-driven cancel path handles confirmation.
func (o *Orchestrator) terminateQuietly(ctx context.Context, handle string) {
	callCtx, cancel := o.adapterCtx(ctx)
	defer cancel()
	if err := o.backend.Terminate(callCtx, handle); err != nil {
		o.log.Warn("terminate after cancel race", zap.String("handle", handle), zap.Error(err))
	}
}

// adapterBackoff builds the bounded retry schedule used within a single
// dispatch or finalize step.
func (o *Orchestrator) adapterBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(o.cfg.AdapterRetries-1)), ctx)
}
