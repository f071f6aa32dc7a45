package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/atmoslabs/simbatch/pkg/compute"
	"github.com/atmoslabs/simbatch/pkg/job"
	"github.com/atmoslabs/simbatch/pkg/jobstore"
)

// startMonitor launches the polling loop for a job unless this process
// already runs one. Each job's loop is independent: a slow Describe for one
// job never delays another's tick.
func (o *Orchestrator) startMonitor(j *job.Job) {
	o.mu.Lock()
	if _, ok := o.monitors[j.ID]; ok {
		o.mu.Unlock()
		return
	}
	o.monitors[j.ID] = struct{}{}
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.monitors, j.ID)
			o.mu.Unlock()
		}()
		o.monitorLoop(o.runCtx, j.ID)
	}()
}

// monitorLoop polls the backend for one job until the job leaves the
// RUNNING/CANCELLING pair or the orchestrator shuts down. The interval
// starts at PollInitial and widens by PollFactor per tick once the job has
// been running longer than PollWidenAfter, capped at PollMax: long
// simulations run for days and do not need second-granularity polling,
// while completion of a short job is still detected quickly.
func (o *Orchestrator) monitorLoop(ctx context.Context, jobID string) {
	interval := o.cfg.PollInitial
	loopStart := o.clock.Now()

	for {
		timer := o.clock.Timer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		done, resubmitted := o.tick(ctx, jobID)
		if done {
			return
		}

		if resubmitted {
			// Fresh attempt on the backend; poll eagerly again.
			interval = o.cfg.PollInitial
			loopStart = o.clock.Now()
			continue
		}

		if o.clock.Since(loopStart) > o.cfg.PollWidenAfter {
			interval = time.Duration(float64(interval) * o.cfg.PollFactor)
			if interval > o.cfg.PollMax {
				interval = o.cfg.PollMax
			}
		}
	}
}

// tick performs one reconciliation pass for a job. It returns done when the
// monitor should stop, and resubmitted when the pass replaced the job's
// backend attempt.
func (o *Orchestrator) tick(ctx context.Context, jobID string) (done bool, resubmitted bool) {
	j, err := o.store.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return true, false
		}
		o.log.Warn("monitor: load job", zap.String("job_id", jobID), zap.Error(err))
		return false, false
	}

	// Another actor finalized the job; this loop's work is over.
	if !j.Status.Active() {
		return true, false
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return true, false
		}
	}

	callCtx, cancel := o.adapterCtx(ctx)
	desc, err := o.backend.Describe(callCtx, j.ComputeHandle)
	cancel()
	if err != nil {
		// Timeouts and transient faults are unknown outcomes: assume
		// nothing and ask again next tick. NotFound right after a
		// submission can be read-side lag at the backend, so it gets
		// the same treatment.
		o.log.Warn("monitor: describe",
			zap.String("job_id", j.ID),
			zap.String("handle", j.ComputeHandle),
			zap.Error(err))
		return false, false
	}

	if j.Status == job.StatusCancelling {
		return o.reconcileCancelling(ctx, j, desc), false
	}
	return o.reconcileRunning(ctx, j, desc)
}

// reconcileRunning maps a backend description onto a RUNNING job.
func (o *Orchestrator) reconcileRunning(ctx context.Context, j *job.Job, desc compute.Description) (done bool, resubmitted bool) {
	switch desc.State {
	case compute.StatePending, compute.StateRunning:
		// Still executing: refresh updated_at so operators can tell a
		// live job from a stuck one. A conflict only means someone
		// else wrote first; next tick reloads.
		if err := o.store.Update(ctx, j); err != nil && !isConflict(err) {
			o.log.Warn("monitor: touch job", zap.String("job_id", j.ID), zap.Error(err))
		}
		return false, false

	case compute.StateSucceeded:
		if err := o.advance(ctx, j, job.StatusProcessing, "monitor", nil); err != nil {
			if isConflict(err) {
				// A canceller moved the job first; its path owns
				// the outcome now.
				return false, false
			}
			o.log.Error("monitor: record processing", zap.String("job_id", j.ID), zap.Error(err))
			return false, false
		}
		o.finalize(ctx, j)
		return true, false

	case compute.StateInterrupted:
		if j.Spec.SpotEligible && j.Attempt < o.cfg.MaxAttempts {
			return false, o.resubmit(ctx, j, desc)
		}
		category := job.FailurePreempted
		detail := desc.Detail
		if detail == "" {
			detail = "capacity reclaimed"
		}
		if j.Spec.SpotEligible {
			detail = detail + " (retry ceiling reached)"
		}
		return o.failExecution(ctx, j, category, detail), false

	case compute.StateFailed:
		detail := desc.Detail
		if detail == "" {
			detail = "backend reported failure without detail"
		}
		return o.failExecution(ctx, j, job.FailureExecution, detail), false
	}

	return false, false
}

// reconcileCancelling treats any backend terminal state as confirmation that
// the cancel took effect.
func (o *Orchestrator) reconcileCancelling(ctx context.Context, j *job.Job, desc compute.Description) (done bool) {
	if !desc.State.Terminal() {
		// Terminate was requested but the backend has not wound the
		// work down yet.
		if err := o.store.Update(ctx, j); err != nil && !isConflict(err) {
			o.log.Warn("monitor: touch cancelling job", zap.String("job_id", j.ID), zap.Error(err))
		}
		return false
	}

	o.confirmCancelled(ctx, j, "monitor")
	return true
}

// resubmit replaces an interrupted attempt with a fresh submission, spacing
// attempts exponentially. The job stays RUNNING throughout; only the handle
// and attempt counter change.
func (o *Orchestrator) resubmit(ctx context.Context, j *job.Job, desc compute.Description) (resubmitted bool) {
	delay := o.resubmitDelay(j.Attempt)
	o.log.Info("spot interruption, resubmitting",
		zap.String("job_id", j.ID),
		zap.Int("attempt", j.Attempt),
		zap.Duration("delay", delay),
		zap.String("detail", desc.Detail))

	timer := o.clock.Timer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return false
	case <-timer.C:
	}

	// Reload: a canceller may have acted during the wait.
	fresh, err := o.store.GetByID(ctx, j.ID)
	if err != nil || fresh.Status != job.StatusRunning {
		return false
	}
	fresh.Attempt++

	handle, err := o.submitAttempt(ctx, fresh)
	if err != nil {
		o.failExecution(ctx, fresh, job.FailurePreempted, "resubmission failed: "+err.Error())
		return false
	}

	prevHandle := fresh.ComputeHandle
	fresh.ComputeHandle = handle
	if err := o.store.Update(ctx, fresh); err != nil {
		if isConflict(err) {
			// A cancel won the race after we submitted. Reap the
			// orphaned attempt so it does not burn capacity.
			o.terminateQuietly(ctx, handle)
			return false
		}
		o.log.Error("monitor: record resubmission", zap.String("job_id", fresh.ID), zap.Error(err))
		return false
	}

	o.log.Info("resubmitted after interruption",
		zap.String("job_id", fresh.ID),
		zap.String("old_handle", prevHandle),
		zap.String("handle", handle),
		zap.Int("attempt", fresh.Attempt))
	return true
}

// resubmitDelay returns the exponential spacing before resubmission number
// attempt+1 (15s, 30s, 60s, ... capped).
func (o *Orchestrator) resubmitDelay(attempt int) time.Duration {
	delay := o.cfg.ResubmitBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= o.cfg.ResubmitMax {
			return o.cfg.ResubmitMax
		}
	}
	return delay
}

// failExecution records a terminal FAILED with the backend's detail.
func (o *Orchestrator) failExecution(ctx context.Context, j *job.Job, category job.FailureCategory, detail string) (done bool) {
	now := time.Now().UTC()
	err := o.advance(ctx, j, job.StatusFailed, "monitor", func(j *job.Job) {
		j.FailureReason = &job.FailureReason{Category: category, Detail: detail}
		j.CompletedAt = &now
	})
	if err != nil {
		if isConflict(err) {
			// Likely a cancel; its path decides the terminal state.
			return false
		}
		o.log.Error("monitor: record failure", zap.String("job_id", j.ID), zap.Error(err))
		return false
	}
	return true
}
