package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/atmoslabs/simbatch/pkg/job"
	"github.com/atmoslabs/simbatch/pkg/pricing"
	"github.com/atmoslabs/simbatch/pkg/resultsink"
)

// finalize closes a PROCESSING_RESULTS job exactly once: confirm output
// artifacts exist, compute actual cost from wall-clock runtime, and record
// SUCCEEDED (result location, cost, completion time) in a single
// conditional write. Missing or incomplete output yields FAILED with a
// results-incomplete reason, distinguishing infrastructure failure from
// compute failure.
func (o *Orchestrator) finalize(ctx context.Context, j *job.Job) {
	loc, err := o.locateResults(ctx, j.ID)
	if err != nil {
		if errors.Is(err, resultsink.ErrNoResults) {
			o.failResults(ctx, j, "no output artifacts found")
			return
		}
		// The sink stayed unreachable through the retry budget. This
		// is an orchestrator-side fault, not a failed simulation.
		o.failInternal(ctx, j, "result sink unreachable: "+err.Error())
		return
	}

	if err := resultsink.ValidateComplete(loc, nil); err != nil {
		o.failResults(ctx, j, err.Error())
		return
	}

	now := time.Now().UTC()
	elapsed := time.Duration(0)
	if j.StartedAt != nil {
		elapsed = now.Sub(*j.StartedAt)
	}
	costActual, err := pricing.Actual(o.prices, j.Spec, elapsed)
	if err != nil {
		o.failInternal(ctx, j, "cost accounting: "+err.Error())
		return
	}

	err = o.advance(ctx, j, job.StatusSucceeded, "finalizer", func(j *job.Job) {
		j.ResultLocation = loc.URI
		j.CostActualUSD = costActual
		j.CompletedAt = &now
	})
	if err != nil && !isConflict(err) {
		o.log.Error("finalize: record success", zap.String("job_id", j.ID), zap.Error(err))
		return
	}

	o.log.Info("job finalized",
		zap.String("job_id", j.ID),
		zap.String("result_location", loc.URI),
		zap.Float64("cost_actual_usd", costActual),
		zap.Duration("elapsed", elapsed))
}

// locateResults queries the sink with bounded retry on transient faults.
func (o *Orchestrator) locateResults(ctx context.Context, jobID string) (resultsink.Location, error) {
	var loc resultsink.Location
	op := func() error {
		callCtx, cancel := o.adapterCtx(ctx)
		defer cancel()

		l, err := o.sink.Locate(callCtx, jobID)
		if err != nil {
			if errors.Is(err, resultsink.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
				return err // retry
			}
			return backoff.Permanent(err)
		}
		loc = l
		return nil
	}

	if err := backoff.Retry(op, o.adapterBackoff(ctx)); err != nil {
		return resultsink.Location{}, err
	}
	return loc, nil
}

func (o *Orchestrator) failResults(ctx context.Context, j *job.Job, detail string) {
	now := time.Now().UTC()
	err := o.advance(ctx, j, job.StatusFailed, "finalizer", func(j *job.Job) {
		j.FailureReason = &job.FailureReason{
			Category: job.FailureResults,
			Detail:   "results incomplete: " + detail,
		}
		j.CompletedAt = &now
	})
	if err != nil && !isConflict(err) {
		o.log.Error("finalize: record results failure", zap.String("job_id", j.ID), zap.Error(err))
	}
}

func (o *Orchestrator) failInternal(ctx context.Context, j *job.Job, detail string) {
	now := time.Now().UTC()
	err := o.advance(ctx, j, job.StatusFailed, "finalizer", func(j *job.Job) {
		j.FailureReason = &job.FailureReason{Category: job.FailureInternal, Detail: detail}
		j.CompletedAt = &now
	})
	if err != nil && !isConflict(err) {
		o.log.Error("finalize: record internal failure", zap.String("job_id", j.ID), zap.Error(err))
	}
}
