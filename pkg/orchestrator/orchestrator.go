// Package orchestrator implements the job lifecycle core: validation,
// dispatch, monitoring, cancellation, and finalization of simulation jobs.
//
// Any number of orchestrator instances may run against the same job store.
// There is no lock anywhere in the package: every status transition is a
// version-conditioned store write, and a lost race is always treated as
// "another actor already advanced this job" and dropped.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/atmoslabs/simbatch/pkg/audit"
	"github.com/atmoslabs/simbatch/pkg/catalog"
	"github.com/atmoslabs/simbatch/pkg/compute"
	"github.com/atmoslabs/simbatch/pkg/job"
	"github.com/atmoslabs/simbatch/pkg/jobstore"
	"github.com/atmoslabs/simbatch/pkg/pricing"
	"github.com/atmoslabs/simbatch/pkg/resultsink"
)

// Sentinel errors surfaced to the API layer.
var (
	// ErrInvalidSpec wraps a caller-fixable validation failure.
	ErrInvalidSpec = errors.New("invalid job spec")

	// ErrQuotaExceeded indicates the owner's active-job quota is exhausted.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidState indicates an operation not permitted in the job's
	// current status (e.g. cancelling a terminal job).
	ErrInvalidState = errors.New("invalid job state")
)

// Config bounds the orchestrator's polling and retry behavior. The retry
// ceiling and backoff curve were operationally tuned; treat these as the
// documented defaults rather than hard constants.
type Config struct {
	// MaxAttempts is the submission ceiling per job, counting the first
	// dispatch. Spot interruptions resubmit until this is exhausted.
	MaxAttempts int

	// PollInitial is the monitor interval for a newly dispatched job.
	PollInitial time.Duration

	// PollMax caps the widened monitor interval.
	PollMax time.Duration

	// PollWidenAfter is how long a job runs before its interval starts
	// widening by PollFactor per tick.
	PollWidenAfter time.Duration

	// PollFactor is the per-tick interval multiplier once widening starts.
	PollFactor float64

	// ResubmitBase and ResubmitMax bound the exponential spacing between
	// an interruption and the resubmission it triggers.
	ResubmitBase time.Duration
	ResubmitMax  time.Duration

	// AdapterTimeout bounds every individual backend/sink call.
	AdapterTimeout time.Duration

	// AdapterRetries is the per-tick try ceiling for transient adapter
	// errors before the error is deferred to the next tick.
	AdapterRetries int

	// DescribeRate caps backend Describe calls per second across all
	// monitored jobs. Zero disables limiting.
	DescribeRate float64
}

// DefaultConfig returns the documented operational bounds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		PollInitial:    15 * time.Second,
		PollMax:        2 * time.Minute,
		PollWidenAfter: 5 * time.Minute,
		PollFactor:     1.5,
		ResubmitBase:   15 * time.Second,
		ResubmitMax:    2 * time.Minute,
		AdapterTimeout: 30 * time.Second,
		AdapterRetries: 4,
		DescribeRate:   10,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.PollInitial <= 0 {
		c.PollInitial = d.PollInitial
	}
	if c.PollMax <= 0 {
		c.PollMax = d.PollMax
	}
	if c.PollWidenAfter <= 0 {
		c.PollWidenAfter = d.PollWidenAfter
	}
	if c.PollFactor < 1 {
		c.PollFactor = d.PollFactor
	}
	if c.ResubmitBase <= 0 {
		c.ResubmitBase = d.ResubmitBase
	}
	if c.ResubmitMax <= 0 {
		c.ResubmitMax = d.ResubmitMax
	}
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = d.AdapterTimeout
	}
	if c.AdapterRetries <= 0 {
		c.AdapterRetries = d.AdapterRetries
	}
}

// Options carries optional collaborators for New.
type Options struct {
	// Quota overrides the default per-owner quota.
	Quota *catalog.Quota

	// Prices overrides the default price table.
	Prices *pricing.Table

	// Audit receives transition records. Nil discards them.
	Audit *audit.Log

	// Clock substitutes timing for tests. Nil uses the wall clock.
	Clock clock.Clock

	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Orchestrator wires the store and adapters into the lifecycle actors.
type Orchestrator struct {
	store   *jobstore.Store
	backend compute.Backend
	sink    resultsink.Sink

	cfg    Config
	quota  catalog.Quota
	prices pricing.Table

	log     *zap.Logger
	audit   *audit.Log
	clock   clock.Clock
	limiter *rate.Limiter

	// monitors tracks jobs with a polling goroutine so a job never gets
	// two loops from one process. Cross-process duplication is harmless:
	// every transition is version-conditioned.
	mu       sync.Mutex
	monitors map[string]struct{}

	wg      sync.WaitGroup
	runCtx  context.Context
	runStop context.CancelFunc
}

// New creates an orchestrator. Call Resume to restart monitors for jobs that
// were active when a previous process stopped, and Shutdown to drain.
func New(store *jobstore.Store, backend compute.Backend, sink resultsink.Sink, cfg Config, opts Options) *Orchestrator {
	cfg.applyDefaults()

	quota := catalog.DefaultQuota()
	if opts.Quota != nil {
		quota = *opts.Quota
	}
	prices := pricing.Default()
	if opts.Prices != nil {
		prices = *opts.Prices
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.DescribeRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.DescribeRate), 1)
	}

	runCtx, runStop := context.WithCancel(context.Background())

	return &Orchestrator{
		store:    store,
		backend:  backend,
		sink:     sink,
		cfg:      cfg,
		quota:    quota,
		prices:   prices,
		log:      logger,
		audit:    opts.Audit,
		clock:    clk,
		limiter:  limiter,
		monitors: make(map[string]struct{}),
		runCtx:   runCtx,
		runStop:  runStop,
	}
}

// Submit validates a spec, records the job, and dispatches it. Validation
// failures are synchronous: the job is recorded as VALIDATION_FAILED for
// audit and the typed reason is returned. On success the returned job is
// DISPATCHING (or later, if dispatch already finished).
func (o *Orchestrator) Submit(ctx context.Context, ownerID string, spec job.Spec) (*job.Job, error) {
	j := &job.Job{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Spec:    spec,
		Status:  job.StatusSubmitted,
		Attempt: 1,
	}
	if err := o.store.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := o.validate(ctx, j); err != nil {
		return j, err
	}

	// Dispatch runs in the background: backend submission can take a
	// while and the API contract only promises an accepted, validated job.
	o.spawn(func(ctx context.Context) { o.dispatch(ctx, j) })

	return j, nil
}

// Get returns the owner's job.
func (o *Orchestrator) Get(ctx context.Context, ownerID, jobID string) (*job.Job, error) {
	return o.store.Get(ctx, ownerID, jobID)
}

// List returns one page of the owner's jobs.
func (o *Orchestrator) List(ctx context.Context, ownerID string, opts jobstore.ListOptions) ([]job.Job, string, error) {
	return o.store.List(ctx, ownerID, opts)
}

// Resume re-drives every non-terminal job after a restart. The stored record
// carries everything a fresh actor needs: RUNNING and CANCELLING jobs get
// their monitor back, DISPATCHING jobs re-enter dispatch (reusing a persisted
// handle rather than submitting twice), PROCESSING_RESULTS jobs re-enter
// finalization, and jobs caught before or during validation are validated
// again from scratch.
func (o *Orchestrator) Resume(ctx context.Context) error {
	active, err := o.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("resume jobs: %w", err)
	}
	for i := range active {
		j := &active[i]
		o.log.Info("resuming job",
			zap.String("job_id", j.ID),
			zap.String("status", string(j.Status)))

		switch j.Status {
		case job.StatusRunning, job.StatusCancelling:
			o.startMonitor(j)
		case job.StatusDispatching:
			o.spawn(func(ctx context.Context) { o.dispatch(ctx, j) })
		case job.StatusProcessing:
			o.spawn(func(ctx context.Context) { o.finalize(ctx, j) })
		case job.StatusSubmitted, job.StatusValidating:
			o.spawn(func(ctx context.Context) { o.revalidate(ctx, j) })
		}
	}
	return nil
}

// revalidate picks up a job that stopped before validation finished.
func (o *Orchestrator) revalidate(ctx context.Context, j *job.Job) {
	if err := o.validate(ctx, j); err != nil {
		o.log.Warn("resume: validation failed",
			zap.String("job_id", j.ID), zap.Error(err))
		return
	}
	o.dispatch(ctx, j)
}

// spawn runs fn on the orchestrator's run context, tracked for Shutdown.
func (o *Orchestrator) spawn(fn func(context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(o.runCtx)
	}()
}

// Shutdown stops all monitor loops and waits for in-flight work to settle.
func (o *Orchestrator) Shutdown() {
	o.runStop()
	o.wg.Wait()
}

// advance performs one status transition as a conditional write. It refuses
// illegal edges outright and returns jobstore.ErrVersionConflict when a
// concurrent actor won the race; callers treat that conflict as a no-op.
func (o *Orchestrator) advance(ctx context.Context, j *job.Job, next job.Status, actor string, mutate func(*job.Job)) error {
	from := j.Status
	if from != next && !job.CanTransition(from, next) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", from, next, j.ID)
	}

	j.Status = next
	if mutate != nil {
		mutate(j)
	}

	if err := o.store.Update(ctx, j); err != nil {
		return err
	}

	if from != next {
		detail := ""
		if j.FailureReason != nil {
			detail = j.FailureReason.String()
		}
		if err := o.audit.Transition(j.ID, audit.TransitionRecord{
			From:    from,
			To:      next,
			Attempt: j.Attempt,
			Actor:   actor,
			Detail:  detail,
		}); err != nil {
			o.log.Warn("audit write failed", zap.String("job_id", j.ID), zap.Error(err))
		}
		o.log.Info("job transition",
			zap.String("job_id", j.ID),
			zap.String("from", string(from)),
			zap.String("to", string(next)),
			zap.String("actor", actor))
	}

	return nil
}

// adapterCtx derives the bounded-timeout context used for every backend and
// sink call.
func (o *Orchestrator) adapterCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.cfg.AdapterTimeout)
}
