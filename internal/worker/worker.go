// Package worker implements the Worker Pool: claims due jobs from the
// Metadata Repository and dispatches each to the File-Index Processor,
// with bounded concurrency and attempt-based retry backoff.
package worker

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/knowdisk/knowdisk/internal/knowerr"
	"github.com/knowdisk/knowdisk/internal/processor"
	"github.com/knowdisk/knowdisk/internal/repo"
	"github.com/knowdisk/knowdisk/pkg/capability"
)

// Store is the subset of the Metadata Repository the pool needs.
type Store interface {
	ClaimDueJobs(limit int, nowMs int64) ([]repo.Job, error)
	CompleteJob(jobID string, nowMs int64) error
	FailJob(jobID string, jobErr string, nowMs int64) error
	RetryJob(jobID string, jobErr string, nextRunAtMs int64, nowMs int64) error
	ResetRunningJobsToPending(nowMs int64) (int, error)
}

// ParserResolver resolves a path to a Parser capability, or reports the
// extension as unsupported.
type ParserResolver interface {
	Resolve(path string) (capability.Parser, bool)
}

// FileProcessor is the subset of *processor.Processor the pool dispatches
// index/delete jobs to.
type FileProcessor interface {
	IndexFile(ctx context.Context, path string, parser capability.Parser) (processor.Result, error)
	DeleteFile(ctx context.Context, path string) error
}

// ReconcileHook is invoked for jobType=reconcile. Implementers may fold
// reconciliation into the orchestrator loop instead, in which case this can
// be nil and reconcile jobs are completed as no-ops.
type ReconcileHook func(ctx context.Context, path string) error

// Config controls concurrency and retry behavior.
type Config struct {
	Concurrency int
	MaxAttempts int
	// BackoffMs[i] is the delay before retry i+1. The last entry is reused
	// for any attempt beyond len(BackoffMs).
	BackoffMs []int64
}

// DefaultConfig mirrors common job-queue defaults: modest concurrency,
// a handful of retries with growing backoff.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		MaxAttempts: 5,
		BackoffMs:   []int64{1000, 2000, 5000, 15000, 30000},
	}
}

// Callbacks are optional lifecycle hooks, fired synchronously. OnJobStart
// runs in the job's dispatch goroutine, so it can run concurrently for the
// jobs of one batch; OnJobDone and OnJobError run in RunOnce's goroutine
// as each job is settled.
type Callbacks struct {
	OnJobStart func(job repo.Job)
	OnJobDone  func(job repo.Job)
	OnJobError func(job repo.Job, err error, terminal bool)
}

// Counters summarizes one runOnce invocation.
type Counters struct {
	Claimed int
	Settled int
	Retried int
}

// Pool is the Worker Pool.
type Pool struct {
	store     Store
	resolver  ParserResolver
	fileProc  FileProcessor
	reconcile ReconcileHook
	clock     capability.Clock
	cfg       Config
	callbacks Callbacks

	started bool
}

// New creates a Pool. reconcile may be nil.
func New(store Store, resolver ParserResolver, fileProc FileProcessor, reconcile ReconcileHook, clock capability.Clock, cfg Config, callbacks Callbacks) *Pool {
	return &Pool{
		store:     store,
		resolver:  resolver,
		fileProc:  fileProc,
		reconcile: reconcile,
		clock:     clock,
		cfg:       cfg,
		callbacks: callbacks,
	}
}

// Start reclaims jobs orphaned by a prior crash. Must be called exactly
// once, before the first RunOnce.
func (p *Pool) Start(nowMs int64) (int, error) {
	if p.started {
		return 0, nil
	}
	p.started = true
	return p.store.ResetRunningJobsToPending(nowMs)
}

// RunOnce claims up to Concurrency due jobs and processes them concurrently,
// settling each via complete/fail/retry. One invocation never overlaps with
// another for the same worker; concurrency comes from claiming a batch and
// awaiting it in parallel.
func (p *Pool) RunOnce(ctx context.Context, nowMs int64) (Counters, error) {
	jobs, err := p.store.ClaimDueJobs(p.cfg.Concurrency, nowMs)
	if err != nil {
		return Counters{}, err
	}

	counters := Counters{Claimed: len(jobs)}
	if len(jobs) == 0 {
		return counters, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]error, len(jobs))

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if p.callbacks.OnJobStart != nil {
				p.callbacks.OnJobStart(job)
			}
			results[i] = p.dispatch(gctx, job)
			return nil
		})
	}
	_ = g.Wait() // dispatch never returns an error to the group; failures are per-job

	for i, job := range jobs {
		settleErr := results[i]
		now := p.clock.NowMs()

		if settleErr == nil {
			if err := p.store.CompleteJob(job.JobID, now); err != nil {
				return counters, err
			}
			counters.Settled++
			if p.callbacks.OnJobDone != nil {
				p.callbacks.OnJobDone(job)
			}
			continue
		}

		if job.Attempt >= p.cfg.MaxAttempts || !knowerr.Retryable(settleErr) {
			if err := p.store.FailJob(job.JobID, settleErr.Error(), now); err != nil {
				return counters, err
			}
			counters.Settled++
			if p.callbacks.OnJobError != nil {
				p.callbacks.OnJobError(job, settleErr, true)
			}
			continue
		}

		delta := p.backoffFor(job.Attempt)
		if err := p.store.RetryJob(job.JobID, settleErr.Error(), now+delta, now); err != nil {
			return counters, err
		}
		counters.Retried++
		if p.callbacks.OnJobError != nil {
			p.callbacks.OnJobError(job, settleErr, false)
		}
	}

	return counters, nil
}

// dispatch runs the job's work by jobType and returns its outcome error, if
// any. It never returns an errgroup-fatal error; all failures are reported
// per-job to the caller for individual settlement.
func (p *Pool) dispatch(ctx context.Context, job repo.Job) error {
	switch job.JobType {
	case repo.JobTypeDelete:
		return p.fileProc.DeleteFile(ctx, job.Path)

	case repo.JobTypeIndex:
		parser, ok := p.resolver.Resolve(job.Path)
		if !ok {
			return nil // unsupported extension: completed as a no-op
		}
		_, err := p.fileProc.IndexFile(ctx, job.Path, parser)
		return err

	case repo.JobTypeReconcile:
		if p.reconcile == nil {
			return nil
		}
		return p.reconcile(ctx, job.Path)

	default:
		return knowerr.New(knowerr.KindConfig, "unknown job type: "+string(job.JobType))
	}
}

// backoffFor returns the retry delay for a job about to be retried after
// `attempt` total attempts so far. backoffMs[min(attempt-1, len-1)], or 1s
// if no backoff schedule is configured.
func (p *Pool) backoffFor(attempt int) int64 {
	if len(p.cfg.BackoffMs) == 0 {
		return 1000
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.cfg.BackoffMs) {
		idx = len(p.cfg.BackoffMs) - 1
	}
	return p.cfg.BackoffMs[idx]
}
