// Package orchestrator implements the Indexing Orchestrator: the
// user-facing verbs (full rebuild, incremental update, scheduled reconcile,
// deferred source deletion) and a copy-on-read status snapshot fanned out
// to subscribers.
package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/knowdisk/knowdisk/internal/fswalk"
	"github.com/knowdisk/knowdisk/internal/repo"
	"github.com/knowdisk/knowdisk/internal/scheduler"
	"github.com/knowdisk/knowdisk/internal/worker"
	"github.com/knowdisk/knowdisk/pkg/capability"
)

// RunPhase is the lifecycle phase of the current or most recent run.
type RunPhase string

const (
	RunPhaseIdle    RunPhase = "idle"
	RunPhaseRunning RunPhase = "running"
)

// SchedulerPhase describes the debouncer's activity during a run.
type SchedulerPhase string

const (
	SchedulerPhaseIdle        SchedulerPhase = "idle"
	SchedulerPhaseEnqueueing  SchedulerPhase = "enqueueing"
	SchedulerPhaseDraining    SchedulerPhase = "draining"
)

// WorkerPhase describes the worker pool's activity during a run.
type WorkerPhase string

const (
	WorkerPhaseIdle     WorkerPhase = "idle"
	WorkerPhaseIndexing WorkerPhase = "indexing"
	WorkerPhaseDeleting WorkerPhase = "deleting"
	WorkerPhaseFailed   WorkerPhase = "failed"
)

// RunStatus is the run-level portion of a Status snapshot.
type RunStatus struct {
	Phase           RunPhase
	Reason          string
	StartedAtMs     *int64
	FinishedAtMs    *int64
	LastReconcileAt *int64
	IndexedFiles    int
	Errors          []string
}

// SchedulerStatus is the scheduler portion of a Status snapshot.
type SchedulerStatus struct {
	Phase      SchedulerPhase
	QueueDepth int
}

// WorkerStatus is the worker portion of a Status snapshot.
type WorkerStatus struct {
	Phase          WorkerPhase
	RunningWorkers int
	CurrentFiles   []string
	LastError      string
}

// Status is an immutable snapshot of indexing status. Every field is a
// value or a freshly-copied slice/pointer, so callers may retain it freely.
type Status struct {
	Run       RunStatus
	Scheduler SchedulerStatus
	Worker    WorkerStatus
}

func (s Status) clone() Status {
	out := s
	out.Run.Errors = append([]string(nil), s.Run.Errors...)
	out.Worker.CurrentFiles = append([]string(nil), s.Worker.CurrentFiles...)
	if s.Run.StartedAtMs != nil {
		v := *s.Run.StartedAtMs
		out.Run.StartedAtMs = &v
	}
	if s.Run.FinishedAtMs != nil {
		v := *s.Run.FinishedAtMs
		out.Run.FinishedAtMs = &v
	}
	if s.Run.LastReconcileAt != nil {
		v := *s.Run.LastReconcileAt
		out.Run.LastReconcileAt = &v
	}
	return out
}

// Store is the subset of the Metadata Repository the orchestrator needs.
type Store interface {
	ListFiles() ([]repo.File, error)
	EnqueueJob(j repo.Job) error
	AddSourceTombstone(path string, deletedTimeMs int64) error
	RemoveSourceTombstone(path string) error
	ListSourceTombstones() ([]repo.SourceTombstone, error)
	ClearAllIndexData() error
}

// Scheduler is the subset of the Job Scheduler the orchestrator drives.
type Scheduler interface {
	OnFsEvent(path string, eventType scheduler.EventType, nowMs int64)
	FlushDue(nowMs int64) (int, error)
	QueueDepth() int
}

// WorkerPool is the subset of the Worker Pool the orchestrator drives.
type WorkerPool interface {
	RunOnce(ctx context.Context, nowMs int64) (worker.Counters, error)
}

// RunResult is the return value of a completed run.
type RunResult struct {
	IndexedFiles int
	Errors       []string
	Repaired     int
}

// Orchestrator owns the indexing lifecycle verbs and the status snapshot.
type Orchestrator struct {
	store      Store
	sched      Scheduler
	pool       WorkerPool
	clock      capability.Clock
	sourceRoot string
	indexable  fswalk.Indexable
	debounceMs int64

	mu          sync.Mutex
	status      Status
	subscribers map[int]func(Status)
	nextSubID   int
}

// New creates an Orchestrator rooted at sourceRoot. indexable decides
// whether a discovered path is eligible for indexing (typically backed by
// a parser resolver's extension table).
func New(store Store, sched Scheduler, pool WorkerPool, clock capability.Clock, sourceRoot string, indexable fswalk.Indexable, debounceMs int64) *Orchestrator {
	return &Orchestrator{
		store:       store,
		sched:       sched,
		pool:        pool,
		clock:       clock,
		sourceRoot:  sourceRoot,
		indexable:   indexable,
		debounceMs:  debounceMs,
		subscribers: make(map[int]func(Status)),
	}
}

// Subscribe registers fn to receive a copy of the status snapshot after
// every phase transition and job settlement. Subscribers must not call back
// into Orchestrator verbs synchronously from within fn — doing so would
// re-enter the status lock. Returns an unsubscribe function.
func (o *Orchestrator) Subscribe(fn func(Status)) func() {
	o.mu.Lock()
	id := o.nextSubID
	o.nextSubID++
	o.subscribers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subscribers, id)
		o.mu.Unlock()
	}
}

// Status returns a copy-on-read snapshot of the current status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status.clone()
}

// notifyLocked must be called with o.mu held.
func (o *Orchestrator) notifyLocked() {
	snapshot := o.status.clone()
	for _, fn := range o.subscribers {
		fn(snapshot)
	}
}

func (o *Orchestrator) beginRun(reason string) {
	o.mu.Lock()
	now := o.clock.NowMs()
	o.status.Run = RunStatus{Phase: RunPhaseRunning, Reason: reason, StartedAtMs: &now}
	o.notifyLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) finishRun() RunResult {
	o.mu.Lock()
	now := o.clock.NowMs()
	o.status.Run.Phase = RunPhaseIdle
	o.status.Run.FinishedAtMs = &now
	o.status.Scheduler.Phase = SchedulerPhaseIdle
	o.status.Worker.Phase = WorkerPhaseIdle
	o.status.Worker.CurrentFiles = nil
	result := RunResult{
		IndexedFiles: o.status.Run.IndexedFiles,
		Errors:       append([]string(nil), o.status.Run.Errors...),
	}
	o.notifyLocked()
	o.mu.Unlock()
	return result
}

func (o *Orchestrator) recordError(err error) {
	o.mu.Lock()
	o.status.Run.Errors = append(o.status.Run.Errors, err.Error())
	o.status.Worker.LastError = err.Error()
	o.status.Worker.Phase = WorkerPhaseFailed
	o.notifyLocked()
	o.mu.Unlock()
}

// enqueueReconcileJobs walks sourceRoot, comparing each discovered file
// against the repository's known files, and enqueues index/delete jobs for
// everything out of sync. Returns the number of jobs enqueued.
func (o *Orchestrator) enqueueReconcileJobs(reason string) (int, error) {
	o.mu.Lock()
	o.status.Scheduler.Phase = SchedulerPhaseEnqueueing
	o.notifyLocked()
	o.mu.Unlock()

	known, err := o.store.ListFiles()
	if err != nil {
		return 0, err
	}
	knownByPath := make(map[string]repo.File, len(known))
	seen := make(map[string]bool, len(known))
	for _, f := range known {
		knownByPath[f.Path] = f
	}

	enqueued := 0
	now := o.clock.NowMs()

	walkErr := fswalk.Walk(o.sourceRoot, o.indexable, func(path string, size, mtimeMs int64) error {
		seen[path] = true
		existing, ok := knownByPath[path]
		if ok && existing.Size == size && existing.MtimeMs == mtimeMs &&
			existing.Status != repo.FileStatusDeleted && existing.Status != repo.FileStatusIndexing {
			return nil
		}
		if err := o.store.EnqueueJob(repo.Job{
			JobID:       uuid.NewString(),
			Path:        path,
			JobType:     repo.JobTypeIndex,
			Reason:      reason,
			NextRunAtMs: now,
			CreatedAtMs: now,
			UpdatedAtMs: now,
		}); err != nil {
			return err
		}
		enqueued++
		return nil
	})
	if walkErr != nil {
		return enqueued, walkErr
	}

	for path, f := range knownByPath {
		if f.Status == repo.FileStatusDeleted || seen[path] {
			continue
		}
		if err := o.store.EnqueueJob(repo.Job{
			JobID:       uuid.NewString(),
			Path:        path,
			JobType:     repo.JobTypeDelete,
			Reason:      reason,
			NextRunAtMs: now,
			CreatedAtMs: now,
			UpdatedAtMs: now,
		}); err != nil {
			return enqueued, err
		}
		enqueued++
	}

	return enqueued, nil
}

// drainWorkerQueue loops scheduler.FlushDue + worker.RunOnce until both
// return zero, so every enqueued and coalesced job settles before the run
// is considered finished.
func (o *Orchestrator) drainWorkerQueue(ctx context.Context) error {
	o.mu.Lock()
	o.status.Scheduler.Phase = SchedulerPhaseDraining
	o.status.Worker.Phase = WorkerPhaseIndexing
	o.notifyLocked()
	o.mu.Unlock()

	for {
		now := o.clock.NowMs()
		flushed, err := o.sched.FlushDue(now)
		if err != nil {
			return err
		}

		counters, err := o.pool.RunOnce(ctx, now)
		if err != nil {
			return err
		}

		o.mu.Lock()
		o.status.Run.IndexedFiles += counters.Settled
		o.status.Scheduler.QueueDepth = o.sched.QueueDepth()
		o.notifyLocked()
		o.mu.Unlock()

		if flushed == 0 && counters.Claimed == 0 && counters.Retried == 0 {
			return nil
		}
	}
}

// RunFullRebuild walks every indexable file under sourceRoot, enqueues a
// job for everything out of sync with the repository, and drains the
// resulting work to completion.
func (o *Orchestrator) RunFullRebuild(ctx context.Context, reason string) (RunResult, error) {
	o.beginRun(reason)

	enqueued, err := o.enqueueReconcileJobs(reason)
	if err != nil {
		o.recordError(err)
		return o.finishRun(), err
	}

	if err := o.drainWorkerQueue(ctx); err != nil {
		o.recordError(err)
		return o.finishRun(), err
	}

	result := o.finishRun()
	result.Repaired = enqueued
	return result, nil
}

// RunIncremental feeds changes into the scheduler with a due time forced
// into the past, flushes immediately, and drains.
func (o *Orchestrator) RunIncremental(ctx context.Context, changes []FsChange, reason string) (RunResult, error) {
	o.beginRun(reason)

	now := o.clock.NowMs()
	eventAt := now - o.debounceMs - 1
	for _, c := range changes {
		o.sched.OnFsEvent(c.Path, c.EventType, eventAt)
	}

	if err := o.drainWorkerQueue(ctx); err != nil {
		o.recordError(err)
		return o.finishRun(), err
	}

	return o.finishRun(), nil
}

// FsChange is one filesystem change fed to RunIncremental.
type FsChange struct {
	Path      string
	EventType scheduler.EventType
}

// RunScheduledReconcile re-walks the source tree looking for drift,
// identical to enqueueReconcileJobs("scheduled_reconcile") followed by a
// drain, and records the reconcile timestamp.
func (o *Orchestrator) RunScheduledReconcile(ctx context.Context) (RunResult, error) {
	const reason = "scheduled_reconcile"
	o.beginRun(reason)

	if _, err := o.enqueueReconcileJobs(reason); err != nil {
		o.recordError(err)
		return o.finishRun(), err
	}
	if err := o.drainWorkerQueue(ctx); err != nil {
		o.recordError(err)
		return o.finishRun(), err
	}

	o.mu.Lock()
	now := o.clock.NowMs()
	o.status.Run.LastReconcileAt = &now
	o.mu.Unlock()

	return o.finishRun(), nil
}

// DeferSourceDeletion records a tombstone for path, to be honoured by
// PurgeDeferredSourceDeletions at next startup even across a crash.
func (o *Orchestrator) DeferSourceDeletion(path string) error {
	return o.store.AddSourceTombstone(path, o.clock.NowMs())
}

// CancelDeferredSourceDeletion removes a previously recorded tombstone.
func (o *Orchestrator) CancelDeferredSourceDeletion(path string) error {
	return o.store.RemoveSourceTombstone(path)
}

// PurgeDeferredSourceDeletions enqueues delete jobs for every known file
// under each tombstoned source path (the path itself or a descendant),
// drains, then clears the tombstones. Intended to run once at startup.
func (o *Orchestrator) PurgeDeferredSourceDeletions(ctx context.Context) (RunResult, error) {
	const reason = "deferred_source_deletion"
	tombstones, err := o.store.ListSourceTombstones()
	if err != nil {
		return RunResult{}, err
	}
	if len(tombstones) == 0 {
		return RunResult{}, nil
	}

	o.beginRun(reason)

	known, err := o.store.ListFiles()
	if err != nil {
		o.recordError(err)
		return o.finishRun(), err
	}

	now := o.clock.NowMs()
	for _, ts := range tombstones {
		for _, f := range known {
			if !underSourcePath(f.Path, ts.Path) {
				continue
			}
			if err := o.store.EnqueueJob(repo.Job{
				JobID:       uuid.NewString(),
				Path:        f.Path,
				JobType:     repo.JobTypeDelete,
				Reason:      reason,
				NextRunAtMs: now,
				CreatedAtMs: now,
				UpdatedAtMs: now,
			}); err != nil {
				o.recordError(err)
				return o.finishRun(), err
			}
		}
	}

	if err := o.drainWorkerQueue(ctx); err != nil {
		o.recordError(err)
		return o.finishRun(), err
	}

	for _, ts := range tombstones {
		if err := o.store.RemoveSourceTombstone(ts.Path); err != nil {
			o.recordError(err)
			return o.finishRun(), err
		}
	}

	return o.finishRun(), nil
}

// ClearAllIndexData truncates the repository's index-visible tables. It
// does not touch the VectorStore; the caller is responsible for clearing
// or rebuilding it separately (e.g. via a subsequent RunFullRebuild after
// VectorStore.Destroy).
func (o *Orchestrator) ClearAllIndexData() error {
	return o.store.ClearAllIndexData()
}

// underSourcePath reports whether child is path itself or a descendant of
// it, per the "child == parent || child startsWith parent + /" rule.
func underSourcePath(child, parent string) bool {
	return child == parent || strings.HasPrefix(child, parent+"/")
}
