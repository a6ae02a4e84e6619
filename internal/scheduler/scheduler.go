// Package scheduler implements the Job Scheduler: an in-memory debouncer
// that coalesces bursts of filesystem events into at-most-one pending job
// per path, with a delete-sticky policy.
package scheduler

import (
	"sync"

	"github.com/google/uuid"

	"github.com/knowdisk/knowdisk/internal/repo"
)

// EventType is the raw filesystem event observed by the watcher.
type EventType string

const (
	EventAdd    EventType = "add"
	EventChange EventType = "change"
	EventUnlink EventType = "unlink"
)

// PendingJob is the coalesced intent for a single path, awaiting flush.
type PendingJob struct {
	JobType repo.JobType
	Reason  string
	DueAtMs int64
}

// Sink enqueues a flushed job. Implemented by the repository (or a test
// double); the scheduler itself never touches durable storage.
type Sink interface {
	EnqueueJob(job repo.Job) error
}

// IDGenerator produces a fresh job ID for each enqueue. Injected so tests
// can assert on deterministic IDs.
type IDGenerator interface {
	NewJobID() string
}

// Scheduler is a pure in-memory debouncer, owned by the orchestrator
// thread. It holds no durable state; a crash loses in-flight debounce
// windows, which is acceptable because the next reconcile re-discovers the
// same work.
type Scheduler struct {
	mu         sync.Mutex
	debounceMs int64
	pending    map[string]PendingJob
	sink       Sink
	ids        IDGenerator
}

// New creates a Scheduler with the given debounce window in milliseconds.
func New(debounceMs int64, sink Sink, ids IDGenerator) *Scheduler {
	return &Scheduler{
		debounceMs: debounceMs,
		pending:    make(map[string]PendingJob),
		sink:       sink,
		ids:        ids,
	}
}

// UUIDGenerator is the production IDGenerator, producing random job IDs
// since jobs are not content-addressed (the same path can legitimately be
// enqueued many times).
type UUIDGenerator struct{}

// NewJobID returns a fresh random UUID string.
func (UUIDGenerator) NewJobID() string { return uuid.NewString() }

// mapEvent translates a raw filesystem event into the job type/reason it
// implies in isolation (before coalescing).
func mapEvent(eventType EventType) (repo.JobType, string) {
	switch eventType {
	case EventAdd:
		return repo.JobTypeIndex, "watcher_add"
	case EventChange:
		return repo.JobTypeIndex, "watcher_change"
	case EventUnlink:
		return repo.JobTypeDelete, "watcher_unlink"
	default:
		return repo.JobTypeIndex, "watcher_unknown"
	}
}

// OnFsEvent records or merges an event for path. Delete is sticky: once a
// pending entry's jobType is delete, no later event can downgrade it. The
// due time is reset to nowMs+debounceMs on every event (trailing debounce).
func (s *Scheduler) OnFsEvent(path string, eventType EventType, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobType, reason := mapEvent(eventType)

	existing, ok := s.pending[path]
	if ok && existing.JobType == repo.JobTypeDelete {
		jobType, reason = repo.JobTypeDelete, existing.Reason
	}

	s.pending[path] = PendingJob{
		JobType: jobType,
		Reason:  reason,
		DueAtMs: nowMs + s.debounceMs,
	}
}

// FlushDue enqueues a job for every pending entry whose due time has passed,
// removes each entry once its job is enqueued, and returns the count
// flushed. On a sink error it stops: entries already enqueued stay removed
// and the rest stay pending.
func (s *Scheduler) FlushDue(nowMs int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flushed := 0
	for path, job := range s.pending {
		if job.DueAtMs > nowMs {
			continue
		}

		if err := s.sink.EnqueueJob(repo.Job{
			JobID:       s.ids.NewJobID(),
			Path:        path,
			JobType:     job.JobType,
			Reason:      job.Reason,
			NextRunAtMs: nowMs,
			CreatedAtMs: nowMs,
			UpdatedAtMs: nowMs,
		}); err != nil {
			return flushed, err
		}

		delete(s.pending, path)
		flushed++
	}
	return flushed, nil
}

// QueueDepth reports the number of paths with a pending, unflushed entry.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
