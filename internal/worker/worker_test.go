package worker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowdisk/knowdisk/internal/knowerr"
	"github.com/knowdisk/knowdisk/internal/processor"
	"github.com/knowdisk/knowdisk/internal/repo"
	"github.com/knowdisk/knowdisk/pkg/capability"
)

type fakeStore struct {
	mu         sync.Mutex
	jobs       map[string]*repo.Job
	order      []string
	resetCalls int
}

func newFakeStore(jobs ...repo.Job) *fakeStore {
	s := &fakeStore{jobs: make(map[string]*repo.Job)}
	for _, j := range jobs {
		jCopy := j
		s.jobs[j.JobID] = &jCopy
		s.order = append(s.order, j.JobID)
	}
	return s
}

func (s *fakeStore) ClaimDueJobs(limit int, nowMs int64) ([]repo.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []repo.Job
	for _, id := range s.order {
		if len(claimed) >= limit {
			break
		}
		j := s.jobs[id]
		if j.Status == repo.JobStatusPending && j.NextRunAtMs <= nowMs {
			j.Status = repo.JobStatusRunning
			j.Attempt++
			claimed = append(claimed, *j)
		}
	}
	return claimed, nil
}

func (s *fakeStore) CompleteJob(jobID string, nowMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID].Status = repo.JobStatusDone
	return nil
}

func (s *fakeStore) FailJob(jobID string, jobErr string, nowMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID].Status = repo.JobStatusFailed
	s.jobs[jobID].Error = &jobErr
	return nil
}

func (s *fakeStore) RetryJob(jobID string, jobErr string, nextRunAtMs int64, nowMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID].Status = repo.JobStatusPending
	s.jobs[jobID].NextRunAtMs = nextRunAtMs
	s.jobs[jobID].Error = &jobErr
	return nil
}

func (s *fakeStore) ResetRunningJobsToPending(nowMs int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCalls++
	n := 0
	for _, j := range s.jobs {
		if j.Status == repo.JobStatusRunning {
			j.Status = repo.JobStatusPending
			n++
		}
	}
	return n, nil
}

type fakeResolver struct {
	unsupported map[string]bool
}

func (r *fakeResolver) Resolve(path string) (capability.Parser, bool) {
	if r.unsupported[path] {
		return nil, false
	}
	return nil, true // never actually parses; FileProcessor is faked below
}

type fakeFileProcessor struct {
	mu           sync.Mutex
	indexCalls   []string
	deleteCalls  []string
	indexErr     error
	deleteErr    error
}

func (f *fakeFileProcessor) IndexFile(ctx context.Context, path string, parser capability.Parser) (processor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexCalls = append(f.indexCalls, path)
	return processor.Result{}, f.indexErr
}

func (f *fakeFileProcessor) DeleteFile(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, path)
	return f.deleteErr
}

func TestStartResetsRunningJobsExactlyOnce(t *testing.T) {
	store := newFakeStore()
	p := New(store, &fakeResolver{}, &fakeFileProcessor{}, nil, capability.NewFakeClock(0), DefaultConfig(), Callbacks{})

	_, err := p.Start(0)
	require.NoError(t, err)
	_, err = p.Start(0)
	require.NoError(t, err)
	assert.Equal(t, 1, store.resetCalls, "reset must run exactly once even if Start is called twice")
}

func TestRunOnceDispatchesIndexAndDelete(t *testing.T) {
	store := newFakeStore(
		repo.Job{JobID: "j1", Path: "/a.md", JobType: repo.JobTypeIndex, Status: repo.JobStatusPending},
		repo.Job{JobID: "j2", Path: "/b.md", JobType: repo.JobTypeDelete, Status: repo.JobStatusPending},
	)
	fp := &fakeFileProcessor{}
	p := New(store, &fakeResolver{}, fp, nil, capability.NewFakeClock(0), DefaultConfig(), Callbacks{})

	counters, err := p.RunOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, counters.Claimed)
	assert.Equal(t, 2, counters.Settled)
	assert.Equal(t, 0, counters.Retried)

	assert.Equal(t, []string{"/a.md"}, fp.indexCalls)
	assert.Equal(t, []string{"/b.md"}, fp.deleteCalls)
	assert.Equal(t, repo.JobStatusDone, store.jobs["j1"].Status)
	assert.Equal(t, repo.JobStatusDone, store.jobs["j2"].Status)
}

func TestRunOnceUnsupportedExtensionCompletesAsNoop(t *testing.T) {
	store := newFakeStore(repo.Job{JobID: "j1", Path: "/a.bin", JobType: repo.JobTypeIndex, Status: repo.JobStatusPending})
	fp := &fakeFileProcessor{}
	resolver := &fakeResolver{unsupported: map[string]bool{"/a.bin": true}}
	p := New(store, resolver, fp, nil, capability.NewFakeClock(0), DefaultConfig(), Callbacks{})

	counters, err := p.RunOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, counters.Settled)
	assert.Empty(t, fp.indexCalls)
	assert.Equal(t, repo.JobStatusDone, store.jobs["j1"].Status)
}

func TestRunOnceRetriesTransientErrorWithBackoff(t *testing.T) {
	store := newFakeStore(repo.Job{JobID: "j1", Path: "/a.md", JobType: repo.JobTypeIndex, Status: repo.JobStatusPending, Attempt: 0})
	fp := &fakeFileProcessor{indexErr: knowerr.New(knowerr.KindEmbed, "embedder unavailable")}
	cfg := Config{Concurrency: 4, MaxAttempts: 5, BackoffMs: []int64{1000, 2000}}
	p := New(store, &fakeResolver{}, fp, nil, capability.NewFakeClock(100), cfg, Callbacks{})

	counters, err := p.RunOnce(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, counters.Retried)
	assert.Equal(t, repo.JobStatusPending, store.jobs["j1"].Status)
	assert.Equal(t, int64(1100), store.jobs["j1"].NextRunAtMs, "attempt 1 uses backoffMs[0]")
}

func TestRunOnceFailsJobAtMaxAttempts(t *testing.T) {
	store := newFakeStore(repo.Job{JobID: "j1", Path: "/a.md", JobType: repo.JobTypeIndex, Status: repo.JobStatusPending})
	store.jobs["j1"].Attempt = 4 // claim bumps to 5 == MaxAttempts
	fp := &fakeFileProcessor{indexErr: knowerr.New(knowerr.KindEmbed, "still broken")}
	cfg := Config{Concurrency: 4, MaxAttempts: 5, BackoffMs: []int64{1000}}
	p := New(store, &fakeResolver{}, fp, nil, capability.NewFakeClock(0), cfg, Callbacks{})

	counters, err := p.RunOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, counters.Settled)
	assert.Equal(t, 0, counters.Retried)
	assert.Equal(t, repo.JobStatusFailed, store.jobs["j1"].Status)
}

func TestRunOnceFailsNonRetryableErrorImmediately(t *testing.T) {
	store := newFakeStore(repo.Job{JobID: "j1", Path: "/a.md", JobType: repo.JobTypeIndex, Status: repo.JobStatusPending})
	fp := &fakeFileProcessor{indexErr: knowerr.New(knowerr.KindConfig, "bad config")}
	p := New(store, &fakeResolver{}, fp, nil, capability.NewFakeClock(0), DefaultConfig(), Callbacks{})

	counters, err := p.RunOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, counters.Settled)
	assert.Equal(t, repo.JobStatusFailed, store.jobs["j1"].Status)
}

func TestRunOnceReconcileNoHookIsNoop(t *testing.T) {
	store := newFakeStore(repo.Job{JobID: "j1", Path: "/a.md", JobType: repo.JobTypeReconcile, Status: repo.JobStatusPending})
	p := New(store, &fakeResolver{}, &fakeFileProcessor{}, nil, capability.NewFakeClock(0), DefaultConfig(), Callbacks{})

	counters, err := p.RunOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, counters.Settled)
	assert.Equal(t, repo.JobStatusDone, store.jobs["j1"].Status)
}

func TestRunOnceReconcileHookInvoked(t *testing.T) {
	store := newFakeStore(repo.Job{JobID: "j1", Path: "/a.md", JobType: repo.JobTypeReconcile, Status: repo.JobStatusPending})
	var invoked string
	hook := func(ctx context.Context, path string) error {
		invoked = path
		return nil
	}
	p := New(store, &fakeResolver{}, &fakeFileProcessor{}, hook, capability.NewFakeClock(0), DefaultConfig(), Callbacks{})

	_, err := p.RunOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "/a.md", invoked)
}

func TestRunOnceNoDueJobsReturnsZeroCounters(t *testing.T) {
	store := newFakeStore()
	p := New(store, &fakeResolver{}, &fakeFileProcessor{}, nil, capability.NewFakeClock(0), DefaultConfig(), Callbacks{})

	counters, err := p.RunOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, Counters{}, counters)
}

func TestRunOnceCallbacksFire(t *testing.T) {
	store := newFakeStore(
		repo.Job{JobID: "j1", Path: "/ok.md", JobType: repo.JobTypeIndex, Status: repo.JobStatusPending},
	)
	var started, done []string
	cb := Callbacks{
		OnJobStart: func(job repo.Job) { started = append(started, job.JobID) },
		OnJobDone:  func(job repo.Job) { done = append(done, job.JobID) },
	}
	p := New(store, &fakeResolver{}, &fakeFileProcessor{}, nil, capability.NewFakeClock(0), DefaultConfig(), cb)

	_, err := p.RunOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"j1"}, started)
	assert.Equal(t, []string{"j1"}, done)
}
