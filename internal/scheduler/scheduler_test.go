package scheduler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowdisk/knowdisk/internal/repo"
)

type fakeSink struct {
	jobs []repo.Job
}

func (f *fakeSink) EnqueueJob(job repo.Job) error {
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeIDs struct{ n int }

func (f *fakeIDs) NewJobID() string {
	f.n++
	return fmt.Sprintf("job-%d", f.n)
}

func TestDebounceCoalescingS1(t *testing.T) {
	sink := &fakeSink{}
	s := New(500, sink, &fakeIDs{})

	s.OnFsEvent("/docs/a.md", EventChange, 1000)
	s.OnFsEvent("/docs/a.md", EventChange, 1200)
	s.OnFsEvent("/docs/a.md", EventChange, 1300)

	n, err := s.FlushDue(1700)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.FlushDue(1801)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, sink.jobs, 1)
	assert.Equal(t, repo.JobTypeIndex, sink.jobs[0].JobType)
	assert.Equal(t, "watcher_change", sink.jobs[0].Reason)
}

func TestUnlinkWinsS2(t *testing.T) {
	sink := &fakeSink{}
	s := New(500, sink, &fakeIDs{})

	s.OnFsEvent("/docs/a.md", EventChange, 1000)
	s.OnFsEvent("/docs/a.md", EventUnlink, 1100)

	n, err := s.FlushDue(1601)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, sink.jobs, 1)
	assert.Equal(t, repo.JobTypeDelete, sink.jobs[0].JobType)
	assert.Equal(t, "watcher_unlink", sink.jobs[0].Reason)
}

func TestDeleteStickyAgainstLaterChange(t *testing.T) {
	sink := &fakeSink{}
	s := New(500, sink, &fakeIDs{})

	s.OnFsEvent("/a.md", EventUnlink, 1000)
	s.OnFsEvent("/a.md", EventChange, 1100) // must not downgrade from delete

	n, err := s.FlushDue(1601)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, repo.JobTypeDelete, sink.jobs[0].JobType)
}

func TestAtMostOneJobPerPathPerFlush(t *testing.T) {
	sink := &fakeSink{}
	s := New(100, sink, &fakeIDs{})

	s.OnFsEvent("/a.md", EventAdd, 0)
	s.OnFsEvent("/b.md", EventAdd, 0)

	n, err := s.FlushDue(200)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, s.QueueDepth())
}

func TestNoEventsNoWork(t *testing.T) {
	sink := &fakeSink{}
	s := New(100, sink, &fakeIDs{})

	n, err := s.FlushDue(1_000_000)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, sink.jobs)
}

func TestFlushRemovesEntrySoSecondFlushIsNoop(t *testing.T) {
	sink := &fakeSink{}
	s := New(100, sink, &fakeIDs{})

	s.OnFsEvent("/a.md", EventAdd, 0)
	n, err := s.FlushDue(200)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.FlushDue(300)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
