package store

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v-rdyy/jobqueue/internal/domain/job"
)

func TestCreateJob_AssignsPendingStatus(t *testing.T) {
	s := New()

	j, _ := s.CreateJob(job.CreateRequest{TaskName: "sum", MaxRetries: 3})

	assert.Equal(t, job.StatusPending, j.Status)
	assert.Equal(t, 0, j.Attempts)
	assert.NotEmpty(t, j.JobID)
}

func TestCreateJob_IdempotencyReturnsSameJob(t *testing.T) {
	s := New()

	first, firstCreated := s.CreateJob(job.CreateRequest{TaskName: "sum", ClientJobID: "billing-user_123-2026-01"})
	second, secondCreated := s.CreateJob(job.CreateRequest{TaskName: "fail", ClientJobID: "billing-user_123-2026-01"})

	assert.True(t, firstCreated)
	assert.False(t, secondCreated)
	assert.Equal(t, first.JobID, second.JobID)
	assert.Equal(t, 1, s.Len())
	// first submission wins: task name is unchanged by the second call.
	got, ok := s.GetJob(first.JobID)
	require.True(t, ok)
	assert.Equal(t, "sum", got.TaskName)
}

func TestCreateJob_IdempotencyUnderConcurrency(t *testing.T) {
	s := New()

	const n = 50
	ids := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			j, _ := s.CreateJob(job.CreateRequest{TaskName: "sum", ClientJobID: "dedupe-key"})
			ids[i] = j.JobID
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, s.Len())
}

func TestGetJob_Unknown(t *testing.T) {
	s := New()
	_, ok := s.GetJob("does-not-exist")
	assert.False(t, ok)
}

func TestUpdateJobStatus_UnknownReturnsFalse(t *testing.T) {
	s := New()
	assert.False(t, s.UpdateJobStatus("missing", job.StatusRunning, nil, ""))
}

func TestIncrementAttempts(t *testing.T) {
	s := New()
	j, _ := s.CreateJob(job.CreateRequest{TaskName: "sum"})

	ok := s.IncrementAttempts(j.JobID)
	require.True(t, ok)

	got, _ := s.GetJob(j.JobID)
	assert.Equal(t, 1, got.Attempts)
}

func TestUpdateJobStatus_NonFailedStatusClearsError(t *testing.T) {
	s := New()
	j, _ := s.CreateJob(job.CreateRequest{TaskName: "sum"})

	s.UpdateJobStatus(j.JobID, job.StatusFailed, nil, "boom")
	got, _ := s.GetJob(j.JobID)
	assert.Equal(t, "boom", got.Error)

	s.UpdateJobStatus(j.JobID, job.StatusPending, nil, "")
	got, _ = s.GetJob(j.JobID)
	assert.Empty(t, got.Error, "retrying must not leave the earlier failure's error visible on a pending job")

	s.UpdateJobStatus(j.JobID, job.StatusSuccess, json.RawMessage(`"ok"`), "")
	got, _ = s.GetJob(j.JobID)
	assert.Empty(t, got.Error, "a terminal success must not carry a stale error from an earlier attempt")
}

func TestGetJob_ReturnsCopyNotAliasedToStoreState(t *testing.T) {
	s := New()
	j, _ := s.CreateJob(job.CreateRequest{TaskName: "sum"})

	got, _ := s.GetJob(j.JobID)
	got.Status = job.StatusFailed

	stillPending, _ := s.GetJob(j.JobID)
	assert.Equal(t, job.StatusPending, stillPending.Status)
}
