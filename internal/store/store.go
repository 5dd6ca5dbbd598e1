// Package store holds the in-memory job repository: the job records map
// and the client_job_id idempotency index, guarded by one mutex as
// required by the single mutual-exclusion domain in the design.
package store

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/v-rdyy/jobqueue/internal/domain/job"
)

// Store is a thread-safe repository of job records keyed by job id, with
// a secondary index from client-supplied idempotency key to job id.
// A single mutex guards both maps; mutation methods release it before
// invoking the onMutate hook and reacquire it before returning, so the
// hook can safely read the store without deadlocking.
type Store struct {
	mu          sync.Mutex
	jobs        map[string]job.Job
	idempotency map[string]string // client_job_id -> job_id
	onMutate    func(jobID string)
}

// New returns an empty store.
func New() *Store {
	return &Store{
		jobs:        make(map[string]job.Job),
		idempotency: make(map[string]string),
	}
}

// OnMutate registers a hook invoked, outside the store's lock, every time
// UpdateJobStatus or IncrementAttempts changes a record. The HTTP layer
// uses this to invalidate its read-through status cache. A status read
// that fetched the record just before a mutation can still re-cache the
// older view after the hook runs; that entry lives until the cache TTL.
func (s *Store) OnMutate(fn func(jobID string)) {
	s.mu.Lock()
	s.onMutate = fn
	s.mu.Unlock()
}

// CreateJob resolves an existing job by idempotency key or allocates a
// new record. The idempotency lookup and the insert happen under the same
// lock acquisition, so two concurrent callers with the same
// client_job_id can never both observe "not present" and both insert.
// created is false when an existing record was returned instead, telling
// the caller not to enqueue it again.
func (s *Store) CreateJob(req job.CreateRequest) (j job.Job, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ClientJobID != "" {
		if existingID, ok := s.idempotency[req.ClientJobID]; ok {
			return s.jobs[existingID].Clone(), false
		}
	}

	newJob := job.New(req)
	s.jobs[newJob.JobID] = newJob
	if req.ClientJobID != "" {
		s.idempotency[req.ClientJobID] = newJob.JobID
	}
	return newJob.Clone(), true
}

// GetJob returns a defensive copy of the record, or false if unknown.
// Copying under the lock is what makes the read tear-proof: the caller
// can never observe a record mid-mutation.
func (s *Store) GetJob(jobID string) (job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return job.Job{}, false
	}
	return j.Clone(), true
}

// UpdateJobStatus writes status and, when non-nil, result, bumping
// updated_at. errMsg is only kept when status is failed; any other
// status clears the error field, so a job never carries a stale error
// from an earlier attempt once it leaves the failed state. It does not
// enforce state-machine legality — that discipline lives in the
// worker. Returns false if the id is unknown.
func (s *Store) UpdateJobStatus(jobID string, status job.Status, result json.RawMessage, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return false
	}

	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	if result != nil {
		j.Result = result
	}
	if status == job.StatusFailed {
		j.Error = errMsg
	} else {
		j.Error = ""
	}
	s.jobs[jobID] = j
	hook := s.onMutate
	s.mu.Unlock()
	if hook != nil {
		hook(jobID)
	}
	s.mu.Lock()
	return true
}

// IncrementAttempts atomically increments attempts and bumps updated_at.
func (s *Store) IncrementAttempts(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return false
	}
	j.Attempts++
	j.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = j
	hook := s.onMutate
	s.mu.Unlock()
	if hook != nil {
		hook(jobID)
	}
	s.mu.Lock()
	return true
}

// Len reports the number of tracked jobs, used by readiness diagnostics.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
