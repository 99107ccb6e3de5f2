package batch

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobState represents the current state of a batch job.
type JobState string

const (
	StateIdle       JobState = "idle"       // Created, start request not yet issued
	StateSubmitting JobState = "submitting" // Start request in flight
	StatePolling    JobState = "polling"    // Accepted, poller tracking progress
	StateCancelling JobState = "cancelling" // User requested cancel, poller will stop at next cycle
	StateCompleted  JobState = "completed"  // All items terminal
	StateTimedOut   JobState = "timed_out"  // Wall-clock ceiling reached before terminal
	StateCancelled  JobState = "cancelled"  // Cancellation observed by the poller
	StateFailed     JobState = "failed"     // Start request failed
)

// Terminal reports whether the state ends the job.
func (s JobState) Terminal() bool {
	switch s {
	case StateCompleted, StateTimedOut, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Job represents one submitted batch. Mutated only by the submitter (initial
// transitions), cancellation requests, and the poller (terminal transitions).
type Job struct {
	ID          string
	Items       []string // local IDs, never empty
	SubmittedAt time.Time

	// generation tags every poll result belonging to this job; the registry
	// discards writes from superseded generations.
	generation uint64

	mu       sync.RWMutex
	state    JobState
	attached bool // a poller loop is running for this job
}

func newJob(items []string, gen uint64) *Job {
	return &Job{
		ID:          uuid.NewString(),
		Items:       items,
		SubmittedAt: time.Now(),
		generation:  gen,
		state:       StateIdle,
	}
}

// State returns the current job state.
func (j *Job) State() JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Generation returns the registry generation this job owns.
func (j *Job) Generation() uint64 {
	return j.generation
}

// setState transitions unconditionally. Internal use by the submitter.
func (j *Job) setState(s JobState) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// transition moves from one specific state to another. Returns false if the
// job was not in the expected state, which keeps terminal transitions
// exactly-once.
func (j *Job) transition(from, to JobState) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != from {
		return false
	}
	j.state = to
	return true
}

// finalize moves the job to a terminal state from any non-terminal one.
// Returns false if the job was already terminal.
func (j *Job) finalize(to JobState) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	j.state = to
	return true
}

// RequestCancel flags the job for cooperative cancellation. The poller
// observes the flag at its next cycle boundary, never mid-cycle. Returns
// false if the job is already terminal or already cancelling.
func (j *Job) RequestCancel() bool {
	return j.transition(StatePolling, StateCancelling)
}

// tryAttach marks the job as having a running poller. Second and later calls
// return false, making attach re-entrant.
func (j *Job) tryAttach() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.attached {
		return false
	}
	j.attached = true
	return true
}
