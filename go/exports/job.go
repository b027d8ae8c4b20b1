package exports

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of an export job.
type Status string

const (
	// StatusPending is the state of a created job before its first
	// download begins.
	StatusPending Status = "pending"
	// StatusInProgress is the state while a download streams.
	StatusInProgress Status = "in_progress"
	// StatusCompleted is terminal: the stream finished cleanly at least
	// once. Later downloads of the same job leave it untouched.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal: a stream broke after it began.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// legalTransition is the job state machine. A job can only fail once its
// stream has begun, and terminal states never move again.
func legalTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Job is one export: a validated request plus its lifecycle state.
type Job struct {
	ID          string     `json:"exportId"`
	Request     Request    `json:"request"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ErrJobNotFound is returned for identifiers the registry doesn't know.
var ErrJobNotFound = errors.New("export job not found")

// Registry is the in-process job store. Descriptors live for the process
// lifetime, identifiers are never reused, and all operations are safe for
// concurrent use.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Create stores a pending job for |req| under a fresh identifier and
// returns a snapshot of it.
func (r *Registry) Create(req Request) Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id = uuid.NewString()
	for r.jobs[id] != nil {
		id = uuid.NewString()
	}
	var job = &Job{
		ID:        id,
		Request:   req,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	r.jobs[id] = job
	return *job
}

// Get returns a snapshot of the identified job.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var job = r.jobs[id]
	if job == nil {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}

// UpdateStatus applies one transition of the job state machine. |cause| is
// recorded on the job when transitioning to StatusFailed.
func (r *Registry) UpdateStatus(id string, next Status, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var job = r.jobs[id]
	if job == nil {
		return ErrJobNotFound
	}
	if !legalTransition(job.Status, next) {
		return fmt.Errorf("cannot transition job %s from %s to %s", id, job.Status, next)
	}

	job.Status = next
	switch next {
	case StatusFailed:
		job.Error = cause
	case StatusCompleted:
		var now = time.Now().UTC()
		job.CompletedAt = &now
	}
	return nil
}
