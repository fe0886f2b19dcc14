package journal

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run records one pipeline invocation against the bakery.
type Run struct {
	ID         string
	Repo       string
	Bake       string
	PlanPath   string
	Status     string // "running", "completed", "failed"
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Event records one step of a run: a configuration call or a job status
// transition observed while polling.
type Event struct {
	ID        string
	RunID     string
	Step      string // e.g. "set_repo", "stim", "rollout", "bake"
	Target    string
	Status    string
	Lines     int
	Detail    string
	CreatedAt time.Time
}
