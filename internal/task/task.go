// Package task tracks asynchronous export jobs: their persistent record in a
// Store and their execution through a Runner.
package task

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions happen from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ParseStatus validates a status name. The empty string is allowed and means
// "any" in filters.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case "", StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return st, nil
	default:
		return "", eris.Errorf("task: unknown status %q", s)
	}
}

// ErrNotFound is returned when a task id is unknown to the store.
var ErrNotFound = eris.New("task: not found")

// ErrFinished is returned when cancelling a task that already ended.
var ErrFinished = eris.New("task: already finished")

// Task is the stored record of one export job.
type Task struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Rows        int       `json:"rows"`
	ArtifactURI string    `json:"artifact_uri,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Filter specifies criteria for listing tasks.
type Filter struct {
	Status Status `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Store persists tasks.
type Store interface {
	Create(ctx context.Context, fingerprint, description string) (*Task, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	Complete(ctx context.Context, id string, rows int, artifactURI string) error
	Fail(ctx context.Context, id string, status Status, msg string) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, filter Filter) ([]Task, error)

	Migrate(ctx context.Context) error
	Close() error
}
