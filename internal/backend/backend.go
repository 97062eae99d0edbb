// Package backend submits plans for evaluation and monitors the resulting
// tasks, either in-process (Local) or against another envprep server (Remote).
package backend

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/envprep/internal/plan"
	"github.com/sells-group/envprep/internal/resilience"
	"github.com/sells-group/envprep/internal/task"
)

// Backend accepts plans and reports on the tasks they become.
type Backend interface {
	// Submit enqueues the plan and returns the task id without waiting for it.
	Submit(ctx context.Context, p plan.Plan) (string, error)
	Status(ctx context.Context, id string) (*task.Task, error)
	List(ctx context.Context, filter task.Filter) ([]task.Task, error)
	Cancel(ctx context.Context, id string) error
}

const (
	defaultPollInitial = 2 * time.Second
	defaultPollCap     = 30 * time.Second
)

// PollOption configures Wait.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial time.Duration
	cap     time.Duration
	onPoll  func(*task.Task)
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.initial = d
		}
	}
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.cap = d
		}
	}
}

// OnPoll registers a callback invoked with every observed task state.
func OnPoll(fn func(*task.Task)) PollOption {
	return func(c *pollConfig) {
		c.onPoll = fn
	}
}

// Wait polls the task until it reaches a terminal status or ctx is done.
// The interval doubles after every poll up to the cap. A failed or cancelled
// task is returned together with an error.
func Wait(ctx context.Context, b Backend, id string, opts ...PollOption) (*task.Task, error) {
	cfg := pollConfig{initial: defaultPollInitial, cap: defaultPollCap}
	for _, opt := range opts {
		opt(&cfg)
	}

	interval := cfg.initial
	for {
		t, err := b.Status(ctx, id)
		if err != nil {
			return nil, eris.Wrapf(err, "backend: poll task %s", id)
		}
		if cfg.onPoll != nil {
			cfg.onPoll(t)
		}

		switch t.Status {
		case task.StatusCompleted:
			return t, nil
		case task.StatusFailed:
			return t, eris.Errorf("backend: task %s failed: %s", id, t.Error)
		case task.StatusCancelled:
			return t, eris.Errorf("backend: task %s was cancelled", id)
		}

		if err := resilience.Sleep(ctx, interval); err != nil {
			return t, eris.Wrapf(err, "backend: wait for task %s", id)
		}

		interval *= 2
		if interval > cfg.cap {
			interval = cfg.cap
		}
	}
}
