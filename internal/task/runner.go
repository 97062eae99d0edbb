package task

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Outcome is what a successful job reports back.
type Outcome struct {
	Rows        int
	ArtifactURI string
}

// Job is the work behind a task. It must honour ctx cancellation.
type Job func(ctx context.Context) (Outcome, error)

// Runner executes jobs in background goroutines and records their lifecycle
// in a Store.
type Runner struct {
	store Store

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner returns a Runner recording into store.
func NewRunner(store Store) *Runner {
	return &Runner{store: store, cancels: make(map[string]context.CancelFunc)}
}

// Store returns the runner's task store.
func (r *Runner) Store() Store {
	return r.store
}

// Submit records a queued task and starts job in the background. It returns
// as soon as the task is recorded; job errors only show in the stored status.
// The job keeps running after ctx is done.
func (r *Runner) Submit(ctx context.Context, fingerprint, description string, job Job) (*Task, error) {
	t, err := r.store.Create(ctx, fingerprint, description)
	if err != nil {
		return nil, eris.Wrap(err, "task: submit")
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Lock()
	r.cancels[t.ID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(jobCtx, t.ID, job)

	return t, nil
}

func (r *Runner) run(ctx context.Context, id string, job Job) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		cancel := r.cancels[id]
		delete(r.cancels, id)
		r.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}()

	log := zap.L().With(zap.String("component", "task"), zap.String("task_id", id))
	// Status writes must survive cancellation of the job itself.
	bg := context.WithoutCancel(ctx)

	if ctx.Err() != nil {
		r.record(log, r.store.Fail(bg, id, StatusCancelled, "cancelled before start"))
		return
	}
	r.record(log, r.store.UpdateStatus(bg, id, StatusRunning))
	log.Info("task running")

	out, err := runJob(ctx, job)
	switch {
	case err == nil:
		r.record(log, r.store.Complete(bg, id, out.Rows, out.ArtifactURI))
		log.Info("task completed", zap.Int("rows", out.Rows), zap.String("artifact", out.ArtifactURI))
	case ctx.Err() != nil:
		r.record(log, r.store.Fail(bg, id, StatusCancelled, "cancelled"))
		log.Info("task cancelled")
	default:
		r.record(log, r.store.Fail(bg, id, StatusFailed, err.Error()))
		log.Error("task failed", zap.Error(err))
	}
}

func runJob(ctx context.Context, job Job) (out Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("task: job panicked: %v", p)
		}
	}()
	return job(ctx)
}

func (r *Runner) record(log *zap.Logger, err error) {
	if err != nil {
		log.Error("failed to record task status", zap.Error(err))
	}
}

// Cancel stops a task. A task running in this process has its context
// cancelled and records its own status; a queued or running task with no
// local job (e.g. after a restart) is marked cancelled directly.
func (r *Runner) Cancel(ctx context.Context, id string) error {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
		return nil
	}

	t, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return eris.Wrapf(ErrFinished, "task %s is %s", id, t.Status)
	}
	return r.store.Fail(ctx, id, StatusCancelled, "cancelled")
}

// Active returns the number of jobs still executing.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}

// Wait blocks until every submitted job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels every running job and waits for them to record their
// final status.
func (r *Runner) Shutdown() {
	if n := r.Active(); n > 0 {
		zap.L().Info("cancelling running tasks", zap.String("component", "task"), zap.Int("active", n))
	}
	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}
