package backend

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/envprep/internal/engine"
	"github.com/sells-group/envprep/internal/export"
	"github.com/sells-group/envprep/internal/plan"
	"github.com/sells-group/envprep/internal/task"
)

// Local evaluates plans in this process: the engine composes the monthly
// stack and the exporter writes the samples, inside a task runner goroutine.
type Local struct {
	runner   *task.Runner
	engine   *engine.Engine
	exporter *export.Exporter
}

// NewLocal returns a Local backend.
func NewLocal(runner *task.Runner, eng *engine.Engine, exp *export.Exporter) *Local {
	return &Local{runner: runner, engine: eng, exporter: exp}
}

// Submit validates the plan, records a queued task and starts it.
func (l *Local) Submit(ctx context.Context, p plan.Plan) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	fp, err := p.Fingerprint()
	if err != nil {
		return "", err
	}

	p = p.Clone()
	t, err := l.runner.Submit(ctx, fp, p.Export.Description, func(ctx context.Context) (task.Outcome, error) {
		res, err := l.engine.Compose(ctx, p)
		if err != nil {
			return task.Outcome{}, err
		}
		a, err := l.exporter.Export(ctx, p, res)
		if err != nil {
			return task.Outcome{}, err
		}
		return task.Outcome{Rows: a.Rows, ArtifactURI: a.URI}, nil
	})
	if err != nil {
		return "", eris.Wrap(err, "backend: submit")
	}
	return t.ID, nil
}

func (l *Local) Status(ctx context.Context, id string) (*task.Task, error) {
	return l.runner.Store().Get(ctx, id)
}

func (l *Local) List(ctx context.Context, filter task.Filter) ([]task.Task, error) {
	return l.runner.Store().List(ctx, filter)
}

func (l *Local) Cancel(ctx context.Context, id string) error {
	return l.runner.Cancel(ctx, id)
}

// Shutdown cancels running tasks and waits for them to record their status.
func (l *Local) Shutdown() {
	l.runner.Shutdown()
}
