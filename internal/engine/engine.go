// Package engine evaluates a plan against a scene catalog: it builds one
// monthly mean composite per period from that month's normalized scenes and
// samples the composites at the study-area points.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/envprep/internal/catalog"
	"github.com/sells-group/envprep/internal/geometry"
	"github.com/sells-group/envprep/internal/period"
	"github.com/sells-group/envprep/internal/plan"
	"github.com/sells-group/envprep/internal/raster"
)

// ProgressFunc is called after each composite is built.
type ProgressFunc func(done, total int)

// Engine evaluates plans. It holds no per-plan state and can be shared.
type Engine struct {
	catalog  catalog.Catalog
	workers  int
	progress ProgressFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds how many periods are composited at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// New creates an Engine over cat.
func New(cat catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{catalog: cat, workers: 4}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Composite is the monthly stack for one period, kept only at the sample
// points. Values[i][j] is band Bands[i] at point j of the result; NaN means
// missing.
type Composite struct {
	Period period.Period
	Bands  []string
	Values [][]float64
}

// Properties are the image properties attached to the composite.
func (c Composite) Properties() map[string]any {
	return map[string]any{
		"year":              c.Period.Year,
		"month":             c.Period.Month,
		"system:time_start": c.Period.TimeStartMillis(),
	}
}

// Result is an evaluated plan.
type Result struct {
	Grid       raster.Grid
	Bands      []string
	Points     []geometry.SamplePoint
	Composites []Composite
}

// Compose evaluates p. Every period of the plan yields exactly one composite,
// whether or not imagery exists for it. Scenes are decoded by the worker
// building their period and released once its mean is sampled, so memory is
// bounded by the workers in flight rather than the date range.
func (e *Engine) Compose(ctx context.Context, p plan.Plan) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	grid, err := p.Grid()
	if err != nil {
		return nil, eris.Wrap(err, "engine: target grid")
	}
	for _, c := range p.Collections {
		if err := catalog.Require(e.catalog, c.ID); err != nil {
			return nil, eris.Wrapf(err, "engine: load %s", c.ID)
		}
	}

	log := zap.L().With(
		zap.String("component", "engine"),
		zap.String("description", p.Export.Description),
	)
	start := time.Now()

	points := geometry.SamplePoints(p.Area, grid)
	periods := p.Periods.Slice()
	bands := p.Bands()
	composites := make([]Composite, len(periods))
	var done, scenes atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for k, per := range periods {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			comp := Composite{Period: per, Bands: bands, Values: make([][]float64, len(bands))}
			for i, c := range p.Collections {
				mean, n, err := e.monthlyMean(gctx, c, p.Dates, per, grid)
				if err != nil {
					return err
				}
				comp.Values[i] = sampleAt(mean, points)
				scenes.Add(int64(n))
			}
			composites[k] = comp
			if e.progress != nil {
				e.progress(int(done.Add(1)), len(periods))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("composed plan",
		zap.Int("composites", len(composites)),
		zap.Int64("scenes", scenes.Load()),
		zap.Int("points", len(points)),
		zap.Int("grid_width", grid.Width),
		zap.Int("grid_height", grid.Height),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Result{Grid: grid, Bands: bands, Points: points, Composites: composites}, nil
}

// monthlyMean decodes the scenes of one collection acquired during per,
// normalizes them onto grid and returns their mean with the scene count.
// Periods outside the plan's date range get a fully masked mean.
func (e *Engine) monthlyMean(ctx context.Context, c plan.Collection, dates period.DateRange, per period.Period, grid raster.Grid) (*raster.Raster, int, error) {
	window, ok := dates.Clip(per)
	if !ok {
		mean, err := raster.Mean(grid, nil)
		return mean, 0, err
	}
	refs, err := e.catalog.Find(ctx, catalog.Query{
		Collection: c.ID,
		Band:       c.Band,
		Dates:      window,
		Bound:      grid.Bound(),
	})
	if err != nil {
		return nil, 0, eris.Wrapf(err, "engine: load %s", c.ID)
	}

	month := make([]*raster.Raster, 0, len(refs))
	for _, ref := range refs {
		src, err := e.catalog.Open(ctx, ref)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "engine: load %s", c.ID)
		}
		r, err := raster.Reproject(src, grid, c.Transform.Resample)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "engine: reproject %s scene %s", c.ID, ref.Date.Format(period.DateLayout))
		}
		if c.Transform.Convert != nil {
			r = r.Convert(*c.Transform.Convert)
		}
		month = append(month, r)
	}

	mean, err := raster.Mean(grid, month)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "engine: composite %s %s", per, c.Transform.Rename)
	}
	return mean, len(refs), nil
}

// sampleAt reads r at every point.
func sampleAt(r *raster.Raster, points []geometry.SamplePoint) []float64 {
	out := make([]float64, len(points))
	for j, pt := range points {
		out[j] = r.At(pt.Col, pt.Row)
	}
	return out
}
