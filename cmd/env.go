package main

import (
	"context"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"

	"github.com/sells-group/envprep/internal/backend"
	"github.com/sells-group/envprep/internal/catalog"
	"github.com/sells-group/envprep/internal/config"
	"github.com/sells-group/envprep/internal/engine"
	"github.com/sells-group/envprep/internal/export"
	"github.com/sells-group/envprep/internal/fetcher"
	"github.com/sells-group/envprep/internal/geometry"
	"github.com/sells-group/envprep/internal/period"
	"github.com/sells-group/envprep/internal/plan"
	"github.com/sells-group/envprep/internal/raster"
	"github.com/sells-group/envprep/internal/task"
)

// planFromConfig builds the request described by the config sections study,
// datasets, grid, sample and export over area. The result is not validated.
func planFromConfig(c *config.Config, area geometry.Area) (plan.Plan, error) {
	dates, err := period.ParseDateRange(c.Study.StartDate, c.Study.EndDate)
	if err != nil {
		return plan.Plan{}, err
	}
	if c.Study.Name != "" {
		area.Name = c.Study.Name
	}

	datasets := c.Datasets
	if len(datasets) == 0 {
		datasets = config.DefaultDatasets()
	}

	p := plan.Plan{
		Area:  area,
		Dates: dates,
		Periods: period.Range{
			YearStart:  c.Study.YearStart,
			YearEnd:    c.Study.YearEnd,
			MonthStart: c.Study.MonthStart,
			MonthEnd:   c.Study.MonthEnd,
		},
		Sample: plan.SampleSpec{
			Scale:      c.Grid.Scale,
			Geometries: c.Sample.Geometries,
			DropNulls:  c.Sample.DropNulls,
		},
		Export: plan.ExportSpec{
			Description: c.Export.Description,
			Format:      c.Export.Format,
			Destination: c.Export.Destination,
			Folder:      c.Export.Folder,
		},
	}

	for _, d := range datasets {
		m, err := raster.ParseMethod(d.Resample)
		if err != nil {
			return plan.Plan{}, eris.Wrapf(err, "dataset %s", d.Collection)
		}
		name := d.Name
		if name == "" {
			name = d.Band
		}
		tf := plan.Transform{Resample: m, CRS: c.Grid.CRS, Scale: c.Grid.Scale, Rename: name}
		if d.ScaleFactor != 0 || d.Offset != 0 {
			scale := d.ScaleFactor
			if scale == 0 {
				scale = 1
			}
			tf.Convert = &raster.Affine{Scale: scale, Offset: d.Offset}
		}
		p.Collections = append(p.Collections, plan.Collection{ID: d.Collection, Band: d.Band, Transform: tf})
	}
	return p, nil
}

// loadPlan reads a plan file when one is given, otherwise builds the plan
// from config and the configured study area.
func loadPlan(ctx context.Context, path string) (plan.Plan, error) {
	if path != "" {
		return plan.ReadFile(path)
	}
	if cfg.Study.Area == "" {
		return plan.Plan{}, eris.New("study.area is required (ENVPREP_STUDY_AREA) unless --plan is given")
	}
	area, err := geometry.Load(ctx, cfg.Study.Area, fetcher.NewRouter(""))
	if err != nil {
		return plan.Plan{}, err
	}
	return planFromConfig(cfg, area)
}

func initStore(ctx context.Context) (task.Store, error) {
	var (
		st  task.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "envprep.db"
		}
		st, err = task.NewSQLite(path)
	case "postgres":
		st, err = task.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initExporter registers every destination the config can serve. Drive is
// always available; s3 and postgres need their settings.
func initExporter(ctx context.Context, st task.Store) (*export.Exporter, func(), error) {
	exp := export.NewExporter().Register(plan.DestinationDrive, export.Drive{Root: "."})
	cleanup := func() {}

	if cfg.S3.Endpoint != "" && cfg.S3.Bucket != "" {
		client, err := export.NewS3Client(cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		exp.Register(plan.DestinationS3, export.NewS3(client, cfg.S3.Bucket, cfg.S3.Prefix))
	}

	switch {
	case cfg.Export.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.Export.DatabaseURL)
		if err != nil {
			return nil, nil, eris.Wrap(err, "export: connect postgres")
		}
		cleanup = pool.Close
		exp.Register(plan.DestinationPostgres, export.NewPostgres(pool))
	default:
		if pg, ok := st.(*task.PostgresStore); ok {
			exp.Register(plan.DestinationPostgres, export.NewPostgres(pg.Pool()))
		}
	}
	return exp, cleanup, nil
}

// initBackend returns the configured backend. With full set, the local
// backend is wired to the scene catalog and export destinations so it can
// run plans; without it, only task inspection works.
func initBackend(ctx context.Context, full bool, opts ...engine.Option) (backend.Backend, func(), error) {
	if cfg.Backend.Kind == "remote" {
		if err := cfg.Validate("remote"); err != nil {
			return nil, nil, err
		}
		return backend.NewRemote(cfg.Remote), func() {}, nil
	}
	l, cleanup, err := initLocal(ctx, full, opts...)
	if err != nil {
		return nil, nil, err
	}
	return l, cleanup, nil
}

func initLocal(ctx context.Context, full bool, opts ...engine.Option) (*backend.Local, func(), error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	runner := task.NewRunner(st)
	if !full {
		return backend.NewLocal(runner, nil, nil), func() { st.Close() }, nil //nolint:errcheck
	}

	cat, err := catalog.OpenDir(cfg.Catalog.Dir)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}
	exp, closeExp, err := initExporter(ctx, st)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}

	opts = append([]engine.Option{engine.WithWorkers(cfg.Backend.Workers)}, opts...)
	l := backend.NewLocal(runner, engine.New(cat, opts...), exp)
	return l, func() {
		l.Shutdown()
		closeExp()
		st.Close() //nolint:errcheck
	}, nil
}

// compositeProgress renders engine progress as a bar on stderr.
func compositeProgress() engine.Option {
	var (
		once sync.Once
		bar  *progressbar.ProgressBar
	)
	return engine.WithProgress(func(done, total int) {
		once.Do(func() {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("compositing"),
				progressbar.OptionShowCount(),
			)
		})
		_ = bar.Set(done)
	})
}
