package export

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/envprep/internal/db"
	"github.com/sells-group/envprep/internal/geometry"
	"github.com/sells-group/envprep/internal/plan"
)

// SamplesTable receives Postgres exports.
const SamplesTable = "env_samples"

const createSamplesSQL = `CREATE TABLE IF NOT EXISTS env_samples (
	description   TEXT             NOT NULL,
	year          INTEGER          NOT NULL,
	month         INTEGER          NOT NULL,
	lst           DOUBLE PRECISION,
	et            DOUBLE PRECISION,
	precipitation DOUBLE PRECISION,
	ndvi          DOUBLE PRECISION,
	lon           DOUBLE PRECISION NOT NULL,
	lat           DOUBLE PRECISION NOT NULL,
	geom_ewkb     BYTEA,
	PRIMARY KEY (description, year, month, lon, lat)
)`

var sampleColumns = []string{
	"description", "year", "month",
	"lst", "et", "precipitation", "ndvi",
	"lon", "lat", "geom_ewkb",
}

var sampleKeys = []string{"description", "year", "month", "lon", "lat"}

// Postgres writes rows into env_samples, keyed by export description, period
// and location. A write replaces every earlier row of the same description.
// The format field of the export spec is ignored.
type Postgres struct {
	pool db.Pool
}

// NewPostgres returns a Postgres destination over pool.
func NewPostgres(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureTable creates env_samples if it does not exist.
func (p *Postgres) EnsureTable(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createSamplesSQL); err != nil {
		return eris.Wrap(err, "export: create env_samples")
	}
	return nil
}

// Write implements Destination.
func (p *Postgres) Write(ctx context.Context, spec plan.ExportSpec, t Table) (Artifact, error) {
	if err := p.EnsureTable(ctx); err != nil {
		return Artifact{}, err
	}

	rows := make([][]any, 0, len(t.Rows))
	for _, r := range t.Rows {
		g, err := geometry.PointEWKB(r.Point)
		if err != nil {
			return Artifact{}, err
		}
		rows = append(rows, []any{
			spec.Description, r.Year, r.Month,
			r.LST.Value(), r.ET.Value(), r.Precipitation.Value(), r.NDVI.Value(),
			r.Point.X(), r.Point.Y(), g,
		})
	}

	if _, err := db.BulkUpsert(ctx, p.pool, db.UpsertConfig{
		Table:        SamplesTable,
		Columns:      sampleColumns,
		ConflictKeys: sampleKeys,
		ReplaceBy:    "description",
		ReplaceValue: spec.Description,
	}, rows); err != nil {
		return Artifact{}, err
	}

	return Artifact{URI: "postgres://" + SamplesTable + "/" + spec.Description, Rows: len(t.Rows)}, nil
}
