package export

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/envprep/internal/engine"
	"github.com/sells-group/envprep/internal/plan"
)

// Artifact describes a finished export.
type Artifact struct {
	URI  string `json:"uri"`
	Rows int    `json:"rows"`
}

// Destination stores an encoded table somewhere.
type Destination interface {
	Write(ctx context.Context, spec plan.ExportSpec, t Table) (Artifact, error)
}

// Exporter routes tables to the destination named in the export spec.
type Exporter struct {
	dests map[string]Destination
}

// NewExporter returns an exporter with no destinations registered.
func NewExporter() *Exporter {
	return &Exporter{dests: make(map[string]Destination)}
}

// Register adds (or replaces) the destination for name.
func (x *Exporter) Register(name string, d Destination) *Exporter {
	x.dests[name] = d
	return x
}

// Export samples the result and writes it to the plan's destination.
func (x *Exporter) Export(ctx context.Context, p plan.Plan, res *engine.Result) (Artifact, error) {
	d, ok := x.dests[p.Export.Destination]
	if !ok {
		return Artifact{}, eris.Errorf("export: destination %q is not configured", p.Export.Destination)
	}

	t, err := BuildTable(res, p.Sample)
	if err != nil {
		return Artifact{}, err
	}

	log := zap.L().With(
		zap.String("component", "export"),
		zap.String("destination", p.Export.Destination),
		zap.String("format", p.Export.Format),
	)
	log.Info("writing export", zap.Int("rows", len(t.Rows)))

	a, err := d.Write(ctx, p.Export, t)
	if err != nil {
		return Artifact{}, eris.Wrapf(err, "export: write to %s", p.Export.Destination)
	}

	log.Info("export complete", zap.String("uri", a.URI), zap.Int("rows", a.Rows))
	return a, nil
}

// fileName is the artifact file name for an export spec.
func fileName(spec plan.ExportSpec) string {
	return spec.Description + "." + spec.Format
}
