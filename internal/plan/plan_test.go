package plan

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/envprep/internal/geometry"
	"github.com/sells-group/envprep/internal/period"
	"github.com/sells-group/envprep/internal/raster"
)

func testArea() geometry.Area {
	return geometry.Area{Name: "Chittagong", Shape: orb.MultiPolygon{{orb.Ring{
		{91.70, 22.20}, {91.72, 22.20}, {91.72, 22.22}, {91.70, 22.22}, {91.70, 22.20},
	}}}}
}

func TestReference_IsValid(t *testing.T) {
	p := Reference(testArea())
	require.NoError(t, p.Validate())

	assert.Equal(t, 252, p.Periods.Len())
	assert.Equal(t, BandOrder, p.Bands())
	assert.Equal(t, "Chittagong_ML_Data.csv", p.ArtifactName())
	assert.True(t, p.Sample.Geometries)
	assert.False(t, p.Sample.DropNulls)
}

func TestReference_SharedGrid(t *testing.T) {
	p := Reference(testArea())
	for _, c := range p.Collections {
		assert.Equal(t, raster.CRS4326, c.Transform.CRS, c.ID)
		assert.InDelta(t, 250, c.Transform.Scale, 0, c.ID)
	}
}

func TestReference_LSTConversion(t *testing.T) {
	p := Reference(testArea())
	lst := p.Collections[0]
	assert.Equal(t, "MODIS/006/MOD11A2", lst.ID)
	assert.Equal(t, "LST_Day_1km", lst.Band)
	require.NotNil(t, lst.Transform.Convert)
	assert.InDelta(t, 15000*0.02-273.15, lst.Transform.Convert.Apply(15000), 1e-9)
	assert.Equal(t, raster.Bilinear, lst.Transform.Resample)

	for _, c := range p.Collections[1:] {
		assert.Nil(t, c.Transform.Convert, c.ID)
	}
	assert.Equal(t, raster.Nearest, p.Collections[3].Transform.Resample)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Plan)
		want   string
	}{
		{"start after end", func(p *Plan) { p.Dates.Start, p.Dates.End = p.Dates.End, p.Dates.Start }, "after end date"},
		{"missing dates", func(p *Plan) { p.Dates = period.DateRange{} }, "date range is required"},
		{"empty period range", func(p *Plan) { p.Periods.YearEnd = 2001 }, "empty year range"},
		{"bad month", func(p *Plan) { p.Periods.MonthEnd = 13 }, "within 1..12"},
		{"unknown resample", func(p *Plan) { p.Collections[1].Transform.Resample = "lanczos" }, "unknown resample method"},
		{"other crs", func(p *Plan) { p.Collections[2].Transform.CRS = "EPSG:3857" }, "unsupported crs"},
		{"mismatched scale", func(p *Plan) { p.Collections[3].Transform.Scale = 500 }, "must share crs and scale"},
		{"missing band", func(p *Plan) { p.Collections = p.Collections[:3] }, `band "NDVI" is missing`},
		{"duplicate band", func(p *Plan) { p.Collections[3].Transform.Rename = BandLST }, "more than once"},
		{"misordered bands", func(p *Plan) { p.Collections[0], p.Collections[3] = p.Collections[3], p.Collections[0] }, "order is LST, ET, precipitation, NDVI"},
		{"extra band", func(p *Plan) {
			extra := p.Collections[0]
			extra.Transform.Rename = "EVI"
			p.Collections = append(p.Collections, extra)
		}, "expected 4 bands"},
		{"empty id", func(p *Plan) { p.Collections[1].ID = "" }, "needs an id"},
		{"sample scale", func(p *Plan) { p.Sample.Scale = 1000 }, "sample scale"},
		{"zero conversion", func(p *Plan) { p.Collections[0].Transform.Convert.Scale = 0 }, "non-zero"},
		{"format", func(p *Plan) { p.Export.Format = "parquet" }, "unknown export format"},
		{"destination", func(p *Plan) { p.Export.Destination = "gcs" }, "unknown export destination"},
		{"description path", func(p *Plan) { p.Export.Description = "../etc/x" }, "plain file name"},
		{"no description", func(p *Plan) { p.Export.Description = "" }, "description is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Reference(testArea()).Clone()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_EmptyAreaIsAllowed(t *testing.T) {
	p := Reference(geometry.Area{Name: "nothing"})
	require.NoError(t, p.Validate())

	g, err := p.Grid()
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
}

func TestClone_IsIndependent(t *testing.T) {
	p := Reference(testArea())
	c := p.Clone()
	c.Collections[0].Transform.Convert.Offset = 0
	c.Collections[1].ID = "changed"
	c.Area.Shape[0][0][0] = orb.Point{0, 0}

	assert.InDelta(t, -273.15, p.Collections[0].Transform.Convert.Offset, 1e-12)
	assert.Equal(t, "MODIS/006/MOD16A2", p.Collections[1].ID)
	assert.Equal(t, orb.Point{91.70, 22.20}, p.Area.Shape[0][0][0])
}

func TestGrid(t *testing.T) {
	p := Reference(testArea())
	g, err := p.Grid()
	require.NoError(t, err)
	assert.Equal(t, raster.CRS4326, g.CRS)
	assert.InDelta(t, raster.DegreesForScale(250), g.PixelWidth, 1e-15)
	assert.Positive(t, g.Len())
}

func TestFingerprint(t *testing.T) {
	a := Reference(testArea())
	b := Reference(testArea())
	fa, err := a.Fingerprint()
	require.NoError(t, err)
	assert.Len(t, fa, 64)
	assertSamePlan(t, a, b)

	b.Sample.DropNulls = true
	assert.NotEqual(t, fingerprint(t, a), fingerprint(t, b))
}

func TestJSONRoundTrip(t *testing.T) {
	p := Reference(testArea())
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, WriteFile(p, path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assertSamePlan(t, p, got)
	require.NoError(t, got.Validate())
}

func TestYAMLRoundTrip(t *testing.T) {
	p := Reference(testArea())
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, WriteFile(p, path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assertSamePlan(t, p, got)
	assert.Equal(t, "Chittagong", got.Area.Name)
	assert.InDelta(t, 0.02, got.Collections[0].Transform.Convert.Scale, 1e-15)
}

func TestReadFile_UnsupportedExtension(t *testing.T) {
	_, err := ReadFile("plan.toml")
	require.Error(t, err)
	assert.Error(t, WriteFile(Reference(testArea()), filepath.Join(t.TempDir(), "plan.toml")))
}

func TestGraph(t *testing.T) {
	lines := Reference(testArea()).Graph()
	require.Len(t, lines, 9)
	assert.Contains(t, lines[1], "(252 composites)")
	assert.Equal(t, "load MODIS/006/MOD11A2[LST_Day_1km] 2002-01-01/2024-12-31 -> bilinear EPSG:4326@250m -> value*0.02-273.15 -> LST -> monthly mean", lines[2])
	assert.True(t, strings.HasPrefix(lines[6], "stack LST, ET, precipitation, NDVI"))
	assert.Equal(t, "export Chittagong_ML_Data.csv -> drive", lines[8])
}

func fingerprint(t *testing.T, p Plan) string {
	t.Helper()
	fp, err := p.Fingerprint()
	require.NoError(t, err)
	return fp
}

func assertSamePlan(t *testing.T, want, got Plan, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, fingerprint(t, want), fingerprint(t, got), msgAndArgs...)
}
