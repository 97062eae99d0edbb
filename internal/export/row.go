// Package export turns composite samples into tables and writes them to a
// destination (local folder, S3 bucket or Postgres).
package export

import (
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/envprep/internal/engine"
	"github.com/sells-group/envprep/internal/geometry"
	"github.com/sells-group/envprep/internal/plan"
)

// NullFloat is a band value where NaN means missing. Missing values are
// written as empty cells.
type NullFloat float64

// significantDigits is the precision band values are written with, well
// past any sensor's. Resampling and unit conversion leave noise below it:
// 15000*0.02-273.15 is 26.850000000000023.
const significantDigits = 12

// Float returns the value rounded to significantDigits.
func (f NullFloat) Float() float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', significantDigits, 64), 64)
	if err != nil {
		return float64(f)
	}
	return v
}

// Valid reports whether the value is present.
func (f NullFloat) Valid() bool {
	return !math.IsNaN(float64(f))
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (f NullFloat) MarshalCSV() (string, error) {
	if !f.Valid() {
		return "", nil
	}
	return strconv.FormatFloat(f.Float(), 'f', -1, 64), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (f *NullFloat) UnmarshalCSV(s string) error {
	if s == "" {
		*f = NullFloat(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return eris.Wrapf(err, "export: parse value %q", s)
	}
	*f = NullFloat(v)
	return nil
}

// Value returns the float, or nil when missing.
func (f NullFloat) Value() any {
	if !f.Valid() {
		return nil
	}
	return f.Float()
}

// Row is one exported sample.
type Row struct {
	Year          int       `csv:"year"`
	Month         int       `csv:"month"`
	LST           NullFloat `csv:"LST"`
	ET            NullFloat `csv:"ET"`
	Precipitation NullFloat `csv:"precipitation"`
	NDVI          NullFloat `csv:"NDVI"`

	TimeStart int64     `csv:"-"`
	Point     orb.Point `csv:"-"`
}

// GeoRow is a Row with its point geometry as GeoJSON text.
type GeoRow struct {
	Row
	Geometry string `csv:"geometry"`
}

// Bands returns the band values in export order.
func (r Row) Bands() []NullFloat {
	return []NullFloat{r.LST, r.ET, r.Precipitation, r.NDVI}
}

// Table is the full set of rows for one export.
type Table struct {
	Rows       []Row
	Geometries bool
}

// Header returns the column names in output order.
func (t Table) Header() []string {
	h := []string{"year", "month", plan.BandLST, plan.BandET, plan.BandPrecipitation, plan.BandNDVI}
	if t.Geometries {
		h = append(h, "geometry")
	}
	return h
}

// geoRows attaches GeoJSON point text to every row.
func (t Table) geoRows() ([]GeoRow, error) {
	out := make([]GeoRow, len(t.Rows))
	for i, r := range t.Rows {
		g, err := geometry.PointGeoJSON(r.Point)
		if err != nil {
			return nil, err
		}
		out[i] = GeoRow{Row: r, Geometry: string(g)}
	}
	return out, nil
}

// BuildTable reads every sample of the result into rows, honouring the sample
// spec's null dropping and geometry flag.
func BuildTable(res *engine.Result, spec plan.SampleSpec) (Table, error) {
	idx := make(map[string]int, len(res.Bands))
	for i, b := range res.Bands {
		idx[b] = i
	}
	for _, b := range plan.BandOrder {
		if _, ok := idx[b]; !ok {
			return Table{}, eris.Errorf("export: result is missing band %q", b)
		}
	}

	t := Table{Rows: make([]Row, 0, res.RowCount()), Geometries: spec.Geometries}
	for s := range res.Samples(spec.DropNulls) {
		t.Rows = append(t.Rows, Row{
			Year:          s.Period.Year,
			Month:         s.Period.Month,
			LST:           NullFloat(s.Values[idx[plan.BandLST]]),
			ET:            NullFloat(s.Values[idx[plan.BandET]]),
			Precipitation: NullFloat(s.Values[idx[plan.BandPrecipitation]]),
			NDVI:          NullFloat(s.Values[idx[plan.BandNDVI]]),
			TimeStart:     s.TimeStart,
			Point:         s.Point.Point,
		})
	}
	return t, nil
}
