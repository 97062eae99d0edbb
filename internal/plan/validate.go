package plan

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/envprep/internal/raster"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = eris.New("plan: invalid")

func invalid(format string, args ...any) error {
	return eris.Wrapf(ErrInvalid, format, args...)
}

// Validate rejects plans that cannot be evaluated: bad date or period ranges,
// unknown resample methods, collections on different grids, and a band list
// that is not exactly LST, ET, precipitation, NDVI.
func (p Plan) Validate() error {
	if p.Dates.Start.IsZero() || p.Dates.End.IsZero() {
		return invalid("date range is required")
	}
	if err := p.Dates.Validate(); err != nil {
		return invalid("%s", err.Error())
	}
	if err := p.Periods.Validate(); err != nil {
		return invalid("%s", err.Error())
	}

	if err := p.validateBands(); err != nil {
		return err
	}

	first := p.Collections[0].Transform
	for _, c := range p.Collections {
		t := c.Transform
		if c.ID == "" || c.Band == "" {
			return invalid("collection for band %q needs an id and a source band", t.Rename)
		}
		if _, err := raster.ParseMethod(string(t.Resample)); err != nil {
			return invalid("%s: %s", c.ID, err.Error())
		}
		if err := raster.CheckCRS(t.CRS); err != nil {
			return invalid("%s: %s", c.ID, err.Error())
		}
		if t.Scale <= 0 {
			return invalid("%s: scale must be > 0", c.ID)
		}
		if t.CRS != first.CRS || t.Scale != first.Scale {
			return invalid("%s: grid %s@%gm differs from %s@%gm; all collections must share crs and scale",
				c.ID, t.CRS, t.Scale, first.CRS, first.Scale)
		}
		if t.Convert != nil && t.Convert.Scale == 0 {
			return invalid("%s: unit conversion scale must be non-zero", c.ID)
		}
	}

	if p.Sample.Scale != first.Scale {
		return invalid("sample scale %g must match the collection scale %g", p.Sample.Scale, first.Scale)
	}

	return p.validateExport()
}

func (p Plan) validateBands() error {
	bands := p.Bands()
	seen := make(map[string]bool, len(bands))
	for _, b := range bands {
		if seen[b] {
			return invalid("band %q appears more than once", b)
		}
		seen[b] = true
	}
	for _, want := range BandOrder {
		if !hasBand(bands, want) {
			return invalid("band %q is missing", want)
		}
	}
	if len(bands) != len(BandOrder) {
		return invalid("expected %d bands, got %d", len(BandOrder), len(bands))
	}
	for i, want := range BandOrder {
		if bands[i] != want {
			return invalid("band %d is %q, want %q (order is %s)", i, bands[i], want, strings.Join(BandOrder, ", "))
		}
	}
	return nil
}

func (p Plan) validateExport() error {
	e := p.Export
	if e.Description == "" {
		return invalid("export description is required")
	}
	if strings.ContainsAny(e.Description, `/\`) || e.Description == "." || e.Description == ".." {
		return invalid("export description %q must be a plain file name", e.Description)
	}
	switch e.Format {
	case FormatCSV, FormatGeoJSON, FormatXLSX:
	default:
		return invalid("unknown export format %q", e.Format)
	}
	switch e.Destination {
	case DestinationDrive, DestinationS3, DestinationPostgres:
	default:
		return invalid("unknown export destination %q", e.Destination)
	}
	return nil
}
