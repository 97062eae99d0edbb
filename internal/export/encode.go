package export

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	geomjson "github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/envprep/internal/geometry"
	"github.com/sells-group/envprep/internal/plan"
)

// sheetName is the worksheet name used for XLSX exports.
const sheetName = "samples"

// WriteFile encodes the table in the given format to path.
func WriteFile(path, format string, t Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir for %s", path)
	}

	if format == plan.FormatXLSX {
		return writeXLSX(path, t)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := Encode(f, format, t); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "export: close %s", path)
	}
	return nil
}

// Encode writes the table to w as CSV or GeoJSON. XLSX needs a file and is
// only available through WriteFile.
func Encode(w io.Writer, format string, t Table) error {
	switch format {
	case plan.FormatCSV:
		return encodeCSV(w, t)
	case plan.FormatGeoJSON:
		return encodeGeoJSON(w, t)
	default:
		return eris.Errorf("export: format %q cannot be streamed", format)
	}
}

func encodeCSV(w io.Writer, t Table) error {
	var err error
	if t.Geometries {
		var rows []GeoRow
		if rows, err = t.geoRows(); err != nil {
			return err
		}
		err = gocsv.Marshal(rows, w)
	} else {
		err = gocsv.Marshal(t.Rows, w)
	}
	if err != nil {
		return eris.Wrap(err, "export: encode csv")
	}
	return nil
}

// encodeGeoJSON writes one point feature per row. Features always carry
// their geometry; band values that are missing become null properties.
func encodeGeoJSON(w io.Writer, t Table) error {
	fc := &geomjson.FeatureCollection{Features: make([]*geomjson.Feature, 0, len(t.Rows))}
	for _, r := range t.Rows {
		props := map[string]any{
			"year":              r.Year,
			"month":             r.Month,
			"system:time_start": r.TimeStart,
		}
		for i, v := range r.Bands() {
			props[plan.BandOrder[i]] = v.Value()
		}
		fc.Features = append(fc.Features, geometry.PointFeature(r.Point, props))
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "export: write geojson")
	}
	return nil
}

func writeXLSX(path string, t Table) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range t.Header() {
		header.AddCell().SetString(h)
	}

	for _, r := range t.Rows {
		row := sheet.AddRow()
		row.AddCell().SetInt(r.Year)
		row.AddCell().SetInt(r.Month)
		for _, v := range r.Bands() {
			cell := row.AddCell()
			if v.Valid() {
				cell.SetFloat(v.Float())
			}
		}
		if t.Geometries {
			g, err := geometry.PointGeoJSON(r.Point)
			if err != nil {
				return err
			}
			row.AddCell().SetString(string(g))
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}
