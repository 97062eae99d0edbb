// Package plan describes an export request: study area, time grid, the four
// input collections with their normalization, and the sampling/export settings.
// Plans are values; build one, validate it, then hand it to a backend.
package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/envprep/internal/geometry"
	"github.com/sells-group/envprep/internal/period"
	"github.com/sells-group/envprep/internal/raster"
)

// Output band names in stacking order.
const (
	BandLST           = "LST"
	BandET            = "ET"
	BandPrecipitation = "precipitation"
	BandNDVI          = "NDVI"
)

// BandOrder is the fixed order of bands in every composite.
var BandOrder = []string{BandLST, BandET, BandPrecipitation, BandNDVI}

// Transform is the per-collection normalization applied to every scene.
type Transform struct {
	Resample raster.Method  `json:"resample"`
	CRS      string         `json:"crs"`
	Scale    float64        `json:"scale"`
	Convert  *raster.Affine `json:"convert,omitempty"`
	Rename   string         `json:"rename"`
}

// Collection is one input dataset band.
type Collection struct {
	ID        string    `json:"id"`
	Band      string    `json:"band"`
	Transform Transform `json:"transform"`
}

// SampleSpec controls point sampling.
type SampleSpec struct {
	Scale      float64 `json:"scale"`
	Geometries bool    `json:"geometries"`
	DropNulls  bool    `json:"drop_nulls"`
}

// Export formats.
const (
	FormatCSV     = "csv"
	FormatGeoJSON = "geojson"
	FormatXLSX    = "xlsx"
)

// Export destinations.
const (
	DestinationDrive    = "drive"
	DestinationS3       = "s3"
	DestinationPostgres = "postgres"
)

// ExportSpec names the output table and where it goes.
type ExportSpec struct {
	Description string `json:"description"`
	Format      string `json:"format"`
	Destination string `json:"destination"`
	Folder      string `json:"folder,omitempty"`
}

// Plan is the full request.
type Plan struct {
	Area        geometry.Area    `json:"area"`
	Dates       period.DateRange `json:"dates"`
	Periods     period.Range     `json:"periods"`
	Collections []Collection     `json:"collections"`
	Sample      SampleSpec       `json:"sample"`
	Export      ExportSpec       `json:"export"`
}

// Reference returns the reference request over area: 2002-2022 monthly
// composites of MOD11A2 LST, MOD16A2 ET, CHIRPS precipitation and MOD13Q1 NDVI
// at 250 m in EPSG:4326, exported as Chittagong_ML_Data.csv.
func Reference(area geometry.Area) Plan {
	dates, _ := period.ParseDateRange("2002-01-01", "2024-12-31")
	tf := func(m raster.Method, name string) Transform {
		return Transform{Resample: m, CRS: raster.CRS4326, Scale: 250, Rename: name}
	}
	lst := tf(raster.Bilinear, BandLST)
	lst.Convert = &raster.Affine{Scale: 0.02, Offset: -273.15}

	return Plan{
		Area:    area,
		Dates:   dates,
		Periods: period.Range{YearStart: 2002, YearEnd: 2022, MonthStart: 1, MonthEnd: 12},
		Collections: []Collection{
			{ID: "MODIS/006/MOD11A2", Band: "LST_Day_1km", Transform: lst},
			{ID: "MODIS/006/MOD16A2", Band: "ET", Transform: tf(raster.Bilinear, BandET)},
			{ID: "UCSB-CHG/CHIRPS/DAILY", Band: "precipitation", Transform: tf(raster.Bilinear, BandPrecipitation)},
			{ID: "MODIS/006/MOD13Q1", Band: "NDVI", Transform: tf(raster.Nearest, BandNDVI)},
		},
		Sample: SampleSpec{Scale: 250, Geometries: true},
		Export: ExportSpec{
			Description: "Chittagong_ML_Data",
			Format:      FormatCSV,
			Destination: DestinationDrive,
		},
	}
}

// Clone returns a deep copy so callers can derive variants without sharing
// collection slices.
func (p Plan) Clone() Plan {
	out := p
	out.Area.Shape = p.Area.Shape.Clone()
	out.Collections = make([]Collection, len(p.Collections))
	for i, c := range p.Collections {
		out.Collections[i] = c
		if c.Transform.Convert != nil {
			a := *c.Transform.Convert
			out.Collections[i].Transform.Convert = &a
		}
	}
	return out
}

// Bands returns the output band names in plan order.
func (p Plan) Bands() []string {
	out := make([]string, len(p.Collections))
	for i, c := range p.Collections {
		out[i] = c.Transform.Rename
	}
	return out
}

// Grid is the shared target grid of the plan's collections over the study area.
func (p Plan) Grid() (raster.Grid, error) {
	if len(p.Collections) == 0 {
		return raster.Grid{}, eris.New("plan: no collections")
	}
	t := p.Collections[0].Transform
	return raster.TargetGrid(t.CRS, t.Scale, p.Area.Bound())
}

// ArtifactName is the exported file name, <description>.<format>.
func (p Plan) ArtifactName() string {
	return p.Export.Description + "." + p.Export.Format
}

// Fingerprint is the hex sha256 of the plan's canonical JSON encoding.
func (p Plan) Fingerprint() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", eris.Wrap(err, "plan: encode for fingerprint")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func hasBand(bands []string, b string) bool {
	return slices.Contains(bands, b)
}
