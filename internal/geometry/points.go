package geometry

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	geomjson "github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/envprep/internal/raster"
)

// SRID of every geometry envprep writes.
const SRID = 4326

// SamplePoint is a target-grid pixel centre that falls inside the study area.
type SamplePoint struct {
	Col   int
	Row   int
	Point orb.Point
}

// SamplePoints returns the centres of the grid pixels inside the area, in
// row-major order. An empty area has no sample points.
func SamplePoints(a Area, g raster.Grid) []SamplePoint {
	if a.IsEmpty() || g.Len() == 0 {
		return nil
	}

	var pts []SamplePoint
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			c := g.Center(col, row)
			if a.Contains(c) {
				pts = append(pts, SamplePoint{Col: col, Row: row, Point: c})
			}
		}
	}
	return pts
}

func geomPoint(p orb.Point) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.X(), p.Y()}).SetSRID(SRID)
}

// PointGeoJSON encodes p as a GeoJSON Point geometry.
func PointGeoJSON(p orb.Point) ([]byte, error) {
	data, err := geomjson.Marshal(geomPoint(p))
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode geojson point")
	}
	return data, nil
}

// PointEWKB encodes p as little-endian EWKB with SRID 4326.
func PointEWKB(p orb.Point) ([]byte, error) {
	data, err := ewkb.Marshal(geomPoint(p), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode ewkb point")
	}
	return data, nil
}

// PointFeature wraps p and its properties in a go-geom GeoJSON feature.
func PointFeature(p orb.Point, props map[string]any) *geomjson.Feature {
	return &geomjson.Feature{Geometry: geomPoint(p), Properties: props}
}
