// Package geometry loads study areas and derives the sample points inside them.
package geometry

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
)

// Area is a named study area in EPSG:4326.
type Area struct {
	Name  string
	Shape orb.MultiPolygon
}

// polygons returns the polygons that enclose a non-zero area.
func (a Area) polygons() []orb.Polygon {
	out := make([]orb.Polygon, 0, len(a.Shape))
	for _, p := range a.Shape {
		if len(p) == 0 || len(p[0]) < 3 {
			continue
		}
		if math.Abs(planar.Area(p)) == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

// IsEmpty reports whether the area has no polygon with positive area.
func (a Area) IsEmpty() bool {
	return len(a.polygons()) == 0
}

// Bound is the bounding box of the non-degenerate polygons. It is empty
// (Min > Max) for an empty area.
func (a Area) Bound() orb.Bound {
	return orb.MultiPolygon(a.polygons()).Bound()
}

// Contains reports whether p is inside the area. Boundary points count as inside.
func (a Area) Contains(p orb.Point) bool {
	for _, poly := range a.polygons() {
		if planar.PolygonContains(poly, p) {
			return true
		}
	}
	return false
}

type areaDoc struct {
	Name     string            `json:"name"`
	Geometry *geojson.Geometry `json:"geometry"`
}

// MarshalJSON encodes the area as {"name", "geometry"} with a GeoJSON MultiPolygon.
func (a Area) MarshalJSON() ([]byte, error) {
	shape := a.Shape
	if shape == nil {
		shape = orb.MultiPolygon{}
	}
	return json.Marshal(areaDoc{Name: a.Name, Geometry: geojson.NewGeometry(shape)})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (a *Area) UnmarshalJSON(data []byte) error {
	var doc areaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return eris.Wrap(err, "geometry: decode area")
	}
	a.Name = doc.Name
	a.Shape = nil
	if doc.Geometry != nil {
		a.Shape = collectPolygons(nil, doc.Geometry.Geometry())
	}
	return nil
}

// collectPolygons appends every areal part of g to mp.
func collectPolygons(mp orb.MultiPolygon, g orb.Geometry) orb.MultiPolygon {
	switch v := g.(type) {
	case orb.Polygon:
		mp = append(mp, v)
	case orb.MultiPolygon:
		mp = append(mp, v...)
	case orb.Bound:
		mp = append(mp, v.ToPolygon())
	case orb.Collection:
		for _, c := range v {
			mp = collectPolygons(mp, c)
		}
	}
	return mp
}
