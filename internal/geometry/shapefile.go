package geometry

import (
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ReadShapefile loads every polygon record of a shapefile into one area named
// after the file.
func ReadShapefile(shpPath string) (Area, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return Area{}, eris.Wrapf(err, "geometry: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	area := Area{Name: strings.TrimSuffix(filepath.Base(shpPath), filepath.Ext(shpPath))}
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		area.Shape = append(area.Shape, shpPolygon(poly)...)
	}
	if err := reader.Err(); err != nil {
		return Area{}, eris.Wrapf(err, "geometry: read shapefile %s", shpPath)
	}

	if skipped > 0 {
		zap.L().Debug("geometry: skipped non-polygon shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return area, nil
}

// shpPolygon splits a shapefile polygon record into polygons. Shapefile outer
// rings are clockwise; a counter-clockwise ring inside the current outer ring
// is a hole.
func shpPolygon(p *shp.Polygon) orb.MultiPolygon {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var mp orb.MultiPolygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{p.Points[j].X, p.Points[j].Y})
		}
		if len(ring) < 3 {
			continue
		}

		isHole := ring.Orientation() == orb.CCW &&
			len(mp) > 0 && planar.RingContains(mp[len(mp)-1][0], ring[0])
		if isHole {
			mp[len(mp)-1] = append(mp[len(mp)-1], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}
	return mp
}

// WriteShapefile writes the area as a single polygon record. Holes are written
// counter-clockwise after their outer ring.
func WriteShapefile(a Area, shpPath string) error {
	w, err := shp.Create(shpPath, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "geometry: create shapefile %s", shpPath)
	}
	defer w.Close()

	var parts [][]shp.Point
	for _, poly := range a.Shape {
		for i, ring := range poly {
			want := orb.CW
			if i > 0 {
				want = orb.CCW
			}
			r := ring.Clone()
			if r.Orientation() != want {
				r.Reverse()
			}
			pts := make([]shp.Point, len(r))
			for k, pt := range r {
				pts[k] = shp.Point{X: pt.X(), Y: pt.Y()}
			}
			parts = append(parts, pts)
		}
	}
	if len(parts) == 0 {
		return nil
	}

	poly := shp.Polygon(*shp.NewPolyLine(parts))
	w.Write(&poly)
	return nil
}
