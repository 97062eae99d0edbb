package geometry

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ParseGeoJSON reads a FeatureCollection, a Feature or a bare geometry.
// Polygonal parts are kept; points and lines are skipped. The area takes the
// "name" property of the first named feature, or fallback.
func ParseGeoJSON(data []byte, fallback string) (Area, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Area{}, eris.Wrap(err, "geometry: parse geojson")
	}

	area := Area{Name: fallback}
	var skipped int
	add := func(g orb.Geometry, props geojson.Properties) {
		before := len(area.Shape)
		area.Shape = collectPolygons(area.Shape, g)
		if len(area.Shape) == before {
			skipped++
			return
		}
		if name, ok := props["name"].(string); ok && name != "" && area.Name == fallback {
			area.Name = name
		}
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return Area{}, eris.Wrap(err, "geometry: parse feature collection")
		}
		for _, f := range fc.Features {
			add(f.Geometry, f.Properties)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return Area{}, eris.Wrap(err, "geometry: parse feature")
		}
		add(f.Geometry, f.Properties)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return Area{}, eris.Wrapf(err, "geometry: parse geometry of type %q", probe.Type)
		}
		add(g.Geometry(), nil)
	}

	if skipped > 0 {
		zap.L().Debug("geometry: skipped non-polygonal geojson parts",
			zap.String("area", area.Name),
			zap.Int("skipped", skipped),
		)
	}
	return area, nil
}
