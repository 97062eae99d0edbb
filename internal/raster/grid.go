// Package raster holds single-band float rasters on north-up EPSG:4326 grids
// and the resampling, unit conversion and compositing applied to them.
package raster

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// CRS4326 is the only coordinate reference system envprep evaluates.
const CRS4326 = "EPSG:4326"

// MetersPerDegree converts a nominal pixel scale in metres to degrees at the
// equator (WGS84 semi-major axis).
const MetersPerDegree = 2 * math.Pi * 6378137 / 360

// ErrUnsupportedCRS is returned for any CRS other than EPSG:4326.
var ErrUnsupportedCRS = eris.New("raster: unsupported crs")

// Grid is an axis-aligned pixel grid. OriginX/OriginY is the outer top-left
// corner; pixel sizes are positive degrees.
type Grid struct {
	CRS         string  `json:"crs" yaml:"crs"`
	OriginX     float64 `json:"origin_x" yaml:"origin_x"`
	OriginY     float64 `json:"origin_y" yaml:"origin_y"`
	PixelWidth  float64 `json:"pixel_width" yaml:"pixel_width"`
	PixelHeight float64 `json:"pixel_height" yaml:"pixel_height"`
	Width       int     `json:"width" yaml:"width"`
	Height      int     `json:"height" yaml:"height"`
}

// CheckCRS returns ErrUnsupportedCRS unless crs is EPSG:4326.
func CheckCRS(crs string) error {
	if crs != CRS4326 {
		return eris.Wrapf(ErrUnsupportedCRS, "%q", crs)
	}
	return nil
}

// DegreesForScale converts a pixel scale in metres to degrees.
func DegreesForScale(scaleMeters float64) float64 {
	return scaleMeters / MetersPerDegree
}

// TargetGrid builds the shared output grid for a study-area bound. Pixel edges
// are aligned to multiples of the pixel size from the CRS origin, so every
// collection reprojected with the same crs and scale lands on identical pixels.
// An empty bound yields a zero-sized grid.
func TargetGrid(crs string, scaleMeters float64, b orb.Bound) (Grid, error) {
	if err := CheckCRS(crs); err != nil {
		return Grid{}, err
	}
	if scaleMeters <= 0 {
		return Grid{}, eris.Errorf("raster: scale must be > 0, got %v", scaleMeters)
	}

	px := DegreesForScale(scaleMeters)
	g := Grid{CRS: crs, PixelWidth: px, PixelHeight: px}
	if b.IsEmpty() {
		return g, nil
	}

	minCol := math.Floor(b.Min.X() / px)
	maxCol := math.Ceil(b.Max.X() / px)
	minRow := math.Floor(b.Min.Y() / px)
	maxRow := math.Ceil(b.Max.Y() / px)
	if maxCol == minCol {
		maxCol++
	}
	if maxRow == minRow {
		maxRow++
	}

	g.OriginX = minCol * px
	g.OriginY = maxRow * px
	g.Width = int(maxCol - minCol)
	g.Height = int(maxRow - minRow)
	return g, nil
}

// Len is the number of pixels.
func (g Grid) Len() int { return g.Width * g.Height }

// Center returns the coordinate of a pixel centre.
func (g Grid) Center(col, row int) orb.Point {
	return orb.Point{
		g.OriginX + (float64(col)+0.5)*g.PixelWidth,
		g.OriginY - (float64(row)+0.5)*g.PixelHeight,
	}
}

// Fractional returns the continuous pixel coordinate of p, where pixel
// centres sit on integer values.
func (g Grid) Fractional(p orb.Point) (fx, fy float64) {
	fx = (p.X()-g.OriginX)/g.PixelWidth - 0.5
	fy = (g.OriginY-p.Y())/g.PixelHeight - 0.5
	return fx, fy
}

// Bound is the outer extent of the grid.
func (g Grid) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{g.OriginX, g.OriginY - float64(g.Height)*g.PixelHeight},
		Max: orb.Point{g.OriginX + float64(g.Width)*g.PixelWidth, g.OriginY},
	}
}

// Aligned reports whether two grids share crs, pixel size and extent.
func (g Grid) Aligned(o Grid) bool {
	const eps = 1e-9
	return g.CRS == o.CRS &&
		g.Width == o.Width && g.Height == o.Height &&
		math.Abs(g.OriginX-o.OriginX) < eps && math.Abs(g.OriginY-o.OriginY) < eps &&
		math.Abs(g.PixelWidth-o.PixelWidth) < eps && math.Abs(g.PixelHeight-o.PixelHeight) < eps
}
