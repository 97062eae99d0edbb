package raster

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
)

// Raster is a single-band raster. Masked pixels are NaN.
type Raster struct {
	Grid Grid
	Data []float64
}

// New returns a fully masked raster on g.
func New(g Grid) *Raster {
	data := make([]float64, g.Len())
	for i := range data {
		data[i] = math.NaN()
	}
	return &Raster{Grid: g, Data: data}
}

// At returns the value at (col, row), NaN when out of range or masked.
func (r *Raster) At(col, row int) float64 {
	if col < 0 || row < 0 || col >= r.Grid.Width || row >= r.Grid.Height {
		return math.NaN()
	}
	return r.Data[row*r.Grid.Width+col]
}

// Set writes the value at (col, row).
func (r *Raster) Set(col, row int, v float64) {
	r.Data[row*r.Grid.Width+col] = v
}

// Affine is a linear unit conversion value*Scale + Offset.
type Affine struct {
	Scale  float64 `json:"scale" yaml:"scale"`
	Offset float64 `json:"offset" yaml:"offset"`
}

// Apply converts a single value. NaN stays NaN.
func (a Affine) Apply(v float64) float64 {
	return v*a.Scale + a.Offset
}

// Convert returns a copy of r with a applied to every pixel.
func (r *Raster) Convert(a Affine) *Raster {
	out := &Raster{Grid: r.Grid, Data: make([]float64, len(r.Data))}
	for i, v := range r.Data {
		out.Data[i] = a.Apply(v)
	}
	return out
}

// Mean composites rasters that share grid g into their per-pixel mean over
// unmasked values. A pixel masked in every input, or an empty input list,
// gives NaN.
func Mean(g Grid, rasters []*Raster) (*Raster, error) {
	out := New(g)
	if len(rasters) == 0 {
		return out, nil
	}
	for i, r := range rasters {
		if !r.Grid.Aligned(g) {
			return nil, eris.Errorf("raster: input %d is not on the composite grid", i)
		}
	}

	vals := make([]float64, 0, len(rasters))
	for i := range out.Data {
		vals = vals[:0]
		for _, r := range rasters {
			if v := r.Data[i]; !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		if len(vals) > 0 {
			out.Data[i] = stat.Mean(vals, nil)
		}
	}
	return out, nil
}
