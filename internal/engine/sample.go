package engine

import (
	"iter"
	"math"

	"github.com/sells-group/envprep/internal/geometry"
	"github.com/sells-group/envprep/internal/period"
)

// Sample is one row of the output table: a composite read at a point.
// Values follow the result's band order; NaN means missing.
type Sample struct {
	Period    period.Period
	TimeStart int64
	Point     geometry.SamplePoint
	Values    []float64
}

// AllMissing reports whether every band value is NaN.
func (s Sample) AllMissing() bool {
	for _, v := range s.Values {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Samples yields one sample per (period, point) in period order, then
// row-major point order. With dropNulls, samples missing every band are skipped.
func (r *Result) Samples(dropNulls bool) iter.Seq[Sample] {
	return func(yield func(Sample) bool) {
		for _, c := range r.Composites {
			for j, pt := range r.Points {
				s := Sample{
					Period:    c.Period,
					TimeStart: c.Period.TimeStartMillis(),
					Point:     pt,
					Values:    make([]float64, len(c.Values)),
				}
				for i, band := range c.Values {
					s.Values[i] = band[j]
				}
				if dropNulls && s.AllMissing() {
					continue
				}
				if !yield(s) {
					return
				}
			}
		}
	}
}

// RowCount is the number of samples without null dropping.
func (r *Result) RowCount() int {
	return len(r.Composites) * len(r.Points)
}
