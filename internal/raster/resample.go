package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// Method is a resampling kernel.
type Method string

const (
	Nearest  Method = "nearest"
	Bilinear Method = "bilinear"
	Bicubic  Method = "bicubic"
)

// ParseMethod validates a method name. An empty name means nearest.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "", Nearest:
		return Nearest, nil
	case Bilinear:
		return Bilinear, nil
	case Bicubic:
		return Bicubic, nil
	default:
		return "", eris.Errorf("raster: unknown resample method %q", s)
	}
}

// Reproject samples src at every pixel centre of dst using m. Destination
// pixels outside the source extent are masked.
func Reproject(src *Raster, dst Grid, m Method) (*Raster, error) {
	if err := CheckCRS(src.Grid.CRS); err != nil {
		return nil, eris.Wrap(err, "raster: source")
	}
	if err := CheckCRS(dst.CRS); err != nil {
		return nil, eris.Wrap(err, "raster: target")
	}

	var sample func(*Raster, float64, float64) float64
	switch m {
	case Nearest, "":
		sample = nearest
	case Bilinear:
		sample = bilinear
	case Bicubic:
		sample = bicubic
	default:
		return nil, eris.Errorf("raster: unknown resample method %q", m)
	}

	out := New(dst)
	w, h := float64(src.Grid.Width), float64(src.Grid.Height)
	for row := 0; row < dst.Height; row++ {
		for col := 0; col < dst.Width; col++ {
			fx, fy := src.Grid.Fractional(dst.Center(col, row))
			if fx < -0.5 || fy < -0.5 || fx >= w-0.5 || fy >= h-0.5 {
				continue
			}
			out.Set(col, row, sample(src, fx, fy))
		}
	}
	return out, nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func nearest(src *Raster, fx, fy float64) float64 {
	col := clampIndex(int(math.Floor(fx+0.5)), src.Grid.Width)
	row := clampIndex(int(math.Floor(fy+0.5)), src.Grid.Height)
	return src.At(col, row)
}

// bilinear weights the four surrounding pixels, renormalizing over the
// unmasked ones.
func bilinear(src *Raster, fx, fy float64) float64 {
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	var sum, wsum float64
	for dy := 0; dy <= 1; dy++ {
		wy := 1 - ty
		if dy == 1 {
			wy = ty
		}
		for dx := 0; dx <= 1; dx++ {
			wx := 1 - tx
			if dx == 1 {
				wx = tx
			}
			w := wx * wy
			if w == 0 {
				continue
			}
			v := src.At(clampIndex(x0+dx, src.Grid.Width), clampIndex(y0+dy, src.Grid.Height))
			if math.IsNaN(v) {
				continue
			}
			sum += w * v
			wsum += w
		}
	}
	if wsum == 0 {
		return math.NaN()
	}
	return sum / wsum
}

// cubicWeight is the Catmull-Rom kernel (a = -0.5).
func cubicWeight(t float64) float64 {
	const a = -0.5
	t = math.Abs(t)
	switch {
	case t <= 1:
		return (a+2)*t*t*t - (a+3)*t*t + 1
	case t < 2:
		return a*t*t*t - 5*a*t*t + 8*a*t - 4*a
	default:
		return 0
	}
}

// bicubic uses the 4x4 neighbourhood and falls back to bilinear when any
// neighbour is masked.
func bicubic(src *Raster, fx, fy float64) float64 {
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))

	var sum float64
	for j := -1; j <= 2; j++ {
		wy := cubicWeight(fy - float64(y0+j))
		for i := -1; i <= 2; i++ {
			v := src.At(clampIndex(x0+i, src.Grid.Width), clampIndex(y0+j, src.Grid.Height))
			if math.IsNaN(v) {
				return bilinear(src, fx, fy)
			}
			sum += cubicWeight(fx-float64(x0+i)) * wy * v
		}
	}
	return sum
}
