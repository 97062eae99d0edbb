package catalog

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/rotisserie/eris"
)

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922

	typeShort  = 3
	typeLong   = 4
	typeDouble = 12

	maxDoubles = 1 << 16
)

// header is what a scene's first IFD says about its size and placement.
type header struct {
	width    int
	height   int
	scale    []float64 // ModelPixelScale: sx, sy, sz
	tiepoint []float64 // ModelTiepoint: i, j, k, x, y, z
}

// readHeader reads the first IFD of a classic TIFF without touching pixel data.
func readHeader(r io.ReaderAt) (header, error) {
	var buf [8]byte
	if _, err := r.ReadAt(buf[:], 0); err != nil {
		return header{}, eris.Wrap(err, "read tiff header")
	}
	var bo binary.ByteOrder
	switch string(buf[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return header{}, eris.New("not a tiff file")
	}
	if bo.Uint16(buf[2:4]) != 42 {
		return header{}, eris.New("not a classic tiff file")
	}

	off := int64(bo.Uint32(buf[4:8]))
	if _, err := r.ReadAt(buf[:2], off); err != nil {
		return header{}, eris.Wrap(err, "read tiff ifd")
	}
	ifd := make([]byte, 12*int(bo.Uint16(buf[:2])))
	if _, err := r.ReadAt(ifd, off+2); err != nil {
		return header{}, eris.Wrap(err, "read tiff ifd")
	}

	var h header
	for p := 0; p+12 <= len(ifd); p += 12 {
		e := ifd[p : p+12]
		tag, typ, count := bo.Uint16(e[0:2]), bo.Uint16(e[2:4]), bo.Uint32(e[4:8])
		switch tag {
		case tagImageWidth, tagImageLength:
			var v int
			switch typ {
			case typeShort:
				v = int(bo.Uint16(e[8:10]))
			case typeLong:
				v = int(bo.Uint32(e[8:12]))
			default:
				return header{}, eris.Errorf("tiff tag %d has type %d", tag, typ)
			}
			if tag == tagImageWidth {
				h.width = v
			} else {
				h.height = v
			}
		case tagModelPixelScale, tagModelTiepoint:
			if typ != typeDouble || count == 0 || count > maxDoubles {
				return header{}, eris.Errorf("geotiff tag %d has type %d and count %d", tag, typ, count)
			}
			raw := make([]byte, 8*int(count))
			if _, err := r.ReadAt(raw, int64(bo.Uint32(e[8:12]))); err != nil {
				return header{}, eris.Wrapf(err, "read geotiff tag %d", tag)
			}
			vals := make([]float64, count)
			for i := range vals {
				vals[i] = math.Float64frombits(bo.Uint64(raw[8*i:]))
			}
			if tag == tagModelPixelScale {
				h.scale = vals
			} else {
				h.tiepoint = vals
			}
		}
	}
	if h.width <= 0 || h.height <= 0 {
		return header{}, eris.New("tiff has no image size")
	}
	return h, nil
}

// geoTransform derives a north-up GDAL geotransform from the first tiepoint
// and the pixel scale.
func (h header) geoTransform() ([6]float64, bool) {
	if len(h.scale) < 2 || len(h.tiepoint) < 6 || h.scale[0] <= 0 || h.scale[1] <= 0 {
		return [6]float64{}, false
	}
	sx, sy := h.scale[0], h.scale[1]
	i, j, x, y := h.tiepoint[0], h.tiepoint[1], h.tiepoint[3], h.tiepoint[4]
	return [6]float64{x - i*sx, sx, 0, y + j*sy, 0, -sy}, true
}
