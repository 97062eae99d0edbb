package catalog

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/envprep/internal/period"
	"github.com/sells-group/envprep/internal/raster"
)

// ManifestName is the file a Dir catalog reads from its root.
const ManifestName = "catalog.yaml"

// Manifest lists the scenes of a directory catalog.
type Manifest struct {
	Collections []CollectionEntry `yaml:"collections"`
}

// CollectionEntry describes one collection.
type CollectionEntry struct {
	ID     string       `yaml:"id"`
	CRS    string       `yaml:"crs"`
	Scenes []SceneEntry `yaml:"scenes"`
}

// SceneEntry points at a single-band 16-bit TIFF. GeoTransform uses the GDAL
// convention: [originX, pixelWidth, 0, originY, 0, -pixelHeight]. When it is
// omitted the file's ModelPixelScale and ModelTiepoint tags are used.
type SceneEntry struct {
	Band         string     `yaml:"band"`
	Date         string     `yaml:"date"`
	File         string     `yaml:"file"`
	GeoTransform [6]float64 `yaml:"geotransform"`
	NoData       *float64   `yaml:"nodata,omitempty"`
	Signed       bool       `yaml:"signed,omitempty"`
}

// Dir is a catalog rooted at a directory holding catalog.yaml and TIFF scenes.
// Scenes are decoded on demand.
type Dir struct {
	root        string
	collections map[string]CollectionEntry
}

// OpenDir reads and validates the manifest under root.
func OpenDir(root string) (*Dir, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestName))
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read manifest in %s", root)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "catalog: parse manifest")
	}

	d := &Dir{root: root, collections: make(map[string]CollectionEntry, len(m.Collections))}
	for _, c := range m.Collections {
		if c.ID == "" {
			return nil, eris.New("catalog: manifest collection without id")
		}
		if c.CRS == "" {
			c.CRS = raster.CRS4326
		}
		for i, s := range c.Scenes {
			if _, err := time.Parse(period.DateLayout, s.Date); err != nil {
				return nil, eris.Wrapf(err, "catalog: %s scene %d date", c.ID, i)
			}
			if s.GeoTransform == ([6]float64{}) {
				continue
			}
			if s.GeoTransform[1] <= 0 || s.GeoTransform[5] >= 0 || s.GeoTransform[2] != 0 || s.GeoTransform[4] != 0 {
				return nil, eris.Errorf("catalog: %s scene %d geotransform must be north-up", c.ID, i)
			}
		}
		d.collections[c.ID] = c
	}
	return d, nil
}

// Collections lists the manifest collection ids in sorted order.
func (d *Dir) Collections() []string {
	out := make([]string, 0, len(d.collections))
	for id := range d.collections {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Find returns refs to the matching scenes ordered by date. Scene headers
// are read only when q has a spatial bound; pixels are never decoded.
func (d *Dir) Find(ctx context.Context, q Query) ([]SceneRef, error) {
	c, ok := d.collections[q.Collection]
	if !ok {
		return nil, unknown(q.Collection)
	}

	var out []SceneRef
	for i, e := range c.Scenes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date, _ := time.Parse(period.DateLayout, e.Date)
		if e.Band != q.Band || !q.Dates.Contains(date) {
			continue
		}
		if q.spatial() {
			g, err := d.grid(e, c.CRS)
			if err != nil {
				return nil, eris.Wrapf(err, "catalog: find %s %s", q.Collection, e.File)
			}
			if !q.matches(e.Band, date, g.Bound()) {
				continue
			}
		}
		out = append(out, SceneRef{Collection: q.Collection, Band: e.Band, Date: date, index: i})
	}
	sortRefs(out)

	zap.L().Debug("catalog: found scenes",
		zap.String("collection", q.Collection),
		zap.String("band", q.Band),
		zap.Int("scenes", len(out)),
	)
	return out, nil
}

// Open decodes the scene behind ref.
func (d *Dir) Open(ctx context.Context, ref SceneRef) (*raster.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, ok := d.collections[ref.Collection]
	if !ok {
		return nil, unknown(ref.Collection)
	}
	if ref.index < 0 || ref.index >= len(c.Scenes) {
		return nil, badRef(ref)
	}
	e := c.Scenes[ref.index]
	r, err := d.decode(e, c.CRS)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open %s %s", ref.Collection, e.File)
	}
	return r, nil
}

// grid reads only the TIFF header of e.
func (d *Dir) grid(e SceneEntry, crs string) (raster.Grid, error) {
	f, err := os.Open(filepath.Join(d.root, e.File))
	if err != nil {
		return raster.Grid{}, eris.Wrap(err, "open scene")
	}
	defer f.Close() //nolint:errcheck

	h, err := readHeader(f)
	if err != nil {
		return raster.Grid{}, err
	}
	gt, err := e.geoTransform(h)
	if err != nil {
		return raster.Grid{}, err
	}
	return GridFromGeoTransform(crs, gt, image.Rect(0, 0, h.width, h.height)), nil
}

func (d *Dir) decode(e SceneEntry, crs string) (*raster.Raster, error) {
	f, err := os.Open(filepath.Join(d.root, e.File))
	if err != nil {
		return nil, eris.Wrap(err, "open scene")
	}
	defer f.Close() //nolint:errcheck

	h, err := readHeader(f)
	if err != nil {
		return nil, err
	}
	gt, err := e.geoTransform(h)
	if err != nil {
		return nil, err
	}
	img, err := tiff.Decode(f)
	if err != nil {
		return nil, eris.Wrap(err, "decode tiff")
	}
	return FromImage(img, GridFromGeoTransform(crs, gt, img.Bounds()), e.NoData, e.Signed)
}

// geoTransform prefers the manifest geotransform and falls back to the
// file's GeoTIFF tags.
func (e SceneEntry) geoTransform(h header) ([6]float64, error) {
	if e.GeoTransform != ([6]float64{}) {
		return e.GeoTransform, nil
	}
	gt, ok := h.geoTransform()
	if !ok {
		return gt, eris.New("no geotransform in the manifest and no GeoTIFF tags")
	}
	return gt, nil
}

// GridFromGeoTransform builds a raster grid from a GDAL geotransform and the
// image size.
func GridFromGeoTransform(crs string, gt [6]float64, b image.Rectangle) raster.Grid {
	return raster.Grid{
		CRS:         crs,
		OriginX:     gt[0],
		OriginY:     gt[3],
		PixelWidth:  gt[1],
		PixelHeight: -gt[5],
		Width:       b.Dx(),
		Height:      b.Dy(),
	}
}

// FromImage converts a 16-bit (or 8-bit) grayscale image into a raster. Raw
// values equal to nodata are masked; signed reinterprets the 16 bits as int16.
func FromImage(img image.Image, g raster.Grid, nodata *float64, signed bool) (*raster.Raster, error) {
	b := img.Bounds()
	r := raster.New(g)

	var at func(x, y int) float64
	switch im := img.(type) {
	case *image.Gray16:
		at = func(x, y int) float64 {
			v := im.Gray16At(x, y).Y
			if signed {
				return float64(int16(v))
			}
			return float64(v)
		}
	case *image.Gray:
		at = func(x, y int) float64 { return float64(im.GrayAt(x, y).Y) }
	default:
		return nil, eris.Errorf("catalog: unsupported image type %T, want single-band grayscale", img)
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := at(b.Min.X+x, b.Min.Y+y)
			if nodata != nil && v == *nodata {
				continue
			}
			r.Set(x, y, v)
		}
	}
	return r, nil
}
