package catalog

import (
	"context"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/image/tiff"

	"github.com/sells-group/envprep/internal/period"
	"github.com/sells-group/envprep/internal/raster"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func dates(t *testing.T, start, end string) period.DateRange {
	t.Helper()
	dr, err := period.ParseDateRange(start, end)
	require.NoError(t, err)
	return dr
}

func tinyRaster(v float64) *raster.Raster {
	g := raster.Grid{CRS: raster.CRS4326, OriginX: 0, OriginY: 1, PixelWidth: 1, PixelHeight: 1, Width: 1, Height: 1}
	r := raster.New(g)
	r.Set(0, 0, v)
	return r
}

type loaded struct {
	SceneRef
	Raster *raster.Raster
}

// loadAll finds and opens every scene matching q.
func loadAll(t *testing.T, c Catalog, q Query) ([]loaded, error) {
	t.Helper()
	refs, err := c.Find(context.Background(), q)
	if err != nil {
		return nil, err
	}
	out := make([]loaded, 0, len(refs))
	for _, ref := range refs {
		r, err := c.Open(context.Background(), ref)
		if err != nil {
			return nil, err
		}
		out = append(out, loaded{SceneRef: ref, Raster: r})
	}
	return out, nil
}

func TestMemory_Load(t *testing.T) {
	m := NewMemory("MODIS/006/MOD13Q1")
	m.Add(Scene{Collection: "MODIS/006/MOD13Q1", Band: "NDVI", Date: day(2002, 2, 18), Raster: tinyRaster(2)})
	m.Add(Scene{Collection: "MODIS/006/MOD13Q1", Band: "NDVI", Date: day(2002, 1, 1), Raster: tinyRaster(1)})
	m.Add(Scene{Collection: "MODIS/006/MOD13Q1", Band: "EVI", Date: day(2002, 1, 1), Raster: tinyRaster(9)})
	m.Add(Scene{Collection: "MODIS/006/MOD13Q1", Band: "NDVI", Date: day(2025, 1, 1), Raster: tinyRaster(3)})

	scenes, err := loadAll(t, m, Query{
		Collection: "MODIS/006/MOD13Q1",
		Band:       "NDVI",
		Dates:      dates(t, "2002-01-01", "2024-12-31"),
		Bound:      orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{-1, -1}},
	})
	require.NoError(t, err)
	require.Len(t, scenes, 2)
	assert.Equal(t, day(2002, 1, 1), scenes[0].Date)
	assert.Equal(t, day(2002, 2, 18), scenes[1].Date)
}

func TestMemory_SpatialFilter(t *testing.T) {
	m := NewMemory()
	m.Add(Scene{Collection: "c", Band: "b", Date: day(2010, 1, 1), Raster: tinyRaster(1)})

	q := Query{Collection: "c", Band: "b", Dates: dates(t, "2010-01-01", "2010-01-31")}
	q.Bound = orb.Bound{Min: orb.Point{50, 50}, Max: orb.Point{51, 51}}
	scenes, err := loadAll(t, m, q)
	require.NoError(t, err)
	assert.Empty(t, scenes)

	q.Bound = orb.Bound{Min: orb.Point{0.2, 0.2}, Max: orb.Point{0.4, 0.4}}
	scenes, err = loadAll(t, m, q)
	require.NoError(t, err)
	assert.Len(t, scenes, 1)
}

func TestMemory_UnknownCollection(t *testing.T) {
	m := NewMemory("a")
	_, err := loadAll(t, m, Query{Collection: "MODIS/999/NOPE"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCollection)
	assert.Contains(t, err.Error(), "MODIS/999/NOPE")
}

func TestMemory_KnownButEmpty(t *testing.T) {
	m := NewMemory("UCSB-CHG/CHIRPS/DAILY")
	scenes, err := loadAll(t, m, Query{
		Collection: "UCSB-CHG/CHIRPS/DAILY",
		Band:       "precipitation",
		Dates:      dates(t, "2002-01-01", "2002-12-31"),
	})
	require.NoError(t, err)
	assert.Empty(t, scenes)
	assert.Equal(t, []string{"UCSB-CHG/CHIRPS/DAILY"}, m.Collections())
}

func writeTIFF(t *testing.T, path string, w, h int, vals []uint16) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for i, v := range vals {
		img.Pix[2*i] = byte(v >> 8)
		img.Pix[2*i+1] = byte(v)
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	require.NoError(t, tiff.Encode(f, img, nil))
}

const manifest = `
collections:
  - id: MODIS/006/MOD11A2
    scenes:
      - band: LST_Day_1km
        date: "2002-01-01"
        file: lst/2002_01_01.tif
        geotransform: [91.0, 0.5, 0, 23.0, 0, -0.5]
        nodata: 0
      - band: LST_Day_1km
        date: "2002-01-09"
        file: lst/2002_01_09.tif
        geotransform: [91.0, 0.5, 0, 23.0, 0, -0.5]
        nodata: 0
  - id: MODIS/006/MOD16A2
    scenes:
      - band: ET
        date: "2002-01-01"
        file: et/2002_01_01.tif
        geotransform: [91.0, 0.5, 0, 23.0, 0, -0.5]
        signed: true
`

func setupDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ManifestName), []byte(manifest), 0o644))
	writeTIFF(t, filepath.Join(root, "lst/2002_01_01.tif"), 2, 2, []uint16{15000, 0, 14000, 16000})
	writeTIFF(t, filepath.Join(root, "lst/2002_01_09.tif"), 2, 2, []uint16{15500, 15500, 15500, 15500})
	writeTIFF(t, filepath.Join(root, "et/2002_01_01.tif"), 2, 2, []uint16{0xFFFF, 10, 20, 30})
	return root
}

func TestDir_Load(t *testing.T) {
	d, err := OpenDir(setupDir(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"MODIS/006/MOD11A2", "MODIS/006/MOD16A2"}, d.Collections())

	scenes, err := loadAll(t, d, Query{
		Collection: "MODIS/006/MOD11A2",
		Band:       "LST_Day_1km",
		Dates:      dates(t, "2002-01-01", "2002-01-31"),
	})
	require.NoError(t, err)
	require.Len(t, scenes, 2)

	r := scenes[0].Raster
	assert.Equal(t, raster.CRS4326, r.Grid.CRS)
	assert.Equal(t, 2, r.Grid.Width)
	assert.InDelta(t, 0.5, r.Grid.PixelHeight, 1e-12)
	assert.InDelta(t, 15000, r.At(0, 0), 0)
	assert.True(t, math.IsNaN(r.At(1, 0)), "nodata is masked")
	assert.InDelta(t, 16000, r.At(1, 1), 0)
}

func TestDir_SignedValues(t *testing.T) {
	d, err := OpenDir(setupDir(t))
	require.NoError(t, err)

	scenes, err := loadAll(t, d, Query{
		Collection: "MODIS/006/MOD16A2",
		Band:       "ET",
		Dates:      dates(t, "2002-01-01", "2002-01-01"),
	})
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.InDelta(t, -1, scenes[0].Raster.At(0, 0), 0)
	assert.InDelta(t, 30, scenes[0].Raster.At(1, 1), 0)
}

func TestDir_FindDoesNotDecode(t *testing.T) {
	root := setupDir(t)
	d, err := OpenDir(root)
	require.NoError(t, err)

	// without a bound Find never reads the file
	require.NoError(t, os.WriteFile(filepath.Join(root, "lst/2002_01_01.tif"), []byte("II*\x00"), 0o644))

	refs, err := d.Find(context.Background(), Query{
		Collection: "MODIS/006/MOD11A2",
		Band:       "LST_Day_1km",
		Dates:      dates(t, "2002-01-05", "2002-12-31"),
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, day(2002, 1, 9), refs[0].Date)

	refs, err = d.Find(context.Background(), Query{
		Collection: "MODIS/006/MOD11A2",
		Band:       "LST_Day_1km",
		Dates:      dates(t, "2002-01-01", "2002-12-31"),
	})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	_, err = d.Open(context.Background(), refs[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lst/2002_01_01.tif")

	_, err = d.Find(context.Background(), Query{Collection: "UCSB-CHG/CHIRPS/DAILY"})
	assert.ErrorIs(t, err, ErrUnknownCollection)
}

func TestDir_FindSpatialFilter(t *testing.T) {
	d, err := OpenDir(setupDir(t))
	require.NoError(t, err)

	q := Query{
		Collection: "MODIS/006/MOD11A2",
		Band:       "LST_Day_1km",
		Dates:      dates(t, "2002-01-01", "2002-01-31"),
		Bound:      orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{11, 11}},
	}
	refs, err := d.Find(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, refs)

	q.Bound = orb.Bound{Min: orb.Point{91.2, 22.2}, Max: orb.Point{91.4, 22.4}}
	refs, err = d.Find(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestRequire(t *testing.T) {
	m := NewMemory("a", "b")
	require.NoError(t, Require(m, "a", "b"))

	err := Require(m, "a", "MODIS/999/NOPE")
	assert.ErrorIs(t, err, ErrUnknownCollection)
	assert.Contains(t, err.Error(), "MODIS/999/NOPE")
}

func TestOpenDir_Errors(t *testing.T) {
	_, err := OpenDir(t.TempDir())
	require.Error(t, err)

	root := t.TempDir()
	bad := "collections:\n  - id: x\n    scenes:\n      - band: b\n        date: \"2002-01-01\"\n        file: f.tif\n        geotransform: [0, 1, 0, 0, 0, 1]\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ManifestName), []byte(bad), 0o644))
	_, err = OpenDir(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "north-up")

	badDate := "collections:\n  - id: x\n    scenes:\n      - band: b\n        date: 2002/01/01\n        file: f.tif\n        geotransform: [0, 1, 0, 0, 0, -1]\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ManifestName), []byte(badDate), 0o644))
	_, err = OpenDir(root)
	require.Error(t, err)
}

func TestDir_MissingFile(t *testing.T) {
	root := setupDir(t)
	require.NoError(t, os.Remove(filepath.Join(root, "et/2002_01_01.tif")))
	d, err := OpenDir(root)
	require.NoError(t, err)

	_, err = loadAll(t, d, Query{
		Collection: "MODIS/006/MOD16A2",
		Band:       "ET",
		Dates:      dates(t, "2002-01-01", "2002-01-31"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "et/2002_01_01.tif")
}
