package geometry

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/envprep/internal/fetcher"
)

// Load reads a study area from a local path or an http(s)/ftp URL. The format
// follows the extension: .geojson/.json, .shp, or .zip (zipped shapefile).
// A nil fetcher uses the default router.
func Load(ctx context.Context, src string, f fetcher.Fetcher) (Area, error) {
	log := zap.L().With(zap.String("component", "geometry"), zap.String("src", src))

	local := src
	if fetcher.IsRemote(src) {
		if f == nil {
			f = fetcher.NewRouter("")
		}
		tmp, err := os.MkdirTemp("", "envprep-area-*")
		if err != nil {
			return Area{}, eris.Wrap(err, "geometry: create temp dir")
		}
		defer os.RemoveAll(tmp) //nolint:errcheck

		u, err := url.Parse(src)
		if err != nil {
			return Area{}, eris.Wrapf(err, "geometry: parse url %q", src)
		}
		name := path.Base(u.Path)
		if name == "" || name == "/" || name == "." {
			name = "area.geojson"
		}
		local = filepath.Join(tmp, name)

		n, err := f.DownloadToFile(ctx, src, local)
		if err != nil {
			return Area{}, eris.Wrapf(err, "geometry: download %s", src)
		}
		log.Debug("downloaded study area", zap.Int64("bytes", n))
	}

	area, err := loadLocal(local)
	if err != nil {
		return Area{}, err
	}
	if area.IsEmpty() {
		log.Warn("study area has no polygons with positive area")
	}
	return area, nil
}

func loadLocal(p string) (Area, error) {
	base := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))

	switch strings.ToLower(filepath.Ext(p)) {
	case ".geojson", ".json":
		data, err := os.ReadFile(p)
		if err != nil {
			return Area{}, eris.Wrapf(err, "geometry: read %s", p)
		}
		return ParseGeoJSON(data, base)
	case ".shp":
		return ReadShapefile(p)
	case ".zip":
		tmp, err := os.MkdirTemp("", "envprep-shp-*")
		if err != nil {
			return Area{}, eris.Wrap(err, "geometry: create temp dir")
		}
		defer os.RemoveAll(tmp) //nolint:errcheck

		shpPath, err := fetcher.ExtractShapefile(p, tmp)
		if err != nil {
			return Area{}, eris.Wrapf(err, "geometry: unpack %s", p)
		}
		area, err := ReadShapefile(shpPath)
		if err != nil {
			return Area{}, err
		}
		area.Name = base
		return area, nil
	default:
		return Area{}, eris.Errorf("geometry: unsupported study area format %q", filepath.Ext(p))
	}
}
