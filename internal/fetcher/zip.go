package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// shapefileParts are the members of a shapefile bundle envprep reads.
var shapefileParts = map[string]bool{
	".shp": true, ".shx": true, ".dbf": true, ".prj": true, ".cpg": true,
}

// ExtractShapefile unpacks the shapefile members of a zip bundle flat into
// destDir and returns the path of the single .shp. Bundles often nest the
// files in a folder; other members are skipped.
func ExtractShapefile(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: open zip %s", filepath.Base(zipPath))
	}
	defer r.Close() //nolint:errcheck

	var shp []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !filepath.IsLocal(f.Name) {
			continue
		}
		name := path.Base(f.Name)
		if strings.HasPrefix(name, ".") || !shapefileParts[strings.ToLower(path.Ext(name))] {
			continue
		}
		dest := filepath.Join(destDir, name)
		if err := extractMember(f, dest); err != nil {
			return "", err
		}
		if strings.EqualFold(path.Ext(name), ".shp") {
			shp = append(shp, dest)
		}
	}

	switch len(shp) {
	case 1:
		return shp[0], nil
	case 0:
		return "", eris.Errorf("fetcher: no .shp member in %s", filepath.Base(zipPath))
	default:
		return "", eris.Errorf("fetcher: %d .shp members in %s, expected 1", len(shp), filepath.Base(zipPath))
	}
}

func extractMember(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "fetcher: open zip member %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "fetcher: create %s", dest)
	}
	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return eris.Wrapf(err, "fetcher: extract %s", f.Name)
}
