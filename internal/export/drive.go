package export

import (
	"context"
	"path/filepath"

	"github.com/sells-group/envprep/internal/plan"
)

// Drive writes artifacts into a folder under a local root directory.
type Drive struct {
	Root string
}

// Write implements Destination.
func (d Drive) Write(ctx context.Context, spec plan.ExportSpec, t Table) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	path := filepath.Join(d.Root, spec.Folder, fileName(spec))
	if err := WriteFile(path, spec.Format, t); err != nil {
		return Artifact{}, err
	}
	return Artifact{URI: path, Rows: len(t.Rows)}, nil
}
