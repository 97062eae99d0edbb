package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ToYAML encodes the plan as YAML.
func (p Plan) ToYAML() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "plan: encode json")
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "plan: re-decode json")
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "plan: encode yaml")
	}
	return out, nil
}

// FromYAML decodes a plan written by ToYAML.
func FromYAML(data []byte) (Plan, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Plan{}, eris.Wrap(err, "plan: decode yaml")
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return Plan{}, eris.Wrap(err, "plan: convert yaml")
	}
	return FromJSON(js)
}

// FromJSON decodes a plan.
func FromJSON(data []byte) (Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return Plan{}, eris.Wrap(err, "plan: decode json")
	}
	return p, nil
}

// ReadFile loads a plan from a .json, .yaml or .yml file.
func ReadFile(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, eris.Wrapf(err, "plan: read %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FromJSON(data)
	case ".yaml", ".yml":
		return FromYAML(data)
	default:
		return Plan{}, eris.Errorf("plan: unsupported file extension %q", filepath.Ext(path))
	}
}

// WriteFile stores the plan as JSON or YAML depending on the extension.
func WriteFile(p Plan, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(p, "", "  ")
	case ".yaml", ".yml":
		data, err = p.ToYAML()
	default:
		return eris.Errorf("plan: unsupported file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return eris.Wrap(err, "plan: encode")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "plan: write %s", path)
	}
	return nil
}

// Graph renders the request as one line per step, in evaluation order.
func (p Plan) Graph() []string {
	lines := []string{
		fmt.Sprintf("area %q (%d polygons)", p.Area.Name, len(p.Area.Shape)),
		fmt.Sprintf("periods %04d-%02d..%04d-%02d (%d composites)",
			p.Periods.YearStart, p.Periods.MonthStart, p.Periods.YearEnd, p.Periods.MonthEnd, p.Periods.Len()),
	}
	dr, _ := p.Dates.MarshalText()
	for _, c := range p.Collections {
		t := c.Transform
		step := fmt.Sprintf("load %s[%s] %s -> %s %s@%gm", c.ID, c.Band, dr, t.Resample, t.CRS, t.Scale)
		if t.Convert != nil {
			step += fmt.Sprintf(" -> value*%g%+g", t.Convert.Scale, t.Convert.Offset)
		}
		step += " -> " + t.Rename + " -> monthly mean"
		lines = append(lines, step)
	}
	lines = append(lines,
		"stack "+strings.Join(p.Bands(), ", ")+" + year, month, system:time_start",
		fmt.Sprintf("sample scale=%gm geometries=%t drop_nulls=%t", p.Sample.Scale, p.Sample.Geometries, p.Sample.DropNulls),
		fmt.Sprintf("export %s -> %s", p.ArtifactName(), p.Export.Destination),
	)
	return lines
}
