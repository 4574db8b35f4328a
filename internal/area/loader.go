package area

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Load reads a containment graph from a YAML file.
func Load(path string) (*Hierarchy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "area: read %s", path)
	}

	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, eris.Wrapf(err, "area: parse %s", path)
	}

	return New(g), nil
}
