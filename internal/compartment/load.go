package compartment

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadManifest reads a compartment manifest from a JSON file shaped
// like {"compartments": [{"pkey": 1, "extra_libraries": ["libfoo"]}]}.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("compartment: %w", err)
	}
	var raw struct {
		Compartments []struct {
			Pkey           int      `json:"pkey"`
			ExtraLibraries []string `json:"extra_libraries"`
		} `json:"compartments"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Manifest{}, fmt.Errorf("compartment: invalid manifest %s: %w", path, err)
	}
	m := Manifest{}
	for _, c := range raw.Compartments {
		m.Compartments = append(m.Compartments, Compartment{Pkey: c.Pkey, ExtraLibraries: c.ExtraLibraries})
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
