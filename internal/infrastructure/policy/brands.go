package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadBrands reads a protected brand list from a YAML or JSON array file.
func LoadBrands(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read brands file: %w", err)
	}
	var brands []string
	if err := yaml.Unmarshal(raw, &brands); err != nil {
		return nil, fmt.Errorf("parse brands file %s: %w", path, err)
	}
	return brands, nil
}
