package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadSeeds reads initial profiles from a JSON file. The file holds an array
// of Seed objects; a missing path yields no seeds rather than an error so
// deployments without seed data need no placeholder file.
func LoadSeeds(path string) ([]Seed, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read policy seeds: %w", err)
	}

	var seeds []Seed
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return nil, fmt.Errorf("parse policy seeds: %w", err)
	}
	return seeds, nil
}
