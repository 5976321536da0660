package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"bloodbank/internal/models"
)

//go:embed seed.json
var seedData []byte

// LoadSeed decodes the built-in demo directory of hospitals and organizations.
func LoadSeed() ([]models.Source, error) {
	var sources []models.Source
	if err := json.Unmarshal(seedData, &sources); err != nil {
		return nil, fmt.Errorf("decode seed catalog: %w", err)
	}
	for i, s := range sources {
		if s.ID == "" || !s.Kind.Valid() {
			return nil, fmt.Errorf("seed source %d: missing id or invalid kind %q", i, s.Kind)
		}
		for bt, n := range s.Inventory {
			if !bt.Valid() || n < 0 {
				return nil, fmt.Errorf("seed source %s: bad inventory entry %s=%d", s.ID, bt, n)
			}
		}
	}
	return sources, nil
}

func NewSeedCatalog() (*MemoryCatalog, error) {
	sources, err := LoadSeed()
	if err != nil {
		return nil, err
	}
	return NewMemoryCatalog(sources...), nil
}
