package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Seed lists bank contents created at startup when missing.
type Seed struct {
	Currencies []SeedCurrency `yaml:"currencies"`
}

// SeedCurrency describes one currency to create.
type SeedCurrency struct {
	Name string `yaml:"name"`
	Memo string `yaml:"memo"`
}

// LoadSeed reads a YAML seed file. An empty path yields an empty seed.
func LoadSeed(path string) (Seed, error) {
	if path == "" {
		return Seed{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed YAML and rejects unnamed currencies.
func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed file: %w", err)
	}
	for i, c := range seed.Currencies {
		if c.Name == "" {
			return Seed{}, fmt.Errorf("seed currency %d has no name", i)
		}
	}
	return seed, nil
}
