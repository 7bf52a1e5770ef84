package compliance

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed seed_records.yaml
var defaultSeed []byte

// DefaultSeed returns the built-in demo records
func DefaultSeed() ([]ComplianceRecord, error) {
	return ParseSeed(defaultSeed)
}

// LoadSeedFile reads seed records from a YAML file on disk
func LoadSeedFile(path string) ([]ComplianceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a YAML list of compliance records
func ParseSeed(data []byte) ([]ComplianceRecord, error) {
	var records []ComplianceRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse seed records: %w", err)
	}
	return records, nil
}
