package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFillValue replaces NaN in the written output when the schema does
// not declare its own fill value.
const DefaultFillValue = -999.0

// SchemaVariable selects one measurement column for the output and
// optionally renames it to the field the downstream schema expects.
type SchemaVariable struct {
	Name     string `yaml:"name"`
	Rename   string `yaml:"rename"`
	Optional bool   `yaml:"optional"`
}

// OutputName returns the field name the variable is written under.
func (v SchemaVariable) OutputName() string {
	if v.Rename != "" {
		return v.Rename
	}
	return v.Name
}

// OutputSchema projects an assembled measurement onto the columns the
// downstream file writer expects. Without a schema every column is written
// under its internal name.
type OutputSchema struct {
	FillValue *float64         `yaml:"fill_value"`
	Variables []SchemaVariable `yaml:"variables"`
}

// Fill returns the configured fill value or the default.
func (s *OutputSchema) Fill() float64 {
	if s != nil && s.FillValue != nil {
		return *s.FillValue
	}
	return DefaultFillValue
}

// LoadOutputSchema reads and validates an output schema file. An empty path
// returns nil, meaning no projection.
func LoadOutputSchema(path string) (*OutputSchema, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading output schema: %w", err)
	}
	var s OutputSchema
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing output schema %s: %w", path, err)
	}
	if len(s.Variables) == 0 {
		return nil, fmt.Errorf("%s: %w: variables", path, ErrMissingKey)
	}
	seen := make(map[string]bool, len(s.Variables))
	for _, v := range s.Variables {
		if v.Name == "" {
			return nil, fmt.Errorf("%s: %w: variable name", path, ErrMissingKey)
		}
		if seen[v.OutputName()] {
			return nil, fmt.Errorf("%s: duplicate output variable %s", path, v.OutputName())
		}
		seen[v.OutputName()] = true
	}
	return &s, nil
}
