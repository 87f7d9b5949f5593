package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Quality holds the per-station tuning of the quality checks. Pointer fields
// distinguish "not set, use the default" from an explicit zero.
type Quality struct {
	CheckMissing  *bool    `yaml:"check_missing"`
	CheckTbRange  *bool    `yaml:"check_tb_range"`
	TbMin         *float64 `yaml:"tb_min"`
	TbMax         *float64 `yaml:"tb_max"`
	CheckSpectral *bool    `yaml:"check_spectral"`
	SpectralSigma *float64 `yaml:"spectral_sigma"`
	CheckReceiver *bool    `yaml:"check_receiver"`
	CheckRain     *bool    `yaml:"check_rain"`
	CheckSun      *bool    `yaml:"check_sun"`
	SunTolerance  *float64 `yaml:"sun_tolerance"`
	CheckTbOffset *bool    `yaml:"check_tb_offset"`
}

// LoadQuality reads a quality configuration file. An empty path returns an
// empty override set, leaving every check at its default.
func LoadQuality(path string) (*Quality, error) {
	if path == "" {
		return &Quality{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading quality config: %w", err)
	}
	var q Quality
	if err := yaml.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("parsing quality config %s: %w", path, err)
	}
	return &q, nil
}
