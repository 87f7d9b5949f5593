package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrMissingKey reports a required instrument setting that the YAML file
// does not provide.
var ErrMissingKey = errors.New("missing configuration key")

// Instrument describes one station: where the instrument stands and the
// metadata attached to every measurement it produces. Coordinates are
// required because the positions in the housekeeping files go stale when an
// instrument is relocated.
type Instrument struct {
	StationLatitude  *float64 `yaml:"station_latitude"`
	StationLongitude *float64 `yaml:"station_longitude"`
	StationAltitude  *float64 `yaml:"station_altitude"`

	StationName  string `yaml:"station_name"`
	InstrumentID string `yaml:"instrument_id"`
	WigosID      string `yaml:"wigos_station_id"`

	// Attributes are copied verbatim into the output metadata.
	Attributes map[string]string `yaml:"attributes"`
}

// LoadInstrument reads and validates a station configuration file.
func LoadInstrument(path string) (*Instrument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading instrument config: %w", err)
	}
	var inst Instrument
	if err := yaml.Unmarshal(raw, &inst); err != nil {
		return nil, fmt.Errorf("parsing instrument config %s: %w", path, err)
	}
	if err := inst.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &inst, nil
}

func (i *Instrument) validate() error {
	switch {
	case i.StationLatitude == nil:
		return fmt.Errorf("%w: station_latitude", ErrMissingKey)
	case i.StationLongitude == nil:
		return fmt.Errorf("%w: station_longitude", ErrMissingKey)
	case i.StationAltitude == nil:
		return fmt.Errorf("%w: station_altitude", ErrMissingKey)
	}
	if *i.StationLatitude < -90 || *i.StationLatitude > 90 {
		return fmt.Errorf("station_latitude %v out of range", *i.StationLatitude)
	}
	if *i.StationLongitude < -180 || *i.StationLongitude > 180 {
		return fmt.Errorf("station_longitude %v out of range", *i.StationLongitude)
	}
	return nil
}
