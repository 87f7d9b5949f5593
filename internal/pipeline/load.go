package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/MeteoSwiss/mwr-raw2l1/internal/config"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/rpg"
)

// ErrSchemaVariable reports a non-optional schema variable the assembled
// measurement does not carry.
var ErrSchemaVariable = errors.New("schema variable not in measurement")

// Document is the on-disk representation of one processed unit, ready for
// the downstream file writer. NaN is replaced by the schema fill value
// because JSON has no representation for it.
type Document struct {
	Unit        string            `json:"unit"`
	ProcessedAt time.Time         `json:"processed_at"`
	Station     StationMeta       `json:"station"`
	FillValue   float64           `json:"fill_value"`
	Time        []time.Time       `json:"time"`
	Frequency   []float64         `json:"frequency_ghz,omitempty"`
	Wavelength  []float64         `json:"ir_wavelength_um,omitempty"`
	ScanEle     []float64         `json:"scan_elevations_deg,omitempty"`
	Variables   map[string]Column `json:"variables"`
}

// StationMeta carries the site description into the output.
type StationMeta struct {
	Name      string            `json:"name,omitempty"`
	WigosID   string            `json:"wigos_station_id,omitempty"`
	Latitude  float64           `json:"latitude"`
	Longitude float64           `json:"longitude"`
	Altitude  float64           `json:"altitude"`
	Extra     map[string]string `json:"attributes,omitempty"`
}

// Column is one output variable. Values are row-major with Channels values
// per time sample.
type Column struct {
	Channels int       `json:"channels"`
	Values   []float64 `json:"values"`
}

// FileLoader writes each processed unit as a JSON document, optionally
// projected through an output schema.
type FileLoader struct {
	dir    string
	inst   *config.Instrument
	schema *config.OutputSchema
	logger *slog.Logger
}

// NewFileLoader creates a FileLoader writing into dir. A nil schema writes
// every column under its internal name.
func NewFileLoader(dir string, inst *config.Instrument, schema *config.OutputSchema,
	logger *slog.Logger) *FileLoader {
	return &FileLoader{dir: dir, inst: inst, schema: schema, logger: logger}
}

func (l *FileLoader) Load(_ context.Context, out *Output) error {
	doc, err := BuildDocument(out, l.inst, l.schema)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding unit %s: %w", out.Unit, err)
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(l.dir, out.Unit+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing unit %s: %w", out.Unit, err)
	}
	l.logger.Debug("unit written", "path", path)
	return nil
}

// BuildDocument projects a measurement into its output document.
func BuildDocument(out *Output, inst *config.Instrument, schema *config.OutputSchema) (*Document, error) {
	m := out.Measurement
	fill := schema.Fill()

	doc := &Document{
		Unit:        out.Unit,
		ProcessedAt: m.ProcessedAt,
		Station: StationMeta{
			Name:      inst.StationName,
			WigosID:   inst.WigosID,
			Latitude:  m.Station.Latitude,
			Longitude: m.Station.Longitude,
			Altitude:  m.Station.Altitude,
			Extra:     inst.Attributes,
		},
		FillValue:  fill,
		Time:       m.Time,
		Frequency:  m.Freq,
		Wavelength: filled(m.Wavelength, fill),
		ScanEle:    m.ScanEle,
		Variables:  make(map[string]Column),
	}

	if schema == nil {
		for name, v := range m.Vars {
			doc.Variables[name] = column(v, fill)
		}
		return doc, nil
	}
	for _, sv := range schema.Variables {
		v, ok := m.Vars[sv.Name]
		if !ok {
			if sv.Optional {
				continue
			}
			return nil, fmt.Errorf("%w: %s", ErrSchemaVariable, sv.Name)
		}
		doc.Variables[sv.OutputName()] = column(v, fill)
	}
	return doc, nil
}

func column(v rpg.Var, fill float64) Column {
	return Column{Channels: v.Width, Values: filled(v.Data, fill)}
}

func filled(data []float64, fill float64) []float64 {
	if data == nil {
		return nil
	}
	out := make([]float64, len(data))
	for i, x := range data {
		if math.IsNaN(x) {
			out[i] = fill
		} else {
			out[i] = x
		}
	}
	return out
}
