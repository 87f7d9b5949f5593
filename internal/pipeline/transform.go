package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeteoSwiss/mwr-raw2l1/internal/config"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/measurement"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/observability"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/quality"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/rpg"
)

// decodeOrder fixes the family iteration so log output and metric updates
// are deterministic.
var decodeOrder = []rpg.Kind{rpg.KindBRT, rpg.KindBLB, rpg.KindIRT, rpg.KindMET, rpg.KindHKD}

// MWRTransformer decodes the files of one observation unit, assembles the
// measurement, and applies the quality checks. Corrupt files are logged and
// skipped so a single bad file never loses the rest of the unit; assembly or
// flagging failures abort the unit.
type MWRTransformer struct {
	station measurement.Station
	opts    measurement.Options
	quality quality.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewTransformer creates an MWRTransformer for the given station.
func NewTransformer(inst *config.Instrument, q quality.Config, acceptLocaltime bool,
	logger *slog.Logger, metrics *observability.Metrics) *MWRTransformer {
	return &MWRTransformer{
		station: measurement.Station{
			Latitude:  *inst.StationLatitude,
			Longitude: *inst.StationLongitude,
			Altitude:  *inst.StationAltitude,
		},
		opts:    measurement.Options{AcceptLocaltime: acceptLocaltime},
		quality: q,
		logger:  logger,
		metrics: metrics,
	}
}

func (t *MWRTransformer) Transform(ctx context.Context, fs FileSet) (*Output, error) {
	var in measurement.Input
	for _, kind := range decodeOrder {
		for _, path := range fs.Files[kind] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			frame, err := t.decodeFile(kind, path)
			if err != nil {
				t.logger.Warn("skipping undecodable file",
					"unit", fs.Name, "file", filepath.Base(path), "error", err)
				t.metrics.DecodeFailures.WithLabelValues(kind.String(), failureReason(err)).Inc()
				continue
			}
			t.metrics.FilesDecoded.WithLabelValues(kind.String()).Inc()
			switch kind {
			case rpg.KindBRT:
				in.BRT = append(in.BRT, frame)
			case rpg.KindBLB:
				in.BLB = append(in.BLB, frame)
			case rpg.KindIRT:
				in.IRT = append(in.IRT, frame)
			case rpg.KindMET:
				in.MET = append(in.MET, frame)
			case rpg.KindHKD:
				in.HKD = append(in.HKD, frame)
			}
		}
	}

	m, err := measurement.Assemble(in, t.station, t.opts, t.logger)
	if err != nil {
		return nil, fmt.Errorf("assembling unit %s: %w", fs.Name, err)
	}
	if err := quality.Apply(m, t.quality, t.logger); err != nil {
		return nil, fmt.Errorf("flagging unit %s: %w", fs.Name, err)
	}
	t.countFlagBits(m)

	return &Output{Unit: fs.Name, Measurement: m}, nil
}

func (t *MWRTransformer) decodeFile(kind rpg.Kind, path string) (*rpg.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return rpg.Decode(kind, data)
}

func (t *MWRTransformer) countFlagBits(m *measurement.Measurement) {
	flags, ok := m.Vars[quality.FlagVar]
	if !ok {
		return
	}
	counts := make(map[uint16]int)
	for _, x := range flags.Data {
		mask := uint16(x)
		for bit := range quality.CheckNames {
			if mask&bit != 0 {
				counts[bit]++
			}
		}
	}
	for bit, n := range counts {
		t.metrics.FlagBitsRaised.WithLabelValues(quality.CheckNames[bit]).Add(float64(n))
	}
}

// failureReason buckets a decode error for the failure metric.
func failureReason(err error) string {
	switch {
	case errors.Is(err, rpg.ErrUnknownFileType):
		return "unknown_filetype"
	case errors.Is(err, rpg.ErrWrongFileType):
		return "wrong_filetype"
	case errors.Is(err, rpg.ErrFileTooShort):
		return "too_short"
	case errors.Is(err, rpg.ErrFileTooLong):
		return "too_long"
	case errors.Is(err, rpg.ErrCoordinate):
		return "bad_coordinate"
	case errors.Is(err, rpg.ErrUnknownFlagValue):
		return "unknown_flag"
	case errors.Is(err, rpg.ErrWrongNumberOfChannels):
		return "wrong_channels"
	case errors.Is(err, rpg.ErrDecode):
		return "decode"
	default:
		return "read"
	}
}

// QualityConfig merges the per-station overrides onto the default check set.
func QualityConfig(q *config.Quality) quality.Config {
	cfg := quality.DefaultConfig()
	if q == nil {
		return cfg
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setBool(&cfg.CheckMissing, q.CheckMissing)
	setBool(&cfg.CheckTbRange, q.CheckTbRange)
	setFloat(&cfg.TbMin, q.TbMin)
	setFloat(&cfg.TbMax, q.TbMax)
	setBool(&cfg.CheckSpectral, q.CheckSpectral)
	setFloat(&cfg.SpectralSigma, q.SpectralSigma)
	setBool(&cfg.CheckReceiver, q.CheckReceiver)
	setBool(&cfg.CheckRain, q.CheckRain)
	setBool(&cfg.CheckSun, q.CheckSun)
	setFloat(&cfg.SunTolerance, q.SunTolerance)
	setBool(&cfg.CheckTbOffset, q.CheckTbOffset)
	return cfg
}
