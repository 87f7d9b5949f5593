// Package quality derives per-sample, per-channel quality flags for an
// assembled measurement. Each check owns one bit in the flag word; a matching
// status word records checks that could not be performed because their
// prerequisite data was missing. Flag bits follow the order established by
// the downstream level-1 schema, so consumers can rely on bit positions.
package quality

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/MeteoSwiss/mwr-raw2l1/internal/measurement"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/rpg"
)

// Flag bits, one per check. The quality_flag column carries the OR of the
// bits whose check fired; quality_flag_status carries the bits whose check
// could not run.
const (
	FlagMissingTb uint16 = 1 << iota
	FlagTbBelowThreshold
	FlagTbAboveThreshold
	FlagSpectralConsistency
	FlagReceiverSanity
	FlagRain
	FlagSunInBeam
	FlagTbOffset
)

// CheckNames maps each flag bit to the name of its check, for reporting.
var CheckNames = map[uint16]string{
	FlagMissingTb:           "missing_tb",
	FlagTbBelowThreshold:    "tb_below_threshold",
	FlagTbAboveThreshold:    "tb_above_threshold",
	FlagSpectralConsistency: "spectral_consistency",
	FlagReceiverSanity:      "receiver_sanity",
	FlagRain:                "rain",
	FlagSunInBeam:           "sun_in_beam",
	FlagTbOffset:            "tb_offset",
}

// FlagVar and FlagStatusVar are the column names the engine adds to the
// measurement.
const (
	FlagVar       = "quality_flag"
	FlagStatusVar = "quality_flag_status"
)

// ErrMissingVariable reports that the measurement lacks the brightness
// temperature column the engine is built around.
var ErrMissingVariable = errors.New("required variable missing")

// receiverBands partitions the frequency axis into receiver bands. Channels
// falling between consecutive limits share a receiver and are checked
// against each other. The K band is (12, 40] GHz, the V band (40, 75].
var receiverBands = []float64{0, 1, 2, 4, 8, 12, 40, 75, 110, 300, math.Inf(1)}

const (
	bandK = 6 // index into receiverBands of the K band upper limit
	bandV = 7
)

// Config enables individual checks and sets their thresholds. The zero value
// disables everything; use DefaultConfig for the standard set.
type Config struct {
	CheckMissing  bool
	CheckTbRange  bool
	TbMin         float64 // K, physical lower bound is the cosmic background
	TbMax         float64 // K
	CheckSpectral bool
	SpectralSigma float64 // deviations from the receiver mean, in std devs
	CheckReceiver bool
	CheckRain     bool
	CheckSun      bool
	SunTolerance  float64 // degrees between beam and sun considered hit
	CheckTbOffset bool
}

// DefaultConfig returns the standard check set. The offset check stays off
// because it needs an external reference climatology.
func DefaultConfig() Config {
	return Config{
		CheckMissing:  true,
		CheckTbRange:  true,
		TbMin:         2.7,
		TbMax:         330,
		CheckSpectral: true,
		SpectralSigma: 5,
		CheckReceiver: true,
		CheckRain:     true,
		CheckSun:      true,
		SunTolerance:  7,
	}
}

// Apply runs every enabled check and stores the resulting flag and status
// words as channel-wide columns on the measurement.
func Apply(m *measurement.Measurement, cfg Config, logger *slog.Logger) error {
	tb, ok := m.Vars["tb"]
	if !ok {
		return fmt.Errorf("%w: tb", ErrMissingVariable)
	}
	nCh := tb.Width
	if len(m.Freq) != nCh {
		return fmt.Errorf("%w: %d frequencies for %d channels",
			measurement.ErrDimension, len(m.Freq), nCh)
	}
	n := len(m.Time)

	flags := make([][]uint16, n)
	status := make([][]uint16, n)
	for i := range flags {
		flags[i] = make([]uint16, nCh)
		status[i] = make([]uint16, nCh)
	}

	if cfg.CheckMissing {
		checkMissing(tb, flags)
	}
	if cfg.CheckTbRange {
		checkTbRange(tb, cfg, flags)
	}
	if cfg.CheckSpectral {
		checkSpectral(m, tb, cfg, flags, status)
	}
	if cfg.CheckReceiver {
		checkReceiver(m, flags, status)
	}
	if cfg.CheckRain {
		checkRain(m, flags, status)
	}
	if cfg.CheckSun {
		checkSun(m, cfg, flags, status)
	}
	if cfg.CheckTbOffset {
		// No offset climatology is wired up; record that the check did
		// not run rather than silently passing every sample.
		markAll(status, FlagTbOffset)
	}

	flagVar := rpg.NewVar(n, nCh)
	statusVar := rpg.NewVar(n, nCh)
	raised := 0
	for i := 0; i < n; i++ {
		for c := 0; c < nCh; c++ {
			flagVar.Set(i, c, float64(flags[i][c]))
			statusVar.Set(i, c, float64(status[i][c]))
			if flags[i][c] != 0 {
				raised++
			}
		}
	}
	m.Vars[FlagVar] = flagVar
	m.Vars[FlagStatusVar] = statusVar

	logger.Debug("quality checks applied",
		"samples", n, "channels", nCh, "flagged", raised)
	return nil
}

func checkMissing(tb rpg.Var, flags [][]uint16) {
	for i := range flags {
		for c := range flags[i] {
			if math.IsNaN(tb.At(i, c)) {
				flags[i][c] |= FlagMissingTb
			}
		}
	}
}

func checkTbRange(tb rpg.Var, cfg Config, flags [][]uint16) {
	for i := range flags {
		for c := range flags[i] {
			x := tb.At(i, c)
			if math.IsNaN(x) {
				continue
			}
			if x < cfg.TbMin {
				flags[i][c] |= FlagTbBelowThreshold
			}
			if x > cfg.TbMax {
				flags[i][c] |= FlagTbAboveThreshold
			}
		}
	}
}

// checkSpectral flags channels far off the mean of their receiver band.
// Bands with fewer than three valid channels at a sample cannot support the
// statistic and get the status bit instead.
func checkSpectral(m *measurement.Measurement, tb rpg.Var, cfg Config, flags, status [][]uint16) {
	groups := groupByBand(m.Freq)
	for i := range flags {
		for _, chans := range groups {
			vals := make([]float64, 0, len(chans))
			for _, c := range chans {
				if x := tb.At(i, c); !math.IsNaN(x) {
					vals = append(vals, x)
				}
			}
			if len(vals) < 3 {
				for _, c := range chans {
					status[i][c] |= FlagSpectralConsistency
				}
				continue
			}
			mean := stat.Mean(vals, nil)
			sd := stat.StdDev(vals, nil)
			if sd == 0 {
				continue
			}
			for _, c := range chans {
				x := tb.At(i, c)
				if math.IsNaN(x) {
					status[i][c] |= FlagSpectralConsistency
					continue
				}
				if math.Abs(x-mean) > cfg.SpectralSigma*sd {
					flags[i][c] |= FlagSpectralConsistency
				}
			}
		}
	}
}

// checkReceiver flags channels whose receiver reports trouble in the
// housekeeping record: a failed channel quality bit, an unstable receiver
// temperature for the channel's band, or a recent power failure.
func checkReceiver(m *measurement.Measurement, flags, status [][]uint16) {
	quality, hasQuality := m.Vars["channel_quality_ok"]
	tstabK, hasTstabK := m.Vars["tstab_ok_kband"]
	tstabV, hasTstabV := m.Vars["tstab_ok_vband"]
	power, hasPower := m.Vars["recent_powerfailure"]
	if !hasQuality && !hasTstabK && !hasTstabV && !hasPower {
		markAll(status, FlagReceiverSanity)
		return
	}

	bands := bandIndices(m.Freq)
	qualityIdx := qualityIndices(m.Freq)

	for i := range flags {
		for c := range flags[i] {
			known := false

			if hasQuality && qualityIdx[c] >= 0 && qualityIdx[c] < quality.Width {
				switch q := quality.At(i, qualityIdx[c]); {
				case math.IsNaN(q):
				case q == 0:
					flags[i][c] |= FlagReceiverSanity
					known = true
				default:
					known = true
				}
			}

			var tstab rpg.Var
			hasTstab := false
			switch bands[c] {
			case bandK:
				tstab, hasTstab = tstabK, hasTstabK
			case bandV:
				tstab, hasTstab = tstabV, hasTstabV
			}
			if hasTstab {
				switch s := tstab.At(i, 0); {
				case math.IsNaN(s):
				case s == 0:
					flags[i][c] |= FlagReceiverSanity
					known = true
				default:
					known = true
				}
			}

			if hasPower && !math.IsNaN(power.At(i, 0)) {
				if power.At(i, 0) == 1 {
					flags[i][c] |= FlagReceiverSanity
				}
				known = true
			}

			if !known {
				status[i][c] |= FlagReceiverSanity
			}
		}
	}
}

func checkRain(m *measurement.Measurement, flags, status [][]uint16) {
	rain, ok := m.Vars["rainflag"]
	if !ok {
		markAll(status, FlagRain)
		return
	}
	for i := range flags {
		x := rain.At(i, 0)
		for c := range flags[i] {
			switch {
			case math.IsNaN(x):
				status[i][c] |= FlagRain
			case x == 1:
				flags[i][c] |= FlagRain
			}
		}
	}
}

// checkSun flags samples whose beam points within the configured tolerance
// of the sun while the sun is above the horizon. Samples without a pointing
// direction cannot be checked.
func checkSun(m *measurement.Measurement, cfg Config, flags, status [][]uint16) {
	ele, hasEle := m.Vars["ele"]
	azi, hasAzi := m.Vars["azi"]
	if !hasEle || !hasAzi {
		markAll(status, FlagSunInBeam)
		return
	}
	for i := range flags {
		e, a := ele.At(i, 0), azi.At(i, 0)
		if math.IsNaN(e) || math.IsNaN(a) {
			for c := range flags[i] {
				status[i][c] |= FlagSunInBeam
			}
			continue
		}
		sunEle, sunAzi := SolarPosition(m.Time[i], m.Station.Latitude, m.Station.Longitude)
		if sunEle <= 0 {
			continue
		}
		if angularSeparation(e, a, sunEle, sunAzi) <= cfg.SunTolerance {
			for c := range flags[i] {
				flags[i][c] |= FlagSunInBeam
			}
		}
	}
}

func markAll(status [][]uint16, bit uint16) {
	for i := range status {
		for c := range status[i] {
			status[i][c] |= bit
		}
	}
}

// bandIndices maps each channel to the index of its receiver band.
func bandIndices(freq []float64) []int {
	out := make([]int, len(freq))
	for c, f := range freq {
		out[c] = 0
		for b := 1; b < len(receiverBands); b++ {
			if f > receiverBands[b-1] && f <= receiverBands[b] {
				out[c] = b
				break
			}
		}
	}
	return out
}

// groupByBand collects the channel indices of each occupied receiver band.
func groupByBand(freq []float64) [][]int {
	bands := bandIndices(freq)
	byBand := make(map[int][]int)
	for c, b := range bands {
		byBand[b] = append(byBand[b], c)
	}
	out := make([][]int, 0, len(byBand))
	for b := 1; b < len(receiverBands); b++ {
		if chans, ok := byBand[b]; ok {
			out = append(out, chans)
		}
	}
	return out
}

// qualityIndices maps each channel to its slot in the housekeeping channel
// quality column, which lists the K band channels before the V band ones.
func qualityIndices(freq []float64) []int {
	bands := bandIndices(freq)
	nK := 0
	for _, b := range bands {
		if b == bandK {
			nK++
		}
	}
	out := make([]int, len(freq))
	k, v := 0, 0
	for c, b := range bands {
		switch b {
		case bandK:
			out[c] = k
			k++
		case bandV:
			out[c] = nK + v
			v++
		default:
			out[c] = -1
		}
	}
	return out
}
