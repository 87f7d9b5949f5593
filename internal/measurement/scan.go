package measurement

import (
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/MeteoSwiss/mwr-raw2l1/internal/rpg"
)

// DefaultScanSecondsPerAngle is the assumed dwell time per scan elevation when
// no housekeeping or zenith observations allow deriving it from the data.
const DefaultScanSecondsPerAngle = 17.0

// scanInconsistentVar is the per-sample marker set when the reconstructed
// per-angle timestamps of a sweep would reach back past the end of the
// previous sweep. The values stay usable; consumers decide what to do.
const scanInconsistentVar = "scan_inconsistent"

// ScanSecondsPerAngle derives the dwell time per elevation of a scanning file.
// It prefers the housekeeping scan-active indicator, falls back to the gap
// between the last zenith observation and the sweep end, and finally to the
// spread of the sweep end-times themselves. A return of false means every
// derivation failed and the caller should use DefaultScanSecondsPerAngle.
func ScanSecondsPerAngle(blb, hkd, brt *rpg.Frame, logger *slog.Logger) (float64, bool) {
	if blb == nil || len(blb.SweepEnd) == 0 || len(blb.ScanEle) == 0 {
		return 0, false
	}
	if sec, ok := scanSecondsFromHousekeeping(blb, hkd); ok {
		return sec, true
	}
	if sec, ok := scanSecondsFromZenith(blb, brt); ok {
		return sec, true
	}
	if sec, ok := scanSecondsFromSweepSpacing(blb); ok {
		logger.Warn("scan duration estimated from sweep spacing alone",
			"seconds_per_angle", sec)
		return sec, true
	}
	return 0, false
}

// scanSecondsFromHousekeeping times the last sweep using the scan-active
// indicator of the housekeeping record, when present.
func scanSecondsFromHousekeeping(blb, hkd *rpg.Frame) (float64, bool) {
	if hkd == nil {
		return 0, false
	}
	active, ok := hkd.Vars["blscan_active"]
	if !ok || active.Width != 1 {
		return 0, false
	}
	nAngles := len(blb.ScanEle)
	last := blb.SweepEnd[len(blb.SweepEnd)-1]

	// Window of the last sweep: after the previous sweep ended (or open at
	// the start of the file) up to and including the last sweep end.
	var windowStart time.Time
	haveStart := false
	if len(blb.SweepEnd) > 1 {
		windowStart = blb.SweepEnd[len(blb.SweepEnd)-2]
		haveStart = true
	}

	var first, latest time.Time
	found := false
	for i, t := range hkd.Time {
		if active.At(i, 0) != 1 {
			continue
		}
		if haveStart && !t.After(windowStart) {
			continue
		}
		if t.After(last) {
			continue
		}
		if !found || t.Before(first) {
			first = t
		}
		if !found || t.After(latest) {
			latest = t
		}
		found = true
	}
	if !found {
		return 0, false
	}
	dur := latest.Sub(first).Seconds()
	if dur <= 0 {
		return 0, false
	}
	return dur / float64(nAngles), true
}

// scanSecondsFromZenith estimates the sweep duration as the gap between the
// last zenith observation before the sweep end and the sweep end itself. The
// gap covers the scan plus the slews into and out of it, hence the +2.
func scanSecondsFromZenith(blb, brt *rpg.Frame) (float64, bool) {
	if brt == nil || len(brt.Time) == 0 {
		return 0, false
	}
	last := blb.SweepEnd[len(blb.SweepEnd)-1]
	if !brt.Time[0].Before(last) {
		return 0, false
	}
	var prev time.Time
	found := false
	for _, t := range brt.Time {
		if t.After(last) {
			break
		}
		prev = t
		found = true
	}
	if !found {
		return 0, false
	}
	dur := last.Sub(prev).Seconds()
	if dur <= 0 {
		return 0, false
	}
	return dur / float64(len(blb.ScanEle)+2), true
}

// scanSecondsFromSweepSpacing uses the median interval between consecutive
// sweep ends. It overestimates the dwell time because the interval includes
// zenith observations between sweeps, so it is the last resort.
func scanSecondsFromSweepSpacing(blb *rpg.Frame) (float64, bool) {
	if len(blb.SweepEnd) < 2 {
		return 0, false
	}
	gaps := make([]float64, 0, len(blb.SweepEnd)-1)
	for i := 1; i < len(blb.SweepEnd); i++ {
		gaps = append(gaps, blb.SweepEnd[i].Sub(blb.SweepEnd[i-1]).Seconds())
	}
	sort.Float64s(gaps)
	median := stat.Quantile(0.5, stat.Empirical, gaps, nil)
	if median <= 0 {
		return 0, false
	}
	return median / float64(len(blb.ScanEle)), true
}

// SpreadScanTimes rewrites the per-row timestamps of a demultiplexed scanning
// frame so that each elevation of a sweep gets its own time, counting
// backwards from the sweep end in steps of secPerAngle. Row i of sweep s ends
// at sweepEnd - (nAngles-1-i)*secPerAngle.
//
// When the reconstructed first timestamp of a sweep would fall at or before
// the end of the previous sweep, every row of that sweep is marked in the
// scan_inconsistent column instead of failing the file.
func SpreadScanTimes(blb *rpg.Frame, secPerAngle float64) {
	nAngles := len(blb.ScanEle)
	if nAngles == 0 || len(blb.SweepEnd) == 0 {
		return
	}
	step := time.Duration(secPerAngle * float64(time.Second))

	inconsistent := rpg.NewVar(blb.Samples, 1)
	for s, end := range blb.SweepEnd {
		bad := 0.0
		if s > 0 {
			span := time.Duration(float64(nAngles-1) * secPerAngle * float64(time.Second))
			if !end.Add(-span).After(blb.SweepEnd[s-1]) {
				bad = 1.0
			}
		}
		for a := 0; a < nAngles; a++ {
			row := s*nAngles + a
			blb.Time[row] = end.Add(-time.Duration(nAngles-1-a) * step)
			inconsistent.Set(row, 0, bad)
		}
	}
	blb.Vars[scanInconsistentVar] = inconsistent
}

// TransformScan converts a demultiplexed scanning frame into a plain time
// series: per-angle timestamps spread backwards from each sweep end, with the
// dwell time derived from auxiliary data where possible.
func TransformScan(blb, hkd, brt *rpg.Frame, logger *slog.Logger) {
	if blb == nil {
		return
	}
	sec, ok := ScanSecondsPerAngle(blb, hkd, brt, logger)
	if !ok {
		sec = DefaultScanSecondsPerAngle
		logger.Warn("using default scan dwell time", "seconds_per_angle", sec)
	}
	SpreadScanTimes(blb, sec)
}
