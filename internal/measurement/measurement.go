// Package measurement assembles decoded instrument files of one observation
// window into a single schema-normalized time series. Sources of the same
// family are concatenated and deduplicated, scanning observations are spread
// over their per-angle timestamps and merged with the zenith series, and the
// auxiliary sensors are aligned onto the brightness-temperature time axis.
package measurement

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/MeteoSwiss/mwr-raw2l1/internal/rpg"
)

var (
	// ErrNoData reports that no microwave brightness-temperature source was
	// present, so there is nothing to build a measurement around.
	ErrNoData = errors.New("no brightness temperature data")

	// ErrDimension reports columns or channel axes that do not line up.
	ErrDimension = errors.New("dimension mismatch")

	// ErrTimeMismatch reports sources whose time ranges do not overlap the
	// housekeeping record, a sign of files from different observation periods.
	ErrTimeMismatch = errors.New("time ranges of input files do not match")
)

// timeSpanSlack is how far outside the housekeeping span a source may reach
// before the inputs are considered to come from different periods.
const timeSpanSlack = 15 * time.Minute

// Station describes the instrument site, taken from configuration rather
// than the (frequently stale) coordinates in the housekeeping files.
type Station struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// Input groups the decoded frames of one observation window by family. Any
// slice may be empty; at least one brightness-temperature source is required.
type Input struct {
	BRT []*rpg.Frame
	BLB []*rpg.Frame
	IRT []*rpg.Frame
	MET []*rpg.Frame
	HKD []*rpg.Frame
}

// Options tunes assembly behavior.
type Options struct {
	// AcceptLocaltime admits files whose header declares local instead of
	// UTC time. Off by default because downstream schemas assume UTC.
	AcceptLocaltime bool
}

// Measurement is the assembled time series: every column shares the time
// axis, channel axes are described by Freq and Wavelength, and missing
// values are NaN until a writer maps them to schema fill values.
type Measurement struct {
	Time []time.Time
	Vars map[string]rpg.Var

	Freq       []float64 // microwave channel frequencies in GHz
	Wavelength []float64 // infrared channel wavelengths in um
	ScanEle    []float64 // elevations of one scan sweep, if scans were present

	Station     Station
	ProcessedAt time.Time
}

// Assemble builds one Measurement from the decoded files of an observation
// window. Duplicate timestamps keep the first occurrence per field, with
// later duplicates only filling values the first left missing. Auxiliary
// sources are aligned by exact timestamp; samples without a counterpart on
// the brightness-temperature axis stay NaN.
func Assemble(in Input, station Station, opts Options, logger *slog.Logger) (*Measurement, error) {
	if err := checkTimeRef(in, opts); err != nil {
		return nil, err
	}

	brt, err := concatFamily(in.BRT)
	if err != nil {
		return nil, err
	}
	blb, err := concatFamily(in.BLB)
	if err != nil {
		return nil, err
	}
	irt, err := concatFamily(in.IRT)
	if err != nil {
		return nil, err
	}
	met, err := concatFamily(in.MET)
	if err != nil {
		return nil, err
	}
	hkd, err := concatFamily(in.HKD)
	if err != nil {
		return nil, err
	}

	if hkd != nil {
		if err := expandStatus(hkd); err != nil {
			return nil, err
		}
	}
	if blb != nil {
		TransformScan(blb, hkd, brt, logger)
	}
	if met != nil {
		convertToSI(met)
	}

	m, err := mergeBrightness(brt, blb)
	if err != nil {
		return nil, err
	}

	if hkd != nil {
		if err := checkTimeSpan(brt, blb, irt, met, hkd); err != nil {
			return nil, err
		}
	}

	for _, aux := range []*rpg.Frame{hkd, irt, met} {
		if aux == nil {
			continue
		}
		m.alignAux(aux)
	}

	if irt != nil {
		m.Wavelength = irt.Wavelength
	}

	m.setConstant("station_latitude", station.Latitude)
	m.setConstant("station_longitude", station.Longitude)
	m.setConstant("station_altitude", station.Altitude)

	for name, v := range m.Vars {
		if v.Samples() != len(m.Time) {
			return nil, fmt.Errorf("%w: %s has %d samples on a %d sample axis",
				ErrDimension, name, v.Samples(), len(m.Time))
		}
	}

	m.Station = station
	m.ProcessedAt = clock.Now()
	return m, nil
}

func checkTimeRef(in Input, opts Options) error {
	if opts.AcceptLocaltime {
		return nil
	}
	for _, frames := range [][]*rpg.Frame{in.BRT, in.BLB, in.IRT, in.MET, in.HKD} {
		for _, f := range frames {
			if f.TimeRef == 0 {
				return fmt.Errorf("%w: %s file declares local time", rpg.ErrLocalTimeRef, f.Kind)
			}
		}
	}
	return nil
}

// concatFamily concatenates frames of one family and removes duplicate
// samples. Scanning frames are deduplicated per sweep, all others per
// timestamp. Returns nil when no frame is present.
func concatFamily(frames []*rpg.Frame) (*rpg.Frame, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	out, err := concatFrames(frames)
	if err != nil {
		return nil, err
	}
	if out.Kind == rpg.KindBLB {
		dedupSweeps(out)
	} else {
		dedupSamples(out)
	}
	return out, nil
}

func concatFrames(frames []*rpg.Frame) (*rpg.Frame, error) {
	first := frames[0]
	total := 0
	names := map[string]int{} // name -> width
	for _, f := range frames {
		if f.Kind != first.Kind {
			return nil, fmt.Errorf("%w: cannot concatenate %s with %s",
				ErrDimension, first.Kind, f.Kind)
		}
		if !axisEqual(f.Freq, first.Freq) || !axisEqual(f.Wavelength, first.Wavelength) ||
			!axisEqual(f.ScanEle, first.ScanEle) {
			return nil, fmt.Errorf("%w: %s files disagree on channel axes",
				ErrDimension, f.Kind)
		}
		total += f.Samples
		for name, v := range f.Vars {
			if w, ok := names[name]; ok && w != v.Width {
				return nil, fmt.Errorf("%w: column %s changes width between files",
					ErrDimension, name)
			}
			names[name] = v.Width
		}
	}

	out := &rpg.Frame{
		Kind:         first.Kind,
		Samples:      total,
		Time:         make([]time.Time, 0, total),
		Vars:         make(map[string]rpg.Var, len(names)),
		TimeRef:      first.TimeRef,
		Freq:         first.Freq,
		Wavelength:   first.Wavelength,
		ScanEle:      first.ScanEle,
		HeaderExtras: first.HeaderExtras,
	}
	for name, width := range names {
		out.Vars[name] = rpg.NewVar(total, width)
	}

	row := 0
	for _, f := range frames {
		out.Time = append(out.Time, f.Time...)
		out.SweepEnd = append(out.SweepEnd, f.SweepEnd...)
		for name, v := range f.Vars {
			dst := out.Vars[name]
			copy(dst.Data[row*dst.Width:], v.Data)
		}
		row += f.Samples
	}
	return out, nil
}

// dedupSamples sorts a frame by time and collapses duplicate timestamps.
// The earliest file's value wins per field; later duplicates only fill
// fields the winner left missing.
func dedupSamples(f *rpg.Frame) {
	order := make([]int, f.Samples)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return f.Time[order[a]].Before(f.Time[order[b]])
	})

	groups := make([][]int, 0, len(order))
	for _, idx := range order {
		n := len(groups)
		if n > 0 && f.Time[groups[n-1][0]].Equal(f.Time[idx]) {
			groups[n-1] = append(groups[n-1], idx)
			continue
		}
		groups = append(groups, []int{idx})
	}
	if len(groups) == f.Samples {
		// No duplicates, just apply the sort order.
		reindexFrame(f, order)
		return
	}

	newTime := make([]time.Time, len(groups))
	newVars := make(map[string]rpg.Var, len(f.Vars))
	for name, v := range f.Vars {
		nv := rpg.NewVar(len(groups), v.Width)
		for g, rows := range groups {
			for c := 0; c < v.Width; c++ {
				for _, r := range rows {
					if x := v.At(r, c); !math.IsNaN(x) {
						nv.Set(g, c, x)
						break
					}
				}
			}
		}
		newVars[name] = nv
	}
	for g, rows := range groups {
		newTime[g] = f.Time[rows[0]]
	}
	f.Time = newTime
	f.Vars = newVars
	f.Samples = len(groups)
}

// dedupSweeps orders the sweeps of a scanning frame by end time and drops
// sweeps whose end time already occurred, keeping the earliest file's sweep.
func dedupSweeps(f *rpg.Frame) {
	nAngles := len(f.ScanEle)
	if nAngles == 0 || len(f.SweepEnd) == 0 {
		return
	}
	order := make([]int, len(f.SweepEnd))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return f.SweepEnd[order[a]].Before(f.SweepEnd[order[b]])
	})

	keep := order[:0]
	var last time.Time
	for i, s := range order {
		if i > 0 && f.SweepEnd[s].Equal(last) {
			continue
		}
		last = f.SweepEnd[s]
		keep = append(keep, s)
	}

	rows := make([]int, 0, len(keep)*nAngles)
	ends := make([]time.Time, 0, len(keep))
	for _, s := range keep {
		ends = append(ends, f.SweepEnd[s])
		for a := 0; a < nAngles; a++ {
			rows = append(rows, s*nAngles+a)
		}
	}
	reindexFrame(f, rows)
	f.SweepEnd = ends
}

// axisEqual compares channel axes, treating NaN entries as equal so files
// that do not report a wavelength still concatenate.
func axisEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] == b[i] || (math.IsNaN(a[i]) && math.IsNaN(b[i])) {
			continue
		}
		return false
	}
	return true
}

func reindexFrame(f *rpg.Frame, rows []int) {
	newTime := make([]time.Time, len(rows))
	for i, r := range rows {
		newTime[i] = f.Time[r]
	}
	newVars := make(map[string]rpg.Var, len(f.Vars))
	for name, v := range f.Vars {
		nv := rpg.NewVar(len(rows), v.Width)
		for i, r := range rows {
			for c := 0; c < v.Width; c++ {
				nv.Set(i, c, v.At(r, c))
			}
		}
		newVars[name] = nv
	}
	f.Time = newTime
	f.Vars = newVars
	f.Samples = len(rows)
}

// expandStatus decodes the raw housekeeping status word of every sample into
// named columns. Rows without a status word stay NaN across the expansion.
func expandStatus(hkd *rpg.Frame) error {
	raw, ok := hkd.Vars["statusflag_raw"]
	if !ok {
		return nil
	}

	n := hkd.Samples
	quality := rpg.NewVar(n, 14)
	series := map[string]rpg.Var{
		"rainflag":            rpg.NewVar(n, 1),
		"blowerspeed_status":  rpg.NewVar(n, 1),
		"blscan_active":       rpg.NewVar(n, 1),
		"tipcal_active":       rpg.NewVar(n, 1),
		"gaincal_active":      rpg.NewVar(n, 1),
		"noisecal_active":     rpg.NewVar(n, 1),
		"noisediode_ok_kband": rpg.NewVar(n, 1),
		"noisediode_ok_vband": rpg.NewVar(n, 1),
		"tstab_ok_kband":      rpg.NewVar(n, 1),
		"tstab_ok_vband":      rpg.NewVar(n, 1),
		"recent_powerfailure": rpg.NewVar(n, 1),
		"tstab_ok_amb":        rpg.NewVar(n, 1),
		"noisediode_on":       rpg.NewVar(n, 1),
	}

	for i := 0; i < n; i++ {
		x := raw.At(i, 0)
		if math.IsNaN(x) {
			continue
		}
		s, err := rpg.DecodeStatus(uint32(x))
		if err != nil {
			return fmt.Errorf("status word of sample at %s: %w",
				hkd.Time[i].Format(time.RFC3339), err)
		}
		for c, q := range s.ChannelQualityOK {
			quality.Set(i, c, q)
		}
		series["rainflag"].Set(i, 0, s.Rain)
		series["blowerspeed_status"].Set(i, 0, s.BlowerSpeedOK)
		series["blscan_active"].Set(i, 0, s.BLScanActive)
		series["tipcal_active"].Set(i, 0, s.TipCalActive)
		series["gaincal_active"].Set(i, 0, s.GainCalActive)
		series["noisecal_active"].Set(i, 0, s.NoiseCalActive)
		series["noisediode_ok_kband"].Set(i, 0, s.NoiseDiodeOKK)
		series["noisediode_ok_vband"].Set(i, 0, s.NoiseDiodeOKV)
		series["tstab_ok_kband"].Set(i, 0, s.TstabOKK)
		series["tstab_ok_vband"].Set(i, 0, s.TstabOKV)
		series["recent_powerfailure"].Set(i, 0, s.PowerFailure)
		series["tstab_ok_amb"].Set(i, 0, s.TstabOKAmb)
		series["noisediode_on"].Set(i, 0, s.NoiseDiodeOn)
	}

	hkd.Vars["channel_quality_ok"] = quality
	for name, v := range series {
		hkd.Vars[name] = v
	}
	return nil
}

// convertToSI rewrites surface sensor columns to SI units. The instrument
// reports wind speed in km/h; everything else already is SI.
func convertToSI(met *rpg.Frame) {
	ws, ok := met.Vars["windspeed"]
	if !ok {
		return
	}
	for i := range ws.Data {
		ws.Data[i] /= 3.6
	}
}

// mergeBrightness joins the zenith and scanning brightness temperatures into
// one series over the union of their time axes.
func mergeBrightness(brt, blb *rpg.Frame) (*Measurement, error) {
	switch {
	case brt == nil && blb == nil:
		return nil, ErrNoData
	case blb == nil:
		return fromFrame(brt), nil
	case brt == nil:
		m := fromFrame(blb)
		m.ScanEle = blb.ScanEle
		return m, nil
	}
	if !axisEqual(brt.Freq, blb.Freq) {
		return nil, fmt.Errorf("%w: zenith and scan files disagree on frequencies",
			ErrDimension)
	}
	m := mergeOuter(fromFrame(brt), fromFrame(blb))
	m.Freq = brt.Freq
	m.ScanEle = blb.ScanEle
	return m, nil
}

func fromFrame(f *rpg.Frame) *Measurement {
	m := &Measurement{
		Time: f.Time,
		Vars: make(map[string]rpg.Var, len(f.Vars)),
		Freq: f.Freq,
	}
	for name, v := range f.Vars {
		m.Vars[name] = v
	}
	return m
}

// mergeOuter joins two measurements over the union of their time axes. For a
// timestamp both carry, a's value wins per field and b only fills fields a
// left missing.
func mergeOuter(a, b *Measurement) *Measurement {
	union := make([]time.Time, 0, len(a.Time)+len(b.Time))
	union = append(union, a.Time...)
	union = append(union, b.Time...)
	sort.Slice(union, func(i, j int) bool { return union[i].Before(union[j]) })
	uniq := union[:0]
	for i, t := range union {
		if i > 0 && t.Equal(uniq[len(uniq)-1]) {
			continue
		}
		uniq = append(uniq, t)
	}

	pos := make(map[int64]int, len(uniq))
	for i, t := range uniq {
		pos[t.UnixNano()] = i
	}

	out := &Measurement{Time: uniq, Vars: make(map[string]rpg.Var)}
	place := func(m *Measurement, name string, v rpg.Var) {
		dst, ok := out.Vars[name]
		if !ok {
			dst = rpg.NewVar(len(uniq), v.Width)
			out.Vars[name] = dst
		}
		for i := range m.Time {
			row := pos[m.Time[i].UnixNano()]
			for c := 0; c < v.Width; c++ {
				if !math.IsNaN(dst.At(row, c)) {
					continue
				}
				dst.Set(row, c, v.At(i, c))
			}
		}
	}
	for name, v := range a.Vars {
		place(a, name, v)
	}
	for name, v := range b.Vars {
		place(b, name, v)
	}
	return out
}

// alignAux projects an auxiliary frame onto the measurement time axis by
// exact timestamp. Axis samples without a matching auxiliary sample stay
// NaN; auxiliary samples off the axis are dropped. Column names that the
// measurement already uses get the source family appended.
func (m *Measurement) alignAux(aux *rpg.Frame) {
	pos := make(map[int64]int, len(aux.Time))
	for i, t := range aux.Time {
		pos[t.UnixNano()] = i
	}
	for name, v := range aux.Vars {
		if _, taken := m.Vars[name]; taken {
			name = name + "_" + aux.Kind.String()
		}
		nv := rpg.NewVar(len(m.Time), v.Width)
		for i, t := range m.Time {
			src, ok := pos[t.UnixNano()]
			if !ok {
				continue
			}
			for c := 0; c < v.Width; c++ {
				nv.Set(i, c, v.At(src, c))
			}
		}
		m.Vars[name] = nv
	}
}

func (m *Measurement) setConstant(name string, value float64) {
	v := rpg.NewVar(len(m.Time), 1)
	for i := range m.Time {
		v.Set(i, 0, value)
	}
	m.Vars[name] = v
}

// checkTimeSpan verifies that every source stays within the housekeeping
// record's span plus slack. Housekeeping runs continuously, so a source far
// outside it was recorded in a different observation period.
func checkTimeSpan(brt, blb, irt, met, hkd *rpg.Frame) error {
	if len(hkd.Time) == 0 {
		return nil
	}
	lo := hkd.Time[0].Add(-timeSpanSlack)
	hi := hkd.Time[len(hkd.Time)-1].Add(timeSpanSlack)
	for _, f := range []*rpg.Frame{brt, blb, irt, met} {
		if f == nil || len(f.Time) == 0 {
			continue
		}
		min, max := f.Time[0], f.Time[0]
		for _, t := range f.Time {
			if t.Before(min) {
				min = t
			}
			if t.After(max) {
				max = t
			}
		}
		if min.Before(lo) || max.After(hi) {
			return fmt.Errorf("%w: %s spans %s to %s, housekeeping %s to %s",
				ErrTimeMismatch, f.Kind,
				min.Format(time.RFC3339), max.Format(time.RFC3339),
				hkd.Time[0].Format(time.RFC3339), hkd.Time[len(hkd.Time)-1].Format(time.RFC3339))
		}
	}
	return nil
}
