package rpg

import (
	"math"
	"time"
)

// Kind identifies one RPG record family.
type Kind int

const (
	KindBRT Kind = iota // brightness temperatures, zenith or pointed
	KindBLB             // boundary-layer elevation scans
	KindIRT             // infrared radiometer temperatures
	KindMET             // meteorological surface sensors
	KindHKD             // housekeeping data
)

// String returns the lowercase family name matching the vendor file extension.
func (k Kind) String() string {
	switch k {
	case KindBRT:
		return "brt"
	case KindBLB:
		return "blb"
	case KindIRT:
		return "irt"
	case KindMET:
		return "met"
	case KindHKD:
		return "hkd"
	}
	return "unknown"
}

// KindForExtension maps a lowercase file extension (without dot) to its record
// family. The second return value reports whether the extension is known.
func KindForExtension(ext string) (Kind, bool) {
	switch ext {
	case "brt":
		return KindBRT, true
	case "blb":
		return KindBLB, true
	case "irt":
		return KindIRT, true
	case "met":
		return KindMET, true
	case "hkd":
		return KindHKD, true
	}
	return 0, false
}

// Var is one decoded column. Data is row-major with Width values per sample;
// Width 1 marks a plain time series. Missing values are NaN.
type Var struct {
	Data  []float64
	Width int
}

// NewVar allocates an all-NaN column of n samples with the given width.
func NewVar(n, width int) Var {
	v := Var{Data: make([]float64, n*width), Width: width}
	for i := range v.Data {
		v.Data[i] = math.NaN()
	}
	return v
}

// Samples returns the number of rows in the column.
func (v Var) Samples() int {
	if v.Width == 0 {
		return 0
	}
	return len(v.Data) / v.Width
}

// At returns the value for sample i, channel c.
func (v Var) At(i, c int) float64 { return v.Data[i*v.Width+c] }

// Set assigns the value for sample i, channel c.
func (v Var) Set(i, c int, x float64) { v.Data[i*v.Width+c] = x }

// Frame is the decoded content of one file: a mapping from field name to a
// column, all sharing the sample axis. Header-derived channel descriptions
// (frequencies, wavelengths, scan elevations) ride along as plain slices.
type Frame struct {
	Kind    Kind
	Samples int
	Time    []time.Time
	Vars    map[string]Var

	// TimeRef is 1 for UTC, 0 for local time, as declared in the header.
	TimeRef int

	Freq       []float64 // channel frequencies in GHz (brt, blb)
	Wavelength []float64 // channel wavelengths in um (irt)
	ScanEle    []float64 // elevations of one scan sweep (blb)

	// SweepEnd holds the end-of-sweep timestamps of a scanning file, one per
	// sweep, before the scan transform spreads them over the angles.
	SweepEnd []time.Time

	// HeaderExtras preserves header quantities (calibration ranges and the
	// like) that no later stage consumes, so nothing decoded is dropped.
	HeaderExtras map[string][]float64
}

func newFrame(kind Kind) *Frame {
	return &Frame{Kind: kind, Vars: make(map[string]Var), HeaderExtras: make(map[string][]float64)}
}

// setSeries stores a width-1 column.
func (f *Frame) setSeries(name string, data []float64) {
	f.Vars[name] = Var{Data: data, Width: 1}
}

// Channels returns the channel count of the frame's main measured quantity.
func (f *Frame) Channels() int {
	switch f.Kind {
	case KindBRT, KindBLB:
		return len(f.Freq)
	case KindIRT:
		return len(f.Wavelength)
	}
	return 1
}
