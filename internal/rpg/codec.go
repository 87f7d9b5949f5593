package rpg

import (
	"fmt"
	"math"
	"time"
)

// rpgEpoch is the instrument time origin. Raw timestamps are seconds since
// 2001-01-01 00:00:00 UTC.
var rpgEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// DecodeTime translates a raw instrument timestamp to UTC.
func DecodeTime(raw int32) time.Time {
	return rpgEpoch.Add(time.Duration(raw) * time.Second)
}

// EncodeTime is the inverse of DecodeTime, used by the sample generator.
func EncodeTime(t time.Time) int32 {
	return int32(t.Sub(rpgEpoch) / time.Second)
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

// DecodeAngle translates a packed pointing value to elevation and azimuth in
// degrees. Two encodings exist across firmware generations:
//
//	version 1: sign(ele)*(|ele| + 1000*azi), with +1e6 marking an elevation
//	           offset of 100 degrees (angles in 0.1 degree steps)
//	version 2: digits 1-5 carry elevation*100, digits 6-10 carry azimuth*100
func DecodeAngle(x float64, version int) (ele, azi float64, err error) {
	switch version {
	case 1:
		var offset float64
		if x >= 1e6 {
			offset = 100
			x -= 1e6
		}
		azi = math.Floor(math.Abs(x)/100) / 10
		ele = x - sign(x)*azi*1000 + offset
	case 2:
		ele = sign(x) * math.Floor(math.Abs(x)/1e5) / 100
		azi = (math.Abs(x) - math.Abs(ele)*1e7) / 100
	default:
		return 0, 0, fmt.Errorf("%w: angle encoding version %d not in {1, 2}", ErrDecode, version)
	}
	return ele, azi, nil
}

// DecodeCoordinate translates a packed coordinate of the form (-)DDDMM.mmmm to
// decimal degrees: sign * (DDD + MM.mmmm/60). Degree components above 180 or
// minute components of 60 and more are rejected.
func DecodeCoordinate(x float64) (float64, error) {
	degAbs := math.Floor(math.Abs(x) / 100)
	minAbs := math.Abs(x) - degAbs*100
	if degAbs > 180 {
		return 0, fmt.Errorf("%w: degree component %g exceeds 180", ErrCoordinate, degAbs)
	}
	if minAbs >= 60 {
		return 0, fmt.Errorf("%w: minute component %g not below 60", ErrCoordinate, minAbs)
	}
	return sign(x) * (degAbs + minAbs/60), nil
}

// ReverseBits reverses the bit order within a field of the given width. Files
// that declare LSB-first bit order at the bit level are normalized through
// this one routine before any bit-group splitting.
func ReverseBits(x uint64, width int) (uint64, error) {
	if width < 1 || width > 64 {
		return 0, fmt.Errorf("%w: bit field width %d not in 1..64", ErrDecode, width)
	}
	var out uint64
	for i := 0; i < width; i++ {
		out <<= 1
		out |= (x >> i) & 1
	}
	return out, nil
}

// BitGroup is one named fixed-width sub-field within a packed integer.
type BitGroup struct {
	Name  string
	Width int
}

// BitLayout is a validated ordered list of bit groups covering a packed field
// completely, first group at the least significant bit.
type BitLayout struct {
	fieldWidth int
	groups     []BitGroup
}

// NewBitLayout builds a layout and rejects descriptors whose group widths do
// not sum to the field width. Malformed layouts are a programming or
// configuration error and must never surface at decode time.
func NewBitLayout(fieldWidth int, groups ...BitGroup) (BitLayout, error) {
	total := 0
	for _, g := range groups {
		if g.Width < 1 {
			return BitLayout{}, fmt.Errorf("%w: bit group %q has non-positive width %d", ErrDecode, g.Name, g.Width)
		}
		total += g.Width
	}
	if total != fieldWidth {
		return BitLayout{}, fmt.Errorf("%w: bit group widths sum to %d, field is %d bits wide", ErrDecode, total, fieldWidth)
	}
	return BitLayout{fieldWidth: fieldWidth, groups: groups}, nil
}

// MustBitLayout is NewBitLayout for package-level descriptors.
func MustBitLayout(fieldWidth int, groups ...BitGroup) BitLayout {
	l, err := NewBitLayout(fieldWidth, groups...)
	if err != nil {
		panic(err)
	}
	return l
}

// Split decomposes a packed integer into its named groups. No validation of
// group values happens here; invalid combinations are a quality-engine
// concern, not a decode error.
func (l BitLayout) Split(x uint64) map[string]uint64 {
	out := make(map[string]uint64, len(l.groups))
	for _, g := range l.groups {
		out[g.Name] = x & (1<<g.Width - 1)
		x >>= g.Width
	}
	return out
}

// Documented bit-group layouts of the packed status and selection integers.
var (
	// statusFlagLayout covers the 32-bit housekeeping status word.
	statusFlagLayout = MustBitLayout(32,
		BitGroup{"channel_quality_kband", 7},
		BitGroup{"spare_kband", 1},
		BitGroup{"channel_quality_vband", 7},
		BitGroup{"spare_vband", 1},
		BitGroup{"rainflag", 1},
		BitGroup{"blowerspeed_status", 1},
		BitGroup{"blscan_active", 1},
		BitGroup{"tipcal_active", 1},
		BitGroup{"gaincal_active", 1},
		BitGroup{"noisecal_active", 1},
		BitGroup{"noisediode_ok_kband", 1},
		BitGroup{"noisediode_ok_vband", 1},
		BitGroup{"tstab_kband", 2},
		BitGroup{"tstab_vband", 2},
		BitGroup{"recent_powerfailure", 1},
		BitGroup{"tstab_amb", 1},
		BitGroup{"noisediode_on", 1},
		BitGroup{"spare_status", 1},
	)

	// hkdContentsLayout covers the housekeeping contents selection word
	// declaring which optional sample groups are present.
	hkdContentsLayout = MustBitLayout(32,
		BitGroup{"has_coord", 1},
		BitGroup{"has_temperature", 1},
		BitGroup{"has_stability", 1},
		BitGroup{"has_flashmemoryinfo", 1},
		BitGroup{"has_qualityflag", 1},
		BitGroup{"has_statusflag", 1},
		BitGroup{"spare_contents", 26},
	)

	// metAuxLayout covers the auxiliary-sensor presence byte of MET headers.
	metAuxLayout = MustBitLayout(8,
		BitGroup{"has_windspeed", 1},
		BitGroup{"has_winddir", 1},
		BitGroup{"has_rainrate", 1},
		BitGroup{"spare_aux", 5},
	)

	// scanFlagLayout covers the per-sweep flag byte of BLB files.
	scanFlagLayout = MustBitLayout(8,
		BitGroup{"rainflag", 1},
		BitGroup{"quadrant", 2},
		BitGroup{"spare_scan", 5},
	)
)

const (
	nFreqKBand = 7 // channels in the K-band receiver
	nFreqVBand = 7 // channels in the V-band receiver
)

// Status holds the semantic expansion of one housekeeping status word.
type Status struct {
	// ChannelQualityOK is 1 per healthy channel, K-band channels first.
	ChannelQualityOK []float64
	Rain             float64
	BlowerSpeedOK    float64
	BLScanActive     float64
	TipCalActive     float64
	GainCalActive    float64
	NoiseCalActive   float64
	NoiseDiodeOKK    float64
	NoiseDiodeOKV    float64
	TstabOKK         float64 // 1 ok, 0 not ok, NaN unknown
	TstabOKV         float64
	PowerFailure     float64
	TstabOKAmb       float64
	NoiseDiodeOn     float64
}

// DecodeStatus expands a raw 32-bit status word into its documented sub-fields.
func DecodeStatus(raw uint32) (Status, error) {
	g := statusFlagLayout.Split(uint64(raw))

	s := Status{
		ChannelQualityOK: make([]float64, 0, nFreqKBand+nFreqVBand),
		Rain:             float64(g["rainflag"]),
		BlowerSpeedOK:    float64(g["blowerspeed_status"]),
		BLScanActive:     float64(g["blscan_active"]),
		TipCalActive:     float64(g["tipcal_active"]),
		GainCalActive:    float64(g["gaincal_active"]),
		NoiseCalActive:   float64(g["noisecal_active"]),
		NoiseDiodeOKK:    float64(g["noisediode_ok_kband"]),
		NoiseDiodeOKV:    float64(g["noisediode_ok_vband"]),
		PowerFailure:     float64(g["recent_powerfailure"]),
		NoiseDiodeOn:     float64(g["noisediode_on"]),
	}
	for i := 0; i < nFreqKBand; i++ {
		s.ChannelQualityOK = append(s.ChannelQualityOK, float64(g["channel_quality_kband"]>>i&1))
	}
	for i := 0; i < nFreqVBand; i++ {
		s.ChannelQualityOK = append(s.ChannelQualityOK, float64(g["channel_quality_vband"]>>i&1))
	}

	var err error
	if s.TstabOKK, err = DecodeTstabFlag(g["tstab_kband"]); err != nil {
		return Status{}, err
	}
	if s.TstabOKV, err = DecodeTstabFlag(g["tstab_vband"]); err != nil {
		return Status{}, err
	}
	if s.TstabOKAmb, err = DecodeTstabFlag(g["tstab_amb"]); err != nil {
		return Status{}, err
	}
	return s, nil
}

// DecodeTstabFlag maps the 2-bit thermal stability group to stability-ok:
// 0 means unknown (NaN), 1 stable, 2 unstable.
func DecodeTstabFlag(v uint64) (float64, error) {
	switch v {
	case 0:
		return math.NaN(), nil
	case 1:
		return 1, nil
	case 2:
		return 0, nil
	}
	return 0, fmt.Errorf("%w: expected 0, 1 or 2 for thermal stability flag but found %d", ErrUnknownFlagValue, v)
}

// DecodeScanFlag splits the per-sweep flag byte into rain flag and scan
// quadrant. Quadrant selector 0 means first quadrant (1), 1 second quadrant
// (2), 2 the average over both quadrants (0). Selector 3 is reserved; seeing
// it means the 2-bit decode itself went wrong.
func DecodeScanFlag(raw uint8) (rain, quadrant float64, err error) {
	g := scanFlagLayout.Split(uint64(raw))
	switch g["quadrant"] {
	case 0:
		quadrant = 1
	case 1:
		quadrant = 2
	case 2:
		quadrant = 0
	default:
		return 0, 0, fmt.Errorf("%w: expected 0, 1 or 2 for scan quadrant encoding but found %d",
			ErrUnknownFlagValue, g["quadrant"])
	}
	return float64(g["rainflag"]), quadrant, nil
}

// hkdContents reports which optional sample groups an HKD file carries.
type hkdContents struct {
	hasCoord, hasTemperature, hasStability bool
	hasFlashInfo, hasQuality, hasStatus    bool
}

func decodeHKDContents(raw int32) hkdContents {
	g := hkdContentsLayout.Split(uint64(uint32(raw)))
	return hkdContents{
		hasCoord:       g["has_coord"] == 1,
		hasTemperature: g["has_temperature"] == 1,
		hasStability:   g["has_stability"] == 1,
		hasFlashInfo:   g["has_flashmemoryinfo"] == 1,
		hasQuality:     g["has_qualityflag"] == 1,
		hasStatus:      g["has_statusflag"] == 1,
	}
}

// metAux reports which auxiliary sensors a MET file carries.
type metAux struct {
	hasWindspeed, hasWinddir, hasRainrate bool
}

func decodeMETAux(raw uint8) metAux {
	g := metAuxLayout.Split(uint64(raw))
	return metAux{
		hasWindspeed: g["has_windspeed"] == 1,
		hasWinddir:   g["has_winddir"] == 1,
		hasRainrate:  g["has_rainrate"] == 1,
	}
}
