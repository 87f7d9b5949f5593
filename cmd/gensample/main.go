// Command gensample writes a synthetic set of RPG radiometer files (BRT, BLB,
// IRT, MET and HKD) sharing one observation unit name. It uses the actual
// decoder package to read every generated file back, so the fixtures are
// guaranteed to match real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/gensample -out data -name payerne_20190803 \
//	  -start 2019-08-03T12:00:00Z -samples 60
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeteoSwiss/mwr-raw2l1/internal/rpg"
)

// Channel layout of a HATPRO generation 5: seven K-band and seven V-band
// frequencies, one infrared channel.
var (
	frequencies = []float64{
		22.24, 23.04, 23.84, 25.44, 26.24, 27.84, 31.40,
		51.26, 52.28, 53.86, 54.94, 56.66, 57.30, 58.00,
	}
	wavelengths = []float64{11.1}
	scanAngles  = []float64{90, 30, 19.2, 14.4, 11.4, 8.4}
)

const (
	timeRefUTC     = 1
	sampleSpacing  = 10 * time.Second
	metSpacing     = 60 * time.Second
	sweepDuration  = 100 * time.Second
	stationLat     = 46.81
	stationLon     = 6.94
	ambientKelvin  = 290.0
	healthyChannel = 0x7F // quality bits of one full receiver
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "", "output directory for the generated files")
	name := flag.String("name", "sample_20190803", "observation unit base name")
	startFlag := flag.String("start", "2019-08-03T12:00:00Z", "first sample timestamp (RFC 3339)")
	samples := flag.Int("samples", 60, "number of zenith samples to generate")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	start, err := time.Parse(time.RFC3339, *startFlag)
	if err != nil {
		return fmt.Errorf("parsing -start: %w", err)
	}
	if *samples < 1 {
		return fmt.Errorf("-samples must be positive")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	// Fixed seed so repeated runs produce identical fixtures.
	rng := rand.New(rand.NewSource(1))
	g := &generator{start: start.UTC(), samples: *samples, rng: rng}

	files := []struct {
		ext  string
		data []byte
	}{
		{".BRT", g.brt()},
		{".BLB", g.blb()},
		{".IRT", g.irt()},
		{".MET", g.met()},
		{".HKD", g.hkd()},
	}

	for _, file := range files {
		ext, data := file.ext, file.data
		path := filepath.Join(*outDir, *name+ext)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}

		// Round-trip through the real decoder; a generated file the
		// pipeline cannot read is worthless as a fixture.
		kind, ok := rpg.KindForExtension(strings.TrimPrefix(strings.ToLower(ext), "."))
		if !ok {
			return fmt.Errorf("no decoder for %s", path)
		}
		frame, err := rpg.Decode(kind, data)
		if err != nil {
			return fmt.Errorf("verifying %s: %w", path, err)
		}
		log.Printf("wrote %s: %d samples, %d vars, %s to %s",
			path, frame.Samples, len(frame.Vars),
			frame.Time[0].Format(time.RFC3339),
			frame.Time[len(frame.Time)-1].Format(time.RFC3339))
	}
	return nil
}

// generator produces one coherent observation unit: all families cover the
// same time window and agree on rain periods.
type generator struct {
	start   time.Time
	samples int
	rng     *rand.Rand
}

func (g *generator) end() time.Time {
	return g.start.Add(time.Duration(g.samples-1) * sampleSpacing)
}

// raining returns whether the synthetic rain shower covers the given time.
// The shower occupies the third quarter of the observation window.
func (g *generator) raining(t time.Time) bool {
	span := g.end().Sub(g.start)
	offset := t.Sub(g.start)
	return offset >= span/2 && offset < 3*span/4
}

// tb returns a plausible brightness temperature for one channel: an opacity
// dependent base per frequency with slow drift and sensor noise.
func (g *generator) tb(ch int, t time.Time) float64 {
	base := 30 + 15*float64(ch)
	drift := 5 * math.Sin(float64(t.Sub(g.start))/float64(time.Hour))
	return base + drift + g.rng.NormFloat64()*0.3
}

func (g *generator) brt() []byte {
	b := &builder{}
	b.i32(666666) // filecode, structure version 1
	b.i32(int32(g.samples))
	b.i32(timeRefUTC)
	b.i32(int32(len(frequencies)))
	for _, f := range frequencies {
		b.f32(f)
	}
	for range frequencies {
		b.f32(2.7) // tb_min
	}
	for range frequencies {
		b.f32(330) // tb_max
	}
	for i := 0; i < g.samples; i++ {
		t := g.start.Add(time.Duration(i) * sampleSpacing)
		b.time(t)
		b.u8(boolByte(g.raining(t)))
		for ch := range frequencies {
			b.f32(g.tb(ch, t))
		}
		b.f32(90) // packed pointing version 1, zenith
	}
	return b.bytes()
}

func (g *generator) blb() []byte {
	// One boundary-layer sweep ending a quarter into the window.
	end := g.start.Add(g.end().Sub(g.start) / 4)

	b := &builder{}
	b.i32(567845848) // filecode, structure version 2
	b.i32(1)         // n_scans
	b.i32(int32(len(frequencies)))
	for range frequencies {
		b.f32(2.7) // tb_min
	}
	for range frequencies {
		b.f32(330) // tb_max
	}
	b.i32(timeRefUTC)
	for _, f := range frequencies {
		b.f32(f)
	}
	b.i32(int32(len(scanAngles)))
	for _, a := range scanAngles {
		b.f32(a)
	}

	b.time(end)
	b.u8(0) // scanflag: no rain, first quadrant
	for ch := range frequencies {
		// Opacity grows with airmass, so the observed temperature saturates
		// toward ambient as the beam drops to the horizon.
		tau := -math.Log(1 - g.tb(ch, end)/ambientKelvin)
		for e := 0; e <= len(scanAngles); e++ {
			if e < len(scanAngles) {
				airmass := 1 / math.Sin(scanAngles[e]*math.Pi/180)
				b.f32(ambientKelvin * (1 - math.Exp(-tau*airmass)))
			} else {
				b.f32(ambientKelvin)
			}
		}
	}
	return b.bytes()
}

func (g *generator) irt() []byte {
	b := &builder{}
	b.i32(671112496) // filecode, structure version 2
	b.i32(int32(g.samples))
	b.f32(-100) // irt_min, degrees Celsius
	b.f32(50)   // irt_max
	b.i32(timeRefUTC)
	b.i32(int32(len(wavelengths)))
	for _, wl := range wavelengths {
		b.f32(wl)
	}
	for i := 0; i < g.samples; i++ {
		t := g.start.Add(time.Duration(i) * sampleSpacing)
		b.time(t)
		b.u8(boolByte(g.raining(t)))
		for range wavelengths {
			// Clear-sky infrared temperature, warming under the shower.
			v := -35.0 + g.rng.NormFloat64()
			if g.raining(t) {
				v = 5 + g.rng.NormFloat64()
			}
			b.f32(v)
		}
		b.f32(90) // packed pointing version 1, zenith
	}
	return b.bytes()
}

func (g *generator) met() []byte {
	n := int(g.end().Sub(g.start)/metSpacing) + 1

	b := &builder{}
	b.i32(599658944) // filecode, structure version 2
	b.i32(int32(n))
	b.u8(0x07) // auxiliary sensors: windspeed, winddir, rainrate
	b.f32(800)
	b.f32(1100) // pressure range, hPa
	b.f32(230)
	b.f32(330) // temperature range, K
	b.f32(0)
	b.f32(100) // relative humidity range, percent
	b.f32(0)
	b.f32(200) // windspeed range, km/h
	b.f32(0)
	b.f32(360) // winddir range, degrees
	b.f32(0)
	b.f32(300) // rainrate range, mm/h
	b.i32(timeRefUTC)

	for i := 0; i < n; i++ {
		t := g.start.Add(time.Duration(i) * metSpacing)
		b.time(t)
		b.u8(boolByte(g.raining(t)))
		b.f32(955 + g.rng.NormFloat64()*0.2)
		b.f32(ambientKelvin + g.rng.NormFloat64()*0.5)
		b.f32(65 + g.rng.NormFloat64()*2)
		b.f32(12 + g.rng.NormFloat64()) // windspeed, km/h
		b.f32(225 + g.rng.NormFloat64()*10)
		if g.raining(t) {
			b.f32(2.5)
		} else {
			b.f32(0)
		}
	}
	return b.bytes()
}

func (g *generator) hkd() []byte {
	n := int(g.end().Sub(g.start)/sampleSpacing) + 1
	sweepEnd := g.start.Add(g.end().Sub(g.start) / 4)

	b := &builder{}
	b.i32(837854832) // filecode
	b.i32(int32(n))
	b.i32(timeRefUTC)
	b.i32(0x3F) // contents: coordinates through status word

	for i := 0; i < n; i++ {
		t := g.start.Add(time.Duration(i) * sampleSpacing)
		b.time(t)
		b.u8(0) // alarm
		b.f32(encodeCoordinate(stationLon))
		b.f32(encodeCoordinate(stationLat))
		b.f32(ambientKelvin + g.rng.NormFloat64()*0.1) // t_amb_1
		b.f32(ambientKelvin + g.rng.NormFloat64()*0.1) // t_amb_2
		b.f32(310 + g.rng.NormFloat64()*0.02)          // t_receiver_kband
		b.f32(310 + g.rng.NormFloat64()*0.02)          // t_receiver_vband
		b.f32(0.005)                                   // tstab_kband
		b.f32(0.005)                                   // tstab_vband
		b.i32(6000)                                    // flashmemory_remaining, MB
		b.i32(0)                                       // l2_qualityflag_raw

		scanning := !t.Before(sweepEnd.Add(-sweepDuration)) && !t.After(sweepEnd)
		b.i32(int32(statusWord(g.raining(t), scanning)))
	}
	return b.bytes()
}

// statusWord assembles a healthy 32-bit status word: all channels ok, blower
// running, both receivers and the ambient target thermally stable.
func statusWord(rain, scanning bool) uint32 {
	var w uint32
	w |= healthyChannel      // channel_quality_kband
	w |= healthyChannel << 8 // channel_quality_vband
	if rain {
		w |= 1 << 16
	}
	w |= 1 << 17 // blowerspeed_status
	if scanning {
		w |= 1 << 18 // blscan_active
	}
	w |= 1 << 22 // noisediode_ok_kband
	w |= 1 << 23 // noisediode_ok_vband
	w |= 1 << 24 // tstab_kband stable
	w |= 1 << 26 // tstab_vband stable
	w |= 1 << 29 // tstab_amb stable
	return w
}

// encodeCoordinate packs decimal degrees into the vendor (-)DDDMM.mmmm form.
func encodeCoordinate(deg float64) float64 {
	d := math.Floor(math.Abs(deg))
	m := (math.Abs(deg) - d) * 60
	packed := d*100 + m
	if deg < 0 {
		return -packed
	}
	return packed
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// builder accumulates little-endian fields. Writes to a bytes.Buffer cannot
// fail, so errors are not tracked.
type builder struct {
	buf bytes.Buffer
}

func (b *builder) i32(v int32)      { _ = binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *builder) u8(v uint8)       { _ = binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *builder) f32(v float64)    { _ = binary.Write(&b.buf, binary.LittleEndian, float32(v)) }
func (b *builder) time(t time.Time) { b.i32(rpg.EncodeTime(t)) }
func (b *builder) bytes() []byte    { return b.buf.Bytes() }
