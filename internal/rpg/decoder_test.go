package rpg

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// binfile builds little-endian test files field by field.
type binfile struct {
	buf bytes.Buffer
}

func (b *binfile) i32(v int32)   { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *binfile) f32(v float32) { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *binfile) u8(v uint8)    { b.buf.WriteByte(v) }
func (b *binfile) f32s(vs ...float32) {
	for _, v := range vs {
		b.f32(v)
	}
}
func (b *binfile) bytes() []byte { return b.buf.Bytes() }

var testEpoch = time.Date(2019, 8, 3, 12, 0, 0, 0, time.UTC)

// buildBRT writes a 2-channel brightness-temperature file with the given
// sample count, timestamps spaced one second apart.
func buildBRT(n int) []byte {
	var b binfile
	b.i32(666666) // filecode: BRT, angle version 1
	b.i32(int32(n))
	b.i32(1) // timeref UTC
	b.i32(2) // n_freq
	b.f32s(22.24, 31.4)  // frequency
	b.f32s(2.7, 2.7)     // tb_min
	b.f32s(330.0, 330.0) // tb_max
	for i := 0; i < n; i++ {
		b.i32(EncodeTime(testEpoch.Add(time.Duration(i) * time.Second)))
		b.u8(0)
		b.f32(float32(100 + i))
		b.f32(float32(200 + i))
		b.f32(float32(encodeAngleV1(90, 0)))
	}
	return b.bytes()
}

func TestDecodeBRT(t *testing.T) {
	f, err := Decode(KindBRT, buildBRT(5))
	require.NoError(t, err)

	assert.Equal(t, 5, f.Samples)
	assert.Equal(t, 1, f.TimeRef)
	assert.Equal(t, []float64{22.239999771118164, 31.399999618530273}, f.Freq)
	require.Len(t, f.Time, 5)
	assert.Equal(t, testEpoch, f.Time[0])
	assert.Equal(t, testEpoch.Add(4*time.Second), f.Time[4])

	tb := f.Vars["tb"]
	require.Equal(t, 2, tb.Width)
	assert.Equal(t, 100.0, tb.At(0, 0))
	assert.Equal(t, 204.0, tb.At(4, 1))
	assert.Equal(t, 90.0, f.Vars["ele"].At(2, 0))
	assert.Equal(t, 0.0, f.Vars["azi"].At(2, 0))
	assert.Equal(t, 0.0, f.Vars["rainflag"].At(3, 0))
	assert.Equal(t, []float64{2.7000000476837158, 2.7000000476837158}, f.HeaderExtras["tb_min"])
}

func TestDecodeBRTZeroTbBecomesMissing(t *testing.T) {
	var b binfile
	b.i32(666666)
	b.i32(1) // n_meas
	b.i32(1) // timeref
	b.i32(2) // n_freq
	b.f32s(22.24, 31.4)
	b.f32s(0, 0)
	b.f32s(0, 0)
	b.i32(EncodeTime(testEpoch))
	b.u8(0)
	b.f32(0) // unobserved channel
	b.f32(150)
	b.f32(float32(encodeAngleV1(90, 0)))

	f, err := Decode(KindBRT, b.bytes())
	require.NoError(t, err)
	assert.True(t, math.IsNaN(f.Vars["tb"].At(0, 0)))
	assert.Equal(t, 150.0, f.Vars["tb"].At(0, 1))
}

func TestDecodeFilecodeErrors(t *testing.T) {
	t.Run("unknown filecode", func(t *testing.T) {
		var b binfile
		b.i32(123456)
		_, err := Decode(KindBRT, b.bytes())
		require.ErrorIs(t, err, ErrUnknownFileType)
	})

	t.Run("family mismatch", func(t *testing.T) {
		_, err := Decode(KindHKD, buildBRT(1))
		require.ErrorIs(t, err, ErrWrongFileType)
	})
}

func TestDecodeLengthValidation(t *testing.T) {
	full := buildBRT(3)

	t.Run("truncated by one byte", func(t *testing.T) {
		_, err := Decode(KindBRT, full[:len(full)-1])
		require.ErrorIs(t, err, ErrFileTooShort)
	})

	t.Run("one trailing byte", func(t *testing.T) {
		long := append(append([]byte{}, full...), 0x00)
		_, err := Decode(KindBRT, long)
		require.ErrorIs(t, err, ErrFileTooLong)
	})

	t.Run("exact length decodes", func(t *testing.T) {
		_, err := Decode(KindBRT, full)
		require.NoError(t, err)
	})
}

// buildBLB writes a structure version 2 scan file with 2 channels, 3 sweep
// elevations and the given number of sweeps.
func buildBLB(nScans int) []byte {
	var b binfile
	b.i32(567845848)
	b.i32(int32(nScans))
	b.i32(2) // n_freq
	b.f32s(2.7, 2.7)
	b.f32s(330, 330)
	b.i32(1) // timeref
	b.f32s(22.24, 31.4)
	b.i32(3) // n_ele
	b.f32s(90, 30, 10)
	for s := 0; s < nScans; s++ {
		b.i32(EncodeTime(testEpoch.Add(time.Duration(s) * time.Minute)))
		b.u8(0b001) // rain, first quadrant
		// channel blocks: tb at the 3 angles plus ambient temperature
		b.f32s(101, 102, 103, 290)
		b.f32s(201, 202, 203, 290)
	}
	return b.bytes()
}

func TestDecodeBLB(t *testing.T) {
	f, err := Decode(KindBLB, buildBLB(2))
	require.NoError(t, err)

	assert.Equal(t, 6, f.Samples) // 2 sweeps x 3 angles
	require.Len(t, f.SweepEnd, 2)
	assert.Equal(t, testEpoch, f.SweepEnd[0])
	assert.Equal(t, []float64{90, 30, 10}, f.ScanEle)

	tb := f.Vars["tb"]
	require.Equal(t, 2, tb.Width)
	// sweep 0: angle rows carry one spectrum each
	assert.Equal(t, 101.0, tb.At(0, 0))
	assert.Equal(t, 201.0, tb.At(0, 1))
	assert.Equal(t, 103.0, tb.At(2, 0))
	// sweep 1 repeats the pattern
	assert.Equal(t, 102.0, tb.At(4, 0))

	assert.Equal(t, 90.0, f.Vars["ele"].At(0, 0))
	assert.Equal(t, 10.0, f.Vars["ele"].At(2, 0))
	assert.Equal(t, 290.0, f.Vars["ambient_temperature"].At(5, 0))
	assert.Equal(t, 1.0, f.Vars["rainflag"].At(0, 0))
	assert.Equal(t, 1.0, f.Vars["scan_quadrant"].At(0, 0))
}

func TestDecodeBLBVersion1ChannelMismatch(t *testing.T) {
	var b binfile
	b.i32(567845847) // structure version 1
	b.i32(1)         // n_scans
	// assumed 14 channels for everything up to n_freq_file
	for i := 0; i < 14; i++ {
		b.f32(2.7)
	}
	for i := 0; i < 14; i++ {
		b.f32(330)
	}
	b.i32(1)  // timeref
	b.i32(10) // n_freq_file disagrees with the assumption
	_, err := Decode(KindBLB, b.bytes())
	require.ErrorIs(t, err, ErrWrongNumberOfChannels)
}

func TestDecodeIRT(t *testing.T) {
	var b binfile
	b.i32(671112496) // structver 2, angle version 1
	b.i32(2)         // n_meas
	b.f32(-50)       // irt_min
	b.f32(50)        // irt_max
	b.i32(1)         // timeref
	b.i32(1)         // n_wavelengths
	b.f32(10.5)
	for i := 0; i < 2; i++ {
		b.i32(EncodeTime(testEpoch.Add(time.Duration(i) * time.Second)))
		b.u8(0)
		b.f32(float32(-20 + i))
		b.f32(float32(encodeAngleV1(90, 180)))
	}

	f, err := Decode(KindIRT, b.bytes())
	require.NoError(t, err)
	assert.Equal(t, 2, f.Samples)
	assert.Equal(t, []float64{10.5}, f.Wavelength)
	assert.Equal(t, -20.0, f.Vars["irt"].At(0, 0))
	assert.Equal(t, 90.0, f.Vars["ele"].At(1, 0))
	assert.Equal(t, 180.0, f.Vars["azi"].At(1, 0))
}

func TestDecodeMET(t *testing.T) {
	var b binfile
	b.i32(599658944) // structver 2
	b.i32(2)         // n_meas
	b.u8(0b011)      // windspeed + winddir, no rainrate
	b.f32s(900, 1100, -40, 50, 0, 100)
	b.f32s(0, 50)  // windspeed min/max
	b.f32s(0, 360) // winddir min/max
	b.i32(1)       // timeref
	for i := 0; i < 2; i++ {
		b.i32(EncodeTime(testEpoch.Add(time.Duration(i) * time.Second)))
		b.u8(1)
		b.f32(950.5)
		b.f32(float32(15 + i))
		b.f32(80)
		b.f32(18) // windspeed in km/h
		b.f32(270)
	}

	f, err := Decode(KindMET, b.bytes())
	require.NoError(t, err)
	assert.Equal(t, 2, f.Samples)
	assert.InDelta(t, 950.5, f.Vars["pressure"].At(0, 0), 1e-4)
	assert.Equal(t, 16.0, f.Vars["temperature"].At(1, 0))
	assert.Equal(t, 80.0, f.Vars["relative_humidity"].At(0, 0))
	assert.Equal(t, 18.0, f.Vars["windspeed"].At(0, 0))
	assert.Equal(t, 270.0, f.Vars["winddir"].At(1, 0))
	assert.Equal(t, 1.0, f.Vars["rainflag"].At(0, 0))
	_, hasRainrate := f.Vars["rainrate"]
	assert.False(t, hasRainrate)
}

// buildHKD writes a housekeeping file carrying coordinates and status words.
func buildHKD(times []time.Time, status []uint32) []byte {
	var b binfile
	b.i32(837854832)
	b.i32(int32(len(times)))
	b.i32(1)        // timeref
	b.i32(0b100001) // contents: coordinates + statusflag
	for i, ts := range times {
		b.i32(EncodeTime(ts))
		b.u8(0)
		b.f32(834.5)    // lon raw: 8 deg 34.5 min
		b.f32(-4702.25) // lat raw: -47 deg 2.25 min
		b.i32(int32(status[i]))
	}
	return b.bytes()
}

func TestDecodeHKD(t *testing.T) {
	times := []time.Time{testEpoch, testEpoch.Add(time.Second)}
	f, err := Decode(KindHKD, buildHKD(times, []uint32{1 << 16, 0}))
	require.NoError(t, err)

	assert.Equal(t, 2, f.Samples)
	assert.InDelta(t, 8+34.5/60, f.Vars["lon"].At(0, 0), 1e-4)
	assert.InDelta(t, -(47 + 2.25/60), f.Vars["lat"].At(0, 0), 1e-4)
	assert.Equal(t, float64(1<<16), f.Vars["statusflag_raw"].At(0, 0))
	assert.Equal(t, 0.0, f.Vars["statusflag_raw"].At(1, 0))
	assert.Equal(t, 0.0, f.Vars["alarm"].At(0, 0))
}

func TestDecodeHKDBadCoordinate(t *testing.T) {
	var b binfile
	b.i32(837854832)
	b.i32(1)
	b.i32(1)
	b.i32(0b000001) // coordinates only
	b.i32(EncodeTime(testEpoch))
	b.u8(0)
	b.f32(875.0) // 8 deg 75 min: invalid
	b.f32(4702.25)
	_, err := Decode(KindHKD, b.bytes())
	require.ErrorIs(t, err, ErrCoordinate)
}

func TestKindForExtension(t *testing.T) {
	for _, ext := range []string{"brt", "blb", "irt", "met", "hkd"} {
		k, ok := KindForExtension(ext)
		require.True(t, ok)
		assert.Equal(t, ext, k.String())
	}
	_, ok := KindForExtension("csv")
	assert.False(t, ok)
}
