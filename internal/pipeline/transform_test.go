package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeteoSwiss/mwr-raw2l1/internal/config"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/observability"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/quality"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/rpg"
)

func f64ptr(x float64) *float64 { return &x }

func testInstrument() *config.Instrument {
	return &config.Instrument{
		StationLatitude:  f64ptr(46.81),
		StationLongitude: f64ptr(6.94),
		StationAltitude:  f64ptr(491),
	}
}

// writeBRT writes a minimal single-channel version 1 brightness temperature
// file with one zenith sample per given timestamp.
func writeBRT(t *testing.T, path string, times ...time.Time) {
	t.Helper()
	var buf bytes.Buffer
	le := binary.LittleEndian
	w := func(v any) { require.NoError(t, binary.Write(&buf, le, v)) }

	w(int32(666666))     // filecode, angle version 1
	w(int32(len(times))) // n_meas
	w(int32(1))          // timeref UTC
	w(int32(1))          // n_freq
	w(float32(22.24))    // freq
	w(float32(0))        // tb_min
	w(float32(400))      // tb_max
	for _, ts := range times {
		w(rpg.EncodeTime(ts))
		w(uint8(0))       // rainflag
		w(float32(150.5)) // tb
		w(float32(90))    // pointing: zenith
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestTransform(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2019, 8, 3, 12, 0, 0, 0, time.UTC)
	brtPath := filepath.Join(dir, "unit.brt")
	writeBRT(t, brtPath, start, start.Add(10*time.Second))

	tr := NewTransformer(testInstrument(), quality.DefaultConfig(), false,
		discardLogger(), observability.NewMetricsForTesting())

	out, err := tr.Transform(context.Background(), FileSet{
		Name:  "unit",
		Files: map[rpg.Kind][]string{rpg.KindBRT: {brtPath}},
	})
	require.NoError(t, err)

	m := out.Measurement
	require.Len(t, m.Time, 2)
	assert.Equal(t, start, m.Time[0])
	assert.InDelta(t, 150.5, m.Vars["tb"].At(0, 0), 1e-4)
	assert.Equal(t, 46.81, m.Vars["station_latitude"].At(0, 0))

	flags, ok := m.Vars[quality.FlagVar]
	require.True(t, ok, "quality flags attached")
	assert.Equal(t, 1, flags.Width)
}

func TestTransformSkipsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2019, 8, 3, 12, 0, 0, 0, time.UTC)
	brtPath := filepath.Join(dir, "unit.brt")
	writeBRT(t, brtPath, start)

	badPath := filepath.Join(dir, "unit.irt")
	require.NoError(t, os.WriteFile(badPath, []byte{1, 2, 3, 4}, 0o644))

	tr := NewTransformer(testInstrument(), quality.DefaultConfig(), false,
		discardLogger(), observability.NewMetricsForTesting())

	out, err := tr.Transform(context.Background(), FileSet{
		Name: "unit",
		Files: map[rpg.Kind][]string{
			rpg.KindBRT: {brtPath},
			rpg.KindIRT: {badPath},
		},
	})
	require.NoError(t, err, "corrupt auxiliary file must not lose the unit")
	assert.Len(t, out.Measurement.Time, 1)
}

func TestTransformFailsWithoutDecodableData(t *testing.T) {
	dir := t.TempDir()
	badPath := filepath.Join(dir, "unit.brt")
	require.NoError(t, os.WriteFile(badPath, []byte{1, 2, 3, 4}, 0o644))

	tr := NewTransformer(testInstrument(), quality.DefaultConfig(), false,
		discardLogger(), observability.NewMetricsForTesting())

	_, err := tr.Transform(context.Background(), FileSet{
		Name:  "unit",
		Files: map[rpg.Kind][]string{rpg.KindBRT: {badPath}},
	})
	require.Error(t, err)
}

func TestQualityConfigOverrides(t *testing.T) {
	off := false
	cfg := QualityConfig(&config.Quality{
		CheckSun: &off,
		TbMin:    f64ptr(10),
	})

	assert.False(t, cfg.CheckSun)
	assert.Equal(t, 10.0, cfg.TbMin)
	assert.True(t, cfg.CheckRain, "unset checks keep their defaults")
	assert.Equal(t, 330.0, cfg.TbMax)

	def := QualityConfig(nil)
	assert.Equal(t, quality.DefaultConfig(), def)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "unknown_filetype", failureReason(rpg.ErrUnknownFileType))
	assert.Equal(t, "wrong_filetype", failureReason(rpg.ErrWrongFileType))
	assert.Equal(t, "too_short", failureReason(rpg.ErrFileTooShort))
	assert.Equal(t, "read", failureReason(os.ErrNotExist))
}
