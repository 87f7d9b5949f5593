package pipeline

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeteoSwiss/mwr-raw2l1/internal/config"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/measurement"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/rpg"
)

func testOutput() *Output {
	start := time.Date(2019, 8, 3, 12, 0, 0, 0, time.UTC)
	return &Output{
		Unit: "station_0803",
		Measurement: &measurement.Measurement{
			Time: []time.Time{start, start.Add(10 * time.Second)},
			Vars: map[string]rpg.Var{
				"tb":  {Data: []float64{100, math.NaN(), 102, 103}, Width: 2},
				"ele": {Data: []float64{90, 90}, Width: 1},
			},
			Freq:        []float64{22.24, 31.4},
			Station:     measurement.Station{Latitude: 46.81, Longitude: 6.94, Altitude: 491},
			ProcessedAt: start.Add(time.Hour),
		},
	}
}

func TestBuildDocument(t *testing.T) {
	doc, err := BuildDocument(testOutput(), testInstrument(), nil)
	require.NoError(t, err)

	assert.Equal(t, "station_0803", doc.Unit)
	assert.Equal(t, config.DefaultFillValue, doc.FillValue)
	assert.Equal(t, 46.81, doc.Station.Latitude)
	require.Contains(t, doc.Variables, "tb")
	require.Contains(t, doc.Variables, "ele")

	tb := doc.Variables["tb"]
	assert.Equal(t, 2, tb.Channels)
	assert.Equal(t, []float64{100, config.DefaultFillValue, 102, 103}, tb.Values,
		"NaN replaced by the fill value")
}

func TestBuildDocumentWithSchema(t *testing.T) {
	fill := -888.0
	schema := &config.OutputSchema{
		FillValue: &fill,
		Variables: []config.SchemaVariable{
			{Name: "tb", Rename: "brightness_temperature"},
			{Name: "irt", Optional: true},
		},
	}

	doc, err := BuildDocument(testOutput(), testInstrument(), schema)
	require.NoError(t, err)

	require.Contains(t, doc.Variables, "brightness_temperature")
	assert.NotContains(t, doc.Variables, "ele", "unselected columns are dropped")
	assert.NotContains(t, doc.Variables, "irt", "missing optional columns are skipped")
	assert.Equal(t, -888.0, doc.Variables["brightness_temperature"].Values[1])
}

func TestBuildDocumentMissingRequiredVariable(t *testing.T) {
	schema := &config.OutputSchema{
		Variables: []config.SchemaVariable{{Name: "irt"}},
	}

	_, err := BuildDocument(testOutput(), testInstrument(), schema)
	assert.ErrorIs(t, err, ErrSchemaVariable)
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	l := NewFileLoader(filepath.Join(dir, "out"), testInstrument(), nil, discardLogger())

	out := testOutput()
	require.NoError(t, l.Load(context.Background(), out))

	raw, err := os.ReadFile(filepath.Join(dir, "out", "station_0803.json"))
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, out.Unit, doc.Unit)
	assert.Len(t, doc.Time, 2)
	assert.Equal(t, []float64{22.24, 31.4}, doc.Frequency)
}
