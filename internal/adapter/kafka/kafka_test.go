package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeteoSwiss/mwr-raw2l1/internal/measurement"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/pipeline"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/quality"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/rpg"
)

func TestSummarizeToMessage(t *testing.T) {
	start := time.Date(2019, 8, 3, 12, 0, 0, 0, time.UTC)
	out := &pipeline.Output{
		Unit: "station_0803",
		Measurement: &measurement.Measurement{
			Time: []time.Time{start, start.Add(10 * time.Second), start.Add(20 * time.Second)},
			Vars: map[string]rpg.Var{
				quality.FlagVar: {Data: []float64{
					0, 0,
					float64(quality.FlagRain), 0,
					0, 0,
				}, Width: 2},
			},
			Freq:        []float64{22.24, 31.4},
			ProcessedAt: start.Add(time.Hour),
		},
	}

	msg, err := summarizeToMessage(out)
	require.NoError(t, err)

	assert.Equal(t, []byte("station_0803"), msg.Key)
	assert.Contains(t, string(msg.Value), `"unit":"station_0803"`)
	assert.Contains(t, string(msg.Value), `"samples":3`)
	assert.Contains(t, string(msg.Value), `"channels":2`)
	assert.Contains(t, string(msg.Value), `"flagged_samples":1`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "unit", msg.Headers[0].Key)
	assert.Equal(t, "processed_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(out.Measurement.ProcessedAt.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestCountFlagged(t *testing.T) {
	assert.Equal(t, 0, countFlagged(rpg.Var{}), "no flag column")

	flags := rpg.Var{Data: []float64{
		0, float64(quality.FlagMissingTb),
		0, 0,
	}, Width: 2}
	assert.Equal(t, 1, countFlagged(flags))
}
