//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/MeteoSwiss/mwr-raw2l1/internal/adapter/kafka"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/config"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/observability"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/pipeline"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/quality"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/rpg"
)

const testTopic = "test-unit-summaries"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka broker in a container and returns its
// bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "dial controller")
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func testInstrument() *config.Instrument {
	lat, lon, alt := 46.81, 6.94, 491.0
	return &config.Instrument{
		StationLatitude:  &lat,
		StationLongitude: &lon,
		StationAltitude:  &alt,
		StationName:      "Payerne",
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

type receivedSummary struct {
	Summary kafka.UnitSummary
	Key     string
	Headers map[string]string
}

// readSummary reads a single message from the sink consumer and deserializes it.
func readSummary(ctx context.Context, t *testing.T, consumer *kafkago.Reader) receivedSummary {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from summary topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var summary kafka.UnitSummary
	require.NoError(t, json.Unmarshal(msg.Value, &summary), "unmarshal summary message")

	return receivedSummary{
		Summary: summary,
		Key:     string(msg.Key),
		Headers: headers,
	}
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaWriterPublishesSummary verifies the adapter layer: kafka.Writer
// publishes one summary message per loaded unit.
func TestKafkaWriterPublishesSummary(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{
		KafkaBrokers: []string{broker},
		KafkaTopic:   testTopic,
	}

	// Transform a real brightness temperature file into a unit.
	dir := t.TempDir()
	start := time.Date(2019, 8, 3, 12, 0, 0, 0, time.UTC)
	writeBRT(t, filepath.Join(dir, "payerne.brt"), start, start.Add(10*time.Second))

	tr := pipeline.NewTransformer(testInstrument(), quality.DefaultConfig(), false,
		discardLogger(), observability.NewMetricsForTesting())
	out, err := tr.Transform(ctx, pipeline.FileSet{
		Name:  "payerne",
		Files: map[rpg.Kind][]string{rpg.KindBRT: {filepath.Join(dir, "payerne.brt")}},
	})
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.Load(ctx, out))

	got := readSummary(ctx, t, newConsumer(t, broker))
	assert.Equal(t, "payerne", got.Key)
	assert.Equal(t, "payerne", got.Headers["unit"])
	assert.Equal(t, "payerne", got.Summary.Unit)
	assert.Equal(t, 2, got.Summary.Samples)
	assert.Equal(t, 1, got.Summary.Channels)
	assert.Equal(t, start, got.Summary.Start.UTC())
	assert.Equal(t, start.Add(10*time.Second), got.Summary.End.UTC())
}

// TestPipelineEndToEnd runs a full scan cycle against a real broker: raw
// instrument files on disk in, a JSON document and a summary message out.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{
		KafkaBrokers: []string{broker},
		KafkaTopic:   testTopic,
	}

	dataDir := t.TempDir()
	outputDir := t.TempDir()
	start := time.Date(2019, 8, 3, 12, 0, 0, 0, time.UTC)
	writeBRT(t, filepath.Join(dataDir, "payerne.BRT"),
		start, start.Add(10*time.Second), start.Add(20*time.Second))

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(
		pipeline.NewDirExtractor(dataDir, discardLogger()),
		pipeline.NewTransformer(testInstrument(), quality.DefaultConfig(), false,
			discardLogger(), metrics),
		pipeline.MultiLoader{
			pipeline.NewFileLoader(outputDir, testInstrument(), nil, discardLogger()),
			writer,
		},
		discardLogger(), metrics, 0)

	require.NoError(t, p.Run(ctx))
	require.NoError(t, p.CheckReadiness(ctx))

	// The file loader wrote the schema-normalized document.
	data, err := os.ReadFile(filepath.Join(outputDir, "payerne.json"))
	require.NoError(t, err)
	var doc pipeline.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "payerne", doc.Unit)
	assert.Len(t, doc.Time, 3)
	assert.Equal(t, "Payerne", doc.Station.Name)

	// The kafka writer published the matching summary.
	got := readSummary(ctx, t, newConsumer(t, broker))
	assert.Equal(t, "payerne", got.Summary.Unit)
	assert.Equal(t, 3, got.Summary.Samples)
	assert.Equal(t, start, got.Summary.Start.UTC())
}

// TestPipelineSkipsUndecodableUnit verifies that a unit whose only file is
// corrupt fails in isolation: the healthy unit is still published.
func TestPipelineSkipsUndecodableUnit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{
		KafkaBrokers: []string{broker},
		KafkaTopic:   testTopic,
	}

	dataDir := t.TempDir()
	start := time.Date(2019, 8, 3, 12, 0, 0, 0, time.UTC)
	writeBRT(t, filepath.Join(dataDir, "good.brt"), start)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "bad.brt"),
		[]byte{1, 2, 3, 4}, 0o644))

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(
		pipeline.NewDirExtractor(dataDir, discardLogger()),
		pipeline.NewTransformer(testInstrument(), quality.DefaultConfig(), false,
			discardLogger(), metrics),
		writer,
		discardLogger(), metrics, 0)

	err := p.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 observation units failed")

	// Only the healthy unit reached the topic.
	consumer := newConsumer(t, broker)
	got := readSummary(ctx, t, consumer)
	assert.Equal(t, "good", got.Summary.Unit)
	assert.Equal(t, 1, got.Summary.Samples)

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on summary topic")
}
