// Package kafka publishes a summary of every processed observation unit to a
// Kafka topic, so downstream monitoring sees new measurements without
// polling the output directory.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/MeteoSwiss/mwr-raw2l1/internal/config"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/pipeline"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/quality"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/rpg"
)

// UnitSummary is the message published per processed unit.
type UnitSummary struct {
	Unit           string    `json:"unit"`
	Samples        int       `json:"samples"`
	Channels       int       `json:"channels"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	FlaggedSamples int       `json:"flagged_samples"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// Writer publishes unit summaries. It implements pipeline.Loader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Load publishes the summary of one processed unit.
func (w *Writer) Load(ctx context.Context, out *pipeline.Output) error {
	msg, err := summarizeToMessage(out)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing unit %s: %w", out.Unit, err)
	}
	w.logger.Debug("unit summary published", "unit", out.Unit)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// summarizeToMessage condenses a measurement into its Kafka message.
func summarizeToMessage(out *pipeline.Output) (kafkago.Message, error) {
	m := out.Measurement
	s := UnitSummary{
		Unit:           out.Unit,
		Samples:        len(m.Time),
		Channels:       len(m.Freq),
		FlaggedSamples: countFlagged(m.Vars[quality.FlagVar]),
		ProcessedAt:    m.ProcessedAt,
	}
	if len(m.Time) > 0 {
		s.Start = m.Time[0]
		s.End = m.Time[len(m.Time)-1]
	}

	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize unit summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(out.Unit),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "unit", Value: []byte(out.Unit)},
			{Key: "processed_at", Value: []byte(s.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}

// countFlagged counts samples with at least one raised flag bit on any
// channel. A measurement without quality flags counts as unflagged.
func countFlagged(flags rpg.Var) int {
	if flags.Width == 0 {
		return 0
	}
	n := 0
	for i := 0; i < flags.Samples(); i++ {
		for c := 0; c < flags.Width; c++ {
			if uint16(flags.At(i, c)) != 0 {
				n++
				break
			}
		}
	}
	return n
}
