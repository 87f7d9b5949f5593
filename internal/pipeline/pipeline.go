// Package pipeline orchestrates the conversion of raw instrument files into
// flagged measurements: an extractor discovers observation units on disk, a
// transformer decodes, assembles, and quality-flags each unit, and loaders
// deliver the result. Units are isolated from each other; one failing unit
// never stops the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MeteoSwiss/mwr-raw2l1/internal/measurement"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/observability"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/rpg"
)

// FileSet is one observation unit: all files sharing a basename, grouped by
// record family.
type FileSet struct {
	Name  string
	Files map[rpg.Kind][]string
}

// Output is one processed unit ready for delivery.
type Output struct {
	Unit        string
	Measurement *measurement.Measurement
}

// Extractor discovers observation units that have not been processed yet.
type Extractor interface {
	Extract(ctx context.Context) ([]FileSet, error)
}

// Transformer converts one observation unit into a flagged measurement.
type Transformer interface {
	Transform(ctx context.Context, fs FileSet) (*Output, error)
}

// Loader delivers a processed unit to a destination.
type Loader interface {
	Load(ctx context.Context, out *Output) error
}

// MultiLoader fans a processed unit out to several destinations and stops at
// the first failure.
type MultiLoader []Loader

func (ml MultiLoader) Load(ctx context.Context, out *Output) error {
	for _, l := range ml {
		if err := l.Load(ctx, out); err != nil {
			return err
		}
	}
	return nil
}

// Pipeline orchestrates the extract-transform-load cycle.
type Pipeline struct {
	extractor   Extractor
	transformer Transformer
	loader      Loader
	logger      *slog.Logger
	metrics     *observability.Metrics
	interval    time.Duration
	ready       atomic.Bool
}

// New creates a Pipeline. A zero interval means a single pass; a positive
// interval keeps the pipeline rescanning until its context is cancelled.
func New(e Extractor, t Transformer, l Loader, logger *slog.Logger,
	metrics *observability.Metrics, interval time.Duration) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		interval:    interval,
	}
}

// CheckReadiness returns nil once the pipeline has completed at least one
// scan cycle, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a scan yet")
	}
	return nil
}

// Run executes scan cycles until the context is cancelled. With a zero
// interval it processes the directory once and returns.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "watch_interval", p.interval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	for {
		err := p.ProcessOnce(ctx)
		if p.interval == 0 {
			return err
		}
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			p.logger.Error("scan cycle failed", "error", err)
		}
		if !sleepWithContext(ctx, p.interval) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// ProcessOnce runs one scan cycle: every discovered unit is transformed and
// loaded on its own, failures are counted but do not touch other units.
func (p *Pipeline) ProcessOnce(ctx context.Context) error {
	sets, err := p.extractor.Extract(ctx)
	if err != nil {
		return fmt.Errorf("extracting observation units: %w", err)
	}

	failed := 0
	for _, fs := range sets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !p.processUnit(ctx, fs) {
			failed++
		}
	}
	p.ready.Store(true)

	if failed > 0 {
		return fmt.Errorf("%d of %d observation units failed", failed, len(sets))
	}
	if len(sets) > 0 {
		p.logger.Info("scan cycle complete", "units", len(sets))
	}
	return nil
}

func (p *Pipeline) processUnit(ctx context.Context, fs FileSet) bool {
	start := time.Now()

	out, err := p.transformer.Transform(ctx, fs)
	if err != nil {
		p.logger.Error("unit failed", "unit", fs.Name, "error", err)
		p.metrics.UnitsFailed.Inc()
		return false
	}

	if err := p.loader.Load(ctx, out); err != nil {
		p.logger.Error("load failed", "unit", fs.Name, "error", err)
		p.metrics.UnitsFailed.Inc()
		return false
	}

	samples := len(out.Measurement.Time)
	p.metrics.UnitsProcessed.Inc()
	p.metrics.RecordsWritten.Add(float64(samples))
	p.metrics.SamplesPerUnit.Observe(float64(samples))
	p.metrics.UnitProcessingDuration.Observe(time.Since(start).Seconds())
	p.logger.Info("unit processed", "unit", fs.Name,
		"samples", samples, "duration", time.Since(start))
	return true
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
