package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// conversion pipeline.
type Metrics struct {
	FilesDecoded    *prometheus.CounterVec // labels: family={brt,blb,irt,met,hkd}
	DecodeFailures  *prometheus.CounterVec // labels: family, reason
	UnitsProcessed  prometheus.Counter
	UnitsFailed     prometheus.Counter
	RecordsWritten  prometheus.Counter
	PipelineRunning prometheus.Gauge

	UnitProcessingDuration prometheus.Histogram
	SamplesPerUnit         prometheus.Histogram

	// Quality metrics.
	FlagBitsRaised *prometheus.CounterVec // labels: check
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FilesDecoded,
		m.DecodeFailures,
		m.UnitsProcessed,
		m.UnitsFailed,
		m.RecordsWritten,
		m.PipelineRunning,
		m.UnitProcessingDuration,
		m.SamplesPerUnit,
		m.FlagBitsRaised,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mwr_raw2l1",
			Name:      "files_decoded_total",
			Help:      "Instrument files decoded successfully, by record family.",
		}, []string{"family"}),
		DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mwr_raw2l1",
			Name:      "decode_failures_total",
			Help:      "Instrument files rejected by the decoder, by family and reason.",
		}, []string{"family", "reason"}),
		UnitsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mwr_raw2l1",
			Name:      "units_processed_total",
			Help:      "Observation units assembled, flagged, and written.",
		}),
		UnitsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mwr_raw2l1",
			Name:      "units_failed_total",
			Help:      "Observation units that could not be processed.",
		}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mwr_raw2l1",
			Name:      "records_written_total",
			Help:      "Measurement samples written to the output.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mwr_raw2l1",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		UnitProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mwr_raw2l1",
			Name:      "unit_processing_duration_seconds",
			Help:      "Duration of a complete decode-assemble-flag-write cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		SamplesPerUnit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mwr_raw2l1",
			Name:      "samples_per_unit",
			Help:      "Number of time samples in an assembled measurement.",
			Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000},
		}),
		FlagBitsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mwr_raw2l1",
			Name:      "flag_bits_raised_total",
			Help:      "Quality flag bits raised, by check.",
		}, []string{"check"}),
	}
}
