package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/MeteoSwiss/mwr-raw2l1/internal/adapter/http"
	kafkaadapter "github.com/MeteoSwiss/mwr-raw2l1/internal/adapter/kafka"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/config"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/observability"
	"github.com/MeteoSwiss/mwr-raw2l1/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	inst, err := config.LoadInstrument(cfg.InstrumentFile)
	if err != nil {
		logger.Error("failed to load instrument config", "error", err)
		os.Exit(1)
	}
	qcfg, err := config.LoadQuality(cfg.QualityFile)
	if err != nil {
		logger.Error("failed to load quality config", "error", err)
		os.Exit(1)
	}
	schema, err := config.LoadOutputSchema(cfg.SchemaFile)
	if err != nil {
		logger.Error("failed to load output schema", "error", err)
		os.Exit(1)
	}

	extractor := pipeline.NewDirExtractor(cfg.DataDir, logger)
	transformer := pipeline.NewTransformer(inst, pipeline.QualityConfig(qcfg),
		cfg.AcceptLocaltime, logger, metrics)

	loaders := pipeline.MultiLoader{
		pipeline.NewFileLoader(cfg.OutputDir, inst, schema, logger),
	}

	// Summary publishing is feature-flagged via KAFKA_ENABLED.
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		loaders = append(loaders, writer)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	p := pipeline.New(extractor, transformer, loaders, logger, metrics, cfg.WatchInterval)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start conversion pipeline. With a zero watch interval Run returns after
	// a single pass, so trigger shutdown once it finishes.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
		stop()
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
