package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/storm-peakflow/internal/adapter/csvfile"
	httpadapter "github.com/couchcryptid/storm-peakflow/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-peakflow/internal/adapter/kafka"
	"github.com/couchcryptid/storm-peakflow/internal/adapter/pfds"
	"github.com/couchcryptid/storm-peakflow/internal/adapter/sqlite"
	"github.com/couchcryptid/storm-peakflow/internal/config"
	"github.com/couchcryptid/storm-peakflow/internal/domain"
	"github.com/couchcryptid/storm-peakflow/internal/observability"
	"github.com/couchcryptid/storm-peakflow/internal/pipeline"
	"github.com/couchcryptid/storm-peakflow/internal/scenario"
	"github.com/couchcryptid/storm-peakflow/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store, err := sqlite.Open(cfg.StorePath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.StorePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	fetcher := pfds.NewClient(cfg.PFDSBaseURL, cfg.PFDSTimeout, logger)
	loader := csvfile.NewCachedLoader(csvfile.NewLoader(fetcher, logger), cfg.PrecipCacheSize, metrics)

	var scenarios *scenario.File
	if cfg.ScenariosFile != "" {
		scenarios, err = scenario.Load(cfg.ScenariosFile)
		if err != nil {
			logger.Error("failed to load scenarios", "path", cfg.ScenariosFile, "error", err)
			os.Exit(1)
		}
		logger.Info("scenarios loaded", "path", cfg.ScenariosFile, "count", len(scenarios.Scenarios))
	}

	deps := service.Deps{
		Store:     store,
		Loader:    loader,
		Locator:   fetcher,
		Scenarios: scenarios,
		Precip:    cfg.Precip,
		Engine:    pipeline.OptionsFromConfig(cfg, logger),
		Logger:    logger,
		Metrics:   metrics,
	}

	// Results publishing is feature-flagged via KAFKA_ENABLED.
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		deps.Publisher = writer
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaResultsTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	svc := service.New(deps)
	srv := httpadapter.NewServer(cfg.HTTPAddr, store, svc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var scheduler *cron.Cron
	if cfg.RerunSchedule != "" {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.RerunSchedule, func() { scheduledRerun(ctx, svc, logger, metrics) }); err != nil {
			logger.Error("failed to schedule reruns", "schedule", cfg.RerunSchedule, "error", err)
			os.Exit(1)
		}
		scheduler.Start()
		logger.Info("scenario reruns scheduled", "schedule", cfg.RerunSchedule)
	}

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if scheduler != nil {
		// Wait for a running rerun to finish, bounded by the shutdown timeout.
		select {
		case <-scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn("scheduled rerun still running at shutdown")
		}
	}
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

func scheduledRerun(ctx context.Context, svc *service.Service, logger *slog.Logger, metrics *observability.Metrics) {
	tables, err := svc.RerunLatest(ctx)
	switch {
	case errors.Is(err, domain.ErrRunNotFound):
		metrics.ScheduledReruns.WithLabelValues("skipped").Inc()
		logger.Info("scheduled rerun skipped, no base run stored yet")
	case err != nil:
		metrics.ScheduledReruns.WithLabelValues("error").Inc()
		logger.Error("scheduled rerun failed", "error", err)
	default:
		metrics.ScheduledReruns.WithLabelValues("success").Inc()
		logger.Info("scheduled rerun complete", "runs", len(tables))
	}
}
