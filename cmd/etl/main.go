package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/energitic/windfarm-etl/internal/adapter/csvfile"
	"github.com/energitic/windfarm-etl/internal/adapter/httpserver"
	kafkaadapter "github.com/energitic/windfarm-etl/internal/adapter/kafka"
	"github.com/energitic/windfarm-etl/internal/adapter/openmeteo"
	"github.com/energitic/windfarm-etl/internal/adapter/postgres"
	"github.com/energitic/windfarm-etl/internal/config"
	"github.com/energitic/windfarm-etl/internal/dashboard"
	"github.com/energitic/windfarm-etl/internal/domain"
	"github.com/energitic/windfarm-etl/internal/observability"
	"github.com/energitic/windfarm-etl/internal/pipeline"
)

func main() {
	source := flag.String("source", "", "override the SOURCE env var (api, db, csv)")
	flag.Parse()
	if *source != "" {
		os.Setenv("SOURCE", *source)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		if pool, err = pgxpool.New(ctx, cfg.DatabaseURL); err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
	}

	extractor, err := buildExtractor(cfg, pool, metrics, logger)
	if err != nil {
		logger.Error("failed to build extractor", "source", cfg.Source, "error", err)
		os.Exit(1)
	}

	stages := pipeline.Stages(pipeline.StageOptions{
		Location:   cfg.Location(),
		CleanFirst: cfg.CleanFirst,
		Anomaly: domain.AnomalyOptions{
			MergeFlags:    cfg.MergeFlags,
			DropAnomalies: cfg.DropAnomalies,
		},
	}, logger, metrics)

	loaders := []pipeline.Loader{
		csvfile.NewWriter(cfg.OutputPath),
		dashboard.NewRenderer(cfg.DashboardPath, logger),
	}

	if pool != nil {
		loaders = append(loaders, postgres.NewWriter(pool, cfg.SinkTable, logger))
		logger.Info("postgres sink enabled", "table", cfg.SinkTable)
	}

	var kafkaWriter *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		kafkaWriter = kafkaadapter.NewWriter(cfg, logger)
		loaders = append(loaders, kafkaWriter)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka sink disabled")
	}

	p := pipeline.New(extractor, stages, loaders, cfg.RunInterval, logger, metrics)

	srv := httpserver.NewServer(cfg.HTTPAddr, p, cfg.DashboardPath, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// buildExtractor wires the configured source. The pool is shared with the
// measurements sink and is non-nil whenever DATABASE_URL is set.
func buildExtractor(cfg *config.Config, pool *pgxpool.Pool, metrics *observability.Metrics, logger *slog.Logger) (pipeline.Extractor, error) {
	switch cfg.Source {
	case config.SourceAPI:
		client := openmeteo.NewClient(cfg.MeteoBaseURL, cfg.MeteoTimeout, metrics, logger)
		cached := openmeteo.NewCachedClient(client, cfg.MeteoCacheSize, cfg.MeteoCacheTTL, clockwork.NewRealClock(), metrics)
		logger.Info("open-meteo source configured",
			"lat", cfg.MeteoLatitude, "lon", cfg.MeteoLongitude,
			"cache_size", cfg.MeteoCacheSize, "cache_ttl", cfg.MeteoCacheTTL)
		return openmeteo.NewSource(cached, cfg.MeteoLatitude, cfg.MeteoLongitude), nil

	case config.SourceDB:
		logger.Info("postgres source configured", "table", cfg.DatabaseTable, "window", cfg.ExtractWindow)
		return postgres.NewReader(pool, cfg.DatabaseTable, cfg.ExtractWindow, clockwork.NewRealClock(), logger), nil

	case config.SourceCSV:
		logger.Info("csv source configured", "path", cfg.CSVPath)
		return csvfile.NewReader(cfg.CSVPath), nil

	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}
