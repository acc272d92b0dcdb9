package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/flybeeper/sensor-features/internal/config"
	"github.com/flybeeper/sensor-features/internal/filter"
	"github.com/flybeeper/sensor-features/internal/metrics"
	"github.com/flybeeper/sensor-features/internal/repository"
	"github.com/flybeeper/sensor-features/pkg/utils"
)

var (
	// Version будет установлен при сборке через ldflags
	Version = "dev"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализируем логирование
	logger := utils.NewLogger(config.LogLevel(), config.LogFormat())
	logger.WithField("version", Version).Info("Starting sensor feature pipeline")
	metrics.SetAppInfo(Version)

	// Загрузка прерывается по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := repository.NewCSVRepository(cfg.Loader.DataDir, logger)
	ds, err := repo.LoadDataset(ctx, cfg.ToLoadOptions())
	if err != nil {
		logger.WithError(err).WithField("data_dir", cfg.Loader.DataDir).Fatal("Failed to load dataset")
	}

	for _, s := range ds.Summary() {
		logger.WithFields(map[string]interface{}{
			"split":   s.Split.String(),
			"sensor":  s.Sensor,
			"session": s.Session,
			"rows":    s.Rows,
			"columns": s.Columns,
			"origin":  s.Origin,
			"area":    s.Area,
		}).Progress(cfg.Pipeline.Verbose, "Dataset table")
	}

	chain, err := filter.NewChain(cfg.ToFilterConfig(), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build pipeline")
	}
	logger.WithField("chain", chain.Description()).Debug("Pipeline built")

	result, err := chain.Run(ds)
	if err != nil {
		logger.WithError(err).Fatal("Pipeline failed")
	}

	for _, issue := range result.Issues {
		logger.WithField("stage", issue.Stage).
			WithField("split", issue.Split.String()).
			WithField("sensor", issue.Sensor).
			WithField("session", issue.Session).
			WithError(issue.Err).
			Warn("Data issue")
	}

	if cfg.Output.Dir != "" {
		if err := repo.SaveDataset(ctx, result.Dataset, cfg.Output.Dir); err != nil {
			logger.WithError(err).WithField("output_dir", cfg.Output.Dir).Fatal("Failed to save dataset")
		}
	}

	if cfg.Monitoring.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.Monitoring.MetricsTextfile); err != nil {
			logger.WithError(err).Error("Failed to write metrics")
		}
	}

	if result.Err() != nil {
		logger.WithField("issues", len(result.Issues)).Error("Pipeline finished with data issues")
		os.Exit(1)
	}
	logger.WithField("duration_ms", result.Duration.Milliseconds()).Info("Pipeline finished")
}
