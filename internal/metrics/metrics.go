package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Метрики загрузки
	SessionsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_features_sessions_loaded_total",
			Help: "Total number of recording sessions loaded",
		},
		[]string{"split"},
	)

	TablesLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_features_tables_loaded_total",
			Help: "Total number of sensor tables loaded",
		},
		[]string{"sensor"},
	)

	FilesMissing = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_features_files_missing_total",
			Help: "Total number of expected sensor files missing from a session",
		},
		[]string{"sensor"},
	)

	// Метрики этапов пайплайна
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensor_features_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	TablesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_features_tables_processed_total",
			Help: "Total number of tables processed by a stage",
		},
		[]string{"stage"},
	)

	TablesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_features_tables_skipped_total",
			Help: "Total number of tables skipped by a stage",
		},
		[]string{"stage"},
	)

	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_features_rows_dropped_total",
			Help: "Total number of rows dropped by a stage",
		},
		[]string{"stage"},
	)

	ColumnsAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_features_columns_added_total",
			Help: "Total number of derived columns added by a stage",
		},
		[]string{"stage"},
	)

	Issues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_features_issues_total",
			Help: "Total number of structural data issues surfaced by a stage",
		},
		[]string{"stage"},
	)

	// Общие метрики приложения
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sensor_features_app_info",
			Help: "Application information",
		},
		[]string{"version"},
	)
)

// SetAppInfo устанавливает информацию о версии приложения
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version).Set(1)
}

// WriteTextfile сохраняет все зарегистрированные метрики в файл формата
// node_exporter textfile collector
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
