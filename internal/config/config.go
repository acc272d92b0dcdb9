package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/flybeeper/sensor-features/internal/filter"
	"github.com/flybeeper/sensor-features/internal/models"
	"github.com/flybeeper/sensor-features/internal/repository"
)

// Config содержит конфигурацию приложения
type Config struct {
	Environment string
	Pipeline    PipelineConfig
	Loader      LoaderConfig
	Output      OutputConfig
	Monitoring  MonitoringConfig
}

// PipelineConfig конфигурация этапов обработки
type PipelineConfig struct {
	Window           int
	InPlace          bool
	Verbose          bool
	DistanceStrategy string
	Workers          int
	EnableMerge      bool
	MergeSources     []string
	LabelColumn      string
	LabelClasses     []string
	LabelTiePolicy   string
}

// LoaderConfig конфигурация загрузки датасета
type LoaderConfig struct {
	DataDir     string
	ExcludeVal  []string
	ExcludeTest []string
}

// OutputConfig конфигурация экспорта результатов
type OutputConfig struct {
	Dir string // Пустое значение отключает экспорт
}

// MonitoringConfig конфигурация мониторинга
type MonitoringConfig struct {
	MetricsTextfile string // Пустое значение отключает запись метрик
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Pipeline: PipelineConfig{
			Window:           getInt("WINDOW", 100),
			InPlace:          getBool("IN_PLACE", true),
			Verbose:          getBool("VERBOSE", false),
			DistanceStrategy: getEnv("DISTANCE_STRATEGY", filter.StrategyLinear),
			Workers:          getInt("WORKERS", 1),
			EnableMerge:      getBool("ENABLE_MERGE", true),
			MergeSources: getList("MERGE_SOURCES", []string{
				string(models.SensorGPS), string(models.SensorMPULeft), string(models.SensorMPURight),
			}),
			LabelColumn:    getEnv("LABEL_COLUMN", "road_type"),
			LabelClasses:   getList("LABEL_CLASSES", []string{"dirt_road", "cobblestone_road", "asphalt_road"}),
			LabelTiePolicy: getEnv("LABEL_TIE_POLICY", string(filter.TieFirstMatch)),
		},
		Loader: LoaderConfig{
			DataDir:     getEnv("DATA_DIR", ".data"),
			ExcludeVal:  getList("EXCLUDE_VAL", nil),
			ExcludeTest: getList("EXCLUDE_TEST", nil),
		},
		Output: OutputConfig{
			Dir: getEnv("OUTPUT_DIR", ""),
		},
		Monitoring: MonitoringConfig{
			MetricsTextfile: getEnv("METRICS_TEXTFILE", ""),
		},
	}

	// Валидация
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Loader.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}

	if c.Pipeline.Window <= 0 {
		return fmt.Errorf("WINDOW must be positive")
	}

	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive")
	}

	if c.Pipeline.LabelColumn == "" {
		return fmt.Errorf("LABEL_COLUMN is required")
	}

	if len(c.Pipeline.LabelClasses) == 0 {
		return fmt.Errorf("LABEL_CLASSES must not be empty")
	}

	if err := c.ToFilterConfig().Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	return nil
}

// ToFilterConfig собирает конфигурацию цепочки этапов
func (c *Config) ToFilterConfig() *filter.FilterConfig {
	sources := make([]models.SensorType, len(c.Pipeline.MergeSources))
	for i, s := range c.Pipeline.MergeSources {
		sources[i] = models.SensorType(s)
	}
	return &filter.FilterConfig{
		Window:           c.Pipeline.Window,
		InPlace:          c.Pipeline.InPlace,
		Verbose:          c.Pipeline.Verbose,
		DistanceStrategy: c.Pipeline.DistanceStrategy,
		Workers:          c.Pipeline.Workers,
		EnableMerge:      c.Pipeline.EnableMerge,
		MergeSources:     sources,
		LabelGroups: []filter.LabelGroup{
			{Column: c.Pipeline.LabelColumn, Classes: c.Pipeline.LabelClasses},
		},
		TiePolicy: filter.TiePolicy(c.Pipeline.LabelTiePolicy),
	}
}

// ToLoadOptions собирает параметры загрузки датасета
func (c *Config) ToLoadOptions() repository.LoadOptions {
	return repository.LoadOptions{
		ExcludeVal:  c.Loader.ExcludeVal,
		ExcludeTest: c.Loader.ExcludeTest,
		Verbose:     c.Pipeline.Verbose,
	}
}

// Helper функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getList читает список через запятую; пустые элементы отбрасываются
func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// LogLevel возвращает уровень логирования
func LogLevel() string {
	return getEnv("LOG_LEVEL", "info")
}

// LogFormat возвращает формат логирования
func LogFormat() string {
	return getEnv("LOG_FORMAT", "text")
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func IsDevelopment() bool {
	return getEnv("ENVIRONMENT", "development") == "development"
}
