package filter

import (
	"errors"
	"fmt"
	"time"

	"github.com/flybeeper/sensor-features/internal/metrics"
	"github.com/flybeeper/sensor-features/internal/models"
	"github.com/flybeeper/sensor-features/pkg/utils"
)

// Chain цепочка этапов для последовательного применения к датасету
type Chain struct {
	stages []Stage
	config *FilterConfig
	logger *utils.Logger
}

// RunResult результат прогона цепочки
type RunResult struct {
	Dataset    *models.Dataset `json:"-"`
	Stages     []*StageResult  `json:"stages"`
	Issues     []Issue         `json:"issues,omitempty"`
	Statistics StageStats      `json:"statistics"`
	Duration   time.Duration   `json:"duration"`
}

// Err объединяет все проблемы прогона в одну ошибку; nil, если проблем нет
func (r *RunResult) Err() error {
	if len(r.Issues) == 0 {
		return nil
	}
	errs := make([]error, len(r.Issues))
	for i, issue := range r.Issues {
		errs[i] = issue
	}
	return errors.Join(errs...)
}

// NewChain создает цепочку этапов в зависимости от конфигурации:
// очистка, объединение, сглаживание, расстояния, метки
func NewChain(config *FilterConfig, logger *utils.Logger) (*Chain, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter config: %w", err)
	}
	chain := &Chain{
		stages: make([]Stage, 0, 5),
		config: config,
		logger: logger,
	}

	chain.AddStage(NewSanitizeStage(config, logger))

	if config.EnableMerge {
		chain.AddStage(NewMergeStage(config, logger))
	}

	smoothing, err := NewSmoothingStage(config, logger)
	if err != nil {
		return nil, err
	}
	chain.AddStage(smoothing)

	distance, err := NewDistanceStage(config, logger)
	if err != nil {
		return nil, err
	}
	chain.AddStage(distance)

	if len(config.LabelGroups) > 0 {
		chain.AddStage(NewLabelStage(config, logger))
	}

	return chain, nil
}

// AddStage добавляет этап в конец цепочки
func (c *Chain) AddStage(stage Stage) {
	c.stages = append(c.stages, stage)
}

// Stages возвращает этапы цепочки
func (c *Chain) Stages() []Stage {
	return append([]Stage(nil), c.stages...)
}

// Run применяет все этапы к датасету. Без InPlace цепочка работает с копией,
// исходный датасет не изменяется. Ошибка этапа записывается в Issues,
// прогон продолжается со следующего этапа.
func (c *Chain) Run(ds *models.Dataset) (*RunResult, error) {
	if ds == nil {
		return nil, errors.New("dataset is nil")
	}
	if err := c.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter config: %w", err)
	}

	start := time.Now()
	if !c.config.InPlace {
		ds = ds.Clone()
	}
	result := &RunResult{Dataset: ds}

	c.logger.WithField("stages_count", len(c.stages)).
		WithField("tables", len(ds.Refs())).
		WithField("workers", c.config.Workers).
		WithField("in_place", c.config.InPlace).
		Debug("Starting pipeline")

	for _, stage := range c.stages {
		stageStart := time.Now()
		stageResult, err := stage.Apply(ds)
		duration := time.Since(stageStart)
		metrics.StageDuration.WithLabelValues(stage.Name()).Observe(duration.Seconds())

		if stageResult == nil {
			stageResult = &StageResult{Stage: stage.Name()}
		}
		if err != nil {
			c.logger.WithField("stage", stage.Name()).
				WithError(err).
				Error("Stage failed")
			stageResult.Issues = append(stageResult.Issues, Issue{Stage: stage.Name(), Err: err})
		}
		recordStageMetrics(stageResult)

		result.Stages = append(result.Stages, stageResult)
		result.Issues = append(result.Issues, stageResult.Issues...)
		result.Statistics.Add(stageResult.Statistics)

		c.logger.WithField("stage", stage.Name()).
			WithField("tables_processed", stageResult.Statistics.TablesProcessed).
			WithField("tables_skipped", stageResult.Statistics.TablesSkipped).
			WithField("columns_added", stageResult.Statistics.ColumnsAdded).
			WithField("rows_dropped", stageResult.Statistics.RowsDropped).
			WithField("issues", len(stageResult.Issues)).
			WithField("duration_ms", duration.Milliseconds()).
			Debug("Stage applied")
	}

	result.Duration = time.Since(start)

	c.logger.WithField("tables_processed", result.Statistics.TablesProcessed).
		WithField("sessions_merged", result.Statistics.SessionsMerged).
		WithField("columns_added", result.Statistics.ColumnsAdded).
		WithField("rows_dropped", result.Statistics.RowsDropped).
		WithField("issues", len(result.Issues)).
		WithField("duration_ms", result.Duration.Milliseconds()).
		Info("Pipeline completed")

	return result, nil
}

func recordStageMetrics(r *StageResult) {
	metrics.TablesProcessed.WithLabelValues(r.Stage).Add(float64(r.Statistics.TablesProcessed))
	metrics.TablesSkipped.WithLabelValues(r.Stage).Add(float64(r.Statistics.TablesSkipped))
	metrics.RowsDropped.WithLabelValues(r.Stage).Add(float64(r.Statistics.RowsDropped))
	metrics.ColumnsAdded.WithLabelValues(r.Stage).Add(float64(r.Statistics.ColumnsAdded))
	metrics.Issues.WithLabelValues(r.Stage).Add(float64(len(r.Issues)))
}

// Name возвращает имя цепочки
func (c *Chain) Name() string {
	return "Chain"
}

// Description возвращает описание цепочки
func (c *Chain) Description() string {
	names := make([]string, len(c.stages))
	for i, stage := range c.stages {
		names[i] = stage.Name()
	}
	return fmt.Sprintf("Chain of stages: %v", names)
}
