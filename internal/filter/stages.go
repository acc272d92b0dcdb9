package filter

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/flybeeper/sensor-features/internal/models"
	"github.com/flybeeper/sensor-features/pkg/utils"
)

// Имена этапов
const (
	StageSanitize  = "sanitize"
	StageMerge     = "merge"
	StageSmoothing = "smoothing"
	StageDistance  = "distance"
	StageLabels    = "labels"
)

// tableOutcome результат обработки одной таблицы
type tableOutcome struct {
	ref   models.TableRef
	stats StageStats
	err   error
}

// errSkip таблица не подходит этапу
var errSkip = errors.New("table not applicable")

// runParallel вызывает fn для индексов 0..n-1 не более чем в workers горутинах
func runParallel(n, workers int, fn func(i int)) {
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

// forEachTable применяет fn ко всем непустым таблицам, прошедшим отбор.
// Результаты возвращаются в порядке refs независимо от порядка завершения.
func forEachTable(refs []models.TableRef, workers int, accept func(models.TableRef) bool, fn func(models.TableRef) (StageStats, error)) []tableOutcome {
	selected := make([]models.TableRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Table == nil || !accept(ref) {
			continue
		}
		selected = append(selected, ref)
	}

	outcomes := make([]tableOutcome, len(selected))
	runParallel(len(selected), workers, func(i int) {
		stats, err := fn(selected[i])
		outcomes[i] = tableOutcome{ref: selected[i], stats: stats, err: err}
	})
	return outcomes
}

// collect сводит результаты таблиц в результат этапа. Локальные аномалии
// (нет колонки, неподходящий тип) считаются пропуском, структурные становятся Issue.
// Прочие ошибки прерывают этап.
func collect(stage string, outcomes []tableOutcome, logger *utils.Logger) (*StageResult, error) {
	result := &StageResult{Stage: stage}
	for _, o := range outcomes {
		log := logger.WithField("stage", stage).WithField("table", o.ref.String())
		switch {
		case o.err == nil:
			result.Statistics.Add(o.stats)
			result.Statistics.TablesProcessed++
		case errors.Is(o.err, errSkip),
			errors.Is(o.err, models.ErrMissingColumn),
			errors.Is(o.err, models.ErrIncompatibleType):
			result.Statistics.Add(o.stats)
			result.Statistics.TablesSkipped++
			log.WithField("reason", o.err.Error()).Debug("Table skipped")
		case IsStructural(o.err):
			result.Statistics.Add(o.stats)
			result.Issues = append(result.Issues, Issue{
				Stage:   stage,
				Split:   o.ref.Split,
				Sensor:  o.ref.Sensor,
				Session: o.ref.Session,
				Err:     o.err,
			})
			log.WithError(o.err).Warn("Data issue")
		default:
			return result, fmt.Errorf("%s %s: %w", stage, o.ref, o.err)
		}
	}
	return result, nil
}

// SanitizeStage очищает GPS и акселерометрические таблицы
type SanitizeStage struct {
	config *FilterConfig
	logger *utils.Logger
}

// NewSanitizeStage создает этап очистки колонок
func NewSanitizeStage(config *FilterConfig, logger *utils.Logger) *SanitizeStage {
	return &SanitizeStage{config: config, logger: logger}
}

// Apply очищает все таблицы, для типа сенсора которых есть правила
func (s *SanitizeStage) Apply(ds *models.Dataset) (*StageResult, error) {
	outcomes := forEachTable(ds.Refs(), s.config.Workers,
		func(ref models.TableRef) bool {
			_, ok := RulesFor(ref.Sensor)
			return ok
		},
		func(ref models.TableRef) (StageStats, error) {
			rules, _ := RulesFor(ref.Sensor)
			report, err := Sanitize(ref.Table, rules)
			for _, c := range report.Collisions {
				s.logger.WithField("table", ref.String()).
					WithField("source", c.Source).
					WithField("target", c.Target).
					WithField("assigned", c.Assigned).
					Warn("Column name collision after rename")
			}
			s.logger.WithField("table", ref.String()).
				WithField("rules", rules.Name).
				WithField("columns_dropped", report.ColumnsDropped).
				WithField("columns_renamed", report.ColumnsRenamed).
				WithField("rows_dropped", report.RowsDropped).
				Progress(s.config.Verbose, "Sanitized table")
			return StageStats{
				ColumnsDropped: report.ColumnsDropped,
				ColumnsRenamed: report.ColumnsRenamed,
				RowsDropped:    report.RowsDropped,
				Collisions:     len(report.Collisions),
			}, err
		})
	return collect(s.Name(), outcomes, s.logger)
}

// Name возвращает имя этапа
func (s *SanitizeStage) Name() string {
	return StageSanitize
}

// Description возвращает описание этапа
func (s *SanitizeStage) Description() string {
	return "Drops unused sensor columns, normalizes accelerometer names, removes incomplete rows"
}

// MergeSuffix суффикс конфликтующих колонок таблицы сенсора при объединении
func MergeSuffix(sensor models.SensorType) string {
	switch {
	case sensor.IsGPS():
		return "_gps"
	case strings.Contains(string(sensor), "left"):
		return "_left"
	case strings.Contains(string(sensor), "right"):
		return "_right"
	default:
		return "_" + string(sensor)
	}
}

// MergeStage объединяет таблицы сессии по timestamp в таблицу merged
type MergeStage struct {
	config *FilterConfig
	logger *utils.Logger
}

// NewMergeStage создает этап объединения
func NewMergeStage(config *FilterConfig, logger *utils.Logger) *MergeStage {
	return &MergeStage{config: config, logger: logger}
}

type mergeJob struct {
	split   models.Split
	session string
	sensors []models.SensorType
	tables  []*models.Table
	done    bool
}

// Apply объединяет для каждой сессии присутствующие таблицы из MergeSources.
// Сессии, где их меньше двух или таблица merged уже есть, пропускаются.
// Исходные таблицы сохраняются.
func (m *MergeStage) Apply(ds *models.Dataset) (*StageResult, error) {
	var jobs []mergeJob
	for _, split := range models.Splits {
		for _, session := range ds.Sessions(split) {
			job := mergeJob{split: split, session: session}
			if t, ok := ds.Table(split, models.SensorMerged, session); ok && t != nil {
				job.done = true
			}
			for _, sensor := range m.config.MergeSources {
				if t, ok := ds.Table(split, sensor, session); ok && t != nil {
					job.sensors = append(job.sensors, sensor)
					job.tables = append(job.tables, t)
				}
			}
			jobs = append(jobs, job)
		}
	}

	merged := make([]*models.Table, len(jobs))
	outcomes := make([]tableOutcome, len(jobs))
	runParallel(len(jobs), m.config.Workers, func(i int) {
		job := jobs[i]
		ref := models.TableRef{Split: job.split, Sensor: models.SensorMerged, Session: job.session}
		stats, err := m.mergeSession(ref, job, func(t *models.Table) { merged[i] = t })
		outcomes[i] = tableOutcome{ref: ref, stats: stats, err: err}
	})

	// Запись в датасет только из текущей горутины
	for i, job := range jobs {
		if merged[i] == nil {
			continue
		}
		if err := ds.SetTable(job.split, models.SensorMerged, job.session, merged[i]); err != nil {
			return nil, err
		}
	}
	return collect(m.Name(), outcomes, m.logger)
}

func (m *MergeStage) mergeSession(ref models.TableRef, job mergeJob, store func(*models.Table)) (StageStats, error) {
	if job.done {
		return StageStats{}, fmt.Errorf("%w: session already merged", errSkip)
	}
	if len(job.tables) < 2 {
		return StageStats{}, fmt.Errorf("%w: %d of %d merge sources present", errSkip, len(job.tables), len(m.config.MergeSources))
	}
	suffixes := make([]string, len(job.sensors))
	for k, sensor := range job.sensors {
		suffixes[k] = MergeSuffix(sensor)
	}
	result, report, err := Merge(job.tables, suffixes)
	for _, r := range report.Renamed {
		m.logger.WithField("table", ref.String()).
			WithField("source", job.sensors[r.Table]).
			WithField("column", r.Column).
			WithField("assigned", r.Assigned).
			Debug("Merged column renamed")
	}
	if err != nil {
		return StageStats{Collisions: len(report.Renamed)}, err
	}
	store(result)
	m.logger.WithField("table", ref.String()).
		WithField("sources", job.sensors).
		WithField("input_rows", report.InputRows).
		WithField("output_rows", report.OutputRows).
		Progress(m.config.Verbose, "Merged session tables")
	return StageStats{SessionsMerged: 1, Collisions: len(report.Renamed)}, nil
}

// Name возвращает имя этапа
func (m *MergeStage) Name() string {
	return StageMerge
}

// Description возвращает описание этапа
func (m *MergeStage) Description() string {
	return fmt.Sprintf("Inner joins %v on timestamp per session", m.config.MergeSources)
}

// SmoothingStage добавляет сглаженные колонки акселерометра
type SmoothingStage struct {
	config   *FilterConfig
	logger   *utils.Logger
	smoother Smoother
}

// NewSmoothingStage создает этап сглаживания со скользящим средним из конфигурации
func NewSmoothingStage(config *FilterConfig, logger *utils.Logger) (*SmoothingStage, error) {
	smoother, err := NewMovingAverage(config.Window)
	if err != nil {
		return nil, err
	}
	return NewSmoothingStageWith(smoother, config, logger), nil
}

// NewSmoothingStageWith создает этап сглаживания с произвольной стратегией
func NewSmoothingStageWith(smoother Smoother, config *FilterConfig, logger *utils.Logger) *SmoothingStage {
	return &SmoothingStage{config: config, logger: logger, smoother: smoother}
}

// Apply сглаживает колонки acc_ во всех таблицах, где они есть
func (s *SmoothingStage) Apply(ds *models.Dataset) (*StageResult, error) {
	outcomes := forEachTable(ds.Refs(), s.config.Workers,
		func(models.TableRef) bool { return true },
		func(ref models.TableRef) (StageStats, error) {
			added, skipped, err := AddSmoothedColumns(ref.Table, s.smoother)
			if err != nil {
				return StageStats{ColumnsAdded: len(added)}, err
			}
			for _, name := range skipped {
				s.logger.WithField("table", ref.String()).
					WithField("column", name).
					Debug("Non-numeric accelerometer column skipped")
			}
			if len(added) == 0 {
				return StageStats{}, fmt.Errorf("%w: no unsmoothed %s columns", errSkip, AccelerometerMarker)
			}
			for _, name := range added {
				s.logger.WithField("table", ref.String()).
					WithField("column", name).
					WithField("smoother", s.smoother.Name()).
					Progress(s.config.Verbose, "Smoothed column")
			}
			return StageStats{ColumnsAdded: len(added)}, nil
		})
	return collect(s.Name(), outcomes, s.logger)
}

// Name возвращает имя этапа
func (s *SmoothingStage) Name() string {
	return StageSmoothing
}

// Description возвращает описание этапа
func (s *SmoothingStage) Description() string {
	return fmt.Sprintf("Appends %s columns for %s signals using %s", SmoothSuffix, AccelerometerMarker, s.smoother.Name())
}

// DistanceStage добавляет разности и расстояния по позиционным колонкам
type DistanceStage struct {
	config   *FilterConfig
	logger   *utils.Logger
	strategy DistanceStrategy
}

// NewDistanceStage создает этап расстояний со стратегией из конфигурации
func NewDistanceStage(config *FilterConfig, logger *utils.Logger) (*DistanceStage, error) {
	strategy, err := NewDistanceStrategy(config.DistanceStrategy)
	if err != nil {
		return nil, err
	}
	return NewDistanceStageWith(strategy, config, logger), nil
}

// NewDistanceStageWith создает этап расстояний с произвольной стратегией
func NewDistanceStageWith(strategy DistanceStrategy, config *FilterConfig, logger *utils.Logger) *DistanceStage {
	return &DistanceStage{config: config, logger: logger, strategy: strategy}
}

// Apply применяет стратегию ко всем таблицам с позиционными колонками.
// Геодезическая стратегия удаляет последнюю строку, поэтому таблицы,
// где lat_m уже вычислен, повторно не обрабатываются.
func (d *DistanceStage) Apply(ds *models.Dataset) (*StageResult, error) {
	outcomes := forEachTable(ds.Refs(), d.config.Workers,
		func(ref models.TableRef) bool {
			return len(PositionalColumns(ref.Table)) > 0
		},
		func(ref models.TableRef) (StageStats, error) {
			if _, ok := d.strategy.(*GeodesicDistance); ok && ref.Table.Has(LatMetersCol) {
				return StageStats{}, fmt.Errorf("%w: %s already present", errSkip, LatMetersCol)
			}
			before := ref.Table.Len()
			added, err := d.strategy.Derive(ref.Table)
			if err != nil {
				return StageStats{}, err
			}
			if len(added) == 0 {
				return StageStats{}, fmt.Errorf("%w: distances already derived", errSkip)
			}
			for _, name := range added {
				d.logger.WithField("table", ref.String()).
					WithField("column", name).
					WithField("strategy", d.strategy.Name()).
					Progress(d.config.Verbose, "Derived distance column")
			}
			return StageStats{ColumnsAdded: len(added), RowsDropped: before - ref.Table.Len()}, nil
		})
	return collect(d.Name(), outcomes, d.logger)
}

// Name возвращает имя этапа
func (d *DistanceStage) Name() string {
	return StageDistance
}

// Description возвращает описание этапа
func (d *DistanceStage) Description() string {
	return fmt.Sprintf("Derives distance columns using %s strategy", d.strategy.Name())
}

// LabelStage сворачивает one-hot колонки таблиц labels в категориальные
type LabelStage struct {
	config *FilterConfig
	logger *utils.Logger
}

// NewLabelStage создает этап кодирования меток
func NewLabelStage(config *FilterConfig, logger *utils.Logger) *LabelStage {
	return &LabelStage{config: config, logger: logger}
}

// Apply добавляет колонку каждой группы меток в саму таблицу labels
func (l *LabelStage) Apply(ds *models.Dataset) (*StageResult, error) {
	outcomes := forEachTable(ds.Refs(), l.config.Workers,
		func(ref models.TableRef) bool { return ref.Sensor == models.SensorLabels },
		func(ref models.TableRef) (StageStats, error) {
			var stats StageStats
			encoded := 0
			for _, group := range l.config.LabelGroups {
				_, report, err := EncodeLabels(ref.Table, group.Classes, ref.Table, group.Column, l.config.TiePolicy)
				if errors.Is(err, models.ErrMissingColumn) || errors.Is(err, models.ErrIncompatibleType) {
					l.logger.WithField("table", ref.String()).
						WithField("column", group.Column).
						WithField("reason", err.Error()).
						Debug("Label group skipped")
					continue
				}
				if err != nil {
					return stats, fmt.Errorf("label group %s: %w", group.Column, err)
				}
				encoded++
				stats.ColumnsAdded++
				stats.AmbiguousRows += report.Ambiguous
				stats.UnlabeledRows += report.Unlabeled
				l.logger.WithField("table", ref.String()).
					WithField("column", group.Column).
					WithField("rows", report.Rows).
					WithField("ambiguous", report.Ambiguous).
					WithField("unlabeled", report.Unlabeled).
					Progress(l.config.Verbose, "Encoded labels")
			}
			if encoded == 0 {
				return stats, fmt.Errorf("%w: no label group matched", errSkip)
			}
			return stats, nil
		})
	return collect(l.Name(), outcomes, l.logger)
}

// Name возвращает имя этапа
func (l *LabelStage) Name() string {
	return StageLabels
}

// Description возвращает описание этапа
func (l *LabelStage) Description() string {
	return fmt.Sprintf("Collapses %d one-hot label groups into categorical columns", len(l.config.LabelGroups))
}
