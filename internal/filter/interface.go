package filter

import (
	"errors"
	"fmt"

	"github.com/flybeeper/sensor-features/internal/models"
)

// Структурные ошибки пайплайна: они не поглощаются, а попадают в RunResult
var (
	ErrEmptyTable       = errors.New("table is empty after cleaning")
	ErrMergeKeyMismatch = errors.New("tables share no timestamps")
	ErrAmbiguousLabel   = errors.New("more than one class is active")
	ErrNoTables         = errors.New("no tables to merge")
	ErrInvalidWindow    = errors.New("smoothing window must be positive")
)

// IsStructural проверяет, должна ли ошибка быть передана вызывающему коду.
// Остальные ошибки (нет колонки, неподходящий тип) обрабатываются локально пропуском.
func IsStructural(err error) bool {
	return errors.Is(err, ErrEmptyTable) ||
		errors.Is(err, ErrMergeKeyMismatch) ||
		errors.Is(err, ErrAmbiguousLabel) ||
		errors.Is(err, ErrNoTables)
}

// Issue проблема, обнаруженная при обработке конкретной таблицы
type Issue struct {
	Stage   string            `json:"stage"`
	Split   models.Split      `json:"split"`
	Sensor  models.SensorType `json:"sensor"`
	Session string            `json:"session"`
	Err     error             `json:"-"`
}

// Error реализует интерфейс error
func (i Issue) Error() string {
	if i.Session == "" {
		return fmt.Sprintf("%s: %v", i.Stage, i.Err)
	}
	return fmt.Sprintf("%s: %s/%s/%s: %v", i.Stage, i.Split, i.Sensor, i.Session, i.Err)
}

// Unwrap возвращает исходную ошибку
func (i Issue) Unwrap() error {
	return i.Err
}

// StageStats статистика этапа
type StageStats struct {
	TablesProcessed int `json:"tables_processed"`
	TablesSkipped   int `json:"tables_skipped"`
	ColumnsDropped  int `json:"columns_dropped,omitempty"`
	ColumnsRenamed  int `json:"columns_renamed,omitempty"`
	ColumnsAdded    int `json:"columns_added,omitempty"`
	RowsDropped     int `json:"rows_dropped,omitempty"`
	Collisions      int `json:"collisions,omitempty"`      // Конфликты имен при переименовании/объединении
	AmbiguousRows   int `json:"ambiguous_rows,omitempty"`  // Строки с несколькими активными классами
	UnlabeledRows   int `json:"unlabeled_rows,omitempty"`  // Строки без активного класса
	SessionsMerged  int `json:"sessions_merged,omitempty"` // Сессии, объединенные по timestamp
}

// Add суммирует статистику
func (s *StageStats) Add(other StageStats) {
	s.TablesProcessed += other.TablesProcessed
	s.TablesSkipped += other.TablesSkipped
	s.ColumnsDropped += other.ColumnsDropped
	s.ColumnsRenamed += other.ColumnsRenamed
	s.ColumnsAdded += other.ColumnsAdded
	s.RowsDropped += other.RowsDropped
	s.Collisions += other.Collisions
	s.AmbiguousRows += other.AmbiguousRows
	s.UnlabeledRows += other.UnlabeledRows
	s.SessionsMerged += other.SessionsMerged
}

// StageResult результат применения этапа к датасету
type StageResult struct {
	Stage      string     `json:"stage"`
	Statistics StageStats `json:"statistics"`
	Issues     []Issue    `json:"issues,omitempty"`
}

// Stage этап обработки датасета
type Stage interface {
	// Apply применяет этап ко всем подходящим таблицам датасета
	Apply(ds *models.Dataset) (*StageResult, error)

	// Name возвращает имя этапа
	Name() string

	// Description возвращает описание этапа
	Description() string
}

// LabelGroup группа one-hot колонок, сворачиваемая в одну категориальную колонку
type LabelGroup struct {
	Column  string   `json:"column"`
	Classes []string `json:"classes"`
}

// FilterConfig конфигурация пайплайна
type FilterConfig struct {
	// Размер окна скользящего среднего
	Window int `json:"window"`

	// Изменять датасет на месте или работать с копией
	InPlace bool `json:"in_place"`

	// Писать прогресс по колонкам и сессиям на уровне info
	Verbose bool `json:"verbose"`

	// Стратегия расстояний: linear, linear_meters, geodesic
	DistanceStrategy string `json:"distance_strategy"`

	// Количество параллельных обработчиков таблиц (1 = последовательно)
	Workers int `json:"workers"`

	// Объединение таблиц сессии по timestamp
	EnableMerge  bool                `json:"enable_merge"`
	MergeSources []models.SensorType `json:"merge_sources"`

	// Кодирование one-hot меток
	LabelGroups []LabelGroup `json:"label_groups"`
	TiePolicy   TiePolicy    `json:"tie_policy"`
}

// DefaultFilterConfig возвращает конфигурацию по умолчанию
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		Window:           100,
		InPlace:          true,
		Verbose:          false,
		DistanceStrategy: StrategyLinear,
		Workers:          1,
		EnableMerge:      true,
		MergeSources:     []models.SensorType{models.SensorGPS, models.SensorMPULeft, models.SensorMPURight},
		LabelGroups: []LabelGroup{
			{Column: "road_type", Classes: []string{"dirt_road", "cobblestone_road", "asphalt_road"}},
		},
		TiePolicy: TieFirstMatch,
	}
}

// Validate проверяет корректность конфигурации
func (c *FilterConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWindow, c.Window)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if _, err := NewDistanceStrategy(c.DistanceStrategy); err != nil {
		return err
	}
	if c.TiePolicy != TieFirstMatch && c.TiePolicy != TieStrict {
		return fmt.Errorf("unknown tie policy %q", c.TiePolicy)
	}
	for _, g := range c.LabelGroups {
		if g.Column == "" {
			return fmt.Errorf("label group column name is required")
		}
		if len(g.Classes) == 0 {
			return fmt.Errorf("label group %s has no classes", g.Column)
		}
	}
	if c.EnableMerge && len(c.MergeSources) == 0 {
		return fmt.Errorf("merge enabled without sources")
	}
	return nil
}
