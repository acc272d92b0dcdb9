package filter

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/flybeeper/sensor-features/internal/geo"
	"github.com/flybeeper/sensor-features/internal/models"
)

// Имена стратегий расстояний
const (
	StrategyLinear       = "linear"
	StrategyLinearMeters = "linear_meters"
	StrategyGeodesic     = "geodesic"
)

// Префиксы и имена производных колонок
const (
	DiffPrefix     = "d_"
	MetersPrefix   = "meters_"
	LatMetersCol   = "lat_m"
	LongMetersCol  = "long_m"
	StepMetersCol  = "step_m"
	TotalMetersCol = "total_m"
)

// PositionalMarkers подстроки имен позиционных колонок
var PositionalMarkers = []string{"latitude", "longitude", "elevation"}

// DistanceStrategy стратегия вычисления расстояний по позиционным колонкам
type DistanceStrategy interface {
	// Derive добавляет производные колонки в таблицу и возвращает их имена
	Derive(t *models.Table) ([]string, error)

	// Name возвращает имя стратегии
	Name() string
}

// NewDistanceStrategy создает стратегию по имени из конфигурации
func NewDistanceStrategy(name string) (DistanceStrategy, error) {
	switch name {
	case StrategyLinear, "":
		return &LinearDistance{}, nil
	case StrategyLinearMeters:
		return &LinearDistance{ToMeters: true}, nil
	case StrategyGeodesic:
		return NewGeodesicDistance(), nil
	default:
		return nil, fmt.Errorf("unknown distance strategy %q", name)
	}
}

// Diff первая разность ряда; первый элемент равен 0
func Diff(values []float64) []float64 {
	out := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		out[i] = values[i] - values[i-1]
	}
	return out
}

// RunningTotal накопленная сумма ряда
func RunningTotal(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	return floats.CumSum(out, values)
}

// IsDerivedDistance проверяет, является ли колонка производной от расстояний
func IsDerivedDistance(name string) bool {
	if strings.HasPrefix(name, DiffPrefix) || strings.HasPrefix(name, MetersPrefix) {
		return true
	}
	switch name {
	case LatMetersCol, LongMetersCol, StepMetersCol, TotalMetersCol:
		return true
	}
	return false
}

// PositionalColumns возвращает исходные числовые позиционные колонки таблицы
func PositionalColumns(t *models.Table) []string {
	var out []string
	for _, name := range t.Names() {
		if IsDerivedDistance(name) || IsSmoothed(name) {
			continue
		}
		for _, marker := range PositionalMarkers {
			if strings.Contains(name, marker) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// LinearDistance разности и накопленные суммы для колонок, линейных в нужных единицах.
// С ToMeters разности широты и долготы переводятся из градусов в метры,
// высота остается без изменений.
type LinearDistance struct {
	ToMeters bool
}

// Name возвращает имя стратегии
func (l *LinearDistance) Name() string {
	if l.ToMeters {
		return StrategyLinearMeters
	}
	return StrategyLinear
}

// Derive добавляет d_<col> и meters_<col> для каждой позиционной колонки.
// Колонки, для которых d_<col> уже есть, не пересчитываются.
func (l *LinearDistance) Derive(t *models.Table) ([]string, error) {
	cols := PositionalColumns(t)
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no positional columns", models.ErrMissingColumn)
	}

	var added []string
	derived := 0
	for _, name := range cols {
		values, err := t.Numeric(name)
		if err != nil {
			continue
		}
		derived++
		if t.Has(DiffPrefix + name) {
			continue
		}
		d := Diff(values)
		if l.ToMeters && !strings.Contains(name, "elevation") {
			for i := range d {
				d[i] = geo.DegreesToMeters(d[i])
			}
		}
		if err := t.AddNumeric(DiffPrefix+name, d); err != nil {
			return added, err
		}
		if err := t.AddNumeric(MetersPrefix+name, RunningTotal(d)); err != nil {
			return added, err
		}
		added = append(added, DiffPrefix+name, MetersPrefix+name)
	}
	if derived == 0 {
		return nil, fmt.Errorf("%w: positional columns are not numeric", models.ErrIncompatibleType)
	}
	return added, nil
}

// GeodesicDistance смещения по осям и пройденное расстояние по дуге большого круга
type GeodesicDistance struct {
	LatColumn string
	LonColumn string
}

// NewGeodesicDistance создает стратегию с колонками latitude/longitude
func NewGeodesicDistance() *GeodesicDistance {
	return &GeodesicDistance{LatColumn: "latitude", LonColumn: "longitude"}
}

// Name возвращает имя стратегии
func (g *GeodesicDistance) Name() string {
	return StrategyGeodesic
}

// Derive добавляет lat_m и long_m (смещения от первой точки вдоль меридиана
// и параллели), step_m (расстояние до следующей точки) и total_m (расстояние,
// пройденное к моменту строки). Для последней строки шаг не определен,
// поэтому она удаляется.
func (g *GeodesicDistance) Derive(t *models.Table) ([]string, error) {
	lat, err := t.Numeric(g.LatColumn)
	if err != nil {
		return nil, err
	}
	lon, err := t.Numeric(g.LonColumn)
	if err != nil {
		return nil, err
	}
	// После удаления последней строки таблица не должна остаться пустой
	n := len(lat)
	if n < 2 {
		return nil, fmt.Errorf("%w: geodesic distance needs at least 2 rows, got %d", ErrEmptyTable, n)
	}

	latM := make([]float64, n)
	lonM := make([]float64, n)
	step := make([]float64, n)
	traveled := make([]float64, n)
	for i := 0; i < n; i++ {
		latM[i], lonM[i] = geo.AxisDisplacement(lat[0], lon[0], lat[i], lon[i])
		if i+1 < n {
			step[i] = geo.Distance(lat[i], lon[i], lat[i+1], lon[i+1])
			traveled[i+1] = step[i]
		}
	}

	added := []string{LatMetersCol, LongMetersCol, StepMetersCol, TotalMetersCol}
	columns := [][]float64{latM, lonM, step, RunningTotal(traveled)}
	for i, name := range added {
		if err := t.AddNumeric(name, columns[i]); err != nil {
			return nil, err
		}
	}

	rows := make([]int, n-1)
	for i := range rows {
		rows[i] = i
	}
	t.KeepRows(rows)
	return added, nil
}
