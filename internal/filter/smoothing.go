package filter

import (
	"fmt"
	"strings"

	"github.com/flybeeper/sensor-features/internal/models"
	"github.com/flybeeper/sensor-features/pkg/pool"
)

const (
	// AccelerometerMarker подстрока имени колонки сигнала акселерометра
	AccelerometerMarker = "acc_"
	// SmoothSuffix суффикс сглаженной колонки
	SmoothSuffix = "_smooth"
)

// Smoother стратегия сглаживания ряда
type Smoother interface {
	// Smooth возвращает сглаженный ряд той же длины
	Smooth(series []float64) ([]float64, error)

	// Name возвращает имя стратегии
	Name() string
}

// MovingAverage центрированное скользящее среднее с дополнением краев
type MovingAverage struct {
	Window int
}

// NewMovingAverage создает скользящее среднее с заданным окном
func NewMovingAverage(window int) (*MovingAverage, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, window)
	}
	return &MovingAverage{Window: window}, nil
}

// Name возвращает имя стратегии
func (m *MovingAverage) Name() string {
	return fmt.Sprintf("moving_average(%d)", m.Window)
}

// Smooth дополняет ряд граничными значениями на window/2 с каждой стороны
// и усредняет окно: out[i] = mean(padded[i : i+window]). Длина результата
// равна длине входа.
func (m *MovingAverage) Smooth(series []float64) ([]float64, error) {
	w := m.Window
	if w <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, w)
	}
	n := len(series)
	out := make([]float64, n)
	if n == 0 {
		return out, nil
	}

	pad := w / 2
	buf := pool.Global.GetFloat64s(n + 2*pad)
	defer pool.Global.PutFloat64s(buf)
	padded := *buf
	for i := range padded {
		j := i - pad
		switch {
		case j < 0:
			j = 0
		case j >= n:
			j = n - 1
		}
		padded[i] = series[j]
	}

	for i := 0; i < n; i++ {
		window := padded[i : i+w]
		// Отклонения от первого значения окна: постоянный ряд остается точно постоянным
		base := window[0]
		var sum float64
		for _, v := range window {
			sum += v - base
		}
		out[i] = base + sum/float64(w)
	}
	return out, nil
}

// IsSmoothed проверяет, является ли колонка результатом сглаживания
func IsSmoothed(name string) bool {
	return strings.HasSuffix(name, SmoothSuffix)
}

// AddSmoothedColumns добавляет колонку <col>_smooth для каждой числовой колонки,
// содержащей acc_. Уже сглаженные и нечисловые колонки пропускаются, как и колонки,
// для которых <col>_smooth уже есть.
// Возвращает имена добавленных колонок и имена пропущенных колонок.
func AddSmoothedColumns(t *models.Table, smoother Smoother) (added, skipped []string, err error) {
	for _, name := range t.Names() {
		if !strings.Contains(name, AccelerometerMarker) || IsSmoothed(name) || t.Has(name+SmoothSuffix) {
			continue
		}
		values, colErr := t.Numeric(name)
		if colErr != nil {
			skipped = append(skipped, name)
			continue
		}
		smoothed, smoothErr := smoother.Smooth(values)
		if smoothErr != nil {
			return added, skipped, fmt.Errorf("smooth %s: %w", name, smoothErr)
		}
		target := name + SmoothSuffix
		if err := t.AddNumeric(target, smoothed[:len(values)]); err != nil {
			return added, skipped, err
		}
		added = append(added, target)
	}
	return added, skipped, nil
}
