package filter

import (
	"fmt"
	"math"

	"github.com/flybeeper/sensor-features/internal/models"
	"github.com/flybeeper/sensor-features/pkg/pool"
)

// MergeRename колонка, переименованная при объединении из-за конфликта имен
type MergeRename struct {
	Table    int    `json:"table"` // Индекс исходной таблицы в списке
	Column   string `json:"column"`
	Assigned string `json:"assigned"`
}

// MergeReport отчет об объединении таблиц
type MergeReport struct {
	InputRows  []int         `json:"input_rows"`
	OutputRows int           `json:"output_rows"`
	Renamed    []MergeRename `json:"renamed,omitempty"`
}

// Merge последовательно объединяет таблицы inner join по колонке timestamp.
// Первая таблица является базой, порядок ее строк сохраняется; при повторяющихся
// ключах строки образуют декартово произведение. Конфликтующие колонки
// i-й таблицы получают суффикс suffixes[i] (по умолчанию "_i").
// Пустой результат возвращается вместе с ErrMergeKeyMismatch.
func Merge(tables []*models.Table, suffixes []string) (*models.Table, MergeReport, error) {
	var report MergeReport
	if len(tables) == 0 {
		return nil, report, ErrNoTables
	}
	for i, t := range tables {
		if t == nil {
			return nil, report, fmt.Errorf("%w: table %d is nil", models.ErrIncompatibleType, i)
		}
		if _, err := t.Numeric(models.TimestampColumn); err != nil {
			return nil, report, fmt.Errorf("table %d: %w", i, err)
		}
		report.InputRows = append(report.InputRows, t.Len())
	}

	result := tables[0].Clone()
	for i := 1; i < len(tables); i++ {
		suffix := fmt.Sprintf("_%d", i)
		if i < len(suffixes) && suffixes[i] != "" {
			suffix = suffixes[i]
		}
		var renamed []MergeRename
		result, renamed = innerJoin(result, tables[i], i, suffix)
		report.Renamed = append(report.Renamed, renamed...)
	}

	report.OutputRows = result.Len()
	if result.Len() == 0 {
		return result, report, fmt.Errorf("%w: %d tables, input rows %v", ErrMergeKeyMismatch, len(tables), report.InputRows)
	}
	return result, report, nil
}

func innerJoin(left, right *models.Table, tableIdx int, suffix string) (*models.Table, []MergeRename) {
	leftKeys, _ := left.Numeric(models.TimestampColumn)
	rightKeys, _ := right.Numeric(models.TimestampColumn)

	byKey := make(map[float64][]int, len(rightKeys))
	for r, k := range rightKeys {
		if math.IsNaN(k) {
			continue
		}
		byKey[k] = append(byKey[k], r)
	}

	leftBuf, rightBuf := pool.Global.GetInts(), pool.Global.GetInts()
	defer pool.Global.PutInts(leftBuf)
	defer pool.Global.PutInts(rightBuf)
	for l, k := range leftKeys {
		if math.IsNaN(k) {
			continue
		}
		for _, r := range byKey[k] {
			*leftBuf = append(*leftBuf, l)
			*rightBuf = append(*rightBuf, r)
		}
	}
	leftRows, rightRows := *leftBuf, *rightBuf

	out := left.Clone()
	out.KeepRows(leftRows)

	var renamed []MergeRename
	for _, name := range right.Names() {
		if name == models.TimestampColumn {
			continue
		}
		col, _ := right.Column(name)
		assigned := name
		if out.Has(assigned) {
			assigned = name + suffix
			for k := 2; out.Has(assigned); k++ {
				assigned = fmt.Sprintf("%s%s_%d", name, suffix, k)
			}
			renamed = append(renamed, MergeRename{Table: tableIdx, Column: name, Assigned: assigned})
		}
		picked := &models.Column{Name: assigned, Kind: col.Kind}
		if col.Kind == models.Categorical {
			picked.Labels = make([]string, len(rightRows))
			for i, r := range rightRows {
				picked.Labels[i] = col.Labels[r]
			}
		} else {
			picked.Values = make([]float64, len(rightRows))
			for i, r := range rightRows {
				picked.Values[i] = col.Values[r]
			}
		}
		// Длина совпадает по построению
		_ = out.SetColumn(picked)
	}
	return out, renamed
}
