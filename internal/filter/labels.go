package filter

import (
	"fmt"

	"github.com/flybeeper/sensor-features/internal/models"
)

// Unlabeled метка строки, в которой не активен ни один класс
const Unlabeled = "unlabeled"

// TiePolicy политика для строк с несколькими активными классами
type TiePolicy string

const (
	// TieFirstMatch выбирает первый активный класс в порядке списка
	TieFirstMatch TiePolicy = "first"
	// TieStrict считает такую строку ошибкой качества данных
	TieStrict TiePolicy = "strict"
)

// LabelReport отчет о кодировании меток
type LabelReport struct {
	Rows      int            `json:"rows"`
	Ambiguous int            `json:"ambiguous"`
	Unlabeled int            `json:"unlabeled"`
	Counts    map[string]int `json:"counts"`
}

// EncodeLabels сворачивает one-hot колонки classes таблицы in в одну
// категориальную колонку column таблицы out. Активным считается значение 1.
// Если out равен nil, создается новая таблица (с копией timestamp, если он есть).
func EncodeLabels(in *models.Table, classes []string, out *models.Table, column string, policy TiePolicy) (*models.Table, LabelReport, error) {
	report := LabelReport{Counts: make(map[string]int)}
	if len(classes) == 0 {
		return out, report, fmt.Errorf("no classes given for %s", column)
	}

	onehot := make([][]float64, len(classes))
	for i, class := range classes {
		values, err := in.Numeric(class)
		if err != nil {
			return out, report, fmt.Errorf("class %s: %w", class, err)
		}
		onehot[i] = values
	}

	if out == nil {
		out = models.NewTable()
		if ts, err := in.Numeric(models.TimestampColumn); err == nil {
			if err := out.AddNumeric(models.TimestampColumn, append([]float64(nil), ts...)); err != nil {
				return nil, report, err
			}
		}
	}
	if out.Width() > 0 && out.Len() != in.Len() {
		return out, report, fmt.Errorf("%w: output has %d rows, input has %d", models.ErrLengthMismatch, out.Len(), in.Len())
	}

	rows := in.Len()
	labels := make([]string, rows)
	for r := 0; r < rows; r++ {
		label := Unlabeled
		active := 0
		for i, class := range classes {
			if onehot[i][r] != 1 {
				continue
			}
			active++
			if active == 1 {
				label = class
			}
		}
		if active > 1 {
			if policy == TieStrict {
				return out, report, fmt.Errorf("%w: row %d has %d active classes", ErrAmbiguousLabel, r, active)
			}
			report.Ambiguous++
		}
		if active == 0 {
			report.Unlabeled++
		}
		labels[r] = label
		report.Counts[label]++
	}
	report.Rows = rows

	if err := out.AddCategorical(column, labels); err != nil {
		return out, report, err
	}
	return out, report, nil
}
