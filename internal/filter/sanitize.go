package filter

import (
	"fmt"
	"strings"

	"github.com/flybeeper/sensor-features/internal/models"
)

// Replacement текстовая замена в именах колонок
type Replacement struct {
	Old string
	New string
}

// SanitizeRules правила очистки таблицы одного типа сенсора
type SanitizeRules struct {
	Name           string
	DropColumns    []string      // Удаляются по точному имени
	DropSubstrings []string      // Удаляются колонки, содержащие подстроку
	Replacements   []Replacement // Применяются к именам по порядку
}

// GPSRules правила очистки GPS таблиц
func GPSRules() SanitizeRules {
	return SanitizeRules{
		Name: "gps",
		DropColumns: []string{
			// Плохие колонки
			"ageofdgpsdata", "dgpsid", "activity", "annotation",
			// Бесполезные колонки
			"hdop", "vdop", "pdop", "satellites", "geoidheight",
		},
	}
}

// AccelerometerRules правила очистки таблиц акселерометров
func AccelerometerRules() SanitizeRules {
	return SanitizeRules{
		Name:           "accelerometer",
		DropColumns:    []string{"temp_dash", "temp_above", "temp_below"},
		DropSubstrings: []string{"mag"},
		Replacements: []Replacement{
			{Old: "_suspension", New: ""},
			{Old: "dashboard", New: "dash"},
		},
	}
}

// RulesFor выбирает правила по типу сенсора: left/right -> акселерометр, t_gps -> GPS
func RulesFor(sensor models.SensorType) (SanitizeRules, bool) {
	switch {
	case sensor.IsAccelerometer():
		return AccelerometerRules(), true
	case sensor.IsGPS():
		return GPSRules(), true
	default:
		return SanitizeRules{}, false
	}
}

// Collision конфликт имен при переименовании
type Collision struct {
	Source   string `json:"source"`   // Исходное имя колонки
	Target   string `json:"target"`   // Желаемое имя после замены
	Assigned string `json:"assigned"` // Фактически присвоенное имя
}

// SanitizeReport отчет об очистке таблицы
type SanitizeReport struct {
	ColumnsDropped int         `json:"columns_dropped"`
	ColumnsRenamed int         `json:"columns_renamed"`
	RowsDropped    int         `json:"rows_dropped"`
	Collisions     []Collision `json:"collisions,omitempty"`
}

// Sanitize очищает таблицу на месте: удаляет колонки по правилам, переименовывает
// колонки и удаляет строки с пропусками. Отсутствующие колонки не являются ошибкой.
//
// При конфликте имен после замены целевое имя получает переименованная колонка
// (из нескольких переименованных та, что стоит раньше). Прежний владелец имени
// и остальные претенденты получают суффикс _2, _3 и т.д.
// Если после удаления строк таблица пуста, возвращается ErrEmptyTable.
func Sanitize(t *models.Table, rules SanitizeRules) (SanitizeReport, error) {
	var report SanitizeReport

	report.ColumnsDropped += t.Drop(rules.DropColumns...)
	if len(rules.DropSubstrings) > 0 {
		report.ColumnsDropped += t.DropWhere(func(name string) bool {
			for _, sub := range rules.DropSubstrings {
				if strings.Contains(name, sub) {
					return true
				}
			}
			return false
		})
	}

	if len(rules.Replacements) > 0 {
		renamed, collisions, err := renameColumns(t, rules.Replacements)
		if err != nil {
			return report, err
		}
		report.ColumnsRenamed = renamed
		report.Collisions = collisions
	}

	hadRows := t.Len() > 0
	report.RowsDropped = t.DropIncomplete()
	if hadRows && t.Len() == 0 {
		return report, fmt.Errorf("%w: all %d rows had missing values", ErrEmptyTable, report.RowsDropped)
	}
	return report, nil
}

func applyReplacements(name string, replacements []Replacement) string {
	for _, r := range replacements {
		name = strings.ReplaceAll(name, r.Old, r.New)
	}
	return name
}

// renameColumns вычисляет новые имена для всех колонок и разрешает конфликты
// детерминированно: сначала имена занимают переименованные колонки в порядке
// таблицы, затем колонки, чье имя не меняется
func renameColumns(t *models.Table, replacements []Replacement) (int, []Collision, error) {
	names := t.Names()
	natural := make([]string, len(names))
	wanted := make(map[string]bool, len(names))
	for i, name := range names {
		natural[i] = applyReplacements(name, replacements)
		wanted[natural[i]] = true
	}

	order := make([]int, 0, len(names))
	for i, name := range names {
		if natural[i] != name {
			order = append(order, i)
		}
	}
	for i, name := range names {
		if natural[i] == name {
			order = append(order, i)
		}
	}

	targets := make([]string, len(names))
	claimed := make(map[string]bool, len(names))
	var collisions []Collision
	for _, i := range order {
		target := natural[i]
		assigned := target
		if claimed[assigned] {
			// Суффикс не должен отобрать имя, на которое претендует другая колонка
			for k := 2; ; k++ {
				candidate := fmt.Sprintf("%s_%d", target, k)
				if !claimed[candidate] && !wanted[candidate] {
					assigned = candidate
					break
				}
			}
			collisions = append(collisions, Collision{Source: names[i], Target: target, Assigned: assigned})
		}
		claimed[assigned] = true
		targets[i] = assigned
	}

	// Переименовываем через временные имена, чтобы обмен именами не конфликтовал
	renamed := 0
	tmp := make([]string, len(names))
	for i, name := range names {
		if targets[i] == name {
			continue
		}
		tmp[i] = fmt.Sprintf("\x00rename_%d", i)
		if err := t.RenameColumn(name, tmp[i]); err != nil {
			return renamed, collisions, err
		}
	}
	for i := range names {
		if tmp[i] == "" {
			continue
		}
		if err := t.RenameColumn(tmp[i], targets[i]); err != nil {
			return renamed, collisions, err
		}
		renamed++
	}
	return renamed, collisions, nil
}
