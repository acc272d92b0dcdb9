package models

import (
	"errors"
	"fmt"
	"math"
)

// Ошибки работы с таблицами
var (
	ErrMissingColumn    = errors.New("missing column")
	ErrIncompatibleType = errors.New("incompatible column type")
	ErrLengthMismatch   = errors.New("column length mismatch")
	ErrDuplicateColumn  = errors.New("duplicate column")
)

// TimestampColumn имя колонки-ключа для объединения таблиц
const TimestampColumn = "timestamp"

// ColumnKind тип данных колонки
type ColumnKind int

const (
	// Numeric числовая колонка, пропуск = NaN
	Numeric ColumnKind = iota
	// Categorical строковая колонка, пропуск = ""
	Categorical
)

// String возвращает имя типа колонки
func (k ColumnKind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// Column именованная колонка таблицы
type Column struct {
	Name   string
	Kind   ColumnKind
	Values []float64 // для Numeric
	Labels []string  // для Categorical
}

// Len возвращает количество значений в колонке
func (c *Column) Len() int {
	if c.Kind == Categorical {
		return len(c.Labels)
	}
	return len(c.Values)
}

// IsMissing проверяет, является ли значение в строке i пропуском
func (c *Column) IsMissing(i int) bool {
	if c.Kind == Categorical {
		return c.Labels[i] == ""
	}
	return math.IsNaN(c.Values[i])
}

func (c *Column) clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Values != nil {
		out.Values = append([]float64(nil), c.Values...)
	}
	if c.Labels != nil {
		out.Labels = append([]string(nil), c.Labels...)
	}
	return out
}

func (c *Column) keep(rows []int) {
	if c.Kind == Categorical {
		labels := make([]string, len(rows))
		for i, r := range rows {
			labels[i] = c.Labels[r]
		}
		c.Labels = labels
		return
	}
	values := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = c.Values[r]
	}
	c.Values = values
}

// Table упорядоченный набор именованных колонок одинаковой длины
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// NewTable создает пустую таблицу
func NewTable() *Table {
	return &Table{
		columns: make([]*Column, 0),
		index:   make(map[string]int),
	}
}

// Len возвращает количество строк
func (t *Table) Len() int {
	return t.rows
}

// Width возвращает количество колонок
func (t *Table) Width() int {
	return len(t.columns)
}

// Names возвращает имена колонок в порядке таблицы
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Has проверяет наличие колонки
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column возвращает колонку по имени
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Numeric возвращает значения числовой колонки
func (t *Table) Numeric(name string) ([]float64, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	if c.Kind != Numeric {
		return nil, fmt.Errorf("%w: %s is %s", ErrIncompatibleType, name, c.Kind)
	}
	return c.Values, nil
}

// Categorical возвращает значения строковой колонки
func (t *Table) Categorical(name string) ([]string, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	if c.Kind != Categorical {
		return nil, fmt.Errorf("%w: %s is %s", ErrIncompatibleType, name, c.Kind)
	}
	return c.Labels, nil
}

// AddNumeric добавляет числовую колонку или заменяет существующую
func (t *Table) AddNumeric(name string, values []float64) error {
	return t.SetColumn(&Column{Name: name, Kind: Numeric, Values: values})
}

// AddCategorical добавляет строковую колонку или заменяет существующую
func (t *Table) AddCategorical(name string, labels []string) error {
	return t.SetColumn(&Column{Name: name, Kind: Categorical, Labels: labels})
}

// SetColumn добавляет колонку в конец таблицы. Колонка с тем же именем
// заменяется на месте. Первая колонка задает количество строк.
func (t *Table) SetColumn(c *Column) error {
	if len(t.columns) > 0 && c.Len() != t.rows {
		return fmt.Errorf("%w: %s has %d rows, table has %d", ErrLengthMismatch, c.Name, c.Len(), t.rows)
	}
	if i, ok := t.index[c.Name]; ok {
		t.columns[i] = c
		if len(t.columns) == 1 {
			t.rows = c.Len()
		}
		return nil
	}
	if len(t.columns) == 0 {
		t.rows = c.Len()
	}
	t.index[c.Name] = len(t.columns)
	t.columns = append(t.columns, c)
	return nil
}

// Drop удаляет колонки по имени. Отсутствующие колонки игнорируются.
// Возвращает количество удаленных колонок.
func (t *Table) Drop(names ...string) int {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	return t.DropWhere(func(name string) bool { return drop[name] })
}

// DropWhere удаляет колонки, для которых pred возвращает true
func (t *Table) DropWhere(pred func(name string) bool) int {
	kept := t.columns[:0]
	dropped := 0
	for _, c := range t.columns {
		if pred(c.Name) {
			dropped++
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(t.columns); i++ {
		t.columns[i] = nil
	}
	t.columns = kept
	t.reindex()
	if len(t.columns) == 0 {
		t.rows = 0
	}
	return dropped
}

// RenameColumn переименовывает колонку
func (t *Table) RenameColumn(oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	i, ok := t.index[oldName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingColumn, oldName)
	}
	if t.Has(newName) {
		return fmt.Errorf("%w: %s", ErrDuplicateColumn, newName)
	}
	t.columns[i].Name = newName
	delete(t.index, oldName)
	t.index[newName] = i
	return nil
}

// DropIncomplete удаляет строки, содержащие пропуск в любой колонке.
// Возвращает количество удаленных строк.
func (t *Table) DropIncomplete() int {
	rows := make([]int, 0, t.rows)
	for r := 0; r < t.rows; r++ {
		complete := true
		for _, c := range t.columns {
			if c.IsMissing(r) {
				complete = false
				break
			}
		}
		if complete {
			rows = append(rows, r)
		}
	}
	dropped := t.rows - len(rows)
	if dropped > 0 {
		t.KeepRows(rows)
	}
	return dropped
}

// KeepRows оставляет только строки с указанными индексами в заданном порядке
func (t *Table) KeepRows(rows []int) {
	for _, c := range t.columns {
		c.keep(rows)
	}
	t.rows = len(rows)
}

// Clone возвращает глубокую копию таблицы
func (t *Table) Clone() *Table {
	out := &Table{
		columns: make([]*Column, len(t.columns)),
		index:   make(map[string]int, len(t.index)),
		rows:    t.rows,
	}
	for i, c := range t.columns {
		out.columns[i] = c.clone()
		out.index[c.Name] = i
	}
	return out
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		t.index[c.Name] = i
	}
}
