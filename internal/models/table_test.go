package models

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable()
	require.NoError(t, tbl.AddNumeric("timestamp", []float64{1, 2, 3, 4}))
	require.NoError(t, tbl.AddNumeric("acc_x", []float64{0.1, math.NaN(), 0.3, 0.4}))
	require.NoError(t, tbl.AddCategorical("annotation", []string{"a", "b", "", "d"}))
	return tbl
}

func TestTable_AddAndLookup(t *testing.T) {
	tbl := newTestTable(t)

	assert.Equal(t, 4, tbl.Len())
	assert.Equal(t, 3, tbl.Width())
	assert.Equal(t, []string{"timestamp", "acc_x", "annotation"}, tbl.Names())

	_, err := tbl.Numeric("annotation")
	assert.True(t, errors.Is(err, ErrIncompatibleType))

	_, err = tbl.Numeric("missing")
	assert.True(t, errors.Is(err, ErrMissingColumn))

	err = tbl.AddNumeric("short", []float64{1})
	assert.True(t, errors.Is(err, ErrLengthMismatch))

	// Замена существующей колонки сохраняет позицию
	require.NoError(t, tbl.AddNumeric("acc_x", []float64{9, 9, 9, 9}))
	assert.Equal(t, []string{"timestamp", "acc_x", "annotation"}, tbl.Names())
	values, err := tbl.Numeric("acc_x")
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 9, 9, 9}, values)
}

func TestTable_Drop(t *testing.T) {
	tbl := newTestTable(t)

	assert.Equal(t, 1, tbl.Drop("annotation", "not_there"))
	assert.Equal(t, 0, tbl.Drop("not_there"))
	assert.Equal(t, []string{"timestamp", "acc_x"}, tbl.Names())
	assert.False(t, tbl.Has("annotation"))

	dropped := tbl.DropWhere(func(name string) bool { return name == "acc_x" })
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 4, tbl.Len())
}

func TestTable_RenameColumn(t *testing.T) {
	tbl := newTestTable(t)

	require.NoError(t, tbl.RenameColumn("acc_x", "acc_y"))
	assert.True(t, tbl.Has("acc_y"))
	assert.False(t, tbl.Has("acc_x"))

	err := tbl.RenameColumn("acc_y", "timestamp")
	assert.True(t, errors.Is(err, ErrDuplicateColumn))

	err = tbl.RenameColumn("nope", "other")
	assert.True(t, errors.Is(err, ErrMissingColumn))
}

func TestTable_DropIncomplete(t *testing.T) {
	tbl := newTestTable(t)

	dropped := tbl.DropIncomplete()
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 2, tbl.Len())

	ts, err := tbl.Numeric("timestamp")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4}, ts)

	labels, err := tbl.Categorical("annotation")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, labels)

	assert.Equal(t, 0, tbl.DropIncomplete())
}

func TestTable_CloneIsDeep(t *testing.T) {
	tbl := newTestTable(t)
	cp := tbl.Clone()

	require.NoError(t, cp.AddNumeric("extra", []float64{1, 2, 3, 4}))
	values, _ := cp.Numeric("timestamp")
	values[0] = 100

	assert.False(t, tbl.Has("extra"))
	original, _ := tbl.Numeric("timestamp")
	assert.Equal(t, 1.0, original[0])
}

func TestTable_KeepRows(t *testing.T) {
	tbl := newTestTable(t)
	tbl.KeepRows([]int{3, 0})

	ts, _ := tbl.Numeric("timestamp")
	assert.Equal(t, []float64{4, 1}, ts)
	labels, _ := tbl.Categorical("annotation")
	assert.Equal(t, []string{"d", "a"}, labels)
}
