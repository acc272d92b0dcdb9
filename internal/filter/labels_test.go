package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/sensor-features/internal/models"
)

func oneHotTable(t *testing.T) *models.Table {
	t.Helper()
	tbl := models.NewTable()
	require.NoError(t, tbl.AddNumeric("timestamp", []float64{10, 11, 12, 13}))
	require.NoError(t, tbl.AddNumeric("a", []float64{0, 0, 1, 0}))
	require.NoError(t, tbl.AddNumeric("b", []float64{1, 0, 1, 0}))
	require.NoError(t, tbl.AddNumeric("c", []float64{0, 0, 0, 1}))
	return tbl
}

func TestEncodeLabels_FirstMatch(t *testing.T) {
	in := oneHotTable(t)

	out, report, err := EncodeLabels(in, []string{"a", "b", "c"}, nil, "label", TieFirstMatch)
	require.NoError(t, err)

	labels, err := out.Categorical("label")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", Unlabeled, "a", "c"}, labels)
	assert.Equal(t, 4, report.Rows)
	assert.Equal(t, 1, report.Ambiguous)
	assert.Equal(t, 1, report.Unlabeled)
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1, Unlabeled: 1}, report.Counts)

	// Новая таблица получает копию timestamp
	assert.Equal(t, []string{"timestamp", "label"}, out.Names())
	ts, _ := out.Numeric("timestamp")
	assert.Equal(t, []float64{10, 11, 12, 13}, ts)
}

func TestEncodeLabels_ClassOrderDecidesTies(t *testing.T) {
	in := oneHotTable(t)

	out, _, err := EncodeLabels(in, []string{"b", "a", "c"}, nil, "label", TieFirstMatch)
	require.NoError(t, err)
	labels, _ := out.Categorical("label")
	assert.Equal(t, "b", labels[2])
}

func TestEncodeLabels_Strict(t *testing.T) {
	in := oneHotTable(t)

	_, _, err := EncodeLabels(in, []string{"a", "b", "c"}, nil, "label", TieStrict)
	assert.True(t, errors.Is(err, ErrAmbiguousLabel))
	assert.Contains(t, err.Error(), "row 2")
}

func TestEncodeLabels_IntoExistingTable(t *testing.T) {
	in := oneHotTable(t)

	out, _, err := EncodeLabels(in, []string{"a", "b", "c"}, in, "label", TieFirstMatch)
	require.NoError(t, err)
	assert.Same(t, in, out)
	assert.Equal(t, []string{"timestamp", "a", "b", "c", "label"}, in.Names())
}

func TestEncodeLabels_Errors(t *testing.T) {
	in := oneHotTable(t)

	_, _, err := EncodeLabels(in, []string{"a", "z"}, nil, "label", TieFirstMatch)
	assert.True(t, errors.Is(err, models.ErrMissingColumn))

	_, _, err = EncodeLabels(in, nil, nil, "label", TieFirstMatch)
	assert.Error(t, err)

	short := models.NewTable()
	require.NoError(t, short.AddNumeric("timestamp", []float64{1}))
	_, _, err = EncodeLabels(in, []string{"a"}, short, "label", TieFirstMatch)
	assert.True(t, errors.Is(err, models.ErrLengthMismatch))
}
