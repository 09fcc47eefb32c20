package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallTable(t *testing.T) *Table {
	t.Helper()
	tb := NewTable(4)
	require.NoError(t, tb.AddFloat("rating", []float64{8, 6, 9, 7}, nil))
	require.NoError(t, tb.AddFloat("cost", []float64{500, 800, 0, 1200}, nil))
	require.NoError(t, tb.AddFloat("ph", []float64{7.2, 0, 2.1, 6.8}, []bool{false, true, false, false}))
	require.NoError(t, tb.AddString("region", []string{"Nagano", "Gunma", "Gunma", "Oita"}, nil))
	return tb
}

func TestTableAccessors(t *testing.T) {
	tb := smallTable(t)
	assert.Equal(t, 4, tb.Len())
	assert.Equal(t, []string{"rating", "cost", "ph", "region"}, tb.Names())
	assert.Nil(t, tb.Column("missing"))

	vals, err := tb.Floats("cost")
	require.NoError(t, err)
	assert.Equal(t, []float64{500, 800, 0, 1200}, vals)

	_, err = tb.Floats("region")
	assert.Error(t, err)
}

func TestTableDuplicateColumn(t *testing.T) {
	tb := smallTable(t)
	assert.Error(t, tb.AddFloat("rating", []float64{1, 2, 3, 4}, nil))
	assert.Error(t, tb.AddFloat("short", []float64{1}, nil))
}

func TestDropNulls(t *testing.T) {
	tb := smallTable(t)
	out, dropped, err := tb.DropNulls("rating", "ph")
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 3, out.Len())

	vals, err := out.Floats("rating")
	require.NoError(t, err)
	assert.Equal(t, []float64{8, 9, 7}, vals)

	_, _, err = tb.DropNulls("missing")
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	tb := smallTable(t)

	out, err := tb.Filter("rating >= 7 && region == 'Gunma'")
	require.NoError(t, err)
	// Row with null ph fails the filter outright; only the 9-rated Gunma row
	// survives.
	require.Equal(t, 1, out.Len())
	vals, err := out.Floats("rating")
	require.NoError(t, err)
	assert.Equal(t, []float64{9}, vals)

	_, err = tb.Filter("rating >=")
	assert.Error(t, err)
}

func TestMatrix(t *testing.T) {
	tb := smallTable(t)
	X, names, err := tb.Matrix([]string{"rating", "cost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"intercept", "rating", "cost"}, names)

	r, c := X.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 1.0, X.At(2, 0))
	assert.Equal(t, 9.0, X.At(2, 1))
	assert.Equal(t, 0.0, X.At(2, 2))

	_, _, err = tb.Matrix([]string{"region"})
	assert.Error(t, err)
	_, _, err = tb.Matrix([]string{"missing"})
	assert.Error(t, err)
}
