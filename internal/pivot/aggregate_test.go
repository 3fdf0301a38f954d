package pivot

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregates(t *testing.T) {
	values := []float64{4, 1, 3, 3, 9}

	tests := []struct {
		name string
		fn   Func
		want float64
	}{
		{"sum", Sum, 20},
		{"average", Average, 4},
		{"mode", Mode, 3},
		{"count", Count, 5},
		{"min", Min, 1},
		{"max", Max, 9},
		{"median", Median, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(values))
		})
	}

	assert.Equal(t, []float64{4, 1, 3, 3, 9}, values, "aggregates must not modify input")
}

func TestAggregates_Empty(t *testing.T) {
	assert.Equal(t, 0.0, Sum(nil))
	assert.True(t, math.IsNaN(Average(nil)))
	assert.Equal(t, 0.0, Mode(nil))
	assert.Equal(t, 0.0, Count(nil))
	assert.Equal(t, 0.0, Min(nil))
	assert.Equal(t, 0.0, Max(nil))
	assert.Equal(t, 0.0, Median(nil))
}

func TestMode_TieGoesToSmallerValue(t *testing.T) {
	assert.Equal(t, 2.0, Mode([]float64{5, 2, 5, 2, 7}))
	assert.Equal(t, -1.0, Mode([]float64{3, -1}))
}

func TestMedian_EvenCount(t *testing.T) {
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"sum", "SUM", " avg ", "mean", "average", "mode", "count", "min", "max", "median"} {
		fn, err := Lookup(name)
		require.NoError(t, err, name)
		assert.NotNil(t, fn)
	}

	_, err := Lookup("variance")
	assert.ErrorIs(t, err, ErrUnknownFunction)
	assert.Contains(t, err.Error(), "variance")
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "sum")
	assert.Contains(t, names, "median")
	assert.IsIncreasing(t, names)
}
