package pivot

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Func aggregates the values of a node. Implementations must not modify values.
type Func func(values []float64) float64

// Sum returns the sum of values.
func Sum(values []float64) float64 {
	var res float64
	for _, v := range values {
		res += v
	}
	return res
}

// Average returns the arithmetic mean of values, NaN when there are none.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return Sum(values) / float64(len(values))
}

// Mode returns the most frequent value. Ties go to the smaller value.
func Mode(values []float64) float64 {
	occurrences := make(map[float64]int, len(values))
	for _, v := range values {
		occurrences[v]++
	}

	var (
		res  float64
		best int
	)
	for v, n := range occurrences {
		if n > best || (n == best && v < res) {
			res, best = v, n
		}
	}
	return res
}

// Count returns the number of values.
func Count(values []float64) float64 {
	return float64(len(values))
}

// Min returns the smallest value, 0 when there are none.
func Min(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	res := values[0]
	for _, v := range values[1:] {
		res = math.Min(res, v)
	}
	return res
}

// Max returns the largest value, 0 when there are none.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	res := values[0]
	for _, v := range values[1:] {
		res = math.Max(res, v)
	}
	return res
}

// Median returns the middle value, averaging the two middle values for an
// even count. 0 when there are none.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

var functions = map[string]Func{
	"sum":     Sum,
	"average": Average,
	"avg":     Average,
	"mean":    Average,
	"mode":    Mode,
	"count":   Count,
	"min":     Min,
	"max":     Max,
	"median":  Median,
}

// Lookup resolves an aggregation function by case-insensitive name.
func Lookup(name string) (Func, error) {
	fn, ok := functions[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownFunction, name, strings.Join(Names(), ", "))
	}
	return fn, nil
}

// Names returns the accepted function names in ascending order.
func Names() []string {
	return sortedKeys(functions)
}
