package metrics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		p      float64
		want   float64
	}{
		{name: "median of four", values: []float64{1, 2, 3, 4}, p: 50, want: 2},
		{name: "single value", values: []float64{5}, p: 50, want: 5},
		{name: "empty", values: nil, p: 50, want: 0},
		{name: "unsorted input", values: []float64{4, 1, 3, 2}, p: 75, want: 3},
		{name: "p0 clamps to first", values: []float64{3, 1, 2}, p: 0, want: 1},
		{name: "p100", values: []float64{3, 1, 2}, p: 100, want: 3},
		{name: "p95 of ten", values: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, p: 95, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Percentile(tt.values, tt.p))
		})
	}
}

func TestPercentile_DoesNotReorderInput(t *testing.T) {
	values := []float64{3, 1, 2}
	Percentile(values, 50)
	require.Equal(t, []float64{3, 1, 2}, values)
}

func TestVariance(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "empty", values: []float64{}, want: 0},
		{name: "constant", values: []float64{4, 4, 4}, want: 0},
		{name: "population", values: []float64{2, 4, 4, 4, 5, 5, 7, 9}, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, Variance(tt.values), 1e-9)
		})
	}
	require.InDelta(t, 2.0, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
}

func TestMedian(t *testing.T) {
	require.Equal(t, 0.0, Median(nil))
	require.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	require.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
}

func TestDeviation(t *testing.T) {
	results := map[string]float64{"steadyState": 54, "underLoad": 30, "noBaseline": 1, "zeroBaseline": 3}
	baseline := map[string]float64{"steadyState": 60, "underLoad": 30, "zeroBaseline": 0}

	got := Deviation(results, baseline)
	require.Len(t, got, 2)
	require.InDelta(t, -0.1, got["steadyState"], 1e-9)
	require.InDelta(t, 0, got["underLoad"], 1e-9)
}

func TestPearson(t *testing.T) {
	tests := []struct {
		name string
		x, y []float64
		want float64
	}{
		{name: "perfect positive", x: []float64{1, 2, 3}, y: []float64{2, 4, 6}, want: 1},
		{name: "perfect negative", x: []float64{1, 2, 3}, y: []float64{3, 2, 1}, want: -1},
		{name: "constant series", x: []float64{1, 1, 1}, y: []float64{1, 2, 3}, want: 0},
		{name: "too short", x: []float64{1}, y: []float64{1}, want: 0},
		{name: "uneven lengths truncate", x: []float64{1, 2, 3, 100}, y: []float64{1, 2, 3}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, Pearson(tt.x, tt.y), 1e-9)
		})
	}
}

func ExampleSummarize() {
	s := Summarize([]float64{10, 20, 30, 40})
	fmt.Println(s.Count, s.Mean, s.Median, s.P50, s.Min, s.Max)
	// Output: 4 25 25 20 10 40
}
