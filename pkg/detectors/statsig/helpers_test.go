package statsig

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hed1ad/gostatsig/pkg/timeseries"
)

func mustDate(t testing.TB, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return ts
}

func timeRange(start time.Time, step time.Duration, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}

func normals(rng *rand.Rand, n int, mean, std float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = mean + std*rng.NormFloat64()
	}
	return out
}

func series(t testing.TB, ts []time.Time, values []float64) *timeseries.Series {
	t.Helper()
	s, err := timeseries.New(ts, values)
	require.NoError(t, err)
	return s
}

func multiSeries(t testing.TB, ts []time.Time, prefix string, cols [][]float64) *timeseries.Series {
	t.Helper()
	names := make([]string, len(cols))
	for i := range names {
		names[i] = fmt.Sprintf("%s_%d", prefix, i)
	}
	s, err := timeseries.NewMulti(ts, names, cols)
	require.NoError(t, err)
	return s
}

// levelShift simulates a daily series with level changes at the given
// change points, a sinusoidal seasonal component and gaussian noise.
func levelShift(rng *rand.Rand, n int, cps []int, levels []float64, noise float64, period int, magnitude float64) []float64 {
	out := make([]float64, n)
	seg := 0
	for i := range out {
		for seg < len(cps) && i >= cps[seg] {
			seg++
		}
		seasonal := magnitude * math.Sin(2*math.Pi*float64(i)/float64(period))
		out[i] = levels[seg] + seasonal + noise*rng.NormFloat64()
	}
	return out
}
