package seasonality

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/gostatsig/pkg/detectors"
	"github.com/hed1ad/gostatsig/pkg/timeseries"
)

func daily(t *testing.T, values []float64) *timeseries.Series {
	t.Helper()
	start := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := make([]time.Time, len(values))
	for i := range ts {
		ts[i] = start.Add(time.Duration(i) * timeseries.Day)
	}
	s, err := timeseries.New(ts, values)
	require.NoError(t, err)
	return s
}

// irregular spaces points one and two days apart in turn.
func irregular(t *testing.T, values []float64) *timeseries.Series {
	t.Helper()
	ts := make([]time.Time, len(values))
	at := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range ts {
		ts[i] = at
		at = at.Add(time.Duration(1+i%2) * timeseries.Day)
	}
	s, err := timeseries.New(ts, values)
	require.NoError(t, err)
	return s
}

func weeklySine(rng *rand.Rand, n int, level, amplitude, noise float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = level + amplitude*math.Sin(2*math.Pi*float64(i)/7) + noise*rng.NormFloat64()
	}
	return out
}

func TestNewRejects(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	series := daily(t, weeklySine(rng, 120, 1, 0.5, 0.05))

	multi, err := timeseries.NewMulti(series.Timestamps, []string{"a", "b"}, [][]float64{series.Values[0], series.Values[0]})
	require.NoError(t, err)

	tests := []struct {
		name   string
		data   *timeseries.Series
		period string
		opts   []Option
	}{
		{name: "daily period on daily data", data: series, period: "daily"},
		{name: "jump factor too small", data: series, period: "weekly", opts: []Option{WithLowPassJumpFactor(0.1)}},
		{name: "unknown period", data: series, period: "fortnightly"},
		{name: "too short", data: series.Slice(0, 20), period: "biweekly"},
		{name: "multi column", data: multi, period: "weekly"},
		{name: "too few points for a cadence", data: daily(t, []float64{1, 2}), period: "weekly"},
		{name: "irregular", data: irregular(t, weeklySine(rng, 60, 1, 0.5, 0.05)), period: "weekly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := New(tt.data, tt.period, tt.opts...)
			assert.ErrorIs(t, err, detectors.ErrValidation)
			assert.Nil(t, h)
		})
	}
}

func TestWithCadence(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	data := irregular(t, weeklySine(rng, 60, 1, 0.5, 0.05))

	h, err := New(data, "weekly", WithCadence(timeseries.Day))
	require.NoError(t, err)
	assert.Equal(t, 7, h.Cycle())

	out := h.RemoveSeasonality()
	assert.Equal(t, data.Timestamps, out.Timestamps)
	assert.Len(t, out.Values[0], 60)

	_, err = New(data, "daily", WithCadence(timeseries.Day))
	assert.ErrorIs(t, err, detectors.ErrValidation)
}

func TestCycle(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	series := daily(t, weeklySine(rng, 120, 1, 0.5, 0.05))

	tests := []struct {
		period string
		want   int
	}{
		{"weekly", 7},
		{"biweekly", 14},
		{"monthly", 30},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			h, err := New(series, tt.period)
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Cycle())
		})
	}
}

func TestDecomposeIsAdditive(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	series := daily(t, weeklySine(rng, 90, 10, 2, 0.3))

	h, err := New(series, "weekly")
	require.NoError(t, err)
	d := h.Decompose()
	assert.Equal(t, 7, d.Cycle)

	for i, x := range series.Values[0] {
		sum := d.Trend.Values[0][i] + d.Seasonal.Values[0][i] + d.Residual.Values[0][i]
		assert.InDelta(t, x, sum, 1e-9, "index %d", i)
	}
	assert.Equal(t, []string{"value_seasonal"}, d.Seasonal.Columns)
}

func TestSeasonalPatternRepeats(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	series := daily(t, weeklySine(rng, 70, 0, 1, 0.01))

	h, err := New(series, "weekly")
	require.NoError(t, err)
	seasonal := h.Decompose().Seasonal.Values[0]

	var sum float64
	for i := 0; i < 7; i++ {
		sum += seasonal[i]
	}
	assert.InDelta(t, 0, sum, 1e-9)
	for i := 7; i < len(seasonal); i++ {
		assert.Equal(t, seasonal[i-7], seasonal[i])
	}
}

func TestRemoveSeasonality(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	values := weeklySine(rng, 84, 5, 2, 0.05)
	series := daily(t, values)

	h, err := New(series, "weekly")
	require.NoError(t, err)
	out := h.RemoveSeasonality()

	assert.Equal(t, series.Timestamps, out.Timestamps)
	assert.Equal(t, series.Columns, out.Columns)

	spread := func(v []float64) float64 {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, x := range v {
			lo, hi = math.Min(lo, x), math.Max(hi, x)
		}
		return hi - lo
	}
	assert.Greater(t, spread(values), 3.0)
	assert.Less(t, spread(out.Values[0]), 1.0)
}

func TestPeriods(t *testing.T) {
	assert.Equal(t, []string{"biweekly", "daily", "hourly", "monthly", "quarterly", "weekly", "yearly"}, Periods())
	assert.True(t, Supported("weekly"))
	assert.False(t, Supported("Weekly"))
}
